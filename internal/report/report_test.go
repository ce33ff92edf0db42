package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memsast/internal/core"
)

func sampleOutput() *core.Output {
	return &core.Output{
		Files:     2,
		Functions: 3,
		Duration:  time.Second,
		Findings: []core.Finding{
			{RuleID: core.RuleUseAfterFree, Kind: core.KindDefect, Severity: core.SeverityCritical, Confidence: core.ConfidenceHigh,
				CWE: core.CWE416, File: "b.c", Function: "g", Line: 7, Column: 5, Message: "read of '*p' uses 'p' after it was freed",
				Snapshot: map[string]string{"p": "Freed"}},
			{RuleID: core.RuleMaybeOOB, Kind: core.KindDefect, Severity: core.SeverityHigh, Confidence: core.ConfidenceMedium,
				CWE: core.CWE787, File: "a.c", Line: 12, Column: 9, Message: "write of 'a[i]' may be out of bounds"},
			{RuleID: core.RuleDoubleFree, Kind: core.KindDefect, Severity: core.SeverityHigh, Confidence: core.ConfidenceHigh,
				CWE: core.CWE415, File: "a.c", Line: 12, Column: 9, Message: "'q' is freed again"},
			core.NewWarning(core.RuleUndeclaredSymbol, "a.c", "f", core.Pos{Line: 3, Column: 2}, "'y' is not declared"),
			// 重复
			{RuleID: core.RuleMaybeOOB, Kind: core.KindDefect, Severity: core.SeverityHigh, Confidence: core.ConfidenceMedium,
				CWE: core.CWE787, File: "a.c", Line: 12, Column: 9, Message: "write of 'a[i]' may be out of bounds"},
		},
	}
}

func TestCollect(t *testing.T) {
	got := Collect(sampleOutput().Findings, CollectOptions{})
	require.Len(t, got, 4)

	var order []string
	for _, f := range got {
		order = append(order, f.Location()+" "+f.RuleID)
	}
	assert.Equal(t, []string{
		"a.c:3:2 UndeclaredSymbol",
		"a.c:12:9 DoubleFree",
		"a.c:12:9 MaybeOOB",
		"b.c:7:5 UseAfterFree",
	}, order)
}

func TestCollectFilters(t *testing.T) {
	tests := []struct {
		name string
		opts CollectOptions
		want int
	}{
		{"min severity high", CollectOptions{MinSeverity: core.SeverityHigh}, 3},
		{"min severity critical", CollectOptions{MinSeverity: core.SeverityCritical}, 1},
		{"disabled rule", CollectOptions{DisabledRules: []string{core.RuleMaybeOOB}}, 3},
		{"unknown severity keeps all", CollectOptions{MinSeverity: "whatever"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Collect(sampleOutput().Findings, tt.opts), tt.want)
		})
	}
}

func TestScanResultIsFrozen(t *testing.T) {
	r := NewScanResult(sampleOutput(), []string{"bounds"}, CollectOptions{})
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 3, r.Defects())
	assert.Equal(t, 1, r.Warnings())

	fs := r.Findings()
	fs[0].Message = "changed"
	assert.NotEqual(t, "changed", r.Findings()[0].Message)

	other := NewScanResult(sampleOutput(), nil, CollectOptions{})
	assert.NotEqual(t, r.RunID, other.RunID)
}

func TestJSONWriter(t *testing.T) {
	r := NewScanResult(sampleOutput(), []string{"bounds"}, CollectOptions{})
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf, WithPrettyJSON(), WithJSONToolVersion("1.2.3")).Write(r))

	var decoded JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.Equal(t, "1.2.3", decoded.Tool.Version)
	assert.Equal(t, 4, decoded.Summary.Total)
	assert.Equal(t, 3, decoded.Summary.Defects)
	assert.Equal(t, 2, decoded.Summary.BySeverity[core.SeverityHigh])
	require.Len(t, decoded.Findings, 4)
	assert.Equal(t, core.RuleUndeclaredSymbol, decoded.Findings[0].RuleID)
	assert.Equal(t, "Freed", decoded.Findings[3].Snapshot["p"])
}

func TestJSONWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).Write(NewScanResult(&core.Output{}, nil, CollectOptions{})))
	assert.Contains(t, buf.String(), `"findings":[]`)
}

func TestSARIFWriter(t *testing.T) {
	r := NewScanResult(sampleOutput(), nil, CollectOptions{})
	var buf bytes.Buffer
	require.NoError(t, NewSARIFWriter(&buf).Write(r))

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				Level     string `json:"level"`
				Locations []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine   int `json:"startLine"`
							StartColumn int `json:"startColumn"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "memsast", run.Tool.Driver.Name)
	assert.Len(t, run.Tool.Driver.Rules, 4)
	require.Len(t, run.Results, 4)

	first := run.Results[0]
	assert.Equal(t, core.RuleUndeclaredSymbol, first.RuleID)
	assert.Equal(t, "note", first.Level)

	last := run.Results[3]
	assert.Equal(t, "error", last.Level)
	assert.Equal(t, "b.c", last.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 7, last.Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, 5, last.Locations[0].PhysicalLocation.Region.StartColumn)
	assert.Equal(t, core.CWE416, last.Properties["cwe"])
	assert.Equal(t, r.RunID, last.Properties["runId"])
}

func TestTextWriter(t *testing.T) {
	r := NewScanResult(sampleOutput(), nil, CollectOptions{})
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf, WithVerbose()).Write(r))

	out := buf.String()
	assert.Contains(t, out, "a.c:12:9: high [MaybeOOB] write of 'a[i]' may be out of bounds (confidence medium, CWE-787)\n")
	assert.Contains(t, out, "    state: p=Freed\n")
	assert.Contains(t, out, "4 finding(s): 3 defect(s), 1 analysis warning(s)")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextWriterNoFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Write(NewScanResult(&core.Output{Files: 1}, nil, CollectOptions{})))
	assert.Contains(t, buf.String(), "No findings.")
}

func TestManagerGenerate(t *testing.T) {
	dir := t.TempDir()
	r := NewScanResult(sampleOutput(), nil, CollectOptions{})

	m := NewManager(WithFormat(FormatAll), WithOutputDir(dir), WithFilename("out.json"))
	files, err := m.Generate(r)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "out.json"),
		filepath.Join(dir, "out.text"),
		filepath.Join(dir, "out.sarif"),
	}, files)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	m = NewManager(WithFormat(FormatSARIF), WithOutputDir(dir))
	files, err = m.Generate(r)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "memsast_report.sarif")}, files)
}

func TestManagerRender(t *testing.T) {
	r := NewScanResult(sampleOutput(), nil, CollectOptions{})
	var buf bytes.Buffer
	require.NoError(t, NewManager(WithFormat(FormatJSON)).Render(r, &buf))
	assert.True(t, json.Valid(buf.Bytes()))

	assert.Error(t, NewManager(WithFormat(FormatAll)).Render(r, &buf))
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "JSON", "text", "sarif", "all"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)

	for _, f := range SupportedFormats() {
		assert.NotEqual(t, "unknown format", FormatDescription(f), f)
	}
}
