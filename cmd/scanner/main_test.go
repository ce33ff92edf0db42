package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonFinding struct {
	RuleID     string `json:"ruleId"`
	Kind       string `json:"kind"`
	Confidence string `json:"confidence"`
	File       string `json:"file"`
	Function   string `json:"function"`
	Line       int    `json:"line"`
}

type jsonReport struct {
	RunID   string `json:"runId"`
	Summary struct {
		Total        int `json:"total"`
		Defects      int `json:"defects"`
		FilesScanned int `json:"filesScanned"`
	} `json:"summary"`
	Findings []jsonFinding `json:"findings"`
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func scanJSON(t *testing.T, args ...string) (int, jsonReport) {
	t.Helper()
	code, out, errOut := run(t, append([]string{"scan", "--format", "json", "--log-level", "off"}, args...)...)
	var rep jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep), "stdout: %s\nstderr: %s", out, errOut)
	return code, rep
}

func findingAt(rep jsonReport, rule, file string, line int) *jsonFinding {
	for i := range rep.Findings {
		f := &rep.Findings[i]
		if f.RuleID == rule && filepath.Base(f.File) == file && f.Line == line {
			return f
		}
	}
	return nil
}

func TestScanReportsDefects(t *testing.T) {
	code, rep := scanJSON(t, "testdata/src")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, 3, rep.Summary.FilesScanned)
	assert.NotEmpty(t, rep.RunID)

	uaf := findingAt(rep, "UseAfterFree", "uaf.c", 7)
	require.NotNil(t, uaf, "findings: %+v", rep.Findings)
	assert.Equal(t, "use_after_free", uaf.Function)
	assert.Equal(t, "high", uaf.Confidence)

	df := findingAt(rep, "DoubleFree", "double_free.c", 6)
	require.NotNil(t, df, "findings: %+v", rep.Findings)
	assert.Equal(t, "release_twice", df.Function)

	for _, f := range rep.Findings {
		assert.NotEqual(t, "bubble_sort.c", filepath.Base(f.File), "unexpected finding %+v", f)
	}
}

func TestScanFailOnFindings(t *testing.T) {
	code, rep := scanJSON(t, "--fail-on-findings", "testdata/src/uaf.c")
	assert.Equal(t, ExitFindings, code)
	assert.Positive(t, rep.Summary.Defects)

	code, rep = scanJSON(t, "--fail-on-findings", "testdata/clean")
	assert.Equal(t, ExitOK, code)
	assert.Empty(t, rep.Findings)
}

func TestScanDisableRule(t *testing.T) {
	_, rep := scanJSON(t, "--disable", "UseAfterFree", "testdata/src")
	for _, f := range rep.Findings {
		assert.NotEqual(t, "UseAfterFree", f.RuleID)
	}
	assert.NotNil(t, findingAt(rep, "DoubleFree", "double_free.c", 6))
}

func TestScanExclude(t *testing.T) {
	_, rep := scanJSON(t, "--exclude", "nested/**", "testdata/src")
	assert.Equal(t, 2, rep.Summary.FilesScanned)
}

func TestScanErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing path", []string{"scan", "testdata/does-not-exist"}, "does-not-exist"},
		{"bad format", []string{"scan", "--format", "xml", "testdata/src"}, "xml"},
		{"unknown rule", []string{"scan", "--disable", "NoSuchRule", "testdata/src"}, "NoSuchRule"},
		{"bad severity", []string{"scan", "--min-severity", "urgent", "testdata/src"}, "urgent"},
		{"no args", []string{"scan"}, "arg"},
		{"missing config", []string{"scan", "--config", "testdata/none.yaml", "testdata/src"}, "none.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := run(t, tt.args...)
			assert.Equal(t, ExitError, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestScanWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "memsast.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
rules:
  disabled: [DoubleFree]
output:
  format: json
logger:
  level: off
`), 0644))

	code, out, _ := run(t, "scan", "--config", cfgPath, "testdata/src")
	assert.Equal(t, ExitOK, code)
	var rep jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Nil(t, findingAt(rep, "DoubleFree", "double_free.c", 6))
	assert.NotNil(t, findingAt(rep, "UseAfterFree", "uaf.c", 7))
}

func TestScanTextOutput(t *testing.T) {
	code, out, _ := run(t, "scan", "--log-level", "off", "--no-color", "--verbose", "testdata/src/double_free.c")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "double_free.c:6:")
	assert.Contains(t, out, "[DoubleFree]")
	assert.Contains(t, out, "in function release_twice")
}

func TestScanWritesReportFiles(t *testing.T) {
	dir := t.TempDir()
	code, out, errOut := run(t, "scan", "--log-level", "off", "--format", "all", "--output-dir", dir, "testdata/src/uaf.c")
	assert.Equal(t, ExitOK, code)
	assert.Empty(t, out)
	for _, name := range []string{"memsast_report.json", "memsast_report.text", "memsast_report.sarif"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.Contains(t, errOut, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "memsast_report.sarif"))
	require.NoError(t, err)
	var sarifDoc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &sarifDoc))
	assert.Equal(t, "2.1.0", sarifDoc["version"])
	assert.Contains(t, string(data), "UseAfterFree")
}

func TestRulesCommand(t *testing.T) {
	code, out, _ := run(t, "rules")
	assert.Equal(t, ExitOK, code)
	for _, rule := range []string{"MaybeOOB", "UseAfterFree", "DoubleFree", "NullDereference", "AnalysisTimedOut"} {
		assert.Contains(t, out, rule)
	}
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := run(t, "version")
	assert.Equal(t, ExitOK, code)
	assert.True(t, strings.HasPrefix(out, "memsast "+Version))
}

func TestScanDijkstraVertexLoops(t *testing.T) {
	_, unsafe := scanJSON(t, "testdata/dijkstra/dijkstra_unsafe.c")
	for _, line := range []int{10, 11, 32, 33} {
		assert.NotNil(t, findingAt(unsafe, "MaybeOOB", "dijkstra_unsafe.c", line), "line %d: %+v", line, unsafe.Findings)
	}
	for _, f := range unsafe.Findings {
		assert.NotEqual(t, "UndeclaredSymbol", f.RuleID, "unexpected finding %+v", f)
		if f.RuleID == "MaybeOOB" {
			assert.Contains(t, []string{"minDistance", "dijkstra"}, f.Function)
		}
	}

	_, safe := scanJSON(t, "testdata/dijkstra/dijkstra_safe.c")
	for _, f := range safe.Findings {
		assert.NotEqual(t, "MaybeOOB", f.RuleID, "unexpected finding %+v", f)
		assert.NotEqual(t, "UndeclaredSymbol", f.RuleID, "unexpected finding %+v", f)
	}
}
