package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeEventDetector 把每个释放事件报告为一条结果
type freeEventDetector struct {
	*BaseDetector
}

func (d *freeEventDetector) Run(ctx *AnalysisContext) ([]Finding, error) {
	var out []Finding
	for _, ev := range ctx.Events(EventFree) {
		out = append(out, d.FromEvent(ctx, "FreeSeen", ev, ev.Expr, ConfidenceHigh, SeverityLow, ""))
	}
	return out, nil
}

type panicDetector struct {
	*BaseDetector
}

func (d *panicDetector) Run(ctx *AnalysisContext) ([]Finding, error) {
	panic("boom")
}

const multiFunctionSource = `
void a(void) {
    char *p = malloc(1);
    free(p);
}

void b(int n) {
    char *q = malloc(n);
    int i;
    for (i = 0; i < n; i++) {
        q[i] = 0;
    }
    free(q);
}

void c(void) {
    char *r = malloc(2);
    free(r);
    free(r);
}
`

func newTestAnalyzer(cfg AnalyzerConfig, ds ...Detector) *Analyzer {
	return NewAnalyzer(cfg, ds, hclog.NewNullLogger())
}

func TestAnalyzeSourceOrderAndDeterminism(t *testing.T) {
	cfg := DefaultAnalyzerConfig()
	cfg.Workers = 4
	a := newTestAnalyzer(cfg, &freeEventDetector{NewBaseDetector("free-seen", "")})

	first, err := a.AnalyzeSource(context.Background(), "multi.c", []byte(multiFunctionSource))
	require.NoError(t, err)
	require.Len(t, first, 4)

	var fns []string
	for _, f := range first {
		fns = append(fns, f.Function)
		assert.Equal(t, "multi.c", f.File)
		assert.Equal(t, KindDefect, f.Kind)
	}
	assert.Equal(t, []string{"a", "b", "c", "c"}, fns)

	for i := 0; i < 5; i++ {
		again, err := a.AnalyzeSource(context.Background(), "multi.c", []byte(multiFunctionSource))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	stats := a.Stats()
	assert.Equal(t, 18, stats.Functions)
	assert.Contains(t, stats.DetectorTime, "free-seen")
	assert.LessOrEqual(t, len(stats.Slowest), 10)
}

func TestAnalyzeIterationCapReportsTimeout(t *testing.T) {
	cfg := DefaultAnalyzerConfig()
	cfg.Tracker.MaxIterations = 1
	a := newTestAnalyzer(cfg)

	findings, err := a.AnalyzeSource(context.Background(), "loop.c", []byte("void f(int n) {\n    while (n) n--;\n}\n"))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, RuleAnalysisTimedOut, findings[0].RuleID)
	assert.Equal(t, KindAnalysisWarning, findings[0].Kind)
	assert.Equal(t, "f", findings[0].Function)
	assert.Equal(t, 1, a.Stats().TimedOut)
}

func TestAnalyzeFunctionCancelled(t *testing.T) {
	a := newTestAnalyzer(DefaultAnalyzerConfig())
	unit := loadUnit(t, "void f(int n) {\n    while (n) n--;\n}\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	findings := a.AnalyzeFunction(ctx, unit, findFunc(t, unit, "f"))
	require.Len(t, findings, 1)
	assert.Equal(t, RuleAnalysisTimedOut, findings[0].RuleID)
	assert.Equal(t, SeverityMedium, findings[0].Severity)
}

func TestAnalyzeDetectorPanicIsContained(t *testing.T) {
	a := newTestAnalyzer(DefaultAnalyzerConfig(), &panicDetector{NewBaseDetector("panics", "")})
	findings, err := a.AnalyzeSource(context.Background(), "p.c", []byte(multiFunctionSource))
	require.NoError(t, err)
	require.Len(t, findings, 3)
	for _, f := range findings {
		assert.Equal(t, RuleUnsupportedConstruct, f.RuleID)
		assert.Contains(t, f.Message, "boom")
	}
	assert.Equal(t, 3, a.Stats().Panics)
}

func TestAnalyzeSyntaxErrorsBecomeWarnings(t *testing.T) {
	a := newTestAnalyzer(DefaultAnalyzerConfig())
	findings, err := a.AnalyzeSource(context.Background(), "bad.c", []byte("void f(void) {\n    int x = ;\n}\n"))
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, RuleUnsupportedConstruct, findings[0].RuleID)
	assert.Contains(t, findings[0].Message, "syntax error")
}

func TestAnalyzeFilesInputError(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.c")
	require.NoError(t, os.WriteFile(good, []byte(multiFunctionSource), 0644))

	a := newTestAnalyzer(DefaultAnalyzerConfig(), &freeEventDetector{NewBaseDetector("free-seen", "")})
	out := a.AnalyzeFiles(context.Background(), []string{good, filepath.Join(dir, "missing.c")})
	assert.Equal(t, 1, out.Files)
	assert.Equal(t, 3, out.Functions)

	var inputErrors int
	for _, f := range out.Findings {
		if f.RuleID == RuleInputError {
			inputErrors++
			assert.Contains(t, f.File, "missing.c")
		}
	}
	assert.Equal(t, 1, inputErrors)
	assert.Len(t, out.Findings, 5)
}
