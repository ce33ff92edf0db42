package detectors

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memsast/internal/core"
)

func analyze(t *testing.T, src string, ds ...core.Detector) []core.Finding {
	t.Helper()
	a := core.NewAnalyzer(core.DefaultAnalyzerConfig(), ds, hclog.NewNullLogger())
	findings, err := a.AnalyzeSource(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)
	return findings
}

func byRule(findings []core.Finding, rule string) []core.Finding {
	var out []core.Finding
	for _, f := range findings {
		if f.RuleID == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestUseAfterFreeDetector(t *testing.T) {
	t.Run("read after free", func(t *testing.T) {
		src := `#include <stdlib.h>
#include <stdio.h>
int main(void) {
    int *p = malloc(sizeof(int));
    *p = 1;
    free(p);
    printf("%d\n", *p);
    return 0;
}
`
		got := byRule(analyze(t, src, NewUseAfterFreeDetector()), core.RuleUseAfterFree)
		require.Len(t, got, 1)
		assert.Equal(t, 7, got[0].Line)
		assert.Equal(t, core.CWE416, got[0].CWE)
		assert.Equal(t, core.ConfidenceHigh, got[0].Confidence)
		assert.Equal(t, core.KindDefect, got[0].Kind)
		assert.Equal(t, "main", got[0].Function)
		assert.Contains(t, got[0].Snapshot, "p")
	})

	t.Run("freed on one path", func(t *testing.T) {
		src := `void f(int c) {
    int *p = malloc(4 * sizeof(int));
    if (c) {
        free(p);
    }
    p[0] = 1;
}
`
		got := byRule(analyze(t, src, NewUseAfterFreeDetector()), core.RuleUseAfterFree)
		require.Len(t, got, 1)
		assert.Equal(t, 6, got[0].Line)
		assert.Equal(t, core.ConfidenceMedium, got[0].Confidence)
	})

	t.Run("reallocated before use", func(t *testing.T) {
		src := `void f(void) {
    int *p = malloc(sizeof(int));
    free(p);
    p = malloc(sizeof(int));
    *p = 2;
    free(p);
}
`
		assert.Empty(t, byRule(analyze(t, src, NewUseAfterFreeDetector()), core.RuleUseAfterFree))
	})

	t.Run("string function on freed buffer", func(t *testing.T) {
		src := `void f(void) {
    char *s = malloc(32);
    free(s);
    int n = strlen(s);
}
`
		got := byRule(analyze(t, src, NewUseAfterFreeDetector()), core.RuleUseAfterFree)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Line)
		assert.Contains(t, got[0].Message, "strlen")
	})
}

func TestDoubleFreeDetector(t *testing.T) {
	t.Run("straight line", func(t *testing.T) {
		src := `void f(void) {
    char *buf = malloc(16);
    free(buf);
    free(buf);
}
`
		got := byRule(analyze(t, src, NewDoubleFreeDetector()), core.RuleDoubleFree)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Line)
		assert.Equal(t, core.CWE415, got[0].CWE)
		assert.Equal(t, core.ConfidenceHigh, got[0].Confidence)
	})

	t.Run("reset to NULL", func(t *testing.T) {
		src := `void f(void) {
    char *buf = malloc(16);
    free(buf);
    buf = NULL;
    free(buf);
}
`
		assert.Empty(t, byRule(analyze(t, src, NewDoubleFreeDetector()), core.RuleDoubleFree))
	})

	t.Run("free inside loop", func(t *testing.T) {
		src := `void f(int n) {
    char *buf = malloc(16);
    for (int i = 0; i < n; i++) {
        free(buf);
    }
}
`
		got := byRule(analyze(t, src, NewDoubleFreeDetector()), core.RuleDoubleFree)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Line)
		assert.Equal(t, core.ConfidenceMedium, got[0].Confidence)
	})
}

func TestNullDereferenceDetector(t *testing.T) {
	t.Run("definite null", func(t *testing.T) {
		src := `void f(void) {
    int *p = NULL;
    *p = 5;
}
`
		got := byRule(analyze(t, src, NewNullDereferenceDetector()), core.RuleNullDereference)
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Line)
		assert.Equal(t, core.CWE476, got[0].CWE)
	})

	t.Run("guarded by check", func(t *testing.T) {
		src := `void f(void) {
    int *p = 0;
    if (p) {
        *p = 1;
    }
    if (p != NULL && *p > 0) {
        *p = 2;
    }
}
`
		assert.Empty(t, byRule(analyze(t, src, NewNullDereferenceDetector()), core.RuleNullDereference))
	})

	t.Run("unknown parameter", func(t *testing.T) {
		src := `int f(int *p) {
    return *p;
}
`
		assert.Empty(t, byRule(analyze(t, src, NewNullDereferenceDetector()), core.RuleNullDereference))
	})
}

func TestBoundsDetector(t *testing.T) {
	t.Run("constant index at size", func(t *testing.T) {
		src := `void f(void) {
    int a[10];
    a[10] = 0;
    int x = a[10];
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 2)
		assert.Equal(t, 3, got[0].Line)
		assert.Equal(t, core.CWE787, got[0].CWE)
		assert.Equal(t, core.ConfidenceHigh, got[0].Confidence)
		assert.Equal(t, 4, got[1].Line)
		assert.Equal(t, core.CWE125, got[1].CWE)
	})

	t.Run("loop off by one", func(t *testing.T) {
		src := `void f(void) {
    int a[10];
    for (int i = 0; i <= 10; i++) {
        a[i] = i;
    }
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Line)
		assert.Equal(t, core.ConfidenceMedium, got[0].Confidence)
	})

	t.Run("loop in bounds", func(t *testing.T) {
		src := `void f(void) {
    int a[10];
    for (int i = 0; i < 10; i++) {
        a[i] = i;
    }
}
`
		assert.Empty(t, byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB))
	})

	t.Run("unknown index is not reported", func(t *testing.T) {
		src := `void f(int k) {
    int a[10];
    a[k] = 0;
}
`
		assert.Empty(t, byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB))
	})

	t.Run("heap buffer", func(t *testing.T) {
		src := `void f(void) {
    int *p = malloc(8 * sizeof(int));
    p[8] = 1;
    free(p);
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Line)
	})

	t.Run("index left over from a loop", func(t *testing.T) {
		src := `void f(void) {
    int a[4];
    int i;
    for (i = 0; i < 4; i++) {
        a[i] = 0;
    }
    a[i] = 1;
    a[9223372036854775807] = 1;
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 2)
		assert.Equal(t, 7, got[0].Line)
		assert.Equal(t, core.ConfidenceHigh, got[0].Confidence)
		assert.Equal(t, 8, got[1].Line)
		assert.Equal(t, core.ConfidenceHigh, got[1].Confidence)
	})

	t.Run("do while with <=", func(t *testing.T) {
		src := `void f(void) {
    int a[4];
    int i = 0;
    do {
        a[i] = 0;
        i++;
    } while (i <= 4);
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 1)
		assert.Equal(t, 5, got[0].Line)
	})

	t.Run("pointer arithmetic", func(t *testing.T) {
		src := `void f(void) {
    int a[4];
    int *p = malloc(4 * sizeof(int));
    int *q = malloc(4 * sizeof(int));
    *(a + 4) = 1;
    *(a + 3) = 1;
    *(p + 4) = 1;
    q += 4;
    *q = 1;
    *(q - 1) = 1;
    free(p);
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		lines := make([]int, 0, len(got))
		for _, f := range got {
			lines = append(lines, f.Line)
		}
		assert.Equal(t, []int{5, 7, 9}, lines)
		assert.Contains(t, got[0].Message, "*(a + 4)")
	})
}

func TestBoundsDetectorSortingAndGraphLoops(t *testing.T) {
	linesOf := func(fs []core.Finding) map[int]int {
		out := make(map[int]int)
		for _, f := range fs {
			out[f.Line]++
		}
		return out
	}

	t.Run("bubble sort reads j+1", func(t *testing.T) {
		src := `void bubble_sort(void) {
    int a[5] = {5, 4, 3, 2, 1};
    int i;
    int j;
    for (i = 0; i < 5; i++) {
        for (j = 0; j < 5 - i; j++) {
            if (a[j] > a[j + 1]) {
                int t = a[j];
                a[j] = a[j + 1];
                a[j + 1] = t;
            }
        }
    }
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		assert.Equal(t, map[int]int{7: 1, 9: 1, 10: 1}, linesOf(got))
		for _, f := range got {
			assert.Contains(t, f.Message, "j + 1")
		}
	})

	t.Run("bubble sort fixed", func(t *testing.T) {
		src := `void bubble_sort(void) {
    int a[5] = {5, 4, 3, 2, 1};
    int i;
    int j;
    for (i = 0; i < 5; i++) {
        for (j = 0; j < 4 - i; j++) {
            if (a[j] > a[j + 1]) {
                int t = a[j];
                a[j] = a[j + 1];
                a[j + 1] = t;
            }
        }
    }
}
`
		assert.Empty(t, byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB))
	})

	t.Run("vertex loop with <= V", func(t *testing.T) {
		src := `#define V 5
int dist[V];
int visited[V];

void init(void) {
    int i;
    for (i = 0; i <= V; i++) {
        dist[i] = 1000000;
    }
    for (i = 0; i < V; i++) {
        visited[i] = 0;
    }
}
`
		got := byRule(analyze(t, src, NewBoundsDetector()), core.RuleMaybeOOB)
		require.Len(t, got, 1)
		assert.Equal(t, 8, got[0].Line)
		assert.Equal(t, core.CWE787, got[0].CWE)
	})
}

func TestAnalysisWarningDetector(t *testing.T) {
	t.Run("symbols", func(t *testing.T) {
		src := `int f(void) {
    int x = 1;
    int x = 2;
    return x + y;
}
`
		findings := analyze(t, src, NewAnalysisWarningDetector())
		dup := byRule(findings, core.RuleDuplicateDeclaration)
		require.Len(t, dup, 1)
		assert.Equal(t, 3, dup[0].Line)
		assert.Equal(t, core.KindAnalysisWarning, dup[0].Kind)

		undeclared := byRule(findings, core.RuleUndeclaredSymbol)
		require.Len(t, undeclared, 1)
		assert.Equal(t, 4, undeclared[0].Line)
		assert.Contains(t, undeclared[0].Message, "'y'")
	})

	t.Run("goto", func(t *testing.T) {
		src := `void g(int n) {
    if (n) goto out;
    n = 1;
out:
    return;
}
`
		got := byRule(analyze(t, src, NewAnalysisWarningDetector()), core.RuleUnsupportedConstruct)
		require.Len(t, got, 2)
		lines := map[int]string{}
		for _, f := range got {
			lines[f.Line] = f.Message
		}
		assert.Contains(t, lines[2], "'goto'")
		assert.Contains(t, lines[4], "'label'")
	})
}
