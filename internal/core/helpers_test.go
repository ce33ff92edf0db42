package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadUnit(t *testing.T, src string) *TranslationUnit {
	t.Helper()
	unit, err := LoadSource(context.Background(), "test.c", []byte(src))
	require.NoError(t, err)
	return unit
}

func findFunc(t *testing.T, unit *TranslationUnit, name string) *Function {
	t.Helper()
	for _, fn := range unit.Functions {
		if fn.Name == name {
			return fn
		}
	}
	require.FailNow(t, "function not found", name)
	return nil
}

func varNamed(st *SymbolTable, name string) *Variable {
	for _, v := range st.Variables() {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// analyzeFunc 对单个函数完成符号表、控制流图与状态跟踪
func analyzeFunc(t *testing.T, src, name string) *Result {
	t.Helper()
	unit := loadUnit(t, src)
	fn := findFunc(t, unit, name)
	st := BuildSymbolTable(unit, fn)
	g := BuildCFG(fn, nil)
	res, err := NewTracker(DefaultTrackerConfig(), nil).Run(context.Background(), g, st, nil)
	require.NoError(t, err)
	return res
}

func eventsOf(res *Result, kind EventKind) []Event {
	var out []Event
	for _, ev := range res.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
