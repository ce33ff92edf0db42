package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableShadowing(t *testing.T) {
	unit := loadUnit(t, `
void f(void) {
    int x;
    {
        int x;
        x = 1;
    }
    x = 2;
}
`)
	fn := findFunc(t, unit, "f")
	st := BuildSymbolTable(unit, fn)

	outerDecl := fn.Body.Stmts[0].(*DeclStmt)
	inner := fn.Body.Stmts[1].(*BlockStmt)
	innerDecl := inner.Stmts[0].(*DeclStmt)
	innerAssign, ok := inner.Stmts[1].(*AssignStmt)
	require.True(t, ok)
	outerAssign, ok := fn.Body.Stmts[2].(*AssignStmt)
	require.True(t, ok)

	outer := st.Declared(outerDecl)
	shadow := st.Declared(innerDecl)
	require.NotNil(t, outer)
	require.NotNil(t, shadow)
	assert.NotEqual(t, outer.ID, shadow.ID)
	assert.NotEqual(t, outer.ScopeID, shadow.ScopeID)

	assert.Same(t, shadow, st.VarOf(innerAssign.LHS))
	assert.Same(t, outer, st.VarOf(outerAssign.LHS))
	assert.Empty(t, st.Diagnostics)
}

func TestSymbolTableDiagnostics(t *testing.T) {
	unit := loadUnit(t, `
void f(int n) {
    int a;
    int a;
    y = n;
    y = 2;
    printf("%d", a);
}
`)
	fn := findFunc(t, unit, "f")
	st := BuildSymbolTable(unit, fn)

	var dup, undeclared []SymbolDiagnostic
	for _, d := range st.Diagnostics {
		switch d.Rule {
		case RuleDuplicateDeclaration:
			dup = append(dup, d)
		case RuleUndeclaredSymbol:
			undeclared = append(undeclared, d)
		}
	}
	require.Len(t, dup, 1)
	assert.Equal(t, 4, dup[0].Pos.Line)
	assert.True(t, st.IsDuplicate(fn.Body.Stmts[1].(*DeclStmt)))

	// 同一个未声明名字只报告一次，被调函数名不是变量
	require.Len(t, undeclared, 1)
	assert.Equal(t, "y", undeclared[0].Name)
	assert.Equal(t, 5, undeclared[0].Pos.Line)
}

func TestSymbolTableGlobalsAndConsts(t *testing.T) {
	unit := loadUnit(t, `
#define ROWS 3
enum { COLS = 5 };
int grid[ROWS][COLS];

void f(void) {
    grid[0][0] = sizeof(int);
}
`)
	fn := findFunc(t, unit, "f")
	st := BuildSymbolTable(unit, fn)
	g := varNamed(st, "grid")
	require.NotNil(t, g)
	assert.True(t, g.IsGlobal)
	assert.True(t, g.IsArray())
	assert.Equal(t, int64(3), g.Size)
	assert.Equal(t, []int64{3, 5}, g.Dims)
	assert.Equal(t, int64(20), g.RowBytes())

	v, ok := st.EvalConst(&BinaryExpr{Op: "*", X: &IntLit{Value: 6}, Y: &IntLit{Value: 7}})
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, int64(4), TypeSize("int"))
	assert.Equal(t, int64(1), TypeSize("char"))
}

func TestSymbolTableSizeofHeaderType(t *testing.T) {
	unit := loadUnit(t, `
#include "clock.h"

void f(void) {
    Clock *clock = malloc(sizeof(Clock));
    int n = sizeof(missing);
    n = n + other;
    free(clock);
}
`)
	st := BuildSymbolTable(unit, findFunc(t, unit, "f"))
	var undeclared []string
	for _, d := range st.Diagnostics {
		if d.Rule == RuleUndeclaredSymbol {
			undeclared = append(undeclared, d.Message)
		}
	}
	require.Len(t, undeclared, 1)
	assert.Contains(t, undeclared[0], "'other'")
}
