package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerDeclarations(t *testing.T) {
	unit := loadUnit(t, `
#define N 4
int table[N * 2];

int f(char *s, int n) {
    int x, y[3];
    int b[] = {1, 2, 3};
    char *p = 0;
    return x;
}
`)
	assert.Equal(t, int64(4), unit.Consts["N"])
	require.Len(t, unit.Globals, 1)
	assert.Equal(t, "table", unit.Globals[0].Name)

	fn := findFunc(t, unit, "f")
	require.Len(t, fn.Params, 2)
	assert.Equal(t, KindPointer, fn.Params[0].Kind)
	assert.Equal(t, KindScalar, fn.Params[1].Kind)

	var names []string
	for _, s := range fn.Body.Stmts {
		if d, ok := s.(*DeclStmt); ok {
			names = append(names, d.Name)
		}
	}
	assert.Equal(t, []string{"x", "y", "b", "p"}, names)

	st := BuildSymbolTable(unit, fn)
	assert.Equal(t, int64(8), varNamed(st, "table").Size)
	assert.Equal(t, int64(3), varNamed(st, "y").Size)
	assert.Equal(t, int64(3), varNamed(st, "b").Size)
	assert.True(t, varNamed(st, "p").IsPointer())
}

func TestLowerStatements(t *testing.T) {
	unit := loadUnit(t, `
void g(int n) {
    int i;
    for (i = 0; i < n; i++) {
        if (i == 2) continue;
    }
    while (n > 0) n--;
    do { n++; } while (n < 3);
    switch (n) {
    case 1: break;
    default: break;
    }
}
`)
	fn := findFunc(t, unit, "g")
	stmts := fn.Body.Stmts
	require.Len(t, stmts, 5)
	assert.IsType(t, &ForStmt{}, stmts[1])
	assert.IsType(t, &WhileStmt{}, stmts[2])
	require.IsType(t, &WhileStmt{}, stmts[3])
	assert.True(t, stmts[3].(*WhileStmt).DoWhile)
	require.IsType(t, &SwitchStmt{}, stmts[4])
	sw := stmts[4].(*SwitchStmt)
	require.Len(t, sw.Cases, 2)
	assert.True(t, sw.Cases[1].Default)
}

func TestLowerUnsupportedAndSyntaxErrors(t *testing.T) {
	unit := loadUnit(t, `
void h(int n) {
    goto out;
out:
    n = 1;
}

void broken(void) {
    int x = ;
}
`)
	fn := findFunc(t, unit, "h")
	var kinds []string
	var walk func(stmts []Stmt)
	walk = func(stmts []Stmt) {
		for _, s := range stmts {
			switch x := s.(type) {
			case *UnsupportedStmt:
				kinds = append(kinds, x.Kind)
			case *BlockStmt:
				walk(x.Stmts)
			}
		}
	}
	walk(fn.Body.Stmts)
	assert.Contains(t, kinds, "goto")
	assert.NotEmpty(t, unit.SyntaxErrors)
}

func TestLowerPositionsAreOneBased(t *testing.T) {
	unit := loadUnit(t, "void f(void) {\n    int a;\n}\n")
	fn := findFunc(t, unit, "f")
	assert.Equal(t, 1, fn.Pos.Line)
	require.Len(t, fn.Body.Stmts, 1)
	pos := fn.Body.Stmts[0].StmtPos()
	assert.Equal(t, 2, pos.Line)
	assert.True(t, pos.IsValid())
}

func TestLowerMacroValues(t *testing.T) {
	unit := loadUnit(t, `
#define V 5 // Number of vertices in graph
#define W 7 /* width */
#define RATIO 7*3/2
#define SPAN (V)-(2)
#define DIFF 10 - 4 - 3
#define NEG -3
#define PROD 2*-3
#define NAME "memsast"
#define ZERO_DIV 4/0

int f(void) {
    return V;
}
`)
	assert.Equal(t, int64(5), unit.Consts["V"])
	assert.Equal(t, int64(7), unit.Consts["W"])
	assert.Equal(t, int64(10), unit.Consts["RATIO"])
	assert.Equal(t, int64(3), unit.Consts["SPAN"])
	assert.Equal(t, int64(3), unit.Consts["DIFF"])
	assert.Equal(t, int64(-3), unit.Consts["NEG"])
	assert.Equal(t, int64(-6), unit.Consts["PROD"])
	assert.NotContains(t, unit.Consts, "NAME")
	assert.NotContains(t, unit.Consts, "ZERO_DIV")

	st := BuildSymbolTable(unit, findFunc(t, unit, "f"))
	assert.Empty(t, st.Diagnostics)
}
