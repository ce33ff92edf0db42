package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfgOf(t *testing.T, src, name string) *CFG {
	t.Helper()
	unit := loadUnit(t, src)
	return BuildCFG(findFunc(t, unit, name), nil)
}

func TestCFGStraightLine(t *testing.T) {
	g := cfgOf(t, "int f(int a) {\n    int b = a + 1;\n    return b;\n}\n", "f")
	require.Len(t, g.Blocks, 1)
	assert.True(t, g.Entry.Exit)
	assert.Len(t, g.Entry.Stmts, 2)
	assert.Empty(t, g.LoopHeads)
	assert.Equal(t, []*BasicBlock{g.Entry}, g.Exits)
}

func TestCFGEmptyBody(t *testing.T) {
	g := cfgOf(t, "void f(void) {}\n", "f")
	require.Len(t, g.Blocks, 1)
	assert.True(t, g.Entry.Exit)
}

func TestCFGIfElse(t *testing.T) {
	g := cfgOf(t, `
int f(int a) {
    if (a > 0) {
        a = 1;
    } else {
        a = 2;
    }
    return a;
}
`, "f")
	require.NotNil(t, g.Entry.Cond)
	require.Len(t, g.Entry.Succs, 2)
	kinds := []EdgeKind{g.Entry.Succs[0].Kind, g.Entry.Succs[1].Kind}
	assert.ElementsMatch(t, []EdgeKind{EdgeTrue, EdgeFalse}, kinds)
	assert.Empty(t, g.BackEdges())
	for _, blk := range g.Blocks {
		assert.True(t, g.Reachable(blk.ID), "block %d", blk.ID)
	}
}

func TestCFGLoopsHaveBackEdges(t *testing.T) {
	g := cfgOf(t, `
void f(int n) {
    int i;
    int j;
    for (i = 0; i < n; i++) {
        for (j = 0; j < i; j++) {
            n = n - 1;
        }
    }
    while (n > 0) {
        n--;
    }
}
`, "f")
	assert.Len(t, g.LoopHeads, 3)
	back := g.BackEdges()
	assert.Len(t, back, 3)
	for _, e := range back {
		assert.True(t, g.LoopHeads[e.To], "back edge %d->%d must target a loop head", e.From, e.To)
		assert.Greater(t, g.Rank(e.From), g.Rank(e.To))
	}
}

func TestCFGBreakContinue(t *testing.T) {
	g := cfgOf(t, `
void f(int n) {
    while (1) {
        if (n == 3) break;
        if (n == 5) continue;
        n++;
    }
    n = 0;
}
`, "f")
	require.Len(t, g.LoopHeads, 1)
	// continue 与循环体末尾各有一条回边
	assert.Len(t, g.BackEdges(), 2)
	require.Len(t, g.Exits, 1)
	assert.True(t, g.Reachable(g.Exits[0].ID))
}

func TestCFGSwitch(t *testing.T) {
	g := cfgOf(t, `
int f(int x) {
    int y = 0;
    switch (x) {
    case 1:
        y = 1;
        break;
    case 2:
    case 3:
        y = 2;
        break;
    default:
        y = 3;
    }
    return y;
}
`, "f")
	var sw *BasicBlock
	for _, blk := range g.Blocks {
		if blk.Switch != nil {
			sw = blk
		}
	}
	require.NotNil(t, sw)
	var cases, defaults int
	for _, e := range sw.Succs {
		switch e.Kind {
		case EdgeCase:
			cases++
			assert.Len(t, e.Values, 1)
		case EdgeDefault:
			defaults++
		}
	}
	assert.Equal(t, 3, cases)
	assert.Equal(t, 1, defaults)
}

func TestCFGNoReturnAndDeadCode(t *testing.T) {
	g := cfgOf(t, `
int f(int *p) {
    if (p == 0) {
        exit(1);
    }
    return *p;
    *p = 2;
}
`, "f")
	var dead int
	for _, blk := range g.Blocks {
		if !g.Reachable(blk.ID) {
			dead++
		}
	}
	assert.Equal(t, 1, dead)

	var exitBlk *BasicBlock
	for _, blk := range g.Blocks {
		for _, s := range blk.Stmts {
			if es, ok := s.(*ExprStmt); ok {
				if call, ok := es.X.(*CallExpr); ok && call.Fun == "exit" {
					exitBlk = blk
				}
			}
		}
	}
	require.NotNil(t, exitBlk)
	assert.Empty(t, exitBlk.Succs)
	assert.Len(t, g.ReachableBlocks(), len(g.Blocks)-1)
}

func TestCFGString(t *testing.T) {
	g := cfgOf(t, "void f(int n) {\n    while (n) n--;\n}\n", "f")
	s := g.String()
	assert.Contains(t, s, "cfg f entry=0")
	assert.Contains(t, s, "loop")
}
