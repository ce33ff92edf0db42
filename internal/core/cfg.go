package core

import (
	"fmt"
	"strings"

	"github.com/yourbasic/graph"
	"golang.org/x/exp/slices"
)

// EdgeKind 控制流边的类型
type EdgeKind int

const (
	EdgeJump EdgeKind = iota
	EdgeTrue
	EdgeFalse
	EdgeCase
	EdgeDefault
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTrue:
		return "true"
	case EdgeFalse:
		return "false"
	case EdgeCase:
		return "case"
	case EdgeDefault:
		return "default"
	default:
		return "jump"
	}
}

// Edge 控制流边
type Edge struct {
	From int
	To   int
	Kind EdgeKind
	// Values case 边上的取值（fallthrough 合并后可能有多个）
	Values []Expr
	// Back 是否为循环回边
	Back bool
}

// BasicBlock 基本块：内部无分支的语句序列
// 以 Cond 结尾时有 true/false 两条出边，以 Switch 结尾时有 N 条 case 出边
type BasicBlock struct {
	ID     int
	Stmts  []Stmt
	Cond   Expr
	Switch Expr
	Succs  []*Edge
	Preds  []*Edge
	Exit   bool
}

// CFG 函数的控制流图
type CFG struct {
	Function  string
	Entry     *BasicBlock
	Exits     []*BasicBlock
	Blocks    []*BasicBlock
	LoopHeads map[int]bool
	// rank 从入口广度优先的访问序号，不可达块为 -1
	rank []int
}

// DefaultNoReturn 默认的不返回函数
var DefaultNoReturn = []string{
	"exit", "abort", "_Exit", "_exit", "quick_exit", "__assert_fail",
	"longjmp", "siglongjmp", "err", "errx", "verr", "verrx", "pthread_exit",
}

// cfgBuilder 用于构建CFG的辅助结构
type cfgBuilder struct {
	cfg       *CFG
	noReturn  map[string]bool
	breaks    []*BasicBlock
	continues []*BasicBlock
}

// BuildCFG 为函数构建控制流图；noReturn 为 nil 时使用 DefaultNoReturn
func BuildCFG(fn *Function, noReturn map[string]bool) *CFG {
	if noReturn == nil {
		noReturn = make(map[string]bool, len(DefaultNoReturn))
		for _, n := range DefaultNoReturn {
			noReturn[n] = true
		}
	}
	b := &cfgBuilder{
		cfg:      &CFG{Function: fn.Name, LoopHeads: make(map[int]bool)},
		noReturn: noReturn,
	}
	entry := b.createBlock()
	b.cfg.Entry = entry

	var end *BasicBlock = entry
	if fn.Body != nil {
		end = b.buildStmts(fn.Body.Stmts, entry)
	}
	if end != nil {
		end.Exit = true
	}
	for _, blk := range b.cfg.Blocks {
		if blk.Exit {
			b.cfg.Exits = append(b.cfg.Exits, blk)
		}
	}
	b.cfg.analyzeLoops()
	b.cfg.computeOrder()
	return b.cfg
}

// createBlock 创建新的基本块
func (b *cfgBuilder) createBlock() *BasicBlock {
	blk := &BasicBlock{ID: len(b.cfg.Blocks)}
	b.cfg.Blocks = append(b.cfg.Blocks, blk)
	return blk
}

// addEdge 添加边
func (b *cfgBuilder) addEdge(from, to *BasicBlock, kind EdgeKind) *Edge {
	e := &Edge{From: from.ID, To: to.ID, Kind: kind}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
	return e
}

func (b *cfgBuilder) buildStmts(stmts []Stmt, cur *BasicBlock) *BasicBlock {
	for _, s := range stmts {
		if cur == nil {
			// return/break 之后的死代码放入无前驱的块
			cur = b.createBlock()
		}
		cur = b.buildStmt(s, cur)
	}
	return cur
}

// buildStmt 把语句追加到 cur，返回之后的当前块；控制流不再继续时返回 nil
func (b *cfgBuilder) buildStmt(s Stmt, cur *BasicBlock) *BasicBlock {
	if s == nil {
		return cur
	}
	switch x := s.(type) {
	case *BlockStmt:
		return b.buildStmts(x.Stmts, cur)
	case *IfStmt:
		return b.buildIf(x, cur)
	case *WhileStmt:
		if x.DoWhile {
			return b.buildDoWhile(x, cur)
		}
		return b.buildLoop(x.Cond, nil, nil, x.Body, cur)
	case *ForStmt:
		return b.buildLoop(x.Cond, x.Init, x.Post, x.Body, cur)
	case *SwitchStmt:
		return b.buildSwitch(x, cur)
	case *ReturnStmt:
		cur.Stmts = append(cur.Stmts, x)
		cur.Exit = true
		return nil
	case *BreakStmt:
		if len(b.breaks) > 0 {
			b.addEdge(cur, b.breaks[len(b.breaks)-1], EdgeJump)
		}
		return nil
	case *ContinueStmt:
		if len(b.continues) > 0 {
			b.addEdge(cur, b.continues[len(b.continues)-1], EdgeJump)
		}
		return nil
	case *ExprStmt:
		cur.Stmts = append(cur.Stmts, x)
		if b.isNoReturn(x.X) {
			cur.Exit = true
			return nil
		}
		return cur
	default:
		cur.Stmts = append(cur.Stmts, s)
		return cur
	}
}

func (b *cfgBuilder) isNoReturn(e Expr) bool {
	call, ok := StripParensAndCasts(e).(*CallExpr)
	return ok && b.noReturn[call.Fun]
}

// buildIf 条件分支
func (b *cfgBuilder) buildIf(s *IfStmt, cur *BasicBlock) *BasicBlock {
	cur.Cond = s.Cond
	join := b.createBlock()

	thenBlk := b.createBlock()
	b.addEdge(cur, thenBlk, EdgeTrue)
	if end := b.buildStmt(s.Then, thenBlk); end != nil {
		b.addEdge(end, join, EdgeJump)
	}

	if s.Else != nil {
		elseBlk := b.createBlock()
		b.addEdge(cur, elseBlk, EdgeFalse)
		if end := b.buildStmt(s.Else, elseBlk); end != nil {
			b.addEdge(end, join, EdgeJump)
		}
	} else {
		b.addEdge(cur, join, EdgeFalse)
	}
	return join
}

// buildLoop while 与 for 循环；cond 为 nil 时为无条件循环
func (b *cfgBuilder) buildLoop(cond Expr, init []Stmt, post Stmt, body Stmt, cur *BasicBlock) *BasicBlock {
	for _, s := range init {
		cur = b.buildStmt(s, cur)
	}
	head := b.createBlock()
	b.addEdge(cur, head, EdgeJump)

	bodyBlk := b.createBlock()
	after := b.createBlock()
	if cond != nil {
		head.Cond = cond
		b.addEdge(head, bodyBlk, EdgeTrue)
		b.addEdge(head, after, EdgeFalse)
	} else {
		b.addEdge(head, bodyBlk, EdgeJump)
	}

	cont := head
	var postBlk *BasicBlock
	if post != nil {
		postBlk = b.createBlock()
		cont = postBlk
	}

	b.breaks = append(b.breaks, after)
	b.continues = append(b.continues, cont)
	end := b.buildStmt(body, bodyBlk)
	b.breaks = b.breaks[:len(b.breaks)-1]
	b.continues = b.continues[:len(b.continues)-1]

	if end != nil {
		b.addEdge(end, cont, EdgeJump)
	}
	if postBlk != nil {
		postBlk.Stmts = append(postBlk.Stmts, post)
		b.addEdge(postBlk, head, EdgeJump)
	}
	return after
}

// buildDoWhile do { body } while (cond)
func (b *cfgBuilder) buildDoWhile(s *WhileStmt, cur *BasicBlock) *BasicBlock {
	bodyBlk := b.createBlock()
	b.addEdge(cur, bodyBlk, EdgeJump)
	condBlk := b.createBlock()
	after := b.createBlock()

	b.breaks = append(b.breaks, after)
	b.continues = append(b.continues, condBlk)
	end := b.buildStmt(s.Body, bodyBlk)
	b.breaks = b.breaks[:len(b.breaks)-1]
	b.continues = b.continues[:len(b.continues)-1]

	if end != nil {
		b.addEdge(end, condBlk, EdgeJump)
	}
	condBlk.Cond = s.Cond
	b.addEdge(condBlk, bodyBlk, EdgeTrue)
	b.addEdge(condBlk, after, EdgeFalse)
	return after
}

// buildSwitch N 路分支，case 体之间可以贯穿
func (b *cfgBuilder) buildSwitch(s *SwitchStmt, cur *BasicBlock) *BasicBlock {
	cur.Switch = s.Tag
	after := b.createBlock()
	hasDefault := false

	b.breaks = append(b.breaks, after)
	var prevEnd *BasicBlock
	for _, c := range s.Cases {
		blk := b.createBlock()
		if c.Default {
			hasDefault = true
			b.addEdge(cur, blk, EdgeDefault)
		} else {
			e := b.addEdge(cur, blk, EdgeCase)
			e.Values = c.Values
		}
		if prevEnd != nil {
			b.addEdge(prevEnd, blk, EdgeJump)
		}
		prevEnd = b.buildStmts(c.Body, blk)
	}
	b.breaks = b.breaks[:len(b.breaks)-1]

	if prevEnd != nil {
		b.addEdge(prevEnd, after, EdgeJump)
	}
	if !hasDefault {
		b.addEdge(cur, after, EdgeDefault)
	}
	return after
}

// ==================== 循环识别 ====================

// analyzeLoops 递归地做强连通分量分解：每个非平凡分量选一个入口块作为循环头，
// 割掉分量内指向循环头的边（即回边）后继续分解，以覆盖嵌套与不可规约的循环
func (c *CFG) analyzeLoops() {
	nodes := make([]int, len(c.Blocks))
	for i := range nodes {
		nodes[i] = i
	}
	c.decompose(nodes)
}

func (c *CFG) decompose(nodes []int) {
	local := make(map[int]int, len(nodes))
	for i, id := range nodes {
		local[id] = i
	}
	g := graph.New(len(nodes))
	for _, id := range nodes {
		for _, e := range c.Blocks[id].Succs {
			if e.Back {
				continue
			}
			if j, ok := local[e.To]; ok {
				g.Add(local[id], j)
			}
		}
	}

	for _, comp := range graph.StrongComponents(g) {
		if len(comp) == 1 && !g.Edge(comp[0], comp[0]) {
			continue
		}
		members := make(map[int]bool, len(comp))
		ids := make([]int, 0, len(comp))
		for _, li := range comp {
			members[nodes[li]] = true
			ids = append(ids, nodes[li])
		}
		slices.Sort(ids)

		header := -1
		for _, id := range ids {
			for _, e := range c.Blocks[id].Preds {
				if !members[e.From] {
					header = id
					break
				}
			}
			if header >= 0 {
				break
			}
		}
		if header < 0 {
			header = ids[0]
		}
		c.LoopHeads[header] = true
		for _, e := range c.Blocks[header].Preds {
			if members[e.From] {
				e.Back = true
			}
		}
		c.decompose(ids)
	}
}

// computeOrder 从入口做广度优先遍历，得到工作表优先级
func (c *CFG) computeOrder() {
	g := graph.New(len(c.Blocks))
	for _, blk := range c.Blocks {
		for _, e := range blk.Succs {
			g.Add(e.From, e.To)
		}
	}
	c.rank = make([]int, len(c.Blocks))
	for i := range c.rank {
		c.rank[i] = -1
	}
	next := 0
	c.rank[c.Entry.ID] = next
	next++
	graph.BFS(g, c.Entry.ID, func(_, w int, _ int64) {
		if c.rank[w] < 0 {
			c.rank[w] = next
			next++
		}
	})
}

// Reachable 块是否从入口可达
func (c *CFG) Reachable(id int) bool {
	return id >= 0 && id < len(c.rank) && c.rank[id] >= 0
}

// Rank 块的广度优先序号
func (c *CFG) Rank(id int) int {
	return c.rank[id]
}

// ReachableBlocks 按广度优先顺序返回可达块
func (c *CFG) ReachableBlocks() []*BasicBlock {
	var out []*BasicBlock
	for _, blk := range c.Blocks {
		if c.Reachable(blk.ID) {
			out = append(out, blk)
		}
	}
	slices.SortFunc(out, func(a, b *BasicBlock) bool { return c.rank[a.ID] < c.rank[b.ID] })
	return out
}

// BackEdges 所有回边
func (c *CFG) BackEdges() []*Edge {
	var out []*Edge
	for _, blk := range c.Blocks {
		for _, e := range blk.Succs {
			if e.Back {
				out = append(out, e)
			}
		}
	}
	return out
}

// String 文本形式，便于调试与测试
func (c *CFG) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cfg %s entry=%d\n", c.Function, c.Entry.ID)
	for _, blk := range c.Blocks {
		fmt.Fprintf(&sb, "  b%d", blk.ID)
		if c.LoopHeads[blk.ID] {
			sb.WriteString(" loop")
		}
		if blk.Exit {
			sb.WriteString(" exit")
		}
		fmt.Fprintf(&sb, " stmts=%d", len(blk.Stmts))
		if blk.Cond != nil {
			fmt.Fprintf(&sb, " if(%s)", ExprString(blk.Cond))
		}
		if blk.Switch != nil {
			fmt.Fprintf(&sb, " switch(%s)", ExprString(blk.Switch))
		}
		for _, e := range blk.Succs {
			fmt.Fprintf(&sb, " ->b%d:%s", e.To, e.Kind)
			if e.Back {
				sb.WriteString("(back)")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
