package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

var (
	// ErrTimedOut 分析超出时间限制
	ErrTimedOut = errors.New("analysis timed out")
	// ErrNotConverged 工作表迭代次数超出上限
	ErrNotConverged = errors.New("fixed point not reached within iteration limit")
)

// EventKind 状态跟踪过程中产生的候选事件类型
type EventKind int

const (
	// EventDeref 通过指针访问内存（*p、p->f、p[i]、传给会读写内存的库函数）
	EventDeref EventKind = iota
	// EventFree 释放调用
	EventFree
	// EventIndex 下标访问或 *(p ± k) 及其边界结论
	EventIndex
)

func (k EventKind) String() string {
	switch k {
	case EventFree:
		return "free"
	case EventIndex:
		return "index"
	default:
		return "deref"
	}
}

// Event 候选事件，记录发生时（操作之前）的抽象状态
type Event struct {
	Kind  EventKind
	Pos   Pos
	Block int
	Var   *Variable
	// Expr 访问表达式的源码形式
	Expr string
	// Callee 事件来自函数调用时的被调函数名
	Callee string
	// Write 访问是否为写入
	Write  bool
	Status PointerStatus
	// 以下仅对 EventIndex 有意义
	Index  Interval
	Size   int64
	Dim    int
	Bounds BoundsFact

	Snapshot map[string]string
}

// TrackerConfig 状态跟踪器配置
type TrackerConfig struct {
	// MaxIterations 工作表弹出次数上限，0 表示不限
	MaxIterations int
	// WidenDelay 循环头被访问多少次后开始加宽
	WidenDelay int
	AllocFuncs []string
	FreeFuncs  []string
}

// DefaultTrackerConfig 默认配置
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{MaxIterations: 10000, WidenDelay: 2}
}

// Result 一个函数的分析结果
type Result struct {
	CFG     *CFG
	Symbols *SymbolTable
	// In/Out 每个块入口与出口的不动点状态，不可达为 nil
	In         []*AbstractState
	Out        []*AbstractState
	Events     []Event
	Iterations int
}

// Tracker 抽象状态跟踪器，可被多个 goroutine 共享（自身无可变状态）
type Tracker struct {
	config     TrackerConfig
	allocFuncs map[string]bool
	freeFuncs  map[string]bool
	logger     hclog.Logger
}

// NewTracker 创建状态跟踪器
func NewTracker(config TrackerConfig, logger hclog.Logger) *Tracker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	t := &Tracker{
		config:     config,
		allocFuncs: make(map[string]bool),
		freeFuncs:  map[string]bool{"free": true},
		logger:     logger.Named("tracker"),
	}
	for _, f := range config.AllocFuncs {
		t.allocFuncs[f] = true
	}
	for _, f := range config.FreeFuncs {
		t.freeFuncs[f] = true
	}
	return t
}

// Run 在控制流图上做工作表迭代直到不动点，下降迭代收紧加宽后的区间，
// 然后从稳定的入口状态把每个可达块重放一次以生成事件。seed 非空时作为各块的初始入口状态
func (t *Tracker) Run(ctx context.Context, g *CFG, symbols *SymbolTable, seed []*AbstractState) (*Result, error) {
	r := &run{t: t, g: g, symbols: symbols}
	n := len(g.Blocks)
	in := make([]*AbstractState, n)
	queued := make([]bool, n)
	visits := make([]int, n)

	if len(seed) == n {
		for i, s := range seed {
			if s != nil && g.Reachable(i) {
				in[i] = s.Clone()
				queued[i] = true
			}
		}
	}
	if in[g.Entry.ID] == nil {
		in[g.Entry.ID] = r.entryState()
		queued[g.Entry.ID] = true
	}
	start := in[g.Entry.ID].Clone()

	iterations := 0
	for {
		id := r.pop(queued)
		if id < 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s after %d iterations: %v", ErrTimedOut, g.Function, iterations, err)
		}
		iterations++
		if t.config.MaxIterations > 0 && iterations > t.config.MaxIterations {
			return nil, fmt.Errorf("%w: %s after %d iterations", ErrNotConverged, g.Function, iterations-1)
		}

		blk := g.Blocks[id]
		out := r.transferBlock(blk, in[id], nil)
		for _, e := range blk.Succs {
			s := r.refineEdge(out, blk, e)
			if s == nil {
				continue
			}
			old := in[e.To]
			next := old.Join(s)
			if g.LoopHeads[e.To] {
				visits[e.To]++
				if visits[e.To] > t.config.WidenDelay {
					next = old.Widen(next)
				}
			}
			if !next.Equal(old) {
				in[e.To] = next
				queued[e.To] = true
			}
		}
	}

	if err := r.narrow(ctx, in, start); err != nil {
		return nil, fmt.Errorf("%w: %s while narrowing: %v", ErrTimedOut, g.Function, err)
	}

	res := &Result{
		CFG:        g,
		Symbols:    symbols,
		In:         in,
		Out:        make([]*AbstractState, n),
		Iterations: iterations,
	}
	for _, blk := range g.ReachableBlocks() {
		if in[blk.ID] == nil {
			continue
		}
		sink := &eventSink{block: blk.ID}
		res.Out[blk.ID] = r.transferBlock(blk, in[blk.ID], sink)
		res.Events = append(res.Events, sink.events...)
	}
	t.logger.Trace("fixed point reached", "function", g.Function, "blocks", n, "iterations", iterations, "events", len(res.Events))
	return res, nil
}

// run 单次分析的内部状态
type run struct {
	t       *Tracker
	g       *CFG
	symbols *SymbolTable
}

// narrowingRounds 加宽后下降迭代的最多轮数
const narrowingRounds = 3

// narrow 从加宽得到的不动点出发做下降迭代：每轮用前驱出口状态重新计算
// 全部入口状态，不再变化或达到轮数上限时停止。结果仍是不动点的上界，
// 循环条件给出的界（包括 do/while 的尾部条件）由此回到循环头
func (r *run) narrow(ctx context.Context, in []*AbstractState, start *AbstractState) error {
	entry := r.g.Entry.ID
	blocks := r.g.ReachableBlocks()
	for round := 0; round < narrowingRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := make([]*AbstractState, len(in))
		next[entry] = start
		for _, blk := range blocks {
			if in[blk.ID] == nil {
				continue
			}
			out := r.transferBlock(blk, in[blk.ID], nil)
			for _, e := range blk.Succs {
				if s := r.refineEdge(out, blk, e); s != nil {
					next[e.To] = next[e.To].Join(s)
				}
			}
		}
		changed := false
		for id := range in {
			if !next[id].Equal(in[id]) {
				changed = true
				break
			}
		}
		if !changed {
			return nil
		}
		copy(in, next)
	}
	return nil
}

// pop 取出广度优先序号最小的待处理块
func (r *run) pop(queued []bool) int {
	best := -1
	for id, q := range queued {
		if !q {
			continue
		}
		if best < 0 || r.g.Rank(id) < r.g.Rank(best) {
			best = id
		}
	}
	if best >= 0 {
		queued[best] = false
	}
	return best
}

// entryState 入口状态：全部变量 Unknown，已知大小的数组为 Live
func (r *run) entryState() *AbstractState {
	st := NewAbstractState()
	for _, v := range r.symbols.Variables() {
		if v.IsArray() && v.Size >= 0 && (v.IsGlobal || v.IsParam) {
			st.SetPtr(v.ID, LiveStatus(v.Size))
		}
	}
	return st
}

type eventSink struct {
	block  int
	events []Event
}
