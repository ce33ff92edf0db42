package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// AnalyzerConfig 分析器配置
type AnalyzerConfig struct {
	Tracker TrackerConfig
	// NoReturn 不返回的函数，为空时使用 DefaultNoReturn
	NoReturn []string
	// Timeout 单个函数的分析时限，0 表示不限
	Timeout time.Duration
	// Workers 并发分析的函数数，0 表示 CPU 核数
	Workers int
}

// DefaultAnalyzerConfig 默认配置
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Tracker: DefaultTrackerConfig(),
		Timeout: 10 * time.Second,
		Workers: runtime.NumCPU(),
	}
}

// Analyzer 串起符号表、控制流图、状态跟踪与规则引擎
type Analyzer struct {
	config    AnalyzerConfig
	tracker   *Tracker
	detectors []Detector
	noReturn  map[string]bool
	stats     *Stats
	logger    hclog.Logger
}

// Output 一次分析的原始输出（未排序）
type Output struct {
	Findings  []Finding
	Files     int
	Functions int
	Duration  time.Duration
}

// NewAnalyzer 创建分析器
func NewAnalyzer(config AnalyzerConfig, detectors []Detector, logger hclog.Logger) *Analyzer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	noReturn := config.NoReturn
	if len(noReturn) == 0 {
		noReturn = DefaultNoReturn
	}
	nr := make(map[string]bool, len(noReturn))
	for _, n := range noReturn {
		nr[n] = true
	}
	return &Analyzer{
		config:    config,
		tracker:   NewTracker(config.Tracker, logger),
		detectors: detectors,
		noReturn:  nr,
		stats:     NewStats(),
		logger:    logger.Named("analyzer"),
	}
}

// Detectors 已启用的检测器
func (a *Analyzer) Detectors() []Detector {
	return a.detectors
}

// Stats 分析统计
func (a *Analyzer) Stats() StatsSnapshot {
	return a.stats.Snapshot()
}

// AnalyzeFunction 分析单个函数；任何问题都以 Finding 的形式返回，不会中断调用者
func (a *Analyzer) AnalyzeFunction(ctx context.Context, unit *TranslationUnit, fn *Function) (findings []Finding) {
	logger := a.logger.With("function", fn.Name, "file", fn.File)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.stats.recordPanic()
			logger.Error("analysis panicked", "panic", r)
			findings = []Finding{NewWarning(RuleUnsupportedConstruct, fn.File, fn.Name, fn.Pos,
				fmt.Sprintf("analysis of function '%s' aborted: %v", fn.Name, r))}
		}
	}()

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	symbols := BuildSymbolTable(unit, fn)
	g := BuildCFG(fn, a.noReturn)
	res, err := a.tracker.Run(ctx, g, symbols, nil)
	if err != nil {
		if errors.Is(err, ErrTimedOut) || errors.Is(err, ErrNotConverged) {
			a.stats.recordTimeout()
			logger.Warn("analysis timed out", "error", err)
			return []Finding{NewWarning(RuleAnalysisTimedOut, fn.File, fn.Name, fn.Pos,
				fmt.Sprintf("analysis of function '%s' did not finish: %v", fn.Name, err))}
		}
		return []Finding{NewWarning(RuleUnsupportedConstruct, fn.File, fn.Name, fn.Pos, err.Error())}
	}

	actx := &AnalysisContext{Unit: unit, Function: fn, Symbols: symbols, CFG: g, Result: res}
	for _, d := range a.detectors {
		detStart := time.Now()
		fs, err := d.Run(actx)
		a.stats.recordDetector(d.Name(), time.Since(detStart))
		if err != nil {
			logger.Warn("detector failed", "error", &DetectorError{Detector: d.Name(), Err: err})
			continue
		}
		findings = append(findings, fs...)
	}
	a.stats.recordFunction(FunctionTiming{File: fn.File, Function: fn.Name, Duration: time.Since(start), Iterations: res.Iterations})
	logger.Debug("function analyzed", "blocks", len(g.Blocks), "iterations", res.Iterations, "findings", len(findings))
	return findings
}

// unitWarnings 文件级告警：语法错误
func unitWarnings(unit *TranslationUnit) []Finding {
	var out []Finding
	for _, se := range unit.SyntaxErrors {
		out = append(out, NewWarning(RuleUnsupportedConstruct, unit.File, se.Function, se.Pos,
			fmt.Sprintf("syntax error near '%s'; analysis continues with the remaining code", se.Text)))
	}
	return out
}

// AnalyzeUnits 在工作池上并发分析所有函数，函数之间没有共享的可变状态
func (a *Analyzer) AnalyzeUnits(ctx context.Context, units []*TranslationUnit) []Finding {
	type task struct {
		unit *TranslationUnit
		fn   *Function
	}
	var tasks []task
	var findings []Finding
	for _, u := range units {
		findings = append(findings, unitWarnings(u)...)
		for _, fn := range u.Functions {
			tasks = append(tasks, task{unit: u, fn: fn})
		}
	}

	workers := a.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	perTask := make([][]Finding, len(tasks))
	pool := NewWorkerPool(ctx, workers, workers*2)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range pool.Results() {
			if r.Error != nil {
				a.logger.Warn("job failed", "job", r.JobID, "error", r.Error)
			}
		}
	}()

	for i, t := range tasks {
		i, t := i, t
		job := FuncJob{
			IDValue: fmt.Sprintf("%s:%s", t.unit.File, t.fn.Name),
			Fn: func(ctx context.Context) error {
				perTask[i] = a.AnalyzeFunction(ctx, t.unit, t.fn)
				return nil
			},
		}
		if err := pool.Submit(job); err != nil {
			a.logger.Warn("submit failed", "job", job.IDValue, "error", err)
			break
		}
	}
	pool.Close()
	wg.Wait()

	for _, fs := range perTask {
		findings = append(findings, fs...)
	}
	return findings
}

// AnalyzeFiles 加载并分析文件；无法读取的文件记为 InputError
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string) *Output {
	start := time.Now()
	out := &Output{}
	var units []*TranslationUnit
	for _, p := range paths {
		unit, err := LoadTranslationUnit(ctx, p)
		if err != nil {
			a.logger.Warn("failed to load file", "file", p, "error", err)
			out.Findings = append(out.Findings, NewWarning(RuleInputError, p, "", Pos{}, err.Error()))
			continue
		}
		units = append(units, unit)
		out.Files++
		out.Functions += len(unit.Functions)
	}
	out.Findings = append(out.Findings, a.AnalyzeUnits(ctx, units)...)
	out.Duration = time.Since(start)
	return out
}

// AnalyzeSource 分析内存中的单个源文件
func (a *Analyzer) AnalyzeSource(ctx context.Context, filePath string, source []byte) ([]Finding, error) {
	unit, err := LoadSource(ctx, filePath, source)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeUnits(ctx, []*TranslationUnit{unit}), nil
}
