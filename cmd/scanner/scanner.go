package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"memsast/internal/config"
	"memsast/internal/core"
	"memsast/internal/detectors"
	"memsast/internal/report"
)

// Scanner 主扫描器：发现文件、运行分析、收集结果
type Scanner struct {
	cfg      *config.Config
	analyzer *core.Analyzer
	logger   hclog.Logger
}

// NewScanner 按配置创建扫描器，被禁用的规则对应的检测器不会运行
func NewScanner(cfg *config.Config, logger hclog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	for _, name := range cfg.Rules.Disabled {
		if !detectors.KnownName(name) {
			return nil, fmt.Errorf("unknown rule or detector %q", name)
		}
	}
	ds := detectors.Select(detectors.Default(), cfg.Rules.Disabled)
	return &Scanner{
		cfg:      cfg,
		analyzer: core.NewAnalyzer(cfg.AnalyzerConfig(), ds, logger),
		logger:   logger.Named("scanner"),
	}, nil
}

// DetectorNames 已启用检测器的名称
func (s *Scanner) DetectorNames() []string {
	ds := s.analyzer.Detectors()
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name())
	}
	return names
}

// Scan 扫描文件与目录
func (s *Scanner) Scan(ctx context.Context, paths []string) (*report.ScanResult, error) {
	files, err := core.DiscoverFiles(paths, s.cfg.DiscoveryOptions())
	if err != nil {
		return nil, err
	}
	s.logger.Info("discovered source files", "count", len(files))
	if len(files) == 0 {
		s.logger.Warn("no C source files found", "paths", paths)
	}

	out := s.analyzer.AnalyzeFiles(ctx, files)
	result := report.NewScanResult(out, s.DetectorNames(), report.CollectOptions{
		MinSeverity:   s.cfg.Rules.MinSeverity,
		DisabledRules: s.cfg.Rules.Disabled,
	})
	s.logger.Info("scan finished",
		"run_id", result.RunID,
		"files", result.FilesScanned,
		"functions", result.Functions,
		"findings", result.Len(),
		"duration", result.Duration)
	s.logStats()
	return result, nil
}

// logStats 在 debug 级别输出检测器耗时与最慢的函数
func (s *Scanner) logStats() {
	if !s.logger.IsDebug() {
		return
	}
	stats := s.analyzer.Stats()
	s.logger.Debug("analysis stats",
		"functions", stats.Functions,
		"iterations", stats.Iterations,
		"timed_out", stats.TimedOut,
		"panics", stats.Panics)

	names := maps.Keys(stats.DetectorTime)
	slices.Sort(names)
	for _, name := range names {
		s.logger.Debug("detector timing", "detector", name, "total", stats.DetectorTime[name].Round(time.Microsecond))
	}
	for _, ft := range stats.Slowest {
		s.logger.Debug("slow function", "file", ft.File, "function", ft.Function,
			"duration", ft.Duration.Round(time.Microsecond), "iterations", ft.Iterations)
	}
}
