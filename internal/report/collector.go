package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"memsast/internal/core"
)

// CollectOptions 结果收集选项
type CollectOptions struct {
	// MinSeverity 低于该级别的结果被丢弃，为空时全部保留
	MinSeverity string
	// DisabledRules 被禁用的规则 ID
	DisabledRules []string
}

// ScanResult 一次运行的最终结果，构建后只读
type ScanResult struct {
	RunID         string
	Duration      time.Duration
	FilesScanned  int
	Functions     int
	DetectorsUsed []string

	findings []core.Finding
}

// NewScanResult 收集、过滤、去重并排序结果
func NewScanResult(out *core.Output, detectors []string, opts CollectOptions) *ScanResult {
	r := &ScanResult{
		RunID:         uuid.New().String(),
		DetectorsUsed: append([]string(nil), detectors...),
	}
	if out == nil {
		return r
	}
	r.Duration = out.Duration
	r.FilesScanned = out.Files
	r.Functions = out.Functions
	r.findings = Collect(out.Findings, opts)
	return r
}

// Collect 过滤后按 (file, line, column, ruleId) 稳定排序，相同位置、规则与消息的结果只保留一条
func Collect(findings []core.Finding, opts CollectOptions) []core.Finding {
	disabled := make(map[string]bool, len(opts.DisabledRules))
	for _, r := range opts.DisabledRules {
		disabled[r] = true
	}
	minRank := core.SeverityRank(opts.MinSeverity)

	out := make([]core.Finding, 0, len(findings))
	for _, f := range findings {
		if disabled[f.RuleID] {
			continue
		}
		if minRank > 0 && core.SeverityRank(f.Severity) < minRank {
			continue
		}
		out = append(out, f)
	}

	slices.SortStableFunc(out, func(a, b core.Finding) bool {
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.RuleID < b.RuleID
	})

	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, f := range out {
		key := fmt.Sprintf("%s\x00%d\x00%d\x00%s\x00%s", f.File, f.Line, f.Column, f.RuleID, f.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, f)
	}
	return deduped
}

// Findings 返回结果的副本
func (r *ScanResult) Findings() []core.Finding {
	return append([]core.Finding(nil), r.findings...)
}

// Len 结果数
func (r *ScanResult) Len() int {
	return len(r.findings)
}

// Defects 缺陷（非分析告警）数量
func (r *ScanResult) Defects() int {
	n := 0
	for _, f := range r.findings {
		if f.Kind == core.KindDefect {
			n++
		}
	}
	return n
}

// Warnings 分析告警数量
func (r *ScanResult) Warnings() int {
	return len(r.findings) - r.Defects()
}

// HasDefects 是否存在缺陷
func (r *ScanResult) HasDefects() bool {
	return r.Defects() > 0
}

// CountBy 按 key 统计
func (r *ScanResult) CountBy(key func(core.Finding) string) map[string]int {
	counts := make(map[string]int)
	for _, f := range r.findings {
		counts[key(f)]++
	}
	return counts
}
