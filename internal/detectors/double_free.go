package detectors

import (
	"fmt"

	"memsast/internal/core"
)

// DoubleFreeDetector Double Free 检测器
// 在释放事件上检查指针此前的状态：
//  1. 已是 Freed：确定的重复释放
//  2. Freed 与 Live 汇合后的冲突状态：某条路径上已被释放
type DoubleFreeDetector struct {
	*core.BaseDetector
}

// NewDoubleFreeDetector 创建 Double Free 检测器
func NewDoubleFreeDetector() *DoubleFreeDetector {
	return &DoubleFreeDetector{
		BaseDetector: core.NewBaseDetector(
			"double-free",
			"Reports a free of a pointer whose status is already Freed",
		),
	}
}

// Rules 产生的规则
func (d *DoubleFreeDetector) Rules() []string {
	return []string{core.RuleDoubleFree}
}

// Run 执行检测
func (d *DoubleFreeDetector) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	var findings []core.Finding
	for _, ev := range ctx.Events(core.EventFree) {
		name := ev.Var.Name
		switch {
		case ev.Status.Kind == core.PtrFreed:
			findings = append(findings, d.FromEvent(ctx, core.RuleDoubleFree, ev,
				fmt.Sprintf("'%s' is freed again by %s after it was already freed", name, ev.Callee),
				core.ConfidenceHigh, core.SeverityHigh, core.CWE415))
		case ev.Status.Conflict():
			findings = append(findings, d.FromEvent(ctx, core.RuleDoubleFree, ev,
				fmt.Sprintf("'%s' may already have been freed on some path reaching %s", name, ev.Callee),
				core.ConfidenceMedium, core.SeverityHigh, core.CWE415))
		}
	}
	return findings, nil
}
