package detectors

import (
	"fmt"

	"memsast/internal/core"
)

// UseAfterFreeDetector Use-After-Free 检测器
type UseAfterFreeDetector struct {
	*core.BaseDetector
}

// NewUseAfterFreeDetector 创建 UAF 检测器
func NewUseAfterFreeDetector() *UseAfterFreeDetector {
	return &UseAfterFreeDetector{
		BaseDetector: core.NewBaseDetector(
			"use-after-free",
			"Reports dereferences of a pointer whose status is Freed",
		),
	}
}

// Rules 产生的规则
func (d *UseAfterFreeDetector) Rules() []string {
	return []string{core.RuleUseAfterFree}
}

// Run 执行检测
func (d *UseAfterFreeDetector) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	var findings []core.Finding
	for _, ev := range ctx.Events(core.EventDeref) {
		switch {
		case ev.Status.Kind == core.PtrFreed:
			findings = append(findings, d.FromEvent(ctx, core.RuleUseAfterFree, ev,
				fmt.Sprintf("%s uses '%s' after it was freed", d.describe(ev), ev.Var.Name),
				core.ConfidenceHigh, core.SeverityCritical, core.CWE416))
		case ev.Status.Conflict():
			findings = append(findings, d.FromEvent(ctx, core.RuleUseAfterFree, ev,
				fmt.Sprintf("%s uses '%s', which may have been freed on some path", d.describe(ev), ev.Var.Name),
				core.ConfidenceMedium, core.SeverityHigh, core.CWE416))
		}
	}
	return findings, nil
}

func (d *UseAfterFreeDetector) describe(ev core.Event) string {
	if ev.Callee != "" {
		return fmt.Sprintf("call to %s", ev.Callee)
	}
	if ev.Write {
		return fmt.Sprintf("write through '%s'", ev.Expr)
	}
	return fmt.Sprintf("read of '%s'", ev.Expr)
}
