package detectors

import (
	"fmt"

	"memsast/internal/core"
)

// NullDereferenceDetector 空指针解引用检测器，只报告状态确定为 Null 的指针
type NullDereferenceDetector struct {
	*core.BaseDetector
}

// NewNullDereferenceDetector 创建空指针解引用检测器
func NewNullDereferenceDetector() *NullDereferenceDetector {
	return &NullDereferenceDetector{
		BaseDetector: core.NewBaseDetector(
			"null-dereference",
			"Reports dereferences of a pointer whose status is definitely NULL",
		),
	}
}

// Rules 产生的规则
func (d *NullDereferenceDetector) Rules() []string {
	return []string{core.RuleNullDereference}
}

// Run 执行检测
func (d *NullDereferenceDetector) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	var findings []core.Finding
	for _, ev := range ctx.Events(core.EventDeref) {
		if ev.Status.Kind != core.PtrNull {
			continue
		}
		via := fmt.Sprintf("'%s'", ev.Expr)
		if ev.Callee != "" {
			via = "call to " + ev.Callee
		}
		findings = append(findings, d.FromEvent(ctx, core.RuleNullDereference, ev,
			fmt.Sprintf("%s dereferences '%s', which is NULL here", via, ev.Var.Name),
			core.ConfidenceHigh, core.SeverityHigh, core.CWE476))
	}
	return findings, nil
}
