package detectors

import (
	"fmt"

	"memsast/internal/core"
)

// BoundsDetector 数组/指针越界检测器
// 下标区间的有限端越过数组大小（>= size 或 < 0）时报告 MaybeOOB；
// 无法确定的下标保持 Unknown，不报告也不视为安全
type BoundsDetector struct {
	*core.BaseDetector
}

// NewBoundsDetector 创建越界检测器
func NewBoundsDetector() *BoundsDetector {
	return &BoundsDetector{
		BaseDetector: core.NewBaseDetector(
			"bounds",
			"Reports array or pointer indexing whose index range reaches past the known size",
		),
	}
}

// Rules 产生的规则
func (d *BoundsDetector) Rules() []string {
	return []string{core.RuleMaybeOOB}
}

// Run 执行检测
func (d *BoundsDetector) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	var findings []core.Finding
	for _, ev := range ctx.Events(core.EventIndex) {
		if ev.Bounds != core.BoundsMaybeOOB {
			continue
		}
		confidence := core.ConfidenceMedium
		if ev.Index.Lo >= ev.Size || ev.Index.Hi < 0 {
			confidence = core.ConfidenceHigh
		}
		cwe := core.CWE125
		access := "read"
		if ev.Write {
			cwe = core.CWE787
			access = "write"
		}
		dim := ""
		if ev.Dim > 0 {
			dim = fmt.Sprintf(" (dimension %d)", ev.Dim+1)
		}
		msg := fmt.Sprintf("%s of '%s' may be out of bounds: index range %s, size of '%s'%s is %d",
			access, ev.Expr, ev.Index, ev.Var.Name, dim, ev.Size)
		findings = append(findings, d.FromEvent(ctx, core.RuleMaybeOOB, ev, msg, confidence, core.SeverityHigh, cwe))
	}
	return findings, nil
}
