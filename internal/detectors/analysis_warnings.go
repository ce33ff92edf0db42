package detectors

import (
	"fmt"

	"memsast/internal/core"
)

// AnalysisWarningDetector 把符号表与前端遇到的问题转为 AnalysisWarning
type AnalysisWarningDetector struct {
	*core.BaseDetector
}

// NewAnalysisWarningDetector 创建告警检测器
func NewAnalysisWarningDetector() *AnalysisWarningDetector {
	return &AnalysisWarningDetector{
		BaseDetector: core.NewBaseDetector(
			"analysis-warnings",
			"Reports duplicate declarations, undeclared symbols and constructs the checker cannot model",
		),
	}
}

// Rules 产生的规则
func (d *AnalysisWarningDetector) Rules() []string {
	return []string{core.RuleDuplicateDeclaration, core.RuleUndeclaredSymbol, core.RuleUnsupportedConstruct}
}

// Run 执行检测
func (d *AnalysisWarningDetector) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	var findings []core.Finding
	file, fn := ctx.FilePath(), ctx.FunctionName()

	if ctx.Symbols != nil {
		for _, diag := range ctx.Symbols.Diagnostics {
			// 全局作用域的重复声明在每个函数里都会出现，只在第一个函数中报告
			if diag.Rule == core.RuleDuplicateDeclaration && !d.inFunction(ctx, diag.Pos) && !d.firstFunction(ctx) {
				continue
			}
			findings = append(findings, core.NewWarning(diag.Rule, file, fn, diag.Pos, diag.Message))
		}
	}

	if ctx.CFG != nil {
		for _, blk := range ctx.CFG.Blocks {
			for _, s := range blk.Stmts {
				u, ok := s.(*core.UnsupportedStmt)
				if !ok {
					continue
				}
				findings = append(findings, core.NewWarning(core.RuleUnsupportedConstruct, file, fn, u.Pos,
					fmt.Sprintf("unsupported construct '%s' (%s); variables it mentions are treated as Unknown", u.Kind, u.Text)))
			}
		}
	}
	return findings, nil
}

func (d *AnalysisWarningDetector) inFunction(ctx *core.AnalysisContext, pos core.Pos) bool {
	return ctx.Function != nil && pos.Line >= ctx.Function.Pos.Line
}

func (d *AnalysisWarningDetector) firstFunction(ctx *core.AnalysisContext) bool {
	return ctx.Unit == nil || len(ctx.Unit.Functions) == 0 || ctx.Unit.Functions[0] == ctx.Function
}
