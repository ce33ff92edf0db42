package report

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"memsast/internal/core"
)

// SARIFWriter SARIF 2.1.0 报告写入器
type SARIFWriter struct {
	writer  io.Writer
	pretty  bool
	version string
}

// SARIFOption SARIF 选项
type SARIFOption func(*SARIFWriter)

// WithPrettySARIF 启用美化 JSON 输出
func WithPrettySARIF() SARIFOption {
	return func(w *SARIFWriter) {
		w.pretty = true
	}
}

// WithSARIFToolVersion 设置工具版本
func WithSARIFToolVersion(version string) SARIFOption {
	return func(w *SARIFWriter) {
		w.version = version
	}
}

// NewSARIFWriter 创建新的 SARIF 写入器
func NewSARIFWriter(writer io.Writer, options ...SARIFOption) *SARIFWriter {
	w := &SARIFWriter{
		writer:  writer,
		version: "dev",
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// Write 生成并写入 SARIF 报告
func (w *SARIFWriter) Write(result *ScanResult) error {
	report, err := w.generateSARIFReport(result)
	if err != nil {
		return err
	}
	if w.pretty {
		return report.PrettyWrite(w.writer)
	}
	return report.Write(w.writer)
}

// generateSARIFReport 生成 SARIF 报告：每个规则 ID 对应一条 rule，结果按收集顺序输出
func (w *SARIFWriter) generateSARIFReport(result *ScanResult) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	version := w.version
	run.Tool.Driver.Version = &version

	rules := make(map[string]bool)
	for _, f := range result.Findings() {
		level := sarifLevel(f)
		if !rules[f.RuleID] {
			rules[f.RuleID] = true
			run.AddRule(f.RuleID).
				WithDescription(ruleDescription(f.RuleID)).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})
		}

		region := sarif.NewRegion().WithStartLine(max(f.Line, 1))
		if f.Column > 0 {
			region = region.WithStartColumn(f.Column)
		}
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.File)).
				WithRegion(region),
		)

		res := sarif.NewRuleResult(f.RuleID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(level).
			WithLocations([]*sarif.Location{location})
		res.PropertyBag = *sarif.NewPropertyBag()
		res.Add("runId", result.RunID)
		res.Add("kind", string(f.Kind))
		res.Add("severity", f.Severity)
		res.Add("confidence", f.Confidence)
		if f.CWE != "" {
			res.Add("cwe", f.CWE)
		}
		if f.Function != "" {
			res.Add("function", f.Function)
		}
		run.AddResult(res)
	}

	report.AddRun(run)
	return report, nil
}

// sarifLevel 映射严重性到 SARIF 级别；分析告警一律为 note
func sarifLevel(f core.Finding) string {
	if f.Kind == core.KindAnalysisWarning {
		return "note"
	}
	switch f.Severity {
	case core.SeverityCritical, core.SeverityHigh:
		return "error"
	case core.SeverityMedium:
		return "warning"
	case core.SeverityLow:
		return "note"
	default:
		return "warning"
	}
}

var ruleDescriptions = map[string]string{
	core.RuleMaybeOOB:             "Array or pointer index may fall outside the allocated size",
	core.RuleUseAfterFree:         "Pointer is dereferenced after the memory it points to was freed",
	core.RuleDoubleFree:           "Pointer is freed while its status is already Freed",
	core.RuleNullDereference:      "Pointer is dereferenced while it is NULL",
	core.RuleDuplicateDeclaration: "Name declared twice in the same scope",
	core.RuleUndeclaredSymbol:     "Identifier not declared in any enclosing scope",
	core.RuleUnsupportedConstruct: "Construct the checker cannot model; affected variables become Unknown",
	core.RuleAnalysisTimedOut:     "Function analysis did not finish within its limits",
	core.RuleInputError:           "Input file could not be read or parsed",
}

func ruleDescription(rule string) string {
	if d, ok := ruleDescriptions[rule]; ok {
		return d
	}
	return rule
}
