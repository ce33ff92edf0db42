package core

import (
	"fmt"
)

// AnalysisContext 提供检测器所需的上下文：一个函数的全部分析结果
type AnalysisContext struct {
	Unit     *TranslationUnit
	Function *Function
	Symbols  *SymbolTable
	CFG      *CFG
	Result   *Result
}

// Events 返回指定类型的候选事件
func (ctx *AnalysisContext) Events(kind EventKind) []Event {
	if ctx.Result == nil {
		return nil
	}
	var out []Event
	for _, ev := range ctx.Result.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// FilePath 当前文件
func (ctx *AnalysisContext) FilePath() string {
	if ctx.Function != nil && ctx.Function.File != "" {
		return ctx.Function.File
	}
	if ctx.Unit != nil {
		return ctx.Unit.File
	}
	return ""
}

// FunctionName 当前函数名
func (ctx *AnalysisContext) FunctionName() string {
	if ctx.Function == nil {
		return ""
	}
	return ctx.Function.Name
}

// Detector 在一个函数的分析结果上运行，只读 AnalysisContext
type Detector interface {
	Name() string
	Description() string
	// Run 返回该函数上的 Finding，错误不影响其他检测器
	Run(ctx *AnalysisContext) ([]Finding, error)
}

// BaseDetector 嵌入到具体检测器中，提供名称与 Finding 构造
type BaseDetector struct {
	name        string
	description string
}

func NewBaseDetector(name, description string) *BaseDetector {
	return &BaseDetector{name: name, description: description}
}

func (d *BaseDetector) Name() string        { return d.name }
func (d *BaseDetector) Description() string { return d.description }

// FromEvent 以事件位置与状态快照构造一个缺陷 Finding
func (d *BaseDetector) FromEvent(ctx *AnalysisContext, rule string, ev Event, message, confidence, severity, cwe string) Finding {
	return Finding{
		RuleID:     rule,
		Kind:       KindDefect,
		Severity:   severity,
		Confidence: confidence,
		CWE:        cwe,
		File:       ctx.FilePath(),
		Function:   ctx.FunctionName(),
		Line:       ev.Pos.Line,
		Column:     ev.Pos.Column,
		Message:    message,
		Snapshot:   ev.Snapshot,
	}
}

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

const (
	CWE125 = "CWE-125" // 越界读
	CWE415 = "CWE-415"
	CWE416 = "CWE-416"
	CWE476 = "CWE-476"
	CWE787 = "CWE-787" // 越界写
)

// DetectorError 记录出错的检测器名称
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }
