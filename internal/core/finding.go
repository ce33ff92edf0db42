package core

import (
	"fmt"
)

// FindingKind 区分真实缺陷与分析过程本身的告警
type FindingKind string

const (
	KindDefect          FindingKind = "Defect"
	KindAnalysisWarning FindingKind = "AnalysisWarning"
)

// 规则 ID
const (
	RuleMaybeOOB             = "MaybeOOB"
	RuleUseAfterFree         = "UseAfterFree"
	RuleDoubleFree           = "DoubleFree"
	RuleNullDereference      = "NullDereference"
	RuleDuplicateDeclaration = "DuplicateDeclaration"
	RuleUndeclaredSymbol     = "UndeclaredSymbol"
	RuleUnsupportedConstruct = "UnsupportedConstruct"
	RuleAnalysisTimedOut     = "AnalysisTimedOut"
	RuleInputError           = "InputError"
)

// Finding 一条检测结果，创建后不再修改
type Finding struct {
	RuleID     string            `json:"ruleId"`
	Kind       FindingKind       `json:"kind"`
	Severity   string            `json:"severity"`
	Confidence string            `json:"confidence"`
	CWE        string            `json:"cwe,omitempty"`
	File       string            `json:"file"`
	Function   string            `json:"function,omitempty"`
	Line       int               `json:"line"`
	Column     int               `json:"column"`
	Message    string            `json:"message"`
	Snapshot   map[string]string `json:"snapshot,omitempty"`
}

// Location 文件:行:列
func (f Finding) Location() string {
	return fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
}

// severityRank 严重级别排序，数值越大越严重
var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank 返回严重级别的序数，未知级别为 0
func SeverityRank(severity string) int {
	return severityRank[severity]
}

// ValidSeverity 是否为已知的严重级别
func ValidSeverity(severity string) bool {
	_, ok := severityRank[severity]
	return ok
}

// NewWarning 创建分析告警
func NewWarning(rule, file, function string, pos Pos, message string) Finding {
	sev := SeverityLow
	if rule == RuleAnalysisTimedOut || rule == RuleInputError {
		sev = SeverityMedium
	}
	return Finding{
		RuleID:     rule,
		Kind:       KindAnalysisWarning,
		Severity:   sev,
		Confidence: ConfidenceHigh,
		File:       file,
		Function:   function,
		Line:       pos.Line,
		Column:     pos.Column,
		Message:    message,
	}
}
