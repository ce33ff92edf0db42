package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"memsast/internal/core"
)

// TextWriter 文本格式报告写入器，每条结果一行
type TextWriter struct {
	writer    io.Writer
	verbose   bool
	showColor bool
	showStats bool
}

// TextOption 文本选项
type TextOption func(*TextWriter)

// WithVerbose 额外输出函数名与状态快照
func WithVerbose() TextOption {
	return func(w *TextWriter) {
		w.verbose = true
	}
}

// WithColor 启用彩色输出
func WithColor() TextOption {
	return func(w *TextWriter) {
		w.showColor = true
	}
}

// WithoutStats 禁用统计信息
func WithoutStats() TextOption {
	return func(w *TextWriter) {
		w.showStats = false
	}
}

// NewTextWriter 创建新的文本写入器
func NewTextWriter(writer io.Writer, options ...TextOption) *TextWriter {
	w := &TextWriter{
		writer:    writer,
		showStats: true,
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// isTerminal 写入目标是否为终端
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiBold   = "\x1b[1m"
)

// Write 生成并写入文本报告
func (w *TextWriter) Write(result *ScanResult) error {
	var b strings.Builder
	for _, f := range result.Findings() {
		w.writeFinding(&b, f)
	}
	if w.showStats {
		w.writeSummary(&b, result)
	}
	_, err := io.WriteString(w.writer, b.String())
	return err
}

// writeFinding file:line:col: severity [RuleID] message (confidence, CWE)
func (w *TextWriter) writeFinding(b *strings.Builder, f core.Finding) {
	severity := f.Severity
	if w.showColor {
		severity = w.colorize(f, severity)
	}
	fmt.Fprintf(b, "%s: %s [%s] %s", f.Location(), severity, f.RuleID, f.Message)
	extra := []string{"confidence " + f.Confidence}
	if f.CWE != "" {
		extra = append(extra, f.CWE)
	}
	fmt.Fprintf(b, " (%s)\n", strings.Join(extra, ", "))

	if w.verbose {
		if f.Function != "" {
			fmt.Fprintf(b, "    in function %s\n", f.Function)
		}
		if len(f.Snapshot) > 0 {
			fmt.Fprintf(b, "    state: %s\n", formatSnapshot(f.Snapshot))
		}
	}
}

func (w *TextWriter) colorize(f core.Finding, s string) string {
	if f.Kind == core.KindAnalysisWarning {
		return ansiCyan + s + ansiReset
	}
	switch f.Severity {
	case core.SeverityCritical:
		return ansiBold + ansiRed + s + ansiReset
	case core.SeverityHigh:
		return ansiRed + s + ansiReset
	default:
		return ansiYellow + s + ansiReset
	}
}

// writeSummary 写入统计信息
func (w *TextWriter) writeSummary(b *strings.Builder, result *ScanResult) {
	if result.Len() == 0 {
		fmt.Fprintf(b, "No findings. %d file(s), %d function(s) analysed in %s.\n",
			result.FilesScanned, result.Functions, result.Duration)
		return
	}
	fmt.Fprintf(b, "\n%d finding(s): %d defect(s), %d analysis warning(s). %d file(s), %d function(s) analysed in %s.\n",
		result.Len(), result.Defects(), result.Warnings(), result.FilesScanned, result.Functions, result.Duration)

	if w.verbose {
		byRule := result.CountBy(func(f core.Finding) string { return f.RuleID })
		for _, rule := range sortedKeys(byRule) {
			fmt.Fprintf(b, "  %s: %d\n", rule, byRule[rule])
		}
	}
}

func formatSnapshot(snapshot map[string]string) string {
	parts := make([]string, 0, len(snapshot))
	for _, name := range sortedKeys(snapshot) {
		parts = append(parts, name+"="+snapshot[name])
	}
	return strings.Join(parts, " ")
}
