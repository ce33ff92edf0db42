package report

import (
	"encoding/json"
	"fmt"
	"io"

	"memsast/internal/core"
)

// JSONReport JSON 格式报告
type JSONReport struct {
	RunID    string         `json:"runId"`
	Tool     ToolInfo       `json:"tool"`
	Summary  Summary        `json:"summary"`
	Findings []core.Finding `json:"findings"`
}

// ToolInfo 工具信息
type ToolInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Summary 结果统计摘要
type Summary struct {
	Total         int            `json:"total"`
	Defects       int            `json:"defects"`
	Warnings      int            `json:"warnings"`
	BySeverity    map[string]int `json:"bySeverity"`
	ByRule        map[string]int `json:"byRule"`
	FilesScanned  int            `json:"filesScanned"`
	Functions     int            `json:"functions"`
	Duration      string         `json:"duration"`
	DetectorsUsed []string       `json:"detectorsUsed"`
}

// JSONWriter JSON 报告写入器
type JSONWriter struct {
	writer  io.Writer
	pretty  bool
	version string
}

// JSONOption JSON 选项
type JSONOption func(*JSONWriter)

// WithPrettyJSON 启用美化 JSON 输出
func WithPrettyJSON() JSONOption {
	return func(w *JSONWriter) {
		w.pretty = true
	}
}

// WithJSONToolVersion 设置工具版本
func WithJSONToolVersion(version string) JSONOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter 创建新的 JSON 写入器
func NewJSONWriter(writer io.Writer, options ...JSONOption) *JSONWriter {
	w := &JSONWriter{
		writer:  writer,
		version: "dev",
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// Write 生成并写入报告
func (w *JSONWriter) Write(result *ScanResult) error {
	report := w.generateReport(result)

	var data []byte
	var err error

	if w.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}

	data = append(data, '\n')
	_, err = w.writer.Write(data)
	return err
}

// generateReport 生成报告数据
func (w *JSONWriter) generateReport(result *ScanResult) *JSONReport {
	findings := result.Findings()
	if findings == nil {
		findings = []core.Finding{}
	}
	detectors := result.DetectorsUsed
	if detectors == nil {
		detectors = []string{}
	}
	return &JSONReport{
		RunID: result.RunID,
		Tool: ToolInfo{
			Name:        toolName,
			Version:     w.version,
			Description: toolDescription,
		},
		Summary: Summary{
			Total:         result.Len(),
			Defects:       result.Defects(),
			Warnings:      result.Warnings(),
			BySeverity:    result.CountBy(func(f core.Finding) string { return f.Severity }),
			ByRule:        result.CountBy(func(f core.Finding) string { return f.RuleID }),
			FilesScanned:  result.FilesScanned,
			Functions:     result.Functions,
			Duration:      result.Duration.String(),
			DetectorsUsed: detectors,
		},
		Findings: findings,
	}
}

const (
	toolName        = "memsast"
	toolDescription = "Static memory-safety checker for C sources"
	toolURI         = "https://cwe.mitre.org/data/definitions/1399.html"
)
