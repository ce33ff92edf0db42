package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format 报告格式类型
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// Writer 一种输出格式的写入器
type Writer interface {
	Write(result *ScanResult) error
}

// Manager 按格式选择写入器，写到 stdout 或报告文件
type Manager struct {
	format    Format
	outputDir string
	timestamp bool
	filename  string
	pretty    bool
	color     bool
	verbose   bool
	version   string
}

// ManagerOption Manager 的函数式选项
type ManagerOption func(*Manager)

// WithFormat 选择输出格式
func WithFormat(format Format) ManagerOption {
	return func(m *Manager) {
		m.format = format
	}
}

// WithOutputDir 报告文件所在目录
func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.outputDir = dir
	}
}

// WithTimestamp 文件名带上生成时间
func WithTimestamp() ManagerOption {
	return func(m *Manager) {
		m.timestamp = true
	}
}

// WithFilename 覆盖默认的 memsast_report.<格式>
func WithFilename(filename string) ManagerOption {
	return func(m *Manager) {
		m.filename = filename
	}
}

// WithPretty JSON/SARIF 缩进输出
func WithPretty() ManagerOption {
	return func(m *Manager) {
		m.pretty = true
	}
}

// WithTerminalColor 输出到终端时文本报告使用颜色
func WithTerminalColor() ManagerOption {
	return func(m *Manager) {
		m.color = true
	}
}

// WithVerboseText 文本报告附带函数名与状态快照
func WithVerboseText() ManagerOption {
	return func(m *Manager) {
		m.verbose = true
	}
}

// WithToolVersion 报告中的工具版本
func WithToolVersion(version string) ManagerOption {
	return func(m *Manager) {
		m.version = version
	}
}

// NewManager 默认输出 text 到当前目录
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format:    FormatText,
		outputDir: ".",
		version:   "dev",
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// CreateWriter 为 format 构造写到 writer 的写入器
func (m *Manager) CreateWriter(format Format, writer io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		opts := []JSONOption{WithJSONToolVersion(m.version)}
		if m.pretty {
			opts = append(opts, WithPrettyJSON())
		}
		return NewJSONWriter(writer, opts...), nil
	case FormatText:
		var opts []TextOption
		if m.verbose {
			opts = append(opts, WithVerbose())
		}
		if m.color && isTerminal(writer) {
			opts = append(opts, WithColor())
		}
		return NewTextWriter(writer, opts...), nil
	case FormatSARIF:
		opts := []SARIFOption{WithSARIFToolVersion(m.version)}
		if m.pretty {
			opts = append(opts, WithPrettySARIF())
		}
		return NewSARIFWriter(writer, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Render 把单一格式的报告写到 w
func (m *Manager) Render(result *ScanResult, w io.Writer) error {
	if m.format == FormatAll {
		return fmt.Errorf("format %s can only be written to files", m.format)
	}
	writer, err := m.CreateWriter(m.format, w)
	if err != nil {
		return err
	}
	if err := writer.Write(result); err != nil {
		return fmt.Errorf("failed to write %s report: %w", m.format, err)
	}
	return nil
}

// Generate 生成报告文件，返回写出的文件路径
func (m *Manager) Generate(result *ScanResult) ([]string, error) {
	var outputFiles []string

	switch m.format {
	case FormatAll:
		for _, format := range []Format{FormatJSON, FormatText, FormatSARIF} {
			file, err := m.generateSingleFormat(result, format)
			if err != nil {
				return nil, err
			}
			outputFiles = append(outputFiles, file)
		}
	case FormatJSON, FormatText, FormatSARIF:
		file, err := m.generateSingleFormat(result, m.format)
		if err != nil {
			return nil, err
		}
		outputFiles = append(outputFiles, file)
	default:
		return nil, fmt.Errorf("unsupported format: %s", m.format)
	}

	return outputFiles, nil
}

// generateSingleFormat 写出一个报告文件
func (m *Manager) generateSingleFormat(result *ScanResult, format Format) (string, error) {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(m.outputDir, m.generateFilename(format))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer, err := m.CreateWriter(format, file)
	if err != nil {
		return "", err
	}
	if err := writer.Write(result); err != nil {
		return "", fmt.Errorf("failed to write %s report: %w", format, err)
	}
	return filePath, nil
}

// generateFilename 生成文件名；FormatAll 时自定义文件名只作为前缀
func (m *Manager) generateFilename(format Format) string {
	if m.filename != "" {
		if m.format == FormatAll {
			return fmt.Sprintf("%s.%s", strings.TrimSuffix(m.filename, filepath.Ext(m.filename)), format)
		}
		return m.filename
	}

	baseName := "memsast_report"
	if m.timestamp {
		return fmt.Sprintf("%s_%s.%s", baseName, time.Now().Format("20060102_150405"), format)
	}
	return fmt.Sprintf("%s.%s", baseName, format)
}

var formatDescriptions = map[Format]string{
	FormatText:  "one finding per line, grep friendly",
	FormatJSON:  "machine-readable report with summary counts",
	FormatSARIF: "SARIF 2.1.0 for code scanning integrations",
	FormatAll:   "write text, json and sarif report files",
}

// SupportedFormats 按帮助信息中的顺序列出格式
func SupportedFormats() []Format {
	return []Format{FormatText, FormatJSON, FormatSARIF, FormatAll}
}

// FormatDescription 格式的一行说明
func FormatDescription(format Format) string {
	if desc, ok := formatDescriptions[format]; ok {
		return desc
	}
	return "unknown format"
}

// ParseFormat 大小写不敏感，空串视为 text
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	f := Format(strings.ToLower(s))
	if _, ok := formatDescriptions[f]; !ok {
		return "", fmt.Errorf("unsupported format: %s", s)
	}
	return f, nil
}
