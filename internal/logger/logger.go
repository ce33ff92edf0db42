package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"memsast/internal/config"
)

// EnvLogLevel 覆盖配置中日志级别的环境变量
const EnvLogLevel = "MEMSAST_LOG_LEVEL"

// NewLogger 按配置创建 logger，输出到 stderr，stdout 留给报告
func NewLogger(cfg *config.Config, name string) hclog.Logger {
	return NewLoggerWithOutput(cfg, name, os.Stderr)
}

// NewLoggerWithOutput 同 NewLogger，输出到指定 writer
func NewLoggerWithOutput(cfg *config.Config, name string, out io.Writer) hclog.Logger {
	if cfg == nil {
		cfg = config.Default()
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           determineLogLevel(cfg),
		Output:          out,
		JSONFormat:      cfg.Logger.JSONFormat,
		DisableTime:     cfg.Logger.DisableTime,
		IncludeLocation: cfg.Logger.IncludeLocation,
	})
}

// determineLogLevel 环境变量优先，其次是配置，默认 warn
func determineLogLevel(cfg *config.Config) hclog.Level {
	if env := os.Getenv(EnvLogLevel); env != "" {
		return ParseLevel(env)
	}
	if cfg.Logger.Level == "" {
		return hclog.Warn
	}
	return ParseLevel(cfg.Logger.Level)
}

// ParseLevel 解析级别名，无法识别时为 warn
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Warn
	}
	return l
}
