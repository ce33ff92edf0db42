package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"memsast/internal/core"
)

// Config memsast 的 YAML 配置
type Config struct {
	Analysis Analysis `yaml:"analysis"`
	Scan     Scan     `yaml:"scan"`
	Rules    Rules    `yaml:"rules"`
	Output   Output   `yaml:"output"`
	Logger   Logger   `yaml:"logger"`
}

// Analysis 分析引擎参数
type Analysis struct {
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxIterations int           `yaml:"max_iterations"`
	WidenDelay    int           `yaml:"widen_delay"`
	// 额外的分配/释放/不返回函数，与内建列表合并
	AllocFuncs    []string `yaml:"alloc_funcs"`
	FreeFuncs     []string `yaml:"free_funcs"`
	NoReturnFuncs []string `yaml:"noreturn_funcs"`
}

// Scan 文件发现参数
type Scan struct {
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	ExcludedDirs []string `yaml:"excluded_dirs"`
}

// Rules 规则开关
type Rules struct {
	Disabled    []string `yaml:"disabled"`
	MinSeverity string   `yaml:"min_severity"`
}

// Output 报告输出
type Output struct {
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	File   string `yaml:"file"`
	Pretty bool   `yaml:"pretty"`
	Color  bool   `yaml:"color"`
}

// Logger 日志参数
type Logger struct {
	Level           string `yaml:"level"`
	JSONFormat      bool   `yaml:"json_format"`
	DisableTime     bool   `yaml:"disable_time"`
	IncludeLocation bool   `yaml:"include_location"`
}

// Default 默认配置
func Default() *Config {
	tc := core.DefaultTrackerConfig()
	return &Config{
		Analysis: Analysis{
			Workers:       runtime.NumCPU(),
			Timeout:       10 * time.Second,
			MaxIterations: tc.MaxIterations,
			WidenDelay:    tc.WidenDelay,
		},
		Output: Output{
			Format: "text",
			Color:  true,
		},
		Logger: Logger{
			Level:       "warn",
			DisableTime: true,
		},
	}
}

// ValidateConfigPath 检查配置路径是普通文件
func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

// Load 读取配置文件，未出现的字段保留默认值；path 为空时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := ValidateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// AnalyzerConfig 转换为分析器配置
func (c *Config) AnalyzerConfig() core.AnalyzerConfig {
	ac := core.DefaultAnalyzerConfig()
	ac.Workers = c.Analysis.Workers
	ac.Timeout = c.Analysis.Timeout
	ac.Tracker.MaxIterations = c.Analysis.MaxIterations
	ac.Tracker.WidenDelay = c.Analysis.WidenDelay
	ac.Tracker.AllocFuncs = c.Analysis.AllocFuncs
	ac.Tracker.FreeFuncs = c.Analysis.FreeFuncs
	if len(c.Analysis.NoReturnFuncs) > 0 {
		ac.NoReturn = append(append([]string(nil), core.DefaultNoReturn...), c.Analysis.NoReturnFuncs...)
	}
	return ac
}

// DiscoveryOptions 转换为文件发现参数
func (c *Config) DiscoveryOptions() core.DiscoveryOptions {
	opts := core.DiscoveryOptions{
		Include: c.Scan.Include,
		Exclude: c.Scan.Exclude,
	}
	if len(c.Scan.ExcludedDirs) > 0 {
		opts.ExcludedDirs = core.DefaultExcludedDirs()
		for _, d := range c.Scan.ExcludedDirs {
			opts.ExcludedDirs[d] = true
		}
	}
	return opts
}
