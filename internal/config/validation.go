package config

import (
	"fmt"
	"strings"
	"time"

	"memsast/internal/core"
)

var (
	validFormats   = map[string]bool{"text": true, "json": true, "sarif": true, "all": true}
	validLogLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "off": true}
)

// Validate 检查配置取值
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration object is nil")
	}
	if err := ValidateAnalysis(&cfg.Analysis); err != nil {
		return fmt.Errorf("analysis directive is invalid: %w", err)
	}
	if err := cfg.DiscoveryOptions().Validate(); err != nil {
		return fmt.Errorf("scan directive is invalid: %w", err)
	}
	if s := cfg.Rules.MinSeverity; s != "" && !core.ValidSeverity(s) {
		return fmt.Errorf("rules directive is invalid: unknown min_severity %q", s)
	}
	if !validFormats[strings.ToLower(cfg.Output.Format)] {
		return fmt.Errorf("output directive is invalid: unsupported format %q", cfg.Output.Format)
	}
	if l := cfg.Logger.Level; l != "" && !validLogLevels[strings.ToLower(l)] {
		return fmt.Errorf("logger directive is invalid: unknown level %q", l)
	}
	return nil
}

// ValidateAnalysis 检查分析参数
func ValidateAnalysis(a *Analysis) error {
	if a.Workers < 0 || a.Workers > 1024 {
		return fmt.Errorf("workers must be between 0 and 1024: %d", a.Workers)
	}
	if a.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative: %d", a.MaxIterations)
	}
	if a.WidenDelay < 0 {
		return fmt.Errorf("widen_delay cannot be negative: %d", a.WidenDelay)
	}
	return validateDuration(a.Timeout, "timeout", time.Hour)
}

// validateDuration 检查时长非负且不超过上限
func validateDuration(d time.Duration, name string, limit time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %s: %v cannot be negative", name, d)
	}
	if d > limit {
		return fmt.Errorf("%s duration is too long: %v exceeds maximum of %v", name, d, limit)
	}
	return nil
}
