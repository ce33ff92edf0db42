package detectors

import (
	"memsast/internal/core"
)

// RuleDetector 声明自己产生哪些规则的检测器
type RuleDetector interface {
	core.Detector
	Rules() []string
}

// Default 返回全部内建检测器，顺序固定
func Default() []RuleDetector {
	return []RuleDetector{
		NewBoundsDetector(),
		NewUseAfterFreeDetector(),
		NewDoubleFreeDetector(),
		NewNullDereferenceDetector(),
		NewAnalysisWarningDetector(),
	}
}

// Select 去掉被禁用的检测器；disabled 可以是检测器名，也可以是规则 ID，
// 检测器的全部规则都被禁用时才去掉该检测器
func Select(all []RuleDetector, disabled []string) []core.Detector {
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		off[name] = true
	}
	var out []core.Detector
	for _, d := range all {
		if off[d.Name()] {
			continue
		}
		enabled := false
		for _, r := range d.Rules() {
			if !off[r] {
				enabled = true
				break
			}
		}
		if enabled {
			out = append(out, d)
		}
	}
	return out
}

// KnownName 名称是否为已知的检测器名或规则 ID
func KnownName(name string) bool {
	switch name {
	case core.RuleAnalysisTimedOut, core.RuleInputError:
		return true
	}
	for _, d := range Default() {
		if d.Name() == name {
			return true
		}
		for _, r := range d.Rules() {
			if r == name {
				return true
			}
		}
	}
	return false
}
