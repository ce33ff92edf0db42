package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/exp/slices"
)

// DefaultExcludedDirs 扫描目录时跳过的目录名
func DefaultExcludedDirs() map[string]bool {
	return map[string]bool{
		// 构建产物
		"build": true, "dist": true, "target": true, "cmake-build": true, ".cmake": true,
		// 依赖管理
		"vendor": true, "node_modules": true, "third_party": true, "thirdparty": true, "3rdparty": true,
		// 版本控制
		".git": true, ".svn": true, ".hg": true,
		// IDE 和编辑器
		".cache": true, ".idea": true, ".vscode": true,
	}
}

// DiscoveryOptions 文件发现选项
type DiscoveryOptions struct {
	// Include 为空时接受所有 C 源文件；否则相对路径须匹配其中一个 glob
	Include []string
	// Exclude 匹配的相对路径被跳过（doublestar 语法，如 "**/legacy/**"）
	Exclude []string
	// ExcludedDirs 目录名黑名单，nil 时使用 DefaultExcludedDirs
	ExcludedDirs map[string]bool
}

// Validate 检查 glob 语法
func (o DiscoveryOptions) Validate() error {
	for _, p := range append(append([]string{}, o.Include...), o.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// DiscoverFiles 展开文件与目录参数，返回排序去重后的源文件列表
// 直接给出的文件总是被接受；目录递归遍历，只收集 C 源文件
func DiscoverFiles(roots []string, opts DiscoveryOptions) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	excluded := opts.ExcludedDirs
	if excluded == nil {
		excluded = DefaultExcludedDirs()
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		clean := filepath.Clean(path)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if excluded[strings.ToLower(d.Name())] || matchAny(opts.Exclude, rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsSupportedFile(path) || matchAny(opts.Exclude, rel) {
				return nil
			}
			if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
		}
	}
	slices.Sort(files)
	return files, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
