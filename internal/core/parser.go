package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ParserPool 管理 tree-sitter Parser 实例池
// 使用 sync.Pool 允许每个 goroutine 获取独立的 Parser，无需全局锁
type ParserPool struct {
	pool sync.Pool
}

// NewParserPool 创建新的 Parser Pool
func NewParserPool() *ParserPool {
	return &ParserPool{
		pool: sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(c.GetLanguage())
				return parser
			},
		},
	}
}

// globalParserPool 全局 Parser Pool 实例
var globalParserPool = NewParserPool()

// GetParser 从 Pool 获取 C 语言 Parser
func GetParser() *sitter.Parser {
	return globalParserPool.pool.Get().(*sitter.Parser)
}

// PutParser 将 Parser 归还到 Pool
func PutParser(parser *sitter.Parser) {
	parser.Reset()
	globalParserPool.pool.Put(parser)
}

// ParsedUnit 表示一个已解析的代码单元
type ParsedUnit struct {
	FilePath string
	Root     *sitter.Node
	Source   []byte
	Tree     *sitter.Tree
}

// Close 释放语法树
func (u *ParsedUnit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
	}
}

// SupportedExtensions 可分析的源文件扩展名
var SupportedExtensions = []string{".c", ".h"}

// IsSupportedFile 根据扩展名判断是否为 C 源文件
func IsSupportedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParseFile 读取并解析单个文件
func ParseFile(ctx context.Context, filePath string) (*ParsedUnit, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return ParseSource(ctx, filePath, source)
}

// ParseSource 解析内存中的源码
func ParseSource(ctx context.Context, filePath string, source []byte) (*ParsedUnit, error) {
	parser := GetParser()
	defer PutParser(parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}

	return &ParsedUnit{
		FilePath: filePath,
		Root:     tree.RootNode(),
		Source:   source,
		Tree:     tree,
	}, nil
}

// LoadTranslationUnit 解析文件并降级为 IR
func LoadTranslationUnit(ctx context.Context, filePath string) (*TranslationUnit, error) {
	unit, err := ParseFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer unit.Close()
	return Lower(unit), nil
}

// LoadSource 解析内存中的源码并降级为 IR
func LoadSource(ctx context.Context, filePath string, source []byte) (*TranslationUnit, error) {
	unit, err := ParseSource(ctx, filePath, source)
	if err != nil {
		return nil, err
	}
	defer unit.Close()
	return Lower(unit), nil
}

// GetSourceText 获取节点的源代码文本
func (u *ParsedUnit) GetSourceText(node *sitter.Node) string {
	if node == nil {
		return ""
	}

	start := node.StartByte()
	end := node.EndByte()

	// 边界检查，防止越界
	if end > uint32(len(u.Source)) {
		end = uint32(len(u.Source))
	}
	if start >= end {
		return ""
	}
	return string(u.Source[start:end])
}

// nodePos 节点起始位置（1基）
func nodePos(node *sitter.Node) Pos {
	if node == nil {
		return Pos{}
	}
	p := node.StartPoint()
	return Pos{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// SafeChildByFieldName 安全按字段名获取子节点
func SafeChildByFieldName(node *sitter.Node, fieldName string) *sitter.Node {
	if node == nil {
		return nil
	}
	return node.ChildByFieldName(fieldName)
}

// SafeNamedChild 安全获取命名子节点
func SafeNamedChild(node *sitter.Node, index int) *sitter.Node {
	if node == nil || index < 0 || index >= int(node.NamedChildCount()) {
		return nil
	}
	return node.NamedChild(index)
}

// SafeNamedChildren 返回全部命名子节点（跳过注释）
func SafeNamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	n := int(node.NamedChildCount())
	out := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// childrenByField 返回字段名为 field 的全部子节点（如多个 declarator）
func childrenByField(node *sitter.Node, field string) []*sitter.Node {
	if node == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.FieldNameForChild(i) == field {
			if child := node.Child(i); child != nil {
				out = append(out, child)
			}
		}
	}
	return out
}
