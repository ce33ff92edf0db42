package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos 源码位置（1基行列号）
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid 位置是否有效
func (p Pos) IsValid() bool {
	return p.Line > 0
}

// VarKind 变量的声明类别
type VarKind int

const (
	KindScalar VarKind = iota
	KindArray
	KindPointer
)

func (k VarKind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	default:
		return "scalar"
	}
}

// SizeUnknown 表示数组维度或分配大小无法静态确定
const SizeUnknown = -1

// Function 前端降级后的函数
type Function struct {
	Name   string
	File   string
	Pos    Pos
	Params []*DeclStmt
	Body   *BlockStmt
}

// Stmt 语句
type Stmt interface {
	StmtPos() Pos
}

// Expr 表达式
type Expr interface {
	ExprPos() Pos
}

// ---- 语句 ----

// DeclStmt 单个变量声明（多声明符在前端拆开）
type DeclStmt struct {
	Pos      Pos
	Name     string
	Kind     VarKind
	TypeName string
	// Dims 数组各维长度，SizeUnknown 表示不定长
	Dims []int
	// DimExprs 维度表达式（宏或常量表达式，由符号表求值）
	DimExprs []Expr
	Init     Expr
	// InitCount 初始化列表元素个数，-1 表示没有初始化列表
	InitCount int
}

// AssignStmt 赋值（包括复合赋值 +=、-= 等）
type AssignStmt struct {
	Pos Pos
	LHS Expr
	Op  string
	RHS Expr
}

// ExprStmt 表达式语句
type ExprStmt struct {
	Pos Pos
	X   Expr
}

// BlockStmt 复合语句，引入新的作用域
type BlockStmt struct {
	Pos   Pos
	Stmts []Stmt
}

// IfStmt if/else
type IfStmt struct {
	Pos  Pos
	Cond Expr
	Then Stmt
	Else Stmt
}

// WhileStmt while 循环；DoWhile 为真时表示 do/while
type WhileStmt struct {
	Pos     Pos
	Cond    Expr
	Body    Stmt
	DoWhile bool
}

// ForStmt for 循环，Init/Post/Cond 均可为空
type ForStmt struct {
	Pos  Pos
	Init []Stmt
	Cond Expr
	Post Stmt
	Body Stmt
}

// SwitchStmt switch 语句
type SwitchStmt struct {
	Pos   Pos
	Tag   Expr
	Cases []*CaseClause
}

// CaseClause case/default 分支；Default 为真时 Values 为空
type CaseClause struct {
	Pos     Pos
	Values  []Expr
	Default bool
	Body    []Stmt
}

// ReturnStmt return
type ReturnStmt struct {
	Pos    Pos
	Result Expr
}

// BreakStmt break
type BreakStmt struct {
	Pos Pos
}

// ContinueStmt continue
type ContinueStmt struct {
	Pos Pos
}

// UnsupportedStmt 前端无法表达的构造，Idents 为其中出现的标识符
type UnsupportedStmt struct {
	Pos    Pos
	Kind   string
	Text   string
	Idents []*Ident
}

func (s *DeclStmt) StmtPos() Pos        { return s.Pos }
func (s *AssignStmt) StmtPos() Pos      { return s.Pos }
func (s *ExprStmt) StmtPos() Pos        { return s.Pos }
func (s *BlockStmt) StmtPos() Pos       { return s.Pos }
func (s *IfStmt) StmtPos() Pos          { return s.Pos }
func (s *WhileStmt) StmtPos() Pos       { return s.Pos }
func (s *ForStmt) StmtPos() Pos         { return s.Pos }
func (s *SwitchStmt) StmtPos() Pos      { return s.Pos }
func (s *ReturnStmt) StmtPos() Pos      { return s.Pos }
func (s *BreakStmt) StmtPos() Pos       { return s.Pos }
func (s *ContinueStmt) StmtPos() Pos    { return s.Pos }
func (s *UnsupportedStmt) StmtPos() Pos { return s.Pos }

// ---- 表达式 ----

// Ident 标识符引用
type Ident struct {
	Pos  Pos
	Name string
}

// IntLit 整数常量
type IntLit struct {
	Pos   Pos
	Value int64
}

// NullLit NULL 常量
type NullLit struct {
	Pos Pos
}

// BinaryExpr 二元表达式
type BinaryExpr struct {
	Pos Pos
	Op  string
	X   Expr
	Y   Expr
}

// UnaryExpr 一元表达式；Op 为 "*" 时是解引用，"&" 取地址，
// "++"/"--" 配合 Postfix 表示自增自减
type UnaryExpr struct {
	Pos     Pos
	Op      string
	X       Expr
	Postfix bool
}

// IndexExpr 下标访问 X[Index]
type IndexExpr struct {
	Pos   Pos
	X     Expr
	Index Expr
}

// CallExpr 函数调用，Fun 为被调函数名（间接调用时为空）
type CallExpr struct {
	Pos  Pos
	Fun  string
	Args []Expr
}

// MemberExpr 成员访问，Arrow 表示 "->"
type MemberExpr struct {
	Pos   Pos
	X     Expr
	Field string
	Arrow bool
}

// SizeofExpr sizeof(type) 或 sizeof expr
type SizeofExpr struct {
	Pos      Pos
	TypeName string
	X        Expr
}

// CastExpr 类型转换
type CastExpr struct {
	Pos      Pos
	TypeName string
	X        Expr
}

// CondExpr 三目运算 c ? a : b
type CondExpr struct {
	Pos  Pos
	Cond Expr
	Then Expr
	Else Expr
}

// AssignExpr 出现在表达式位置上的赋值（如 while ((p = next(p)) != NULL)）
type AssignExpr struct {
	Pos Pos
	LHS Expr
	Op  string
	RHS Expr
}

// OpaqueExpr 无法建模的表达式（字符串、浮点、初始化列表等）
type OpaqueExpr struct {
	Pos    Pos
	Text   string
	Idents []*Ident
}

func (e *Ident) ExprPos() Pos      { return e.Pos }
func (e *IntLit) ExprPos() Pos     { return e.Pos }
func (e *NullLit) ExprPos() Pos    { return e.Pos }
func (e *BinaryExpr) ExprPos() Pos { return e.Pos }
func (e *UnaryExpr) ExprPos() Pos  { return e.Pos }
func (e *IndexExpr) ExprPos() Pos  { return e.Pos }
func (e *CallExpr) ExprPos() Pos   { return e.Pos }
func (e *MemberExpr) ExprPos() Pos { return e.Pos }
func (e *SizeofExpr) ExprPos() Pos { return e.Pos }
func (e *CastExpr) ExprPos() Pos   { return e.Pos }
func (e *CondExpr) ExprPos() Pos   { return e.Pos }
func (e *AssignExpr) ExprPos() Pos { return e.Pos }
func (e *OpaqueExpr) ExprPos() Pos { return e.Pos }

// InspectExpr 先序遍历表达式树，f 返回 false 时不再深入子节点
func InspectExpr(e Expr, f func(Expr) bool) {
	if e == nil || !f(e) {
		return
	}
	switch x := e.(type) {
	case *BinaryExpr:
		InspectExpr(x.X, f)
		InspectExpr(x.Y, f)
	case *UnaryExpr:
		InspectExpr(x.X, f)
	case *IndexExpr:
		InspectExpr(x.X, f)
		InspectExpr(x.Index, f)
	case *CallExpr:
		for _, a := range x.Args {
			InspectExpr(a, f)
		}
	case *MemberExpr:
		InspectExpr(x.X, f)
	case *SizeofExpr:
		InspectExpr(x.X, f)
	case *CastExpr:
		InspectExpr(x.X, f)
	case *CondExpr:
		InspectExpr(x.Cond, f)
		InspectExpr(x.Then, f)
		InspectExpr(x.Else, f)
	case *AssignExpr:
		InspectExpr(x.LHS, f)
		InspectExpr(x.RHS, f)
	case *OpaqueExpr:
		for _, id := range x.Idents {
			InspectExpr(id, f)
		}
	}
}

// ExprString 生成表达式的近似 C 文本，用于消息与事件键
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return ""
	case *Ident:
		return x.Name
	case *IntLit:
		return strconv.FormatInt(x.Value, 10)
	case *NullLit:
		return "NULL"
	case *BinaryExpr:
		return ExprString(x.X) + " " + x.Op + " " + ExprString(x.Y)
	case *UnaryExpr:
		inner := ExprString(x.X)
		switch x.X.(type) {
		case *BinaryExpr, *CondExpr, *AssignExpr:
			inner = "(" + inner + ")"
		}
		if x.Postfix {
			return inner + x.Op
		}
		return x.Op + inner
	case *IndexExpr:
		return ExprString(x.X) + "[" + ExprString(x.Index) + "]"
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = ExprString(a)
		}
		return x.Fun + "(" + strings.Join(args, ", ") + ")"
	case *MemberExpr:
		if x.Arrow {
			return ExprString(x.X) + "->" + x.Field
		}
		return ExprString(x.X) + "." + x.Field
	case *SizeofExpr:
		if x.X != nil {
			return "sizeof(" + ExprString(x.X) + ")"
		}
		return "sizeof(" + x.TypeName + ")"
	case *CastExpr:
		return "(" + x.TypeName + ")" + ExprString(x.X)
	case *CondExpr:
		return ExprString(x.Cond) + " ? " + ExprString(x.Then) + " : " + ExprString(x.Else)
	case *AssignExpr:
		return ExprString(x.LHS) + " " + x.Op + " " + ExprString(x.RHS)
	case *OpaqueExpr:
		return x.Text
	default:
		return "?"
	}
}

// StripParensAndCasts 去掉类型转换，返回最内层表达式
func StripParensAndCasts(e Expr) Expr {
	for {
		c, ok := e.(*CastExpr)
		if !ok {
			return e
		}
		e = c.X
	}
}
