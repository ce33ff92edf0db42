package core

import (
	"fmt"
	"strings"
)

// Variable 声明的变量，构建后不再修改
type Variable struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	ScopeID  int     `json:"scope_id"`
	Kind     VarKind `json:"kind"`
	TypeName string  `json:"type"`
	// Size 数组第一维长度，非数组或不定长时为 SizeUnknown
	Size int64 `json:"size"`
	// Dims 数组全部维度
	Dims []int64 `json:"dims,omitempty"`
	// ElemSize 元素（或指针所指对象）字节数，未知为 0
	ElemSize int64 `json:"elem_size"`
	Pos      Pos   `json:"pos"`
	IsParam  bool  `json:"is_param"`
	IsGlobal bool  `json:"is_global"`
}

// IsPointer 是否为指针变量
func (v *Variable) IsPointer() bool { return v.Kind == KindPointer }

// IsArray 是否为数组变量
func (v *Variable) IsArray() bool { return v.Kind == KindArray }

// RowBytes 数组一个元素（含低维）的字节数
func (v *Variable) RowBytes() int64 {
	if v.ElemSize <= 0 {
		return 0
	}
	n := v.ElemSize
	for _, d := range v.Dims[min(1, len(v.Dims)):] {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// Scope 词法作用域
type Scope struct {
	ID     int
	Parent int
	vars   map[string]*Variable
}

// SymbolDiagnostic 符号表构建中发现的问题
type SymbolDiagnostic struct {
	Rule    string
	Pos     Pos
	Name    string
	Message string
}

// SymbolTable 单个函数的符号表（含文件级全局变量的副本）
// 由一个分析任务独占，不需要加锁
type SymbolTable struct {
	vars        []*Variable
	scopes      []*Scope
	resolve     map[*Ident]*Variable
	decls       map[*DeclStmt]*Variable
	duplicates  map[*DeclStmt]bool
	externs     map[string]bool
	Diagnostics []SymbolDiagnostic
}

// builtinObjects 标准库中常见的全局对象
var builtinObjects = map[string]bool{
	"stdin": true, "stdout": true, "stderr": true, "errno": true,
	"optarg": true, "optind": true, "opterr": true, "optopt": true, "environ": true,
	"__func__": true, "__FUNCTION__": true,
}

// BuildSymbolTable 为函数构建作用域化的符号表
func BuildSymbolTable(unit *TranslationUnit, fn *Function) *SymbolTable {
	st := &SymbolTable{
		resolve:    make(map[*Ident]*Variable),
		decls:      make(map[*DeclStmt]*Variable),
		duplicates: make(map[*DeclStmt]bool),
		externs:    make(map[string]bool),
	}
	b := &symbolBuilder{st: st, reported: make(map[string]bool)}

	global := b.pushScope()
	if unit != nil {
		for name := range unit.FuncNames {
			st.externs[name] = true
		}
		for _, d := range unit.Globals {
			b.declare(d, global, false, true)
		}
	}
	for name := range builtinObjects {
		st.externs[name] = true
	}

	if fn == nil {
		return st
	}
	fnScope := b.pushScope()
	for _, p := range fn.Params {
		b.declare(p, fnScope, true, false)
	}
	if fn.Body != nil {
		// 函数体顶层与参数处于同一作用域
		for _, s := range fn.Body.Stmts {
			b.walkStmt(s)
		}
	}
	b.popScope()
	return st
}

type symbolBuilder struct {
	st       *SymbolTable
	stack    []*Scope
	reported map[string]bool
}

func (b *symbolBuilder) pushScope() *Scope {
	parent := -1
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1].ID
	}
	s := &Scope{ID: len(b.st.scopes), Parent: parent, vars: make(map[string]*Variable)}
	b.st.scopes = append(b.st.scopes, s)
	b.stack = append(b.stack, s)
	return s
}

func (b *symbolBuilder) popScope() {
	b.stack = b.stack[:len(b.stack)-1]
}

func (b *symbolBuilder) lookup(name string) *Variable {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if v, ok := b.stack[i].vars[name]; ok {
			return v
		}
	}
	return nil
}

func (b *symbolBuilder) declare(d *DeclStmt, scope *Scope, isParam, isGlobal bool) {
	for _, e := range d.DimExprs {
		b.walkExpr(e)
	}

	if prev, ok := scope.vars[d.Name]; ok {
		b.st.decls[d] = prev
		b.st.duplicates[d] = true
		b.st.Diagnostics = append(b.st.Diagnostics, SymbolDiagnostic{
			Rule:    RuleDuplicateDeclaration,
			Pos:     d.Pos,
			Name:    d.Name,
			Message: fmt.Sprintf("'%s' redeclared in the same scope (previous declaration at line %d)", d.Name, prev.Pos.Line),
		})
		b.walkExpr(d.Init)
		return
	}

	v := &Variable{
		ID:       len(b.st.vars),
		Name:     d.Name,
		ScopeID:  scope.ID,
		Kind:     d.Kind,
		TypeName: d.TypeName,
		Size:     SizeUnknown,
		ElemSize: TypeSize(d.TypeName),
		Pos:      d.Pos,
		IsParam:  isParam,
		IsGlobal: isGlobal,
	}
	if d.Kind == KindArray {
		v.Dims = b.arrayDims(d)
		if len(v.Dims) > 0 {
			v.Size = v.Dims[0]
		}
	}
	b.st.vars = append(b.st.vars, v)
	scope.vars[d.Name] = v
	b.st.decls[d] = v
	b.walkExpr(d.Init)
}

// arrayDims 计算数组各维长度；首维缺省时取初始化列表长度
func (b *symbolBuilder) arrayDims(d *DeclStmt) []int64 {
	dims := make([]int64, len(d.Dims))
	for i, n := range d.Dims {
		dims[i] = int64(n)
		if n == SizeUnknown && i < len(d.DimExprs) && d.DimExprs[i] != nil {
			if c, ok := b.st.EvalConst(d.DimExprs[i]); ok && c >= 0 {
				dims[i] = c
			}
		}
	}
	if len(dims) > 0 && dims[0] == SizeUnknown && d.InitCount >= 0 && (len(d.DimExprs) == 0 || d.DimExprs[0] == nil) {
		dims[0] = int64(d.InitCount)
	}
	return dims
}

func (b *symbolBuilder) walkStmt(s Stmt) {
	switch x := s.(type) {
	case *DeclStmt:
		b.declare(x, b.stack[len(b.stack)-1], false, false)
	case *AssignStmt:
		b.walkExpr(x.LHS)
		b.walkExpr(x.RHS)
	case *ExprStmt:
		b.walkExpr(x.X)
	case *BlockStmt:
		b.pushScope()
		for _, c := range x.Stmts {
			b.walkStmt(c)
		}
		b.popScope()
	case *IfStmt:
		b.walkExpr(x.Cond)
		b.walkScoped(x.Then)
		b.walkScoped(x.Else)
	case *WhileStmt:
		b.walkExpr(x.Cond)
		b.walkScoped(x.Body)
	case *ForStmt:
		b.pushScope()
		for _, i := range x.Init {
			b.walkStmt(i)
		}
		b.walkExpr(x.Cond)
		if x.Post != nil {
			b.walkStmt(x.Post)
		}
		b.walkScoped(x.Body)
		b.popScope()
	case *SwitchStmt:
		b.walkExpr(x.Tag)
		b.pushScope()
		for _, c := range x.Cases {
			for _, v := range c.Values {
				b.walkExpr(v)
			}
			for _, cs := range c.Body {
				b.walkStmt(cs)
			}
		}
		b.popScope()
	case *ReturnStmt:
		b.walkExpr(x.Result)
	case *UnsupportedStmt:
		for _, id := range x.Idents {
			b.walkExpr(id)
		}
	}
}

func (b *symbolBuilder) walkScoped(s Stmt) {
	if s == nil {
		return
	}
	if _, ok := s.(*BlockStmt); ok {
		b.walkStmt(s)
		return
	}
	b.pushScope()
	b.walkStmt(s)
	b.popScope()
}

func (b *symbolBuilder) walkExpr(e Expr) {
	InspectExpr(e, func(n Expr) bool {
		if sz, ok := n.(*SizeofExpr); ok {
			// sizeof(T) 中无法解析的裸标识符是头文件里的类型名
			if id, ok := StripParensAndCasts(sz.X).(*Ident); ok && b.lookup(id.Name) == nil {
				return false
			}
			return true
		}
		id, ok := n.(*Ident)
		if !ok {
			return true
		}
		if v := b.lookup(id.Name); v != nil {
			b.st.resolve[id] = v
			return true
		}
		if b.st.externs[id.Name] || b.reported[id.Name] {
			return true
		}
		b.reported[id.Name] = true
		b.st.Diagnostics = append(b.st.Diagnostics, SymbolDiagnostic{
			Rule:    RuleUndeclaredSymbol,
			Pos:     id.Pos,
			Name:    id.Name,
			Message: fmt.Sprintf("'%s' is not declared in any enclosing scope", id.Name),
		})
		return true
	})
}

// ---- 查询接口 ----

// Lookup 返回标识符解析到的变量，未声明时为 nil
func (st *SymbolTable) Lookup(id *Ident) *Variable {
	return st.resolve[id]
}

// Declared 返回声明语句对应的变量
func (st *SymbolTable) Declared(d *DeclStmt) *Variable {
	return st.decls[d]
}

// IsDuplicate 声明是否为同一作用域内的重复声明
func (st *SymbolTable) IsDuplicate(d *DeclStmt) bool {
	return st.duplicates[d]
}

// Variable 按编号取变量
func (st *SymbolTable) Variable(id int) *Variable {
	if id < 0 || id >= len(st.vars) {
		return nil
	}
	return st.vars[id]
}

// Variables 返回所有变量（按声明顺序）
func (st *SymbolTable) Variables() []*Variable {
	return st.vars
}

// VarOf 表达式若为（去掉类型转换后的）变量引用则返回该变量
func (st *SymbolTable) VarOf(e Expr) *Variable {
	if id, ok := StripParensAndCasts(e).(*Ident); ok {
		return st.resolve[id]
	}
	return nil
}

// EvalConst 对整数常量表达式求值（含 sizeof）
func (st *SymbolTable) EvalConst(e Expr) (int64, bool) {
	switch x := StripParensAndCasts(e).(type) {
	case *IntLit:
		return x.Value, true
	case *NullLit:
		return 0, true
	case *SizeofExpr:
		n := st.Sizeof(x)
		return n, n > 0
	case *UnaryExpr:
		v, ok := st.EvalConst(x.X)
		if !ok {
			return 0, false
		}
		switch x.Op {
		case "-":
			return -v, true
		case "+":
			return v, true
		case "~":
			return ^v, true
		case "!":
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
	case *BinaryExpr:
		a, ok1 := st.EvalConst(x.X)
		c, ok2 := st.EvalConst(x.Y)
		if !ok1 || !ok2 {
			return 0, false
		}
		switch x.Op {
		case "+":
			return a + c, true
		case "-":
			return a - c, true
		case "*":
			return a * c, true
		case "/":
			if c != 0 {
				return a / c, true
			}
		case "%":
			if c != 0 {
				return a % c, true
			}
		case "<<":
			if c >= 0 && c < 63 {
				return a << uint(c), true
			}
		case ">>":
			if c >= 0 && c < 63 {
				return a >> uint(c), true
			}
		}
	}
	return 0, false
}

// Sizeof 计算 sizeof 的字节数，无法确定时返回 0
func (st *SymbolTable) Sizeof(s *SizeofExpr) int64 {
	if s.X == nil {
		return TypeSize(s.TypeName)
	}
	switch x := StripParensAndCasts(s.X).(type) {
	case *Ident:
		v := st.resolve[x]
		if v == nil {
			return 0
		}
		if v.IsArray() && v.Size > 0 {
			return v.Size * v.RowBytes()
		}
		if v.IsPointer() {
			return 8
		}
		return v.ElemSize
	case *IndexExpr:
		if v := st.VarOf(x.X); v != nil && v.IsArray() {
			return v.RowBytes()
		}
		if v := st.VarOf(x.X); v != nil && v.IsPointer() {
			return v.ElemSize
		}
	case *UnaryExpr:
		if x.Op == "*" {
			if v := st.VarOf(x.X); v != nil {
				return v.ElemSize
			}
		}
	case *IntLit:
		return 4
	}
	return 0
}

// TypeSize 基本类型的字节数（LP64），无法确定时返回 0
func TypeSize(typeName string) int64 {
	t := strings.TrimSpace(typeName)
	if strings.HasSuffix(t, "*") {
		return 8
	}
	fields := strings.Fields(t)
	var kept []string
	for _, f := range fields {
		switch f {
		case "const", "volatile", "static", "extern", "register", "signed", "unsigned", "restrict", "inline":
			continue
		}
		kept = append(kept, f)
	}
	switch strings.Join(kept, " ") {
	case "char", "_Bool", "bool", "int8_t", "uint8_t":
		return 1
	case "short", "short int", "int16_t", "uint16_t":
		return 2
	case "int", "", "float", "int32_t", "uint32_t", "wchar_t":
		if len(fields) == 0 {
			return 0
		}
		return 4
	case "long", "long int", "long long", "long long int", "double", "size_t", "ssize_t",
		"int64_t", "uint64_t", "intptr_t", "uintptr_t", "ptrdiff_t", "off_t", "time_t":
		return 8
	case "long double":
		return 16
	}
	return 0
}
