package core

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TranslationUnit 一个源文件降级后的结果
type TranslationUnit struct {
	File      string
	Globals   []*DeclStmt
	Functions []*Function
	// Consts 宏与枚举常量（已替换进表达式，保留用于查询）
	Consts map[string]int64
	// FuncNames 定义或声明过的函数名
	FuncNames map[string]bool
	// SyntaxErrors 语法错误位置
	SyntaxErrors []SyntaxError
}

// SyntaxError tree-sitter 报告的错误节点
type SyntaxError struct {
	Pos      Pos
	Text     string
	Function string
}

// builtinConstants 常见库常量
var builtinConstants = map[string]int64{
	"true": 1, "false": 0, "TRUE": 1, "FALSE": 0,
	"EOF": -1, "EXIT_SUCCESS": 0, "EXIT_FAILURE": 1,
	"CHAR_BIT": 8, "CHAR_MAX": 127, "CHAR_MIN": -128, "SCHAR_MAX": 127, "UCHAR_MAX": 255,
	"SHRT_MAX": 32767, "SHRT_MIN": -32768, "USHRT_MAX": 65535,
	"INT_MAX": 2147483647, "INT_MIN": -2147483648, "UINT_MAX": 4294967295,
	"LONG_MAX": 9223372036854775807, "LONG_MIN": -9223372036854775808,
	"RAND_MAX": 2147483647, "BUFSIZ": 8192, "FILENAME_MAX": 4096, "PATH_MAX": 4096,
	"SEEK_SET": 0, "SEEK_CUR": 1, "SEEK_END": 2,
	"INT8_MAX": 127, "INT16_MAX": 32767, "INT32_MAX": 2147483647, "UINT8_MAX": 255,
	"UINT16_MAX": 65535, "UINT32_MAX": 4294967295,
}

// lowerer 把 tree-sitter 语法树降级为 IR
type lowerer struct {
	unit     *ParsedUnit
	tu       *TranslationUnit
	typedefs map[string]string
}

// Lower 把解析单元降级为 IR
func Lower(unit *ParsedUnit) *TranslationUnit {
	l := &lowerer{
		unit: unit,
		tu: &TranslationUnit{
			File:      unit.FilePath,
			Consts:    make(map[string]int64),
			FuncNames: make(map[string]bool),
		},
		typedefs: make(map[string]string),
	}
	// 先收集宏、枚举与 typedef，使函数体中的引用都能被替换
	l.collectDefinitions(unit.Root)
	l.lowerTopLevel(unit.Root)
	if unit.Root != nil && unit.Root.HasError() {
		l.collectErrors(unit.Root, "")
	}
	return l.tu
}

func (l *lowerer) text(n *sitter.Node) string {
	return l.unit.GetSourceText(n)
}

// ---- 第一遍：定义收集 ----

func (l *lowerer) collectDefinitions(n *sitter.Node) {
	for _, child := range SafeNamedChildren(n) {
		switch child.Type() {
		case "preproc_def":
			name := l.text(SafeChildByFieldName(child, "name"))
			value := strings.TrimSpace(l.text(SafeChildByFieldName(child, "value")))
			if v, ok := l.macroValue(value); ok && name != "" {
				l.tu.Consts[name] = v
			}
		case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "preproc_elifdef":
			l.collectDefinitions(child)
		case "type_definition":
			l.collectTypedef(child)
			l.collectEnums(child)
		case "declaration":
			l.collectEnums(child)
			for _, d := range childrenByField(child, "declarator") {
				if name, isFunc := functionDeclaratorName(l, d); isFunc && name != "" {
					l.tu.FuncNames[name] = true
				}
			}
		case "enum_specifier":
			l.collectEnums(child)
		case "function_definition":
			if name, _ := functionDeclaratorName(l, SafeChildByFieldName(child, "declarator")); name != "" {
				l.tu.FuncNames[name] = true
			}
		}
	}
}

// macroValue 解析对象宏的整数值，支持括号、一元负号、其他宏与 + - * / 四则运算
func (l *lowerer) macroValue(value string) (int64, bool) {
	value = strings.TrimSpace(stripComments(value))
	for wrappedInParens(value) {
		value = strings.TrimSpace(value[1 : len(value)-1])
	}
	if value == "" {
		return 0, false
	}
	if v, ok := parseIntLiteral(value); ok {
		return v, true
	}
	if v, ok := l.tu.Consts[value]; ok {
		return v, true
	}
	if v, ok := builtinConstants[value]; ok {
		return v, true
	}
	// 先按最右侧的顶层 + - 拆分，再按 * /，保持左结合
	for _, ops := range []string{"+-", "*/"} {
		i := splitOperator(value, ops)
		if i < 0 {
			continue
		}
		a, okA := l.macroValue(value[:i])
		b, okB := l.macroValue(value[i+1:])
		if !okA || !okB {
			return 0, false
		}
		switch value[i] {
		case '+':
			return a + b, true
		case '-':
			return a - b, true
		case '*':
			return a * b, true
		default:
			if b == 0 {
				return 0, false
			}
			return a / b, true
		}
	}
	if strings.HasPrefix(value, "-") {
		if v, ok := l.macroValue(value[1:]); ok {
			return -v, true
		}
	}
	return 0, false
}

// stripComments 去掉宏体中的 // 与 /* */ 注释
func stripComments(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '/' && i+1 < len(s) {
			if s[i+1] == '/' {
				break
			}
			if s[i+1] == '*' {
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					break
				}
				sb.WriteByte(' ')
				i += end + 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// wrappedInParens 整个表达式被一对匹配的括号包住
func wrappedInParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// splitOperator 最右侧括号外的二元运算符位置；前面紧跟运算符的 - 视为一元
func splitOperator(s string, ops string) int {
	depth := 0
	for i := len(s) - 1; i > 0; i-- {
		switch c := s[i]; {
		case c == ')':
			depth++
		case c == '(':
			depth--
		case depth == 0 && strings.IndexByte(ops, c) >= 0:
			prev := strings.TrimRight(s[:i], " \t")
			if prev == "" || strings.ContainsAny(prev[len(prev)-1:], "+-*/(") {
				continue
			}
			return i
		}
	}
	return -1
}

func (l *lowerer) collectTypedef(n *sitter.Node) {
	base := l.typeName(SafeChildByFieldName(n, "type"))
	for _, d := range childrenByField(n, "declarator") {
		ptr := 0
		for d != nil && d.Type() == "pointer_declarator" {
			ptr++
			d = SafeChildByFieldName(d, "declarator")
		}
		if d != nil && d.Type() == "type_identifier" {
			l.typedefs[l.text(d)] = base + strings.Repeat("*", ptr)
		}
	}
}

func (l *lowerer) collectEnums(n *sitter.Node) {
	if n == nil {
		return
	}
	if n.Type() == "enum_specifier" {
		body := SafeChildByFieldName(n, "body")
		next := int64(0)
		for _, e := range SafeNamedChildren(body) {
			if e.Type() != "enumerator" {
				continue
			}
			name := l.text(SafeChildByFieldName(e, "name"))
			if v := SafeChildByFieldName(e, "value"); v != nil {
				if c, ok := l.macroValue(l.text(v)); ok {
					next = c
				}
			}
			l.tu.Consts[name] = next
			next++
		}
		return
	}
	for _, child := range SafeNamedChildren(n) {
		l.collectEnums(child)
	}
}

// ---- 第二遍：顶层声明与函数 ----

func (l *lowerer) lowerTopLevel(n *sitter.Node) {
	for _, child := range SafeNamedChildren(n) {
		switch child.Type() {
		case "function_definition":
			if fn := l.lowerFunction(child); fn != nil {
				l.tu.Functions = append(l.tu.Functions, fn)
			}
		case "declaration":
			for _, d := range l.lowerDeclaration(child) {
				l.tu.Globals = append(l.tu.Globals, d)
			}
		case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "preproc_elifdef", "linkage_specification", "declaration_list":
			l.lowerTopLevel(child)
		}
	}
}

// functionDeclaratorName 若声明符是函数声明符则返回函数名
func functionDeclaratorName(l *lowerer, d *sitter.Node) (string, bool) {
	isFunc := false
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			isFunc = true
			d = SafeChildByFieldName(d, "declarator")
		case "pointer_declarator", "init_declarator", "attributed_declarator":
			d = SafeChildByFieldName(d, "declarator")
		case "parenthesized_declarator":
			// int (*fp)(int) 是函数指针变量，不是函数
			return "", false
		case "identifier", "field_identifier":
			return l.text(d), isFunc
		default:
			return "", false
		}
	}
	return "", false
}

func (l *lowerer) lowerFunction(n *sitter.Node) *Function {
	decl := SafeChildByFieldName(n, "declarator")
	name, _ := functionDeclaratorName(l, decl)
	if name == "" {
		return nil
	}
	fn := &Function{Name: name, File: l.unit.FilePath, Pos: nodePos(n)}
	fd := decl
	for fd != nil && fd.Type() != "function_declarator" {
		fd = SafeChildByFieldName(fd, "declarator")
	}
	for _, p := range SafeNamedChildren(SafeChildByFieldName(fd, "parameters")) {
		if p.Type() != "parameter_declaration" {
			continue
		}
		pd := SafeChildByFieldName(p, "declarator")
		if pd == nil {
			continue
		}
		if d := l.declStmt(pd, l.typeName(SafeChildByFieldName(p, "type"))); d != nil {
			fn.Params = append(fn.Params, d)
		}
	}
	if body := SafeChildByFieldName(n, "body"); body != nil {
		fn.Body = l.lowerBlock(body)
	}
	return fn
}

// typeName 类型节点的规范文本，typedef 展开为底层类型
func (l *lowerer) typeName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier":
		name := l.text(n)
		if base, ok := l.typedefs[name]; ok {
			return base
		}
		return name
	case "struct_specifier", "union_specifier", "enum_specifier":
		kw := strings.TrimSuffix(n.Type(), "_specifier")
		if kw == "enum" {
			return "int"
		}
		if name := SafeChildByFieldName(n, "name"); name != nil {
			return kw + " " + l.text(name)
		}
		return kw
	case "type_descriptor":
		base := l.typeName(SafeChildByFieldName(n, "type"))
		if d := SafeChildByFieldName(n, "declarator"); d != nil && strings.Contains(l.text(d), "*") {
			return base + strings.Repeat("*", strings.Count(l.text(d), "*"))
		}
		return base
	}
	return strings.Join(strings.Fields(l.text(n)), " ")
}

// lowerDeclaration 一个 declaration 可能声明多个变量；函数原型只登记函数名
func (l *lowerer) lowerDeclaration(n *sitter.Node) []*DeclStmt {
	base := l.typeName(SafeChildByFieldName(n, "type"))
	var out []*DeclStmt
	for _, d := range childrenByField(n, "declarator") {
		if name, isFunc := functionDeclaratorName(l, d); isFunc {
			l.tu.FuncNames[name] = true
			continue
		}
		if ds := l.declStmt(d, base); ds != nil {
			out = append(out, ds)
		}
	}
	return out
}

// declStmt 由声明符构造 DeclStmt
func (l *lowerer) declStmt(d *sitter.Node, base string) *DeclStmt {
	ds := &DeclStmt{Pos: nodePos(d), InitCount: -1}
	var dims []*sitter.Node
	ptr := 0
	var init *sitter.Node
	for cur := d; cur != nil; {
		switch cur.Type() {
		case "init_declarator":
			init = SafeChildByFieldName(cur, "value")
			cur = SafeChildByFieldName(cur, "declarator")
		case "pointer_declarator", "abstract_pointer_declarator":
			ptr++
			cur = SafeChildByFieldName(cur, "declarator")
		case "array_declarator", "abstract_array_declarator":
			// 由外向内遍历，外层是最低维
			dims = append([]*sitter.Node{SafeChildByFieldName(cur, "size")}, dims...)
			cur = SafeChildByFieldName(cur, "declarator")
		case "parenthesized_declarator", "attributed_declarator":
			cur = SafeNamedChild(cur, 0)
		case "function_declarator":
			// 函数指针
			ptr++
			cur = SafeChildByFieldName(cur, "declarator")
		case "identifier":
			ds.Name = l.text(cur)
			ds.Pos = nodePos(cur)
			cur = nil
		default:
			cur = nil
		}
	}
	if ds.Name == "" {
		return nil
	}

	switch {
	case len(dims) > 0:
		ds.Kind = KindArray
		ds.TypeName = base + strings.Repeat("*", ptr)
		for _, sz := range dims {
			if sz == nil {
				ds.Dims = append(ds.Dims, SizeUnknown)
				ds.DimExprs = append(ds.DimExprs, nil)
				continue
			}
			e := l.lowerExpr(sz)
			if lit, ok := e.(*IntLit); ok {
				ds.Dims = append(ds.Dims, int(lit.Value))
			} else {
				ds.Dims = append(ds.Dims, SizeUnknown)
			}
			ds.DimExprs = append(ds.DimExprs, e)
		}
	case ptr > 0:
		ds.Kind = KindPointer
		ds.TypeName = base + strings.Repeat("*", ptr-1)
	default:
		ds.Kind = KindScalar
		ds.TypeName = base
	}

	if init != nil {
		switch init.Type() {
		case "initializer_list":
			ds.InitCount = len(SafeNamedChildren(init))
			ds.Init = l.opaque(init)
		case "string_literal":
			ds.InitCount = stringLiteralLength(l.text(init)) + 1
			ds.Init = l.lowerExpr(init)
		default:
			ds.Init = l.lowerExpr(init)
		}
	}
	return ds
}

// ---- 语句 ----

func (l *lowerer) lowerBlock(n *sitter.Node) *BlockStmt {
	b := &BlockStmt{Pos: nodePos(n)}
	for _, child := range SafeNamedChildren(n) {
		b.Stmts = append(b.Stmts, l.lowerStmts(child)...)
	}
	return b
}

// lowerStmts 降级一条语句；声明可能展开为多条
func (l *lowerer) lowerStmts(n *sitter.Node) []Stmt {
	switch n.Type() {
	case "declaration":
		var out []Stmt
		for _, d := range l.lowerDeclaration(n) {
			out = append(out, d)
		}
		return out
	case "labeled_statement":
		out := []Stmt{l.unsupported(n, "label", SafeChildByFieldName(n, "label"))}
		for _, child := range SafeNamedChildren(n) {
			if child.Type() != "statement_identifier" {
				out = append(out, l.lowerStmts(child)...)
			}
		}
		return out
	case "type_definition", "struct_specifier", "enum_specifier", "union_specifier", "preproc_def", "preproc_call", "preproc_include":
		return nil
	case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
		var out []Stmt
		for _, child := range SafeNamedChildren(n) {
			switch child.Type() {
			case "identifier", "preproc_defined", "binary_expression", "unary_expression", "parenthesized_expression", "number_literal":
				continue
			}
			out = append(out, l.lowerStmts(child)...)
		}
		return out
	}
	if s := l.lowerStmt(n); s != nil {
		return []Stmt{s}
	}
	return nil
}

// lowerStmt 降级单条语句，作为 if/循环体时多条声明包装成块
func (l *lowerer) lowerStmt(n *sitter.Node) Stmt {
	if n == nil {
		return nil
	}
	pos := nodePos(n)
	switch n.Type() {
	case "compound_statement":
		return l.lowerBlock(n)
	case "expression_statement":
		e := SafeNamedChild(n, 0)
		if e == nil {
			return nil
		}
		if e.Type() == "assignment_expression" {
			return &AssignStmt{
				Pos: pos,
				LHS: l.lowerExpr(SafeChildByFieldName(e, "left")),
				Op:  l.text(SafeChildByFieldName(e, "operator")),
				RHS: l.lowerExpr(SafeChildByFieldName(e, "right")),
			}
		}
		return &ExprStmt{Pos: pos, X: l.lowerExpr(e)}
	case "if_statement":
		s := &IfStmt{
			Pos:  pos,
			Cond: l.lowerExpr(SafeChildByFieldName(n, "condition")),
			Then: l.lowerStmt(SafeChildByFieldName(n, "consequence")),
		}
		if alt := SafeChildByFieldName(n, "alternative"); alt != nil {
			if alt.Type() == "else_clause" {
				alt = SafeNamedChild(alt, 0)
			}
			s.Else = l.lowerStmt(alt)
		}
		return s
	case "while_statement":
		return &WhileStmt{
			Pos:  pos,
			Cond: l.lowerExpr(SafeChildByFieldName(n, "condition")),
			Body: l.lowerStmt(SafeChildByFieldName(n, "body")),
		}
	case "do_statement":
		return &WhileStmt{
			Pos:     pos,
			Cond:    l.lowerExpr(SafeChildByFieldName(n, "condition")),
			Body:    l.lowerStmt(SafeChildByFieldName(n, "body")),
			DoWhile: true,
		}
	case "for_statement":
		return l.lowerFor(n)
	case "switch_statement":
		return l.lowerSwitch(n)
	case "return_statement":
		s := &ReturnStmt{Pos: pos}
		if e := SafeNamedChild(n, 0); e != nil {
			s.Result = l.lowerExpr(e)
		}
		return s
	case "break_statement":
		return &BreakStmt{Pos: pos}
	case "continue_statement":
		return &ContinueStmt{Pos: pos}
	case "declaration", "labeled_statement":
		stmts := l.lowerStmts(n)
		if len(stmts) == 1 {
			return stmts[0]
		}
		return &BlockStmt{Pos: pos, Stmts: stmts}
	case "goto_statement":
		return l.unsupported(n, "goto", n)
	case "case_statement":
		// switch 体之外的 case 标签
		return l.unsupported(n, "case", n)
	case "comment", ";":
		return nil
	}
	return l.unsupported(n, n.Type(), n)
}

func (l *lowerer) lowerFor(n *sitter.Node) Stmt {
	s := &ForStmt{Pos: nodePos(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		switch n.FieldNameForChild(i) {
		case "initializer":
			if child.Type() == "declaration" {
				for _, d := range l.lowerDeclaration(child) {
					s.Init = append(s.Init, d)
				}
			} else {
				s.Init = append(s.Init, l.exprStmt(child))
			}
		case "condition":
			s.Cond = l.lowerExpr(child)
		case "update":
			s.Post = l.exprStmt(child)
		case "body":
			s.Body = l.lowerStmt(child)
		}
	}
	// 老版本语法中声明式初始化没有字段名
	if len(s.Init) == 0 {
		if d := SafeNamedChild(n, 0); d != nil && d.Type() == "declaration" {
			for _, ds := range l.lowerDeclaration(d) {
				s.Init = append(s.Init, ds)
			}
		}
	}
	return s
}

// exprStmt 把表达式包装成语句，赋值降级为 AssignStmt
func (l *lowerer) exprStmt(n *sitter.Node) Stmt {
	if n.Type() == "assignment_expression" {
		return &AssignStmt{
			Pos: nodePos(n),
			LHS: l.lowerExpr(SafeChildByFieldName(n, "left")),
			Op:  l.text(SafeChildByFieldName(n, "operator")),
			RHS: l.lowerExpr(SafeChildByFieldName(n, "right")),
		}
	}
	return &ExprStmt{Pos: nodePos(n), X: l.lowerExpr(n)}
}

func (l *lowerer) lowerSwitch(n *sitter.Node) Stmt {
	s := &SwitchStmt{Pos: nodePos(n), Tag: l.lowerExpr(SafeChildByFieldName(n, "condition"))}
	body := SafeChildByFieldName(n, "body")
	var cur *CaseClause
	for _, child := range SafeNamedChildren(body) {
		if child.Type() != "case_statement" {
			// 第一个 case 之前的语句不可达
			if cur != nil {
				cur.Body = append(cur.Body, l.lowerStmts(child)...)
			}
			continue
		}
		cur = &CaseClause{Pos: nodePos(child)}
		value := SafeChildByFieldName(child, "value")
		if value == nil {
			cur.Default = true
		} else {
			cur.Values = []Expr{l.lowerExpr(value)}
		}
		for i := 0; i < int(child.NamedChildCount()); i++ {
			st := child.NamedChild(i)
			if st == nil || (value != nil && st.StartByte() == value.StartByte() && st.EndByte() == value.EndByte()) || st.Type() == "comment" {
				continue
			}
			cur.Body = append(cur.Body, l.lowerStmts(st)...)
		}
		s.Cases = append(s.Cases, cur)
	}
	return s
}

func (l *lowerer) unsupported(n *sitter.Node, kind string, scope *sitter.Node) *UnsupportedStmt {
	return &UnsupportedStmt{
		Pos:    nodePos(n),
		Kind:   kind,
		Text:   firstLine(l.text(n)),
		Idents: l.identsIn(scope),
	}
}

// ---- 表达式 ----

func (l *lowerer) lowerExpr(n *sitter.Node) Expr {
	if n == nil {
		return nil
	}
	pos := nodePos(n)
	switch n.Type() {
	case "parenthesized_expression":
		return l.lowerExpr(SafeNamedChild(n, 0))
	case "identifier":
		name := l.text(n)
		if name == "NULL" {
			return &NullLit{Pos: pos}
		}
		if v, ok := l.tu.Consts[name]; ok {
			return &IntLit{Pos: pos, Value: v}
		}
		if v, ok := builtinConstants[name]; ok {
			return &IntLit{Pos: pos, Value: v}
		}
		return &Ident{Pos: pos, Name: name}
	case "number_literal":
		if v, ok := parseIntLiteral(l.text(n)); ok {
			return &IntLit{Pos: pos, Value: v}
		}
		return &OpaqueExpr{Pos: pos, Text: l.text(n)}
	case "char_literal":
		if v, ok := parseCharLiteral(l.text(n)); ok {
			return &IntLit{Pos: pos, Value: v}
		}
		return &OpaqueExpr{Pos: pos, Text: l.text(n)}
	case "true":
		return &IntLit{Pos: pos, Value: 1}
	case "false":
		return &IntLit{Pos: pos, Value: 0}
	case "null":
		return &NullLit{Pos: pos}
	case "string_literal", "concatenated_string":
		return &OpaqueExpr{Pos: pos, Text: l.text(n)}
	case "binary_expression":
		return &BinaryExpr{
			Pos: pos,
			Op:  l.text(SafeChildByFieldName(n, "operator")),
			X:   l.lowerExpr(SafeChildByFieldName(n, "left")),
			Y:   l.lowerExpr(SafeChildByFieldName(n, "right")),
		}
	case "comma_expression":
		return &BinaryExpr{
			Pos: pos,
			Op:  ",",
			X:   l.lowerExpr(SafeChildByFieldName(n, "left")),
			Y:   l.lowerExpr(SafeChildByFieldName(n, "right")),
		}
	case "unary_expression", "pointer_expression":
		return &UnaryExpr{
			Pos: pos,
			Op:  l.text(SafeChildByFieldName(n, "operator")),
			X:   l.lowerExpr(SafeChildByFieldName(n, "argument")),
		}
	case "update_expression":
		arg := SafeChildByFieldName(n, "argument")
		op := SafeChildByFieldName(n, "operator")
		return &UnaryExpr{
			Pos:     pos,
			Op:      l.text(op),
			X:       l.lowerExpr(arg),
			Postfix: arg != nil && op != nil && arg.StartByte() < op.StartByte(),
		}
	case "assignment_expression":
		return &AssignExpr{
			Pos: pos,
			LHS: l.lowerExpr(SafeChildByFieldName(n, "left")),
			Op:  l.text(SafeChildByFieldName(n, "operator")),
			RHS: l.lowerExpr(SafeChildByFieldName(n, "right")),
		}
	case "subscript_expression":
		idx := SafeChildByFieldName(n, "index")
		if idx == nil {
			idx = SafeNamedChild(n, 1)
		}
		return &IndexExpr{
			Pos:   pos,
			X:     l.lowerExpr(SafeChildByFieldName(n, "argument")),
			Index: l.lowerExpr(idx),
		}
	case "call_expression":
		call := &CallExpr{Pos: pos}
		fn := SafeChildByFieldName(n, "function")
		if fn != nil && fn.Type() == "identifier" {
			call.Fun = l.text(fn)
		} else if fn != nil {
			call.Args = append(call.Args, l.lowerExpr(fn))
		}
		for _, a := range SafeNamedChildren(SafeChildByFieldName(n, "arguments")) {
			call.Args = append(call.Args, l.lowerExpr(a))
		}
		return call
	case "field_expression":
		return &MemberExpr{
			Pos:   pos,
			X:     l.lowerExpr(SafeChildByFieldName(n, "argument")),
			Field: l.text(SafeChildByFieldName(n, "field")),
			Arrow: l.text(SafeChildByFieldName(n, "operator")) == "->",
		}
	case "cast_expression":
		return &CastExpr{
			Pos:      pos,
			TypeName: l.typeName(SafeChildByFieldName(n, "type")),
			X:        l.lowerExpr(SafeChildByFieldName(n, "value")),
		}
	case "sizeof_expression":
		if t := SafeChildByFieldName(n, "type"); t != nil {
			return &SizeofExpr{Pos: pos, TypeName: l.typeName(t)}
		}
		value := SafeChildByFieldName(n, "value")
		// sizeof(T) 中的 typedef 名可能被解析成标识符
		inner := value
		for inner != nil && inner.Type() == "parenthesized_expression" {
			inner = SafeNamedChild(inner, 0)
		}
		if inner != nil && inner.Type() == "identifier" {
			if base, ok := l.typedefs[l.text(inner)]; ok {
				return &SizeofExpr{Pos: pos, TypeName: base}
			}
		}
		return &SizeofExpr{Pos: pos, X: l.lowerExpr(value)}
	case "conditional_expression":
		return &CondExpr{
			Pos:  pos,
			Cond: l.lowerExpr(SafeChildByFieldName(n, "condition")),
			Then: l.lowerExpr(SafeChildByFieldName(n, "consequence")),
			Else: l.lowerExpr(SafeChildByFieldName(n, "alternative")),
		}
	}
	return l.opaque(n)
}

func (l *lowerer) opaque(n *sitter.Node) *OpaqueExpr {
	return &OpaqueExpr{Pos: nodePos(n), Text: firstLine(l.text(n)), Idents: l.identsIn(n)}
}

// identsIn 收集子树中引用的变量名（排除宏与常量）
func (l *lowerer) identsIn(n *sitter.Node) []*Ident {
	var out []*Ident
	var walk func(*sitter.Node)
	walk = func(c *sitter.Node) {
		if c == nil {
			return
		}
		if c.Type() == "identifier" {
			name := l.text(c)
			_, isConst := l.tu.Consts[name]
			_, isBuiltin := builtinConstants[name]
			if !isConst && !isBuiltin && name != "NULL" {
				out = append(out, &Ident{Pos: nodePos(c), Name: name})
			}
			return
		}
		if c.Type() == "call_expression" {
			// 被调函数名不是变量
			for _, a := range SafeNamedChildren(SafeChildByFieldName(c, "arguments")) {
				walk(a)
			}
			return
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			walk(c.NamedChild(i))
		}
	}
	walk(n)
	return out
}

// collectErrors 记录 ERROR 与 MISSING 节点
func (l *lowerer) collectErrors(n *sitter.Node, function string) {
	if n == nil || !n.HasError() {
		return
	}
	if n.Type() == "function_definition" {
		if name, _ := functionDeclaratorName(l, SafeChildByFieldName(n, "declarator")); name != "" {
			function = name
		}
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		text := firstLine(l.text(n))
		if n.IsMissing() {
			text = "missing " + n.Type()
		}
		l.tu.SyntaxErrors = append(l.tu.SyntaxErrors, SyntaxError{Pos: nodePos(n), Text: text, Function: function})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		l.collectErrors(n.Child(i), function)
	}
}

// ---- 字面量 ----

// parseIntLiteral 解析十进制/十六进制/八进制/二进制整数，忽略 u/l 后缀
func parseIntLiteral(s string) (int64, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), "uUlL")
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return 0, false
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		base, s = 2, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, s = 8, s[1:]
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(s, base, 64)
		if uerr != nil {
			return 0, false
		}
		return int64(u), true
	}
	return v, true
}

// parseCharLiteral 'a'、'\n'、'\0' 等
func parseCharLiteral(s string) (int64, bool) {
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, false
	}
	body := s[1 : len(s)-1]
	if body[0] != '\\' {
		return int64(body[0]), len(body) == 1
	}
	if len(body) < 2 {
		return 0, false
	}
	switch body[1] {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		if len(body) == 2 {
			return 0, true
		}
		v, err := strconv.ParseInt(body[1:], 8, 64)
		return v, err == nil
	case '\\', '\'', '"', '?':
		return int64(body[1]), true
	case 'x':
		v, err := strconv.ParseInt(body[2:], 16, 64)
		return v, err == nil
	}
	return 0, false
}

// stringLiteralLength 字符串字面量的字符数（不含结尾的 '\0'）
func stringLiteralLength(lit string) int {
	if len(lit) < 2 {
		return 0
	}
	body := lit[1 : len(lit)-1]
	n := 0
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			if body[i] == 'x' {
				for i+1 < len(body) && strings.IndexByte("0123456789abcdefABCDEF", body[i+1]) >= 0 {
					i++
				}
			} else if body[i] >= '0' && body[i] <= '7' {
				for k := 0; k < 2 && i+1 < len(body) && body[i+1] >= '0' && body[i+1] <= '7'; k++ {
					i++
				}
			}
		}
		n++
	}
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
