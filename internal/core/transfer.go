package core

import (
	"fmt"
	"strings"
)

// absValue 表达式的抽象值
type absValue struct {
	iv    Interval
	ptr   PointerStatus
	isPtr bool
}

func intValue(iv Interval) absValue { return absValue{iv: iv, ptr: UnknownStatus()} }
func ptrValue(s PointerStatus) absValue {
	return absValue{iv: TopInterval(), ptr: s, isPtr: true}
}
func topValue() absValue { return intValue(TopInterval()) }

// builtinAllocators 内建分配函数，结果大小见 allocStatus
var builtinAllocators = map[string]bool{
	"malloc": true, "calloc": true, "realloc": true, "strdup": true,
	"strndup": true, "aligned_alloc": true, "valloc": true, "reallocarray": true,
}

// memoryConsumers 会通过指针参数读写内存的库函数及其参数下标
var memoryConsumers = map[string][]int{
	"memcpy": {0, 1}, "memmove": {0, 1}, "memset": {0}, "memcmp": {0, 1}, "memchr": {0},
	"strcpy": {0, 1}, "strncpy": {0, 1}, "strcat": {0, 1}, "strncat": {0, 1},
	"strcmp": {0, 1}, "strncmp": {0, 1}, "strlen": {0}, "strchr": {0}, "strrchr": {0},
	"strstr": {0, 1}, "strtok": {0}, "strdup": {0}, "strndup": {0}, "atoi": {0}, "atol": {0},
	"puts": {0}, "fputs": {0}, "fgets": {0}, "fread": {0}, "fwrite": {0},
	"qsort": {0}, "bsearch": {1},
}

// formatFuncs printf 族函数格式串所在的参数下标
var formatFuncs = map[string]int{
	"printf": 0, "fprintf": 1, "sprintf": 1, "snprintf": 2, "dprintf": 1,
	"scanf": 0, "fscanf": 1, "sscanf": 1,
}

// transferBlock 依次执行块内语句；sink 非空时记录事件
func (r *run) transferBlock(blk *BasicBlock, in *AbstractState, sink *eventSink) *AbstractState {
	st := in.Clone()
	for _, s := range blk.Stmts {
		r.execStmt(st, s, sink)
	}
	if blk.Cond != nil {
		r.eval(st, blk.Cond, sink)
	}
	if blk.Switch != nil {
		r.eval(st, blk.Switch, sink)
	}
	return st
}

func (r *run) execStmt(st *AbstractState, s Stmt, sink *eventSink) {
	switch x := s.(type) {
	case *DeclStmt:
		r.execDecl(st, x, sink)
	case *AssignStmt:
		r.assign(st, x.LHS, x.Op, x.RHS, sink)
	case *ExprStmt:
		r.eval(st, x.X, sink)
	case *ReturnStmt:
		r.eval(st, x.Result, sink)
	case *UnsupportedStmt:
		for _, id := range x.Idents {
			if v := r.symbols.Lookup(id); v != nil {
				st.Forget(v.ID)
			}
		}
	}
}

func (r *run) execDecl(st *AbstractState, d *DeclStmt, sink *eventSink) {
	v := r.symbols.Declared(d)
	if v == nil {
		return
	}
	if r.symbols.IsDuplicate(d) {
		r.eval(st, d.Init, sink)
		st.Forget(v.ID)
		return
	}
	switch v.Kind {
	case KindArray:
		r.eval(st, d.Init, sink)
		if v.Size >= 0 {
			st.SetPtr(v.ID, LiveStatus(v.Size))
		} else if len(d.DimExprs) > 0 && d.DimExprs[0] != nil {
			n := r.eval(st, d.DimExprs[0], sink).iv
			if n.Lo < 0 {
				n = n.Meet(Range(0, PosInf))
			}
			st.SetPtr(v.ID, LiveRange(n))
		} else {
			st.Forget(v.ID)
		}
	case KindPointer:
		if d.Init == nil {
			st.Forget(v.ID)
			return
		}
		st.SetPtr(v.ID, r.pointerOf(r.eval(st, d.Init, sink)))
	default:
		if d.Init == nil {
			st.Forget(v.ID)
			return
		}
		st.SetInt(v.ID, r.eval(st, d.Init, sink).iv)
	}
}

// pointerOf 把赋给指针的值转换为指针状态
func (r *run) pointerOf(val absValue) PointerStatus {
	if val.isPtr {
		return val.ptr
	}
	if c, ok := val.iv.IsConst(); ok && c == 0 {
		return NullStatus()
	}
	return UnknownStatus()
}

// assign 处理赋值与复合赋值，返回赋值后左值的抽象值
func (r *run) assign(st *AbstractState, lhs Expr, op string, rhs Expr, sink *eventSink) absValue {
	val := r.eval(st, rhs, sink)
	v := r.symbols.VarOf(lhs)
	if v == nil {
		// 写入内存单元：只检查访问本身
		r.evalLValue(st, lhs, sink)
		return val
	}
	switch v.Kind {
	case KindPointer:
		var s PointerStatus
		switch op {
		case "=":
			s = r.pointerOf(val)
		case "+=":
			s = offsetStatus(st.Ptr(v.ID), val.iv)
		case "-=":
			s = offsetStatus(st.Ptr(v.ID), val.iv.Neg())
		default:
			s = UnknownStatus()
		}
		st.SetPtr(v.ID, s)
		return ptrValue(s)
	case KindScalar:
		iv := val.iv
		if op != "=" {
			iv = arith(strings.TrimSuffix(op, "="), st.Int(v.ID), val.iv)
		}
		st.SetInt(v.ID, iv)
		return intValue(iv)
	}
	return val
}

// evalLValue 对赋值左侧做访问检查
func (r *run) evalLValue(st *AbstractState, lhs Expr, sink *eventSink) {
	switch x := StripParensAndCasts(lhs).(type) {
	case *IndexExpr:
		r.indexAccess(st, x, sink, true)
	case *UnaryExpr:
		if x.Op == "*" {
			r.derefAccess(st, x.X, x.Pos, ExprString(x), sink, true)
		} else {
			r.eval(st, x, sink)
		}
	case *MemberExpr:
		r.memberAccess(st, x, sink, true)
	default:
		r.eval(st, lhs, sink)
	}
}

// eval 计算表达式的抽象值，同时执行其副作用并记录访问事件
func (r *run) eval(st *AbstractState, e Expr, sink *eventSink) absValue {
	switch x := e.(type) {
	case nil:
		return topValue()
	case *CastExpr:
		return r.eval(st, x.X, sink)
	case *Ident:
		v := r.symbols.Lookup(x)
		if v == nil {
			return topValue()
		}
		switch v.Kind {
		case KindPointer:
			return ptrValue(st.Ptr(v.ID))
		case KindArray:
			return ptrValue(r.arrayStatus(st, v))
		}
		return intValue(st.Int(v.ID))
	case *IntLit:
		return intValue(Const(x.Value))
	case *NullLit:
		return ptrValue(NullStatus())
	case *SizeofExpr:
		if n := r.symbols.Sizeof(x); n > 0 {
			return intValue(Const(n))
		}
		return intValue(Range(0, PosInf))
	case *UnaryExpr:
		return r.evalUnary(st, x, sink)
	case *BinaryExpr:
		return r.evalBinary(st, x, sink)
	case *IndexExpr:
		r.indexAccess(st, x, sink, false)
		return topValue()
	case *MemberExpr:
		r.memberAccess(st, x, sink, false)
		return topValue()
	case *CallExpr:
		return r.evalCall(st, x, sink)
	case *CondExpr:
		return r.evalCond(st, x, sink)
	case *AssignExpr:
		return r.assign(st, x.LHS, x.Op, x.RHS, sink)
	}
	return topValue()
}

func (r *run) evalUnary(st *AbstractState, x *UnaryExpr, sink *eventSink) absValue {
	switch x.Op {
	case "*":
		r.derefAccess(st, x.X, x.Pos, ExprString(x), sink, false)
		return topValue()
	case "&":
		return ptrValue(r.addressOf(st, x.X, sink))
	case "-":
		return intValue(r.eval(st, x.X, sink).iv.Neg())
	case "+":
		return r.eval(st, x.X, sink)
	case "!":
		val := r.eval(st, x.X, sink)
		if val.isPtr {
			switch {
			case val.ptr.Kind == PtrNull:
				return intValue(Const(1))
			case val.ptr.Kind == PtrLive && !val.ptr.MaybeNull:
				return intValue(Const(0))
			}
			return intValue(Range(0, 1))
		}
		if c, ok := val.iv.IsConst(); ok {
			if c == 0 {
				return intValue(Const(1))
			}
			return intValue(Const(0))
		}
		if val.iv.Lo > 0 || val.iv.Hi < 0 {
			return intValue(Const(0))
		}
		return intValue(Range(0, 1))
	case "++", "--":
		return r.evalIncDec(st, x, sink)
	}
	r.eval(st, x.X, sink)
	return topValue()
}

func (r *run) evalIncDec(st *AbstractState, x *UnaryExpr, sink *eventSink) absValue {
	delta := Const(1)
	if x.Op == "--" {
		delta = Const(-1)
	}
	v := r.symbols.VarOf(x.X)
	if v == nil {
		r.evalLValue(st, x.X, sink)
		return topValue()
	}
	switch v.Kind {
	case KindPointer:
		old := st.Ptr(v.ID)
		next := offsetStatus(old, delta)
		st.SetPtr(v.ID, next)
		if x.Postfix {
			return ptrValue(old)
		}
		return ptrValue(next)
	case KindScalar:
		old := st.Int(v.ID)
		next := old.Add(delta)
		st.SetInt(v.ID, next)
		if x.Postfix {
			return intValue(old)
		}
		return intValue(next)
	}
	return topValue()
}

func (r *run) evalBinary(st *AbstractState, x *BinaryExpr, sink *eventSink) absValue {
	switch x.Op {
	case "&&", "||":
		return r.evalLogical(st, x, sink)
	}
	a := r.eval(st, x.X, sink)
	b := r.eval(st, x.Y, sink)
	switch x.Op {
	case ",":
		return b
	case "+":
		if a.isPtr && !b.isPtr {
			return ptrValue(offsetStatus(a.ptr, b.iv))
		}
		if b.isPtr && !a.isPtr {
			return ptrValue(offsetStatus(b.ptr, a.iv))
		}
	case "-":
		if a.isPtr && !b.isPtr {
			return ptrValue(offsetStatus(a.ptr, b.iv.Neg()))
		}
		if a.isPtr && b.isPtr {
			return topValue()
		}
	case "<", "<=", ">", ">=", "==", "!=":
		if !a.isPtr && !b.isPtr {
			if holds, known := compareIntervals(x.Op, a.iv, b.iv); known {
				if holds {
					return intValue(Const(1))
				}
				return intValue(Const(0))
			}
		}
		return intValue(Range(0, 1))
	}
	if a.isPtr || b.isPtr {
		return topValue()
	}
	return intValue(arith(x.Op, a.iv, b.iv))
}

// evalLogical 短路求值：右操作数只在左操作数允许的状态下求值
func (r *run) evalLogical(st *AbstractState, x *BinaryExpr, sink *eventSink) absValue {
	r.eval(st, x.X, sink)
	and := x.Op == "&&"
	rhs := r.refine(st, x.X, and)
	if rhs != nil {
		r.eval(rhs, x.Y, sink)
	}
	skip := r.refine(st, x.X, !and)
	merged := skip.Join(rhs)
	if merged != nil {
		*st = *merged
	}
	return intValue(Range(0, 1))
}

func (r *run) evalCond(st *AbstractState, x *CondExpr, sink *eventSink) absValue {
	r.eval(st, x.Cond, sink)
	thenSt := r.refine(st, x.Cond, true)
	elseSt := r.refine(st, x.Cond, false)
	var tv, ev absValue
	hasThen, hasElse := thenSt != nil, elseSt != nil
	if hasThen {
		tv = r.eval(thenSt, x.Then, sink)
	}
	if hasElse {
		ev = r.eval(elseSt, x.Else, sink)
	}
	if merged := thenSt.Join(elseSt); merged != nil {
		*st = *merged
	}
	switch {
	case hasThen && hasElse:
		if tv.isPtr || ev.isPtr {
			return ptrValue(r.pointerOf(tv).Join(r.pointerOf(ev)))
		}
		return intValue(tv.iv.Join(ev.iv))
	case hasThen:
		return tv
	case hasElse:
		return ev
	}
	return topValue()
}

// addressOf &x 的指针状态
func (r *run) addressOf(st *AbstractState, e Expr, sink *eventSink) PointerStatus {
	switch x := StripParensAndCasts(e).(type) {
	case *Ident:
		v := r.symbols.Lookup(x)
		if v != nil && v.IsArray() {
			return r.arrayStatus(st, v)
		}
		return LiveStatus(1)
	case *IndexExpr:
		// &a[i] 允许指向末尾之后一个元素，不做边界检查
		idx := r.eval(st, x.Index, sink)
		if v := r.symbols.VarOf(x.X); v != nil && v.IsArray() {
			if _, nested := x.X.(*IndexExpr); !nested {
				return offsetStatus(r.arrayStatus(st, v), idx.iv)
			}
		}
		r.eval(st, x.X, sink)
		return LiveStatus(SizeUnknown)
	case *MemberExpr:
		if x.Arrow {
			r.derefAccess(st, x.X, x.Pos, ExprString(x), sink, false)
		} else {
			r.eval(st, x.X, sink)
		}
		return LiveStatus(SizeUnknown)
	}
	r.eval(st, e, sink)
	return LiveStatus(SizeUnknown)
}

// arrayStatus 数组变量视为大小固定的 Live 对象
func (r *run) arrayStatus(st *AbstractState, v *Variable) PointerStatus {
	if v.Size >= 0 {
		return LiveStatus(v.Size)
	}
	return st.Ptr(v.ID)
}

// ---- 访问检查 ----

// derefAccess 通过指针表达式访问内存；*(v ± k) 按下标 ±k 检查边界
func (r *run) derefAccess(st *AbstractState, ptr Expr, pos Pos, text string, sink *eventSink, write bool) {
	v, off, ok := r.pointerOffset(st, ptr, sink)
	if !ok {
		r.eval(st, ptr, sink)
		return
	}
	var status PointerStatus
	if v.IsPointer() {
		status = st.Ptr(v.ID)
		r.emit(st, sink, Event{Kind: EventDeref, Pos: pos, Var: v, Expr: text, Status: status, Write: write})
	} else {
		status = r.arrayStatus(st, v)
	}
	size, known := accessSize(status)
	fact := accessFact(v, off, size, known)
	st.RecordBounds(fmt.Sprintf("%s#0", pos), fact)
	if !known {
		size = SizeUnknown
	}
	r.emit(st, sink, Event{
		Kind: EventIndex, Pos: pos, Var: v, Expr: text,
		Status: status, Index: off, Size: size, Bounds: fact, Write: write,
	})
}

// pointerOffset 把 v、v + e、e + v、v - e 拆成基址变量与元素偏移
func (r *run) pointerOffset(st *AbstractState, ptr Expr, sink *eventSink) (*Variable, Interval, bool) {
	base := func(e Expr) *Variable {
		if v := r.symbols.VarOf(e); v != nil && (v.IsPointer() || v.IsArray()) {
			return v
		}
		return nil
	}
	switch x := StripParensAndCasts(ptr).(type) {
	case *Ident:
		if v := base(x); v != nil {
			return v, Const(0), true
		}
	case *BinaryExpr:
		switch x.Op {
		case "+":
			if v := base(x.X); v != nil {
				return v, r.eval(st, x.Y, sink).iv, true
			}
			if v := base(x.Y); v != nil {
				return v, r.eval(st, x.X, sink).iv, true
			}
		case "-":
			if v := base(x.X); v != nil && base(x.Y) == nil {
				return v, r.eval(st, x.Y, sink).iv.Neg(), true
			}
		}
	}
	return nil, Interval{}, false
}

func (r *run) memberAccess(st *AbstractState, x *MemberExpr, sink *eventSink, write bool) {
	if x.Arrow {
		r.derefAccess(st, x.X, x.Pos, ExprString(x), sink, write)
		return
	}
	r.eval(st, x.X, sink)
}

// indexAccess 下标访问：对每一维计算边界结论，指针基址同时记录解引用
func (r *run) indexAccess(st *AbstractState, x *IndexExpr, sink *eventSink, write bool) {
	var idxs []Expr
	base := Expr(x)
	for {
		ie, ok := StripParensAndCasts(base).(*IndexExpr)
		if !ok {
			break
		}
		idxs = append([]Expr{ie.Index}, idxs...)
		base = ie.X
	}
	ivs := make([]Interval, len(idxs))
	for i, ix := range idxs {
		ivs[i] = r.eval(st, ix, sink).iv
	}

	v := r.symbols.VarOf(base)
	if v == nil || v.Kind == KindScalar {
		r.eval(st, base, sink)
		return
	}
	var status PointerStatus
	if v.IsPointer() {
		status = st.Ptr(v.ID)
		r.emit(st, sink, Event{Kind: EventDeref, Pos: x.Pos, Var: v, Expr: ExprString(x), Status: status, Write: write})
	} else {
		status = r.arrayStatus(st, v)
	}

	for k, iv := range ivs {
		size, known := int64(SizeUnknown), false
		if k == 0 {
			size, known = accessSize(status)
		} else if v.IsArray() && k < len(v.Dims) && v.Dims[k] >= 0 {
			size, known = v.Dims[k], true
		}
		fact := boundsFact(iv, size, known)
		if k == 0 {
			fact = accessFact(v, iv, size, known)
		}
		st.RecordBounds(fmt.Sprintf("%s#%d", x.Pos, k), fact)
		if !known {
			size = SizeUnknown
		}
		r.emit(st, sink, Event{
			Kind: EventIndex, Pos: x.Pos, Var: v, Expr: ExprString(x),
			Status: status, Index: iv, Size: size, Dim: k, Bounds: fact, Write: write,
		})
	}
}

// boundsFact 下标区间与数组大小比较的结论；任一有限端越界即为 MaybeOOB
func boundsFact(idx Interval, size int64, known bool) BoundsFact {
	if idx.IsEmpty() {
		return BoundsNone
	}
	if !known {
		return BoundsUnknown
	}
	switch {
	case idx.Lo != NegInf && idx.Lo >= size, idx.Hi != PosInf && idx.Hi < 0:
		return BoundsMaybeOOB
	case idx.Hi != PosInf && idx.Hi >= size, idx.Lo != NegInf && idx.Lo < 0:
		return BoundsMaybeOOB
	case idx.Bounded() && idx.Lo >= 0 && idx.Hi < size:
		return BoundsInBounds
	}
	return BoundsUnknown
}

// accessFact 指针可能已经前移，负偏移只对数组检查下界
func accessFact(v *Variable, idx Interval, size int64, known bool) BoundsFact {
	if v.IsPointer() && !idx.IsEmpty() && idx.Lo < 0 {
		if known && idx.Hi != PosInf && idx.Hi >= size {
			return BoundsMaybeOOB
		}
		return BoundsUnknown
	}
	return boundsFact(idx, size, known)
}

// accessSize 从当前位置起可访问的元素数下界；偏移越过末尾时可以为 0 或负数
func accessSize(s PointerStatus) (int64, bool) {
	if s.Kind != PtrLive || s.Size.IsEmpty() || s.Size.Lo == NegInf || s.Size.Hi == PosInf && s.Size.Lo < 0 {
		return 0, false
	}
	return s.Size.Lo, true
}

// ---- 函数调用 ----

func (r *run) evalCall(st *AbstractState, call *CallExpr, sink *eventSink) absValue {
	args := make([]absValue, len(call.Args))
	for i, a := range call.Args {
		if u, ok := StripParensAndCasts(a).(*UnaryExpr); ok && u.Op == "&" {
			args[i] = ptrValue(r.addressOf(st, u.X, sink))
			continue
		}
		args[i] = r.eval(st, a, sink)
	}

	for _, i := range r.consumedArgs(call) {
		if i < len(call.Args) {
			r.useArg(st, call, call.Args[i], sink)
		}
	}

	switch {
	case r.t.freeFuncs[call.Fun]:
		if len(call.Args) > 0 {
			r.freeArg(st, call, call.Args[0], sink)
		}
		return topValue()
	case call.Fun == "realloc" || call.Fun == "reallocarray":
		if len(call.Args) > 0 {
			if v := r.symbols.VarOf(call.Args[0]); v != nil && v.IsPointer() {
				// realloc(NULL, n) 合法，只有已释放的指针算作使用
				if old := st.Ptr(v.ID); old.mayFreed() {
					r.useArg(st, call, call.Args[0], sink)
				}
				st.Forget(v.ID)
			}
		}
	}

	if !isKnownFunction(call.Fun) && !r.t.allocFuncs[call.Fun] {
		// 取地址传给未知函数的变量可能被改写
		for _, a := range call.Args {
			if u, ok := StripParensAndCasts(a).(*UnaryExpr); ok && u.Op == "&" {
				if v := r.symbols.VarOf(u.X); v != nil {
					st.Forget(v.ID)
				}
			}
		}
	}
	if _, ok := formatFuncs[call.Fun]; ok && strings.HasSuffix(call.Fun, "scanf") {
		for _, a := range call.Args {
			if u, ok := StripParensAndCasts(a).(*UnaryExpr); ok && u.Op == "&" {
				if v := r.symbols.VarOf(u.X); v != nil {
					st.Forget(v.ID)
				}
			}
		}
	}

	if builtinAllocators[call.Fun] || r.t.allocFuncs[call.Fun] {
		return ptrValue(r.allocStatus(call, args))
	}
	return topValue()
}

// consumedArgs 调用中会被解引用的指针参数下标
func (r *run) consumedArgs(call *CallExpr) []int {
	if idx, ok := memoryConsumers[call.Fun]; ok {
		return idx
	}
	fi, ok := formatFuncs[call.Fun]
	if !ok || fi >= len(call.Args) {
		return nil
	}
	lit, ok := call.Args[fi].(*OpaqueExpr)
	if !ok {
		return nil
	}
	var out []int
	for i, conv := range formatConversions(lit.Text) {
		if conv == 's' || (conv != 'p' && strings.HasSuffix(call.Fun, "scanf")) {
			out = append(out, fi+1+i)
		}
	}
	return out
}

// formatConversions 解析格式串中的转换符（跳过 %%）
func formatConversions(format string) []byte {
	var convs []byte
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		for i < len(format) && strings.IndexByte("-+ #0123456789.*hlLqjzt", format[i]) >= 0 {
			if format[i] == '*' {
				convs = append(convs, '*')
			}
			i++
		}
		if i < len(format) && format[i] != '%' {
			convs = append(convs, format[i])
		}
	}
	return convs
}

func (r *run) useArg(st *AbstractState, call *CallExpr, arg Expr, sink *eventSink) {
	v := r.symbols.VarOf(arg)
	if v == nil || !v.IsPointer() {
		return
	}
	r.emit(st, sink, Event{
		Kind: EventDeref, Pos: call.Pos, Var: v, Expr: ExprString(call),
		Callee: call.Fun, Status: st.Ptr(v.ID),
	})
}

// freeArg free(p)：记录事件后把 p 置为 Freed；free(NULL) 不改变状态
func (r *run) freeArg(st *AbstractState, call *CallExpr, arg Expr, sink *eventSink) {
	v := r.symbols.VarOf(arg)
	if v == nil || !v.IsPointer() {
		return
	}
	old := st.Ptr(v.ID)
	r.emit(st, sink, Event{
		Kind: EventFree, Pos: call.Pos, Var: v, Expr: ExprString(call),
		Callee: call.Fun, Status: old,
	})
	if old.Kind == PtrNull {
		return
	}
	st.SetPtr(v.ID, FreedStatus())
}

// allocStatus 分配结果：字节数除以元素大小得到元素个数
func (r *run) allocStatus(call *CallExpr, args []absValue) PointerStatus {
	bytes := TopInterval()
	arg := func(i int) Interval {
		if i < len(args) {
			return args[i].iv
		}
		return TopInterval()
	}
	switch call.Fun {
	case "malloc", "valloc":
		bytes = arg(0)
	case "calloc", "reallocarray":
		off := 0
		if call.Fun == "reallocarray" {
			off = 1
		}
		bytes = arg(off).Mul(arg(off + 1))
	case "realloc":
		bytes = arg(1)
	case "aligned_alloc":
		bytes = arg(1)
	default:
		return LiveStatus(SizeUnknown)
	}
	elem := int64(1)
	if lhs := r.allocTargetElem(call); lhs > 0 {
		elem = lhs
	}
	if !bytes.Bounded() || bytes.Lo < 0 {
		return LiveStatus(SizeUnknown)
	}
	return LiveRange(bytes.Div(Const(elem)))
}

// allocTargetElem 分配结果的元素大小，取自 sizeof 参数
func (r *run) allocTargetElem(call *CallExpr) int64 {
	var elem int64
	for _, a := range call.Args {
		InspectExpr(a, func(e Expr) bool {
			if s, ok := e.(*SizeofExpr); ok && elem == 0 {
				elem = r.symbols.Sizeof(s)
				return false
			}
			return true
		})
	}
	return elem
}

func isKnownFunction(name string) bool {
	if _, ok := memoryConsumers[name]; ok {
		return true
	}
	if _, ok := formatFuncs[name]; ok {
		return true
	}
	return builtinAllocators[name] || name == "free"
}

// ---- 辅助 ----

func (r *run) emit(st *AbstractState, sink *eventSink, ev Event) {
	if sink == nil {
		return
	}
	ev.Block = sink.block
	ev.Snapshot = st.Snapshot(r.symbols)
	sink.events = append(sink.events, ev)
}

// offsetStatus 指针偏移后的状态：Live 的剩余元素数相应减少
func offsetStatus(s PointerStatus, off Interval) PointerStatus {
	switch s.Kind {
	case PtrLive:
		if s.Size.IsTop() {
			return s
		}
		s.Size = s.Size.Sub(off)
		if s.Size.IsEmpty() {
			s.Size = TopInterval()
		}
		return s
	case PtrNull:
		return UnknownStatus()
	}
	return s
}

// arith 整数二元运算
func arith(op string, a, b Interval) Interval {
	switch op {
	case "+":
		return a.Add(b)
	case "-":
		return a.Sub(b)
	case "*":
		return a.Mul(b)
	case "/":
		return a.Div(b)
	case "%":
		return a.Rem(b)
	case "&":
		if c, ok := b.IsConst(); ok && c >= 0 {
			return Range(0, c)
		}
		if c, ok := a.IsConst(); ok && c >= 0 {
			return Range(0, c)
		}
	case "<<":
		if c, ok := b.IsConst(); ok && c >= 0 && c < 31 {
			return a.Mul(Const(int64(1) << uint(c)))
		}
	case ">>":
		if c, ok := b.IsConst(); ok && c >= 0 && c < 63 && a.Lo >= 0 {
			return a.Div(Const(int64(1) << uint(c)))
		}
	}
	return TopInterval()
}

// compareIntervals 比较结果是否在区间上可判定
func compareIntervals(op string, a, b Interval) (holds, known bool) {
	if a.IsEmpty() || b.IsEmpty() {
		return false, false
	}
	switch op {
	case "<":
		if a.Hi != PosInf && b.Lo != NegInf && a.Hi < b.Lo {
			return true, true
		}
		if a.Lo != NegInf && b.Hi != PosInf && a.Lo >= b.Hi {
			return false, true
		}
	case "<=":
		if a.Hi != PosInf && b.Lo != NegInf && a.Hi <= b.Lo {
			return true, true
		}
		if a.Lo != NegInf && b.Hi != PosInf && a.Lo > b.Hi {
			return false, true
		}
	case ">":
		return compareIntervals("<", b, a)
	case ">=":
		return compareIntervals("<=", b, a)
	case "==":
		ca, okA := a.IsConst()
		cb, okB := b.IsConst()
		if okA && okB {
			return ca == cb, true
		}
		if a.Meet(b).IsEmpty() {
			return false, true
		}
	case "!=":
		h, k := compareIntervals("==", a, b)
		return !h, k
	}
	return false, false
}
