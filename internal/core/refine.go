package core

// refineEdge 沿控制流边细化出口状态；不可行的边返回 nil
func (r *run) refineEdge(out *AbstractState, blk *BasicBlock, e *Edge) *AbstractState {
	switch e.Kind {
	case EdgeTrue:
		return r.refine(out, blk.Cond, true)
	case EdgeFalse:
		return r.refine(out, blk.Cond, false)
	case EdgeCase:
		return r.refineCase(out, blk.Switch, e.Values)
	}
	return out.Clone()
}

// refine 假设 cond 取值为 truth 时的状态
func (r *run) refine(st *AbstractState, cond Expr, truth bool) *AbstractState {
	if st == nil {
		return nil
	}
	c := st.Clone()
	if !r.refineInPlace(c, cond, truth) {
		return nil
	}
	return c
}

func (r *run) refineInPlace(st *AbstractState, cond Expr, truth bool) bool {
	switch x := StripParensAndCasts(cond).(type) {
	case nil:
		return true
	case *UnaryExpr:
		if x.Op == "!" {
			return r.refineInPlace(st, x.X, !truth)
		}
	case *AssignExpr:
		return r.refineInPlace(st, x.LHS, truth)
	case *IntLit:
		return (x.Value != 0) == truth
	case *NullLit:
		return !truth
	case *Ident:
		return r.refineTruthy(st, x, truth)
	case *BinaryExpr:
		switch x.Op {
		case "&&", "||":
			return r.refineLogical(st, x, truth)
		case "<", "<=", ">", ">=", "==", "!=":
			op := x.Op
			if !truth {
				op = negateOp(op)
			}
			return r.refineCompare(st, op, x.X, x.Y)
		}
	}
	val := r.evalPure(st, cond)
	if !val.isPtr {
		if c, ok := val.iv.IsConst(); ok {
			return (c != 0) == truth
		}
	}
	return true
}

// refineLogical a && b 为真要求两边都为真，为假时取两种情况的并；|| 对偶
func (r *run) refineLogical(st *AbstractState, x *BinaryExpr, truth bool) bool {
	both := (x.Op == "&&") == truth
	if both {
		return r.refineInPlace(st, x.X, truth) && r.refineInPlace(st, x.Y, truth)
	}
	first := r.refine(st, x.X, truth)
	second := r.refine(st, x.X, !truth)
	if second != nil && !r.refineInPlace(second, x.Y, truth) {
		second = nil
	}
	merged := first.Join(second)
	if merged == nil {
		return false
	}
	*st = *merged
	return true
}

// refineTruthy if (p) / if (i)
func (r *run) refineTruthy(st *AbstractState, id *Ident, truth bool) bool {
	v := r.symbols.Lookup(id)
	if v == nil {
		return true
	}
	switch v.Kind {
	case KindPointer:
		return refineNullTest(st, v, !truth)
	case KindScalar:
		if truth {
			return refineInt(st, v, "!=", Const(0))
		}
		return refineInt(st, v, "==", Const(0))
	}
	return true
}

func (r *run) refineCompare(st *AbstractState, op string, x, y Expr) bool {
	xv, yv := r.symbols.VarOf(x), r.symbols.VarOf(y)
	if op == "==" || op == "!=" {
		if xv != nil && xv.IsPointer() && isNullConst(y) {
			return refineNullTest(st, xv, op == "==")
		}
		if yv != nil && yv.IsPointer() && isNullConst(x) {
			return refineNullTest(st, yv, op == "==")
		}
	}

	a, b := r.evalPure(st, x), r.evalPure(st, y)
	if a.isPtr || b.isPtr {
		return true
	}
	if holds, known := compareIntervals(op, a.iv, b.iv); known {
		return holds
	}
	if xv != nil && xv.Kind == KindScalar {
		if !refineInt(st, xv, op, b.iv) {
			return false
		}
		a = r.evalPure(st, x)
	}
	if yv != nil && yv.Kind == KindScalar {
		if !refineInt(st, yv, flipOp(op), a.iv) {
			return false
		}
	}
	return true
}

// refineCase switch 的 case 边：标签变量取 case 值
func (r *run) refineCase(st *AbstractState, tag Expr, values []Expr) *AbstractState {
	c := st.Clone()
	v := r.symbols.VarOf(tag)
	if v == nil || v.Kind != KindScalar {
		return c
	}
	hull := EmptyInterval()
	for _, val := range values {
		k, ok := r.symbols.EvalConst(val)
		if !ok {
			return c
		}
		hull = hull.Join(Const(k))
	}
	if !refineInt(c, v, "==", hull) {
		return nil
	}
	return c
}

// evalPure 在副本上求值，不产生事件也不改变 st
func (r *run) evalPure(st *AbstractState, e Expr) absValue {
	return r.eval(st.Clone(), e, nil)
}

// refineInt 用 x op bound 收紧整数变量的区间，结果为空时返回 false
func refineInt(st *AbstractState, v *Variable, op string, bound Interval) bool {
	cur := st.Int(v.ID)
	if bound.IsEmpty() {
		return false
	}
	var next Interval
	switch op {
	case "<":
		next = cur.Meet(Range(NegInf, satAdd(bound.Hi, -1)))
	case "<=":
		next = cur.Meet(Range(NegInf, bound.Hi))
	case ">":
		next = cur.Meet(Range(satAdd(bound.Lo, 1), PosInf))
	case ">=":
		next = cur.Meet(Range(bound.Lo, PosInf))
	case "==":
		next = cur.Meet(bound)
	case "!=":
		next = cur
		if c, ok := bound.IsConst(); ok {
			if next.Lo == c {
				next.Lo = satAdd(next.Lo, 1)
			}
			if next.Hi == c {
				next.Hi = satAdd(next.Hi, -1)
			}
		}
	default:
		return true
	}
	if next.IsEmpty() {
		return false
	}
	st.SetInt(v.ID, next)
	return true
}

// refineNullTest p == NULL (isNull) 或 p != NULL
func refineNullTest(st *AbstractState, v *Variable, isNull bool) bool {
	s := st.Ptr(v.ID)
	if isNull {
		switch {
		case s.Kind == PtrNull:
			return true
		case s.Kind == PtrLive && !s.MaybeNull:
			return false
		case s.Kind == PtrFreed:
			return true
		}
		st.SetPtr(v.ID, NullStatus())
		return true
	}
	if s.Kind == PtrNull {
		return false
	}
	s.MaybeNull = false
	st.SetPtr(v.ID, s)
	return true
}

func isNullConst(e Expr) bool {
	switch x := StripParensAndCasts(e).(type) {
	case *NullLit:
		return true
	case *IntLit:
		return x.Value == 0
	}
	return false
}

func negateOp(op string) string {
	switch op {
	case "<":
		return ">="
	case "<=":
		return ">"
	case ">":
		return "<="
	case ">=":
		return "<"
	case "==":
		return "!="
	case "!=":
		return "=="
	}
	return op
}

// flipOp 交换比较两侧时的运算符
func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}
