package core

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ==================== 整数区间 ====================

const (
	NegInf int64 = math.MinInt64
	PosInf int64 = math.MaxInt64
)

// Interval 闭区间 [Lo, Hi]，Lo > Hi 表示空（不可达）
type Interval struct {
	Lo int64
	Hi int64
}

// TopInterval 全区间
func TopInterval() Interval { return Interval{Lo: NegInf, Hi: PosInf} }

// EmptyInterval 空区间
func EmptyInterval() Interval { return Interval{Lo: 1, Hi: 0} }

// Const 单点区间
func Const(v int64) Interval { return Interval{Lo: v, Hi: v} }

// Range 构造区间
func Range(lo, hi int64) Interval { return Interval{Lo: lo, Hi: hi} }

func (i Interval) IsEmpty() bool { return i.Lo > i.Hi }
func (i Interval) IsTop() bool   { return i.Lo == NegInf && i.Hi == PosInf }

// IsConst 是否为单点
func (i Interval) IsConst() (int64, bool) {
	if i.Lo == i.Hi && i.Lo != NegInf && i.Lo != PosInf {
		return i.Lo, true
	}
	return 0, false
}

// Bounded 上下界是否都有限
func (i Interval) Bounded() bool {
	return !i.IsEmpty() && i.Lo != NegInf && i.Hi != PosInf
}

func (i Interval) String() string {
	if i.IsEmpty() {
		return "⊥"
	}
	if c, ok := i.IsConst(); ok {
		return fmt.Sprintf("%d", c)
	}
	lo, hi := "-inf", "+inf"
	if i.Lo != NegInf {
		lo = fmt.Sprintf("%d", i.Lo)
	}
	if i.Hi != PosInf {
		hi = fmt.Sprintf("%d", i.Hi)
	}
	return "[" + lo + "," + hi + "]"
}

// Join 区间并（凸包）
func (i Interval) Join(o Interval) Interval {
	if i.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return i
	}
	return Interval{Lo: minInt64(i.Lo, o.Lo), Hi: maxInt64(i.Hi, o.Hi)}
}

// Meet 区间交
func (i Interval) Meet(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return EmptyInterval()
	}
	r := Interval{Lo: maxInt64(i.Lo, o.Lo), Hi: minInt64(i.Hi, o.Hi)}
	if r.IsEmpty() {
		return EmptyInterval()
	}
	return r
}

// Widen 标准区间加宽：不稳定的边界直接推到无穷
func (i Interval) Widen(next Interval) Interval {
	if i.IsEmpty() {
		return next
	}
	if next.IsEmpty() {
		return i
	}
	r := i
	if next.Lo < i.Lo {
		r.Lo = NegInf
	}
	if next.Hi > i.Hi {
		r.Hi = PosInf
	}
	return r
}

// Add 区间加法（饱和）
func (i Interval) Add(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return EmptyInterval()
	}
	return Interval{Lo: satAdd(i.Lo, o.Lo), Hi: satAdd(i.Hi, o.Hi)}
}

// Neg 取负
func (i Interval) Neg() Interval {
	if i.IsEmpty() {
		return i
	}
	return Interval{Lo: satNeg(i.Hi), Hi: satNeg(i.Lo)}
}

// Sub 区间减法
func (i Interval) Sub(o Interval) Interval {
	return i.Add(o.Neg())
}

// Mul 区间乘法，取四角乘积的包络
func (i Interval) Mul(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return EmptyInterval()
	}
	c := []int64{satMul(i.Lo, o.Lo), satMul(i.Lo, o.Hi), satMul(i.Hi, o.Lo), satMul(i.Hi, o.Hi)}
	r := Interval{Lo: c[0], Hi: c[0]}
	for _, v := range c[1:] {
		r.Lo = minInt64(r.Lo, v)
		r.Hi = maxInt64(r.Hi, v)
	}
	return r
}

// Div 仅当除数为非零常量时精确，否则返回全区间
func (i Interval) Div(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return EmptyInterval()
	}
	d, ok := o.IsConst()
	if !ok || d == 0 {
		return TopInterval()
	}
	a, b := satDiv(i.Lo, d), satDiv(i.Hi, d)
	return Interval{Lo: minInt64(a, b), Hi: maxInt64(a, b)}
}

// Rem 取模，除数为正常量时结果被限制在 (-d, d)
func (i Interval) Rem(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return EmptyInterval()
	}
	d, ok := o.IsConst()
	if !ok || d <= 0 {
		return TopInterval()
	}
	if i.Lo >= 0 {
		return Interval{Lo: 0, Hi: minInt64(d-1, i.Hi)}
	}
	return Interval{Lo: -(d - 1), Hi: d - 1}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func satAdd(a, b int64) int64 {
	if a == NegInf || b == NegInf {
		if a == PosInf || b == PosInf {
			return 0
		}
		return NegInf
	}
	if a == PosInf || b == PosInf {
		return PosInf
	}
	s := a + b
	if a > 0 && b > 0 && s < 0 {
		return PosInf
	}
	if a < 0 && b < 0 && s >= 0 {
		return NegInf
	}
	return s
}

func satNeg(a int64) int64 {
	switch a {
	case NegInf:
		return PosInf
	case PosInf:
		return NegInf
	}
	return -a
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	if a == NegInf || a == PosInf || b == NegInf || b == PosInf {
		if neg {
			return NegInf
		}
		return PosInf
	}
	p := a * b
	if p/b != a {
		if neg {
			return NegInf
		}
		return PosInf
	}
	return p
}

func satDiv(a, d int64) int64 {
	if a == NegInf || a == PosInf {
		if (a < 0) != (d < 0) {
			return NegInf
		}
		return PosInf
	}
	return a / d
}

// ==================== 指针状态 ====================

// PtrKind 指针状态类别：Bottom < Null < Live < Unknown，Bottom < Freed < Unknown
type PtrKind uint8

const (
	PtrBottom PtrKind = iota
	PtrNull
	PtrLive
	PtrFreed
	PtrUnknown
)

func (k PtrKind) String() string {
	switch k {
	case PtrBottom:
		return "bottom"
	case PtrNull:
		return "null"
	case PtrLive:
		return "live"
	case PtrFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// PointerStatus 指针/数组的抽象状态
// Size 以元素个数计，只对 Live 有意义；MaybeFreed 标记 Freed 与非 Freed
// 汇合产生的冲突，一旦出现便不会在 join 中消失
type PointerStatus struct {
	Kind       PtrKind
	Size       Interval
	MaybeNull  bool
	MaybeFreed bool
}

// UnknownStatus 顶元素
func UnknownStatus() PointerStatus {
	return PointerStatus{Kind: PtrUnknown, Size: EmptyInterval()}
}

// LiveStatus 已分配，size 为 SizeUnknown 时大小未知
func LiveStatus(size int64) PointerStatus {
	s := TopInterval()
	if size >= 0 {
		s = Const(size)
	}
	return PointerStatus{Kind: PtrLive, Size: s}
}

// LiveRange 已分配，大小为区间
func LiveRange(size Interval) PointerStatus {
	return PointerStatus{Kind: PtrLive, Size: size}
}

// FreedStatus 已释放
func FreedStatus() PointerStatus {
	return PointerStatus{Kind: PtrFreed, Size: EmptyInterval()}
}

// NullStatus 空指针
func NullStatus() PointerStatus {
	return PointerStatus{Kind: PtrNull, Size: EmptyInterval()}
}

func (s PointerStatus) mayNull() bool  { return s.Kind == PtrNull || s.MaybeNull }
func (s PointerStatus) mayFreed() bool { return s.Kind == PtrFreed || s.MaybeFreed }

// IsPlainUnknown 无冲突标记的顶元素（状态表中省略存储）
func (s PointerStatus) IsPlainUnknown() bool {
	return s.Kind == PtrUnknown && !s.MaybeNull && !s.MaybeFreed
}

// Conflict 是否为 Freed 与 Live 汇合后的冲突状态
func (s PointerStatus) Conflict() bool {
	return s.Kind != PtrFreed && s.MaybeFreed
}

// KnownSize 返回可确定的最小元素个数
func (s PointerStatus) KnownSize() (int64, bool) {
	if s.Kind != PtrLive || s.Size.IsEmpty() || s.Size.Lo == NegInf || s.Size.Lo < 0 {
		return 0, false
	}
	return s.Size.Lo, true
}

func (s PointerStatus) String() string {
	var b strings.Builder
	switch s.Kind {
	case PtrLive:
		if s.Size.IsTop() {
			b.WriteString("Live(?)")
		} else {
			b.WriteString("Live(" + s.Size.String() + ")")
		}
	case PtrFreed:
		b.WriteString("Freed")
	case PtrNull:
		b.WriteString("Null")
	case PtrBottom:
		b.WriteString("Bottom")
	default:
		b.WriteString("Unknown")
	}
	if s.Kind != PtrNull && s.MaybeNull {
		b.WriteString("|maybe-null")
	}
	if s.Conflict() {
		b.WriteString("|maybe-freed")
	}
	return b.String()
}

// normalize 清除与类别重复的标记并规整 Size
func (s PointerStatus) normalize() PointerStatus {
	if s.Kind == PtrNull {
		s.MaybeNull = false
	}
	if s.Kind == PtrFreed {
		s.MaybeFreed = false
	}
	if s.Kind != PtrLive {
		s.Size = EmptyInterval()
	}
	return s
}

// Join 指针状态的格上并
func (s PointerStatus) Join(o PointerStatus) PointerStatus {
	if s.Kind == PtrBottom {
		return o
	}
	if o.Kind == PtrBottom {
		return s
	}
	r := PointerStatus{
		MaybeNull:  s.mayNull() || o.mayNull(),
		MaybeFreed: s.mayFreed() || o.mayFreed(),
		Size:       EmptyInterval(),
	}
	switch {
	case s.Kind == o.Kind:
		r.Kind = s.Kind
		r.Size = s.Size.Join(o.Size)
	case s.Kind == PtrLive && o.Kind == PtrNull:
		r.Kind = PtrLive
		r.Size = s.Size
	case s.Kind == PtrNull && o.Kind == PtrLive:
		r.Kind = PtrLive
		r.Size = o.Size
	default:
		r.Kind = PtrUnknown
	}
	return r.normalize()
}

// Widen 对 Live 的大小区间加宽，其余同 Join
func (s PointerStatus) Widen(next PointerStatus) PointerStatus {
	j := s.Join(next)
	if j.Kind == PtrLive && s.Kind == PtrLive {
		j.Size = s.Size.Widen(j.Size)
	}
	return j
}

// ==================== 边界事实 ====================

// BoundsFact 下标访问的边界结论，全序 InBounds < Unknown < MaybeOOB，
// 使越界结论在 join 中单调保留
type BoundsFact uint8

const (
	BoundsNone BoundsFact = iota
	BoundsInBounds
	BoundsUnknown
	BoundsMaybeOOB
)

func (f BoundsFact) String() string {
	switch f {
	case BoundsInBounds:
		return "InBounds"
	case BoundsUnknown:
		return "Unknown"
	case BoundsMaybeOOB:
		return "MaybeOOB"
	default:
		return "None"
	}
}

// Join 取较大者
func (f BoundsFact) Join(o BoundsFact) BoundsFact {
	if o > f {
		return o
	}
	return f
}

// ==================== 抽象状态 ====================

// AbstractState 程序点上的抽象状态
// 缺省条目表示顶元素（指针 Unknown、整数全区间），因此入口状态为空表
type AbstractState struct {
	Ptrs   map[int]PointerStatus
	Ints   map[int]Interval
	Bounds map[string]BoundsFact
}

// NewAbstractState 创建空状态（所有变量 Unknown）
func NewAbstractState() *AbstractState {
	return &AbstractState{
		Ptrs:   make(map[int]PointerStatus),
		Ints:   make(map[int]Interval),
		Bounds: make(map[string]BoundsFact),
	}
}

// Clone 深拷贝
func (s *AbstractState) Clone() *AbstractState {
	c := &AbstractState{
		Ptrs:   make(map[int]PointerStatus, len(s.Ptrs)),
		Ints:   make(map[int]Interval, len(s.Ints)),
		Bounds: make(map[string]BoundsFact, len(s.Bounds)),
	}
	for k, v := range s.Ptrs {
		c.Ptrs[k] = v
	}
	for k, v := range s.Ints {
		c.Ints[k] = v
	}
	for k, v := range s.Bounds {
		c.Bounds[k] = v
	}
	return c
}

// Ptr 读取指针状态
func (s *AbstractState) Ptr(id int) PointerStatus {
	if st, ok := s.Ptrs[id]; ok {
		return st
	}
	return UnknownStatus()
}

// SetPtr 写入指针状态
func (s *AbstractState) SetPtr(id int, st PointerStatus) {
	st = st.normalize()
	if st.IsPlainUnknown() {
		delete(s.Ptrs, id)
		return
	}
	s.Ptrs[id] = st
}

// Int 读取整数区间
func (s *AbstractState) Int(id int) Interval {
	if iv, ok := s.Ints[id]; ok {
		return iv
	}
	return TopInterval()
}

// SetInt 写入整数区间
func (s *AbstractState) SetInt(id int, iv Interval) {
	if iv.IsTop() {
		delete(s.Ints, id)
		return
	}
	s.Ints[id] = iv
}

// Forget 将变量置为 Unknown（保留冲突标记以维持单调性）
func (s *AbstractState) Forget(id int) {
	old := s.Ptr(id)
	if old.mayFreed() {
		s.Ptrs[id] = PointerStatus{Kind: PtrUnknown, MaybeFreed: true, Size: EmptyInterval()}
	} else {
		delete(s.Ptrs, id)
	}
	delete(s.Ints, id)
}

// RecordBounds 记录访问点的边界事实
func (s *AbstractState) RecordBounds(site string, f BoundsFact) {
	s.Bounds[site] = s.Bounds[site].Join(f)
}

// Join 两个状态在汇合点的并；nil 视为不可达（底元素）
func (s *AbstractState) Join(o *AbstractState) *AbstractState {
	return s.combine(o, false)
}

// Widen 以 s 为旧值、o 为新值加宽
func (s *AbstractState) Widen(o *AbstractState) *AbstractState {
	return s.combine(o, true)
}

func (s *AbstractState) combine(o *AbstractState, widen bool) *AbstractState {
	if s == nil {
		if o == nil {
			return nil
		}
		return o.Clone()
	}
	if o == nil {
		return s.Clone()
	}
	r := NewAbstractState()
	for id := range unionKeys(s.Ptrs, o.Ptrs) {
		a, b := s.Ptr(id), o.Ptr(id)
		if widen {
			r.SetPtr(id, a.Widen(b))
		} else {
			r.SetPtr(id, a.Join(b))
		}
	}
	for id := range unionKeys(s.Ints, o.Ints) {
		a, b := s.Int(id), o.Int(id)
		if widen {
			r.SetInt(id, a.Widen(a.Join(b)))
		} else {
			r.SetInt(id, a.Join(b))
		}
	}
	for site, f := range s.Bounds {
		r.Bounds[site] = f
	}
	for site, f := range o.Bounds {
		r.Bounds[site] = r.Bounds[site].Join(f)
	}
	return r
}

// Equal 判断两个状态是否相同
func (s *AbstractState) Equal(o *AbstractState) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Ptrs) != len(o.Ptrs) || len(s.Ints) != len(o.Ints) || len(s.Bounds) != len(o.Bounds) {
		return false
	}
	for k, v := range s.Ptrs {
		if w, ok := o.Ptrs[k]; !ok || w != v {
			return false
		}
	}
	for k, v := range s.Ints {
		if w, ok := o.Ints[k]; !ok || w != v {
			return false
		}
	}
	for k, v := range s.Bounds {
		if w, ok := o.Bounds[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Snapshot 以变量名呈现状态，用于报告
func (s *AbstractState) Snapshot(symbols *SymbolTable) map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	name := func(id int) string {
		if symbols != nil {
			if v := symbols.Variable(id); v != nil {
				return v.Name
			}
		}
		return fmt.Sprintf("#%d", id)
	}
	for id, st := range s.Ptrs {
		out[name(id)] = st.String()
	}
	for id, iv := range s.Ints {
		out[name(id)] = iv.String()
	}
	return out
}

func (s *AbstractState) String() string {
	if s == nil {
		return "<unreachable>"
	}
	var parts []string
	ptrIDs := maps.Keys(s.Ptrs)
	slices.Sort(ptrIDs)
	for _, id := range ptrIDs {
		parts = append(parts, fmt.Sprintf("#%d=%s", id, s.Ptrs[id]))
	}
	intIDs := maps.Keys(s.Ints)
	slices.Sort(intIDs)
	for _, id := range intIDs {
		parts = append(parts, fmt.Sprintf("#%d=%s", id, s.Ints[id]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func unionKeys[V any](a, b map[int]V) map[int]struct{} {
	keys := make(map[int]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	return keys
}
