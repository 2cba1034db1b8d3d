package ftl

import (
	goerrors "errors"
	"fmt"
	"iter"
	"time"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

func (e *Environment) evalExpr(expr parser.Expr) (value.Value, error) {
	switch x := expr.(type) {
	case *parser.Literal:
		return x.Value, nil
	case *parser.StringInterp:
		return e.evalStringInterp(x)
	case *parser.SeqLit:
		items := make([]value.Value, len(x.Items))
		for i, item := range x.Items {
			v, err := e.evalExpr(item)
			if err != nil {
				return value.Undefined(), err
			}
			if v.IsUndefined() {
				return value.Undefined(), undefinedError(item)
			}
			items[i] = v
		}
		return value.FromSlice(items), nil
	case *parser.HashLit:
		return e.evalHashLit(x)
	case *parser.Range:
		return e.evalRange(x)
	case *parser.Identifier:
		return e.Lookup(x.Name), nil
	case *parser.SpecialVar:
		return e.evalSpecialVar(x)
	case *parser.Dot:
		return e.evalDot(x)
	case *parser.Index:
		return e.evalIndex(x)
	case *parser.BuiltIn:
		return e.evalBuiltIn(x)
	case *parser.Call:
		return e.evalCall(x)
	case *parser.BinOp:
		return e.evalBinOp(x)
	case *parser.UnaryOp:
		return e.evalUnaryOp(x)
	case *parser.Default:
		return e.evalDefault(x)
	case *parser.Exists:
		v, err := e.evalGuarded(x.Target)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(!isMissing(v)), nil
	case *parser.Paren:
		return e.evalExpr(x.Inner)
	case nil:
		return value.Undefined(), NewError(ErrBug, "missing expression")
	}
	return value.Undefined(), exprError(ErrBug, expr, "unexpected expression %T", expr)
}

func (e *Environment) evalStringInterp(x *parser.StringInterp) (value.Value, error) {
	var buf []byte
	for _, part := range x.Parts {
		v, err := e.evalExpr(part)
		if err != nil {
			return value.Undefined(), err
		}
		s, err := e.toPlainText(part, v)
		if err != nil {
			return value.Undefined(), err
		}
		buf = append(buf, s...)
	}
	return value.FromString(string(buf)), nil
}

func (e *Environment) evalHashLit(x *parser.HashLit) (value.Value, error) {
	h := value.NewHash()
	for i, kexpr := range x.Keys {
		k, err := e.evalExpr(kexpr)
		if err != nil {
			return value.Undefined(), err
		}
		key, ok := k.AsString()
		if !ok {
			if k.IsUndefined() {
				return value.Undefined(), undefinedError(kexpr)
			}
			return value.Undefined(), typeError(ErrNonString, kexpr, "a string hash key", k)
		}
		v, err := e.evalExpr(x.Values[i])
		if err != nil {
			return value.Undefined(), err
		}
		if v.IsUndefined() {
			return value.Undefined(), undefinedError(x.Values[i])
		}
		h.Set(key, v)
	}
	return value.FromHash(h), nil
}

// -----------------------------------------------------------------------------
// Missing values
// -----------------------------------------------------------------------------

func isMissing(v value.Value) bool {
	return v.IsUndefined() || v.IsNone()
}

// evalGuarded evaluates the operand of "!" and "??". A parenthesized
// operand is guarded as a whole: a missing value anywhere inside it counts
// as missing instead of failing.
func (e *Environment) evalGuarded(target parser.Expr) (value.Value, error) {
	v, err := e.evalExpr(target)
	if err != nil {
		if _, paren := target.(*parser.Paren); paren && KindOf(err) == ErrInvalidReference {
			return value.Undefined(), nil
		}
		return value.Undefined(), err
	}
	if err := materialize(v); err != nil {
		return value.Undefined(), err
	}
	return v, nil
}

func (e *Environment) evalDefault(x *parser.Default) (value.Value, error) {
	v, err := e.evalGuarded(x.Target)
	if err != nil {
		return value.Undefined(), err
	}
	if !isMissing(v) {
		return v, nil
	}
	if x.Fallback == nil {
		return emptyValue, nil
	}
	return e.evalExpr(x.Fallback)
}

// emptyValue is what "x!" yields for a missing x: it works as an empty
// string, sequence and hash alike.
var emptyValue = value.FromObject(emptyObject{})

type emptyObject struct{}

func (emptyObject) GetAttr(string) value.Value { return value.Undefined() }
func (emptyObject) AsString() string           { return "" }
func (emptyObject) SeqLen() int                { return 0 }
func (emptyObject) SeqItem(int) value.Value    { return value.Undefined() }
func (emptyObject) Keys() []string             { return nil }

// -----------------------------------------------------------------------------
// Sub-variables
// -----------------------------------------------------------------------------

func (e *Environment) evalDot(x *parser.Dot) (value.Value, error) {
	target, err := e.evalExpr(x.Target)
	if err != nil {
		return value.Undefined(), err
	}
	if isMissing(target) {
		return value.Undefined(), undefinedError(x.Target)
	}
	if err := materialize(target); err != nil {
		return value.Undefined(), err
	}
	if _, isObject := target.AsObject(); !isObject && !target.IsHash() {
		return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a hash", target)
	}
	return target.GetAttr(x.Name), nil
}

func (e *Environment) evalIndex(x *parser.Index) (value.Value, error) {
	target, err := e.evalExpr(x.Target)
	if err != nil {
		return value.Undefined(), err
	}
	if isMissing(target) {
		return value.Undefined(), undefinedError(x.Target)
	}
	if err := materialize(target); err != nil {
		return value.Undefined(), err
	}
	key, err := e.evalExpr(x.Key)
	if err != nil {
		return value.Undefined(), err
	}
	if key.IsUndefined() {
		return value.Undefined(), undefinedError(x.Key)
	}

	if r, ok := rangeOf(key); ok {
		return e.slice(x, target, r)
	}
	if key.IsNumber() {
		_, isString := target.AsString()
		if !target.IsSeq() && !isString {
			return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a sequence or string", target)
		}
		if !key.IsInt() {
			return value.Undefined(), typeError(ErrTypeMismatch, x.Key, "an integer index", key)
		}
		return target.GetItem(key), nil
	}
	if _, ok := key.AsString(); ok {
		if _, isObject := target.AsObject(); !target.IsHash() && !isObject {
			return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a hash", target)
		}
		return target.GetItem(key), nil
	}
	return value.Undefined(), typeError(ErrTypeMismatch, x.Key, "a number, string or range", key)
}

// slice implements seq[a..b] and str[a..b].
func (e *Environment) slice(x *parser.Index, target value.Value, r *rangeSeq) (value.Value, error) {
	if r.unbounded {
		r = &rangeSeq{start: r.start, end: -1, step: 1}
		if n, ok := target.Len(); ok {
			r.end = int64(n) - 1
		}
	}
	if s, ok := target.AsString(); ok {
		runes := []rune(s)
		lo, hi, err := sliceBounds(x, r, len(runes))
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromString(string(runes[lo:hi])), nil
	}
	items, ok := target.AsSlice()
	if !ok {
		return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a sequence or string", target)
	}
	lo, hi, err := sliceBounds(x, r, len(items))
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromSlice(items[lo:hi]), nil
}

func sliceBounds(x *parser.Index, r *rangeSeq, n int) (int, int, error) {
	if r.step < 0 {
		return 0, 0, exprError(ErrInvalidOperation, x.Key, "slicing with a decreasing range is not supported")
	}
	lo, hi := r.start, r.start+int64(r.SeqLen())
	if lo < 0 || hi > int64(n) {
		return 0, 0, exprError(ErrInvalidOperation, x.Key,
			"range %d..%d is out of bounds for length %d", r.start, hi-1, n)
	}
	return int(lo), int(hi), nil
}

// -----------------------------------------------------------------------------
// Ranges
// -----------------------------------------------------------------------------

// rangeSeq is the sequence of integers a range expression denotes.
// Decreasing ranges count down.
type rangeSeq struct {
	start, end int64
	step       int64
	// unbounded is only set for slicing with a right-unbounded range.
	unbounded bool
}

func (r *rangeSeq) GetAttr(string) value.Value { return value.Undefined() }

func (r *rangeSeq) SeqLen() int {
	if r.step > 0 {
		if r.end < r.start {
			return 0
		}
		return int(r.end-r.start) + 1
	}
	if r.start < r.end {
		return 0
	}
	return int(r.start-r.end) + 1
}

func (r *rangeSeq) SeqItem(i int) value.Value {
	if i < 0 || i >= r.SeqLen() {
		return value.Undefined()
	}
	return value.FromInt(r.start + int64(i)*r.step)
}

func (r *rangeSeq) String() string {
	return fmt.Sprintf("%d..%d", r.start, r.end)
}

// unboundedRange is a right-unbounded range; it can be listed but has no
// length.
type unboundedRange struct{ start int64 }

func (r *unboundedRange) GetAttr(string) value.Value { return value.Undefined() }

func (r *unboundedRange) String() string { return fmt.Sprintf("%d..", r.start) }

func (r *unboundedRange) Iterate() iter.Seq[value.Value] {
	return func(yield func(value.Value) bool) {
		for i := r.start; ; i++ {
			if !yield(value.FromInt(i)) {
				return
			}
		}
	}
}

func rangeOf(v value.Value) (*rangeSeq, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return nil, false
	}
	switch r := obj.(type) {
	case *rangeSeq:
		return r, true
	case *unboundedRange:
		return &rangeSeq{start: r.start, step: 1, unbounded: true}, true
	}
	return nil, false
}

func (e *Environment) evalRange(x *parser.Range) (value.Value, error) {
	start, err := e.rangeBound(x.Start)
	if err != nil {
		return value.Undefined(), err
	}
	if x.End == nil {
		return value.FromObject(&unboundedRange{start: start}), nil
	}
	end, err := e.rangeBound(x.End)
	if err != nil {
		return value.Undefined(), err
	}
	r := &rangeSeq{start: start, end: end, step: 1}
	if end < start {
		r.step = -1
	}
	if x.Exclusive {
		if start == end {
			r.end = start - r.step
		} else {
			r.end = end - r.step
		}
	}
	return value.FromObject(r), nil
}

func (e *Environment) rangeBound(expr parser.Expr) (int64, error) {
	v, err := e.evalExpr(expr)
	if err != nil {
		return 0, err
	}
	if v.IsUndefined() {
		return 0, undefinedError(expr)
	}
	if !v.IsNumber() {
		return 0, typeError(ErrNonNumerical, expr, "a number", v)
	}
	n, ok := v.AsInt()
	if !ok || !v.IsInt() {
		return 0, typeError(ErrNonNumerical, expr, "an integer", v)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Operators
// -----------------------------------------------------------------------------

func (e *Environment) evalBinOp(x *parser.BinOp) (value.Value, error) {
	switch x.Op {
	case parser.BinAnd, parser.BinOr:
		l, err := e.evalBool(x.Left)
		if err != nil {
			return value.Undefined(), err
		}
		if (x.Op == parser.BinAnd) != l {
			return value.FromBool(l), nil
		}
		r, err := e.evalBool(x.Right)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(r), nil
	}

	l, err := e.evalExpr(x.Left)
	if err != nil {
		return value.Undefined(), err
	}
	r, err := e.evalExpr(x.Right)
	if err != nil {
		return value.Undefined(), err
	}

	if op, ok := x.Op.Arithmetic(); ok {
		if op == value.OpAdd {
			return e.add(x.Left, x.Right, l, r)
		}
		return e.arithmetic(op, x.Left, x.Right, l, r)
	}

	if l.IsUndefined() {
		return value.Undefined(), undefinedError(x.Left)
	}
	if r.IsUndefined() {
		return value.Undefined(), undefinedError(x.Right)
	}

	switch x.Op {
	case parser.BinEq, parser.BinNe:
		eq, err := value.Equal(e.engine(), l, r)
		if err != nil {
			return value.Undefined(), comparisonError(x, l, r, err)
		}
		return value.FromBool(eq == (x.Op == parser.BinEq)), nil
	}

	c, err := value.Compare(e.engine(), l, r)
	if err != nil {
		return value.Undefined(), comparisonError(x, l, r, err)
	}
	var res bool
	switch x.Op {
	case parser.BinLt:
		res = c < 0
	case parser.BinLe:
		res = c <= 0
	case parser.BinGt:
		res = c > 0
	case parser.BinGe:
		res = c >= 0
	default:
		return value.Undefined(), exprError(ErrBug, x, "unexpected operator %s", x.Op)
	}
	return value.FromBool(res), nil
}

func comparisonError(x *parser.BinOp, l, r value.Value, err error) *Error {
	if goerrors.Is(err, value.ErrIncomparable) {
		return exprError(ErrTypeMismatch, x, "cannot compare %s with %s", describeKind(l), describeKind(r)).
			WithOperator(x.Op.String()).
			WithTypes(l.Kind().String(), r.Kind().String())
	}
	return exprError(ErrInvalidOperation, x, "%s", err.Error()).WithOperator(x.Op.String())
}

func (e *Environment) evalUnaryOp(x *parser.UnaryOp) (value.Value, error) {
	if x.Op == parser.UnaryNot {
		b, err := e.evalBool(x.Expr)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(!b), nil
	}
	v, err := e.evalExpr(x.Expr)
	if err != nil {
		return value.Undefined(), err
	}
	if v.IsUndefined() {
		return value.Undefined(), undefinedError(x.Expr)
	}
	if !v.IsNumber() {
		return value.Undefined(), typeError(ErrNonNumerical, x.Expr, "a number", v).WithOperator(x.Op.String())
	}
	if x.Op == parser.UnaryPos {
		return v.Number(), nil
	}
	return v.Neg()
}

// -----------------------------------------------------------------------------
// Special variables
// -----------------------------------------------------------------------------

var specialVarNames = []string{
	"caller_template_name", "current_template_name", "data_model", "error",
	"globals", "lang", "locale", "locals", "main", "main_template_name",
	"namespace", "now", "output_format", "pass", "template_name", "version",
}

func (e *Environment) evalSpecialVar(x *parser.SpecialVar) (value.Value, error) {
	switch x.Name {
	case "now":
		return value.FromTime(time.Now()), nil
	case "locals":
		if e.macroCtx == nil {
			return value.Undefined(), nil
		}
		return value.FromHash(e.Locals()), nil
	case "namespace":
		return value.FromObject(e.currentNS), nil
	case "main":
		return value.FromObject(e.mainNS), nil
	case "globals":
		return value.MergeMaps(value.FromHash(e.shared), e.dataModel, value.FromHash(e.globals)), nil
	case "data_model":
		return value.MergeMaps(value.FromHash(e.shared), e.dataModel), nil
	case "template_name", "main_template_name":
		return value.FromString(e.main.name), nil
	case "current_template_name":
		return value.FromString(e.current.name), nil
	case "caller_template_name":
		if e.macroCtx == nil {
			return value.Undefined(), exprError(ErrInvalidOperation, x,
				".caller_template_name can only be used inside a macro or function")
		}
		return value.FromString(e.macroCtx.callerTemplate.name), nil
	case "locale":
		return value.FromString(e.Settings().Locale), nil
	case "lang":
		tag, err := parseLocale(e.Settings().Locale)
		if err != nil {
			return value.FromString(e.Settings().Locale), nil
		}
		base, _ := tag.Base()
		return value.FromString(base.String()), nil
	case "version":
		return value.FromString(Version), nil
	case "pass":
		return value.FromMacro(parser.NoopMacro), nil
	case "error":
		if len(e.recovered) == 0 {
			return value.Undefined(), exprError(ErrInvalidOperation, x,
				".error can only be used inside the recover block of <#attempt>")
		}
		return value.FromString(e.recovered[len(e.recovered)-1].Error()), nil
	case "output_format":
		return value.FromString(e.outputFormat().Name()), nil
	}
	err := exprError(ErrInvalidOperation, x, "unknown special variable .%s", x.Name)
	if s, ok := suggest.Closest(x.Name, specialVarNames); ok {
		err.WithTip(fmt.Sprintf("did you mean .%s?", s))
	}
	return value.Undefined(), err
}

// -----------------------------------------------------------------------------
// Lists
// -----------------------------------------------------------------------------

// listSource yields the items of a listed value one at a time.
type listSource struct {
	next func() (value.Value, bool)
	stop func()
}

func (e *Environment) listItems(n *parser.List, v value.Value) (listSource, error) {
	if obj, ok := v.AsObject(); ok {
		if it, ok := obj.(value.IterableObject); ok {
			next, stop := iter.Pull(it.Iterate())
			return listSource{next: next, stop: stop}, nil
		}
	}
	var items []value.Value
	switch {
	case n.KeyVar != "":
		if !v.IsHash() {
			return listSource{}, typeError(ErrTypeMismatch, n.Seq, "a hash", v).
				WithTip("only hashes can be listed with a key and a value variable")
		}
		items, _ = v.Iterate()
	case v.IsSeq():
		items, _ = v.AsSlice()
	case v.IsHash():
		return listSource{}, typeError(ErrTypeMismatch, n.Seq, "a sequence or collection", v).
			WithTip(fmt.Sprintf("list a hash with two variables, like <#list %s as k, v>, or list ?keys",
				parser.CanonicalForm(n.Seq)))
	default:
		return listSource{}, typeError(ErrTypeMismatch, n.Seq, "a sequence or collection", v)
	}
	i := 0
	return listSource{
		next: func() (value.Value, bool) {
			if i >= len(items) {
				return value.Undefined(), false
			}
			i++
			return items[i-1], true
		},
		stop: func() {},
	}, nil
}

func (e *Environment) evalList(n *parser.List) error {
	v, err := e.evalExpr(n.Seq)
	if err != nil {
		return err
	}
	if v.IsUndefined() {
		return undefinedError(n.Seq)
	}
	if err := materialize(v); err != nil {
		return err
	}
	src, err := e.listItems(n, v)
	if err != nil {
		return err
	}
	defer src.stop()

	names := []string{n.Var}
	if n.KeyVar != "" {
		names = []string{n.KeyVar, n.Var}
	}

	item, ok := src.next()
	if !ok {
		return e.evalBody(n.Else)
	}
	for index := 0; ok; index++ {
		nextItem, hasNext := src.next()

		frame := &localFrame{
			vars: value.NewHash(),
			loop: &loopState{names: names, index: index, hasNext: hasNext},
		}
		if n.KeyVar != "" {
			frame.vars.Set(n.KeyVar, item)
			key, _ := item.AsString()
			frame.vars.Set(n.Var, v.GetAttr(key))
		} else {
			frame.vars.Set(n.Var, item)
		}

		pop := e.pushFrame(frame)
		err := e.evalBody(n.Body)
		pop()
		if err == errBreak {
			return nil
		}
		if err != nil && err != errContinue {
			return err
		}
		item, ok = nextItem, hasNext
	}
	return nil
}
