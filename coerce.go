package ftl

import (
	goerrors "errors"
	"fmt"
	"strings"

	"golang.org/x/text/number"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

func (e *Environment) evalInterpolation(n *parser.Interpolation) error {
	v, err := e.evalExpr(n.Expr)
	if err != nil {
		return err
	}
	s, err := e.interpolate(n.Expr, v)
	if err != nil {
		return err
	}
	return e.write(s)
}

// interpolate converts v to output text, escaping plain strings when the
// output format is a markup format.
func (e *Environment) interpolate(expr parser.Expr, v value.Value) (string, error) {
	if v.IsUndefined() {
		return "", e.missingValue(expr)
	}
	of := e.outputFormat()
	if m, ok := v.AsMarkup(); ok {
		if !of.IsMarkup() || m.Format.Name() == of.Name() {
			return m.Text, nil
		}
		return "", exprError(ErrTypeMismatch, expr,
			"cannot insert %s markup into %s output", m.Format.Name(), of.Name())
	}
	s, err := e.formatScalar(expr, v)
	if err != nil {
		return "", err
	}
	if of.IsMarkup() {
		if _, isString := v.AsString(); isString {
			s = of.Escape(s)
		}
	}
	return s, nil
}

// toPlainText converts v to text without escaping, as string building does.
func (e *Environment) toPlainText(expr parser.Expr, v value.Value) (string, error) {
	if v.IsUndefined() {
		return "", e.missingValue(expr)
	}
	if m, ok := v.AsMarkup(); ok {
		return m.Text, nil
	}
	return e.formatScalar(expr, v)
}

// missingValue is undefinedError with a guess at the intended name.
func (e *Environment) missingValue(expr parser.Expr) *Error {
	err := undefinedError(expr)
	if id, ok := expr.(*parser.Identifier); ok {
		if s, ok := suggest.Closest(id.Name, e.knownNames()); ok {
			return err.WithTip(fmt.Sprintf("did you mean %q?", s))
		}
	}
	return err.WithTip(`if the value may legally be missing, give it a default with "!", like ` +
		parser.CanonicalForm(expr) + `!"fallback"`)
}

// formatScalar prints strings, numbers, booleans and dates according to
// the formatting settings.
func (e *Environment) formatScalar(expr parser.Expr, v value.Value) (string, error) {
	if v.IsNone() {
		return "", nil
	}
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	settings := e.Settings()
	if v.IsNumber() {
		return e.formatNumber(settings.NumberFormat, v.Number()), nil
	}
	if b, ok := v.AsBool(); ok {
		t, f, err := splitBooleanFormat(settings.BooleanFormat)
		if err != nil {
			return "", exprError(ErrInvalidOperation, expr, "%s", err.Error())
		}
		if b {
			return t, nil
		}
		return f, nil
	}
	if t, ok := v.AsTime(); ok {
		return t.Format(timeLayout(settings.DateTimeFormat)), nil
	}
	return "", typeError(ErrNonString, expr, "a string, number, boolean or date", v)
}

func (e *Environment) formatNumber(format string, n value.Value) string {
	switch format {
	case "computer", "c":
		return n.String()
	}
	var x any
	if i, ok := n.AsInt(); ok && n.IsInt() {
		x = i
	} else if f, ok := n.AsFloat(); ok {
		x = f
	} else {
		return n.String()
	}
	p := e.numberPrinter()
	if format == "percent" {
		return p.Sprint(number.Percent(x))
	}
	return p.Sprint(number.Decimal(x, number.MaxFractionDigits(3)))
}

// captured turns captured output into the value a capture yields: markup in
// a markup output format, a string otherwise.
func (e *Environment) captured(text string) value.Value {
	if of := e.outputFormat(); of.IsMarkup() {
		return value.FromMarkup(of, text)
	}
	return value.FromString(text)
}

// -----------------------------------------------------------------------------
// Arithmetic
// -----------------------------------------------------------------------------

// add implements "+": numeric addition, string and markup concatenation,
// sequence concatenation and hash merging.
func (e *Environment) add(lexpr, rexpr parser.Expr, l, r value.Value) (value.Value, error) {
	if l.IsUndefined() {
		return value.Undefined(), undefinedError(lexpr)
	}
	if r.IsUndefined() {
		return value.Undefined(), undefinedError(rexpr)
	}
	if l.IsNumber() && r.IsNumber() {
		return e.arithmetic(value.OpAdd, lexpr, rexpr, l, r)
	}

	lm, lIsMarkup := l.AsMarkup()
	rm, rIsMarkup := r.AsMarkup()
	switch {
	case lIsMarkup && rIsMarkup:
		if lm.Format.Name() != rm.Format.Name() {
			return value.Undefined(), exprError(ErrTypeMismatch, rexpr,
				"cannot concatenate %s markup with %s markup", lm.Format.Name(), rm.Format.Name())
		}
		return value.FromMarkup(lm.Format, lm.Text+rm.Text), nil
	case lIsMarkup:
		s, err := e.toPlainText(rexpr, r)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromMarkup(lm.Format, lm.Text+lm.Format.Escape(s)), nil
	case rIsMarkup:
		s, err := e.toPlainText(lexpr, l)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromMarkup(rm.Format, rm.Format.Escape(s)+rm.Text), nil
	}

	_, lIsString := l.AsString()
	_, rIsString := r.AsString()
	if lIsString || rIsString {
		if isScalar(l) && isScalar(r) {
			ls, err := e.toPlainText(lexpr, l)
			if err != nil {
				return value.Undefined(), err
			}
			rs, err := e.toPlainText(rexpr, r)
			if err != nil {
				return value.Undefined(), err
			}
			return value.FromString(ls + rs), nil
		}
	}

	if l.IsSeq() && r.IsSeq() {
		a, _ := l.AsSlice()
		b, _ := r.AsSlice()
		return value.ConcatSeq(a, b), nil
	}
	if l.IsHash() && r.IsHash() {
		a, _ := l.AsHash()
		b, _ := r.AsHash()
		return value.FromHash(a.Clone().Merge(b)), nil
	}

	return value.Undefined(), exprError(ErrTypeMismatch, rexpr,
		"cannot add %s to %s", describeKind(r), describeKind(l)).
		WithOperator("+").
		WithTypes(l.Kind().String(), r.Kind().String())
}

func isScalar(v value.Value) bool {
	if _, ok := v.AsString(); ok {
		return true
	}
	if _, ok := v.AsBool(); ok {
		return true
	}
	if _, ok := v.AsTime(); ok {
		return true
	}
	return v.IsNumber()
}

// arithmetic applies a numeric operator through the arithmetic engine.
func (e *Environment) arithmetic(op value.Operator, lexpr, rexpr parser.Expr, l, r value.Value) (value.Value, error) {
	if l.IsUndefined() {
		return value.Undefined(), undefinedError(lexpr)
	}
	if r.IsUndefined() {
		return value.Undefined(), undefinedError(rexpr)
	}
	if !l.IsNumber() {
		return value.Undefined(), typeError(ErrNonNumerical, lexpr, "a number", l).WithOperator(op.String())
	}
	if !r.IsNumber() {
		return value.Undefined(), typeError(ErrNonNumerical, rexpr, "a number", r).WithOperator(op.String())
	}
	res, err := e.engine().Arithmetic(op, l.Number(), r.Number())
	if err != nil {
		if goerrors.Is(err, value.ErrDivisionByZero) {
			return value.Undefined(), exprError(ErrInvalidOperation, rexpr, "division by zero").
				WithOperator(op.String())
		}
		return value.Undefined(), exprError(ErrNonNumerical, rexpr, "%s", err.Error()).
			WithOperator(op.String())
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Booleans
// -----------------------------------------------------------------------------

func (e *Environment) evalBool(expr parser.Expr) (bool, error) {
	v, err := e.evalExpr(expr)
	if err != nil {
		return false, err
	}
	return e.toBool(expr, v)
}

func (e *Environment) toBool(expr parser.Expr, v value.Value) (bool, error) {
	if v.IsUndefined() {
		return false, undefinedError(expr)
	}
	b, ok := v.AsBool()
	if !ok {
		err := typeError(ErrNonBoolean, expr, "a boolean", v)
		if s, isString := v.AsString(); isString && (strings.EqualFold(s, "true") || strings.EqualFold(s, "false")) {
			err.WithTip(fmt.Sprintf("%q is a string; write %s without quotes for a boolean", s, strings.ToLower(s)))
		}
		return false, err
	}
	return b, nil
}
