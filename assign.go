package ftl

import (
	"fmt"

	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// assignTarget is the variable scope an assignment writes to.
type assignTarget interface {
	get(name string) (value.Value, bool)
	set(name string, v value.Value) error
}

type hashTarget struct{ h *value.Hash }

func (t hashTarget) get(name string) (value.Value, bool) { return t.h.Get(name) }

func (t hashTarget) set(name string, v value.Value) error {
	t.h.Set(name, v)
	return nil
}

type objectTarget struct{ obj value.MutableObject }

func (t objectTarget) get(name string) (value.Value, bool) {
	v := t.obj.GetAttr(name)
	return v, !v.IsUndefined()
}

func (t objectTarget) set(name string, v value.Value) error {
	t.obj.SetAttr(name, v)
	return nil
}

// noLocalTarget stands in for the local scope outside of macro calls.
type noLocalTarget struct{}

func (noLocalTarget) get(string) (value.Value, bool) { return value.Undefined(), false }

func (noLocalTarget) set(name string, _ value.Value) error {
	return NewError(ErrInvalidOperation, fmt.Sprintf(
		"cannot set local variable %q: <#local> can only be used inside a macro or function", name))
}

// resolveTarget picks the scope of an assignment. ns is the "in" namespace
// expression, or nil.
func (e *Environment) resolveTarget(scope parser.Scope, ns parser.Expr) (assignTarget, error) {
	if ns != nil {
		v, err := e.evalExpr(ns)
		if err != nil {
			return nil, err
		}
		if v.IsUndefined() {
			return nil, undefinedError(ns)
		}
		obj, ok := v.AsObject()
		mut, isMutable := obj.(value.MutableObject)
		if !ok || !isMutable {
			return nil, typeError(ErrNotANamespace, ns, "a namespace", v)
		}
		if err := materialize(v); err != nil {
			return nil, err
		}
		return objectTarget{mut}, nil
	}

	switch scope {
	case parser.ScopeNamespace:
		return objectTarget{e.currentNS}, nil
	case parser.ScopeGlobal:
		return hashTarget{e.globals}, nil
	case parser.ScopeLocal:
		if e.macroCtx == nil {
			return noLocalTarget{}, nil
		}
		return hashTarget{e.macroCtx.locals}, nil
	}
	return nil, NewError(ErrBug, fmt.Sprintf("unknown assignment scope %d", scope))
}

func (e *Environment) evalAssignment(a *parser.Assignment) error {
	target, err := e.resolveTarget(a.Scope, a.Namespace)
	if err != nil {
		return err
	}
	return e.assign(target, a)
}

// evalAssignmentList runs the entries of a multi-assignment in order. The
// namespace is evaluated once for all of them.
func (e *Environment) evalAssignmentList(l *parser.AssignmentList) error {
	target, err := e.resolveTarget(l.Scope, l.Namespace)
	if err != nil {
		return err
	}
	for _, a := range l.Items {
		if err := e.assign(target, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) assign(target assignTarget, a *parser.Assignment) error {
	if a.Op == parser.AssignSet {
		v, err := e.evalExpr(a.Value)
		if err != nil {
			return err
		}
		if v.IsUndefined() {
			return undefinedError(a.Value)
		}
		return target.set(a.Name, v)
	}

	ref := &parser.Identifier{Name: a.Name}
	old, ok := target.get(a.Name)
	if !ok || old.IsUndefined() {
		return unsetOperand(a)
	}

	var (
		res value.Value
		err error
	)
	switch a.Op {
	case parser.AssignAdd:
		rhs, rerr := e.evalExpr(a.Value)
		if rerr != nil {
			return rerr
		}
		res, err = e.add(ref, a.Value, old, rhs)
	case parser.AssignIncr, parser.AssignDecr:
		op, _ := a.Op.Arithmetic()
		one := &parser.Literal{Value: value.FromInt(1)}
		res, err = e.arithmetic(op, ref, one, old, one.Value)
	default:
		op, ok := a.Op.Arithmetic()
		if !ok {
			return NewError(ErrBug, fmt.Sprintf("unknown assignment operator %s", a.Op))
		}
		rhs, rerr := e.evalExpr(a.Value)
		if rerr != nil {
			return rerr
		}
		res, err = e.arithmetic(op, ref, a.Value, old, rhs)
	}
	if err != nil {
		return err
	}
	return target.set(a.Name, res)
}

func unsetOperand(a *parser.Assignment) *Error {
	var msg string
	switch a.Op {
	case parser.AssignIncr:
		msg = fmt.Sprintf("cannot increment %q, because it is null or missing", a.Name)
	case parser.AssignDecr:
		msg = fmt.Sprintf("cannot decrement %q, because it is null or missing", a.Name)
	default:
		msg = fmt.Sprintf("cannot apply %q to %q, because it is null or missing", a.Op.String(), a.Name)
	}
	return NewError(ErrInvalidReference, msg).
		WithExpr(a.Name).
		WithSpan(a.Span()).
		WithOperator(a.Op.String()).
		WithTip(fmt.Sprintf("assign a starting value first, like <#%s %s = 0>", a.Scope.Keyword(), a.Name))
}

// evalBlockAssignment captures the output of the body into a variable.
func (e *Environment) evalBlockAssignment(b *parser.BlockAssignment) error {
	target, err := e.resolveTarget(b.Scope, b.Namespace)
	if err != nil {
		return err
	}

	out, err := e.capture(func() error { return e.evalBody(b.Body) })
	if err != nil {
		return err
	}
	return target.set(b.Name, e.captured(out))
}
