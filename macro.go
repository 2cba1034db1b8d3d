package ftl

import (
	goerrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// macroValue is a macro or function bound to the namespace and template it
// was defined in. Its body always runs there, wherever it is called from.
type macroValue struct {
	*parser.Macro
	ns   *Namespace
	tmpl *Template
}

func (m *macroValue) String() string {
	return m.Name
}

// macroContext is the frame of one macro or function call.
type macroContext struct {
	macro  *parser.Macro
	locals *value.Hash

	// body is the nested content of the call and loopVars the names it
	// declared; #nested runs body in the caller's scopes.
	body     []parser.Stmt
	loopVars []string

	callerNS       *Namespace
	callerTemplate *Template
	callerLocals   []*localFrame
	prev           *macroContext
}

// localFrame holds loop variables of <#list> and of nested content.
type localFrame struct {
	vars *value.Hash
	loop *loopState
}

type loopState struct {
	names   []string
	index   int
	hasNext bool
}

func (e *Environment) pushFrame(f *localFrame) func() {
	prev := e.localStack
	e.localStack = append(prev[:len(prev):len(prev)], f)
	return func() { e.localStack = prev }
}

// frameState is the part of the environment a call or a re-entry swaps.
type frameState struct {
	macroCtx   *macroContext
	currentNS  *Namespace
	localStack []*localFrame
	current    *Template
}

func (e *Environment) saveFrame() frameState {
	return frameState{e.macroCtx, e.currentNS, e.localStack, e.current}
}

func (e *Environment) restoreFrame(s frameState) {
	e.macroCtx, e.currentNS, e.localStack, e.current = s.macroCtx, s.currentNS, s.localStack, s.current
}

// callArgs are evaluated call arguments. Only one of positional and named
// is used.
type callArgs struct {
	positional []value.Value
	named      []namedValue
}

type namedValue struct {
	name  string
	value value.Value
}

func (e *Environment) evalCallArgs(c *parser.UnifiedCall) (callArgs, error) {
	var args callArgs
	for _, expr := range c.Positional {
		v, err := e.evalExpr(expr)
		if err != nil {
			return args, err
		}
		args.positional = append(args.positional, v)
	}
	for _, na := range c.Named {
		v, err := e.evalExpr(na.Value)
		if err != nil {
			return args, err
		}
		args.named = append(args.named, namedValue{na.Name, v})
	}
	return args, nil
}

// -----------------------------------------------------------------------------
// Directive calls
// -----------------------------------------------------------------------------

func (e *Environment) evalUnifiedCall(c *parser.UnifiedCall) error {
	callee, err := e.evalExpr(c.Callee)
	if err != nil {
		return err
	}
	if err := materialize(callee); err != nil {
		return err
	}
	if callee.IsUndefined() {
		return undefinedError(c.Callee)
	}

	if m, ok := callee.AsMacro(); ok {
		switch mv := m.(type) {
		case *macroValue:
			if mv.IsNoop() {
				return nil
			}
			if mv.IsFunction() && !e.opts.legacyCallables {
				return exprError(ErrNotCallable, c.Callee,
					"%q is a function; functions can only be called in expressions, like ${%s(...)}",
					mv.Name, parser.CanonicalForm(c.Callee))
			}
			args, err := e.evalCallArgs(c)
			if err != nil {
				return err
			}
			_, err = e.invokeMacro(mv, args, c.Body, c.LoopVars, c.Callee)
			return err
		case *parser.Macro:
			if mv.IsNoop() {
				return nil
			}
		}
		return exprError(ErrBug, c.Callee, "macro %q is not bound to a namespace", m.MacroName())
	}

	if d, ok := callee.AsDirective(); ok {
		return e.callDirective(d, c)
	}

	return typeError(ErrNotCallable, c.Callee, "a macro or directive", callee)
}

// callDirective hands a call over to a host directive. Foreign directives
// only take named arguments.
func (e *Environment) callDirective(d value.Directive, c *parser.UnifiedCall) error {
	if len(c.Positional) > 0 {
		return exprError(ErrInvalidOperation, c.Callee,
			"%s is a host directive; it can only be called with named arguments", parser.CanonicalForm(c.Callee))
	}
	params := make(map[string]value.Value, len(c.Named))
	for _, na := range c.Named {
		v, err := e.evalExpr(na.Value)
		if err != nil {
			return err
		}
		params[na.Name] = v
	}
	var body value.Body
	if c.Body != nil {
		body = &nestedBody{env: e, stmts: c.Body, loopVars: c.LoopVars, state: e.saveFrame()}
	}
	if err := d.Execute(e, params, c.LoopVars, body); err != nil {
		var terr *Error
		if goerrors.As(err, &terr) || isControlSignal(err) {
			return err
		}
		return exprError(ErrInvalidOperation, c.Callee, "directive %s failed", parser.CanonicalForm(c.Callee)).Wrap(err)
	}
	return nil
}

// nestedBody lets a host directive run the nested content of its call.
type nestedBody struct {
	env      *Environment
	stmts    []parser.Stmt
	loopVars []string
	state    frameState
}

func (b *nestedBody) Render(loopVars ...value.Value) error {
	e := b.env
	if len(loopVars) > len(b.loopVars) {
		return NewError(ErrTooManyArguments, fmt.Sprintf(
			"the directive passed %d loop variables, but the call declared only %d", len(loopVars), len(b.loopVars)))
	}
	saved := e.saveFrame()
	defer e.restoreFrame(saved)
	e.restoreFrame(b.state)

	frame := &localFrame{vars: value.NewHash()}
	for i, v := range loopVars {
		frame.vars.Set(b.loopVars[i], v)
	}
	defer e.pushFrame(frame)()
	return e.evalBody(b.stmts)
}

// -----------------------------------------------------------------------------
// Invocation
// -----------------------------------------------------------------------------

func macroKind(m *parser.Macro) string {
	if m.IsFunction() {
		return "function"
	}
	return "macro"
}

// invokeMacro runs a macro or function. body is the nested content of the
// call (nil for none) and loopVars the names it declares. site names the
// callee in errors.
func (e *Environment) invokeMacro(mv *macroValue, args callArgs, body []parser.Stmt, loopVars []string, site parser.Expr) (value.Value, error) {
	m := mv.Macro
	if e.opts.recursionLimit > 0 && e.depth >= e.opts.recursionLimit {
		return value.Undefined(), exprError(ErrInvalidOperation, site,
			"recursion limit of %d exceeded while calling %s %q", e.opts.recursionLimit, macroKind(m), m.Name)
	}

	locals, specifiedNull, err := bindArgs(m, args, site)
	if err != nil {
		return value.Undefined(), err
	}

	mc := &macroContext{
		macro:          m,
		locals:         locals,
		body:           body,
		loopVars:       loopVars,
		callerNS:       e.currentNS,
		callerTemplate: e.current,
		callerLocals:   e.localStack,
		prev:           e.macroCtx,
	}

	saved := e.saveFrame()
	prevOut := e.out
	e.depth++
	defer func() {
		e.depth--
		e.out = prevOut
		e.restoreFrame(saved)
	}()

	e.macroCtx = mc
	e.currentNS = mv.ns
	e.localStack = nil
	e.current = mv.tmpl

	if err := e.resolveDefaults(mc, specifiedNull, site); err != nil {
		return value.Undefined(), err
	}

	if m.IsFunction() {
		e.out = io.Discard
	}
	err = e.evalBody(m.Body)

	var ret *returnSignal
	if goerrors.As(err, &ret) {
		return ret.value, nil
	}
	if err == errBreak || err == errContinue {
		return value.Undefined(), NewError(ErrBug, err.Error())
	}
	return value.Undefined(), err
}

// bindArgs binds call arguments to the declared parameters. Parameters
// given an undefined value stay unbound and are reported in specifiedNull.
func bindArgs(m *parser.Macro, args callArgs, site parser.Expr) (*value.Hash, map[string]bool, error) {
	locals := value.NewHash()
	specifiedNull := make(map[string]bool)
	bind := func(name string, v value.Value) {
		if v.IsUndefined() {
			specifiedNull[name] = true
			return
		}
		locals.Set(name, v)
	}

	if len(args.positional) > 0 {
		var overflow []value.Value
		for i, v := range args.positional {
			if i < len(m.Params) {
				bind(m.Params[i].Name, v)
				continue
			}
			if m.CatchAll == "" {
				return nil, nil, exprError(ErrTooManyArguments, site,
					"%s %q only accepts %d parameters, but got %d",
					macroKind(m), m.Name, len(m.Params), len(args.positional))
			}
			overflow = append(overflow, v)
		}
		if m.CatchAll != "" {
			locals.Set(m.CatchAll, value.FromSlice(overflow))
		}
		return locals, specifiedNull, nil
	}

	extra := value.NewHash()
	for _, na := range args.named {
		if m.HasParam(na.name) {
			bind(na.name, na.value)
			continue
		}
		if m.CatchAll == "" {
			err := exprError(ErrUnknownParameter, site,
				"%s %q has no parameter with name %q", macroKind(m), m.Name, na.name)
			names := make([]string, len(m.Params))
			for i, p := range m.Params {
				names[i] = p.Name
			}
			if s, ok := suggest.Closest(na.name, names); ok {
				err.WithTip(fmt.Sprintf("did you mean %q?", s))
			} else if len(names) > 0 {
				err.WithTip("the declared parameters are: " + strings.Join(names, ", "))
			}
			return nil, nil, err
		}
		if !na.value.IsUndefined() {
			extra.Set(na.name, na.value)
		}
	}
	if m.CatchAll != "" {
		locals.Set(m.CatchAll, value.FromHash(extra))
	}
	return locals, specifiedNull, nil
}

// resolveDefaults evaluates the defaults of unbound parameters in the
// callee's scope until nothing changes. Defaults may refer to other
// parameters in any order. A default that is still undefined is retried on
// the next pass; so is one that fails with an invalid reference, and the
// first such failure is reported when a pass makes no progress.
func (e *Environment) resolveDefaults(mc *macroContext, specifiedNull map[string]bool, site parser.Expr) error {
	m := mc.macro
	for i, p := range m.Params {
		if p.Default == nil && !mc.locals.Has(p.Name) {
			return missingParameter(m, i, specifiedNull[p.Name], nil, site)
		}
	}

	for {
		progress := false
		firstUnresolved := -1
		var firstRefErr error
		for i, p := range m.Params {
			if mc.locals.Has(p.Name) {
				continue
			}
			v, err := e.evalExpr(p.Default)
			if err != nil {
				if KindOf(err) != ErrInvalidReference {
					return err
				}
				if firstRefErr == nil {
					firstRefErr = err
				}
			} else if !v.IsUndefined() {
				mc.locals.Set(p.Name, v)
				progress = true
				continue
			}
			if firstUnresolved < 0 {
				firstUnresolved = i
			}
		}
		if firstUnresolved < 0 {
			return nil
		}
		if !progress {
			if firstRefErr != nil {
				return firstRefErr
			}
			return missingParameter(m, firstUnresolved, specifiedNull[m.Params[firstUnresolved].Name], m.Params[firstUnresolved].Default, site)
		}
	}
}

func missingParameter(m *parser.Macro, index int, specifiedNull bool, def parser.Expr, site parser.Expr) *Error {
	p := m.Params[index]
	state := "was not specified"
	if specifiedNull {
		state = "was specified, but had null/missing value"
	}
	msg := fmt.Sprintf("When calling %s %q, required parameter %q (parameter #%d) %s.",
		macroKind(m), m.Name, p.Name, index+1, state)
	if def != nil {
		msg = fmt.Sprintf("When calling %s %q, parameter %q (parameter #%d) %s, and its default value (%s) has evaluated to null or missing.",
			macroKind(m), m.Name, p.Name, index+1, state, parser.CanonicalForm(def))
	}
	err := exprError(ErrMissingParameter, site, "%s", msg)
	if specifiedNull {
		err.WithTip("If the parameter value expression on the caller side is known to be legally null/missing, " +
			"you may want to specify a default value for it with the \"!\" operator, like paramValue!defaultValue.")
	}
	return err
}

// -----------------------------------------------------------------------------
// Nested content
// -----------------------------------------------------------------------------

// evalNested runs the nested content of the current macro call in the
// caller's scopes, with the arguments bound to the loop variables the call
// declared.
func (e *Environment) evalNested(n *parser.Nested) error {
	mc := e.macroCtx
	if mc == nil {
		return NewError(ErrBug, "<#nested> outside of a macro")
	}
	if len(mc.body) == 0 {
		return nil
	}

	args := make([]value.Value, len(n.Args))
	for i, expr := range n.Args {
		v, err := e.evalExpr(expr)
		if err != nil {
			return err
		}
		args[i] = v
	}
	if len(args) > len(mc.loopVars) {
		return NewError(ErrTooManyArguments, fmt.Sprintf(
			"<#nested> passed %d loop variables, but the call of macro %q declared only %d",
			len(args), mc.macro.Name, len(mc.loopVars))).
			WithTip(fmt.Sprintf("declare them on the caller side after a semicolon, like <@%s ...; a, b>", mc.macro.Name))
	}

	saved := e.saveFrame()
	defer e.restoreFrame(saved)
	e.macroCtx = mc.prev
	e.currentNS = mc.callerNS
	e.localStack = mc.callerLocals
	e.current = mc.callerTemplate

	frame := &localFrame{vars: value.NewHash()}
	for i, v := range args {
		if !v.IsUndefined() {
			frame.vars.Set(mc.loopVars[i], v)
		}
	}
	defer e.pushFrame(frame)()
	return e.evalBody(mc.body)
}

// -----------------------------------------------------------------------------
// Calls in expressions
// -----------------------------------------------------------------------------

func (e *Environment) evalCall(c *parser.Call) (value.Value, error) {
	callee, err := e.evalExpr(c.Callee)
	if err != nil {
		return value.Undefined(), err
	}
	if callee.IsUndefined() {
		return value.Undefined(), undefinedError(c.Callee)
	}

	args := make([]value.Value, len(c.Args))
	for i, expr := range c.Args {
		v, err := e.evalExpr(expr)
		if err != nil {
			return value.Undefined(), err
		}
		args[i] = v
	}

	if m, ok := callee.AsMacro(); ok {
		mv, ok := m.(*macroValue)
		if !ok {
			return value.Undefined(), nil
		}
		if mv.IsFunction() {
			return e.invokeMacro(mv, callArgs{positional: args}, nil, nil, c.Callee)
		}
		if !e.opts.legacyCallables {
			return value.Undefined(), exprError(ErrNotCallable, c.Callee,
				"%q is a macro; macros can only be called with <@%s .../>", mv.Name, parser.CanonicalForm(c.Callee))
		}
		out, err := e.capture(func() error {
			_, err := e.invokeMacro(mv, callArgs{positional: args}, nil, nil, c.Callee)
			return err
		})
		if err != nil {
			return value.Undefined(), err
		}
		return e.captured(out), nil
	}

	if meth, ok := callee.AsMethod(); ok {
		v, err := meth.Call(e, args)
		if err != nil {
			var terr *Error
			if goerrors.As(err, &terr) {
				return value.Undefined(), err
			}
			return value.Undefined(), exprError(ErrInvalidOperation, c, "call of %s failed", parser.CanonicalForm(c.Callee)).Wrap(err)
		}
		return v, nil
	}

	return value.Undefined(), typeError(ErrNotCallable, c.Callee, "a function or method", callee)
}
