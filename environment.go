package ftl

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/message"

	"github.com/ftlgo/ftl/log"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// Environment is the state of a single render: its scopes, the macro call
// stack, the active output and the render level settings. It is not safe
// for concurrent use; every render creates its own.
type Environment struct {
	cfg    *Configuration
	opts   renderOptions
	ctx    context.Context
	logger log.Logger
	fuel   fuelGauge

	main    *Template
	current *Template

	dataModel value.Value
	shared    *value.Hash
	globals   *value.Hash
	mainNS    *Namespace
	currentNS *Namespace

	macroCtx   *macroContext
	localStack []*localFrame

	out io.Writer

	settings Settings
	resolved *Settings
	printer  *message.Printer

	imports      map[string]*Namespace
	depth        int
	attemptDepth int
	recovered    []*Error
	handled      map[*Error]struct{}
}

var _ value.State = (*Environment)(nil)

func newEnvironment(ctx context.Context, tmpl *Template, data value.Value, w io.Writer) *Environment {
	if ctx == nil {
		ctx = context.Background()
	}
	if w == nil {
		w = io.Discard
	}
	cfg := tmpl.cfg
	e := &Environment{
		cfg:       cfg,
		opts:      cfg.renderOptions(),
		ctx:       ctx,
		logger:    cfg.Logger(),
		main:      tmpl,
		current:   tmpl,
		dataModel: data,
		shared:    cfg.sharedVariables(),
		globals:   value.NewHash(),
		out:       w,
		imports:   make(map[string]*Namespace),
		handled:   make(map[*Error]struct{}),
	}
	e.fuel.limit = e.opts.fuel
	e.mainNS = newNamespace(tmpl)
	e.currentNS = e.mainNS
	return e
}

// Context implements value.State.
func (e *Environment) Context() context.Context {
	return e.ctx
}

// Name returns the name of the template whose code is executing.
func (e *Environment) Name() string {
	return e.current.name
}

// Out returns the active output. Inside capturing blocks this is the
// capture buffer.
func (e *Environment) Out() io.Writer {
	return e.out
}

// Template returns the main template of the render.
func (e *Environment) Template() *Template {
	return e.main
}

// CurrentTemplate returns the template whose code is executing.
func (e *Environment) CurrentTemplate() *Template {
	return e.current
}

// MainNamespace returns the namespace of the main template.
func (e *Environment) MainNamespace() *Namespace {
	return e.mainNS
}

// CurrentNamespace returns the namespace <#assign> writes to.
func (e *Environment) CurrentNamespace() *Namespace {
	return e.currentNS
}

// GlobalVariables returns the variables set with <#global>.
func (e *Environment) GlobalVariables() *value.Hash {
	return e.globals
}

// SetGlobalVariable sets a variable as <#global> would.
func (e *Environment) SetGlobalVariable(name string, v any) {
	e.globals.Set(name, value.FromAny(v))
}

// Lookup resolves a variable. Loop variables and the local scope of the
// running macro come first, then the current namespace, the globals, the
// data model and finally the shared variables of the configuration.
func (e *Environment) Lookup(name string) value.Value {
	for i := len(e.localStack) - 1; i >= 0; i-- {
		if v, ok := e.localStack[i].vars.Get(name); ok {
			return v
		}
	}
	if e.macroCtx != nil {
		if v, ok := e.macroCtx.locals.Get(name); ok {
			return v
		}
	}
	if v := e.currentNS.GetAttr(name); !v.IsUndefined() {
		return v
	}
	if v, ok := e.globals.Get(name); ok {
		return v
	}
	if v := e.dataModel.GetAttr(name); !v.IsUndefined() {
		return v
	}
	v, _ := e.shared.Get(name)
	return v
}

// knownNames lists every variable name visible from here, for tips.
func (e *Environment) knownNames() []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(keys []string) {
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	for i := len(e.localStack) - 1; i >= 0; i-- {
		add(e.localStack[i].vars.Keys())
	}
	if e.macroCtx != nil {
		add(e.macroCtx.locals.Keys())
	}
	add(e.currentNS.Keys())
	add(e.globals.Keys())
	if h, ok := e.dataModel.AsHash(); ok {
		add(h.Keys())
	}
	add(e.shared.Keys())
	return names
}

// Locals returns a snapshot of the variables local to the running macro
// call, loop variables included. Outside macros only loop variables are
// returned.
func (e *Environment) Locals() *value.Hash {
	out := value.NewHash()
	if e.macroCtx != nil {
		for _, k := range e.macroCtx.locals.Keys() {
			v, _ := e.macroCtx.locals.Get(k)
			out.Set(k, v)
		}
	}
	for _, frame := range e.localStack {
		for _, k := range frame.vars.Keys() {
			v, _ := frame.vars.Get(k)
			out.Set(k, v)
		}
	}
	return out
}

// CallStack returns the names of the active macro and function calls,
// innermost first.
func (e *Environment) CallStack() []string {
	var names []string
	for mc := e.macroCtx; mc != nil; mc = mc.prev {
		names = append(names, mc.macro.Name)
	}
	return names
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

// Settings returns the settings in effect, resolved through the template
// and the configuration.
func (e *Environment) Settings() Settings {
	if e.resolved == nil {
		s := e.settings.inherit(e.main.resolvedSettings())
		e.resolved = &s
	}
	return *e.resolved
}

// SetSetting sets a render level setting by name, as <#setting> does.
func (e *Environment) SetSetting(name, val string) error {
	if err := e.settings.set(name, val); err != nil {
		return err
	}
	e.resolved = nil
	if name == "locale" {
		e.printer = nil
	}
	return nil
}

// SetOutputFormat overrides the output format for this render.
func (e *Environment) SetOutputFormat(f OutputFormat) {
	e.settings.OutputFormat = f
	e.resolved = nil
}

// SetExceptionHandler overrides the exception handler for this render.
func (e *Environment) SetExceptionHandler(h ExceptionHandler) {
	e.settings.ExceptionHandler = h
	e.resolved = nil
}

// SetArithmeticEngine overrides the arithmetic engine for this render.
func (e *Environment) SetArithmeticEngine(engine value.ArithmeticEngine) {
	e.settings.ArithmeticEngine = engine
	e.resolved = nil
}

func (e *Environment) engine() value.ArithmeticEngine {
	return e.Settings().ArithmeticEngine
}

// outputFormat is the format of the template being executed: its own
// (implied by its name) if it has one, the render's otherwise.
func (e *Environment) outputFormat() OutputFormat {
	if e.settings.OutputFormat == nil && e.current.settings.OutputFormat != nil {
		return e.current.settings.OutputFormat
	}
	return e.Settings().OutputFormat
}

func (e *Environment) numberPrinter() *message.Printer {
	if e.printer == nil {
		tag, err := parseLocale(e.Settings().Locale)
		if err != nil {
			tag, _ = parseLocale(DefaultSettings().Locale)
		}
		e.printer = message.NewPrinter(tag)
	}
	return e.printer
}

// -----------------------------------------------------------------------------
// Processing
// -----------------------------------------------------------------------------

// Process runs the auto-imports, the auto-includes and then the main
// template.
func (e *Environment) Process() error {
	e.logger.DebugContext(e.ctx, "render started", slog.String("template", e.main.name))

	for _, ai := range e.opts.autoImports {
		full, err := ResolveName("", ai.name)
		if err != nil {
			return e.finish(err)
		}
		ns, err := e.importLibrary(full)
		if err != nil {
			return e.finish(err)
		}
		e.mainNS.Set(ai.alias, value.FromObject(ns))
	}
	for _, name := range e.opts.autoIncludes {
		full, err := ResolveName("", name)
		if err != nil {
			return e.finish(err)
		}
		tmpl, err := e.cfg.getTemplate(full)
		if err != nil {
			return e.finish(err)
		}
		if err := e.runIncluded(tmpl); err != nil {
			return e.finish(err)
		}
	}

	e.hoistMacros(e.main, e.mainNS)
	return e.finish(e.evalBody(e.main.ast.Children))
}

func (e *Environment) finish(err error) error {
	if err == nil {
		e.logger.DebugContext(e.ctx, "render finished",
			slog.String("template", e.main.name),
			slog.Uint64("fuel", e.fuel.used))
		return nil
	}
	if isControlSignal(err) {
		return NewError(ErrBug, err.Error()).WithName(e.main.name)
	}
	var terr *Error
	if goerrors.As(err, &terr) && terr.Name == "" {
		terr.WithName(e.current.name)
	}
	e.logger.DebugContext(e.ctx, "render failed",
		slog.String("template", e.main.name),
		slog.Any("error", err))
	return err
}

// hoistMacros makes the macros of tmpl callable in ns before any of its
// statements run.
func (e *Environment) hoistMacros(tmpl *Template, ns *Namespace) {
	for _, m := range tmpl.ast.Macros {
		ns.Set(m.Name, value.FromMacro(&macroValue{Macro: m, ns: ns, tmpl: tmpl}))
	}
}

func (e *Environment) evalBody(body []parser.Stmt) error {
	for _, stmt := range body {
		if err := e.evalStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) evalStmt(stmt parser.Stmt) error {
	if err := e.ctx.Err(); err != nil {
		return NewError(ErrAborted, "the render was cancelled").Wrap(err)
	}
	if err := e.fuel.burn(1); err != nil {
		return err
	}
	err := e.execStmt(stmt)
	if err == nil || isControlSignal(err) {
		return err
	}
	return e.handleError(err, stmt)
}

func (e *Environment) execStmt(stmt parser.Stmt) error {
	switch s := stmt.(type) {
	case *parser.Text:
		return e.write(s.Raw)
	case *parser.Interpolation:
		return e.evalInterpolation(s)
	case *parser.Assignment:
		return e.evalAssignment(s)
	case *parser.AssignmentList:
		return e.evalAssignmentList(s)
	case *parser.BlockAssignment:
		return e.evalBlockAssignment(s)
	case *parser.Macro:
		e.currentNS.Set(s.Name, value.FromMacro(&macroValue{Macro: s, ns: e.currentNS, tmpl: e.current}))
		return nil
	case *parser.Return:
		return e.evalReturn(s)
	case *parser.Nested:
		return e.evalNested(s)
	case *parser.UnifiedCall:
		return e.evalUnifiedCall(s)
	case *parser.Include:
		return e.evalInclude(s)
	case *parser.Import:
		return e.evalImport(s)
	case *parser.If:
		return e.evalIf(s)
	case *parser.List:
		return e.evalList(s)
	case *parser.Break:
		return errBreak
	case *parser.Continue:
		return errContinue
	case *parser.Attempt:
		return e.evalAttempt(s)
	case *parser.Setting:
		return e.evalSetting(s)
	default:
		return NewError(ErrBug, fmt.Sprintf("unexpected statement %T", stmt))
	}
}

// handleError completes the location of err and offers it to the exception
// handler. Errors inside <#attempt> and aborts go straight up.
func (e *Environment) handleError(err error, stmt parser.Stmt) error {
	var terr *Error
	if !goerrors.As(err, &terr) {
		return err
	}
	if _, done := e.handled[terr]; done {
		return err
	}
	e.attachErrorInfo(terr, stmt)
	if terr.Kind == ErrAborted || e.attemptDepth > 0 {
		return err
	}

	e.handled[terr] = struct{}{}
	handler := e.Settings().ExceptionHandler
	if handler == nil {
		return err
	}
	e.logger.WarnContext(e.ctx, "template error", slog.Any("error", terr))
	return handler.HandleError(terr, e, e.out)
}

func (e *Environment) write(s string) error {
	_, err := io.WriteString(e.out, s)
	return err
}

// capture runs fn with the output redirected into a buffer and returns
// what was written. The previous output is restored even if fn panics.
func (e *Environment) capture(fn func() error) (string, error) {
	var sb strings.Builder
	prev := e.out
	e.out = &sb
	defer func() { e.out = prev }()
	err := fn()
	return sb.String(), err
}

// -----------------------------------------------------------------------------
// Control flow
// -----------------------------------------------------------------------------

var (
	errBreak    = goerrors.New("<#break> outside of <#list>")
	errContinue = goerrors.New("<#continue> outside of <#list>")
)

type returnSignal struct {
	value value.Value
}

func (*returnSignal) Error() string {
	return "<#return> outside of a macro or function"
}

func isControlSignal(err error) bool {
	if err == errBreak || err == errContinue {
		return true
	}
	_, ok := err.(*returnSignal)
	return ok
}

func (e *Environment) evalReturn(r *parser.Return) error {
	if r.Value == nil {
		return &returnSignal{}
	}
	v, err := e.evalExpr(r.Value)
	if err != nil {
		return err
	}
	return &returnSignal{value: v}
}

func (e *Environment) evalIf(n *parser.If) error {
	for _, branch := range n.Branches {
		ok, err := e.evalBool(branch.Cond)
		if err != nil {
			return err
		}
		if ok {
			return e.evalBody(branch.Body)
		}
	}
	return e.evalBody(n.Else)
}

func (e *Environment) evalAttempt(n *parser.Attempt) error {
	out, err := e.capture(func() error {
		e.attemptDepth++
		defer func() { e.attemptDepth-- }()
		return e.evalBody(n.Body)
	})

	if err == nil || isControlSignal(err) {
		if werr := e.write(out); werr != nil {
			return werr
		}
		return err
	}
	var terr *Error
	if !goerrors.As(err, &terr) || terr.Kind == ErrAborted {
		return err
	}

	e.logger.WarnContext(e.ctx, "error recovered by <#attempt>", slog.Any("error", terr))
	e.recovered = append(e.recovered, terr)
	defer func() { e.recovered = e.recovered[:len(e.recovered)-1] }()
	return e.evalBody(n.Recover)
}

func (e *Environment) evalSetting(n *parser.Setting) error {
	v, err := e.evalExpr(n.Value)
	if err != nil {
		return err
	}
	s, err := e.toPlainText(n.Value, v)
	if err != nil {
		return err
	}
	if err := e.SetSetting(n.Name, s); err != nil {
		var terr *Error
		if goerrors.As(err, &terr) {
			return err
		}
		return NewError(ErrInvalidOperation, err.Error())
	}
	return nil
}
