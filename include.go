package ftl

import (
	"io"
	"log/slog"

	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// templateName evaluates a template name expression and resolves it
// against the template being executed.
func (e *Environment) templateName(expr parser.Expr) (string, error) {
	v, err := e.evalExpr(expr)
	if err != nil {
		return "", err
	}
	name, err := e.toPlainText(expr, v)
	if err != nil {
		return "", err
	}
	full, err := ResolveName(e.current.Name(), name)
	if err != nil {
		if terr, ok := err.(*Error); ok {
			return "", terr.WithExpr(parser.CanonicalForm(expr)).WithSpan(expr.Span())
		}
		return "", err
	}
	return full, nil
}

// evalInclude runs another template in the current namespace, as if its
// text stood in place of the directive.
func (e *Environment) evalInclude(n *parser.Include) error {
	full, err := e.templateName(n.Name)
	if err != nil {
		return err
	}

	ignoreMissing, ok := n.IgnoreMissingConst()
	if !ok {
		ignoreMissing, err = e.evalBool(n.IgnoreMissing)
		if err != nil {
			return err
		}
	}

	tmpl, err := e.cfg.getTemplate(full)
	if err != nil {
		if ignoreMissing && KindOf(err) == ErrTemplateNotFound {
			e.logger.TraceContext(e.ctx, "missing include ignored", slog.String("template", full))
			return nil
		}
		return err
	}
	return e.runIncluded(tmpl)
}

func (e *Environment) runIncluded(tmpl *Template) error {
	if e.opts.recursionLimit > 0 && e.depth >= e.opts.recursionLimit {
		return NewError(ErrInvalidOperation, "recursion limit exceeded while including "+tmpl.name)
	}
	prev := e.current
	e.depth++
	defer func() {
		e.depth--
		e.current = prev
	}()
	e.current = tmpl
	e.hoistMacros(tmpl, e.currentNS)
	return e.evalBody(tmpl.ast.Children)
}

// evalImport binds the namespace of a library to an alias in the current
// namespace. A library is only ever run once per render; importing it again
// yields the same namespace.
func (e *Environment) evalImport(n *parser.Import) error {
	full, err := e.templateName(n.Name)
	if err != nil {
		return err
	}

	var ns *Namespace
	if _, loaded := e.imports[full]; !loaded && e.opts.lazyImports {
		ns = e.lazyLibrary(full)
	} else {
		ns, err = e.importLibrary(full)
		if err != nil {
			return err
		}
	}
	e.currentNS.Set(n.Alias, value.FromObject(ns))
	return nil
}

// importLibrary loads and runs a library into a fresh namespace.
func (e *Environment) importLibrary(full string) (*Namespace, error) {
	if ns, ok := e.imports[full]; ok {
		return ns, ns.ensureLoaded()
	}
	tmpl, err := e.cfg.getTemplate(full)
	if err != nil {
		return nil, err
	}
	ns := newNamespace(tmpl)
	e.imports[full] = ns
	return ns, e.runImport(ns, tmpl)
}

// lazyLibrary registers a library that loads on first access. Failures to
// load surface at that point.
func (e *Environment) lazyLibrary(full string) *Namespace {
	ns := newLazyNamespace(func(ns *Namespace) error {
		tmpl, err := e.cfg.getTemplate(full)
		if err != nil {
			return err
		}
		e.logger.DebugContext(e.ctx, "lazy import loaded", slog.String("template", full))
		return e.runImport(ns, tmpl)
	})
	e.imports[full] = ns
	return ns
}

// runImport runs a library in its own namespace, outside of any macro call.
// The output of a library is discarded.
func (e *Environment) runImport(ns *Namespace, tmpl *Template) error {
	saved := e.saveFrame()
	prevOut := e.out
	defer func() {
		e.restoreFrame(saved)
		e.out = prevOut
	}()

	e.macroCtx = nil
	e.currentNS = ns
	e.localStack = nil
	e.current = tmpl
	e.out = io.Discard

	ns.tmpl = tmpl
	e.hoistMacros(tmpl, ns)
	return e.evalBody(tmpl.ast.Children)
}
