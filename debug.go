package ftl

import (
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// attachErrorInfo completes the location of err with the statement that
// failed. In debug mode it also records the variables the statement refers
// to and the macro call stack.
func (e *Environment) attachErrorInfo(err *Error, stmt parser.Stmt) {
	if err.Name == "" {
		err.WithName(e.current.name)
	}
	if err.Source == "" && err.Name == e.current.name {
		err.WithSource(e.current.source)
	}
	if err.Span == nil && stmt != nil {
		if span := stmt.Span(); span.StartLine > 0 {
			err.WithSpan(span)
		}
	}
	if e.opts.debug && err.DebugInfo == nil {
		err.WithDebugInfo(e.makeDebugInfo(stmt))
	}
}

func (e *Environment) makeDebugInfo(stmt parser.Stmt) DebugInfo {
	referenced := map[string]struct{}{}
	if stmt != nil {
		collectReferencedNamesStmt(stmt, referenced)
	}

	locals := make(map[string]value.Value, len(referenced))
	for name := range referenced {
		if v := e.Lookup(name); !v.IsUndefined() {
			locals[name] = v
		}
	}

	return DebugInfo{
		TemplateSource:   e.current.source,
		ReferencedLocals: locals,
		CallStack:        e.CallStack(),
	}
}

// ConsumedFuel returns how many statements the render has executed.
func (e *Environment) ConsumedFuel() uint64 {
	return e.fuel.used
}

func collectReferencedNamesStmt(stmt parser.Stmt, referenced map[string]struct{}) {
	switch s := stmt.(type) {
	case *parser.Interpolation:
		collectReferencedNamesExpr(s.Expr, referenced)
	case *parser.Assignment:
		collectReferencedNamesExpr(s.Value, referenced)
		collectReferencedNamesExpr(s.Namespace, referenced)
		if s.Op != parser.AssignSet {
			referenced[s.Name] = struct{}{}
		}
	case *parser.AssignmentList:
		for _, item := range s.Items {
			collectReferencedNamesStmt(item, referenced)
		}
	case *parser.BlockAssignment:
		collectReferencedNamesExpr(s.Namespace, referenced)
	case *parser.Return:
		collectReferencedNamesExpr(s.Value, referenced)
	case *parser.Nested:
		for _, arg := range s.Args {
			collectReferencedNamesExpr(arg, referenced)
		}
	case *parser.UnifiedCall:
		collectReferencedNamesExpr(s.Callee, referenced)
		for _, arg := range s.Positional {
			collectReferencedNamesExpr(arg, referenced)
		}
		for _, arg := range s.Named {
			collectReferencedNamesExpr(arg.Value, referenced)
		}
	case *parser.Include:
		collectReferencedNamesExpr(s.Name, referenced)
		collectReferencedNamesExpr(s.IgnoreMissing, referenced)
	case *parser.Import:
		collectReferencedNamesExpr(s.Name, referenced)
	case *parser.If:
		for _, branch := range s.Branches {
			collectReferencedNamesExpr(branch.Cond, referenced)
		}
	case *parser.List:
		collectReferencedNamesExpr(s.Seq, referenced)
	case *parser.Setting:
		collectReferencedNamesExpr(s.Value, referenced)
	}
}

func collectReferencedNamesExpr(expr parser.Expr, referenced map[string]struct{}) {
	if expr == nil {
		return
	}

	switch x := expr.(type) {
	case *parser.Identifier:
		referenced[x.Name] = struct{}{}
	case *parser.Literal, *parser.SpecialVar:
		return
	case *parser.StringInterp:
		for _, part := range x.Parts {
			collectReferencedNamesExpr(part, referenced)
		}
	case *parser.SeqLit:
		for _, item := range x.Items {
			collectReferencedNamesExpr(item, referenced)
		}
	case *parser.HashLit:
		for _, key := range x.Keys {
			collectReferencedNamesExpr(key, referenced)
		}
		for _, v := range x.Values {
			collectReferencedNamesExpr(v, referenced)
		}
	case *parser.Range:
		collectReferencedNamesExpr(x.Start, referenced)
		collectReferencedNamesExpr(x.End, referenced)
	case *parser.Dot:
		collectReferencedNamesExpr(x.Target, referenced)
	case *parser.Index:
		collectReferencedNamesExpr(x.Target, referenced)
		collectReferencedNamesExpr(x.Key, referenced)
	case *parser.BuiltIn:
		collectReferencedNamesExpr(x.Target, referenced)
		for _, arg := range x.Args {
			collectReferencedNamesExpr(arg, referenced)
		}
	case *parser.Call:
		collectReferencedNamesExpr(x.Callee, referenced)
		for _, arg := range x.Args {
			collectReferencedNamesExpr(arg, referenced)
		}
	case *parser.BinOp:
		collectReferencedNamesExpr(x.Left, referenced)
		collectReferencedNamesExpr(x.Right, referenced)
	case *parser.UnaryOp:
		collectReferencedNamesExpr(x.Expr, referenced)
	case *parser.Default:
		collectReferencedNamesExpr(x.Target, referenced)
		collectReferencedNamesExpr(x.Fallback, referenced)
	case *parser.Exists:
		collectReferencedNamesExpr(x.Target, referenced)
	case *parser.Paren:
		collectReferencedNamesExpr(x.Inner, referenced)
	}
}
