// Package parser turns template source into an immutable syntax tree.
//
// Nodes are created by the parser and never modified afterwards, so one
// parsed template can be rendered by any number of goroutines at once. The
// few lazily computed values that nodes cache are published atomically.
package parser

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ftlgo/ftl/lexer"
	"github.com/ftlgo/ftl/value"
)

// Span represents a location range in source code.
type Span = lexer.Span

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
	Span() Span
}

// Stmt represents a directive or template text.
type Stmt interface {
	Node
	stmt()
}

// Expr represents an expression node.
type Expr interface {
	Node
	expr()
}

// -----------------------------------------------------------------------------
// Statements
// -----------------------------------------------------------------------------

// Template is the root node of a parsed template.
type Template struct {
	Name     string
	Children []Stmt
	// Macros lists every macro and function definition in source order.
	Macros []*Macro
	span   Span
}

func (t *Template) node()      {}
func (t *Template) stmt()      {}
func (t *Template) Span() Span { return t.span }

// Text is static template text.
type Text struct {
	Raw  string
	span Span
}

func (t *Text) node()      {}
func (t *Text) stmt()      {}
func (t *Text) Span() Span { return t.span }

// Interpolation prints an expression: ${expr}.
type Interpolation struct {
	Expr Expr
	span Span
}

func (i *Interpolation) node()      {}
func (i *Interpolation) stmt()      {}
func (i *Interpolation) Span() Span { return i.span }

// Scope is the target scope of an assignment directive. The zero value is
// not a valid scope.
type Scope int

const (
	ScopeNamespace Scope = iota + 1 // #assign
	ScopeLocal                      // #local
	ScopeGlobal                     // #global
)

// Keyword returns the directive name of the scope.
func (s Scope) Keyword() string {
	switch s {
	case ScopeNamespace:
		return "assign"
	case ScopeLocal:
		return "local"
	case ScopeGlobal:
		return "global"
	}
	return "?"
}

func (s Scope) String() string {
	switch s {
	case ScopeNamespace:
		return "namespace"
	case ScopeLocal:
		return "local"
	case ScopeGlobal:
		return "global"
	}
	return "unknown"
}

// AssignOp is the operator of an assignment.
type AssignOp int

const (
	AssignSet AssignOp = iota // =
	AssignAdd                 // +=
	AssignSub                 // -=
	AssignMul                 // *=
	AssignDiv                 // /=
	AssignMod                 // %=
	AssignIncr                // ++
	AssignDecr                // --
)

func (o AssignOp) String() string {
	switch o {
	case AssignSet:
		return "="
	case AssignAdd:
		return "+="
	case AssignSub:
		return "-="
	case AssignMul:
		return "*="
	case AssignDiv:
		return "/="
	case AssignMod:
		return "%="
	case AssignIncr:
		return "++"
	case AssignDecr:
		return "--"
	}
	return "?"
}

// Arithmetic returns the binary operator a compound assignment reduces to.
// ok is false for plain assignment.
func (o AssignOp) Arithmetic() (op value.Operator, ok bool) {
	switch o {
	case AssignAdd, AssignIncr:
		return value.OpAdd, true
	case AssignSub, AssignDecr:
		return value.OpSubtract, true
	case AssignMul:
		return value.OpMultiply, true
	case AssignDiv:
		return value.OpDivide, true
	case AssignMod:
		return value.OpModulus, true
	}
	return 0, false
}

// Assignment sets one variable: <#assign x = 1>, <#local x++>,
// <#global x += 2 in ns>. Value is nil for ++ and --.
type Assignment struct {
	Scope     Scope
	Name      string
	Op        AssignOp
	Value     Expr
	Namespace Expr // optional "in" target
	// InList is set when the assignment is one entry of an AssignmentList.
	InList bool
	span   Span
}

func (a *Assignment) node()      {}
func (a *Assignment) stmt()      {}
func (a *Assignment) Span() Span { return a.span }

// AssignmentList holds the entries of a multi-assignment tag:
// <#local x=1 y=2>.
type AssignmentList struct {
	Scope     Scope
	Items     []*Assignment
	Namespace Expr
	span      Span
}

func (a *AssignmentList) node()      {}
func (a *AssignmentList) stmt()      {}
func (a *AssignmentList) Span() Span { return a.span }

// BlockAssignment captures the output of its body into a variable:
// <#assign x>...</#assign>.
type BlockAssignment struct {
	Scope     Scope
	Name      string
	Namespace Expr
	Body      []Stmt
	span      Span
}

func (b *BlockAssignment) node()      {}
func (b *BlockAssignment) stmt()      {}
func (b *BlockAssignment) Span() Span { return b.span }

// MacroKind tells macros, functions and the no-op macro apart.
type MacroKind int

const (
	MacroKindMacro MacroKind = iota
	MacroKindFunction
	MacroKindNoop
)

// Param is a declared macro parameter.
type Param struct {
	Name    string
	Default Expr // nil when the parameter is required
}

// Macro is a macro or function definition. The node itself is the runtime
// value of the macro.
type Macro struct {
	Name     string
	Params   []Param
	CatchAll string // empty when there is no catch-all parameter
	Kind     MacroKind
	Body     []Stmt
	span     Span

	namesOnce sync.Once
	names     []string
}

func (m *Macro) node()      {}
func (m *Macro) stmt()      {}
func (m *Macro) Span() Span { return m.span }

// MacroName implements value.Macro.
func (m *Macro) MacroName() string { return m.Name }

// IsFunction implements value.Macro.
func (m *Macro) IsFunction() bool { return m.Kind == MacroKindFunction }

// IsNoop reports whether m is the do-nothing macro.
func (m *Macro) IsNoop() bool { return m.Kind == MacroKindNoop }

// ParamNames returns the declared parameter names, catch-all last.
func (m *Macro) ParamNames() []string {
	m.namesOnce.Do(func() {
		names := make([]string, 0, len(m.Params)+1)
		for _, p := range m.Params {
			names = append(names, p.Name)
		}
		if m.CatchAll != "" {
			names = append(names, m.CatchAll)
		}
		m.names = names
	})
	return m.names
}

// HasParam reports whether name is a declared (non catch-all) parameter.
func (m *Macro) HasParam(name string) bool {
	for _, p := range m.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// NoopMacro is the macro that does nothing. Calls to it are recognised by
// its kind.
var NoopMacro = &Macro{Name: "pass", Kind: MacroKindNoop}

// Return leaves the enclosing macro or function: <#return> or
// <#return expr>.
type Return struct {
	Value Expr
	span  Span
}

func (r *Return) node()      {}
func (r *Return) stmt()      {}
func (r *Return) Span() Span { return r.span }

// Nested runs the nested content of the macro call: <#nested a, b>.
type Nested struct {
	Args []Expr
	span Span
}

func (n *Nested) node()      {}
func (n *Nested) stmt()      {}
func (n *Nested) Span() Span { return n.span }

// NamedArg is a name=value argument of a directive call.
type NamedArg struct {
	Name  string
	Value Expr
}

// UnifiedCall calls a user-defined directive: <@callee a=1; x>...</@callee>.
// Either Positional or Named is used, never both. Body is nil for empty
// tags.
type UnifiedCall struct {
	Callee     Expr
	Positional []Expr
	Named      []NamedArg
	LoopVars   []string
	Body       []Stmt
	span       Span

	sorted atomic.Pointer[[]NamedArg]
}

func (u *UnifiedCall) node()      {}
func (u *UnifiedCall) stmt()      {}
func (u *UnifiedCall) Span() Span { return u.span }

// SortedNamedArgs returns the named arguments ordered by name. The result
// is computed on first use and shared afterwards; it must not be modified.
func (u *UnifiedCall) SortedNamedArgs() []NamedArg {
	if p := u.sorted.Load(); p != nil {
		return *p
	}
	sorted := make([]NamedArg, len(u.Named))
	copy(sorted, u.Named)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	// A racing render may have stored an equal slice already; either wins.
	u.sorted.CompareAndSwap(nil, &sorted)
	return *u.sorted.Load()
}

// Include inserts another template: <#include "name" ignore_missing=true>.
type Include struct {
	Name          Expr
	IgnoreMissing Expr // nil when not given
	span          Span

	ignoreConst *bool
}

func (i *Include) node()      {}
func (i *Include) stmt()      {}
func (i *Include) Span() Span { return i.span }

// IgnoreMissingConst returns the ignore_missing flag when it was given as a
// literal (or not at all). ok is false when it must be evaluated at runtime.
func (i *Include) IgnoreMissingConst() (ignore bool, ok bool) {
	if i.IgnoreMissing == nil {
		return false, true
	}
	if i.ignoreConst != nil {
		return *i.ignoreConst, true
	}
	return false, false
}

// Import loads a library into a namespace: <#import "lib" as ns>.
type Import struct {
	Name  Expr
	Alias string
	span  Span
}

func (i *Import) node()      {}
func (i *Import) stmt()      {}
func (i *Import) Span() Span { return i.span }

// IfBranch is one <#if> or <#elseif> arm.
type IfBranch struct {
	Cond Expr
	Body []Stmt
}

// If is a conditional with optional elseif arms and an else body.
type If struct {
	Branches []IfBranch
	Else     []Stmt
	span     Span
}

func (i *If) node()      {}
func (i *If) stmt()      {}
func (i *If) Span() Span { return i.span }

// List iterates a sequence (<#list xs as x>) or a hash
// (<#list h as k, v>). Else runs when there is nothing to list.
type List struct {
	Seq    Expr
	KeyVar string // set when listing key/value pairs
	Var    string
	Body   []Stmt
	Else   []Stmt
	span   Span
}

func (l *List) node()      {}
func (l *List) stmt()      {}
func (l *List) Span() Span { return l.span }

// Break exits the innermost list.
type Break struct {
	span Span
}

func (b *Break) node()      {}
func (b *Break) stmt()      {}
func (b *Break) Span() Span { return b.span }

// Continue skips to the next list item.
type Continue struct {
	span Span
}

func (c *Continue) node()      {}
func (c *Continue) stmt()      {}
func (c *Continue) Span() Span { return c.span }

// Attempt runs Body and, if it fails, discards its output and runs Recover.
type Attempt struct {
	Body    []Stmt
	Recover []Stmt
	span    Span
}

func (a *Attempt) node()      {}
func (a *Attempt) stmt()      {}
func (a *Attempt) Span() Span { return a.span }

// Setting changes a render setting: <#setting locale="de_DE">.
type Setting struct {
	Name  string
	Value Expr
	span  Span
}

func (s *Setting) node()      {}
func (s *Setting) stmt()      {}
func (s *Setting) Span() Span { return s.span }

// -----------------------------------------------------------------------------
// Expressions
// -----------------------------------------------------------------------------

// Literal is a constant string, number or boolean.
type Literal struct {
	Value value.Value
	span  Span
}

func (l *Literal) node()      {}
func (l *Literal) expr()      {}
func (l *Literal) Span() Span { return l.span }

// StringInterp is a string literal with embedded ${...} parts. Parts
// alternate freely between *Literal strings and other expressions.
type StringInterp struct {
	Parts []Expr
	span  Span
}

func (s *StringInterp) node()      {}
func (s *StringInterp) expr()      {}
func (s *StringInterp) Span() Span { return s.span }

// SeqLit is a sequence literal: [a, b].
type SeqLit struct {
	Items []Expr
	span  Span
}

func (s *SeqLit) node()      {}
func (s *SeqLit) expr()      {}
func (s *SeqLit) Span() Span { return s.span }

// HashLit is a hash literal: {"k": v}.
type HashLit struct {
	Keys   []Expr
	Values []Expr
	span   Span
}

func (h *HashLit) node()      {}
func (h *HashLit) expr()      {}
func (h *HashLit) Span() Span { return h.span }

// Range is a numeric range: a..b, a..<b, a..
type Range struct {
	Start     Expr
	End       Expr // nil for a right-unbounded range
	Exclusive bool
	span      Span
}

func (r *Range) node()      {}
func (r *Range) expr()      {}
func (r *Range) Span() Span { return r.span }

// Identifier is a variable reference.
type Identifier struct {
	Name string
	span Span
}

func (i *Identifier) node()      {}
func (i *Identifier) expr()      {}
func (i *Identifier) Span() Span { return i.span }

// SpecialVar is a built-in variable: .now, .locals, .namespace, ...
type SpecialVar struct {
	Name string
	span Span
}

func (s *SpecialVar) node()      {}
func (s *SpecialVar) expr()      {}
func (s *SpecialVar) Span() Span { return s.span }

// Dot reads a sub-variable: target.name.
type Dot struct {
	Target Expr
	Name   string
	span   Span
}

func (d *Dot) node()      {}
func (d *Dot) expr()      {}
func (d *Dot) Span() Span { return d.span }

// Index reads an item: target[key].
type Index struct {
	Target Expr
	Key    Expr
	span   Span
}

func (i *Index) node()      {}
func (i *Index) expr()      {}
func (i *Index) Span() Span { return i.span }

// BuiltIn applies a built-in: target?name or target?name(args).
type BuiltIn struct {
	Target  Expr
	Name    string
	Args    []Expr
	HasArgs bool
	span    Span
}

func (b *BuiltIn) node()      {}
func (b *BuiltIn) expr()      {}
func (b *BuiltIn) Span() Span { return b.span }

// Call invokes a function or method: callee(args).
type Call struct {
	Callee Expr
	Args   []Expr
	span   Span
}

func (c *Call) node()      {}
func (c *Call) expr()      {}
func (c *Call) Span() Span { return c.span }

// BinOpKind is the operator of a binary expression.
type BinOpKind int

const (
	BinAdd BinOpKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
)

// String returns the canonical operator. Greater-than comparisons use their
// keyword forms so they stay valid inside tags.
func (k BinOpKind) String() string {
	switch k {
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMul:
		return "*"
	case BinDiv:
		return "/"
	case BinMod:
		return "%"
	case BinEq:
		return "=="
	case BinNe:
		return "!="
	case BinLt:
		return "<"
	case BinLe:
		return "<="
	case BinGt:
		return "gt"
	case BinGe:
		return "gte"
	case BinAnd:
		return "&&"
	case BinOr:
		return "||"
	}
	return "?"
}

// Arithmetic returns the arithmetic operator for +, -, *, / and %.
func (k BinOpKind) Arithmetic() (value.Operator, bool) {
	switch k {
	case BinAdd:
		return value.OpAdd, true
	case BinSub:
		return value.OpSubtract, true
	case BinMul:
		return value.OpMultiply, true
	case BinDiv:
		return value.OpDivide, true
	case BinMod:
		return value.OpModulus, true
	}
	return 0, false
}

// BinOp is a binary expression.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
	span  Span
}

func (b *BinOp) node()      {}
func (b *BinOp) expr()      {}
func (b *BinOp) Span() Span { return b.span }

// UnaryOpKind is the operator of a unary expression.
type UnaryOpKind int

const (
	UnaryNeg UnaryOpKind = iota
	UnaryPos
	UnaryNot
)

func (k UnaryOpKind) String() string {
	switch k {
	case UnaryNeg:
		return "-"
	case UnaryPos:
		return "+"
	case UnaryNot:
		return "!"
	}
	return "?"
}

// UnaryOp is a unary expression.
type UnaryOp struct {
	Op   UnaryOpKind
	Expr Expr
	span Span
}

func (u *UnaryOp) node()      {}
func (u *UnaryOp) expr()      {}
func (u *UnaryOp) Span() Span { return u.span }

// Default substitutes a fallback for missing values: target!fallback. A nil
// Fallback means the empty string (or empty sequence/hash, depending on use).
type Default struct {
	Target   Expr
	Fallback Expr
	span     Span
}

func (d *Default) node()      {}
func (d *Default) expr()      {}
func (d *Default) Span() Span { return d.span }

// Exists tests whether a value is present: target??.
type Exists struct {
	Target Expr
	span   Span
}

func (e *Exists) node()      {}
func (e *Exists) expr()      {}
func (e *Exists) Span() Span { return e.span }

// Paren is a parenthesized expression. It is kept in the tree so canonical
// forms reproduce the grouping, and because (x.y)!d guards the whole chain.
type Paren struct {
	Inner Expr
	span  Span
}

func (p *Paren) node()      {}
func (p *Paren) expr()      {}
func (p *Paren) Span() Span { return p.span }
