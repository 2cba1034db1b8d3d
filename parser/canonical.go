package parser

import (
	"strings"

	"github.com/ftlgo/ftl/value"
)

// CanonicalForm renders a node back to template source. Parsing the result
// yields an equivalent tree, and rendering that tree gives the same text.
func CanonicalForm(n Node) string {
	var sb strings.Builder
	writeCanonical(&sb, n)
	return sb.String()
}

func writeBody(sb *strings.Builder, body []Stmt) {
	for _, s := range body {
		writeCanonical(sb, s)
	}
}

func writeCanonical(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Template:
		writeBody(sb, n.Children)

	case *Text:
		sb.WriteString(n.Raw)

	case *Interpolation:
		sb.WriteString("${")
		writeCanonical(sb, n.Expr)
		sb.WriteString("}")

	case *Assignment:
		if n.InList {
			writeAssignmentItem(sb, n)
			return
		}
		sb.WriteString("<#")
		sb.WriteString(n.Scope.Keyword())
		sb.WriteByte(' ')
		writeAssignmentItem(sb, n)
		writeNamespaceClause(sb, n.Namespace)
		sb.WriteString(">")

	case *AssignmentList:
		sb.WriteString("<#")
		sb.WriteString(n.Scope.Keyword())
		for _, item := range n.Items {
			sb.WriteByte(' ')
			writeCanonical(sb, item)
		}
		writeNamespaceClause(sb, n.Namespace)
		sb.WriteString(">")

	case *BlockAssignment:
		kw := n.Scope.Keyword()
		sb.WriteString("<#" + kw + " ")
		writeName(sb, n.Name)
		writeNamespaceClause(sb, n.Namespace)
		if n.Body == nil {
			sb.WriteString("/>")
			return
		}
		sb.WriteString(">")
		writeBody(sb, n.Body)
		sb.WriteString("</#" + kw + ">")

	case *Macro:
		kw := "macro"
		if n.Kind == MacroKindFunction {
			kw = "function"
		}
		sb.WriteString("<#" + kw + " ")
		writeName(sb, n.Name)
		for _, p := range n.Params {
			sb.WriteByte(' ')
			sb.WriteString(p.Name)
			if p.Default != nil {
				sb.WriteByte('=')
				writeCanonical(sb, p.Default)
			}
		}
		if n.CatchAll != "" {
			sb.WriteString(" " + n.CatchAll + "...")
		}
		sb.WriteString(">")
		writeBody(sb, n.Body)
		sb.WriteString("</#" + kw + ">")

	case *Return:
		sb.WriteString("<#return")
		if n.Value != nil {
			sb.WriteByte(' ')
			writeCanonical(sb, n.Value)
		}
		sb.WriteString(">")

	case *Nested:
		sb.WriteString("<#nested")
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte(' ')
			writeCanonical(sb, arg)
		}
		sb.WriteString(">")

	case *UnifiedCall:
		sb.WriteString("<@")
		writeCanonical(sb, n.Callee)
		for i, arg := range n.Positional {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte(' ')
			writeCanonical(sb, arg)
		}
		for _, arg := range n.SortedNamedArgs() {
			sb.WriteString(" " + arg.Name + "=")
			writeCanonical(sb, arg.Value)
		}
		if len(n.LoopVars) > 0 {
			sb.WriteString("; ")
			sb.WriteString(strings.Join(n.LoopVars, ", "))
		}
		if n.Body == nil {
			sb.WriteString("/>")
			return
		}
		sb.WriteString(">")
		writeBody(sb, n.Body)
		sb.WriteString("</@" + CalleeName(n.Callee) + ">")

	case *Include:
		sb.WriteString("<#include ")
		writeCanonical(sb, n.Name)
		if n.IgnoreMissing != nil {
			sb.WriteString(" ignore_missing=")
			writeCanonical(sb, n.IgnoreMissing)
		}
		sb.WriteString(">")

	case *Import:
		sb.WriteString("<#import ")
		writeCanonical(sb, n.Name)
		sb.WriteString(" as " + n.Alias + ">")

	case *If:
		for i, b := range n.Branches {
			if i == 0 {
				sb.WriteString("<#if ")
			} else {
				sb.WriteString("<#elseif ")
			}
			writeCanonical(sb, b.Cond)
			sb.WriteString(">")
			writeBody(sb, b.Body)
		}
		if n.Else != nil {
			sb.WriteString("<#else>")
			writeBody(sb, n.Else)
		}
		sb.WriteString("</#if>")

	case *List:
		sb.WriteString("<#list ")
		writeCanonical(sb, n.Seq)
		sb.WriteString(" as ")
		if n.KeyVar != "" {
			sb.WriteString(n.KeyVar + ", ")
		}
		sb.WriteString(n.Var + ">")
		writeBody(sb, n.Body)
		if n.Else != nil {
			sb.WriteString("<#else>")
			writeBody(sb, n.Else)
		}
		sb.WriteString("</#list>")

	case *Break:
		sb.WriteString("<#break>")

	case *Continue:
		sb.WriteString("<#continue>")

	case *Attempt:
		sb.WriteString("<#attempt>")
		writeBody(sb, n.Body)
		sb.WriteString("<#recover>")
		writeBody(sb, n.Recover)
		sb.WriteString("</#attempt>")

	case *Setting:
		sb.WriteString("<#setting " + n.Name + "=")
		writeCanonical(sb, n.Value)
		sb.WriteString(">")

	// Expressions

	case *Literal:
		writeLiteral(sb, n.Value)

	case *StringInterp:
		sb.WriteByte('"')
		for _, part := range n.Parts {
			if lit, ok := part.(*Literal); ok {
				if s, ok := lit.Value.AsString(); ok {
					sb.WriteString(escapeString(s))
					continue
				}
			}
			sb.WriteString("${")
			writeCanonical(sb, part)
			sb.WriteString("}")
		}
		sb.WriteByte('"')

	case *SeqLit:
		sb.WriteByte('[')
		writeList(sb, n.Items)
		sb.WriteByte(']')

	case *HashLit:
		sb.WriteByte('{')
		for i := range n.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeCanonical(sb, n.Keys[i])
			sb.WriteString(": ")
			writeCanonical(sb, n.Values[i])
		}
		sb.WriteByte('}')

	case *Range:
		writeCanonical(sb, n.Start)
		if n.Exclusive {
			sb.WriteString("..<")
		} else {
			sb.WriteString("..")
		}
		if n.End != nil {
			writeCanonical(sb, n.End)
		}

	case *Identifier:
		sb.WriteString(n.Name)

	case *SpecialVar:
		sb.WriteString("." + n.Name)

	case *Dot:
		writeCanonical(sb, n.Target)
		sb.WriteString("." + n.Name)

	case *Index:
		writeCanonical(sb, n.Target)
		sb.WriteByte('[')
		writeCanonical(sb, n.Key)
		sb.WriteByte(']')

	case *BuiltIn:
		writeCanonical(sb, n.Target)
		sb.WriteString("?" + n.Name)
		if n.HasArgs {
			sb.WriteByte('(')
			writeList(sb, n.Args)
			sb.WriteByte(')')
		}

	case *Call:
		writeCanonical(sb, n.Callee)
		sb.WriteByte('(')
		writeList(sb, n.Args)
		sb.WriteByte(')')

	case *BinOp:
		writeCanonical(sb, n.Left)
		sb.WriteString(" " + n.Op.String() + " ")
		writeCanonical(sb, n.Right)

	case *UnaryOp:
		sb.WriteString(n.Op.String())
		writeCanonical(sb, n.Expr)

	case *Default:
		writeCanonical(sb, n.Target)
		sb.WriteByte('!')
		if n.Fallback != nil {
			writeCanonical(sb, n.Fallback)
		}

	case *Exists:
		writeCanonical(sb, n.Target)
		sb.WriteString("??")

	case *Paren:
		sb.WriteByte('(')
		writeCanonical(sb, n.Inner)
		sb.WriteByte(')')
	}
}

func writeAssignmentItem(sb *strings.Builder, n *Assignment) {
	writeName(sb, n.Name)
	switch n.Op {
	case AssignIncr, AssignDecr:
		sb.WriteString(n.Op.String())
	default:
		sb.WriteString(" " + n.Op.String() + " ")
		writeCanonical(sb, n.Value)
	}
}

func writeNamespaceClause(sb *strings.Builder, ns Expr) {
	if ns != nil {
		sb.WriteString(" in ")
		writeCanonical(sb, ns)
	}
}

// writeName writes a variable name, quoting it when it is not a valid
// identifier.
func writeName(sb *strings.Builder, name string) {
	if isValidIdent(name) {
		sb.WriteString(name)
		return
	}
	sb.WriteString(`"` + escapeString(name) + `"`)
}

func writeList(sb *strings.Builder, items []Expr) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeCanonical(sb, item)
	}
}

func writeLiteral(sb *strings.Builder, v value.Value) {
	if s, ok := v.AsString(); ok {
		sb.WriteString(`"` + escapeString(s) + `"`)
		return
	}
	if b, ok := v.AsBool(); ok {
		if b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return
	}
	sb.WriteString(v.String())
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"${", `\${`,
)

// escapeString escapes s for use inside a double quoted string literal.
func escapeString(s string) string {
	return stringEscaper.Replace(s)
}
