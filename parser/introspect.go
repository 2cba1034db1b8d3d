package parser

import (
	"fmt"
	"strings"
)

// ParamRole names what a node parameter means to its node.
type ParamRole string

const (
	RoleAssignmentTarget ParamRole = "assignment target"
	RoleAssignmentOp     ParamRole = "assignment operator"
	RoleAssignmentSource ParamRole = "assignment source"
	RoleVariableScope    ParamRole = "variable scope"
	RoleNamespace        ParamRole = "namespace"
	RoleContent          ParamRole = "content"
	RoleRaw              ParamRole = "raw text"
	RoleValue            ParamRole = "value"
	RoleCallee           ParamRole = "callee"
	RoleArgument         ParamRole = "argument value"
	RoleArgumentName     ParamRole = "argument name"
	RoleLoopVariable     ParamRole = "target loop variable"
	RoleParamName        ParamRole = "parameter name"
	RoleParamDefault     ParamRole = "parameter default"
	RoleCatchAll         ParamRole = "catch-all parameter name"
	RoleNodeSubtype      ParamRole = "AST-node subtype"
	RoleTemplateName     ParamRole = "template name"
	RoleIgnoreMissing    ParamRole = "ignore missing"
	RoleAlias            ParamRole = "namespace alias"
	RoleCondition        ParamRole = "condition"
	RoleElse             ParamRole = "else content"
	RoleListSource       ParamRole = "list source"
	RoleRecover          ParamRole = "recover content"
	RoleSettingName      ParamRole = "setting name"
	RoleLeftOperand      ParamRole = "left-hand operand"
	RoleRightOperand     ParamRole = "right-hand operand"
	RoleOperator         ParamRole = "operator"
	RoleName             ParamRole = "name"
	RoleTarget           ParamRole = "target"
	RoleFallback         ParamRole = "default value"
	RoleItem             ParamRole = "item"
	RoleKey              ParamRole = "key"
)

// NodeParam is one parameter of a node. Value holds an Expr, a []Stmt, a
// string, a bool or one of the enum types of this package.
type NodeParam struct {
	Role  ParamRole
	Value any
}

// NodeType returns the name of the node type, such as "Assignment".
func NodeType(n Node) string {
	name := fmt.Sprintf("%T", n)
	return name[strings.LastIndexByte(name, '.')+1:]
}

// Parameters lists the parameters of a node in source order.
func Parameters(n Node) []NodeParam {
	switch n := n.(type) {
	case *Template:
		return []NodeParam{{RoleContent, n.Children}}
	case *Text:
		return []NodeParam{{RoleRaw, n.Raw}}
	case *Interpolation:
		return []NodeParam{{RoleContent, n.Expr}}
	case *Assignment:
		params := []NodeParam{
			{RoleAssignmentTarget, n.Name},
			{RoleAssignmentOp, n.Op},
		}
		if n.Value != nil {
			params = append(params, NodeParam{RoleAssignmentSource, n.Value})
		}
		params = append(params, NodeParam{RoleVariableScope, n.Scope})
		if n.Namespace != nil {
			params = append(params, NodeParam{RoleNamespace, n.Namespace})
		}
		return params
	case *AssignmentList:
		params := []NodeParam{{RoleVariableScope, n.Scope}}
		for _, item := range n.Items {
			params = append(params, NodeParam{RoleContent, item})
		}
		if n.Namespace != nil {
			params = append(params, NodeParam{RoleNamespace, n.Namespace})
		}
		return params
	case *BlockAssignment:
		params := []NodeParam{
			{RoleAssignmentTarget, n.Name},
			{RoleVariableScope, n.Scope},
		}
		if n.Namespace != nil {
			params = append(params, NodeParam{RoleNamespace, n.Namespace})
		}
		return append(params, NodeParam{RoleContent, n.Body})
	case *Macro:
		params := []NodeParam{{RoleAssignmentTarget, n.Name}}
		for _, p := range n.Params {
			params = append(params, NodeParam{RoleParamName, p.Name})
			if p.Default != nil {
				params = append(params, NodeParam{RoleParamDefault, p.Default})
			}
		}
		if n.CatchAll != "" {
			params = append(params, NodeParam{RoleCatchAll, n.CatchAll})
		}
		return append(params,
			NodeParam{RoleNodeSubtype, n.Kind},
			NodeParam{RoleContent, n.Body},
		)
	case *Return:
		if n.Value == nil {
			return nil
		}
		return []NodeParam{{RoleValue, n.Value}}
	case *Nested:
		params := make([]NodeParam, 0, len(n.Args))
		for _, arg := range n.Args {
			params = append(params, NodeParam{RoleArgument, arg})
		}
		return params
	case *UnifiedCall:
		params := []NodeParam{{RoleCallee, n.Callee}}
		for _, arg := range n.Positional {
			params = append(params, NodeParam{RoleArgument, arg})
		}
		for _, arg := range n.SortedNamedArgs() {
			params = append(params,
				NodeParam{RoleArgumentName, arg.Name},
				NodeParam{RoleArgument, arg.Value},
			)
		}
		for _, lv := range n.LoopVars {
			params = append(params, NodeParam{RoleLoopVariable, lv})
		}
		if n.Body != nil {
			params = append(params, NodeParam{RoleContent, n.Body})
		}
		return params
	case *Include:
		params := []NodeParam{{RoleTemplateName, n.Name}}
		if n.IgnoreMissing != nil {
			params = append(params, NodeParam{RoleIgnoreMissing, n.IgnoreMissing})
		}
		return params
	case *Import:
		return []NodeParam{{RoleTemplateName, n.Name}, {RoleAlias, n.Alias}}
	case *If:
		var params []NodeParam
		for _, b := range n.Branches {
			params = append(params,
				NodeParam{RoleCondition, b.Cond},
				NodeParam{RoleContent, b.Body},
			)
		}
		if n.Else != nil {
			params = append(params, NodeParam{RoleElse, n.Else})
		}
		return params
	case *List:
		params := []NodeParam{{RoleListSource, n.Seq}}
		if n.KeyVar != "" {
			params = append(params, NodeParam{RoleLoopVariable, n.KeyVar})
		}
		params = append(params,
			NodeParam{RoleLoopVariable, n.Var},
			NodeParam{RoleContent, n.Body},
		)
		if n.Else != nil {
			params = append(params, NodeParam{RoleElse, n.Else})
		}
		return params
	case *Attempt:
		return []NodeParam{{RoleContent, n.Body}, {RoleRecover, n.Recover}}
	case *Setting:
		return []NodeParam{{RoleSettingName, n.Name}, {RoleValue, n.Value}}

	case *Literal:
		return []NodeParam{{RoleValue, n.Value.Repr()}}
	case *StringInterp:
		params := make([]NodeParam, 0, len(n.Parts))
		for _, part := range n.Parts {
			params = append(params, NodeParam{RoleContent, part})
		}
		return params
	case *SeqLit:
		params := make([]NodeParam, 0, len(n.Items))
		for _, item := range n.Items {
			params = append(params, NodeParam{RoleItem, item})
		}
		return params
	case *HashLit:
		params := make([]NodeParam, 0, 2*len(n.Keys))
		for i := range n.Keys {
			params = append(params,
				NodeParam{RoleKey, n.Keys[i]},
				NodeParam{RoleValue, n.Values[i]},
			)
		}
		return params
	case *Range:
		params := []NodeParam{{RoleLeftOperand, n.Start}}
		if n.End != nil {
			params = append(params, NodeParam{RoleRightOperand, n.End})
		}
		return params
	case *Identifier:
		return []NodeParam{{RoleName, n.Name}}
	case *SpecialVar:
		return []NodeParam{{RoleName, n.Name}}
	case *Dot:
		return []NodeParam{{RoleTarget, n.Target}, {RoleName, n.Name}}
	case *Index:
		return []NodeParam{{RoleTarget, n.Target}, {RoleKey, n.Key}}
	case *BuiltIn:
		params := []NodeParam{{RoleTarget, n.Target}, {RoleName, n.Name}}
		for _, arg := range n.Args {
			params = append(params, NodeParam{RoleArgument, arg})
		}
		return params
	case *Call:
		params := []NodeParam{{RoleCallee, n.Callee}}
		for _, arg := range n.Args {
			params = append(params, NodeParam{RoleArgument, arg})
		}
		return params
	case *BinOp:
		return []NodeParam{
			{RoleLeftOperand, n.Left},
			{RoleOperator, n.Op.String()},
			{RoleRightOperand, n.Right},
		}
	case *UnaryOp:
		return []NodeParam{{RoleOperator, n.Op.String()}, {RoleRightOperand, n.Expr}}
	case *Default:
		params := []NodeParam{{RoleTarget, n.Target}}
		if n.Fallback != nil {
			params = append(params, NodeParam{RoleFallback, n.Fallback})
		}
		return params
	case *Exists:
		return []NodeParam{{RoleTarget, n.Target}}
	case *Paren:
		return []NodeParam{{RoleContent, n.Inner}}
	}
	return nil
}

// FormatSpan formats a span for debug output.
func FormatSpan(s Span) string {
	return fmt.Sprintf(" @ %d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// DebugString returns a readable dump of a node and its children, one
// parameter per line.
func DebugString(n Node, indent int) string {
	var sb strings.Builder
	writeDebug(&sb, n, indent)
	return sb.String()
}

func writeDebug(sb *strings.Builder, n Node, indent int) {
	ind := strings.Repeat("    ", indent)
	ind1 := strings.Repeat("    ", indent+1)

	params := Parameters(n)
	sb.WriteString(NodeType(n))
	if len(params) == 0 {
		sb.WriteString(FormatSpan(n.Span()))
		return
	}
	sb.WriteString(" {\n")
	for _, p := range params {
		sb.WriteString(ind1)
		sb.WriteString(string(p.Role))
		sb.WriteString(": ")
		switch v := p.Value.(type) {
		case Node:
			writeDebug(sb, v, indent+1)
		case []Stmt:
			sb.WriteString("[")
			if len(v) > 0 {
				sb.WriteString("\n")
				for _, s := range v {
					sb.WriteString(ind1 + "    ")
					writeDebug(sb, s, indent+2)
					sb.WriteString(",\n")
				}
				sb.WriteString(ind1)
			}
			sb.WriteString("]")
		case string:
			fmt.Fprintf(sb, "%q", v)
		default:
			fmt.Fprintf(sb, "%v", v)
		}
		sb.WriteString(",\n")
	}
	sb.WriteString(ind)
	sb.WriteString("}")
	sb.WriteString(FormatSpan(n.Span()))
}
