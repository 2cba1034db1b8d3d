package parser

import (
	"strings"
	"testing"

	"github.com/ftlgo/ftl/lexer"
)

func mustParse(t *testing.T, source string) *Template {
	t.Helper()
	tmpl, err := Parse(source, "test.ftl", lexer.Config{})
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", source, err)
	}
	return tmpl
}

func TestCanonicalForm(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`<#assign x = 1>`, `<#assign x = 1>`},
		{`<#assign x=1>`, `<#assign x = 1>`},
		{`<#local x=1 y=2>`, `<#local x = 1 y = 2>`},
		{`<#assign x++>`, `<#assign x++>`},
		{`<#global n+=2>`, `<#global n += 2>`},
		{`<#assign "my-var" = 1 in ns>`, `<#assign "my-var" = 1 in ns>`},
		{`<#assign x in ns>body</#assign>`, `<#assign x in ns>body</#assign>`},
		{`<#local x></#local>`, `<#local x></#local>`},
		{`<#macro m a b=2 rest...>${a}<#nested 1, 2></#macro>`, `<#macro m a b=2 rest...>${a}<#nested 1, 2></#macro>`},
		{`<#function f x><#return x*2></#function>`, `<#function f x><#return x * 2></#function>`},
		{`<@m z=1 a=2; x, y>t</@m>`, `<@m a=2 z=1; x, y>t</@m>`},
		{`<@m 1, 2/>`, `<@m 1, 2/>`},
		{`<@lib.m/>`, `<@lib.m/>`},
		{`<@m [1, 2]/>`, `<@m [1, 2]/>`},
		{`<@lib.m [1], .now/>`, `<@lib.m [1], .now/>`},
		{`<@.pass/>`, `<@.pass/>`},
		{`<#if x gt 1>a<#elseif x==1>b<#else>c</#if>`, `<#if x gt 1>a<#elseif x == 1>b<#else>c</#if>`},
		{`<#list xs as x>${x}<#else>none</#list>`, `<#list xs as x>${x}<#else>none</#list>`},
		{`<#list h as k, v>${k}</#list>`, `<#list h as k, v>${k}</#list>`},
		{`${user.name!"anon"}`, `${user.name!"anon"}`},
		{`${(a.b)!}`, `${(a.b)!}`},
		{`${"Hi ${name}!"}`, `${"Hi ${name}!"}`},
		{`${"a\${b}"}`, `${"a\${b}"}`},
		{`<#include "/lib.ftl" ignore_missing=true>`, `<#include "/lib.ftl" ignore_missing=true>`},
		{`<#import "lib.ftl" as lib>`, `<#import "lib.ftl" as lib>`},
		{`${x?string("a", "b")}`, `${x?string("a", "b")}`},
		{`${[1, 2, 3]?size}`, `${[1, 2, 3]?size}`},
		{`${{"a": 1, "b": 2}.a}`, `${{"a": 1, "b": 2}.a}`},
		{`<#attempt>a<#recover>b</#attempt>`, `<#attempt>a<#recover>b</#attempt>`},
		{`<#setting locale="de_DE">`, `<#setting locale="de_DE">`},
		{`${-x + 2}`, `${-x + 2}`},
		{`${1..<3}`, `${1..<3}`},
		{`${a??}`, `${a??}`},
		{`${.now}`, `${.now}`},
		{`${(a > b)}`, `${(a gt b)}`},
		{`${x[0]}`, `${x[0]}`},
		{`${f(1, "a")}`, `${f(1, "a")}`},
		{`${a && !b || c}`, `${a && !b || c}`},
		{`${1.50}`, `${1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			first := CanonicalForm(mustParse(t, tt.input))
			if first != tt.want {
				t.Fatalf("CanonicalForm(%q)\n got: %s\nwant: %s", tt.input, first, tt.want)
			}
			second := CanonicalForm(mustParse(t, first))
			if second != first {
				t.Errorf("canonical form is not stable\nfirst:  %s\nsecond: %s", first, second)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`<#macro m><#macro n></#macro></#macro>`, "cannot be defined inside another macro"},
		{`<@m a=1 2/>`, "cannot mix named and positional arguments"},
		{`<@m 1 a=2/>`, "cannot mix positional and named arguments"},
		{`<#if x>`, "unclosed <#if>"},
		{`<#break>`, "must be inside <#list>"},
		{`<#return>`, "must be inside a macro or function"},
		{`<#nested>`, "must be inside a macro"},
		{`<#macro m a=1 b></#macro>`, "cannot follow parameters with default values"},
		{`<#macro m a a></#macro>`, `duplicate parameter "a"`},
		{`<#macro m a... b></#macro>`, "catch-all parameter must be the last"},
		{`<#macro m><#return 1></#macro>`, "cannot have a value"},
		{`<#local x in ns></#local>`, `cannot use "in" with <#local>`},
		{`<@m></@n>`, "does not match"},
		{`</#if>`, "without matching start tag"},
		{`<#else>`, "not allowed here"},
		{`<#include "x" parse=false>`, "unsupported <#include> option"},
		{`<#include "x" ignore_missing="yes">`, "ignore_missing must be a boolean"},
		{`${"${a"}`, "unclosed interpolation in string literal"},
		{`<#assign x>`, "unclosed <#assign>"},
		{`<#assign x ~ 1>`, "unexpected character"},
		{`<#if>`, "expected expression"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input, "test.ftl", lexer.Config{})
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error containing %q", tt.input, tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse(%q) error = %q, want it to contain %q", tt.input, err, tt.want)
			}
		})
	}
}

func TestUnknownDirectiveSuggestion(t *testing.T) {
	_, err := Parse(`<#asign x = 1>`, "test.ftl", lexer.Config{})
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error = %v (%T), want *Error", err, err)
	}
	if perr.Tip != "did you mean <#assign>?" {
		t.Errorf("Tip = %q", perr.Tip)
	}
	if perr.Span.StartLine != 1 {
		t.Errorf("Span = %+v", perr.Span)
	}
}

func TestMacrosAreCollected(t *testing.T) {
	tmpl := mustParse(t, `<#if x><#macro a></#macro></#if><#function b></#function>`)
	if len(tmpl.Macros) != 2 {
		t.Fatalf("len(Macros) = %d, want 2", len(tmpl.Macros))
	}
	if tmpl.Macros[0].Name != "a" || tmpl.Macros[0].IsFunction() {
		t.Errorf("Macros[0] = %s", tmpl.Macros[0].Name)
	}
	if tmpl.Macros[1].Name != "b" || !tmpl.Macros[1].IsFunction() {
		t.Errorf("Macros[1] = %s", tmpl.Macros[1].Name)
	}
}

func TestMacroParamNames(t *testing.T) {
	tmpl := mustParse(t, `<#macro m a b=1 rest...></#macro>`)
	m := tmpl.Macros[0]
	got := strings.Join(m.ParamNames(), ",")
	if got != "a,b,rest" {
		t.Errorf("ParamNames = %s", got)
	}
	if !m.HasParam("b") || m.HasParam("rest") {
		t.Error("HasParam must only report declared parameters")
	}
}

func TestSortedNamedArgsIsCached(t *testing.T) {
	tmpl := mustParse(t, `<@m c=1 a=2 b=3/>`)
	call := tmpl.Children[0].(*UnifiedCall)
	first := call.SortedNamedArgs()
	second := call.SortedNamedArgs()
	if &first[0] != &second[0] {
		t.Error("sorted arguments were recomputed")
	}
	if first[0].Name != "a" || first[2].Name != "c" {
		t.Errorf("unexpected order: %v", first)
	}
	if call.Named[0].Name != "c" {
		t.Error("source order must be preserved in Named")
	}
}

func TestIncludeIgnoreMissingConst(t *testing.T) {
	tests := []struct {
		input   string
		ignore  bool
		isConst bool
	}{
		{`<#include "a">`, false, true},
		{`<#include "a" ignore_missing=true>`, true, true},
		{`<#include "a" ignore_missing=flag>`, false, false},
	}
	for _, tt := range tests {
		inc := mustParse(t, tt.input).Children[0].(*Include)
		ignore, ok := inc.IgnoreMissingConst()
		if ignore != tt.ignore || ok != tt.isConst {
			t.Errorf("%s: IgnoreMissingConst() = %v, %v", tt.input, ignore, ok)
		}
	}
}

func TestParameters(t *testing.T) {
	tmpl := mustParse(t, `<#assign x += 1 in ns>`)
	params := Parameters(tmpl.Children[0])
	roles := make([]string, len(params))
	for i, p := range params {
		roles[i] = string(p.Role)
	}
	want := "assignment target,assignment operator,assignment source,variable scope,namespace"
	if got := strings.Join(roles, ","); got != want {
		t.Errorf("roles = %s\nwant   %s", got, want)
	}
	if params[1].Value != AssignAdd || params[3].Value != ScopeNamespace {
		t.Errorf("values = %v", params)
	}
}

func TestDefaultStopsBeforeNamedArgument(t *testing.T) {
	tmpl := mustParse(t, `<@m a=x! b=2/>`)
	call := tmpl.Children[0].(*UnifiedCall)
	if len(call.Named) != 2 {
		t.Fatalf("len(Named) = %d, want 2", len(call.Named))
	}
	def, ok := call.Named[0].Value.(*Default)
	if !ok || def.Fallback != nil {
		t.Errorf("a = %s", CanonicalForm(call.Named[0].Value))
	}
}

func TestDefaultFallbacks(t *testing.T) {
	tests := []struct {
		source string
		check  func(Expr) bool
	}{
		{`${x!-1}`, func(e Expr) bool { u, ok := e.(*UnaryOp); return ok && u.Op == UnaryNeg }},
		{`${x!y.z}`, func(e Expr) bool { _, ok := e.(*Dot); return ok }},
		{`${x!"a"}`, func(e Expr) bool { _, ok := e.(*Literal); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tmpl := mustParse(t, tt.source)
			def, ok := tmpl.Children[0].(*Interpolation).Expr.(*Default)
			if !ok {
				t.Fatalf("expected a default, got %s", CanonicalForm(tmpl))
			}
			if def.Fallback == nil || !tt.check(def.Fallback) {
				t.Errorf("unexpected fallback in %s", CanonicalForm(tmpl))
			}
		})
	}
}

func TestCalleeEndsAtWhitespace(t *testing.T) {
	call := mustParse(t, `<@rows [1, 2]/>`).Children[0].(*UnifiedCall)
	if id, ok := call.Callee.(*Identifier); !ok || id.Name != "rows" {
		t.Errorf("callee = %s", CanonicalForm(call.Callee))
	}
	if len(call.Positional) != 1 {
		t.Fatalf("len(Positional) = %d, want 1", len(call.Positional))
	}
	if _, ok := call.Positional[0].(*SeqLit); !ok {
		t.Errorf("argument = %s", CanonicalForm(call.Positional[0]))
	}

	call = mustParse(t, `<@table[0] x=1/>`).Children[0].(*UnifiedCall)
	if _, ok := call.Callee.(*Index); !ok {
		t.Errorf("callee = %s", CanonicalForm(call.Callee))
	}
}

func TestDebugString(t *testing.T) {
	tmpl := mustParse(t, `<#assign x = 1>`)
	got := DebugString(tmpl, 0)
	for _, want := range []string{"Template {", "Assignment {", `assignment target: "x"`, "Literal {"} {
		if !strings.Contains(got, want) {
			t.Errorf("DebugString missing %q:\n%s", want, got)
		}
	}
}

func TestParseExpression(t *testing.T) {
	expr, err := ParseExpression(`user.name!"x"`)
	if err != nil {
		t.Fatal(err)
	}
	if got := CanonicalForm(expr); got != `user.name!"x"` {
		t.Errorf("got %s", got)
	}
	if _, err := ParseExpression(`a b`); err == nil {
		t.Error("trailing tokens must fail")
	}
}
