package ftl

import (
	"errors"
	"strings"
	"testing"
)

// render parses source as "test.ftl" in a fresh configuration and renders
// it with data.
func render(t *testing.T, source string, data any) string {
	t.Helper()
	return renderWith(t, NewConfiguration(), source, data)
}

func renderWith(t *testing.T, cfg *Configuration, source string, data any) string {
	t.Helper()
	tmpl, err := cfg.TemplateFromString("test.ftl", source)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	result, err := tmpl.Render(data)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return result
}

// renderErr renders source and returns the *Error it fails with.
func renderErr(t *testing.T, source string, data any) *Error {
	t.Helper()
	return renderErrWith(t, NewConfiguration(), source, data)
}

func renderErrWith(t *testing.T, cfg *Configuration, source string, data any) *Error {
	t.Helper()
	tmpl, err := cfg.TemplateFromString("test.ftl", source)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := tmpl.Render(data)
	if err == nil {
		t.Fatalf("expected render error, got output %q", out)
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return terr
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if got := render(t, "${.version}", nil); got != Version {
		t.Errorf("expected %q, got %q", Version, got)
	}
}

func TestBasicRender(t *testing.T) {
	result := render(t, "Hello ${name}!", map[string]any{"name": "World"})
	if result != "Hello World!" {
		t.Errorf("expected 'Hello World!', got %q", result)
	}
}

func TestVariableTypes(t *testing.T) {
	result := render(t, "${str} ${num} ${float} ${bool}", map[string]any{
		"str":   "hello",
		"num":   42,
		"float": 3.14,
		"bool":  true,
	})
	if result != "hello 42 3.14 true" {
		t.Errorf("expected 'hello 42 3.14 true', got %q", result)
	}
}

func TestListLoop(t *testing.T) {
	result := render(t, `<#list items as item>${item?counter}:${item}<#if item?has_next>, </#if></#list>`,
		map[string]any{"items": []string{"a", "b", "c"}})
	if result != "1:a, 2:b, 3:c" {
		t.Errorf("expected '1:a, 2:b, 3:c', got %q", result)
	}
}

func TestListElseAndBreak(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`<#list [] as x>${x}<#else>empty</#list>`, "empty"},
		{`<#list 1..5 as x><#if x == 3><#break></#if>${x}</#list>`, "12"},
		{`<#list 1..5 as x><#if x % 2 == 0><#continue></#if>${x}</#list>`, "135"},
		{`<#list 3..1 as x>${x}</#list>`, "321"},
		{`<#list 1..<4 as x>${x}</#list>`, "123"},
		{`<#list 0.. as x><#if x gt 2><#break></#if>${x}</#list>`, "012"},
		{`<#list {"a": 1, "b": 2} as k, v>${k}=${v};</#list>`, "a=1;b=2;"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestListHashNeedsTwoVariables(t *testing.T) {
	err := renderErr(t, `<#list h as x>${x}</#list>`, map[string]any{"h": map[string]any{"a": 1}})
	if err.Kind != ErrTypeMismatch {
		t.Fatalf("expected type mismatch, got %v", err.Kind)
	}
	if !strings.Contains(err.Tip, "as k, v") {
		t.Errorf("expected tip about two loop variables, got %q", err.Tip)
	}
}

func TestIfConditions(t *testing.T) {
	tmpl := `<#if x gt 10>big<#elseif x == 10>ten<#else>small</#if>`
	for x, want := range map[int]string{11: "big", 10: "ten", 3: "small"} {
		if got := render(t, tmpl, map[string]any{"x": x}); got != want {
			t.Errorf("x=%d: expected %q, got %q", x, want, got)
		}
	}
}

func TestNonBooleanCondition(t *testing.T) {
	err := renderErr(t, `<#if flag>yes</#if>`, map[string]any{"flag": "true"})
	if err.Kind != ErrNonBoolean {
		t.Fatalf("expected non-boolean error, got %v", err.Kind)
	}
	if !strings.Contains(err.Tip, "without quotes") {
		t.Errorf("expected quoting tip, got %q", err.Tip)
	}
}

func TestDefaultOperators(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`${missing!"fallback"}`, "fallback"},
		{`${missing!}`, ""},
		{`${user.name!"anon"}`, "anon"},
		{`${(nobody.name)!"anon"}`, "anon"},
		{`${user??}`, "true"},
		{`${(nobody.name)??}`, "false"},
		{`${nothing!"null"}`, "null"},
		{`${missing?has_content?string("y", "n")}`, "n"},
		{`${""?has_content?string("y", "n")}`, "n"},
		{`${user?has_content?string("y", "n")}`, "n"},
		{`${"x"?has_content?string("y", "n")}`, "y"},
	}
	data := map[string]any{"user": map[string]any{}, "nothing": nil}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, data); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDefaultDoesNotGuardParent(t *testing.T) {
	err := renderErr(t, `${nobody.name!"anon"}`, nil)
	if err.Kind != ErrInvalidReference {
		t.Fatalf("expected invalid reference, got %v", err.Kind)
	}
	if err.Expr != "nobody" {
		t.Errorf("expected the parent to be blamed, got %q", err.Expr)
	}
}

func TestStringOperations(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`${"a" + "b"}`, "ab"},
		{`${"n=" + 3}`, "n=3"},
		{`${"Hi ${name}!"}`, "Hi Ann!"},
		{`${name?upper_case}`, "ANN"},
		{`${name?length}`, "3"},
		{`${"hello"?cap_first}`, "Hello"},
		{`${"  x "?trim}`, "x"},
		{`${"hello"[1..3]}`, "ell"},
		{`${"hello"[1..]}`, "ello"},
		{`${["a", "b"]?join(", ")}`, "a, b"},
		{`${"abc"?starts_with("ab")?c}`, "true"},
		{`${"12"?number + 1}`, "13"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, map[string]any{"name": "Ann"}); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSequencesAndHashes(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`${([1, 2] + [3])?size}`, "3"},
		{`${({"a": 1} + {"b": 2}).b}`, "2"},
		{`${({"a": 1} + {"a": 5}).a}`, "5"},
		{`${[1, 2, 3][1]}`, "2"},
		{`${[3, 1, 2]?sort?join("")}`, "123"},
		{`${[1, 2, 3]?reverse?first}`, "3"},
		{`${{"x": 1, "y": 2}?keys?join(",")}`, "x,y"},
		{`${[1, 2, 3]?seq_contains(2)?c}`, "true"},
		{`${(1..4)?size}`, "4"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`${1 + 2 * 3}`, "7"},
		{`${(1 + 2) * 3}`, "9"},
		{`${7 % 3}`, "1"},
		{`${-x + 2}`, "-3"},
		{`${1 / 4}`, "0.25"},
		{`${1 / 3}`, "0.333"},
		{`${(1 / 3)?c}`, "0.333333333333"},
		{`${1000 * 1000}`, "1,000,000"},
		{`${(1000 * 1000)?c}`, "1000000"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, map[string]any{"x": 5}); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestArithmeticErrors(t *testing.T) {
	tests := []struct {
		source string
		kind   ErrorKind
	}{
		{`${1 / 0}`, ErrInvalidOperation},
		{`${"a" - 1}`, ErrNonNumerical},
		{`${missing * 2}`, ErrInvalidReference},
		{`${[1] + {"a": 1}}`, ErrTypeMismatch},
		{`${1 lt "a"}`, ErrTypeMismatch},
		{`${x?nope}`, ErrUnknownBuiltin},
		{`${.nope}`, ErrInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			err := renderErr(t, tt.source, map[string]any{"x": 1})
			if err.Kind != tt.kind {
				t.Errorf("expected %v, got %v: %v", tt.kind, err.Kind, err)
			}
		})
	}
}

func TestUnknownBuiltinSuggestion(t *testing.T) {
	err := renderErr(t, `${name?uper_case}`, map[string]any{"name": "x"})
	if !strings.Contains(err.Tip, "upper_case") {
		t.Errorf("expected suggestion for upper_case, got %q", err.Tip)
	}
}

func TestMissingVariableSuggestion(t *testing.T) {
	err := renderErr(t, `${usernme}`, map[string]any{"username": "x"})
	if err.Kind != ErrInvalidReference {
		t.Fatalf("expected invalid reference, got %v", err.Kind)
	}
	if !strings.Contains(err.Tip, `"username"`) {
		t.Errorf("expected suggestion for username, got %q", err.Tip)
	}
	if err.Name != "test.ftl" || err.Span == nil || err.Span.StartLine != 1 {
		t.Errorf("expected location test.ftl:1, got %q %v", err.Name, err.Span)
	}
}

func TestNullInterpolatesAsEmpty(t *testing.T) {
	if got := render(t, "[${x}]", map[string]any{"x": nil}); got != "[]" {
		t.Errorf("expected '[]', got %q", got)
	}
}

func TestSpecialVariables(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.AddTemplate("main.ftl", `${.main_template_name}|${.current_template_name}|<#include "inc.ftl">|${.output_format}|${.lang}`); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddTemplate("inc.ftl", `${.current_template_name}`); err != nil {
		t.Fatal(err)
	}
	tmpl, err := cfg.GetTemplate("main.ftl")
	if err != nil {
		t.Fatal(err)
	}
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := "main.ftl|main.ftl|inc.ftl|undefined|en"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestOutputFormatEscaping(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.AddTemplate("page.ftlh", `${text}|${text?no_esc}|<#assign cap><b>${text}</b></#assign>${cap}|${cap?is_markup_output?c}`); err != nil {
		t.Fatal(err)
	}
	tmpl, err := cfg.GetTemplate("page.ftlh")
	if err != nil {
		t.Fatal(err)
	}
	got, err := tmpl.Render(map[string]any{"text": "<a&b>"})
	if err != nil {
		t.Fatal(err)
	}
	want := "&lt;a&amp;b&gt;|<a&b>|<b>&lt;a&amp;b&gt;</b>|true"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSettingDirective(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`<#setting number_format="computer">${1234567}`, "1234567"},
		{`<#setting locale="de_DE">${1234.5}`, "1.234,5"},
		{`<#setting boolean_format="yes,no">${true} ${false}`, "yes no"},
		{`<#setting number_format="percent">${0.25}`, "25%"},
		{`<#setting arithmetic_engine="conservative">${(7 / 2)?c}`, "3.5"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUnknownSetting(t *testing.T) {
	err := renderErr(t, `<#setting locle="de">`, nil)
	if err.Kind != ErrInvalidOperation {
		t.Fatalf("expected invalid operation, got %v", err.Kind)
	}
	if !strings.Contains(err.Tip, "locale") {
		t.Errorf("expected suggestion for locale, got %q", err.Tip)
	}
}

func TestCanonicalFormRoundTrip(t *testing.T) {
	sources := []string{
		`<#assign x=1><#local y=2 z=3>`,
		`<#macro m a b=a+1 rest...>${a}<#nested b></#macro><@m a=1; v>${v}</@m>`,
		`<#function f x><#return x*2></#function>${f(2)}`,
		`<#global n+=2><#assign c++ in ns>`,
		`<#include "x.ftl" ignore_missing=true><#import "lib.ftl" as lib>`,
		`<#assign out>${(a.b)!"-"}</#assign>`,
	}
	cfg := NewConfiguration()
	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			tmpl, err := cfg.TemplateFromString("a.ftl", source)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			canonical := tmpl.CanonicalForm()
			again, err := cfg.TemplateFromString("b.ftl", canonical)
			if err != nil {
				t.Fatalf("canonical form does not parse: %v\n%s", err, canonical)
			}
			if again.CanonicalForm() != canonical {
				t.Errorf("canonical form is not stable\nfirst:  %s\nsecond: %s", canonical, again.CanonicalForm())
			}
		})
	}
}

func TestSyntaxErrorLocation(t *testing.T) {
	cfg := NewConfiguration()
	_, err := cfg.TemplateFromString("bad.ftl", "line one\n<#if x>")
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if terr.Kind != ErrSyntax {
		t.Errorf("expected syntax error, got %v", terr.Kind)
	}
	if terr.Name != "bad.ftl" {
		t.Errorf("expected name bad.ftl, got %q", terr.Name)
	}
	if terr.Source == "" {
		t.Error("expected source to be attached")
	}
}
