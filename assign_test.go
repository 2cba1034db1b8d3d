package ftl

import (
	"strings"
	"testing"

	"github.com/ftlgo/ftl/value"
)

func TestAssignScopes(t *testing.T) {
	source := `<#macro m><#local x = "l"><#assign x = "n"><#global x = "g">${x}</#macro><@m/>${x}${.globals.x}`
	if got := render(t, source, nil); got != "lng" {
		t.Errorf("expected 'lng', got %q", got)
	}
}

func TestAssignWritesDefiningNamespace(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetLoader(MapLoader{
		"lib.ftl": `<#macro set v><#assign last = v></#macro>`,
	})
	got := renderWith(t, cfg, `<#import "lib.ftl" as lib><@lib.set v="x"/>${lib.last}|${last!"unset"}`, nil)
	if got != "x|unset" {
		t.Errorf("expected 'x|unset', got %q", got)
	}
}

func TestCompoundAssignments(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`<#assign x = 10><#assign x -= 2><#assign x /= 4><#assign x %= 3><#assign x-->${x}`, "1"},
		{`<#assign x = 1><#assign x++><#assign x++>${x}`, "3"},
		{`<#assign s = "a"><#assign s += 1>${s}`, "a1"},
		{`<#assign xs = [1]><#assign xs += [2, 3]>${xs?join(",")}`, "1,2,3"},
		{`<#assign h = {"a": 1}><#assign h += {"b": 2}>${h?keys?join(",")}`, "a,b"},
		{`<#assign x = 1 x = x + 1>${x}`, "2"},
		{`<#macro m><#local n = 1><#local n += 1>${n}</#macro><@m/>`, "2"},
		{`<#global g = 1><#global g *= 5>${g}`, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, tt.source, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCompoundAssignmentOnUnsetVariable(t *testing.T) {
	tests := []struct {
		source string
		msg    string
		tip    string
	}{
		{`<#assign x += 1>`, `cannot apply "+=" to "x", because it is null or missing`, "<#assign x = 0>"},
		{`<#assign n++>`, `cannot increment "n", because it is null or missing`, "<#assign n = 0>"},
		{`<#global n-->`, `cannot decrement "n", because it is null or missing`, "<#global n = 0>"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			err := renderErr(t, tt.source, nil)
			if err.Kind != ErrInvalidReference {
				t.Errorf("expected invalid reference, got %v", err.Kind)
			}
			if err.Message != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, err.Message)
			}
			if !strings.Contains(err.Tip, tt.tip) {
				t.Errorf("expected tip to contain %q, got %q", tt.tip, err.Tip)
			}
		})
	}
}

func TestCompoundAssignmentOnNonNumber(t *testing.T) {
	err := renderErr(t, `<#assign x = "a"><#assign x -= 1>`, nil)
	if err.Kind != ErrNonNumerical {
		t.Errorf("expected not a number, got %v", err)
	}
}

func TestAssignUndefinedValue(t *testing.T) {
	err := renderErr(t, `<#assign x = nope>`, nil)
	if err.Kind != ErrInvalidReference {
		t.Errorf("expected invalid reference, got %v", err)
	}
	if err.Expr != "nope" {
		t.Errorf("expected the expression to be reported, got %q", err.Expr)
	}
}

func TestLocalOutsideMacro(t *testing.T) {
	err := renderErr(t, `<#local x = 1>`, nil)
	if err.Kind != ErrInvalidOperation {
		t.Errorf("expected invalid operation, got %v", err)
	}
	if !strings.Contains(err.Message, "can only be used inside a macro or function") {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestAssignInNamespace(t *testing.T) {
	err := renderErr(t, `<#assign x = 1 in s>`, map[string]any{"s": "text"})
	if err.Kind != ErrNotANamespace {
		t.Errorf("expected not a namespace, got %v", err)
	}

	err = renderErr(t, `<#assign x = 1 in nope>`, nil)
	if err.Kind != ErrInvalidReference {
		t.Errorf("expected invalid reference, got %v", err)
	}
}

func TestBlockAssignment(t *testing.T) {
	got := render(t, `<#macro m><#local c>[<#nested>]</#local>${c}${c}</#macro><@m>x</@m>`, nil)
	if got != "[x][x]" {
		t.Errorf("expected '[x][x]', got %q", got)
	}
}

func TestBlockAssignmentCapturesMarkup(t *testing.T) {
	cfg := NewConfiguration()
	tmpl, err := cfg.TemplateFromString("page.ftlh", `<#assign c><b>${s}</b></#assign>${c}|${c?is_markup_output?c}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	got, err := tmpl.Render(map[string]any{"s": "<a>"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<b>&lt;a&gt;</b>|true" {
		t.Errorf("expected '<b>&lt;a&gt;</b>|true', got %q", got)
	}
}

func TestBlockAssignmentErrorRestoresOutput(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(IgnoreHandler)
	got := renderWith(t, cfg, `a<#assign c>x${nope}y</#assign>b${c}`, nil)
	if got != "abxy" {
		t.Errorf("expected 'abxy', got %q", got)
	}
}

func TestBlockAssignmentNamespaceEvaluatedOnce(t *testing.T) {
	calls := 0
	cfg := NewConfiguration()
	cfg.SetLoader(MapLoader{"lib.ftl": ""})
	cfg.SetSharedVariable("pick", value.MethodFunc(func(state value.State, _ []value.Value) (value.Value, error) {
		calls++
		return state.Lookup("lib"), nil
	}))

	got := renderWith(t, cfg, `<#import "lib.ftl" as lib><#assign c in pick()><#list 1..3 as i>${i}</#list></#assign>${lib.c}`, nil)
	if got != "123" {
		t.Errorf("expected '123', got %q", got)
	}
	if calls != 1 {
		t.Errorf("expected the namespace to be evaluated once, got %d calls", calls)
	}
}
