package ftl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/ftlgo/ftl/value"
)

func repeatDirective(_ value.State, params map[string]value.Value, _ []string, body value.Body) error {
	count, ok := params["count"].AsInt()
	if !ok {
		return NewError(ErrInvalidOperation, "count must be a number")
	}
	for i := int64(1); i <= count && body != nil; i++ {
		if err := body.Render(value.FromInt(i)); err != nil {
			return err
		}
	}
	return nil
}

func TestIgnoreHandler(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(IgnoreHandler)
	if got := renderWith(t, cfg, "a${missing}b", nil); got != "ab" {
		t.Errorf("expected 'ab', got %q", got)
	}
}

func TestIgnoreHandlerInsideMacro(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(IgnoreHandler)
	got := renderWith(t, cfg, "<#macro m>x${nope}y</#macro><@m/>|<@m/>", nil)
	if got != "xy|xy" {
		t.Errorf("expected 'xy|xy', got %q", got)
	}
}

func TestPlaceholderHandler(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(PlaceholderHandler("[err]"))
	if got := renderWith(t, cfg, "a${missing}b${1 + true}c", nil); got != "a[err]b[err]c" {
		t.Errorf("expected 'a[err]b[err]c', got %q", got)
	}
}

func TestDebugHandler(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(DebugHandler)
	tmpl, err := cfg.TemplateFromString("test.ftl", "before ${missing} after")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := tmpl.Render(nil)
	if KindOf(err) != ErrInvalidReference {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	if !strings.HasPrefix(out, "before ") || !strings.Contains(out, "FTL stack trace") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "after") {
		t.Errorf("render should stop at the error, got %q", out)
	}
}

func TestHandlerCalledOncePerError(t *testing.T) {
	calls := 0
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(ExceptionHandlerFunc(func(err *Error, _ *Environment, _ io.Writer) error {
		calls++
		return err
	}))
	renderErrWith(t, cfg, "<#macro inner>${nope}</#macro><#macro outer><@inner/></#macro><@outer/>", nil)
	if calls != 1 {
		t.Errorf("expected the handler to run once, ran %d times", calls)
	}
}

func TestAttemptRecover(t *testing.T) {
	got := render(t, `<#attempt>a${nope}<#recover>r<#if .error?contains("nope")>:yes</#if></#attempt>|done`, nil)
	if got != "r:yes|done" {
		t.Errorf("expected 'r:yes|done', got %q", got)
	}
}

func TestAttemptKeepsOutputOnSuccess(t *testing.T) {
	got := render(t, `<#attempt>ok<#recover>failed</#attempt>`, nil)
	if got != "ok" {
		t.Errorf("expected 'ok', got %q", got)
	}
}

func TestAttemptBypassesHandler(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetExceptionHandler(PlaceholderHandler("[err]"))
	got := renderWith(t, cfg, `<#attempt>${nope}<#recover>recovered</#attempt>`, nil)
	if got != "recovered" {
		t.Errorf("expected 'recovered', got %q", got)
	}
}

func TestErrorOutsideRecover(t *testing.T) {
	err := renderErr(t, "${.error}", nil)
	if err.Kind != ErrInvalidOperation {
		t.Errorf("expected invalid operation, got %v", err)
	}
}

func TestFuelAbort(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetFuel(20)
	cfg.SetExceptionHandler(IgnoreHandler)
	err := renderErrWith(t, cfg, "<#list 1..1000 as i>${i}</#list>", nil)
	if !IsAborted(err) {
		t.Fatalf("expected an abort, got %v", err)
	}
	if !strings.Contains(err.Error(), "out of fuel") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConsumedFuel(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetFuel(1000)
	tmpl, err := cfg.TemplateFromString("test.ftl", "a${x}b")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	env := tmpl.NewEnvironment(context.Background(), map[string]any{"x": 1}, io.Discard)
	if err := env.Process(); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got := env.ConsumedFuel(); got != 3 {
		t.Errorf("expected 3 statements, got %d", got)
	}
}

func TestContextCancelled(t *testing.T) {
	tmpl, err := NewConfiguration().TemplateFromString("test.ftl", "never")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sb strings.Builder
	err = tmpl.ProcessContext(ctx, nil, &sb)
	if !IsAborted(err) {
		t.Fatalf("expected an abort, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the error to wrap context.Canceled, got %v", err)
	}
	if sb.Len() != 0 {
		t.Errorf("expected no output, got %q", sb.String())
	}
}

func TestDebugInfo(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetDebug(true)
	source := "<#macro inner>${missing + x}</#macro><#macro outer><@inner/></#macro><@outer/>"
	err := renderErrWith(t, cfg, source, map[string]any{"x": 1})

	if err.DebugInfo == nil {
		t.Fatal("expected debug info")
	}
	if want := []string{"inner", "outer"}; !slices.Equal(err.DebugInfo.CallStack, want) {
		t.Errorf("expected call stack %v, got %v", want, err.DebugInfo.CallStack)
	}
	if _, ok := err.DebugInfo.ReferencedLocals["x"]; !ok {
		t.Errorf("expected x among the referenced variables, got %v", err.DebugInfo.ReferencedLocals)
	}
	if _, ok := err.DebugInfo.ReferencedLocals["missing"]; ok {
		t.Error("undefined variables should not be listed")
	}
	if err.DebugInfo.TemplateSource != source {
		t.Errorf("unexpected template source %q", err.DebugInfo.TemplateSource)
	}
	if report := fmt.Sprintf("%+v", err); !strings.Contains(report, "missing") {
		t.Errorf("expected the report to mention the expression, got:\n%s", report)
	}
}

func TestErrorLocation(t *testing.T) {
	err := renderErr(t, "line one\n${nope}", nil)
	if err.Name != "test.ftl" {
		t.Errorf("expected template name test.ftl, got %q", err.Name)
	}
	if err.Span == nil || err.Span.StartLine != 2 {
		t.Fatalf("expected an error on line 2, got %+v", err.Span)
	}
	if err.Expr != "nope" {
		t.Errorf("expected expression 'nope', got %q", err.Expr)
	}
}

func TestHostDirective(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("repeat", value.DirectiveFunc(repeatDirective))

	got := renderWith(t, cfg, "<@repeat count=3; i>${i}</@repeat>", nil)
	if got != "123" {
		t.Errorf("expected '123', got %q", got)
	}
}

func TestHostDirectiveBodySeesCallerScope(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("repeat", value.DirectiveFunc(repeatDirective))

	got := renderWith(t, cfg, `<#macro m><#local who="m"><@repeat count=2; i>${who}${i}</@repeat></#macro><@m/>`, nil)
	if got != "m1m2" {
		t.Errorf("expected 'm1m2', got %q", got)
	}
}

func TestHostDirectiveRejectsPositionalArgs(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("repeat", value.DirectiveFunc(repeatDirective))

	err := renderErrWith(t, cfg, "<@repeat 3/>", nil)
	if err.Kind != ErrInvalidOperation {
		t.Errorf("expected invalid operation, got %v", err)
	}
}

func TestHostDirectiveTooManyLoopVars(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("pair", value.DirectiveFunc(func(_ value.State, _ map[string]value.Value, _ []string, body value.Body) error {
		return body.Render(value.FromInt(1), value.FromInt(2))
	}))

	err := renderErrWith(t, cfg, "<@pair; a>${a}</@pair>", nil)
	if err.Kind != ErrTooManyArguments {
		t.Errorf("expected too many arguments, got %v", err)
	}
}

func TestHostDirectiveErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	cfg := NewConfiguration()
	cfg.SetSharedVariable("fail", value.DirectiveFunc(func(value.State, map[string]value.Value, []string, value.Body) error {
		return boom
	}))

	err := renderErrWith(t, cfg, "<@fail/>", nil)
	if err.Kind != ErrInvalidOperation {
		t.Errorf("expected invalid operation, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected the directive error to be wrapped")
	}
}

func TestCaptureRestoresOutputOnPanic(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("boom", value.DirectiveFunc(func(value.State, map[string]value.Value, []string, value.Body) error {
		panic("boom")
	}))
	cfg.SetLegacyCallables(true)

	for _, source := range []string{
		`<#assign x>captured <@boom/></#assign>`,
		`<#attempt>tried <@boom/><#recover>recovered</#attempt>`,
		`<#macro m>in macro <@boom/></#macro>${m()}`,
	} {
		t.Run(source, func(t *testing.T) {
			tmpl, err := cfg.TemplateFromString("test.ftl", source)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			var sb strings.Builder
			env := tmpl.NewEnvironment(context.Background(), nil, &sb)
			func() {
				defer func() {
					if recover() == nil {
						t.Error("expected the directive to panic")
					}
				}()
				_ = env.Process()
			}()
			if env.Out() != io.Writer(&sb) {
				t.Errorf("expected the original output to be restored, got %T", env.Out())
			}
			if env.attemptDepth != 0 {
				t.Errorf("expected attempt depth 0, got %d", env.attemptDepth)
			}
		})
	}
}

func TestHostDirectiveArgumentsEvaluateInSourceOrder(t *testing.T) {
	var order []string
	cfg := NewConfiguration()
	cfg.SetSharedVariable("note", value.MethodFunc(func(_ value.State, args []value.Value) (value.Value, error) {
		order = append(order, args[0].String())
		return args[0], nil
	}))
	var seen map[string]value.Value
	cfg.SetSharedVariable("record", value.DirectiveFunc(func(_ value.State, params map[string]value.Value, _ []string, _ value.Body) error {
		seen = params
		return nil
	}))

	renderWith(t, cfg, `<@record z=note("z") a=note("a") m=note("m")/>`, nil)
	if want := []string{"z", "a", "m"}; !slices.Equal(order, want) {
		t.Errorf("expected evaluation order %v, got %v", want, order)
	}
	if len(seen) != 3 || seen["a"].String() != "a" {
		t.Errorf("unexpected params %v", seen)
	}
}

func TestHostMethod(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("greet", value.MethodFunc(func(state value.State, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Undefined(), fmt.Errorf("greet takes 1 argument, got %d", len(args))
		}
		return value.FromString("hello " + args[0].String() + " from " + state.Name()), nil
	}))

	if got := renderWith(t, cfg, `${greet("bob")}`, nil); got != "hello bob from test.ftl" {
		t.Errorf("unexpected output %q", got)
	}

	err := renderErrWith(t, cfg, `${greet()}`, nil)
	if err.Kind != ErrInvalidOperation || !strings.Contains(err.Error(), "greet takes 1 argument") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestHostMethodLookup(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("lookup", value.MethodFunc(func(state value.State, args []value.Value) (value.Value, error) {
		return state.Lookup(args[0].String()), nil
	}))

	got := renderWith(t, cfg, `<#assign x = "ns"><#macro m><#local x = "local">${lookup("x")}</#macro>${lookup("x")} <@m/>`, nil)
	if got != "ns local" {
		t.Errorf("expected 'ns local', got %q", got)
	}
}

func TestEnvironmentNamespaces(t *testing.T) {
	tmpl, err := NewConfiguration().TemplateFromString("test.ftl", `<#assign x = 1>${g}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	var sb strings.Builder
	env := tmpl.NewEnvironment(context.Background(), nil, &sb)
	env.SetGlobalVariable("g", "G")
	if err := env.Process(); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if sb.String() != "G" {
		t.Errorf("expected 'G', got %q", sb.String())
	}
	x, ok := env.MainNamespace().Get("x")
	if !ok || x.String() != "1" {
		t.Errorf("expected x = 1 in the main namespace, got %v", x)
	}
	if env.CurrentNamespace() != env.MainNamespace() {
		t.Error("expected the main namespace to be current after the render")
	}
}

func TestEnvironmentSettings(t *testing.T) {
	tmpl, err := NewConfiguration().TemplateFromString("test.ftl", `${1000}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	var sb strings.Builder
	env := tmpl.NewEnvironment(context.Background(), nil, &sb)
	if err := env.SetSetting("number_format", "computer"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := env.Process(); err != nil {
		t.Fatalf("render error: %v", err)
	}
	if sb.String() != "1000" {
		t.Errorf("expected '1000', got %q", sb.String())
	}
	if tmpl.cfg.Settings().NumberFormat != "number" {
		t.Error("environment settings must not leak into the configuration")
	}
}
