package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	exit := func(code int) { t.Fatalf("unexpected exit with code %d", code) }
	err = Run(context.Background(), exit, &out, &errOut, args...)
	return out.String(), errOut.String(), err
}

func TestRender(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftl":     `<#import "lib/util.ftl" as u>${u.greet(name)} ${n + 1}`,
		"lib/util.ftl": `<#function greet who><#return "hi " + who></#function>`,
		"data.yaml":    "name: bob\nn: 1\n",
	})

	out, _, err := run(t, "render",
		"--data", filepath.Join(dir, "data.yaml"),
		"--set", "n=41",
		filepath.Join(dir, "page.ftl"),
	)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "hi bob 42" {
		t.Errorf("expected 'hi bob 42', got %q", out)
	}
}

func TestRenderDataLayers(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftl":  `${a} ${b} ${c.d}`,
		"base.yaml": "a: base\nb: base\nc:\n  d: nested\n",
		"over.json": `{"b": "json"}`,
	})

	out, _, err := run(t, "render",
		"-D", filepath.Join(dir, "base.yaml"),
		"-D", filepath.Join(dir, "over.json"),
		filepath.Join(dir, "page.ftl"),
	)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "base json nested" {
		t.Errorf("expected 'base json nested', got %q", out)
	}
}

func TestRenderSettings(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftl": `${1234.5} ${true}`,
	})

	out, _, err := run(t, "render",
		"--locale", "de_DE",
		"--boolean-format", "ja,nein",
		filepath.Join(dir, "page.ftl"),
	)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "1.234,5 ja" {
		t.Errorf("expected '1.234,5 ja', got %q", out)
	}
}

func TestRenderOutputFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftlh": `${s}`,
	})
	target := filepath.Join(dir, "out.html")

	out, _, err := run(t, "render", "--set", "s=<b>", "-o", target, filepath.Join(dir, "page.ftlh"))
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "" {
		t.Errorf("expected no stdout, got %q", out)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "&lt;b&gt;" {
		t.Errorf("expected escaped output, got %q", got)
	}
}

func TestRenderTemplateError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftl": "ok\n${missing}",
	})

	_, stderr, err := run(t, "render", filepath.Join(dir, "page.ftl"))
	if !Reported(err) {
		t.Fatalf("expected a reported error, got %v", err)
	}
	if ExitCode(err) != 2 {
		t.Errorf("expected exit code 2, got %d", ExitCode(err))
	}
	for _, want := range []string{"invalid reference:", "at page.ftl:2:", "expression: missing"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("expected stderr to contain %q, got:\n%s", want, stderr)
		}
	}
}

func TestRenderOutsideRoot(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a/page.ftl": `x`,
		"b/.keep":    ``,
	})

	_, _, err := run(t, "render", "--dir", filepath.Join(dir, "b"), filepath.Join(dir, "a", "page.ftl"))
	if err == nil || Reported(err) {
		t.Fatalf("expected a plain error, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("expected exit code 1, got %d", ExitCode(err))
	}
}

func TestCheck(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.ftl": `<#if x>y</#if>`,
		"bad.ftl":  "line\n<#list>",
	})

	_, stderr, err := run(t, "check", filepath.Join(dir, "good.ftl"), filepath.Join(dir, "bad.ftl"))
	if err == nil || !strings.Contains(err.Error(), "1 of 2 templates") {
		t.Fatalf("expected one failure, got %v", err)
	}
	if !strings.Contains(stderr, "syntax error:") || !strings.Contains(stderr, "bad.ftl:2") {
		t.Errorf("expected a syntax error report, got:\n%s", stderr)
	}

	if _, _, err := run(t, "check", filepath.Join(dir, "good.ftl")); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestDump(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"page.ftl": `<#assign x=1>${x+2}`,
	})

	out, _, err := run(t, "dump", "--canonical", filepath.Join(dir, "page.ftl"))
	if err != nil {
		t.Fatalf("dump error: %v", err)
	}
	if out != `<#assign x = 1>${x + 2}` {
		t.Errorf("unexpected canonical form %q", out)
	}

	out, _, err = run(t, "dump", filepath.Join(dir, "page.ftl"))
	if err != nil {
		t.Fatalf("dump error: %v", err)
	}
	if out == "" {
		t.Error("expected a syntax tree dump")
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"text", "text"},
		{"hello world", "hello world"},
		{"true", true},
		{"", ""},
		{"[unclosed", "[unclosed"},
	}
	for _, tt := range tests {
		if got := parseScalar(tt.raw); got != tt.want {
			t.Errorf("parseScalar(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestLogScan(t *testing.T) {
	var f logConfig
	f.scan([]string{"render", "--log-level", "debug", "--log-format=json", "x.ftl"})
	if f.Level != "debug" || f.Format != "json" {
		t.Errorf("expected debug/json, got %s/%s", f.Level, f.Format)
	}

	f = logConfig{}
	f.scan([]string{"--", "--log-level", "debug"})
	if f.Level != "" {
		t.Errorf("expected flags after -- to be ignored, got %q", f.Level)
	}
}
