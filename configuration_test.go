package ftl

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"
)

func TestFSLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"index.ftl":         {Data: []byte(`<#import "lib/util.ftl" as u>${u.name}`)},
		"lib/util.ftl":      {Data: []byte(`<#assign name = "util">`)},
		"pages/escape.ftlh": {Data: []byte(`${s}`)},
	}
	cfg := NewConfiguration()
	cfg.SetLoader(FSLoader(fsys))

	tmpl, err := cfg.GetTemplate("index.ftl")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got, err := tmpl.Render(nil); err != nil || got != "util" {
		t.Errorf("expected 'util', got %q (%v)", got, err)
	}

	tmpl, err = cfg.GetTemplate("/pages/escape.ftlh")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if tmpl.Name() != "pages/escape.ftlh" {
		t.Errorf("expected the full name, got %q", tmpl.Name())
	}
	if got, err := tmpl.Render(map[string]any{"s": "a<b"}); err != nil || got != "a&lt;b" {
		t.Errorf("expected 'a&lt;b', got %q (%v)", got, err)
	}

	if _, err := cfg.GetTemplate("nope.ftl"); KindOf(err) != ErrTemplateNotFound {
		t.Errorf("expected template not found, got %v", err)
	}
}

func TestNoLoader(t *testing.T) {
	_, err := NewConfiguration().GetTemplate("x.ftl")
	if KindOf(err) != ErrTemplateNotFound {
		t.Fatalf("expected template not found, got %v", err)
	}
	if terr, ok := err.(*Error); !ok || terr.Tip == "" {
		t.Errorf("expected a tip about the missing loader, got %v", err)
	}
}

func TestTemplateCacheUpdateDelay(t *testing.T) {
	fsys := fstest.MapFS{"t.ftl": {Data: []byte("v1")}}
	loads := 0
	cfg := NewConfiguration()
	cfg.SetLoader(LoaderFunc(func(name string) (string, error) {
		loads++
		return FSLoader(fsys).Load(name)
	}))
	cfg.SetTemplateUpdateDelay(time.Minute)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.cache.now = func() time.Time { return now }

	first, err := cfg.GetTemplate("t.ftl")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	fsys["t.ftl"] = &fstest.MapFile{Data: []byte("v2")}
	again, _ := cfg.GetTemplate("t.ftl")
	if again != first || loads != 1 {
		t.Fatalf("expected a cache hit within the update delay, loads=%d", loads)
	}

	now = now.Add(2 * time.Minute)
	updated, err := cfg.GetTemplate("t.ftl")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got, _ := updated.Render(nil); got != "v2" {
		t.Errorf("expected the updated source, got %q", got)
	}
	if loads != 2 {
		t.Errorf("expected a second load, got %d", loads)
	}

	now = now.Add(2 * time.Minute)
	unchanged, _ := cfg.GetTemplate("t.ftl")
	if unchanged != updated {
		t.Error("an unchanged source should keep the parsed template")
	}
}

func TestRemoveAndClearTemplates(t *testing.T) {
	cfg := NewConfiguration()
	if err := cfg.AddTemplate("a.ftl", "A"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := cfg.AddTemplate("b.ftl", "B"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if _, err := cfg.GetTemplate("/a.ftl"); err != nil {
		t.Fatalf("expected a.ftl, got %v", err)
	}

	cfg.RemoveTemplate("a.ftl")
	if _, err := cfg.GetTemplate("a.ftl"); KindOf(err) != ErrTemplateNotFound {
		t.Errorf("expected a.ftl to be gone, got %v", err)
	}
	if _, err := cfg.GetTemplate("b.ftl"); err != nil {
		t.Errorf("expected b.ftl to stay, got %v", err)
	}

	cfg.ClearTemplates()
	if _, err := cfg.GetTemplate("b.ftl"); KindOf(err) != ErrTemplateNotFound {
		t.Errorf("expected b.ftl to be gone, got %v", err)
	}
}

func TestAddedTemplatesWinOverLoader(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetLoader(MapLoader{"a.ftl": "from loader"})
	if err := cfg.AddTemplate("a.ftl", "added"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	cfg.SetTemplateUpdateDelay(0)

	tmpl, err := cfg.GetTemplate("a.ftl")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if got, _ := tmpl.Render(nil); got != "added" {
		t.Errorf("expected 'added', got %q", got)
	}
}

func TestAddTemplateSyntaxError(t *testing.T) {
	err := NewConfiguration().AddTemplate("bad.ftl", "line\n<#list>")
	terr, ok := err.(*Error)
	if !ok || terr.Kind != ErrSyntax {
		t.Fatalf("expected a syntax error, got %v", err)
	}
	if terr.Span == nil || terr.Span.StartLine != 2 {
		t.Errorf("expected the error on line 2, got %+v", terr.Span)
	}
}

func TestSharedVariables(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSharedVariable("site", "example")
	cfg.SetSharedVariable("x", "shared")

	got := renderWith(t, cfg, `${site} ${x}`, map[string]any{"x": "data"})
	if got != "example data" {
		t.Errorf("expected 'example data', got %q", got)
	}
}

func TestConfigurationSettings(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetSettings(Settings{BooleanFormat: "yes,no"})
	if got := renderWith(t, cfg, `${true} ${1000}`, nil); got != "yes 1,000" {
		t.Errorf("expected 'yes 1,000', got %q", got)
	}

	if err := cfg.SetSetting("nubmer_format", "c"); KindOf(err) != ErrInvalidOperation {
		t.Errorf("expected an unknown setting error, got %v", err)
	}
	if err := cfg.SetSetting("boolean_format", "yes"); err == nil {
		t.Error("expected an invalid boolean_format to be rejected")
	}
}

func TestOutputFormatByExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.ftl", "<&>"},
		{"a.ftlh", "&lt;&amp;&gt;"},
		{"a.ftlx", "&lt;&amp;&gt;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewConfiguration().TemplateFromString(tt.name, `${s}`)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			got, err := tmpl.Render(map[string]any{"s": "<&>"})
			if err != nil {
				t.Fatalf("render error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStripWhitespace(t *testing.T) {
	source := "<#list xs as x>\n  ${x}\n</#list>\n"
	data := map[string]any{"xs": []int{1, 2}}

	if got := render(t, source, data); got != "  1\n  2\n" {
		t.Errorf("expected stripped output, got %q", got)
	}

	cfg := NewConfiguration()
	cfg.SetStripWhitespace(false)
	if got := renderWith(t, cfg, source, data); got != "\n  1\n\n  2\n\n" {
		t.Errorf("expected unstripped output, got %q", got)
	}
}

func TestConcurrentRenders(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetLoader(MapLoader{"lib.ftl": `<#macro twice x>${x}${x}</#macro>`})
	tmpl, err := cfg.TemplateFromString("test.ftl", `<#import "lib.ftl" as lib><#assign n = n * 2><@lib.twice n/>`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tmpl.Render(map[string]any{"n": i})
			if err != nil {
				errs <- err
				return
			}
			want := strings.Repeat(strconv.Itoa(i*2), 2)
			if got != want {
				errs <- NewError(ErrBug, "expected "+want+", got "+got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
