package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestMakeDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf)

	if logger.Level() != LevelInfo {
		t.Errorf("expected default level info, got %v", logger.Level())
	}
	if logger.format != FormatText {
		t.Errorf("expected default format text, got %v", logger.format)
	}

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message logged at info level: %q", buf.String())
	}
	logger.Info("shown", slog.String("template", "main.ftl"))
	out := buf.String()
	if !strings.Contains(out, "shown") || !strings.Contains(out, "template=main.ftl") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestZeroLoggerDiscards(t *testing.T) {
	var l Logger
	l.Error("nothing happens")
	l.With(slog.Int("a", 1)).Info("still nothing")
	if l.Enabled(t.Context(), LevelError) {
		t.Error("zero logger reports enabled")
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithLevel(LevelTrace), WithTimeLayout("none"))
	logger.Trace("cache hit")
	if got := buf.String(); !strings.HasPrefix(got, "TRACE cache hit") {
		t.Errorf("unexpected trace output: %q", got)
	}
}

func TestPlainJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithFormat(FormatJSON), WithPretty(false), WithLevel(LevelTrace))
	logger.Trace("loaded", slog.String("template", "a.ftl"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if rec["level"] != "TRACE" {
		t.Errorf("expected TRACE level, got %v", rec["level"])
	}
	if rec["template"] != "a.ftl" {
		t.Errorf("expected template attribute, got %v", rec["template"])
	}
}

func TestPrettyJSONWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithFormat(FormatJSON), WithTimeLayout(""))
	logger.Warn("failed", slog.Group("error", slog.String("kind", "invalid reference")), slog.Any("cause", errors.New("boom")))

	out := buf.String()
	for _, want := range []string{`"level": WARN`, `"error.kind": "invalid reference"`, `"cause": boom`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestWithAttrsCarried(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithTimeLayout("none")).With(slog.String("render", "r1"))
	logger.Info("start")
	if !strings.Contains(buf.String(), "render=r1") {
		t.Errorf("attribute from With missing: %q", buf.String())
	}
}

func TestWrapKeepsConfig(t *testing.T) {
	var buf bytes.Buffer
	base := Make(&buf, WithLevel(LevelWarn))
	wrapped := base.Wrap(WithFormat(FormatJSON))
	if wrapped.Level() != LevelWarn {
		t.Errorf("Wrap lost the level: %v", wrapped.Level())
	}
	if base.format != FormatText {
		t.Error("Wrap modified the original logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", LevelDebug},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"bogus", DefaultLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat(" JSON ") != FormatJSON {
		t.Error("expected json")
	}
	if ParseFormat("xml") != DefaultFormat {
		t.Error("expected default format for unknown names")
	}
	var names []string
	for name := range Formats() {
		names = append(names, name)
	}
	if strings.Join(names, ",") != "text,json" {
		t.Errorf("unexpected formats %v", names)
	}
}
