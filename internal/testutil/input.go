// Package testutil loads file-driven render cases.
//
// A case file has three sections separated by lines holding only "---":
// a YAML header, the template source and the expected output.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"kr.dev/diff"
)

// TestInput represents a parsed case file.
type TestInput struct {
	Name      string            `yaml:"-"`
	Data      map[string]any    `yaml:"data"`
	Settings  *TestSettings     `yaml:"settings"`
	Templates map[string]string `yaml:"templates"` // extra templates for include and import
	Error     string            `yaml:"error"`     // expected error kind, if rendering must fail
	Template  string            `yaml:"-"`
	Expected  string            `yaml:"-"`
}

// TestSettings are the configuration overrides of a case.
type TestSettings struct {
	OutputFormat     string            `yaml:"output_format"`
	Locale           string            `yaml:"locale"`
	NumberFormat     string            `yaml:"number_format"`
	BooleanFormat    string            `yaml:"boolean_format"`
	ArithmeticEngine string            `yaml:"arithmetic_engine"`
	KeepWhitespace   bool              `yaml:"keep_whitespace"`
	LazyImports      bool              `yaml:"lazy_imports"`
	LegacyCallables  bool              `yaml:"legacy_callables"`
	AutoImports      map[string]string `yaml:"auto_imports"`
	AutoIncludes     []string          `yaml:"auto_includes"`
}

// ParseTestInputFile reads and parses a case file.
func ParseTestInputFile(path string) (*TestInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	input, err := ParseTestInput(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	input.Name = filepath.Base(path)
	return input, nil
}

// ParseTestInput parses case file content. The header may be empty, in
// which case the content starts with the divider.
func ParseTestInput(content string) (*TestInput, error) {
	parts := strings.SplitN("\n"+content, "\n---\n", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("missing template section")
	}

	input := &TestInput{}
	if strings.TrimSpace(parts[0]) != "" {
		if err := yaml.Unmarshal([]byte(parts[0]), input); err != nil {
			return nil, err
		}
	}
	if input.Data == nil {
		input.Data = make(map[string]any)
	}
	input.Template = parts[1]
	if len(parts) == 3 {
		input.Expected = parts[2]
	} else if input.Error == "" {
		return nil, fmt.Errorf("missing expected output section")
	}
	return input, nil
}

// GlobTestInputs finds all case files in dir.
func GlobTestInputs(t testing.TB, dir string) []string {
	t.Helper()
	inputs, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		t.Fatalf("failed to glob inputs: %v", err)
	}
	if len(inputs) == 0 {
		t.Fatalf("no input files found in %s", dir)
	}
	return inputs
}

// CompareOutput reports a line diff when got differs from want. A single
// trailing newline is ignored on both sides.
func CompareOutput(t testing.TB, got, want string) {
	t.Helper()
	got = strings.TrimSuffix(got, "\n")
	want = strings.TrimSuffix(want, "\n")
	if got == want {
		return
	}
	diff.Test(t, t.Errorf, strings.Split(got, "\n"), strings.Split(want, "\n"))
}
