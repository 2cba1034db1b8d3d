package ftl

import (
	"context"
	"io"
	"strings"

	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// Template is a parsed template. It is immutable and can be processed by
// any number of goroutines at once.
type Template struct {
	cfg         *Configuration
	name        string
	source      string
	ast         *parser.Template
	fingerprint uint64
	// settings holds what the template itself implies, such as the output
	// format of a .ftlh file.
	settings Settings
}

// Name returns the full name of the template.
func (t *Template) Name() string {
	return t.name
}

// Source returns the template source.
func (t *Template) Source() string {
	return t.source
}

// AST returns the syntax tree of the template.
func (t *Template) AST() *parser.Template {
	return t.ast
}

// Macros returns the names of the macros and functions the template
// defines, in source order.
func (t *Template) Macros() []string {
	names := make([]string, len(t.ast.Macros))
	for i, m := range t.ast.Macros {
		names[i] = m.Name
	}
	return names
}

// CanonicalForm returns the template source in canonical syntax.
func (t *Template) CanonicalForm() string {
	return parser.CanonicalForm(t.ast)
}

// Dump returns a debug rendering of the syntax tree.
func (t *Template) Dump() string {
	return parser.DebugString(t.ast, 0)
}

// resolvedSettings layers the template level settings over the
// configuration.
func (t *Template) resolvedSettings() Settings {
	return t.settings.inherit(t.cfg.Settings())
}

// NewEnvironment prepares a render of the template without running it.
// Use it to adjust settings or inspect the namespaces after Process.
func (t *Template) NewEnvironment(ctx context.Context, data any, w io.Writer) *Environment {
	return newEnvironment(ctx, t, value.FromAny(data), w)
}

// Process renders the template with data as the data model.
func (t *Template) Process(data any, w io.Writer) error {
	return t.ProcessContext(context.Background(), data, w)
}

// ProcessContext renders the template; cancelling ctx aborts the render
// before the next statement.
func (t *Template) ProcessContext(ctx context.Context, data any, w io.Writer) error {
	return t.NewEnvironment(ctx, data, w).Process()
}

// Render renders the template to a string.
func (t *Template) Render(data any) (string, error) {
	var sb strings.Builder
	if err := t.Process(data, &sb); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}
