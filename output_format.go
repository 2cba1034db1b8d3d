package ftl

import (
	"path"
	"strings"

	"github.com/ftlgo/ftl/value"
)

// OutputFormat decides how ${} interpolations are escaped and what
// captured output turns into.
type OutputFormat interface {
	value.MarkupFormat
	// IsMarkup reports whether interpolated strings are escaped and
	// captures produce markup values.
	IsMarkup() bool
}

type outputFormat struct {
	name    string
	escaper *strings.Replacer
}

func (f *outputFormat) Name() string   { return f.name }
func (f *outputFormat) IsMarkup() bool { return f.escaper != nil }

func (f *outputFormat) Escape(s string) string {
	if f.escaper == nil {
		return s
	}
	return f.escaper.Replace(s)
}

var (
	// UndefinedOutputFormat is used when nothing else applies. It never
	// escapes.
	UndefinedOutputFormat OutputFormat = &outputFormat{name: "undefined"}

	// PlainText is plain text output; it never escapes.
	PlainText OutputFormat = &outputFormat{name: "plainText"}

	// HTML escapes <, >, &, " and '.
	HTML OutputFormat = &outputFormat{name: "HTML", escaper: strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&#39;",
	)}

	// XML escapes <, >, &, " and '.
	XML OutputFormat = &outputFormat{name: "XML", escaper: strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&apos;",
	)}
)

var outputFormats = map[string]OutputFormat{
	"undefined": UndefinedOutputFormat,
	"plainText": PlainText,
	"HTML":      HTML,
	"XML":       XML,
}

// OutputFormatByName returns a built-in output format.
func OutputFormatByName(name string) (OutputFormat, bool) {
	f, ok := outputFormats[name]
	return f, ok
}

// outputFormatForName picks the output format implied by a template name's
// extension, or nil.
func outputFormatForName(name string) OutputFormat {
	switch strings.ToLower(path.Ext(name)) {
	case ".ftlh":
		return HTML
	case ".ftlx":
		return XML
	}
	return nil
}

// EscapeHTML escapes a string for HTML.
func EscapeHTML(s string) string {
	return HTML.Escape(s)
}
