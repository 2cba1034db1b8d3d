package errors

import (
	goerrors "errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/ftlgo/ftl/syntax"
	"github.com/ftlgo/ftl/value"
)

// DebugInfo is a snapshot of debug information captured during rendering.
type DebugInfo struct {
	TemplateSource   string
	ReferencedLocals map[string]value.Value
	// CallStack lists the active macro calls, innermost first.
	CallStack []string
}

const (
	reportWidth  = 72
	excerptLines = 2
)

// writeReport writes the error, the debug sections and, if chain is set,
// the wrapped causes.
func writeReport(w io.Writer, err *Error, chain bool) {
	_, _ = io.WriteString(w, err.Error())
	if err.DebugInfo != nil {
		writeExcerpt(w, err)
		writeVariables(w, err.DebugInfo.ReferencedLocals)
		writeCallStack(w, err)
		_, _ = io.WriteString(w, strings.Repeat("=", reportWidth))
	}
	if !chain {
		return
	}
	for cause := goerrors.Unwrap(err); cause != nil; cause = goerrors.Unwrap(cause) {
		_, _ = io.WriteString(w, "\n\ncaused by: ")
		if next, ok := cause.(*Error); ok {
			writeReport(w, next, false)
			continue
		}
		_, _ = fmt.Fprint(w, cause)
	}
}

// writeExcerpt prints the lines around the error location with a marker
// under the failing span.
func writeExcerpt(w io.Writer, err *Error) {
	source := err.DebugInfo.TemplateSource
	if source == "" {
		return
	}
	lines := strings.Split(source, "\n")

	at := 0
	if err.Span != nil {
		at = min(max(int(err.Span.StartLine)-1, 0), len(lines)-1)
	}

	_, _ = fmt.Fprintf(w, "\n%s\n", ruler("== "+displayName(err.Name)+" ", '='))
	for i := max(at-excerptLines, 0); i <= min(at+excerptLines, len(lines)-1); i++ {
		mark := "|"
		if i == at {
			mark = ">"
		}
		_, _ = fmt.Fprintf(w, "%5d %s %s\n", i+1, mark, lines[i])
		if i == at && err.Span != nil && err.Span.StartLine == err.Span.EndLine {
			_, _ = fmt.Fprintf(w, "      | %s%s %s\n",
				strings.Repeat(" ", int(err.Span.StartCol)),
				strings.Repeat("^", markerWidth(err.Span)),
				err.Kind)
		}
	}
}

func writeVariables(w io.Writer, vars map[string]value.Value) {
	_, _ = io.WriteString(w, ruler("-- variables ", '-')+"\n")
	if len(vars) == 0 {
		_, _ = io.WriteString(w, "    (none referenced)\n")
		return
	}
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		_, _ = fmt.Fprintf(w, "    %s = %s\n", name, vars[name].Repr())
	}
}

// writeCallStack prints the FTL stack: the failing location first, then
// every macro call it was reached through.
func writeCallStack(w io.Writer, err *Error) {
	_, _ = io.WriteString(w, ruler("-- FTL stack ", '-')+"\n")
	failed := err.Expr
	if failed == "" {
		failed = err.Kind.String()
	}
	_, _ = fmt.Fprintf(w, "    - failed at: %s%s\n", failed, where(err))
	for _, name := range err.DebugInfo.CallStack {
		_, _ = fmt.Fprintf(w, "    - reached through: macro %q\n", name)
	}
}

func where(err *Error) string {
	switch {
	case err.Span == nil && err.Name == "":
		return ""
	case err.Span == nil:
		return fmt.Sprintf("  [in template %q]", err.Name)
	default:
		return fmt.Sprintf("  [in template %q at line %d, column %d]",
			displayName(err.Name), err.Span.StartLine, err.Span.StartCol+1)
	}
}

func markerWidth(span *syntax.Span) int {
	if span.EndCol <= span.StartCol {
		return 1
	}
	return int(span.EndCol - span.StartCol)
}

func displayName(name string) string {
	if name == "" {
		return "<string>"
	}
	return name
}

// ruler pads title with fill up to the report width.
func ruler(title string, fill rune) string {
	if len(title) >= reportWidth {
		return title
	}
	return title + strings.Repeat(string(fill), reportWidth-len(title))
}
