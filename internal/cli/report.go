package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ftlgo/ftl"
)

// errReported is returned once a template error was written to the user.
var errReported = errors.New("template processing failed")

type reportStyles struct {
	kind, location, tip, detail lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		kind:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		location: r.NewStyle().Foreground(lipgloss.Color("4")),
		tip:      r.NewStyle().Foreground(lipgloss.Color("3")),
		detail:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// reportError prints err to w. Template errors get a styled summary
// followed by the debug report; other errors are returned unchanged.
func reportError(w io.Writer, err error) error {
	var terr *ftl.Error
	if !errors.As(err, &terr) {
		return err
	}

	st := newReportStyles(w)

	var b strings.Builder
	b.WriteString(st.kind.Render(terr.Kind.String() + ":"))
	b.WriteByte(' ')
	b.WriteString(terr.Message)
	if cause := errors.Unwrap(terr); cause != nil {
		b.WriteString(": " + cause.Error())
	}
	b.WriteByte('\n')

	if loc := location(terr); loc != "" {
		b.WriteString("  " + st.location.Render(loc) + "\n")
	}
	if terr.Expr != "" {
		b.WriteString("  " + st.detail.Render("expression: "+terr.Expr) + "\n")
	}
	if terr.Tip != "" {
		b.WriteString("  " + st.tip.Render("tip: "+terr.Tip) + "\n")
	}
	if terr.DebugInfo != nil {
		b.WriteString(st.detail.Render(fmt.Sprintf("%+v", terr)))
		b.WriteByte('\n')
	}

	if _, werr := io.WriteString(w, b.String()); werr != nil {
		return werr
	}
	return errReported
}

func location(err *ftl.Error) string {
	switch {
	case err.Name != "" && err.Span != nil:
		return "at " + err.Name + ":" + err.Span.String()
	case err.Span != nil:
		return fmt.Sprintf("at line %d, column %d", err.Span.StartLine, err.Span.StartCol+1)
	case err.Name != "":
		return "in " + err.Name
	}
	return ""
}

// ExitCode maps the error of Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errReported):
		return 2
	default:
		return 1
	}
}

// Reported reports whether err was already written to the user by Run.
func Reported(err error) bool {
	return errors.Is(err, errReported)
}
