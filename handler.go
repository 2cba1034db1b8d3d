package ftl

import (
	"fmt"
	"io"
)

// ExceptionHandler is called when a statement fails. Returning nil lets the
// render continue with the next statement; returning an error (usually the
// one passed in) stops it. out is the active output sink.
//
// Handlers never see aborts, control flow, or errors raised inside
// <#attempt>.
type ExceptionHandler interface {
	HandleError(err *Error, env *Environment, out io.Writer) error
}

// ExceptionHandlerFunc adapts a function to the ExceptionHandler interface.
type ExceptionHandlerFunc func(err *Error, env *Environment, out io.Writer) error

// HandleError calls f.
func (f ExceptionHandlerFunc) HandleError(err *Error, env *Environment, out io.Writer) error {
	return f(err, env, out)
}

var (
	// RethrowHandler stops the render with the error. This is the default.
	RethrowHandler ExceptionHandler = ExceptionHandlerFunc(func(err *Error, _ *Environment, _ io.Writer) error {
		return err
	})

	// IgnoreHandler skips the failing statement and carries on.
	IgnoreHandler ExceptionHandler = ExceptionHandlerFunc(func(*Error, *Environment, io.Writer) error {
		return nil
	})

	// DebugHandler writes the error report into the output, then stops the
	// render.
	DebugHandler ExceptionHandler = ExceptionHandlerFunc(func(err *Error, _ *Environment, out io.Writer) error {
		_, _ = fmt.Fprintf(out, "\nFTL stack trace (\"ftl\" error):\n%+v\n", err)
		return err
	})

	// HTMLDebugHandler is DebugHandler for HTML pages: the report is
	// escaped and wrapped so it is visible even inside markup.
	HTMLDebugHandler ExceptionHandler = ExceptionHandlerFunc(func(err *Error, _ *Environment, out io.Writer) error {
		report := EscapeHTML(fmt.Sprintf("%+v", err))
		_, _ = fmt.Fprintf(out,
			"<!-- FTL ERROR MESSAGE STARTS HERE -->"+
				"<pre style=\"color:#A80000;background:#FFF;white-space:pre-wrap\">%s</pre>", report)
		return err
	})
)

// PlaceholderHandler writes text in place of every failing statement and
// continues.
func PlaceholderHandler(text string) ExceptionHandler {
	return ExceptionHandlerFunc(func(_ *Error, _ *Environment, out io.Writer) error {
		_, err := io.WriteString(out, text)
		return err
	})
}
