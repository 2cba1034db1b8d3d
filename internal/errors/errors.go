// Package errors defines the error type shared by the engine packages.
package errors

import (
	"fmt"
	"log/slog"

	"github.com/ftlgo/ftl/syntax"
)

// ErrorKind describes the type of error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota + 1
	ErrInvalidReference
	ErrNonNumerical
	ErrNonBoolean
	ErrNonString
	ErrNotANamespace
	ErrNotCallable
	ErrTypeMismatch
	ErrMissingParameter
	ErrUnknownParameter
	ErrTooManyArguments
	ErrTemplateNotFound
	ErrMalformedTemplateName
	ErrInvalidOperation
	ErrUnknownBuiltin
	ErrBug
	ErrAborted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrInvalidReference:
		return "invalid reference"
	case ErrNonNumerical:
		return "not a number"
	case ErrNonBoolean:
		return "not a boolean"
	case ErrNonString:
		return "not a string"
	case ErrNotANamespace:
		return "not a namespace"
	case ErrNotCallable:
		return "not callable"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrMissingParameter:
		return "missing parameter"
	case ErrUnknownParameter:
		return "unknown parameter"
	case ErrTooManyArguments:
		return "too many arguments"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrMalformedTemplateName:
		return "malformed template name"
	case ErrInvalidOperation:
		return "invalid operation"
	case ErrUnknownBuiltin:
		return "unknown built-in"
	case ErrBug:
		return "internal error"
	case ErrAborted:
		return "aborted"
	default:
		return "error"
	}
}

// Error is an error raised while loading or processing a template.
type Error struct {
	Kind    ErrorKind
	Message string
	Name    string       // template name
	Span    *syntax.Span // location in the template
	Source  string       // template source (for error display)

	// Expr is the canonical form of the offending expression.
	Expr string
	// Operator is the operator that triggered the error, such as "+=".
	Operator string
	// Expected and Actual name capabilities for type errors.
	Expected string
	Actual   string
	// Tip is a hint on how to fix the problem.
	Tip string

	DebugInfo *DebugInfo

	cause error
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	switch {
	case e.Name != "" && e.Span != nil:
		msg += fmt.Sprintf(" (in %s, line %d, column %d)", e.Name, e.Span.StartLine, e.Span.StartCol+1)
	case e.Span != nil:
		msg += fmt.Sprintf(" (at line %d, column %d)", e.Span.StartLine, e.Span.StartCol+1)
	case e.Name != "":
		msg += fmt.Sprintf(" (in %s)", e.Name)
	}
	if e.Tip != "" {
		msg += "\nTip: " + e.Tip
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Format implements fmt.Formatter. The %+v verb adds the source excerpt and
// the referenced variables when debug info is attached, followed by the
// chain of causes.
func (e *Error) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('+'):
		writeReport(f, e, true)
	case verb == 'q':
		_, _ = fmt.Fprintf(f, "%q", e.Error())
	default:
		_, _ = fmt.Fprint(f, e.Error())
	}
}

// LogValue implements slog.LogValuer.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("message", e.Message),
	}
	if e.Name != "" {
		attrs = append(attrs, slog.String("template", e.Name))
	}
	if e.Span != nil {
		attrs = append(attrs,
			slog.Int("line", int(e.Span.StartLine)),
			slog.Int("column", int(e.Span.StartCol)+1),
		)
	}
	if e.Expr != "" {
		attrs = append(attrs, slog.String("expression", e.Expr))
	}
	if e.Operator != "" {
		attrs = append(attrs, slog.String("operator", e.Operator))
	}
	if e.Expected != "" {
		attrs = append(attrs, slog.String("expected", e.Expected), slog.String("actual", e.Actual))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// WithSpan adds span information to an error.
func (e *Error) WithSpan(span syntax.Span) *Error {
	e.Span = &span
	return e
}

// WithName adds the template name to an error.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSource adds the template source to an error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithExpr records the offending expression.
func (e *Error) WithExpr(expr string) *Error {
	e.Expr = expr
	return e
}

// WithOperator records the operator that failed.
func (e *Error) WithOperator(op string) *Error {
	e.Operator = op
	return e
}

// WithTypes records the expected and the actual capability.
func (e *Error) WithTypes(expected, actual string) *Error {
	e.Expected = expected
	e.Actual = actual
	return e
}

// WithTip adds a hint to an error.
func (e *Error) WithTip(tip string) *Error {
	e.Tip = tip
	return e
}

// WithDebugInfo attaches a debug snapshot.
func (e *Error) WithDebugInfo(info DebugInfo) *Error {
	e.DebugInfo = &info
	return e
}

// Wrap sets the cause of an error.
func (e *Error) Wrap(err error) *Error {
	e.cause = err
	return e
}
