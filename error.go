package ftl

import (
	goerrors "errors"

	"github.com/ftlgo/ftl/internal/errors"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// Error represents an error that occurred while loading or processing a
// template.
type Error = errors.Error

// ErrorKind describes the type of error.
type ErrorKind = errors.ErrorKind

// DebugInfo is the debug snapshot attached to errors when debug mode is on.
type DebugInfo = errors.DebugInfo

const (
	ErrSyntax                = errors.ErrSyntax
	ErrInvalidReference      = errors.ErrInvalidReference
	ErrNonNumerical          = errors.ErrNonNumerical
	ErrNonBoolean            = errors.ErrNonBoolean
	ErrNonString             = errors.ErrNonString
	ErrNotANamespace         = errors.ErrNotANamespace
	ErrNotCallable           = errors.ErrNotCallable
	ErrTypeMismatch          = errors.ErrTypeMismatch
	ErrMissingParameter      = errors.ErrMissingParameter
	ErrUnknownParameter      = errors.ErrUnknownParameter
	ErrTooManyArguments      = errors.ErrTooManyArguments
	ErrTemplateNotFound      = errors.ErrTemplateNotFound
	ErrMalformedTemplateName = errors.ErrMalformedTemplateName
	ErrInvalidOperation      = errors.ErrInvalidOperation
	ErrUnknownBuiltin        = errors.ErrUnknownBuiltin
	ErrBug                   = errors.ErrBug
	ErrAborted               = errors.ErrAborted
)

// NewError creates a new error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return errors.NewError(kind, msg)
}

// KindOf returns the kind of the first *Error in err's chain, or zero when
// there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsAborted reports whether err stopped a render through cancellation or
// fuel exhaustion. Aborts are never recovered by #attempt or exception
// handlers.
func IsAborted(err error) bool {
	return KindOf(err) == ErrAborted
}

func exprError(kind ErrorKind, expr parser.Expr, format string, args ...any) *Error {
	err := errors.Errorf(kind, format, args...)
	if expr != nil {
		err.WithExpr(parser.CanonicalForm(expr))
		// Nodes made up at runtime carry no position.
		if span := expr.Span(); span.StartLine > 0 {
			err.WithSpan(span)
		}
	}
	return err
}

// undefinedError reports that expr evaluated to nothing where a value was
// required.
func undefinedError(expr parser.Expr) *Error {
	return exprError(ErrInvalidReference, expr,
		"the following has evaluated to null or missing: %s", parser.CanonicalForm(expr))
}

// typeError reports that a value lacks the capability the context needs.
func typeError(kind ErrorKind, expr parser.Expr, expected string, actual value.Value) *Error {
	return exprError(kind, expr, "expected %s, but %s has evaluated to %s",
		expected, parser.CanonicalForm(expr), describeKind(actual)).
		WithTypes(expected, actual.Kind().String())
}

func describeKind(v value.Value) string {
	k := v.Kind().String()
	switch k[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an " + k
	}
	return "a " + k
}
