package value

import (
	"context"
	"io"
	"iter"
	"time"
)

// State is the view of a running render that host objects receive. It lets
// directives and methods reach the output and the variable scopes without
// importing the engine package.
type State interface {
	// Context returns the context of the render.
	Context() context.Context

	// Lookup resolves a variable through the full scope chain.
	Lookup(name string) Value

	// Name returns the name of the template currently executing.
	Name() string

	// Out returns the active output sink. Inside capturing blocks this is
	// the capture buffer.
	Out() io.Writer
}

// Object is a custom value with sub-variables.
type Object interface {
	// GetAttr returns the named sub-variable, or Undefined.
	GetAttr(name string) Value
}

// -----------------------------------------------------------------------------
// Capability interfaces
// -----------------------------------------------------------------------------

// StringObject has the string capability.
type StringObject interface {
	Object
	AsString() string
}

// NumberObject has the number capability. AsNumber must return a value
// built with FromInt, FromFloat, FromBigInt or FromRat.
type NumberObject interface {
	Object
	AsNumber() Value
}

// BoolObject has the boolean capability.
type BoolObject interface {
	Object
	AsBool() bool
}

// DateObject has the date capability.
type DateObject interface {
	Object
	AsTime() time.Time
}

// SeqObject is an indexable sequence of known length.
type SeqObject interface {
	Object
	// SeqLen returns the length of the sequence.
	SeqLen() int
	// SeqItem returns the item at index, or Undefined when out of range.
	SeqItem(index int) Value
}

// MapObject is a hash with enumerable keys. Values are read with GetAttr,
// which gives key/value iteration in key order.
type MapObject interface {
	Object
	Keys() []string
}

// MutableObject is a hash that accepts assignments.
type MutableObject interface {
	MapObject
	SetAttr(name string, val Value)
}

// IterableObject is a collection: iterable, length possibly unknown.
type IterableObject interface {
	Object
	Iterate() iter.Seq[Value]
}

// ObjectWithLen reports an explicit length.
type ObjectWithLen interface {
	Object
	ObjectLen() int
}

// -----------------------------------------------------------------------------
// Callables
// -----------------------------------------------------------------------------

// Body is the nested content of a directive call. Render runs it against the
// caller's scopes with the given loop variable values bound to the loop
// variable names declared at the call site.
type Body interface {
	Render(loopVars ...Value) error
}

// Directive is a host-implemented user-defined directive, called with
// <@name a=1 b=2; x>...</@name>. Arguments are always named. The body is nil
// when the call has no nested content.
type Directive interface {
	Execute(state State, params map[string]Value, loopVarNames []string, body Body) error
}

// DirectiveFunc adapts a function to the Directive interface.
type DirectiveFunc func(state State, params map[string]Value, loopVarNames []string, body Body) error

// Execute calls f.
func (f DirectiveFunc) Execute(state State, params map[string]Value, loopVarNames []string, body Body) error {
	return f(state, params, loopVarNames, body)
}

// Method is a host-implemented function callable from expressions, as in
// ${format(x, 2)}.
type Method interface {
	Call(state State, args []Value) (Value, error)
}

// MethodFunc adapts a function to the Method interface.
type MethodFunc func(state State, args []Value) (Value, error)

// Call calls f.
func (f MethodFunc) Call(state State, args []Value) (Value, error) {
	return f(state, args)
}

// Macro is implemented by template-defined macros and functions. The engine
// recognises its own definitions through this interface; host code only
// sees their names.
type Macro interface {
	MacroName() string
	IsFunction() bool
}

// -----------------------------------------------------------------------------
// Markup
// -----------------------------------------------------------------------------

// MarkupFormat is the part of an output format the value model needs.
type MarkupFormat interface {
	// Name is the format's name, such as "HTML".
	Name() string
	// Escape converts plain text into markup of this format.
	Escape(s string) string
}

// Markup is text already in some output format. It prints without further
// escaping when the active output format is the same.
type Markup struct {
	Format MarkupFormat
	Text   string
}

// Concat joins two markup values of the same format.
func (m Markup) Concat(other Markup) Markup {
	return Markup{Format: m.Format, Text: m.Text + other.Text}
}

// -----------------------------------------------------------------------------
// Iterables
// -----------------------------------------------------------------------------

type iterableObject struct {
	maker func() iter.Seq[Value]
}

func (i *iterableObject) GetAttr(string) Value {
	return Undefined()
}

func (i *iterableObject) Iterate() iter.Seq[Value] {
	return i.maker()
}

func (i *iterableObject) String() string {
	return "<collection>"
}

// MakeIterable creates a collection value. The maker runs each time the
// collection is iterated.
//
// Example:
//
//	val := MakeIterable(func() iter.Seq[Value] {
//	    return func(yield func(Value) bool) {
//	        for i := 0; i < 10; i++ {
//	            if !yield(FromInt(int64(i))) {
//	                return
//	            }
//	        }
//	    }
//	})
func MakeIterable(maker func() iter.Seq[Value]) Value {
	return FromObject(&iterableObject{maker: maker})
}
