package value

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrIncomparable is returned when two values cannot be ordered or tested
// for equality.
var ErrIncomparable = errors.New("values are not comparable")

// Neg performs unary negation of a number.
func (v Value) Neg() (Value, error) {
	switch d := v.Number().data.(type) {
	case int64:
		if d == -d && d != 0 {
			return FromBigInt(new(big.Int).Neg(big.NewInt(d))), nil
		}
		return FromInt(-d), nil
	case float64:
		return FromFloat(-d), nil
	case *big.Int:
		return FromBigInt(new(big.Int).Neg(d)), nil
	case *big.Rat:
		return FromRat(new(big.Rat).Neg(d)), nil
	}
	return Undefined(), fmt.Errorf("cannot negate %s: %w", v.Kind(), ErrNotNumber)
}

// Equal tests two values for equality the way the == operator does: numbers
// by numeric value, strings and dates by content, booleans by value. Other
// combinations are incomparable.
func Equal(engine ArithmeticEngine, a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		c, err := engine.Compare(a, b)
		return c == 0, err
	}
	if s1, ok := a.AsString(); ok {
		if s2, ok := b.AsString(); ok {
			return s1 == s2, nil
		}
	}
	if m1, ok := a.AsMarkup(); ok {
		if m2, ok := b.AsMarkup(); ok {
			return m1.Text == m2.Text, nil
		}
	}
	if b1, ok := a.AsBool(); ok {
		if b2, ok := b.AsBool(); ok {
			return b1 == b2, nil
		}
	}
	if t1, ok := a.AsTime(); ok {
		if t2, ok := b.AsTime(); ok {
			return t1.Equal(t2), nil
		}
	}
	if a.IsNone() || b.IsNone() {
		return a.IsNone() && b.IsNone(), nil
	}
	return false, fmt.Errorf("%w: %s and %s", ErrIncomparable, a.Kind(), b.Kind())
}

// Compare orders two numbers, strings or dates.
func Compare(engine ArithmeticEngine, a, b Value) (int, error) {
	if a.IsNumber() && b.IsNumber() {
		return engine.Compare(a, b)
	}
	if s1, ok := a.AsString(); ok {
		if s2, ok := b.AsString(); ok {
			return strings.Compare(s1, s2), nil
		}
	}
	if t1, ok := a.AsTime(); ok {
		if t2, ok := b.AsTime(); ok {
			return t1.Compare(t2), nil
		}
	}
	return 0, fmt.Errorf("%w: %s and %s", ErrIncomparable, a.Kind(), b.Kind())
}

// ConcatSeq joins two sequences into a new one.
func ConcatSeq(a, b []Value) Value {
	out := make([]Value, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return FromSlice(out)
}
