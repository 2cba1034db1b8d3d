package value

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
)

// Operator selects a binary arithmetic operation. Compound assignments,
// increments and binary expressions all reduce to one of these.
type Operator int

const (
	OpAdd Operator = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulus
)

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulus:
		return "%"
	default:
		return "?"
	}
}

var (
	// ErrDivisionByZero is returned for x / 0 and x % 0.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNotNumber is returned when an operand lacks the number capability.
	ErrNotNumber = errors.New("operand is not a number")
)

// ArithmeticEngine performs arithmetic on number values. Engines are
// stateless and shared across renders.
type ArithmeticEngine interface {
	// Name identifies the engine in settings, e.g. "bigdecimal".
	Name() string
	// Arithmetic applies op to two numbers.
	Arithmetic(op Operator, left, right Value) (Value, error)
	// Compare orders two numbers.
	Compare(left, right Value) (int, error)
}

// Conservative keeps integers as integers while they fit, promotes to big
// integers on overflow and falls back to float64 when a float is involved or
// a division is inexact.
var Conservative ArithmeticEngine = conservativeEngine{}

// BigDecimal computes exactly with rationals and rounds quotients half-up to
// twelve fractional digits.
var BigDecimal ArithmeticEngine = DecimalEngine{Scale: 12}

// EngineByName returns a built-in engine.
func EngineByName(name string) (ArithmeticEngine, bool) {
	switch name {
	case "conservative":
		return Conservative, true
	case "bigdecimal":
		return BigDecimal, true
	}
	return nil, false
}

type conservativeEngine struct{}

func (conservativeEngine) Name() string { return "conservative" }

func (e conservativeEngine) Arithmetic(op Operator, left, right Value) (Value, error) {
	a, b := left.Number(), right.Number()
	if a.IsUndefined() || b.IsUndefined() {
		return Undefined(), ErrNotNumber
	}

	switch x := a.data.(type) {
	case int64:
		if y, ok := b.data.(int64); ok {
			return intArithmetic(op, x, y)
		}
	}

	_, af := a.data.(float64)
	_, bf := b.data.(float64)
	if af || bf {
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return floatArithmetic(op, x, y)
	}

	_, ar := a.data.(*big.Rat)
	_, br := b.data.(*big.Rat)
	if ar || br {
		return BigDecimal.Arithmetic(op, a, b)
	}

	return bigIntArithmetic(op, toBigInt(a), toBigInt(b))
}

func (conservativeEngine) Compare(left, right Value) (int, error) {
	return compareNumbers(left, right)
}

func intArithmetic(op Operator, x, y int64) (Value, error) {
	switch op {
	case OpAdd:
		s := x + y
		if (s > x) == (y > 0) {
			return FromInt(s), nil
		}
	case OpSubtract:
		d := x - y
		if (d < x) == (y > 0) {
			return FromInt(d), nil
		}
	case OpMultiply:
		if x == 0 || y == 0 {
			return FromInt(0), nil
		}
		hi, lo := bits.Mul64(uint64(abs64(x)), uint64(abs64(y)))
		if hi == 0 && lo <= math.MaxInt64 && x != math.MinInt64 && y != math.MinInt64 {
			if (x < 0) != (y < 0) {
				return FromInt(-int64(lo)), nil
			}
			return FromInt(int64(lo)), nil
		}
	case OpDivide:
		if y == 0 {
			return Undefined(), ErrDivisionByZero
		}
		if x%y == 0 && !(x == math.MinInt64 && y == -1) {
			return FromInt(x / y), nil
		}
		if x%y != 0 {
			return FromFloat(float64(x) / float64(y)), nil
		}
	case OpModulus:
		if y == 0 {
			return Undefined(), ErrDivisionByZero
		}
		if y == -1 {
			return FromInt(0), nil
		}
		return FromInt(x % y), nil
	}
	return bigIntArithmetic(op, big.NewInt(x), big.NewInt(y))
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func floatArithmetic(op Operator, x, y float64) (Value, error) {
	switch op {
	case OpAdd:
		return FromFloat(x + y), nil
	case OpSubtract:
		return FromFloat(x - y), nil
	case OpMultiply:
		return FromFloat(x * y), nil
	case OpDivide:
		if y == 0 {
			return Undefined(), ErrDivisionByZero
		}
		return FromFloat(x / y), nil
	case OpModulus:
		if y == 0 {
			return Undefined(), ErrDivisionByZero
		}
		return FromFloat(math.Mod(x, y)), nil
	}
	return Undefined(), fmt.Errorf("unknown operator %d", op)
}

func bigIntArithmetic(op Operator, x, y *big.Int) (Value, error) {
	z := new(big.Int)
	switch op {
	case OpAdd:
		return FromBigInt(z.Add(x, y)), nil
	case OpSubtract:
		return FromBigInt(z.Sub(x, y)), nil
	case OpMultiply:
		return FromBigInt(z.Mul(x, y)), nil
	case OpDivide:
		if y.Sign() == 0 {
			return Undefined(), ErrDivisionByZero
		}
		m := new(big.Int)
		z.QuoRem(x, y, m)
		if m.Sign() == 0 {
			return FromBigInt(z), nil
		}
		f, _ := new(big.Rat).SetFrac(x, y).Float64()
		return FromFloat(f), nil
	case OpModulus:
		if y.Sign() == 0 {
			return Undefined(), ErrDivisionByZero
		}
		return FromBigInt(z.Rem(x, y)), nil
	}
	return Undefined(), fmt.Errorf("unknown operator %d", op)
}

func toBigInt(v Value) *big.Int {
	switch d := v.data.(type) {
	case int64:
		return big.NewInt(d)
	case *big.Int:
		return d
	}
	return new(big.Int)
}

// DecimalEngine computes with exact rationals. Quotients are rounded half-up
// to Scale fractional digits; sums, differences and products stay exact.
type DecimalEngine struct {
	Scale int
}

func (DecimalEngine) Name() string { return "bigdecimal" }

func (e DecimalEngine) Arithmetic(op Operator, left, right Value) (Value, error) {
	x, ok := left.AsRat()
	if !ok {
		return Undefined(), ErrNotNumber
	}
	y, ok := right.AsRat()
	if !ok {
		return Undefined(), ErrNotNumber
	}

	z := new(big.Rat)
	switch op {
	case OpAdd:
		z.Add(x, y)
	case OpSubtract:
		z.Sub(x, y)
	case OpMultiply:
		z.Mul(x, y)
	case OpDivide:
		if y.Sign() == 0 {
			return Undefined(), ErrDivisionByZero
		}
		z = roundHalfUp(z.Quo(x, y), e.Scale)
	case OpModulus:
		if y.Sign() == 0 {
			return Undefined(), ErrDivisionByZero
		}
		// x - trunc(x/y)*y
		q := new(big.Rat).Quo(x, y)
		t := new(big.Int).Quo(q.Num(), q.Denom())
		z.Sub(x, new(big.Rat).Mul(new(big.Rat).SetInt(t), y))
	default:
		return Undefined(), fmt.Errorf("unknown operator %d", op)
	}
	return FromRat(z), nil
}

func (DecimalEngine) Compare(left, right Value) (int, error) {
	return compareNumbers(left, right)
}

// roundHalfUp rounds r to scale fractional digits, ties away from zero.
func roundHalfUp(r *big.Rat, scale int) *big.Rat {
	if scale < 0 {
		scale = 0
	}
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	num := new(big.Int).Mul(new(big.Int).Abs(r.Num()), pow)
	q, m := new(big.Int).QuoRem(num, r.Denom(), new(big.Int))
	if m.Lsh(m, 1).Cmp(r.Denom()) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if r.Sign() < 0 {
		q.Neg(q)
	}
	return new(big.Rat).SetFrac(q, pow)
}

func compareNumbers(left, right Value) (int, error) {
	a, b := left.Number(), right.Number()
	if a.IsUndefined() || b.IsUndefined() {
		return 0, ErrNotNumber
	}
	if x, ok := a.data.(int64); ok {
		if y, ok := b.data.(int64); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.AsRat(); ok {
		if y, ok := b.AsRat(); ok {
			return x.Cmp(y), nil
		}
	}
	x, _ := a.AsFloat()
	y, _ := b.AsFloat()
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}
