package value

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestConservativeArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		a, b Value
		want string
	}{
		{"int add", OpAdd, FromInt(2), FromInt(3), "5"},
		{"int sub", OpSubtract, FromInt(2), FromInt(3), "-1"},
		{"int mul", OpMultiply, FromInt(4), FromInt(5), "20"},
		{"exact div", OpDivide, FromInt(10), FromInt(2), "5"},
		{"inexact div", OpDivide, FromInt(1), FromInt(4), "0.25"},
		{"mod", OpModulus, FromInt(7), FromInt(3), "1"},
		{"float add", OpAdd, FromFloat(0.5), FromInt(1), "1.5"},
		{"overflow add", OpAdd, FromInt(math.MaxInt64), FromInt(1), "9223372036854775808"},
		{"overflow mul", OpMultiply, FromInt(math.MaxInt64), FromInt(2), "18446744073709551614"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Conservative.Arithmetic(tt.op, tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBigDecimalArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		a, b Value
		want string
	}{
		{"exact tenths", OpAdd, FromFloat(0.1), FromFloat(0.2), "0.3"},
		{"third", OpDivide, FromInt(1), FromInt(3), "0.333333333333"},
		{"two thirds rounds up", OpDivide, FromInt(2), FromInt(3), "0.666666666667"},
		{"integral stays int", OpMultiply, FromRat(big.NewRat(5, 2)), FromInt(2), "5"},
		{"mod", OpModulus, FromFloat(5.5), FromInt(2), "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BigDecimal.Arithmetic(tt.op, tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, engine := range []ArithmeticEngine{Conservative, BigDecimal} {
		if _, err := engine.Arithmetic(OpDivide, FromInt(1), FromInt(0)); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("%s: expected ErrDivisionByZero, got %v", engine.Name(), err)
		}
		if _, err := engine.Arithmetic(OpModulus, FromInt(1), FromInt(0)); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("%s: expected ErrDivisionByZero for modulus, got %v", engine.Name(), err)
		}
	}
}

func TestArithmeticRejectsNonNumbers(t *testing.T) {
	if _, err := Conservative.Arithmetic(OpAdd, FromString("1"), FromInt(1)); !errors.Is(err, ErrNotNumber) {
		t.Errorf("expected ErrNotNumber, got %v", err)
	}
}

func TestEngineByName(t *testing.T) {
	for _, name := range []string{"conservative", "bigdecimal"} {
		e, ok := EngineByName(name)
		if !ok || e.Name() != name {
			t.Errorf("EngineByName(%q) = %v, %v", name, e, ok)
		}
	}
	if _, ok := EngineByName("nope"); ok {
		t.Error("unknown engine should not resolve")
	}
}

func TestNeg(t *testing.T) {
	got, err := FromInt(math.MinInt64).Neg()
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "9223372036854775808" {
		t.Errorf("neg(MinInt64) = %s", got)
	}
	if _, err := FromString("x").Neg(); err == nil {
		t.Error("negating a string should fail")
	}
}
