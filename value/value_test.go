package value

import (
	"math/big"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Basic values
// -----------------------------------------------------------------------------

func TestValueByIndex(t *testing.T) {
	val := FromSlice([]Value{FromInt(1), FromInt(2), FromInt(3)})

	item0 := val.GetItem(FromInt(0))
	if i, ok := item0.AsInt(); !ok || i != 1 {
		t.Errorf("GetItem(0) = %v, want 1", item0)
	}

	item4 := val.GetItem(FromInt(4))
	if !item4.IsUndefined() {
		t.Errorf("GetItem(4) = %v, want undefined", item4)
	}
}

func TestUndefinedIsNotNone(t *testing.T) {
	var zero Value
	if !zero.IsUndefined() {
		t.Error("zero Value should be undefined")
	}
	if Undefined().IsNone() {
		t.Error("undefined must not be none")
	}
	if None().IsUndefined() {
		t.Error("none must not be undefined")
	}
	if got := FromAny(nil); !got.IsNone() {
		t.Errorf("FromAny(nil) = %v, want none", got.Kind())
	}
}

func TestFloatToString(t *testing.T) {
	tests := []struct {
		val  Value
		want string
	}{
		{FromFloat(42.0), "42"},
		{FromFloat(0.5), "0.5"},
		{FromFloat(-1.25), "-1.25"},
		{FromInt(7), "7"},
		{FromRat(big.NewRat(1, 4)), "0.25"},
		{FromRat(big.NewRat(1, 3)), "0.3333333333333333"},
	}
	for _, tt := range tests {
		if got := tt.val.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFromAnyStruct(t *testing.T) {
	type user struct {
		Name    string `json:"name"`
		Age     int
		Ignored string `json:"-"`
		private string
	}
	v := FromAny(&user{Name: "Ann", Age: 31, Ignored: "x", private: "y"})
	h, ok := v.AsHash()
	if !ok {
		t.Fatalf("expected hash, got %s", v.Kind())
	}
	if got := h.Keys(); len(got) != 2 || got[0] != "name" || got[1] != "Age" {
		t.Errorf("keys = %v, want [name Age]", got)
	}
	if n, _ := v.GetAttr("Age").AsInt(); n != 31 {
		t.Errorf("Age = %d, want 31", n)
	}
}

func TestFromAnyWholeFloatsBecomeInts(t *testing.T) {
	v := FromAny(3.0)
	if !v.IsInt() {
		t.Errorf("3.0 should convert to an integer, got %T", v.Raw())
	}
	if FromAny(3.5).IsInt() {
		t.Error("3.5 must stay a float")
	}
}

func TestFromMapSortsKeys(t *testing.T) {
	v := FromMap(map[string]Value{"b": FromInt(2), "a": FromInt(1), "c": FromInt(3)})
	h, _ := v.AsHash()
	keys := h.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}

// -----------------------------------------------------------------------------
// Hash
// -----------------------------------------------------------------------------

func TestHashKeepsInsertionOrder(t *testing.T) {
	h := NewHash()
	h.Set("z", FromInt(1))
	h.Set("a", FromInt(2))
	h.Set("m", FromInt(3))
	h.Set("z", FromInt(4))

	want := []string{"z", "a", "m"}
	for i, k := range h.Keys() {
		if k != want[i] {
			t.Fatalf("keys = %v, want %v", h.Keys(), want)
		}
	}
	if v, _ := h.Get("z"); v.String() != "4" {
		t.Errorf("z = %v, want 4", v)
	}

	h.Delete("a")
	if h.Len() != 2 || h.Has("a") {
		t.Errorf("delete failed: %v", h)
	}
}

func TestHashMerge(t *testing.T) {
	left := NewHash()
	left.Set("a", FromInt(1))
	left.Set("b", FromInt(2))
	right := NewHash()
	right.Set("b", FromInt(20))
	right.Set("c", FromInt(30))

	merged := left.Merge(right)
	if got := merged.String(); got != `{"a": 1, "b": 20, "c": 30}` {
		t.Errorf("merged = %s", got)
	}
	if v, _ := left.Get("b"); v.String() != "2" {
		t.Error("merge must not modify the receiver")
	}
}

func TestMergeMaps(t *testing.T) {
	base := FromAny(map[string]any{"name": "base", "only": 1})
	over := FromAny(map[string]any{"name": "over"})
	merged := MergeMaps(base, over)

	if got := merged.GetAttr("name").String(); got != "over" {
		t.Errorf("name = %q, want over", got)
	}
	if got := merged.GetAttr("only").String(); got != "1" {
		t.Errorf("only = %q, want 1", got)
	}
	if !merged.IsHash() {
		t.Error("merged value should have the hash capability")
	}
}

// -----------------------------------------------------------------------------
// Capabilities
// -----------------------------------------------------------------------------

// stringNumber is both a string and a number.
type stringNumber struct{}

func (stringNumber) GetAttr(string) Value { return Undefined() }
func (stringNumber) AsString() string     { return "forty-two" }
func (stringNumber) AsNumber() Value      { return FromInt(42) }

func TestMultipleCapabilities(t *testing.T) {
	v := FromObject(stringNumber{})
	if s, ok := v.AsString(); !ok || s != "forty-two" {
		t.Errorf("AsString = %q, %v", s, ok)
	}
	if !v.IsNumber() {
		t.Error("expected number capability")
	}
	if n, ok := v.AsInt(); !ok || n != 42 {
		t.Errorf("AsInt = %d, %v", n, ok)
	}
	if v.Kind() != KindString {
		t.Errorf("Kind = %s, want string", v.Kind())
	}
}

type testSeq struct {
	items []Value
}

func (s *testSeq) GetAttr(string) Value { return Undefined() }
func (s *testSeq) SeqLen() int          { return len(s.items) }
func (s *testSeq) SeqItem(i int) Value {
	if i >= 0 && i < len(s.items) {
		return s.items[i]
	}
	return Undefined()
}

func TestSeqObject(t *testing.T) {
	v := FromObject(&testSeq{items: []Value{FromInt(1), FromInt(2)}})
	if v.Kind() != KindSeq {
		t.Errorf("Kind = %s, want sequence", v.Kind())
	}
	if n, ok := v.Len(); !ok || n != 2 {
		t.Errorf("Len = %d, %v", n, ok)
	}
	if got := v.GetItem(FromInt(1)).String(); got != "2" {
		t.Errorf("item 1 = %q", got)
	}
	items, ok := v.Iterate()
	if !ok || len(items) != 2 {
		t.Errorf("Iterate = %v, %v", items, ok)
	}
}

func TestDateCapability(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v := FromAny(now)
	if v.Kind() != KindDate {
		t.Fatalf("Kind = %s", v.Kind())
	}
	if got, _ := v.AsTime(); !got.Equal(now) {
		t.Errorf("AsTime = %v", got)
	}
}

func TestEqualAndCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		eq   bool
		cmp  int
	}{
		{FromInt(1), FromFloat(1.0), true, 0},
		{FromInt(1), FromInt(2), false, -1},
		{FromString("b"), FromString("a"), false, 1},
		{FromRat(big.NewRat(1, 2)), FromFloat(0.5), true, 0},
	}
	for _, tt := range tests {
		eq, err := Equal(Conservative, tt.a, tt.b)
		if err != nil || eq != tt.eq {
			t.Errorf("Equal(%v, %v) = %v, %v", tt.a, tt.b, eq, err)
		}
		cmp, err := Compare(Conservative, tt.a, tt.b)
		if err != nil || cmp != tt.cmp {
			t.Errorf("Compare(%v, %v) = %v, %v", tt.a, tt.b, cmp, err)
		}
	}

	if _, err := Equal(Conservative, FromString("1"), FromInt(1)); err == nil {
		t.Error("string == number should be incomparable")
	}
}
