// Package value provides the dynamic value model of the template engine.
//
// Templates work with values whose type is only known at runtime. The Value
// type wraps any of the supported representations and answers capability
// queries about it: a value can be a string, a number, a boolean, a date, a
// hash, a sequence, a collection, a directive, a method or a piece of markup,
// and some values are several of those at once.
//
// # Capabilities
//
// Built-in representations map onto capabilities directly:
//   - string: String
//   - int64, float64, *big.Int, *big.Rat: Number
//   - bool: Boolean
//   - time.Time: Date
//   - *Hash: Hash (insertion ordered)
//   - []Value: Sequence
//   - Markup: MarkupOutput
//
// Custom types implement the optional interfaces in object.go
// (StringObject, NumberObject, MapObject, SeqObject, ...) and may implement
// more than one of them. The As* accessors consult both.
//
// # Undefined and None
//
// Undefined is the absence of a value: a variable that was never assigned,
// a missing hash key. None is a present value that happens to be null-like.
// The engine raises invalid-reference errors for Undefined only.
//
// # Example Usage
//
//	model := value.FromAny(map[string]any{
//	    "user":  "Alice",
//	    "items": []int{1, 2, 3},
//	})
//	if items, ok := model.GetAttr("items").AsSlice(); ok {
//	    fmt.Println(len(items))
//	}
package value

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind describes the primary capability of a Value.
//
// A value may have more capabilities than its kind suggests; for instance a
// custom object can be both a string and a number. Kind reports the first
// matching capability in the order listed below.
type Kind int

const (
	// KindUndefined is a missing value.
	KindUndefined Kind = iota
	// KindNone is an explicit null.
	KindNone
	// KindBool is a boolean.
	KindBool
	// KindNumber is an integer, float, big integer or decimal.
	KindNumber
	// KindString is a plain text string.
	KindString
	// KindMarkup is text already in some output format (HTML, XML, ...).
	KindMarkup
	// KindDate is a point in time.
	KindDate
	// KindSeq is an indexable sequence of known length.
	KindSeq
	// KindHash is a string-keyed mapping.
	KindHash
	// KindCollection is an iterable of possibly unknown length.
	KindCollection
	// KindMacro is a template-defined macro.
	KindMacro
	// KindFunction is a template-defined function.
	KindFunction
	// KindDirective is a host-provided directive.
	KindDirective
	// KindMethod is a host-provided method callable from expressions.
	KindMethod
	// KindPlain is an opaque object.
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNone:
		return "none"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMarkup:
		return "markup output"
	case KindDate:
		return "date"
	case KindSeq:
		return "sequence"
	case KindHash:
		return "hash"
	case KindCollection:
		return "collection"
	case KindMacro:
		return "macro"
	case KindFunction:
		return "function"
	case KindDirective:
		return "directive"
	case KindMethod:
		return "method"
	default:
		return "object"
	}
}

// Value is a dynamically typed template value.
//
// The zero Value is Undefined.
type Value struct {
	data any
}

type undefinedType struct{}
type noneType struct{}

// Undefined returns the undefined value.
func Undefined() Value {
	return Value{}
}

// None returns the null value.
func None() Value {
	return Value{data: noneType{}}
}

// True returns the boolean true value.
func True() Value {
	return Value{data: true}
}

// False returns the boolean false value.
func False() Value {
	return Value{data: false}
}

// FromBool creates a Value from a boolean.
func FromBool(v bool) Value {
	return Value{data: v}
}

// FromInt creates a Value from an int64.
func FromInt(v int64) Value {
	return Value{data: v}
}

// FromFloat creates a Value from a float64.
func FromFloat(v float64) Value {
	return Value{data: v}
}

// FromBigInt creates a Value from a big integer. Values that fit into an
// int64 are stored as int64.
func FromBigInt(v *big.Int) Value {
	if v.IsInt64() {
		return FromInt(v.Int64())
	}
	return Value{data: new(big.Int).Set(v)}
}

// FromRat creates a decimal Value. Integral values that fit into an int64
// are stored as int64.
func FromRat(v *big.Rat) Value {
	if v.IsInt() && v.Num().IsInt64() {
		return FromInt(v.Num().Int64())
	}
	return Value{data: new(big.Rat).Set(v)}
}

// FromString creates a Value from a string.
func FromString(v string) Value {
	return Value{data: v}
}

// FromTime creates a date Value.
func FromTime(v time.Time) Value {
	return Value{data: v}
}

// FromSlice creates a sequence Value. The slice is not copied.
func FromSlice(v []Value) Value {
	if v == nil {
		v = []Value{}
	}
	return Value{data: v}
}

// FromHash creates a hash Value.
func FromHash(h *Hash) Value {
	if h == nil {
		h = NewHash()
	}
	return Value{data: h}
}

// FromMap creates a hash Value from a Go map. Keys are inserted in sorted
// order since Go maps carry no order of their own.
func FromMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := NewHash()
	for _, k := range keys {
		h.Set(k, m[k])
	}
	return FromHash(h)
}

// FromMarkup creates a markup Value in the given format.
func FromMarkup(format MarkupFormat, markup string) Value {
	return Value{data: Markup{Format: format, Text: markup}}
}

// FromObject wraps a custom object.
func FromObject(o Object) Value {
	if o == nil {
		return None()
	}
	return Value{data: o}
}

// FromDirective wraps a host directive.
func FromDirective(d Directive) Value {
	return Value{data: d}
}

// FromMethod wraps a host method.
func FromMethod(m Method) Value {
	return Value{data: m}
}

// FromMethodFunc wraps a plain Go function as a method.
func FromMethodFunc(f func(state State, args []Value) (Value, error)) Value {
	return Value{data: MethodFunc(f)}
}

// FromMacro wraps a template-defined macro or function.
func FromMacro(m Macro) Value {
	return Value{data: m}
}

// FromAny converts a Go value into a Value.
//
// Maps become hashes (keys sorted), slices and arrays become sequences,
// structs become hashes keyed by field name (or json tag), pointers are
// dereferenced and nil becomes None. Values that already are Value, Object,
// Directive, Method or Macro are wrapped as-is.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return None()
	case Value:
		return t
	case *Hash:
		return FromHash(t)
	case time.Time:
		return FromTime(t)
	case *big.Int:
		return FromBigInt(t)
	case *big.Rat:
		return FromRat(t)
	case Markup:
		return Value{data: t}
	case Macro:
		return FromMacro(t)
	case Directive:
		return FromDirective(t)
	case Method:
		return FromMethod(t)
	case func(State, []Value) (Value, error):
		return FromMethodFunc(t)
	case Object:
		return FromObject(t)
	}
	return fromReflectValue(reflect.ValueOf(v))
}

func fromReflectValue(rv reflect.Value) Value {
	if !rv.IsValid() {
		return None()
	}
	if rv.CanInterface() {
		switch t := rv.Interface().(type) {
		case Value:
			return t
		case time.Time:
			return FromTime(t)
		case Object:
			if rv.Kind() != reflect.Ptr || !rv.IsNil() {
				return FromObject(t)
			}
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return FromBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return FromBigInt(new(big.Int).SetUint64(u))
		}
		return FromInt(int64(u))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// YAML and JSON decoders hand whole numbers over as floats.
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return FromInt(int64(f))
		}
		return FromFloat(f)
	case reflect.String:
		return FromString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return FromSlice(nil)
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = fromReflectValue(rv.Index(i))
		}
		return FromSlice(items)
	case reflect.Map:
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key()
			var key string
			if k.Kind() == reflect.String {
				key = k.String()
			} else {
				key = fmt.Sprint(k.Interface())
			}
			m[key] = fromReflectValue(iter.Value())
		}
		return FromMap(m)
	case reflect.Struct:
		return fromStruct(rv)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return None()
		}
		return fromReflectValue(rv.Elem())
	default:
		return Value{data: rv.Interface()}
	}
}

func fromStruct(rv reflect.Value) Value {
	t := rv.Type()
	h := NewHash()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		h.Set(name, fromReflectValue(rv.Field(i)))
	}
	return FromHash(h)
}

// Kind returns the primary capability of the value.
func (v Value) Kind() Kind {
	switch d := v.data.(type) {
	case nil, undefinedType:
		return KindUndefined
	case noneType:
		return KindNone
	case bool:
		return KindBool
	case int64, float64, *big.Int, *big.Rat:
		return KindNumber
	case string:
		return KindString
	case Markup:
		return KindMarkup
	case time.Time:
		return KindDate
	case []Value:
		return KindSeq
	case *Hash:
		return KindHash
	case Macro:
		if d.IsFunction() {
			return KindFunction
		}
		return KindMacro
	case Directive:
		return KindDirective
	case Method:
		return KindMethod
	case Object:
		return objectKind(d)
	default:
		return KindPlain
	}
}

func objectKind(o Object) Kind {
	switch o.(type) {
	case StringObject:
		return KindString
	case NumberObject:
		return KindNumber
	case BoolObject:
		return KindBool
	case DateObject:
		return KindDate
	case SeqObject:
		return KindSeq
	case MapObject:
		return KindHash
	case IterableObject:
		return KindCollection
	default:
		return KindPlain
	}
}

// Raw returns the underlying Go representation.
func (v Value) Raw() any {
	return v.data
}

// IsUndefined reports whether the value is missing.
func (v Value) IsUndefined() bool {
	switch v.data.(type) {
	case nil, undefinedType:
		return true
	}
	return false
}

// IsNone reports whether the value is an explicit null.
func (v Value) IsNone() bool {
	_, ok := v.data.(noneType)
	return ok
}

// IsNumber reports whether the value has the number capability.
func (v Value) IsNumber() bool {
	switch d := v.data.(type) {
	case int64, float64, *big.Int, *big.Rat:
		return true
	case NumberObject:
		return d.AsNumber().IsNumber()
	}
	return false
}

// IsInt reports whether the value is an integral number stored as an
// integer (int64 or big integer).
func (v Value) IsInt() bool {
	switch v.Number().data.(type) {
	case int64, *big.Int:
		return true
	}
	return false
}

// Number returns the numeric representation of the value, or Undefined if
// the value has no number capability.
func (v Value) Number() Value {
	switch d := v.data.(type) {
	case int64, float64, *big.Int, *big.Rat:
		return v
	case NumberObject:
		n := d.AsNumber()
		if n.IsNumber() {
			return n.Number()
		}
	}
	return Undefined()
}

// AsInt returns the value as an int64 if it is an integral number in range.
func (v Value) AsInt() (int64, bool) {
	switch d := v.Number().data.(type) {
	case int64:
		return d, true
	case float64:
		if d == math.Trunc(d) && d >= math.MinInt64 && d <= math.MaxInt64 {
			return int64(d), true
		}
	case *big.Rat:
		if d.IsInt() && d.Num().IsInt64() {
			return d.Num().Int64(), true
		}
	}
	return 0, false
}

// AsFloat returns the value as a float64 if it is a number.
func (v Value) AsFloat() (float64, bool) {
	switch d := v.Number().data.(type) {
	case int64:
		return float64(d), true
	case float64:
		return d, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(d).Float64()
		return f, true
	case *big.Rat:
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

// AsRat returns the value as an exact rational if it is a finite number.
func (v Value) AsRat() (*big.Rat, bool) {
	switch d := v.Number().data.(type) {
	case int64:
		return new(big.Rat).SetInt64(d), true
	case float64:
		if math.IsInf(d, 0) || math.IsNaN(d) {
			return nil, false
		}
		// Parse the shortest representation so 0.1 stays 0.1.
		r, ok := new(big.Rat).SetString(strconv.FormatFloat(d, 'g', -1, 64))
		return r, ok
	case *big.Int:
		return new(big.Rat).SetInt(d), true
	case *big.Rat:
		return new(big.Rat).Set(d), true
	}
	return nil, false
}

// AsString returns the value as a string if it has the string capability.
// Numbers and booleans are not strings; use the engine's coercion for that.
func (v Value) AsString() (string, bool) {
	switch d := v.data.(type) {
	case string:
		return d, true
	case StringObject:
		return d.AsString(), true
	}
	return "", false
}

// AsBool returns the value as a bool if it has the boolean capability.
func (v Value) AsBool() (bool, bool) {
	switch d := v.data.(type) {
	case bool:
		return d, true
	case BoolObject:
		return d.AsBool(), true
	}
	return false, false
}

// AsTime returns the value as a time if it has the date capability.
func (v Value) AsTime() (time.Time, bool) {
	switch d := v.data.(type) {
	case time.Time:
		return d, true
	case DateObject:
		return d.AsTime(), true
	}
	return time.Time{}, false
}

// AsMarkup returns the markup payload if the value is markup output.
func (v Value) AsMarkup() (Markup, bool) {
	m, ok := v.data.(Markup)
	return m, ok
}

// AsSlice returns the items if the value has the sequence capability.
func (v Value) AsSlice() ([]Value, bool) {
	switch d := v.data.(type) {
	case []Value:
		return d, true
	case SeqObject:
		n := d.SeqLen()
		items := make([]Value, n)
		for i := range items {
			items[i] = d.SeqItem(i)
		}
		return items, true
	}
	return nil, false
}

// AsHash returns an ordered view of the value if it has the hash
// capability. For MapObject implementations the view is a snapshot.
func (v Value) AsHash() (*Hash, bool) {
	switch d := v.data.(type) {
	case *Hash:
		return d, true
	case MapObject:
		h := NewHash()
		for _, k := range d.Keys() {
			h.Set(k, d.GetAttr(k))
		}
		return h, true
	}
	return nil, false
}

// IsHash reports whether the value has the hash capability.
func (v Value) IsHash() bool {
	switch v.data.(type) {
	case *Hash, MapObject:
		return true
	}
	return false
}

// IsSeq reports whether the value has the sequence capability.
func (v Value) IsSeq() bool {
	switch v.data.(type) {
	case []Value, SeqObject:
		return true
	}
	return false
}

// AsObject returns the wrapped custom object.
func (v Value) AsObject() (Object, bool) {
	o, ok := v.data.(Object)
	return o, ok
}

// AsMacro returns the template-defined macro or function.
func (v Value) AsMacro() (Macro, bool) {
	m, ok := v.data.(Macro)
	return m, ok
}

// AsDirective returns the host directive.
func (v Value) AsDirective() (Directive, bool) {
	d, ok := v.data.(Directive)
	return d, ok
}

// AsMethod returns the host method.
func (v Value) AsMethod() (Method, bool) {
	m, ok := v.data.(Method)
	return m, ok
}

// Len returns the length of sequences, hashes, strings and objects that
// know their size.
func (v Value) Len() (int, bool) {
	switch d := v.data.(type) {
	case string:
		return len([]rune(d)), true
	case []Value:
		return len(d), true
	case *Hash:
		return d.Len(), true
	case ObjectWithLen:
		return d.ObjectLen(), true
	case SeqObject:
		return d.SeqLen(), true
	case MapObject:
		return len(d.Keys()), true
	case StringObject:
		return len([]rune(d.AsString())), true
	}
	return 0, false
}

// GetAttr returns the named sub-variable of a hash or object, or Undefined.
func (v Value) GetAttr(name string) Value {
	switch d := v.data.(type) {
	case *Hash:
		val, _ := d.Get(name)
		return val
	case Object:
		return d.GetAttr(name)
	}
	return Undefined()
}

// GetItem indexes sequences by number and hashes by string.
func (v Value) GetItem(key Value) Value {
	if idx, ok := key.AsInt(); ok && key.IsNumber() {
		switch d := v.data.(type) {
		case []Value:
			if idx >= 0 && idx < int64(len(d)) {
				return d[idx]
			}
			return Undefined()
		case SeqObject:
			if idx >= 0 && idx < int64(d.SeqLen()) {
				return d.SeqItem(int(idx))
			}
			return Undefined()
		case string:
			r := []rune(d)
			if idx >= 0 && idx < int64(len(r)) {
				return FromString(string(r[idx]))
			}
			return Undefined()
		}
	}
	if s, ok := key.AsString(); ok {
		return v.GetAttr(s)
	}
	return Undefined()
}

// Iterate returns the items of a sequence or collection, the keys of a hash,
// and false for anything else.
func (v Value) Iterate() ([]Value, bool) {
	switch d := v.data.(type) {
	case []Value:
		return d, true
	case *Hash:
		keys := d.Keys()
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = FromString(k)
		}
		return out, true
	case IterableObject:
		var out []Value
		for item := range d.Iterate() {
			out = append(out, item)
		}
		return out, true
	case SeqObject:
		return v.AsSlice()
	case MapObject:
		keys := d.Keys()
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = FromString(k)
		}
		return out, true
	}
	return nil, false
}

// IsCollection reports whether Iterate succeeds for the value.
func (v Value) IsCollection() bool {
	switch v.data.(type) {
	case []Value, *Hash, IterableObject, SeqObject, MapObject:
		return true
	}
	return false
}

// String returns a debug-friendly rendering of the value. Templates do not
// use it for output; interpolation goes through the engine's formatter.
func (v Value) String() string {
	switch d := v.data.(type) {
	case nil, undefinedType:
		return ""
	case noneType:
		return ""
	case bool:
		if d {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return FormatFloat(d)
	case *big.Int:
		return d.String()
	case *big.Rat:
		return FormatRat(d)
	case string:
		return d
	case Markup:
		return d.Text
	case time.Time:
		return d.Format(time.RFC3339)
	case []Value:
		parts := make([]string, len(d))
		for i, item := range d {
			parts[i] = item.Repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Hash:
		return d.String()
	case Macro:
		return d.MacroName()
	case fmt.Stringer:
		return d.String()
	case StringObject:
		return d.AsString()
	default:
		return fmt.Sprint(d)
	}
}

// Repr returns a literal-like representation, quoting strings.
func (v Value) Repr() string {
	switch d := v.data.(type) {
	case nil, undefinedType:
		return "undefined"
	case noneType:
		return "none"
	case string:
		return strconv.Quote(d)
	default:
		return v.String()
	}
}

// SameAs reports identity for reference values and equality for scalars.
func (v Value) SameAs(other Value) bool {
	switch a := v.data.(type) {
	case []Value:
		b, ok := other.data.([]Value)
		return ok && len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
	case *Hash:
		b, ok := other.data.(*Hash)
		return ok && a == b
	}
	if v.IsUndefined() || other.IsUndefined() {
		return v.IsUndefined() && other.IsUndefined()
	}
	ta, tb := reflect.TypeOf(v.data), reflect.TypeOf(other.data)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return v.data == other.data
}

// FormatFloat renders a float the way templates print numbers in computer
// format: integral values without a fraction, others in shortest form.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NaN"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatRat renders an exact decimal without trailing zeros. Non-terminating
// expansions are cut at 16 fractional digits.
func FormatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	if prec, exact := r.FloatPrec(); exact {
		return trimZeros(r.FloatString(prec))
	}
	return trimZeros(r.FloatString(16))
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
