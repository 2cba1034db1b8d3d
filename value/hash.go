package value

import (
	"strconv"
	"strings"
)

// Hash is a string-keyed mapping that remembers insertion order.
//
// Re-assigning an existing key keeps its position. Hash is not safe for
// concurrent mutation; a render owns the hashes it creates.
type Hash struct {
	keys   []string
	values map[string]Value
}

// NewHash returns an empty hash.
func NewHash() *Hash {
	return &Hash{values: make(map[string]Value)}
}

// Len returns the number of entries.
func (h *Hash) Len() int {
	return len(h.keys)
}

// Get returns the value stored under key.
func (h *Hash) Get(key string) (Value, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Has reports whether key is present.
func (h *Hash) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

// Set stores a value under key.
func (h *Hash) Set(key string, v Value) {
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = v
}

// Delete removes key.
func (h *Hash) Delete(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (h *Hash) Keys() []string {
	return h.keys
}

// Values returns the values in key order.
func (h *Hash) Values() []Value {
	out := make([]Value, len(h.keys))
	for i, k := range h.keys {
		out[i] = h.values[k]
	}
	return out
}

// Clone returns a shallow copy.
func (h *Hash) Clone() *Hash {
	c := &Hash{
		keys:   append([]string(nil), h.keys...),
		values: make(map[string]Value, len(h.values)),
	}
	for k, v := range h.values {
		c.values[k] = v
	}
	return c
}

// Merge returns a new hash holding the entries of h followed by those of
// other. Keys present in both keep their first position and take the value
// from other.
func (h *Hash) Merge(other *Hash) *Hash {
	out := h.Clone()
	for _, k := range other.keys {
		out.Set(k, other.values[k])
	}
	return out
}

func (h *Hash) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteString(": ")
		sb.WriteString(h.values[k].Repr())
	}
	sb.WriteByte('}')
	return sb.String()
}
