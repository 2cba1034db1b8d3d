package value

// MergeMaps layers several hash-like values into a single read-only hash.
//
// Later sources override earlier ones when keys overlap. Keys enumerate in
// first-seen order. Values without the hash capability contribute nothing.
// The engine uses this to stack data-model files without copying them.
func MergeMaps(sources ...Value) Value {
	if len(sources) == 1 {
		return sources[0]
	}
	return FromObject(&mergedMap{sources: sources})
}

type mergedMap struct {
	sources []Value
}

func (m *mergedMap) ObjectLen() int {
	return len(m.Keys())
}

func (m *mergedMap) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, src := range m.sources {
		for _, key := range keysForValue(src) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func (m *mergedMap) GetAttr(name string) Value {
	for i := len(m.sources) - 1; i >= 0; i-- {
		val := m.sources[i].GetAttr(name)
		if !val.IsUndefined() {
			return val
		}
	}
	return Undefined()
}

func keysForValue(v Value) []string {
	switch d := v.data.(type) {
	case *Hash:
		return d.Keys()
	case MapObject:
		return d.Keys()
	}
	return nil
}
