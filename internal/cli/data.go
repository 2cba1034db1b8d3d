package cli

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/ftlgo/ftl/value"
)

// loadDataModel reads the data model files in order and layers the --set
// variables on top. JSON files are read as YAML.
func loadDataModel(paths []string, sets map[string]string) (value.Value, error) {
	layers := make([]value.Value, 0, len(paths)+1)
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return value.Value{}, err
		}
		var data map[string]any
		if err := yaml.Unmarshal(src, &data); err != nil {
			return value.Value{}, fmt.Errorf("data model %s: %w", path, err)
		}
		layers = append(layers, value.FromAny(data))
	}

	if len(sets) > 0 {
		vars := make(map[string]any, len(sets))
		for name, raw := range sets {
			vars[name] = parseScalar(raw)
		}
		layers = append(layers, value.FromAny(vars))
	}

	if len(layers) == 0 {
		return value.FromAny(map[string]any{}), nil
	}
	return value.MergeMaps(layers...), nil
}

// parseScalar reads a --set value as YAML so numbers and booleans keep
// their type. Anything that does not parse stays a string.
func parseScalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}
