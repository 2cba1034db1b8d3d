package suggest

import "testing"

func TestClosest(t *testing.T) {
	directives := []string{"assign", "global", "list", "local", "macro"}
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"asign", "assign", true},
		{"macr", "macro", true},
		{"lists", "list", true},
		{"assign", "", false},
		{"x", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Closest(tt.name, directives)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Closest(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
