package syntax

import "testing"

func TestSpanString(t *testing.T) {
	span := Span{StartLine: 3, StartCol: 0, EndLine: 3, EndCol: 4}
	if got := span.String(); got != "3:1" {
		t.Errorf("expected 3:1, got %q", got)
	}
}
