// Package syntax holds the source positions shared by the lexer, the parser
// and errors.
package syntax

import "strconv"

// Span is a range of template source. Lines count from 1, columns from 0.
type Span struct {
	StartLine   uint16
	StartCol    uint16
	StartOffset uint32
	EndLine     uint16
	EndCol      uint16
	EndOffset   uint32
}

// String returns the start as "line:column" with columns counted from 1,
// the way editors show positions.
func (s Span) String() string {
	return strconv.Itoa(int(s.StartLine)) + ":" + strconv.Itoa(int(s.StartCol)+1)
}
