// Package lexer tokenizes template source.
//
// The lexer switches between three modes: template text, interpolation
// (${...}) and tags (<#name ...>, <@callee ...>). Expression tokens are the
// same in both expression modes, except that inside a tag a '>' at
// parenthesis depth zero closes the tag.
package lexer

import (
	"fmt"

	"github.com/ftlgo/ftl/syntax"
)

// Span is a location range in the template source.
type Span = syntax.Span

// TokenType represents the type of a token.
type TokenType int

const (
	// Template text between tags
	TokenText TokenType = iota
	TokenComment

	// Markup delimiters
	TokenInterpStart    // ${
	TokenInterpEnd      // } closing an interpolation
	TokenDirectiveStart // <#name, Value is the name
	TokenDirectiveEnd   // </#name>, Value is the name
	TokenCallStart      // <@
	TokenCallEnd        // </@name> or </@>, Value is the name
	TokenTagEnd         // >
	TokenEmptyTagEnd    // />

	// Literals
	TokenIdent
	TokenString
	TokenRawString
	TokenNumber

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenMul       // *
	TokenDiv       // /
	TokenMod       // %
	TokenNot       // !
	TokenEq        // ==
	TokenNe        // !=
	TokenLt        // <
	TokenLe        // <=
	TokenGt        // >
	TokenGe        // >=
	TokenAnd       // &&
	TokenOr        // ||
	TokenAssign    // =
	TokenAddAssign // +=
	TokenSubAssign // -=
	TokenMulAssign // *=
	TokenDivAssign // /=
	TokenModAssign // %=
	TokenIncr      // ++
	TokenDecr      // --

	// Punctuation
	TokenDot          // .
	TokenRange        // ..
	TokenRangeExcl    // ..< or ..!
	TokenEllipsis     // ...
	TokenQuestion     // ?
	TokenExists       // ??
	TokenComma        // ,
	TokenColon        // :
	TokenSemicolon    // ;
	TokenParenOpen    // (
	TokenParenClose   // )
	TokenBracketOpen  // [
	TokenBracketClose // ]
	TokenBraceOpen    // {
	TokenBraceClose   // }

	TokenEOF
)

var tokenTypeNames = map[TokenType]string{
	TokenText:           "Text",
	TokenComment:        "Comment",
	TokenInterpStart:    "InterpStart",
	TokenInterpEnd:      "InterpEnd",
	TokenDirectiveStart: "DirectiveStart",
	TokenDirectiveEnd:   "DirectiveEnd",
	TokenCallStart:      "CallStart",
	TokenCallEnd:        "CallEnd",
	TokenTagEnd:         "TagEnd",
	TokenEmptyTagEnd:    "EmptyTagEnd",
	TokenIdent:          "Ident",
	TokenString:         "String",
	TokenRawString:      "RawString",
	TokenNumber:         "Number",
	TokenPlus:           "Plus",
	TokenMinus:          "Minus",
	TokenMul:            "Mul",
	TokenDiv:            "Div",
	TokenMod:            "Mod",
	TokenNot:            "Not",
	TokenEq:             "Eq",
	TokenNe:             "Ne",
	TokenLt:             "Lt",
	TokenLe:             "Le",
	TokenGt:             "Gt",
	TokenGe:             "Ge",
	TokenAnd:            "And",
	TokenOr:             "Or",
	TokenAssign:         "Assign",
	TokenAddAssign:      "AddAssign",
	TokenSubAssign:      "SubAssign",
	TokenMulAssign:      "MulAssign",
	TokenDivAssign:      "DivAssign",
	TokenModAssign:      "ModAssign",
	TokenIncr:           "Incr",
	TokenDecr:           "Decr",
	TokenDot:            "Dot",
	TokenRange:          "Range",
	TokenRangeExcl:      "RangeExcl",
	TokenEllipsis:       "Ellipsis",
	TokenQuestion:       "Question",
	TokenExists:         "Exists",
	TokenComma:          "Comma",
	TokenColon:          "Colon",
	TokenSemicolon:      "Semicolon",
	TokenParenOpen:      "ParenOpen",
	TokenParenClose:     "ParenClose",
	TokenBracketOpen:    "BracketOpen",
	TokenBracketClose:   "BracketClose",
	TokenBraceOpen:      "BraceOpen",
	TokenBraceClose:     "BraceClose",
	TokenEOF:            "EOF",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Token is a single lexical unit.
type Token struct {
	Type  TokenType
	Value string
	Span  Span
}

func (t Token) String() string {
	switch t.Type {
	case TokenText, TokenIdent, TokenString, TokenRawString, TokenNumber,
		TokenDirectiveStart, TokenDirectiveEnd, TokenCallEnd:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Error is a tokenization failure.
type Error struct {
	Message string
	Span    Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at line %d, col %d: %s", e.Span.StartLine, e.Span.StartCol, e.Message)
}
