package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lexer tokenizes template source code.
type Lexer struct {
	source    string
	pos       int    // current position in source
	start     int    // start position of current token
	offset    int    // added to positions when reporting spans
	line      uint16 // current line (1-indexed)
	col       uint16 // current column (0-indexed at line start)
	startLine uint16
	startCol  uint16
	cfg       Config

	stack        []lexerState
	parenBalance int
}

type lexerState int

const (
	stateTemplate lexerState = iota
	stateInterp
	stateTag
	stateExpr // bare expression, ends at end of input
)

type startMarker int

const (
	markerNone startMarker = iota
	markerInterp
	markerComment
	markerDirective
	markerDirectiveEnd
	markerCall
	markerCallEnd
)

// New creates a new Lexer for the given input.
func New(input string, cfg Config) *Lexer {
	return &Lexer{
		source: input,
		line:   1,
		cfg:    cfg,
		stack:  []lexerState{stateTemplate},
	}
}

// Tokenize returns all tokens of a template. The slice does not include a
// trailing EOF token.
func Tokenize(input string, cfg Config) ([]Token, error) {
	l := New(input, cfg)
	tokens, err := l.All()
	if err != nil {
		return nil, err
	}
	if cfg.StripWhitespace {
		tokens = stripWhitespace(tokens)
	}
	return dropComments(tokens), nil
}

// TokenizeExpression tokenizes a bare expression, such as the inside of an
// interpolation embedded in a string literal. Spans are reported relative
// to at.
func TokenizeExpression(input string, at Span) ([]Token, error) {
	l := &Lexer{
		source: input,
		offset: int(at.StartOffset),
		line:   at.StartLine,
		col:    at.StartCol,
		stack:  []lexerState{stateExpr},
	}
	return l.All()
}

// All collects all tokens into a slice.
func (l *Lexer) All() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}

// Next returns the next token, or nil at end of input.
func (l *Lexer) Next() (*Token, error) {
	state := l.currentState()
	if state == stateTemplate {
		if l.atEnd() {
			return nil, nil
		}
		return l.tokenizeRoot()
	}

	l.skipWhitespace()
	if l.atEnd() {
		switch state {
		case stateInterp:
			return nil, l.syntaxError("unclosed interpolation, missing '}'")
		case stateTag:
			return nil, l.syntaxError("unclosed tag, missing '>'")
		}
		return nil, nil
	}
	return l.tokenizeExpr(state)
}

func (l *Lexer) currentState() lexerState {
	return l.stack[len(l.stack)-1]
}

func (l *Lexer) pushState(s lexerState) {
	l.stack = append(l.stack, s)
	l.parenBalance = 0
}

func (l *Lexer) popState() {
	if len(l.stack) > 1 {
		l.stack = l.stack[:len(l.stack)-1]
	}
	l.parenBalance = 0
}

// tokenizeRoot handles template text and the markers that leave it.
func (l *Lexer) tokenizeRoot() (*Token, error) {
	rest := l.rest()
	idx, marker := findStartMarker(rest)
	if idx < 0 {
		return l.lexText(len(rest)), nil
	}
	if idx > 0 {
		return l.lexText(idx), nil
	}

	l.markStart()
	switch marker {
	case markerComment:
		end := strings.Index(rest[4:], "-->")
		if end < 0 {
			return nil, l.syntaxError("unclosed comment, missing '-->'")
		}
		text := l.advance(4 + end + 3)
		tok := l.makeToken(TokenComment, text)
		return &tok, nil

	case markerInterp:
		l.advance(2)
		tok := l.makeToken(TokenInterpStart, "${")
		l.pushState(stateInterp)
		return &tok, nil

	case markerDirective:
		l.advance(2)
		name := l.advance(identLen(l.rest()))
		tok := l.makeToken(TokenDirectiveStart, name)
		l.pushState(stateTag)
		return &tok, nil

	case markerDirectiveEnd:
		l.advance(3)
		name := l.advance(identLen(l.rest()))
		if err := l.closeEndTag(); err != nil {
			return nil, err
		}
		tok := l.makeToken(TokenDirectiveEnd, name)
		return &tok, nil

	case markerCall:
		l.advance(2)
		tok := l.makeToken(TokenCallStart, "<@")
		l.pushState(stateTag)
		return &tok, nil

	case markerCallEnd:
		l.advance(3)
		n := 0
		for r := l.rest(); n < len(r) && (isIdentPart(r[n]) || r[n] == '.'); n++ {
		}
		name := l.advance(n)
		if err := l.closeEndTag(); err != nil {
			return nil, err
		}
		tok := l.makeToken(TokenCallEnd, name)
		return &tok, nil
	}
	return nil, l.syntaxError("unexpected marker")
}

func (l *Lexer) closeEndTag() error {
	l.skipWhitespace()
	if !strings.HasPrefix(l.rest(), ">") {
		return l.syntaxError("expected '>' to close end tag")
	}
	l.advance(1)
	return nil
}

// findStartMarker returns the offset of the next markup marker in s, or -1.
func findStartMarker(s string) (int, startMarker) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				return i, markerInterp
			}
		case '<':
			rest := s[i:]
			switch {
			case strings.HasPrefix(rest, "<#--"):
				return i, markerComment
			case strings.HasPrefix(rest, "<#") && len(rest) > 2 && isIdentStart(rest[2]):
				return i, markerDirective
			case strings.HasPrefix(rest, "</#") && len(rest) > 3 && isIdentStart(rest[3]):
				return i, markerDirectiveEnd
			case strings.HasPrefix(rest, "<@") && len(rest) > 2 && (isIdentStart(rest[2]) || rest[2] == '(' || rest[2] == '.'):
				return i, markerCall
			case strings.HasPrefix(rest, "</@"):
				return i, markerCallEnd
			}
		}
	}
	return -1, markerNone
}

// lexText emits up to n bytes of text, cut after the first line break so
// that every text token holds at most one line ending.
func (l *Lexer) lexText(n int) *Token {
	l.markStart()
	text := l.rest()[:n]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i+1]
	}
	l.advance(len(text))
	tok := l.makeToken(TokenText, text)
	return &tok
}

// tokenizeExpr handles tokens inside ${ } and tags.
func (l *Lexer) tokenizeExpr(state lexerState) (*Token, error) {
	l.markStart()
	rest := l.rest()

	if l.parenBalance == 0 {
		switch state {
		case stateTag:
			if strings.HasPrefix(rest, "/>") {
				l.advance(2)
				tok := l.makeToken(TokenEmptyTagEnd, "/>")
				l.popState()
				return &tok, nil
			}
			if rest[0] == '>' {
				l.advance(1)
				tok := l.makeToken(TokenTagEnd, ">")
				l.popState()
				return &tok, nil
			}
		case stateInterp:
			if rest[0] == '}' {
				l.advance(1)
				tok := l.makeToken(TokenInterpEnd, "}")
				l.popState()
				return &tok, nil
			}
		}
	}

	// Three-character operators
	if len(rest) >= 3 {
		switch rest[:3] {
		case "...":
			return l.emit(3, TokenEllipsis), nil
		case "..<", "..!":
			return l.emit(3, TokenRangeExcl), nil
		}
	}

	// Two-character operators
	if len(rest) >= 2 {
		var typ TokenType = -1
		switch rest[:2] {
		case "..":
			typ = TokenRange
		case "==":
			typ = TokenEq
		case "!=":
			typ = TokenNe
		case "<=":
			typ = TokenLe
		case ">=":
			typ = TokenGe
		case "&&":
			typ = TokenAnd
		case "||":
			typ = TokenOr
		case "+=":
			typ = TokenAddAssign
		case "-=":
			typ = TokenSubAssign
		case "*=":
			typ = TokenMulAssign
		case "/=":
			typ = TokenDivAssign
		case "%=":
			typ = TokenModAssign
		case "++":
			typ = TokenIncr
		case "--":
			typ = TokenDecr
		case "??":
			typ = TokenExists
		}
		if typ >= 0 {
			return l.emit(2, typ), nil
		}
	}

	ch := rest[0]
	switch ch {
	case '+':
		return l.emit(1, TokenPlus), nil
	case '-':
		return l.emit(1, TokenMinus), nil
	case '*':
		return l.emit(1, TokenMul), nil
	case '/':
		return l.emit(1, TokenDiv), nil
	case '%':
		return l.emit(1, TokenMod), nil
	case '!':
		return l.emit(1, TokenNot), nil
	case '<':
		return l.emit(1, TokenLt), nil
	case '>':
		return l.emit(1, TokenGt), nil
	case '=':
		return l.emit(1, TokenAssign), nil
	case '.':
		return l.emit(1, TokenDot), nil
	case ',':
		return l.emit(1, TokenComma), nil
	case ':':
		return l.emit(1, TokenColon), nil
	case ';':
		return l.emit(1, TokenSemicolon), nil
	case '?':
		return l.emit(1, TokenQuestion), nil
	case '(':
		l.parenBalance++
		return l.emit(1, TokenParenOpen), nil
	case ')':
		l.parenBalance--
		return l.emit(1, TokenParenClose), nil
	case '[':
		l.parenBalance++
		return l.emit(1, TokenBracketOpen), nil
	case ']':
		l.parenBalance--
		return l.emit(1, TokenBracketClose), nil
	case '{':
		l.parenBalance++
		return l.emit(1, TokenBraceOpen), nil
	case '}':
		l.parenBalance--
		return l.emit(1, TokenBraceClose), nil
	case '"', '\'':
		return l.lexString(ch, false)
	case 'r':
		if len(rest) > 1 && (rest[1] == '"' || rest[1] == '\'') {
			l.advance(1)
			return l.lexString(rest[1], true)
		}
	}

	if isDigit(ch) {
		return l.lexNumber(), nil
	}
	if isIdentStart(ch) {
		name := l.advance(identLen(rest))
		tok := l.makeToken(TokenIdent, name)
		return &tok, nil
	}

	return nil, l.syntaxError(fmt.Sprintf("unexpected character %q", ch))
}

func (l *Lexer) emit(n int, typ TokenType) *Token {
	text := l.advance(n)
	tok := l.makeToken(typ, text)
	return &tok
}

// lexString lexes a quoted string literal. The token value is the decoded
// string; the parser re-reads the raw source to find embedded ${...}.
func (l *Lexer) lexString(quote byte, raw bool) (*Token, error) {
	l.advance(1)
	bodyStart := l.pos
	for !l.atEnd() {
		ch := l.rest()[0]
		if ch == quote {
			body := l.source[bodyStart:l.pos]
			l.advance(1)
			if raw {
				tok := l.makeToken(TokenRawString, body)
				return &tok, nil
			}
			decoded, err := Unescape(body)
			if err != nil {
				return nil, l.syntaxError(err.Error())
			}
			tok := l.makeToken(TokenString, decoded)
			return &tok, nil
		}
		if ch == '\\' && !raw {
			l.advance(1)
			if l.atEnd() {
				break
			}
		}
		l.advance(1)
	}
	return nil, l.syntaxError("unclosed string literal")
}

// Unescape decodes the backslash escapes of a string literal body.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, "\\") {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			sb.WriteByte(ch)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape at end of string")
		}
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'f':
			sb.WriteByte('\f')
		case 'b':
			sb.WriteByte('\b')
		case 'l':
			sb.WriteByte('<')
		case 'g':
			sb.WriteByte('>')
		case 'a':
			sb.WriteByte('&')
		case '\\', '"', '\'', '$', '{', '=':
			sb.WriteByte(s[i])
		case 'x':
			j := i + 1
			for j < len(s) && j < i+5 && isHexDigit(s[j]) {
				j++
			}
			if j == i+1 {
				return "", fmt.Errorf("invalid hex escape")
			}
			n, err := strconv.ParseUint(s[i+1:j], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid hex escape: %w", err)
			}
			sb.WriteRune(rune(n))
			i = j - 1
		default:
			return "", fmt.Errorf("unknown escape sequence \\%c", s[i])
		}
	}
	return sb.String(), nil
}

func (l *Lexer) lexNumber() *Token {
	rest := l.rest()
	n := 0
	for n < len(rest) && isDigit(rest[n]) {
		n++
	}
	// A '.' only continues the number when a digit follows; 1..3 is a range.
	if n+1 < len(rest) && rest[n] == '.' && isDigit(rest[n+1]) {
		n++
		for n < len(rest) && isDigit(rest[n]) {
			n++
		}
	}
	text := l.advance(n)
	tok := l.makeToken(TokenNumber, text)
	return &tok
}

// -----------------------------------------------------------------------------
// White-space stripping
// -----------------------------------------------------------------------------

type unitKind int

const (
	unitText unitKind = iota
	unitFTL           // <#...>, </#...>, comments
	unitOther         // ${...}, <@...>, </@...>
)

type unit struct {
	kind  unitKind
	start int // token indexes, inclusive
	end   int
}

// stripWhitespace blanks the white-space text of lines that contain only FTL
// tags and comments.
func stripWhitespace(tokens []Token) []Token {
	units := groupUnits(tokens)

	lineStart := 0
	for i, u := range units {
		endsLine := u.kind == unitText && strings.HasSuffix(tokens[u.start].Value, "\n")
		if !endsLine && i != len(units)-1 {
			continue
		}
		stripLine(tokens, units[lineStart:i+1])
		lineStart = i + 1
	}

	out := tokens[:0]
	for _, tok := range tokens {
		if tok.Type == TokenText && tok.Value == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func stripLine(tokens []Token, line []unit) {
	hasFTL := false
	for _, u := range line {
		switch u.kind {
		case unitOther:
			return
		case unitFTL:
			hasFTL = true
		case unitText:
			if strings.TrimLeft(tokens[u.start].Value, " \t\r\n") != "" {
				return
			}
		}
	}
	if !hasFTL {
		return
	}
	for _, u := range line {
		if u.kind == unitText {
			tokens[u.start].Value = ""
		}
	}
}

func groupUnits(tokens []Token) []unit {
	var units []unit
	for i := 0; i < len(tokens); i++ {
		switch tokens[i].Type {
		case TokenText:
			units = append(units, unit{kind: unitText, start: i, end: i})
		case TokenComment, TokenDirectiveEnd:
			units = append(units, unit{kind: unitFTL, start: i, end: i})
		case TokenCallEnd:
			units = append(units, unit{kind: unitOther, start: i, end: i})
		case TokenDirectiveStart, TokenCallStart, TokenInterpStart:
			kind := unitOther
			if tokens[i].Type == TokenDirectiveStart {
				kind = unitFTL
			}
			j := i
			for j+1 < len(tokens) {
				j++
				t := tokens[j].Type
				if t == TokenTagEnd || t == TokenEmptyTagEnd || t == TokenInterpEnd {
					break
				}
			}
			units = append(units, unit{kind: kind, start: i, end: j})
			i = j
		}
	}
	return units
}

func dropComments(tokens []Token) []Token {
	out := tokens[:0]
	for _, tok := range tokens {
		if tok.Type != TokenComment {
			out = append(out, tok)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Helper methods
// -----------------------------------------------------------------------------

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) rest() string {
	if l.pos >= len(l.source) {
		return ""
	}
	return l.source[l.pos:]
}

func (l *Lexer) advance(n int) string {
	if n <= 0 {
		return ""
	}
	start := l.pos
	end := l.pos + n
	if end > len(l.source) {
		end = len(l.source)
	}

	skipped := l.source[start:end]
	for _, c := range skipped {
		if c == '\n' {
			l.line++
			l.col = 0
		} else if l.col < 65535 {
			l.col++
		}
	}
	l.pos = end
	return skipped
}

func (l *Lexer) markStart() {
	l.start = l.pos
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) span() Span {
	return Span{
		StartLine:   l.startLine,
		StartCol:    l.startCol,
		StartOffset: uint32(l.offset + l.start),
		EndLine:     l.line,
		EndCol:      l.col,
		EndOffset:   uint32(l.offset + l.pos),
	}
}

func (l *Lexer) makeToken(typ TokenType, value string) Token {
	return Token{
		Type:  typ,
		Value: value,
		Span:  l.span(),
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		c := l.rest()[0]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.advance(1)
		} else {
			break
		}
	}
}

func (l *Lexer) syntaxError(msg string) error {
	l.markStart()
	return &Error{Message: msg, Span: l.span()}
}

func identLen(s string) int {
	n := 0
	for n < len(s) {
		if s[n] >= utf8.RuneSelf || isIdentPart(s[n]) {
			n++
			continue
		}
		break
	}
	return n
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$' || ch >= utf8.RuneSelf
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
