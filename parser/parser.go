package parser

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/lexer"
	"github.com/ftlgo/ftl/value"
)

const maxRecursion = 150

// directives lists the names of all built-in directives, for suggestions.
var directives = []string{
	"assign", "attempt", "break", "continue", "else", "elseif", "function",
	"global", "if", "import", "include", "list", "local", "macro", "nested",
	"recover", "return", "setting",
}

// keywords never start an expression.
var keywords = map[string]bool{
	"as": true, "in": true, "using": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
}

// Error represents a parse error.
type Error struct {
	Message string
	Name    string
	Span    Span
	Tip     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("syntax error: %s (in %s, line %d, column %d)", e.Message, e.Name, e.Span.StartLine, e.Span.StartCol+1)
	if e.Tip != "" {
		msg += "\nTip: " + e.Tip
	}
	return msg
}

// Parser parses FTL templates.
type Parser struct {
	source    string
	tokens    []lexer.Token
	pos       int
	name      string
	macro     *Macro
	loopDepth int
	depth     int
	macros    []*Macro
	lastSpan  Span
}

// Parse parses a template and returns its syntax tree.
func Parse(source, name string, cfg lexer.Config) (*Template, error) {
	tokens, err := lexer.Tokenize(source, cfg)
	if err != nil {
		return nil, wrapLexerError(err, name)
	}

	p := &Parser{source: source, tokens: tokens, name: name}
	tmpl, perr := p.parse()
	if perr != nil {
		return nil, perr
	}
	return tmpl, nil
}

// ParseExpression parses a standalone expression such as "user.name!'x'".
func ParseExpression(source string) (Expr, error) {
	tokens, err := lexer.TokenizeExpression(source, Span{StartLine: 1})
	if err != nil {
		return nil, wrapLexerError(err, "<expression>")
	}
	p := &Parser{source: source, tokens: tokens, name: "<expression>"}
	expr, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if tok := p.current(); tok != nil {
		return nil, p.unexpected(tokenDescription(tok), "end of expression")
	}
	return expr, nil
}

func wrapLexerError(err error, name string) error {
	var lexErr *lexer.Error
	if errors.As(err, &lexErr) {
		return &Error{Message: lexErr.Message, Name: name, Span: lexErr.Span}
	}
	return &Error{Message: err.Error(), Name: name}
}

func (p *Parser) parse() (*Template, *Error) {
	span := Span{StartLine: 1}
	children, err := p.subparse(nil)
	if err != nil {
		return nil, err
	}
	return &Template{
		Name:     p.name,
		Children: children,
		Macros:   p.macros,
		span:     p.expandSpan(span),
	}, nil
}

// -----------------------------------------------------------------------------
// Token helpers
// -----------------------------------------------------------------------------

func (p *Parser) current() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peek(n int) *lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+n]
}

func (p *Parser) advance() *lexer.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	tok := &p.tokens[p.pos]
	p.lastSpan = tok.Span
	p.pos++
	return tok
}

func (p *Parser) currentSpan() Span {
	if tok := p.current(); tok != nil {
		return tok.Span
	}
	return p.lastSpan
}

func (p *Parser) expandSpan(start Span) Span {
	return Span{
		StartLine:   start.StartLine,
		StartCol:    start.StartCol,
		StartOffset: start.StartOffset,
		EndLine:     p.lastSpan.EndLine,
		EndCol:      p.lastSpan.EndCol,
		EndOffset:   p.lastSpan.EndOffset,
	}
}

func (p *Parser) syntaxError(msg string) *Error {
	return &Error{Message: msg, Name: p.name, Span: p.currentSpan()}
}

func (p *Parser) unexpected(got string, expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected %s, expected %s", got, expected))
}

func (p *Parser) unexpectedEOF(expected string) *Error {
	return p.syntaxError(fmt.Sprintf("unexpected end of input, expected %s", expected))
}

func (p *Parser) expect(typ lexer.TokenType, expected string) (*lexer.Token, *Error) {
	tok := p.current()
	if tok == nil {
		return nil, p.unexpectedEOF(expected)
	}
	if tok.Type != typ {
		return nil, p.unexpected(tokenDescription(tok), expected)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent(expected string) (string, Span, *Error) {
	tok, err := p.expect(lexer.TokenIdent, expected)
	if err != nil {
		return "", Span{}, err
	}
	return tok.Value, tok.Span, nil
}

// expectName accepts an identifier or a string literal, as used for
// variable and macro names.
func (p *Parser) expectName(expected string) (string, *Error) {
	tok := p.current()
	if tok == nil {
		return "", p.unexpectedEOF(expected)
	}
	switch tok.Type {
	case lexer.TokenIdent, lexer.TokenString, lexer.TokenRawString:
		p.advance()
		return tok.Value, nil
	}
	return "", p.unexpected(tokenDescription(tok), expected)
}

func (p *Parser) expectKeyword(kw string, expected string) *Error {
	tok := p.current()
	if tok == nil {
		return p.unexpectedEOF(expected)
	}
	if tok.Type != lexer.TokenIdent || tok.Value != kw {
		return p.unexpected(tokenDescription(tok), expected)
	}
	p.advance()
	return nil
}

// expectTagEnd consumes '>' or '/>' and reports whether the tag was empty.
func (p *Parser) expectTagEnd() (bool, *Error) {
	tok := p.current()
	if tok == nil {
		return false, p.unexpectedEOF("end of tag")
	}
	switch tok.Type {
	case lexer.TokenTagEnd:
		p.advance()
		return false, nil
	case lexer.TokenEmptyTagEnd:
		p.advance()
		return true, nil
	}
	return false, p.unexpected(tokenDescription(tok), "end of tag")
}

// expectOpenTagEnd consumes the '>' of a tag that must have a body.
func (p *Parser) expectOpenTagEnd(directive string) *Error {
	empty, err := p.expectTagEnd()
	if err != nil {
		return err
	}
	if empty {
		return p.syntaxError(fmt.Sprintf("<#%s> needs an end tag and cannot be written as an empty tag", directive))
	}
	return nil
}

func (p *Parser) skip(typ lexer.TokenType) bool {
	if p.matches(typ) {
		p.advance()
		return true
	}
	return false
}

// skipAdjacent is like skip but only matches a token that directly follows
// the previous one.
func (p *Parser) skipAdjacent(typ lexer.TokenType) bool {
	tok := p.current()
	if tok == nil || tok.Type != typ || p.pos == 0 || tok.Span.StartOffset != p.lastSpan.EndOffset {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) skipKeyword(kw string) bool {
	if p.matchesKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matches(typ lexer.TokenType) bool {
	tok := p.current()
	return tok != nil && tok.Type == typ
}

func (p *Parser) matchesKeyword(kw string) bool {
	tok := p.current()
	return tok != nil && tok.Type == lexer.TokenIdent && tok.Value == kw
}

func (p *Parser) matchesAny(types ...lexer.TokenType) bool {
	tok := p.current()
	if tok == nil {
		return false
	}
	for _, t := range types {
		if tok.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) atTagEnd() bool {
	return p.matchesAny(lexer.TokenTagEnd, lexer.TokenEmptyTagEnd)
}

// atNamedArg reports whether the next tokens are "name =".
func (p *Parser) atNamedArg() bool {
	tok, next := p.current(), p.peek(1)
	return tok != nil && next != nil && tok.Type == lexer.TokenIdent && next.Type == lexer.TokenAssign
}

func isAssignOp(typ lexer.TokenType) bool {
	switch typ {
	case lexer.TokenAssign, lexer.TokenAddAssign, lexer.TokenSubAssign,
		lexer.TokenMulAssign, lexer.TokenDivAssign, lexer.TokenModAssign,
		lexer.TokenIncr, lexer.TokenDecr:
		return true
	}
	return false
}

func tokenDescription(tok *lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent:
		return fmt.Sprintf("identifier %q", tok.Value)
	case lexer.TokenString, lexer.TokenRawString:
		return "string"
	case lexer.TokenNumber:
		return "number"
	case lexer.TokenText:
		return "template text"
	case lexer.TokenTagEnd, lexer.TokenEmptyTagEnd:
		return "end of tag"
	case lexer.TokenInterpEnd:
		return "end of interpolation"
	case lexer.TokenDirectiveStart:
		return fmt.Sprintf("<#%s>", tok.Value)
	case lexer.TokenDirectiveEnd:
		return fmt.Sprintf("</#%s>", tok.Value)
	case lexer.TokenCallStart:
		return "<@"
	case lexer.TokenCallEnd:
		return fmt.Sprintf("</@%s>", tok.Value)
	default:
		return fmt.Sprintf("`%s`", tok.Value)
	}
}

// canStartExpr reports whether tok can begin an expression.
func canStartExpr(tok *lexer.Token) bool {
	if tok == nil {
		return false
	}
	switch tok.Type {
	case lexer.TokenIdent:
		return !keywords[tok.Value]
	case lexer.TokenNumber, lexer.TokenString, lexer.TokenRawString,
		lexer.TokenParenOpen, lexer.TokenBracketOpen, lexer.TokenBraceOpen,
		lexer.TokenMinus, lexer.TokenPlus, lexer.TokenNot, lexer.TokenDot:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Expressions
// -----------------------------------------------------------------------------

func (p *Parser) parseExpr() (Expr, *Error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum recursion limits")
	}
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.skip(lexer.TokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinOr, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.skip(lexer.TokenAnd) {
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: BinAnd, Left: left, Right: right, span: p.expandSpan(span)}
	}
	return left, nil
}

func (p *Parser) compareOp() (BinOpKind, bool) {
	tok := p.current()
	if tok == nil {
		return 0, false
	}
	switch tok.Type {
	case lexer.TokenEq, lexer.TokenAssign:
		return BinEq, true
	case lexer.TokenNe:
		return BinNe, true
	case lexer.TokenLt:
		return BinLt, true
	case lexer.TokenLe:
		return BinLe, true
	case lexer.TokenGt:
		return BinGt, true
	case lexer.TokenGe:
		return BinGe, true
	case lexer.TokenIdent:
		switch tok.Value {
		case "lt":
			return BinLt, true
		case "lte":
			return BinLe, true
		case "gt":
			return BinGt, true
		case "gte":
			return BinGe, true
		}
	}
	return 0, false
}

func (p *Parser) parseCompare() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	op, ok := p.compareOp()
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	return &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseRange() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch {
	case p.skip(lexer.TokenRange):
		if !canStartExpr(p.current()) {
			return &Range{Start: left, span: p.expandSpan(span)}, nil
		}
		end, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Range{Start: left, End: end, span: p.expandSpan(span)}, nil
	case p.skip(lexer.TokenRangeExcl):
		end, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Range{Start: left, End: end, Exclusive: true, span: p.expandSpan(span)}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.matches(lexer.TokenPlus):
			op = BinAdd
		case p.matches(lexer.TokenMinus):
			op = BinSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseMultiplicative() (Expr, *Error) {
	span := p.currentSpan()
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch {
		case p.matches(lexer.TokenMul):
			op = BinMul
		case p.matches(lexer.TokenDiv):
			op = BinDiv
		case p.matches(lexer.TokenMod):
			op = BinMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, span: p.expandSpan(span)}
	}
}

func (p *Parser) parseUnary() (Expr, *Error) {
	span := p.currentSpan()
	var op UnaryOpKind
	switch {
	case p.matches(lexer.TokenMinus):
		op = UnaryNeg
	case p.matches(lexer.TokenPlus):
		op = UnaryPos
	case p.matches(lexer.TokenNot):
		op = UnaryNot
	default:
		expr, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return p.parsePostfix(expr, span)
	}
	p.advance()
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxRecursion {
		return nil, p.syntaxError("template exceeds maximum recursion limits")
	}
	inner, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryOp{Op: op, Expr: inner, span: p.expandSpan(span)}, nil
}

// canStartDefault reports whether the token after a '!' is the default
// value rather than the next part of the enclosing tag.
func (p *Parser) canStartDefault() bool {
	tok := p.current()
	if !canStartExpr(tok) {
		return false
	}
	switch tok.Type {
	case lexer.TokenNot, lexer.TokenPlus:
		return false
	case lexer.TokenIdent:
		return !p.atNamedArg()
	}
	return true
}

func (p *Parser) parsePostfix(expr Expr, span Span) (Expr, *Error) {
	for {
		tok := p.current()
		if tok == nil {
			return expr, nil
		}
		switch tok.Type {
		case lexer.TokenDot:
			p.advance()
			name, _, err := p.expectIdent("attribute name")
			if err != nil {
				return nil, err
			}
			expr = &Dot{Target: expr, Name: name, span: p.expandSpan(span)}

		case lexer.TokenBracketOpen:
			p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
				return nil, err
			}
			expr = &Index{Target: expr, Key: key, span: p.expandSpan(span)}

		case lexer.TokenParenOpen:
			p.advance()
			args, err := p.parseArgs(lexer.TokenParenClose, "`)`")
			if err != nil {
				return nil, err
			}
			expr = &Call{Callee: expr, Args: args, span: p.expandSpan(span)}

		case lexer.TokenQuestion:
			p.advance()
			name, _, err := p.expectIdent("built-in name")
			if err != nil {
				return nil, err
			}
			bi := &BuiltIn{Target: expr, Name: name}
			if p.skip(lexer.TokenParenOpen) {
				args, err := p.parseArgs(lexer.TokenParenClose, "`)`")
				if err != nil {
					return nil, err
				}
				bi.Args = args
				bi.HasArgs = true
			}
			bi.span = p.expandSpan(span)
			expr = bi

		case lexer.TokenExists:
			p.advance()
			expr = &Exists{Target: expr, span: p.expandSpan(span)}

		case lexer.TokenNot:
			p.advance()
			def := &Default{Target: expr}
			if p.canStartDefault() {
				var fallback Expr
				var err *Error
				if p.matches(lexer.TokenMinus) {
					fallback, err = p.parseUnary()
				} else {
					fbSpan := p.currentSpan()
					fallback, err = p.parsePrimary()
					if err == nil {
						fallback, err = p.parsePostfix(fallback, fbSpan)
					}
				}
				if err != nil {
					return nil, err
				}
				def.Fallback = fallback
			}
			def.span = p.expandSpan(span)
			return def, nil

		default:
			return expr, nil
		}
	}
}

// parseArgs parses a comma separated expression list up to and including
// the closing token.
func (p *Parser) parseArgs(end lexer.TokenType, expected string) ([]Expr, *Error) {
	var args []Expr
	for !p.skip(end) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(end) {
				break
			}
		}
		if p.current() == nil {
			return nil, p.unexpectedEOF(expected)
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, *Error) {
	tok := p.current()
	if tok == nil {
		return nil, p.unexpectedEOF("expression")
	}
	span := tok.Span

	switch tok.Type {
	case lexer.TokenNumber:
		p.advance()
		v, err := parseNumber(tok.Value)
		if err != nil {
			return nil, &Error{Message: err.Error(), Name: p.name, Span: span}
		}
		return &Literal{Value: v, span: span}, nil

	case lexer.TokenString:
		p.advance()
		return p.parseStringLiteral(tok)

	case lexer.TokenRawString:
		p.advance()
		return &Literal{Value: value.FromString(tok.Value), span: span}, nil

	case lexer.TokenIdent:
		switch tok.Value {
		case "true":
			p.advance()
			return &Literal{Value: value.True(), span: span}, nil
		case "false":
			p.advance()
			return &Literal{Value: value.False(), span: span}, nil
		}
		if keywords[tok.Value] {
			return nil, p.unexpected(tokenDescription(tok), "expression")
		}
		p.advance()
		return &Identifier{Name: tok.Value, span: span}, nil

	case lexer.TokenDot:
		p.advance()
		name, _, err := p.expectIdent("special variable name")
		if err != nil {
			return nil, err
		}
		return &SpecialVar{Name: name, span: p.expandSpan(span)}, nil

	case lexer.TokenParenOpen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenParenClose, "`)`"); err != nil {
			return nil, err
		}
		return &Paren{Inner: inner, span: p.expandSpan(span)}, nil

	case lexer.TokenBracketOpen:
		p.advance()
		items, err := p.parseArgs(lexer.TokenBracketClose, "`]`")
		if err != nil {
			return nil, err
		}
		return &SeqLit{Items: items, span: p.expandSpan(span)}, nil

	case lexer.TokenBraceOpen:
		p.advance()
		return p.parseHashLit(span)
	}

	return nil, p.unexpected(tokenDescription(tok), "expression")
}

func (p *Parser) parseHashLit(span Span) (Expr, *Error) {
	h := &HashLit{}
	for !p.skip(lexer.TokenBraceClose) {
		if len(h.Keys) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
			if p.skip(lexer.TokenBraceClose) {
				break
			}
		}
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenColon, "`:`"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		h.Keys = append(h.Keys, key)
		h.Values = append(h.Values, val)
	}
	h.span = p.expandSpan(span)
	return h, nil
}

// parseNumber turns a number literal into an integer or an exact decimal.
func parseNumber(s string) (value.Value, error) {
	if !strings.Contains(s, ".") {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return value.Undefined(), fmt.Errorf("invalid number literal %q", s)
		}
		return value.FromBigInt(n), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return value.Undefined(), fmt.Errorf("invalid number literal %q", s)
	}
	return value.FromRat(r), nil
}

// parseStringLiteral re-reads the raw source of a string token to split out
// embedded ${...} interpolations.
func (p *Parser) parseStringLiteral(tok *lexer.Token) (Expr, *Error) {
	span := tok.Span
	raw := ""
	if int(span.EndOffset) <= len(p.source) && span.StartOffset < span.EndOffset {
		raw = p.source[span.StartOffset:span.EndOffset]
	}
	if len(raw) < 2 || !strings.Contains(raw, "${") {
		return &Literal{Value: value.FromString(tok.Value), span: span}, nil
	}

	body := raw[1 : len(raw)-1]
	bodyOffset := int(span.StartOffset) + 1
	var parts []Expr
	segStart := 0

	flush := func(end int) *Error {
		if end <= segStart {
			return nil
		}
		lit, err := lexer.Unescape(body[segStart:end])
		if err != nil {
			return &Error{Message: err.Error(), Name: p.name, Span: span}
		}
		parts = append(parts, &Literal{Value: value.FromString(lit), span: span})
		return nil
	}

	for i := 0; i < len(body); {
		switch {
		case body[i] == '\\':
			i += 2
		case strings.HasPrefix(body[i:], "${"):
			if err := flush(i); err != nil {
				return nil, err
			}
			end := matchBrace(body, i+2)
			if end < 0 {
				return nil, &Error{Message: "unclosed interpolation in string literal", Name: p.name, Span: span}
			}
			expr, err := p.parseEmbedded(body[i+2:end], bodyOffset+i+2)
			if err != nil {
				return nil, err
			}
			parts = append(parts, expr)
			i = end + 1
			segStart = i
		default:
			i++
		}
	}
	if err := flush(len(body)); err != nil {
		return nil, err
	}
	return &StringInterp{Parts: parts, span: span}, nil
}

// parseEmbedded parses the expression of an interpolation inside a string
// literal. offset is the absolute source offset of src.
func (p *Parser) parseEmbedded(src string, offset int) (Expr, *Error) {
	at := p.spanAt(offset)
	tokens, err := lexer.TokenizeExpression(src, at)
	if err != nil {
		var lexErr *lexer.Error
		if errors.As(err, &lexErr) {
			return nil, &Error{Message: lexErr.Message, Name: p.name, Span: lexErr.Span}
		}
		return nil, &Error{Message: err.Error(), Name: p.name, Span: at}
	}
	sub := &Parser{source: p.source, tokens: tokens, name: p.name, depth: p.depth, lastSpan: at}
	expr, perr := sub.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if tok := sub.current(); tok != nil {
		return nil, sub.unexpected(tokenDescription(tok), "`}`")
	}
	return expr, nil
}

// spanAt computes the line and column of an absolute source offset.
func (p *Parser) spanAt(offset int) Span {
	line, col := uint16(1), uint16(0)
	for _, c := range p.source[:offset] {
		if c == '\n' {
			line++
			col = 0
		} else if col < 65535 {
			col++
		}
	}
	return Span{StartLine: line, StartCol: col, StartOffset: uint32(offset), EndLine: line, EndCol: col, EndOffset: uint32(offset)}
}

// matchBrace returns the index of the '}' closing an interpolation that
// starts at from, skipping nested braces and quoted strings.
func matchBrace(s string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch c := s[i]; c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		case '"', '\'':
			for i++; i < len(s) && s[i] != c; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		}
	}
	return -1
}

// -----------------------------------------------------------------------------
// Statements
// -----------------------------------------------------------------------------

func directiveStart(names ...string) func(lexer.Token) bool {
	return func(tok lexer.Token) bool {
		if tok.Type != lexer.TokenDirectiveStart {
			return false
		}
		for _, n := range names {
			if tok.Value == n {
				return true
			}
		}
		return false
	}
}

func directiveEnd(name string) func(lexer.Token) bool {
	return func(tok lexer.Token) bool {
		return tok.Type == lexer.TokenDirectiveEnd && tok.Value == name
	}
}

func either(a, b func(lexer.Token) bool) func(lexer.Token) bool {
	return func(tok lexer.Token) bool { return a(tok) || b(tok) }
}

// parseBody parses statements until endCheck matches. Reaching the end of
// input first is an error naming the unclosed directive.
func (p *Parser) parseBody(open string, endCheck func(lexer.Token) bool) ([]Stmt, *Error) {
	body, err := p.subparse(endCheck)
	if err != nil {
		return nil, err
	}
	if p.current() == nil {
		return nil, p.syntaxError(fmt.Sprintf("unclosed %s", open))
	}
	return body, nil
}

func (p *Parser) expectDirectiveEnd(name string) *Error {
	tok := p.current()
	if tok == nil {
		return p.unexpectedEOF(fmt.Sprintf("</#%s>", name))
	}
	if tok.Type != lexer.TokenDirectiveEnd || tok.Value != name {
		return p.unexpected(tokenDescription(tok), fmt.Sprintf("</#%s>", name))
	}
	p.advance()
	return nil
}

func (p *Parser) subparse(endCheck func(lexer.Token) bool) ([]Stmt, *Error) {
	stmts := []Stmt{}

	for {
		tok := p.current()
		if tok == nil {
			return stmts, nil
		}
		if endCheck != nil && endCheck(*tok) {
			return stmts, nil
		}
		p.advance()

		switch tok.Type {
		case lexer.TokenText:
			stmts = append(stmts, &Text{Raw: tok.Value, span: tok.Span})

		case lexer.TokenInterpStart:
			span := tok.Span
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenInterpEnd, "`}`"); err != nil {
				return nil, err
			}
			stmts = append(stmts, &Interpolation{Expr: expr, span: p.expandSpan(span)})

		case lexer.TokenDirectiveStart:
			stmt, err := p.parseDirective(tok)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)

		case lexer.TokenCallStart:
			stmt, err := p.parseUnifiedCall(tok.Span)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)

		case lexer.TokenDirectiveEnd, lexer.TokenCallEnd:
			p.pos--
			return nil, p.syntaxError(fmt.Sprintf("unexpected %s without matching start tag", tokenDescription(tok)))

		default:
			p.pos--
			return nil, p.syntaxError(fmt.Sprintf("unexpected %s", tokenDescription(tok)))
		}
	}
}

func (p *Parser) parseDirective(tok *lexer.Token) (Stmt, *Error) {
	span := tok.Span
	switch tok.Value {
	case "if":
		return p.parseIf(span)
	case "list":
		return p.parseList(span)
	case "break", "continue":
		return p.parseLoopControl(tok.Value, span)
	case "assign":
		return p.parseAssignment(ScopeNamespace, span)
	case "local":
		return p.parseAssignment(ScopeLocal, span)
	case "global":
		return p.parseAssignment(ScopeGlobal, span)
	case "macro":
		return p.parseMacro(MacroKindMacro, span)
	case "function":
		return p.parseMacro(MacroKindFunction, span)
	case "return":
		return p.parseReturn(span)
	case "nested":
		return p.parseNested(span)
	case "include":
		return p.parseInclude(span)
	case "import":
		return p.parseImport(span)
	case "attempt":
		return p.parseAttempt(span)
	case "setting":
		return p.parseSetting(span)
	case "else", "elseif", "elseIf", "recover":
		p.pos--
		return nil, p.syntaxError(fmt.Sprintf("<#%s> is not allowed here", tok.Value))
	}

	p.pos--
	err := p.syntaxError(fmt.Sprintf("unknown directive <#%s>", tok.Value))
	if s, ok := suggest.Closest(tok.Value, directives); ok {
		err.Tip = fmt.Sprintf("did you mean <#%s>?", s)
	}
	return nil, err
}

func (p *Parser) parseIf(span Span) (*If, *Error) {
	node := &If{}
	branchEnd := either(directiveStart("elseif", "elseIf", "else"), directiveEnd("if"))

	for {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOpenTagEnd("if"); err != nil {
			return nil, err
		}
		body, err := p.parseBody("<#if>", branchEnd)
		if err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, IfBranch{Cond: cond, Body: body})

		tok := p.current()
		if tok.Type != lexer.TokenDirectiveStart || tok.Value == "else" {
			break
		}
		p.advance()
	}

	if directiveStart("else")(*p.current()) {
		p.advance()
		if _, err := p.expectTagEnd(); err != nil {
			return nil, err
		}
		body, err := p.parseBody("<#if>", directiveEnd("if"))
		if err != nil {
			return nil, err
		}
		node.Else = body
	}
	if err := p.expectDirectiveEnd("if"); err != nil {
		return nil, err
	}
	node.span = p.expandSpan(span)
	return node, nil
}

func (p *Parser) parseList(span Span) (*List, *Error) {
	seq, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as", "`as`"); err != nil {
		return nil, err
	}
	node := &List{Seq: seq}
	name, _, err := p.expectIdent("loop variable name")
	if err != nil {
		return nil, err
	}
	if p.skip(lexer.TokenComma) {
		node.KeyVar = name
		if name, _, err = p.expectIdent("loop value variable name"); err != nil {
			return nil, err
		}
	}
	node.Var = name
	if err := p.expectOpenTagEnd("list"); err != nil {
		return nil, err
	}

	p.loopDepth++
	body, perr := p.parseBody("<#list>", either(directiveStart("else"), directiveEnd("list")))
	p.loopDepth--
	if perr != nil {
		return nil, perr
	}
	node.Body = body

	if p.current().Type == lexer.TokenDirectiveStart {
		p.advance()
		if _, err := p.expectTagEnd(); err != nil {
			return nil, err
		}
		elseBody, err := p.parseBody("<#list>", directiveEnd("list"))
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	if err := p.expectDirectiveEnd("list"); err != nil {
		return nil, err
	}
	node.span = p.expandSpan(span)
	return node, nil
}

func (p *Parser) parseLoopControl(name string, span Span) (Stmt, *Error) {
	if p.loopDepth == 0 {
		p.pos--
		return nil, p.syntaxError(fmt.Sprintf("<#%s> must be inside <#list>", name))
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	if name == "break" {
		return &Break{span: p.expandSpan(span)}, nil
	}
	return &Continue{span: p.expandSpan(span)}, nil
}

func (p *Parser) assignOp() (AssignOp, bool) {
	tok := p.current()
	if tok == nil {
		return 0, false
	}
	switch tok.Type {
	case lexer.TokenAssign:
		return AssignSet, true
	case lexer.TokenAddAssign:
		return AssignAdd, true
	case lexer.TokenSubAssign:
		return AssignSub, true
	case lexer.TokenMulAssign:
		return AssignMul, true
	case lexer.TokenDivAssign:
		return AssignDiv, true
	case lexer.TokenModAssign:
		return AssignMod, true
	case lexer.TokenIncr:
		return AssignIncr, true
	case lexer.TokenDecr:
		return AssignDecr, true
	}
	return 0, false
}

// atNamespaceClause reports whether an "in ns" clause follows. A variable
// called "in" being assigned is not one.
func (p *Parser) atNamespaceClause() bool {
	next := p.peek(1)
	return p.matchesKeyword("in") && (next == nil || !isAssignOp(next.Type))
}

func (p *Parser) parseNamespaceClause(scope Scope) (Expr, *Error) {
	if !p.atNamespaceClause() {
		return nil, nil
	}
	if scope != ScopeNamespace {
		return nil, p.syntaxError(fmt.Sprintf("cannot use \"in\" with <#%s>", scope.Keyword()))
	}
	p.advance()
	return p.parseExpr()
}

func (p *Parser) parseAssignment(scope Scope, span Span) (Stmt, *Error) {
	kw := scope.Keyword()
	name, err := p.expectName("variable name")
	if err != nil {
		return nil, err
	}

	if p.atTagEnd() || p.atNamespaceClause() {
		ns, err := p.parseNamespaceClause(scope)
		if err != nil {
			return nil, err
		}
		empty, err := p.expectTagEnd()
		if err != nil {
			return nil, err
		}
		node := &BlockAssignment{Scope: scope, Name: name, Namespace: ns}
		if !empty {
			body, err := p.parseBody("<#"+kw+">", directiveEnd(kw))
			if err != nil {
				return nil, err
			}
			if err := p.expectDirectiveEnd(kw); err != nil {
				return nil, err
			}
			node.Body = body
		}
		node.span = p.expandSpan(span)
		return node, nil
	}

	var items []*Assignment
	for {
		itemSpan := p.lastSpan
		op, ok := p.assignOp()
		if !ok {
			tok := p.current()
			if tok == nil {
				return nil, p.unexpectedEOF("assignment operator")
			}
			return nil, p.unexpected(tokenDescription(tok), "assignment operator")
		}
		p.advance()
		item := &Assignment{Scope: scope, Name: name, Op: op}
		if op != AssignIncr && op != AssignDecr {
			if item.Value, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		item.span = p.expandSpan(itemSpan)
		items = append(items, item)

		p.skip(lexer.TokenComma)
		if p.atTagEnd() || p.atNamespaceClause() {
			break
		}
		if name, err = p.expectName("variable name"); err != nil {
			return nil, err
		}
	}

	ns, err := p.parseNamespaceClause(scope)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}

	if len(items) == 1 {
		items[0].Namespace = ns
		items[0].span = p.expandSpan(span)
		return items[0], nil
	}
	for _, item := range items {
		item.InList = true
		item.Namespace = ns
	}
	return &AssignmentList{Scope: scope, Items: items, Namespace: ns, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseMacro(kind MacroKind, span Span) (*Macro, *Error) {
	kw := "macro"
	if kind == MacroKindFunction {
		kw = "function"
	}
	if p.macro != nil {
		p.pos--
		return nil, p.syntaxError(fmt.Sprintf("<#%s> cannot be defined inside another macro or function", kw))
	}

	name, err := p.expectName(kw + " name")
	if err != nil {
		return nil, err
	}
	m := &Macro{Name: name, Kind: kind}

	parens := p.skip(lexer.TokenParenOpen)
	seen := make(map[string]bool)
	sawDefault := false
	for {
		if parens && p.skip(lexer.TokenParenClose) {
			break
		}
		if !parens && p.atTagEnd() {
			break
		}
		if m.CatchAll != "" {
			return nil, p.syntaxError("the catch-all parameter must be the last parameter")
		}
		pname, _, err := p.expectIdent("parameter name")
		if err != nil {
			return nil, err
		}
		if seen[pname] {
			return nil, p.syntaxError(fmt.Sprintf("duplicate parameter %q", pname))
		}
		seen[pname] = true

		switch {
		case p.skip(lexer.TokenEllipsis):
			m.CatchAll = pname
		case p.skip(lexer.TokenAssign):
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			m.Params = append(m.Params, Param{Name: pname, Default: def})
			sawDefault = true
		default:
			if sawDefault {
				return nil, p.syntaxError(fmt.Sprintf("required parameter %q cannot follow parameters with default values", pname))
			}
			m.Params = append(m.Params, Param{Name: pname})
		}
		p.skip(lexer.TokenComma)
	}
	if err := p.expectOpenTagEnd(kw); err != nil {
		return nil, err
	}

	prevLoop := p.loopDepth
	p.macro, p.loopDepth = m, 0
	body, perr := p.parseBody("<#"+kw+">", directiveEnd(kw))
	p.macro, p.loopDepth = nil, prevLoop
	if perr != nil {
		return nil, perr
	}
	if err := p.expectDirectiveEnd(kw); err != nil {
		return nil, err
	}
	m.Body = body
	m.span = p.expandSpan(span)
	p.macros = append(p.macros, m)
	return m, nil
}

func (p *Parser) parseReturn(span Span) (*Return, *Error) {
	if p.macro == nil {
		p.pos--
		return nil, p.syntaxError("<#return> must be inside a macro or function")
	}
	node := &Return{}
	if !p.atTagEnd() {
		if p.macro.Kind != MacroKindFunction {
			return nil, p.syntaxError("<#return> in a macro cannot have a value")
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Value = v
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	node.span = p.expandSpan(span)
	return node, nil
}

func (p *Parser) parseNested(span Span) (*Nested, *Error) {
	if p.macro == nil || p.macro.Kind != MacroKindMacro {
		p.pos--
		return nil, p.syntaxError("<#nested> must be inside a macro")
	}
	node := &Nested{}
	for !p.atTagEnd() {
		if len(node.Args) > 0 {
			if _, err := p.expect(lexer.TokenComma, "`,`"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, arg)
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	node.span = p.expandSpan(span)
	return node, nil
}

func (p *Parser) parseInclude(span Span) (*Include, *Error) {
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	node := &Include{Name: name}
	for p.atNamedArg() {
		opt := p.advance().Value
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		switch opt {
		case "ignore_missing", "ignoreMissing":
			node.IgnoreMissing = v
			if lit, ok := v.(*Literal); ok {
				b, isBool := lit.Value.AsBool()
				if !isBool {
					return nil, &Error{Message: "ignore_missing must be a boolean", Name: p.name, Span: lit.span}
				}
				node.ignoreConst = &b
			}
		default:
			return nil, p.syntaxError(fmt.Sprintf("unsupported <#include> option %q", opt))
		}
		p.skip(lexer.TokenComma)
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	node.span = p.expandSpan(span)
	return node, nil
}

func (p *Parser) parseImport(span Span) (*Import, *Error) {
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as", "`as`"); err != nil {
		return nil, err
	}
	alias, _, err := p.expectIdent("namespace name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	return &Import{Name: name, Alias: alias, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseAttempt(span Span) (*Attempt, *Error) {
	if err := p.expectOpenTagEnd("attempt"); err != nil {
		return nil, err
	}
	body, err := p.parseBody("<#attempt>", directiveStart("recover"))
	if err != nil {
		return nil, err
	}
	p.advance()
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	rec, err := p.parseBody("<#attempt>", directiveEnd("attempt"))
	if err != nil {
		return nil, err
	}
	if err := p.expectDirectiveEnd("attempt"); err != nil {
		return nil, err
	}
	return &Attempt{Body: body, Recover: rec, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseSetting(span Span) (*Setting, *Error) {
	name, _, err := p.expectIdent("setting name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenAssign, "`=`"); err != nil {
		return nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectTagEnd(); err != nil {
		return nil, err
	}
	return &Setting{Name: name, Value: v, span: p.expandSpan(span)}, nil
}

func (p *Parser) parseCallee() (Expr, *Error) {
	span := p.currentSpan()
	var callee Expr
	switch {
	case p.matchesAny(lexer.TokenParenOpen, lexer.TokenDot):
		expr, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		callee = expr
	default:
		name, _, err := p.expectIdent("directive name")
		if err != nil {
			return nil, err
		}
		callee = &Identifier{Name: name, span: span}
	}
	// Whitespace ends the callee, so <@m [1, 2]/> passes a sequence.
	for {
		switch {
		case p.skipAdjacent(lexer.TokenDot):
			name, _, err := p.expectIdent("attribute name")
			if err != nil {
				return nil, err
			}
			callee = &Dot{Target: callee, Name: name, span: p.expandSpan(span)}
		case p.skipAdjacent(lexer.TokenBracketOpen):
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenBracketClose, "`]`"); err != nil {
				return nil, err
			}
			callee = &Index{Target: callee, Key: key, span: p.expandSpan(span)}
		default:
			return callee, nil
		}
	}
}

// CalleeName returns the dotted name of a directive callee, or "" when the
// callee is a computed expression.
func CalleeName(e Expr) string {
	switch e := e.(type) {
	case *Identifier:
		return e.Name
	case *Dot:
		if prefix := CalleeName(e.Target); prefix != "" {
			return prefix + "." + e.Name
		}
	}
	return ""
}

func (p *Parser) parseUnifiedCall(span Span) (*UnifiedCall, *Error) {
	callee, err := p.parseCallee()
	if err != nil {
		return nil, err
	}
	node := &UnifiedCall{Callee: callee}

	if p.atNamedArg() {
		seen := make(map[string]bool)
		for p.atNamedArg() {
			name := p.advance().Value
			p.advance()
			if seen[name] {
				return nil, p.syntaxError(fmt.Sprintf("duplicate argument %q", name))
			}
			seen[name] = true
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			node.Named = append(node.Named, NamedArg{Name: name, Value: v})
			p.skip(lexer.TokenComma)
		}
		if canStartExpr(p.current()) {
			return nil, p.syntaxError("cannot mix named and positional arguments")
		}
	} else if !p.atTagEnd() && !p.matches(lexer.TokenSemicolon) {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			node.Positional = append(node.Positional, arg)
			if !p.skip(lexer.TokenComma) {
				break
			}
		}
		if p.atNamedArg() {
			return nil, p.syntaxError("cannot mix positional and named arguments")
		}
	}

	if p.skip(lexer.TokenSemicolon) {
		for {
			name, _, err := p.expectIdent("loop variable name")
			if err != nil {
				return nil, err
			}
			node.LoopVars = append(node.LoopVars, name)
			if !p.skip(lexer.TokenComma) {
				break
			}
		}
	}

	empty, perr := p.expectTagEnd()
	if perr != nil {
		return nil, perr
	}
	if !empty {
		isEnd := func(tok lexer.Token) bool { return tok.Type == lexer.TokenCallEnd }
		body, err := p.parseBody("<@"+CalleeName(callee)+">", isEnd)
		if err != nil {
			return nil, err
		}
		end := p.advance()
		if end.Value != "" && end.Value != CalleeName(callee) {
			return nil, &Error{
				Message: fmt.Sprintf("</@%s> does not match <@%s>", end.Value, CalleeName(callee)),
				Name:    p.name,
				Span:    end.Span,
			}
		}
		node.Body = body
	}
	node.span = p.expandSpan(span)
	return node, nil
}

// isValidIdent reports whether s can be written as a bare identifier.
func isValidIdent(s string) bool {
	if s == "" || keywords[s] || s == "true" || s == "false" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= utf8.RuneSelf, r == '_', r == '$',
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
