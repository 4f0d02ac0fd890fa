package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for neon source
// ---------------------------------------------------------------------------

// maxInterpolationDepth bounds nesting of "${ "${ }" }" inside strings.
const maxInterpolationDepth = 8

// interpolation tracks one open ${ ... } inside a string literal.
type interpolation struct {
	quote  byte
	braces int // unmatched { seen inside the expression
}

// Lexer tokenizes neon source code.
type Lexer struct {
	input   string
	pos     int // offset of the next unread byte
	line    int // current line (1-based)
	newline bool
	interp  []interpolation
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.input) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) advance() byte {
	c := l.input[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

func (l *Lexer) match(c byte) bool {
	if l.peek() != c || l.atEnd() {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) make(t TokenType, lit string, line int) Token {
	tok := Token{Type: t, Literal: lit, Line: line, NewlineBefore: l.newline}
	l.newline = false
	return tok
}

func (l *Lexer) errorf(line int, format string, args ...interface{}) Token {
	return l.make(TokenError, fmt.Sprintf(format, args...), line)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return *err
	}
	line := l.line
	if l.atEnd() {
		return l.make(TokenEOF, "", line)
	}
	start := l.pos
	c := l.advance()

	switch {
	case isLetter(c) || (c == '@' && isLetter(l.peek())):
		return l.readIdentifier(start, line)
	case isDigit(c):
		return l.readNumber(start, line)
	}

	op := func(single TokenType, pairs ...interface{}) Token {
		// pairs: byte, TokenType ... tried in order after c.
		for i := 0; i+1 < len(pairs); i += 2 {
			if l.match(pairs[i].(byte)) {
				return l.make(pairs[i+1].(TokenType), l.input[start:l.pos], line)
			}
		}
		return l.make(single, l.input[start:l.pos], line)
	}

	switch c {
	case '(':
		return l.make(TokenLParen, "(", line)
	case ')':
		return l.make(TokenRParen, ")", line)
	case '[':
		return l.make(TokenLBracket, "[", line)
	case ']':
		return l.make(TokenRBracket, "]", line)
	case '{':
		if n := len(l.interp); n > 0 {
			l.interp[n-1].braces++
		}
		return l.make(TokenLBrace, "{", line)
	case '}':
		if n := len(l.interp); n > 0 {
			if l.interp[n-1].braces == 0 {
				quote := l.interp[n-1].quote
				l.interp = l.interp[:n-1]
				return l.readString(quote, line)
			}
			l.interp[n-1].braces--
		}
		return l.make(TokenRBrace, "}", line)
	case ',':
		return l.make(TokenComma, ",", line)
	case ';':
		return l.make(TokenSemicolon, ";", line)
	case ':':
		return l.make(TokenColon, ":", line)
	case '?':
		return l.make(TokenQuestion, "?", line)
	case '~':
		return l.make(TokenTilde, "~", line)
	case '\\':
		return l.make(TokenFloorDiv, "\\", line)
	case '.':
		if l.match('.') {
			if l.match('.') {
				return l.make(TokenEllipsis, "...", line)
			}
			return l.make(TokenRange, "..", line)
		}
		return l.make(TokenDot, ".", line)
	case '"', '\'':
		return l.readString(c, line)
	case '+':
		return op(TokenPlus, byte('+'), TokenIncrement, byte('='), TokenPlusAssign)
	case '-':
		return op(TokenMinus, byte('-'), TokenDecrement, byte('='), TokenMinusAssign)
	case '*':
		if l.match('*') {
			return op(TokenPow, byte('='), TokenPowAssign)
		}
		return op(TokenStar, byte('='), TokenStarAssign)
	case '/':
		return op(TokenSlash, byte('='), TokenSlashAssign)
	case '%':
		return op(TokenPercent, byte('='), TokenPercentAssign)
	case '^':
		return op(TokenCaret, byte('='), TokenCaretAssign)
	case '&':
		return op(TokenAmp, byte('&'), TokenAndAnd, byte('='), TokenAmpAssign)
	case '|':
		return op(TokenPipe, byte('|'), TokenOrOr, byte('='), TokenPipeAssign)
	case '!':
		if l.match('=') {
			l.match('=')
			return l.make(TokenNotEqual, "!=", line)
		}
		return l.make(TokenBang, "!", line)
	case '=':
		if l.match('=') {
			l.match('=')
			return l.make(TokenEqual, "==", line)
		}
		return l.make(TokenAssign, "=", line)
	case '<':
		if l.match('<') {
			return op(TokenShl, byte('='), TokenShlAssign)
		}
		return op(TokenLess, byte('='), TokenLessEqual)
	case '>':
		if l.match('>') {
			return op(TokenShr, byte('='), TokenShrAssign)
		}
		return op(TokenGreater, byte('='), TokenGreaterEqual)
	}

	r, _ := utf8.DecodeRuneInString(l.input[start:])
	return l.errorf(line, "unexpected character %q", r)
}

// skipWhitespaceAndComments skips blanks, "//" and "#" line comments and
// "/* */" block comments, recording whether a newline was crossed.
func (l *Lexer) skipWhitespaceAndComments() *Token {
	for !l.atEnd() {
		switch c := l.peek(); {
		case c == '\n':
			l.newline = true
			l.advance()
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '#', c == '/' && l.peekNext() == '/':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekNext() == '*':
			line := l.line
			l.pos += 2
			depth := 1
			for depth > 0 {
				if l.atEnd() {
					tok := l.errorf(line, "unterminated block comment")
					return &tok
				}
				switch {
				case l.peek() == '/' && l.peekNext() == '*':
					l.pos += 2
					depth++
				case l.peek() == '*' && l.peekNext() == '/':
					l.pos += 2
					depth--
				default:
					if l.advance() == '\n' {
						l.newline = true
					}
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) readIdentifier(start, line int) Token {
	for isLetter(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	word := l.input[start:l.pos]
	if t, ok := keywords[word]; ok {
		return l.make(t, word, line)
	}
	return l.make(TokenIdentifier, word, line)
}

// readNumber scans 42, 1.5, 2e10, 0xff, 0b101 and 0c17. The literal keeps
// the source text; ParseNumber turns it into a float64.
func (l *Lexer) readNumber(start, line int) Token {
	if l.input[start] == '0' {
		var digit func(byte) bool
		switch l.peek() {
		case 'x', 'X':
			digit = isHexDigit
		case 'b', 'B':
			digit = func(c byte) bool { return c == '0' || c == '1' }
		case 'c', 'C':
			digit = func(c byte) bool { return c >= '0' && c <= '7' }
		}
		if digit != nil {
			l.advance()
			if !digit(l.peek()) {
				return l.errorf(line, "malformed number literal %q", l.input[start:l.pos])
			}
			for digit(l.peek()) || l.peek() == '_' {
				l.advance()
			}
			return l.make(TokenNumber, l.input[start:l.pos], line)
		}
	}
	for isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		save := l.pos
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !isDigit(l.peek()) {
			l.pos = save
		} else {
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	return l.make(TokenNumber, l.input[start:l.pos], line)
}

// ParseNumber converts a number literal as produced by the lexer.
func ParseNumber(lit string) (float64, error) {
	lit = strings.ReplaceAll(lit, "_", "")
	if len(lit) > 2 && lit[0] == '0' {
		base := 0
		switch lit[1] {
		case 'x', 'X':
			base = 16
		case 'b', 'B':
			base = 2
		case 'c', 'C':
			base = 8
		}
		if base != 0 {
			n, err := strconv.ParseUint(lit[2:], base, 64)
			if err != nil {
				return 0, err
			}
			return float64(n), nil
		}
	}
	return strconv.ParseFloat(lit, 64)
}

// readString scans the body of a string up to the closing quote or the
// next "${". The opening quote has already been consumed.
func (l *Lexer) readString(quote byte, line int) Token {
	var sb strings.Builder
	for {
		if l.atEnd() {
			return l.errorf(line, "unterminated string (opening quote not matched)")
		}
		c := l.advance()
		switch {
		case c == quote:
			return l.make(TokenString, sb.String(), line)
		case c == '$' && l.peek() == '{':
			l.advance()
			if len(l.interp) >= maxInterpolationDepth {
				return l.errorf(line, "maximum interpolation nesting of %d exceeded", maxInterpolationDepth)
			}
			l.interp = append(l.interp, interpolation{quote: quote})
			return l.make(TokenInterpolation, sb.String(), line)
		case c == '\\':
			if l.atEnd() {
				return l.errorf(line, "unterminated string (opening quote not matched)")
			}
			if err := l.readEscape(&sb); err != "" {
				return l.errorf(l.line, "%s", err)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func (l *Lexer) readEscape(sb *strings.Builder) string {
	c := l.advance()
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case 'e':
		sb.WriteByte(0x1b)
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if l.pos+width > len(l.input) {
			return "truncated \\" + string(c) + " escape"
		}
		hex := l.input[l.pos : l.pos+width]
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return fmt.Sprintf("invalid \\%c escape %q", c, hex)
		}
		l.pos += width
		if c == 'x' {
			sb.WriteByte(byte(n))
		} else {
			sb.WriteRune(rune(n))
		}
	case '\n':
		// line continuation
	default:
		// \\ \" \' \$ and unknown escapes yield the character itself
		sb.WriteByte(c)
	}
	return ""
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Tokenize returns all tokens of input, ending with EOF or the first error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}
