package compiler

import (
	"strings"
	"testing"
)

type tokSpec struct {
	typ TokenType
	lit string
}

func expectTokens(t *testing.T, input string, expected []tokSpec) {
	t.Helper()
	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("%q token[%d] type = %v, want %v", input, i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("%q token[%d] literal = %q, want %q", input, i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerDelimiters(t *testing.T) {
	expectTokens(t, `( ) [ ] { } , ; : ? . .. ...`, []tokSpec{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenSemicolon, ";"},
		{TokenColon, ":"},
		{TokenQuestion, "?"},
		{TokenDot, "."},
		{TokenRange, ".."},
		{TokenEllipsis, "..."},
		{TokenEOF, ""},
	})
}

func TestLexerOperators(t *testing.T) {
	expectTokens(t, `+ ++ += - -- -= * ** **= *= / /= \ % %= & && &= | || |= ^ ^= ~ << <<= >> >>= ! != !== = == === < <= > >=`, []tokSpec{
		{TokenPlus, "+"},
		{TokenIncrement, "++"},
		{TokenPlusAssign, "+="},
		{TokenMinus, "-"},
		{TokenDecrement, "--"},
		{TokenMinusAssign, "-="},
		{TokenStar, "*"},
		{TokenPow, "**"},
		{TokenPowAssign, "**="},
		{TokenStarAssign, "*="},
		{TokenSlash, "/"},
		{TokenSlashAssign, "/="},
		{TokenFloorDiv, "\\"},
		{TokenPercent, "%"},
		{TokenPercentAssign, "%="},
		{TokenAmp, "&"},
		{TokenAndAnd, "&&"},
		{TokenAmpAssign, "&="},
		{TokenPipe, "|"},
		{TokenOrOr, "||"},
		{TokenPipeAssign, "|="},
		{TokenCaret, "^"},
		{TokenCaretAssign, "^="},
		{TokenTilde, "~"},
		{TokenShl, "<<"},
		{TokenShlAssign, "<<="},
		{TokenShr, ">>"},
		{TokenShrAssign, ">>="},
		{TokenBang, "!"},
		{TokenNotEqual, "!="},
		{TokenNotEqual, "!="},
		{TokenAssign, "="},
		{TokenEqual, "=="},
		{TokenEqual, "=="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenEOF, ""},
	})
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	expectTokens(t, `class Foo extends Bar function def var let nil null @iter @itern _x9 instanceof`, []tokSpec{
		{TokenClass, "class"},
		{TokenIdentifier, "Foo"},
		{TokenExtends, "extends"},
		{TokenIdentifier, "Bar"},
		{TokenFunction, "function"},
		{TokenFunction, "def"},
		{TokenVar, "var"},
		{TokenVar, "let"},
		{TokenNull, "nil"},
		{TokenNull, "null"},
		{TokenIdentifier, "@iter"},
		{TokenIdentifier, "@itern"},
		{TokenIdentifier, "_x9"},
		{TokenInstanceOf, "instanceof"},
		{TokenEOF, ""},
	})
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"42", 42},
		{"0", 0},
		{"1.5", 1.5},
		{"1_000_000", 1000000},
		{"2e3", 2000},
		{"2.5E-1", 0.25},
		{"0xff", 255},
		{"0XFF", 255},
		{"0b101", 5},
		{"0c17", 15},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q", tc.input, tok.Literal)
		}
		got, err := ParseNumber(tok.Literal)
		if err != nil {
			t.Errorf("ParseNumber(%q): %v", tok.Literal, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tok.Literal, got, tc.want)
		}
	}
}

func TestLexerRangeAfterNumber(t *testing.T) {
	expectTokens(t, `1..5`, []tokSpec{
		{TokenNumber, "1"},
		{TokenRange, ".."},
		{TokenNumber, "5"},
		{TokenEOF, ""},
	})
	// A trailing e without digits is not an exponent.
	expectTokens(t, `3e`, []tokSpec{
		{TokenNumber, "3"},
		{TokenIdentifier, "e"},
	})
}

func TestLexerMalformedNumber(t *testing.T) {
	for _, input := range []string{"0x", "0b2", "0cz"} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q) = %v, want error", input, tok)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"it's"`, "it's"},
		{`"a\nb\tc"`, "a\nb\tc"},
		{`"q\"q"`, `q"q`},
		{`"\x41é"`, "Aé"},
		{`"\U0001F600"`, "\U0001F600"},
		{`"\e[0m"`, "\x1b[0m"},
		{`"\$"`, "$"},
		{"\"line\\\ncont\"", "linecont"},
		{`"\q"`, "q"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%s): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStringErrors(t *testing.T) {
	for _, input := range []string{`"open`, `"bad \xZZ"`, `"trunc \u12`} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%s) = %v, want error", input, tok)
		}
	}
}

func TestLexerInterpolation(t *testing.T) {
	expectTokens(t, `"a ${x + 1} b ${ {k: 1}["k"] } c"`, []tokSpec{
		{TokenInterpolation, "a "},
		{TokenIdentifier, "x"},
		{TokenPlus, "+"},
		{TokenNumber, "1"},
		{TokenInterpolation, " b "},
		{TokenLBrace, "{"},
		{TokenIdentifier, "k"},
		{TokenColon, ":"},
		{TokenNumber, "1"},
		{TokenRBrace, "}"},
		{TokenLBracket, "["},
		{TokenString, "k"},
		{TokenRBracket, "]"},
		{TokenString, " c"},
		{TokenEOF, ""},
	})
}

func TestLexerNestedInterpolation(t *testing.T) {
	expectTokens(t, `"x${ "y${z}" }w"`, []tokSpec{
		{TokenInterpolation, "x"},
		{TokenInterpolation, "y"},
		{TokenIdentifier, "z"},
		{TokenString, ""},
		{TokenString, "w"},
		{TokenEOF, ""},
	})

	deep := strings.Repeat(`"${`, maxInterpolationDepth+1)
	toks := Tokenize(deep)
	if last := toks[len(toks)-1]; last.Type != TokenError {
		t.Errorf("excessive nesting: last token = %v, want error", last)
	}
}

func TestLexerComments(t *testing.T) {
	input := `a // line
# hash comment
/* block /* nested */ still */ b`
	toks := Tokenize(input)
	if len(toks) != 3 {
		t.Fatalf("got %d tokens %v, want 3", len(toks), toks)
	}
	if toks[0].Literal != "a" || toks[1].Literal != "b" {
		t.Errorf("tokens = %v", toks)
	}
	if !toks[1].NewlineBefore {
		t.Error("b should be marked NewlineBefore")
	}
	if toks[1].Line != 3 {
		t.Errorf("b line = %d, want 3", toks[1].Line)
	}

	bad := Tokenize("x /* never closed")
	if bad[len(bad)-1].Type != TokenError {
		t.Error("unterminated block comment not reported")
	}
}

func TestLexerNewlineBefore(t *testing.T) {
	toks := Tokenize("f\n(1)")
	if toks[0].NewlineBefore {
		t.Error("first token marked NewlineBefore")
	}
	if !toks[1].NewlineBefore {
		t.Error("( after a newline not marked")
	}
	if toks[2].NewlineBefore {
		t.Error("1 marked NewlineBefore")
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	toks := Tokenize("a ` b")
	last := toks[len(toks)-1]
	if last.Type != TokenError || !strings.Contains(last.Literal, "unexpected character") {
		t.Errorf("last token = %v", last)
	}
}
