package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber        // 42, 0xff, 0b101, 0c17, 1.5e3
	TokenString        // "hello" or 'hello'
	TokenInterpolation // "head ${ : the literal part before an interpolated expression
	TokenIdentifier

	// Delimiters
	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenDot
	TokenRange    // ..
	TokenEllipsis // ...
	TokenSemicolon
	TokenColon
	TokenQuestion

	// Operators
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenFloorDiv // \
	TokenPercent
	TokenPow // **
	TokenAmp
	TokenPipe
	TokenCaret
	TokenTilde
	TokenShl
	TokenShr
	TokenBang
	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual
	TokenAssign
	TokenPlusAssign
	TokenMinusAssign
	TokenStarAssign
	TokenSlashAssign
	TokenPercentAssign
	TokenPowAssign
	TokenAmpAssign
	TokenPipeAssign
	TokenCaretAssign
	TokenShlAssign
	TokenShrAssign
	TokenIncrement
	TokenDecrement
	TokenAndAnd
	TokenOrOr

	// Keywords
	TokenAnd
	TokenAs
	TokenAssert
	TokenBreak
	TokenCase
	TokenCatch
	TokenClass
	TokenConst
	TokenContinue
	TokenDefault
	TokenDo
	TokenEcho
	TokenElse
	TokenEmpty
	TokenExtends
	TokenFalse
	TokenFinally
	TokenFor
	TokenForeach
	TokenFunction
	TokenIf
	TokenImport
	TokenIn
	TokenInstanceOf
	TokenNew
	TokenNull
	TokenOr
	TokenReturn
	TokenStatic
	TokenSuper
	TokenSwitch
	TokenThis
	TokenThrow
	TokenTrue
	TokenTry
	TokenTypeof
	TokenVar
	TokenWhile
)

var tokenNames = map[TokenType]string{
	TokenEOF:           "EOF",
	TokenError:         "ERROR",
	TokenNumber:        "NUMBER",
	TokenString:        "STRING",
	TokenInterpolation: "INTERPOLATION",
	TokenIdentifier:    "IDENTIFIER",
	TokenLParen:        "(",
	TokenRParen:        ")",
	TokenLBrace:        "{",
	TokenRBrace:        "}",
	TokenLBracket:      "[",
	TokenRBracket:      "]",
	TokenComma:         ",",
	TokenDot:           ".",
	TokenRange:         "..",
	TokenEllipsis:      "...",
	TokenSemicolon:     ";",
	TokenColon:         ":",
	TokenQuestion:      "?",
	TokenPlus:          "+",
	TokenMinus:         "-",
	TokenStar:          "*",
	TokenSlash:         "/",
	TokenFloorDiv:      "\\",
	TokenPercent:       "%",
	TokenPow:           "**",
	TokenAmp:           "&",
	TokenPipe:          "|",
	TokenCaret:         "^",
	TokenTilde:         "~",
	TokenShl:           "<<",
	TokenShr:           ">>",
	TokenBang:          "!",
	TokenEqual:         "==",
	TokenNotEqual:      "!=",
	TokenLess:          "<",
	TokenLessEqual:     "<=",
	TokenGreater:       ">",
	TokenGreaterEqual:  ">=",
	TokenAssign:        "=",
	TokenPlusAssign:    "+=",
	TokenMinusAssign:   "-=",
	TokenStarAssign:    "*=",
	TokenSlashAssign:   "/=",
	TokenPercentAssign: "%=",
	TokenPowAssign:     "**=",
	TokenAmpAssign:     "&=",
	TokenPipeAssign:    "|=",
	TokenCaretAssign:   "^=",
	TokenShlAssign:     "<<=",
	TokenShrAssign:     ">>=",
	TokenIncrement:     "++",
	TokenDecrement:     "--",
	TokenAndAnd:        "&&",
	TokenOrOr:          "||",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	for word, kw := range keywords {
		if kw == t {
			return word
		}
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string // raw text; for strings the unescaped contents
	Line    int
	// NewlineBefore is set when a line break separates this token from the
	// previous one. It ends statements and keeps ( and [ on a new line from
	// being read as a call or index.
	NewlineBefore bool
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var keywords = map[string]TokenType{
	"and":        TokenAnd,
	"as":         TokenAs,
	"assert":     TokenAssert,
	"break":      TokenBreak,
	"case":       TokenCase,
	"catch":      TokenCatch,
	"class":      TokenClass,
	"const":      TokenConst,
	"continue":   TokenContinue,
	"def":        TokenFunction,
	"default":    TokenDefault,
	"do":         TokenDo,
	"echo":       TokenEcho,
	"else":       TokenElse,
	"empty":      TokenEmpty,
	"extends":    TokenExtends,
	"false":      TokenFalse,
	"finally":    TokenFinally,
	"for":        TokenFor,
	"foreach":    TokenForeach,
	"function":   TokenFunction,
	"if":         TokenIf,
	"import":     TokenImport,
	"in":         TokenIn,
	"instanceof": TokenInstanceOf,
	"let":        TokenVar,
	"new":        TokenNew,
	"nil":        TokenNull,
	"null":       TokenNull,
	"or":         TokenOr,
	"return":     TokenReturn,
	"static":     TokenStatic,
	"super":      TokenSuper,
	"switch":     TokenSwitch,
	"this":       TokenThis,
	"throw":      TokenThrow,
	"true":       TokenTrue,
	"try":        TokenTry,
	"typeof":     TokenTypeof,
	"var":        TokenVar,
	"while":      TokenWhile,
}
