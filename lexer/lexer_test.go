package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nord/token"
)

func collectTokens(source string) []token.Token {
	l := New("test.nord", source)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func TestLexerPunctuationAndOperators(t *testing.T) {
	toks := collectTokens(`( ) { } : , . .. == != <= >= < > -> = ! + - * /`)
	want := []token.Type{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.COLON, token.COMMA,
		token.DOT, token.DOTDOT, token.EQ, token.NEQ, token.LE, token.GE, token.LT, token.GT,
		token.ARROW, token.ASSIGN, token.BANG, token.PLUS, token.MINUS, token.ASTERISK, token.SLASH,
		token.EOF,
	}
	require.Equal(t, len(want), len(toks))
	for i, w := range want {
		assert.Equal(t, w, toks[i].Type, "token %d", i)
	}
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	toks := collectTokens(`var let fn return if for in import true false nil and or exported foo`)
	want := []token.Type{
		token.VAR, token.LET, token.FN, token.RETURN, token.IF, token.FOR, token.IN, token.IMPORT,
		token.TRUE, token.FALSE, token.NIL, token.AND, token.OR, token.EXPORTED, token.IDENT,
		token.EOF,
	}
	require.Equal(t, len(want), len(toks))
	for i, w := range want {
		assert.Equal(t, w, toks[i].Type, "token %d", i)
	}
	assert.Equal(t, "foo", toks[len(toks)-2].Literal)
}

func TestLexerNumbers(t *testing.T) {
	toks := collectTokens(`42 3.14 0`)
	require.Len(t, toks, 4)
	assert.Equal(t, token.INT, toks[0].Type)
	assert.Equal(t, "42", toks[0].Literal)
	assert.Equal(t, token.FLOAT, toks[1].Type)
	assert.Equal(t, "3.14", toks[1].Literal)
	assert.Equal(t, token.INT, toks[2].Type)
}

func TestLexerStringEscapes(t *testing.T) {
	toks := collectTokens(`"hello\nworld" "a\"b"`)
	require.Len(t, toks, 3)
	assert.Equal(t, "hello\nworld", toks[0].Literal)
	assert.Equal(t, `a"b`, toks[1].Literal)
}

func TestLexerUnterminatedString(t *testing.T) {
	toks := collectTokens(`"never closes`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.ILLEGAL, toks[0].Type)
}

func TestLexerSkipsLineComments(t *testing.T) {
	toks := collectTokens("1 // a comment\n2")
	require.Len(t, toks, 4)
	assert.Equal(t, token.INT, toks[0].Type)
	assert.Equal(t, token.NEWLINE, toks[1].Type)
	assert.Equal(t, token.INT, toks[2].Type)
}

func TestLexerPositionTracking(t *testing.T) {
	toks := collectTokens("a\nbb")
	require.Len(t, toks, 4)
	assert.Equal(t, 1, toks[0].Pos.Line)
	assert.Equal(t, 2, toks[2].Pos.Line)
}
