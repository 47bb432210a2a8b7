package parser

import (
	"fmt"
	"regexp"
)

// TokenType represents the type of a token.
type TokenType string

const (
	TokenLParen     TokenType = "LPAREN"
	TokenRParen     TokenType = "RPAREN"
	TokenAnd        TokenType = "AND"
	TokenOr         TokenType = "OR"
	TokenComma      TokenType = "COMMA"
	TokenComparison TokenType = "COMPARISON"
	TokenValue      TokenType = "VALUE"
	TokenEOF        TokenType = "EOF"
)

// Token represents a token in the query text.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

func (t Token) String() string {
	return fmt.Sprintf("Token(%s, %q)", t.Type, t.Value)
}

type tokenPattern struct {
	Type    TokenType
	Pattern *regexp.Regexp
}

var tokenPatterns = []tokenPattern{
	{TokenLParen, regexp.MustCompile(`^\(`)},
	{TokenRParen, regexp.MustCompile(`^\)`)},
	{TokenAnd, regexp.MustCompile(`^&`)},
	{TokenOr, regexp.MustCompile(`^\|`)},
	{TokenComma, regexp.MustCompile(`^,`)},
	{TokenComparison, regexp.MustCompile(`^(?:[<>!]?=(?:\w*=)?|>|<)`)}, // =, ==, !=, <=, >=, <, >, =name=
	{TokenValue, regexp.MustCompile(`^[\w+*$\-:%./]+`)},                 // slash runs are array sugar
}

// Lexer splits query text into tokens.
type Lexer struct {
	text     string
	position int
	tokens   []Token
}

func NewLexer(text string) *Lexer {
	return &Lexer{text: text}
}

// Tokenize returns the tokens followed by a TokenEOF. Text matching no token is
// reported as a SyntaxError carrying the whole unrecognized run.
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.position < len(l.text) {
		remaining := l.text[l.position:]
		matched := false
		for _, pattern := range tokenPatterns {
			loc := pattern.Pattern.FindStringIndex(remaining)
			if loc == nil {
				continue
			}
			l.tokens = append(l.tokens, Token{
				Type:     pattern.Type,
				Value:    remaining[:loc[1]],
				Position: l.position,
			})
			l.position += loc[1]
			matched = true
			break
		}
		if !matched {
			return nil, &SyntaxError{
				Message:  "illegal character in query string encountered",
				Fragment: l.unrecognized(),
				Offset:   l.position,
			}
		}
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Position: len(l.text)})
	return l.tokens, nil
}

func (l *Lexer) unrecognized() string {
	end := l.position + 1
	for end < len(l.text) {
		rest := l.text[end:]
		recognized := false
		for _, pattern := range tokenPatterns {
			if pattern.Pattern.MatchString(rest) {
				recognized = true
				break
			}
		}
		if recognized {
			break
		}
		end++
	}
	return l.text[l.position:end]
}
