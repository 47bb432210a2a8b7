// Package parser turns RQL text into a query.Query tree.
//
// The grammar is URL safe: calls name(arg,...), FIQL comparisons such as price=lt=10
// or price<10, '&' and '|' conjunctions that need parentheses to be mixed, bare
// parenthesised lists and slash runs (a/b) as arrays, "type:token" for an explicit
// converter and "$N" for a 1-based positional parameter.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/option"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

var operatorMap = map[string]string{
	"=":  "eq",
	"==": "eq",
	">":  "gt",
	">=": "ge",
	"<":  "lt",
	"<=": "le",
	"!=": "ne",
}

// DefaultLastSeen lists the terms whose last occurrence is kept in the parse cache.
var DefaultLastSeen = []string{"sort", "select", "values", "limit"}

var compatibleRewrite = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`%3C=`), "=le="},
	{regexp.MustCompile(`%3E=`), "=ge="},
	{regexp.MustCompile(`%3C`), "=lt="},
	{regexp.MustCompile(`%3E`), "=gt="},
}

type Options struct {
	// PrimaryKey is the field whose eq() value is cached; defaults to "id".
	PrimaryKey string
	// Compatible accepts percent-encoded <, <=, >, >= as comparison operators and
	// single-quoted string literals.
	Compatible bool
	// LastSeen defaults to DefaultLastSeen.
	LastSeen []string
	// Converters defaults to converters.NewDefaultRegistry(Compatible).
	Converters *converters.Registry
	// DefaultConverter names the converter for tokens without a "type:" prefix;
	// defaults to "auto".
	DefaultConverter string
}

func DefaultOptions() Options {
	return Options{
		PrimaryKey:       "id",
		Compatible:       true,
		LastSeen:         DefaultLastSeen,
		DefaultConverter: "auto",
	}
}

// Parser is safe for concurrent use; every Parse call keeps its own state.
type Parser struct {
	primaryKey       string
	compatible       bool
	lastSeen         map[string]bool
	converters       *converters.Registry
	defaultConverter converters.Converter
}

func New(opts Options) (*Parser, error) {
	if opts.PrimaryKey == "" {
		opts.PrimaryKey = "id"
	}
	if opts.LastSeen == nil {
		opts.LastSeen = DefaultLastSeen
	}
	if opts.Converters == nil {
		opts.Converters = converters.NewDefaultRegistry(opts.Compatible)
	}
	if opts.DefaultConverter == "" {
		opts.DefaultConverter = "auto"
	}
	def, err := opts.Converters.MustLookup(opts.DefaultConverter)
	if err != nil {
		return nil, err
	}
	lastSeen := make(map[string]bool, len(opts.LastSeen))
	for _, name := range opts.LastSeen {
		lastSeen[name] = true
	}
	return &Parser{
		primaryKey:       opts.PrimaryKey,
		compatible:       opts.Compatible,
		lastSeen:         lastSeen,
		converters:       opts.Converters,
		defaultConverter: def,
	}, nil
}

var defaultParser, _ = New(DefaultOptions())

// Default returns the parser used by the package-level functions.
func Default() *Parser {
	return defaultParser
}

// Parse parses input with the default parser.
func Parse(input any, params ...any) (*query.Query, error) {
	return defaultParser.Parse(input, params...)
}

// ParseLenient parses input with the default parser and never fails.
func ParseLenient(input any, params ...any) *query.Query {
	return defaultParser.ParseLenient(input, params...)
}

// FromMap builds eq(key,value) terms joined by "and" with the default parser.
func FromMap(m map[string]any) *query.Query {
	return defaultParser.FromMap(m)
}

// Parse accepts query text, a map of field equalities, or an already parsed
// *query.Query, which is returned unchanged. params bind "$1", "$2", ...
func (p *Parser) Parse(input any, params ...any) (*query.Query, error) {
	switch in := input.(type) {
	case nil:
		return p.parseText("", params)
	case string:
		return p.parseText(in, params)
	case *query.Query:
		return in, nil
	case map[string]any:
		return p.FromMap(in), nil
	}
	return nil, &SyntaxError{Message: "unsupported query input", Fragment: fmt.Sprintf("%T", input), Offset: -1}
}

// ParseLenient returns an empty "and" root carrying the failure in Error instead of
// returning an error.
func (p *Parser) ParseLenient(input any, params ...any) *query.Query {
	q, err := p.Parse(input, params...)
	if err != nil {
		return &query.Query{Name: query.DefaultName, Args: []any{}, Cache: query.NewCache(), Error: err.Error()}
	}
	return q
}

func (p *Parser) FromMap(m map[string]any) *query.Query {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	st := &state{parser: p, cache: query.NewCache()}
	root := query.New(query.DefaultName)
	for _, k := range keys {
		term := query.New("eq", k, m[k])
		st.finishTerm(term)
		root.Push(term)
	}
	root.Cache = st.cache
	return root
}

func (p *Parser) parseText(text string, params []any) (*query.Query, error) {
	if strings.HasPrefix(text, "?") {
		return nil, &SyntaxError{Message: "query must not start with ?", Offset: 0}
	}
	if p.compatible {
		for _, rw := range compatibleRewrite {
			text = rw.pattern.ReplaceAllString(text, rw.replacement)
		}
	}

	tokens, err := NewLexer(text).Tokenize()
	if err != nil {
		return nil, err
	}
	st := &state{
		parser: p,
		tokens: tokens,
		params: params,
		cache:  query.NewCache(),
		groups: make(map[*query.Query]bool),
	}
	root := &query.Query{Args: []any{}}
	if err := st.parseArgs(root, true); err != nil {
		return nil, err
	}
	if root.Name == "or" {
		root = query.New(query.DefaultName, &query.Query{Name: "or", Args: root.Args})
	}
	root.Cache = st.cache
	return root, nil
}

// state is the per-call parser state. groups marks terms opened by a bare '(' so
// that a conjunction group can be spliced into a parent of the same conjunction;
// it never leaves the parser.
type state struct {
	parser *Parser
	tokens []Token
	pos    int
	params []any
	cache  *query.Cache
	groups map[*query.Query]bool
}

func (s *state) peek() Token {
	return s.tokens[s.pos]
}

func (s *state) next() Token {
	tok := s.tokens[s.pos]
	if tok.Type != TokenEOF {
		s.pos++
	}
	return tok
}

// parseArgs reads arguments into term until its closing parenthesis, or until the
// end of input for the root.
func (s *state) parseArgs(term *query.Query, root bool) error {
	expectItem := true
	leading := true
	for {
		tok := s.peek()
		switch tok.Type {
		case TokenEOF:
			if !root {
				return &SyntaxError{Message: "opening parenthesis without a closing parenthesis", Offset: tok.Position}
			}
			s.closeTerm(term, root)
			return nil

		case TokenRParen:
			if root {
				return &SyntaxError{Message: "closing parenthesis without an opening parenthesis", Fragment: ")", Offset: tok.Position}
			}
			s.next()
			s.closeTerm(term, root)
			return nil

		case TokenAnd, TokenOr, TokenComma:
			s.next()
			// (,a) opens with an empty string argument
			if tok.Type == TokenComma && leading {
				v, err := s.convert(Token{Type: TokenValue, Position: tok.Position})
				if err != nil {
					return err
				}
				term.Args = append(term.Args, v)
			}
			leading = false
			if tok.Type == TokenAnd || tok.Type == TokenOr {
				if err := setConjunction(term, tok); err != nil {
					return err
				}
			}
			if tok.Type == TokenComma && s.endsValue() {
				v, err := s.convert(Token{Type: TokenValue, Position: tok.Position + 1})
				if err != nil {
					return err
				}
				term.Args = append(term.Args, v)
			}
			expectItem = true

		default:
			if !expectItem {
				return &SyntaxError{Message: "missing delimiter before", Fragment: tok.Value, Offset: tok.Position}
			}
			item, err := s.parseItem()
			if err != nil {
				return err
			}
			term.Args = append(term.Args, item)
			expectItem = false
			leading = false
		}
	}
}

// endsValue reports whether the next token cannot start a value, which makes the
// text after a comma an empty string.
func (s *state) endsValue() bool {
	switch s.peek().Type {
	case TokenRParen, TokenComma, TokenAnd, TokenOr, TokenEOF:
		return true
	}
	return false
}

func (s *state) parseItem() (any, error) {
	left, err := s.parsePrimary()
	if err != nil {
		return nil, err
	}
	if s.peek().Type != TokenComparison {
		return left, nil
	}
	return s.parseComparison(left)
}

// parsePrimary reads a call, a parenthesised group or a value. A comparison operator
// with nothing before it gets an empty left operand.
func (s *state) parsePrimary() (any, error) {
	tok := s.peek()
	switch tok.Type {
	case TokenValue:
		s.next()
		if s.peek().Type != TokenLParen {
			return s.convert(tok)
		}
		if strings.Contains(tok.Value, "/") {
			return nil, &SyntaxError{Message: "illegal operator name", Fragment: tok.Value, Offset: tok.Position}
		}
		s.next()
		call := &query.Query{Name: tok.Value, Args: []any{}}
		if err := s.parseArgs(call, false); err != nil {
			return nil, err
		}
		s.finishTerm(call)
		return call, nil

	case TokenLParen:
		return s.parseGroup()

	case TokenComparison:
		return s.convert(Token{Type: TokenValue, Position: tok.Position})
	}
	return nil, &SyntaxError{Message: "unexpected token", Fragment: tok.Value, Offset: tok.Position}
}

// parseGroup reads a bare parenthesised group. Without a conjunction it is a literal
// array; with one it becomes an "and" or "or" term.
func (s *state) parseGroup() (any, error) {
	s.next()
	group := &query.Query{Args: []any{}}
	if err := s.parseArgs(group, false); err != nil {
		return nil, err
	}
	if group.Name == "" {
		// ((a&b)) is the same group as (a&b)
		if len(group.Args) == 1 {
			if inner, ok := group.Args[0].(*query.Query); ok && s.groups[inner] {
				return inner, nil
			}
		}
		return group.Args, nil
	}
	s.groups[group] = true
	return group, nil
}

func (s *state) parseComparison(left any) (any, error) {
	opTok := s.next()
	if _, isTerm := left.(*query.Query); isTerm {
		return nil, &SyntaxError{Message: "illegal operator", Fragment: opTok.Value, Offset: opTok.Position}
	}
	name, ok := comparisonName(opTok.Value)
	if !ok {
		return nil, &SyntaxError{Message: "illegal operator", Fragment: opTok.Value, Offset: opTok.Position}
	}

	var right any
	var err error
	tok := s.peek()
	switch {
	case tok.Type == TokenValue:
		s.next()
		if s.peek().Type == TokenLParen {
			return nil, &SyntaxError{Message: "illegal comparison value", Fragment: tok.Value, Offset: tok.Position}
		}
		right, err = s.convert(tok)
	case tok.Type == TokenLParen:
		right, err = s.parseGroup()
		if _, isTerm := right.(*query.Query); err == nil && isTerm {
			return nil, &SyntaxError{Message: "illegal comparison value", Fragment: "(", Offset: tok.Position}
		}
	case s.endsValue():
		right, err = s.convert(Token{Type: TokenValue, Position: tok.Position})
	default:
		return nil, &SyntaxError{Message: "illegal comparison value", Fragment: tok.Value, Offset: tok.Position}
	}
	if err != nil {
		return nil, err
	}

	term := query.New(name, left, right)
	s.finishTerm(term)
	return term, nil
}

func comparisonName(op string) (string, bool) {
	if len(op) < 3 {
		name, ok := operatorMap[op]
		return name, ok
	}
	if op[0] != '=' || op[len(op)-1] != '=' {
		return "", false
	}
	return op[1 : len(op)-1], true
}

func setConjunction(term *query.Query, tok Token) error {
	op := "and"
	if tok.Type == TokenOr {
		op = "or"
	}
	if term.Name == "" {
		term.Name = op
		return nil
	}
	if term.Name != op {
		return &SyntaxError{
			Message:  "can not mix conjunctions within a group, use parenthesis around each set of same conjunctions (& and |)",
			Fragment: tok.Value,
			Offset:   tok.Position,
		}
	}
	return nil
}

// closeTerm names the root "and" when no conjunction was seen and splices bare
// groups of the same conjunction into term.
func (s *state) closeTerm(term *query.Query, root bool) {
	if root && term.Name == "" {
		term.Name = query.DefaultName
	}
	if term.Name != "and" && term.Name != "or" {
		return
	}
	spliced := term.Args[:0:0]
	for _, arg := range term.Args {
		if group, ok := arg.(*query.Query); ok && s.groups[group] && group.Name == term.Name {
			spliced = append(spliced, group.Args...)
			continue
		}
		spliced = append(spliced, arg)
	}
	term.Args = spliced
}

// finishTerm records a completed call in the parse cache.
func (s *state) finishTerm(term *query.Query) {
	if s.parser.lastSeen[term.Name] {
		s.cache.LastSeen[term.Name] = term.Args
	}
	if term.Name != "eq" || len(term.Args) < 2 {
		return
	}
	if field, ok := term.Args[0].(string); !ok || field != s.parser.primaryKey {
		return
	}
	switch v := term.Args[1].(type) {
	case nil, converters.UndefinedValue, *regexp.Regexp:
		return
	default:
		s.cache.PrimaryKey = option.Some(query.Stringify(v))
	}
}

// convert turns a value token into a scalar, or an array for a slash run.
func (s *state) convert(tok Token) (any, error) {
	if !strings.Contains(tok.Value, "/") {
		return s.convertScalar(tok.Value, tok.Position)
	}
	segments := strings.Split(tok.Value, "/")
	if segments[0] == "" {
		segments = segments[1:]
	}
	values := make([]any, 0, len(segments))
	for _, segment := range segments {
		v, err := s.convertScalar(segment, tok.Position)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (s *state) convertScalar(token string, position int) (any, error) {
	if strings.HasPrefix(token, "$") {
		return s.parameter(token), nil
	}
	convert := s.parser.defaultConverter
	if name, rest, found := strings.Cut(token, ":"); found {
		c, err := s.parser.converters.MustLookup(name)
		if err != nil {
			return nil, &SyntaxError{Message: "unknown converter", Fragment: name, Offset: position, Err: err}
		}
		convert, token = c, rest
	}
	v, err := convert(token)
	if err != nil {
		return nil, &SyntaxError{Message: "invalid value", Fragment: token, Offset: position, Err: err}
	}
	return v, nil
}

// parameter resolves "$N" against the 1-based parameter list; a missing slot is
// Undefined.
func (s *state) parameter(token string) any {
	digits := token[1:]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(digits[:end])
	if err != nil || n < 1 || n > len(s.params) {
		return converters.Undefined
	}
	return s.params[n-1]
}
