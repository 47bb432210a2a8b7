// Package engine executes RQL queries against in-memory collections.
//
// A query is compiled once into a pipeline of closures and can then be run against
// any number of collections:
//
//	ev, err := engine.Compile("price=lt=10&sort(-price)", engine.Options{})
//	cheap, err := ev.Run(products)
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/operators"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/parser"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

// UnknownOperatorError is returned when a term names an operator found neither in
// the caller's overrides nor in the defaults.
type UnknownOperatorError struct {
	Name string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("rql: operator %q is not defined", e.Name)
}

type Options struct {
	// Parameters bind "$1", "$2", ... when the query is text.
	Parameters []any
	// Operators are consulted before the default operators for this execution only.
	Operators map[string]operators.Operator
	// Parser parses text queries; defaults to parser.Default().
	Parser *parser.Parser
	// Comparator defaults to operators.DefaultComparator().
	Comparator *operators.Comparator
	// HardLimit caps every limit() when positive.
	HardLimit int
	// MaxIterations bounds the elements scanned per run when positive.
	MaxIterations int
	// Logger receives debug events for compile and run; the zero value discards them.
	Logger zerolog.Logger
}

// Evaluator is a compiled query. It holds no per-run state and may be run
// concurrently.
type Evaluator struct {
	query *query.Query
	fn    operators.Func
	opts  Options
}

// Compile parses q when it is text or a map and compiles it against the layered
// operator registry.
func Compile(q any, opts Options) (*Evaluator, error) {
	p := opts.Parser
	if p == nil {
		p = parser.Default()
	}
	parsed, err := p.Parse(q, opts.Parameters...)
	if err != nil {
		return nil, err
	}
	c := &compiler{
		registry: operators.Defaults().Layer(opts.Operators),
	}
	fn, err := c.compile(parsed)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug().Str("query", parsed.String()).Msg("compiled query")
	return &Evaluator{query: parsed, fn: fn, opts: opts}, nil
}

// Execute compiles q and runs it once against target.
func Execute(q any, opts Options, target any) (any, error) {
	ev, err := Compile(q, opts)
	if err != nil {
		return nil, err
	}
	return ev.Run(target)
}

// Query returns the parsed query the evaluator was compiled from.
func (e *Evaluator) Query() *query.Query {
	return e.query
}

// Run applies the compiled query to target, usually a slice. The result is a
// collection, a *operators.Page, or a scalar from a terminal operator.
func (e *Evaluator) Run(target any) (any, error) {
	ctx := operators.NewContext()
	ctx.HardLimit = e.opts.HardLimit
	ctx.MaxIterations = e.opts.MaxIterations
	ctx.Logger = e.opts.Logger
	if e.opts.Comparator != nil {
		ctx.Comparator = e.opts.Comparator
	}
	result, err := e.fn(ctx, target)
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debug().Int("iterations", ctx.Iterations()).Msg("executed query")
	return result, nil
}

type compiler struct {
	registry *operators.Registry
}

// compile reduces a term to a Func. Comparisons the caller did not override become
// direct filters; every other term calls its registered operator with the current
// collection and its compiled arguments.
func (c *compiler) compile(q *query.Query) (operators.Func, error) {
	name := q.Operator()
	if operators.IsComparison(name) && !c.registry.Overrides(name) {
		if fn, ok := compileComparison(operators.Comparison(name), q.Args); ok {
			return fn, nil
		}
	}
	op, ok := c.registry.Lookup(name)
	if !ok {
		return nil, &UnknownOperatorError{Name: name}
	}
	args := make([]any, len(q.Args))
	for i, arg := range q.Args {
		compiled, err := c.compileArg(arg)
		if err != nil {
			return nil, err
		}
		args[i] = compiled
	}
	return func(ctx *operators.Context, target any) (any, error) {
		return op(ctx, target, args...)
	}, nil
}

func compileComparison(op operators.Comparison, args []any) (operators.Func, bool) {
	var path, value any
	switch len(args) {
	case 1:
		value = args[0]
	case 2:
		path, value = args[0], args[1]
	default:
		return nil, false
	}
	if _, isTerm := value.(*query.Query); isTerm {
		return nil, false
	}
	return operators.CompareFilter(op, path, value), true
}

func (c *compiler) compileArg(arg any) (any, error) {
	switch v := arg.(type) {
	case *query.Query:
		return c.compile(v)
	case []any:
		compiled := make([]any, len(v))
		for i, item := range v {
			ci, err := c.compileArg(item)
			if err != nil {
				return nil, err
			}
			compiled[i] = ci
		}
		return compiled, nil
	}
	return arg, nil
}
