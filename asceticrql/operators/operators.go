// Package operators is the library of named RQL operators evaluated over in-memory
// collections, together with the per-execution Context they share.
package operators

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrTooManyResults            = errors.New("rql: more than one object found")
	ErrComputationBudgetExceeded = errors.New("rql: query has taken too much computation")
	ErrNotCollection             = errors.New("rql: target is not a collection")
	ErrInvalidArgument           = errors.New("rql: invalid operator argument")
)

// Func is a compiled query term applied to a target collection. Terms passed as
// operator arguments (such as the branches of or() or the reducers of aggregate())
// arrive as Func values.
type Func func(ctx *Context, target any) (any, error)

// Operator receives the current collection as target and the term's remaining
// arguments, already resolved.
type Operator func(ctx *Context, target any, args ...any) (any, error)

// Page is the result of limit() when pagination metadata is requested. End is
// inclusive, so an empty page has End == Start-1.
type Page struct {
	Items      []any `json:"items"`
	Start      int   `json:"start"`
	End        int   `json:"end"`
	TotalCount int   `json:"totalCount"`
}

// Context is the state of one execution. It is not safe for concurrent use; the
// engine creates one per run.
type Context struct {
	Comparator *Comparator
	// HardLimit caps the count of every limit() when positive.
	HardLimit int
	// MaxIterations bounds the number of elements scanned when positive.
	MaxIterations int
	Logger        zerolog.Logger

	iterations int
}

func NewContext() *Context {
	return &Context{
		Comparator: DefaultComparator(),
		Logger:     zerolog.Nop(),
	}
}

// Iterations reports how many elements were scanned so far.
func (c *Context) Iterations() int {
	return c.iterations
}

// Tick accounts for n scanned elements and fails once the budget is spent.
func (c *Context) Tick(n int) error {
	c.iterations += n
	if c.MaxIterations > 0 && c.iterations > c.MaxIterations {
		return errors.Wrapf(ErrComputationBudgetExceeded,
			"%d iterations over the ceiling of %d; raise MaxIterations to allow longer running non-indexed queries",
			c.iterations, c.MaxIterations)
	}
	return nil
}

func (c *Context) comparator() *Comparator {
	if c.Comparator == nil {
		return DefaultComparator()
	}
	return c.Comparator
}
