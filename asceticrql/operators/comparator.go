package operators

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"time"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

type Comparison string

const (
	Eq Comparison = "eq"
	Ne Comparison = "ne"
	Lt Comparison = "lt"
	Le Comparison = "le"
	Gt Comparison = "gt"
	Ge Comparison = "ge"
)

// Comparisons lists the two-argument comparisons the engine compiles directly
// into filters.
var Comparisons = []Comparison{Eq, Ne, Lt, Le, Gt, Ge}

func IsComparison(name string) bool {
	switch Comparison(name) {
	case Eq, Ne, Lt, Le, Gt, Ge:
		return true
	}
	return false
}

type compareKey struct {
	left  reflect.Type
	op    Comparison
	right reflect.Type
}

// Comparator evaluates comparisons through a table keyed by operand types. Numbers
// of any Go kind are compared as float64. Pairs without an entry fall back to
// structural equality for eq/ne and compare false otherwise.
type Comparator struct {
	binary map[compareKey]func(left, right any) bool
}

func NewComparator() *Comparator {
	return &Comparator{binary: make(map[compareKey]func(left, right any) bool)}
}

func RegisterBinary[L, R any](c *Comparator, op Comparison, fn func(L, R) bool) {
	var zeroL L
	var zeroR R
	key := compareKey{
		left:  reflect.TypeOf(zeroL),
		op:    op,
		right: reflect.TypeOf(zeroR),
	}
	c.binary[key] = func(left, right any) bool {
		return fn(left.(L), right.(R))
	}
}

func registerOrdered[T cmp.Ordered](c *Comparator) {
	RegisterBinary[T, T](c, Eq, func(a, b T) bool { return a == b })
	RegisterBinary[T, T](c, Ne, func(a, b T) bool { return a != b })
	RegisterBinary[T, T](c, Lt, func(a, b T) bool { return a < b })
	RegisterBinary[T, T](c, Le, func(a, b T) bool { return a <= b })
	RegisterBinary[T, T](c, Gt, func(a, b T) bool { return a > b })
	RegisterBinary[T, T](c, Ge, func(a, b T) bool { return a >= b })
}

var defaultComparator = NewDefaultComparator()

func DefaultComparator() *Comparator {
	return defaultComparator
}

// NewDefaultComparator knows numbers, strings, booleans, instants and durations.
func NewDefaultComparator() *Comparator {
	c := NewComparator()

	registerOrdered[float64](c)
	registerOrdered[string](c)
	registerOrdered[time.Duration](c)

	RegisterBinary[bool, bool](c, Eq, func(a, b bool) bool { return a == b })
	RegisterBinary[bool, bool](c, Ne, func(a, b bool) bool { return a != b })

	RegisterBinary[time.Time, time.Time](c, Eq, func(a, b time.Time) bool { return a.Equal(b) })
	RegisterBinary[time.Time, time.Time](c, Ne, func(a, b time.Time) bool { return !a.Equal(b) })
	RegisterBinary[time.Time, time.Time](c, Lt, func(a, b time.Time) bool { return a.Before(b) })
	RegisterBinary[time.Time, time.Time](c, Le, func(a, b time.Time) bool { return !a.After(b) })
	RegisterBinary[time.Time, time.Time](c, Gt, func(a, b time.Time) bool { return a.After(b) })
	RegisterBinary[time.Time, time.Time](c, Ge, func(a, b time.Time) bool { return !a.Before(b) })

	return c
}

// Compare applies op to left and right. A pattern on the right of eq or ne tests
// the text of the left operand.
func (c *Comparator) Compare(left any, op Comparison, right any) bool {
	if re, ok := right.(*regexp.Regexp); ok && (op == Eq || op == Ne) {
		matched := matchPattern(re, left)
		return matched == (op == Eq)
	}
	left, right = numeric(left), numeric(right)
	key := compareKey{left: reflect.TypeOf(left), op: op, right: reflect.TypeOf(right)}
	if fn, ok := c.binary[key]; ok {
		return fn(left, right)
	}
	switch op {
	case Eq:
		return query.ValuesEqual(left, right)
	case Ne:
		return !query.ValuesEqual(left, right)
	}
	return false
}

func matchPattern(re *regexp.Regexp, v any) bool {
	switch s := v.(type) {
	case string:
		return re.MatchString(s)
	case nil, converters.UndefinedValue:
		return false
	}
	return re.MatchString(query.Stringify(v))
}

func numeric(v any) any {
	if _, ok := v.(float64); ok {
		return v
	}
	if f, ok := query.ToFloat(v); ok {
		return f
	}
	return v
}

// Order is a total order over scalar values used by sort(), min() and max(). Values
// of different kinds order as absent < booleans < numbers < strings < instants <
// anything else; NaN sorts before every other number.
func Order(a, b any) int {
	a, b = numeric(a), numeric(b)
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil, converters.UndefinedValue:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		if math.IsNaN(av) || math.IsNaN(bv) {
			return cmp.Compare(boolRank(!math.IsNaN(av)), boolRank(!math.IsNaN(bv)))
		}
		return cmp.Compare(av, bv)
	case string:
		return cmp.Compare(av, b.(string))
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	switch v.(type) {
	case nil, converters.UndefinedValue:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	}
	return 5
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
