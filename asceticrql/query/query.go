// Package query holds the parsed form of an RQL query: a tree of named terms whose
// arguments are scalars, arrays of arguments, or nested terms.
package query

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"time"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/option"
)

// DefaultName is the conjunction a term without a name stands for.
const DefaultName = "and"

// Query is one call node, name(args...). The root term returned by the parser also
// carries the parse Cache, and Error when it came from a lenient parse.
type Query struct {
	Name  string
	Args  []any
	Cache *Cache
	Error string
}

// Cache keeps the last-seen arguments of frequently needed terms so callers can read
// them without walking the tree. It reflects the last textual occurrence only.
type Cache struct {
	LastSeen   map[string][]any
	PrimaryKey option.Option[string]
}

func NewCache() *Cache {
	return &Cache{LastSeen: make(map[string][]any)}
}

// New builds a term. An empty name means "and".
func New(name string, args ...any) *Query {
	if name == "" {
		name = DefaultName
	}
	if args == nil {
		args = []any{}
	}
	return &Query{Name: name, Args: args}
}

// Operator returns the term name, defaulting to the "and" conjunction.
func (q *Query) Operator() string {
	if q.Name == "" {
		return DefaultName
	}
	return q.Name
}

// Push appends a term or value and returns q.
func (q *Query) Push(arg any) *Query {
	q.Args = append(q.Args, arg)
	return q
}

// Equal reports structural equality. Cache and Error are ignored.
func (q *Query) Equal(other *Query) bool {
	if q == nil || other == nil {
		return q == other
	}
	if q.Operator() != other.Operator() {
		return false
	}
	return argsEqual(q.Args, other.Args)
}

func argsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two arguments structurally: terms by Equal, arrays element
// by element, numbers by value regardless of Go type, patterns by source, instants
// by Time.Equal.
func ValuesEqual(a, b any) bool {
	switch av := a.(type) {
	case *Query:
		bv, ok := b.(*Query)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		return ok && argsEqual(av, bv)
	case *regexp.Regexp:
		bv, ok := b.(*regexp.Regexp)
		return ok && av.String() == bv.String()
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if af, ok := ToFloat(a); ok {
		bf, ok := ToFloat(b)
		return ok && (af == bf || (math.IsNaN(af) && math.IsNaN(bf)))
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat widens any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	}
	return 0, false
}

type jsonTerm struct {
	Name  string    `json:"name"`
	Args  []any     `json:"args"`
	Cache *jsonCache `json:"cache,omitempty"`
	Error string    `json:"error,omitempty"`
}

type jsonCache struct {
	LastSeen   map[string][]any      `json:"lastSeen,omitempty"`
	PrimaryKey option.Option[string] `json:"pk"`
}

// MarshalJSON writes {"name":..,"args":[..]}; values without a JSON form (patterns,
// infinities, undefined) are written in their canonical query text.
func (q *Query) MarshalJSON() ([]byte, error) {
	t := jsonTerm{Name: q.Operator(), Args: jsonArgs(q.Args), Error: q.Error}
	if q.Cache != nil {
		t.Cache = &jsonCache{PrimaryKey: q.Cache.PrimaryKey}
		if len(q.Cache.LastSeen) > 0 {
			t.Cache.LastSeen = make(map[string][]any, len(q.Cache.LastSeen))
			for name, args := range q.Cache.LastSeen {
				t.Cache.LastSeen[name] = jsonArgs(args)
			}
		}
	}
	return json.Marshal(t)
}

func jsonArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = jsonArg(arg)
	}
	return out
}

func jsonArg(arg any) any {
	switch v := arg.(type) {
	case []any:
		return jsonArgs(v)
	case *regexp.Regexp, converters.UndefinedValue:
		return EncodeValue(v)
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return EncodeValue(v)
		}
	}
	return arg
}
