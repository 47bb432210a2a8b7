package query

import (
	"math"
	"strings"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/option"
)

// Visitor receives every leaf term during Walk.
type Visitor func(name string, args []any)

// Walk visits terms depth first. A term whose first argument is itself a term is a
// wrapper (a conjunction or grouping); Walk descends into it instead of visiting it.
func (q *Query) Walk(visit Visitor) {
	walkTerms(q.Args, visit)
}

func walkTerms(terms []any, visit Visitor) {
	for _, t := range terms {
		term, ok := t.(*Query)
		if !ok || term == nil {
			continue
		}
		if len(term.Args) > 0 {
			if _, nested := term.Args[0].(*Query); nested {
				walkTerms(term.Args, visit)
				continue
			}
		}
		visit(term.Operator(), term.Args)
	}
}

type SortKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

type SelectField struct {
	Field   string `json:"field"`
	Include bool   `json:"include"`
}

// Descriptor is the flat summary of a query that a backend can use to skip full
// evaluation: ordering, paging, projection and a primary key lookup.
type Descriptor struct {
	Sort       []SortKey             `json:"sort"`
	Skip       int                   `json:"skip"`
	Limit      option.Option[int]    `json:"limit"`
	Select     []SelectField         `json:"select"`
	Values     bool                  `json:"values"`
	NeedCount  bool                  `json:"needCount"`
	PrimaryKey option.Option[string] `json:"pk"`
}

type NormalizeOptions struct {
	// PrimaryKey defaults to "id".
	PrimaryKey string
	// HardLimit caps the limit when positive; an unbounded limit is capped too.
	HardLimit int
}

// Normalize builds a fresh Descriptor. The query is not modified.
func (q *Query) Normalize(opts NormalizeOptions) Descriptor {
	pk := opts.PrimaryKey
	if pk == "" {
		pk = "id"
	}
	d := Descriptor{
		Sort:   []SortKey{},
		Select: []SelectField{},
	}
	q.Walk(func(name string, args []any) {
		switch name {
		case "sort":
			d.Sort = make([]SortKey, 0, len(args))
			for _, arg := range args {
				field, negative := signedField(arg)
				dir := 1
				if negative {
					dir = -1
				}
				d.Sort = append(d.Sort, SortKey{Field: field, Direction: dir})
			}
		case "select":
			d.Select = make([]SelectField, 0, len(args))
			for _, arg := range args {
				field, negative := signedField(arg)
				d.Select = append(d.Select, SelectField{Field: field, Include: !negative})
			}
		case "limit":
			d.Limit = limitArg(args)
			d.Skip = 0
			if len(args) > 1 {
				d.Skip = nonNegative(args[1])
			}
			d.NeedCount = true
		case "values":
			d.Values = true
		}
	})
	if opts.HardLimit > 0 {
		if limit, ok := d.Limit.Get(); !ok || limit > opts.HardLimit {
			d.Limit = option.Some(opts.HardLimit)
		}
	}
	for _, arg := range q.Args {
		term, ok := arg.(*Query)
		if !ok || term.Operator() != "eq" || len(term.Args) < 2 {
			continue
		}
		if field, ok := term.Args[0].(string); !ok || field != pk {
			continue
		}
		switch v := term.Args[1].(type) {
		case string:
			d.PrimaryKey = option.Some(v)
		default:
			if _, numeric := ToFloat(v); numeric {
				d.PrimaryKey = option.Some(Stringify(v))
			}
		}
	}
	return d
}

// signedField splits an optional leading run of '+'/'-' from a field; array paths are
// joined with '.'.
func signedField(arg any) (string, bool) {
	var s string
	if path, ok := arg.([]any); ok {
		parts := make([]string, len(path))
		for i, p := range path {
			parts[i] = Stringify(p)
		}
		s = strings.Join(parts, ".")
	} else {
		s = Stringify(arg)
	}
	field := strings.TrimLeft(s, "+-")
	if field == "" {
		return s, false
	}
	return field, strings.HasPrefix(s, "-")
}

func limitArg(args []any) option.Option[int] {
	if len(args) == 0 {
		return option.Some(0)
	}
	f, ok := ToFloat(args[0])
	if !ok || math.IsNaN(f) {
		return option.Some(0)
	}
	if math.IsInf(f, 1) {
		return option.Nothing[int]()
	}
	if f < 0 {
		return option.Some(0)
	}
	return option.Some(int(f))
}

func nonNegative(arg any) int {
	f, ok := ToFloat(arg)
	if !ok || math.IsNaN(f) || f < 0 {
		return 0
	}
	if math.IsInf(f, 1) {
		return math.MaxInt
	}
	return int(f)
}
