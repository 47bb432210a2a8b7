package operators

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
)

func records() []any {
	return []any{
		map[string]any{"price": 10.0, "name": "ten", "tags": []any{"fun", "even"}},
		map[string]any{"price": 5.0, "name": "five", "tags": []any{"fun"}},
	}
}

func call(t *testing.T, name string, target any, args ...any) any {
	t.Helper()
	op, ok := Defaults().Lookup(name)
	require.True(t, ok, name)
	result, err := op(NewContext(), target, args...)
	require.NoError(t, err)
	return result
}

func names(t *testing.T, result any) []any {
	t.Helper()
	items, err := ToCollection(result)
	require.NoError(t, err)
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = Resolve(item, "name")
	}
	return out
}

// filterFunc is a compiled name(path,value) term.
func filterFunc(name string, args ...any) Func {
	return func(ctx *Context, target any) (any, error) {
		op, _ := Defaults().Lookup(name)
		return op(ctx, target, args...)
	}
}

func TestFilters(t *testing.T) {
	recs := records()
	cases := []struct {
		name     string
		operator string
		args     []any
		expected []any
	}{
		{"lt", "lt", []any{"price", 10}, []any{"five"}},
		{"le", "le", []any{"price", 10}, []any{"ten", "five"}},
		{"eq pattern", "eq", []any{"name", regexp.MustCompile("^t")}, []any{"ten"}},
		{"match string pattern", "match", []any{"name", "i"}, []any{"five"}},
		{"in", "in", []any{"price", []any{5, 7}}, []any{"five"}},
		{"in scalar", "in", []any{"name", "ten"}, []any{"ten"}},
		{"out", "out", []any{"price", []any{5}}, []any{"ten"}},
		{"contains", "contains", []any{"tags", "even"}, []any{"ten"}},
		{"excludes", "excludes", []any{"tags", "even"}, []any{"five"}},
		{"contains missing array", "contains", []any{"nope", "even"}, []any{}},
		{"excludes missing array", "excludes", []any{"nope", "even"}, []any{"ten", "five"}},
		{"between is half open", "between", []any{"price", []any{5, 10}}, []any{"five"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, names(t, call(t, c.operator, recs, c.args...)))
		})
	}

	t.Run("single argument tests the element", func(t *testing.T) {
		assert.Equal(t, []any{3.0}, call(t, "gt", []any{1.0, 3.0}, 2))
		assert.Equal(t, []any{"b"}, call(t, "in", []any{"a", "b"}, []any{"b", "c"}))
	})

	t.Run("contains with a term", func(t *testing.T) {
		data := []any{
			map[string]any{"name": "a", "items": []any{map[string]any{"qty": 1.0}}},
			map[string]any{"name": "b", "items": []any{map[string]any{"qty": 5.0}}},
		}
		result := call(t, "contains", data, "items", filterFunc("gt", "qty", 3))
		assert.Equal(t, []any{"b"}, names(t, result))

		result = call(t, "excludes", data, "items", filterFunc("gt", "qty", 3))
		assert.Equal(t, []any{"a"}, names(t, result))
	})

	t.Run("between needs a pair", func(t *testing.T) {
		op, _ := Defaults().Lookup("between")
		_, err := op(NewContext(), recs, "price", 5)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		op, _ := Defaults().Lookup("match")
		_, err := op(NewContext(), recs, "name", "(")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestAndOr(t *testing.T) {
	recs := records()

	result := call(t, "and", recs, filterFunc("lt", "price", 11), filterFunc("eq", "name", "ten"))
	assert.Equal(t, []any{"ten"}, names(t, result))

	result = call(t, "or", recs, filterFunc("eq", "name", "five"), filterFunc("lt", "price", 11))
	assert.Equal(t, []any{"five", "ten"}, names(t, result))

	t.Run("or keeps equal but distinct objects", func(t *testing.T) {
		data := []any{map[string]any{"name": "x"}, map[string]any{"name": "x"}}
		result := call(t, "or", data, filterFunc("eq", "name", "x"), filterFunc("eq", "name", "x"))
		assert.Len(t, result, 2)
	})

	t.Run("or leaves elements untouched", func(t *testing.T) {
		data := []any{map[string]any{"name": "x"}}
		call(t, "or", data, filterFunc("eq", "name", "x"), filterFunc("eq", "name", "x"))
		assert.Equal(t, map[string]any{"name": "x"}, data[0])
	})

	t.Run("scalar arguments are rejected", func(t *testing.T) {
		op, _ := Defaults().Lookup("and")
		_, err := op(NewContext(), recs, "a")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestSort(t *testing.T) {
	data := []any{
		map[string]any{"name": "b", "rank": 1.0},
		map[string]any{"name": "a", "rank": 2.0},
		map[string]any{"name": "c", "rank": 1.0},
		map[string]any{"name": "d"},
	}
	assert.Equal(t, []any{"d", "b", "c", "a"}, names(t, call(t, "sort", data, "rank")))
	assert.Equal(t, []any{"d", "c", "b", "a"}, names(t, call(t, "sort", data, "+rank", "-name")))
	assert.Equal(t, []any{"a", "c", "b", "d"}, names(t, call(t, "sort", data, "-rank", "-name")))
	assert.Equal(t, []any{"b", "a", "c", "d"}, names(t, data), "input is not reordered")
}

func TestProjections(t *testing.T) {
	recs := records()

	assert.Equal(t, []any{
		map[string]any{"name": "ten"},
		map[string]any{"name": "five"},
	}, call(t, "select", recs, "name", "missing"))

	assert.Equal(t, []any{
		map[string]any{"price": 10.0},
		map[string]any{"price": 5.0},
	}, call(t, "unselect", recs, "name", "tags"))

	assert.Equal(t, []any{"ten", "five"}, call(t, "values", recs, "name"))
	assert.Equal(t, []any{[]any{"ten", 10.0}, []any{"five", 5.0}}, call(t, "values", recs, "name", "price"))
	assert.Equal(t, []any{
		[]any{"ten", 10.0, []any{"fun", "even"}},
		[]any{"five", 5.0, []any{"fun"}},
	}, call(t, "values", recs))

	t.Run("select does not change the source", func(t *testing.T) {
		call(t, "unselect", recs, "name")
		assert.Equal(t, "ten", Resolve(recs[0], "name"))
	})

	t.Run("select nested path", func(t *testing.T) {
		data := []any{map[string]any{"a": map[string]any{"b": 1.0}}}
		assert.Equal(t, []any{map[string]any{"a.b": 1.0}}, call(t, "select", data, []any{"a", "b"}))
	})
}

func TestLimit(t *testing.T) {
	recs := records()

	t.Run("pagination metadata", func(t *testing.T) {
		page, ok := call(t, "limit", recs, 1, 0, true).(*Page)
		require.True(t, ok)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 0, page.Start)
		assert.Equal(t, 0, page.End)
		assert.Equal(t, 2, page.TotalCount)
	})

	t.Run("plain slice", func(t *testing.T) {
		assert.Equal(t, []any{"five"}, names(t, call(t, "limit", recs, 5, 1)))
		assert.Empty(t, call(t, "limit", recs, 5, 9))
		assert.Len(t, call(t, "limit", recs, math.Inf(1)), 2)
		assert.Empty(t, call(t, "limit", recs, -1))
	})

	t.Run("total count cap", func(t *testing.T) {
		page := call(t, "limit", recs, 1, 1, 1).(*Page)
		assert.Equal(t, 1, page.Start)
		assert.Equal(t, 1, page.End)
		assert.Equal(t, 1, page.TotalCount)
	})

	t.Run("false metadata flag", func(t *testing.T) {
		_, isPage := call(t, "limit", recs, 1, 0, false).(*Page)
		assert.False(t, isPage)
	})

	t.Run("hard limit", func(t *testing.T) {
		ctx := NewContext()
		ctx.HardLimit = 1
		op, _ := Defaults().Lookup("limit")
		result, err := op(ctx, recs, math.Inf(1))
		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("non-numeric count", func(t *testing.T) {
		op, _ := Defaults().Lookup("limit")
		_, err := op(NewContext(), recs, "ten")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDistinct(t *testing.T) {
	shared := map[string]any{"name": "x"}
	data := []any{1, 1.0, "a", "a", shared, shared, map[string]any{"name": "x"}, nil, nil}

	result := call(t, "distinct", data)
	assert.Equal(t, []any{1, "a", shared, map[string]any{"name": "x"}, nil}, result)
	assert.Equal(t, map[string]any{"name": "x"}, shared)
}

func TestRecurse(t *testing.T) {
	tree := []any{
		map[string]any{
			"name": "root",
			"children": []any{
				map[string]any{"name": "a", "children": []any{map[string]any{"name": "a1"}}},
				map[string]any{"name": "b"},
			},
			"meta": map[string]any{"name": "meta"},
		},
	}
	assert.Equal(t, []any{"root", "a", "a1", "b", "meta"}, names(t, call(t, "recurse", tree)))
	assert.Equal(t, []any{"root", "a", "a1", "b"}, names(t, call(t, "recurse", tree, "children")))
}

func TestAggregate(t *testing.T) {
	data := []any{
		map[string]any{"name": "ten", "price": 10.0},
		map[string]any{"name": "five", "price": 5.0},
		map[string]any{"name": "ten", "price": 20.0},
	}
	countFunc := Func(func(ctx *Context, target any) (any, error) {
		return count(ctx, target)
	})
	sumFunc := Func(func(ctx *Context, target any) (any, error) {
		return sum(ctx, target, "price")
	})

	result := call(t, "aggregate", data, "name", countFunc, sumFunc)
	assert.Equal(t, []any{
		map[string]any{"name": "ten", "0": 2, "1": 30.0},
		map[string]any{"name": "five", "0": 1, "1": 5.0},
	}, result)
}

func TestReducers(t *testing.T) {
	recs := records()

	assert.Equal(t, 15.0, call(t, "sum", recs, "price"))
	assert.Equal(t, 7.5, call(t, "mean", recs, "price"))
	assert.Equal(t, 5.0, call(t, "min", recs, "price"))
	assert.Equal(t, 10.0, call(t, "max", recs, "price"))
	assert.Equal(t, "ten", call(t, "max", recs, "name"))
	assert.Equal(t, 6.0, call(t, "sum", []any{1, 2, 3}))
	assert.Equal(t, 2, call(t, "count", recs))
	assert.Equal(t, "ten", Resolve(call(t, "first", recs), "name"))

	t.Run("empty collections", func(t *testing.T) {
		assert.Equal(t, 0.0, call(t, "sum", []any{}))
		assert.True(t, math.IsNaN(call(t, "mean", []any{}).(float64)))
		assert.Equal(t, converters.Undefined, call(t, "min", []any{}))
		assert.Equal(t, converters.Undefined, call(t, "first", []any{}))
		assert.Equal(t, 0, call(t, "count", []any{}))
	})

	t.Run("sum of text", func(t *testing.T) {
		op, _ := Defaults().Lookup("sum")
		_, err := op(NewContext(), recs, "name")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestOne(t *testing.T) {
	recs := records()
	op, _ := Defaults().Lookup("one")

	_, err := op(NewContext(), recs)
	assert.ErrorIs(t, err, ErrTooManyResults)

	result, err := op(NewContext(), recs[:1])
	require.NoError(t, err)
	assert.Equal(t, recs[0], result)

	result, err = op(NewContext(), []any{})
	require.NoError(t, err)
	assert.Equal(t, converters.Undefined, result)
}

func TestContext_Tick(t *testing.T) {
	ctx := NewContext()
	ctx.MaxIterations = 3

	require.NoError(t, ctx.Tick(2))
	require.NoError(t, ctx.Tick(1))
	err := ctx.Tick(1)
	assert.ErrorIs(t, err, ErrComputationBudgetExceeded)
	assert.Contains(t, err.Error(), "raise MaxIterations")
	assert.Equal(t, 4, ctx.Iterations())

	t.Run("operators stop at the budget", func(t *testing.T) {
		ctx := NewContext()
		ctx.MaxIterations = 1
		op, _ := Defaults().Lookup("eq")
		_, err := op(ctx, records(), "name", "ten")
		assert.ErrorIs(t, err, ErrComputationBudgetExceeded)
	})
}
