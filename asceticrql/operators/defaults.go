package operators

import (
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

// Condition decides whether a resolved property value passes a filter.
type Condition func(ctx *Context, value, argument any) (bool, error)

func newDefaultRegistry() *Registry {
	r := NewRegistry()

	// pipeline
	r.Register("and", and)
	r.Register("or", or)

	// filters
	for _, op := range Comparisons {
		r.Register(string(op), Filter(compareCondition(op)))
	}
	r.Register("match", Filter(match))
	r.Register("in", Filter(in))
	r.Register("out", Filter(out))
	r.Register("contains", Filter(contains))
	r.Register("excludes", Filter(excludes))
	r.Register("between", Filter(between))

	// transforms
	r.Register("sort", sortBy)
	r.Register("select", selectProperties)
	r.Register("unselect", unselectProperties)
	r.Register("values", values)
	r.Register("limit", limit)
	r.Register("distinct", distinct)
	r.Register("recurse", recurse)
	r.Register("aggregate", aggregate)

	// terminals
	r.Register("sum", sum)
	r.Register("mean", mean)
	r.Register("min", extreme(-1))
	r.Register("max", extreme(1))
	r.Register("count", count)
	r.Register("first", first)
	r.Register("one", one)

	return r
}

// Filter turns a condition into an operator called as name(path, argument), or as
// name(argument) to test each element itself.
func Filter(cond Condition) Operator {
	return func(ctx *Context, target any, args ...any) (any, error) {
		var path, argument any = nil, converters.Undefined
		switch len(args) {
		case 0:
		case 1:
			argument = args[0]
		default:
			path, argument = args[0], args[1]
		}
		items, err := scan(ctx, target)
		if err != nil {
			return nil, err
		}
		filtered := make([]any, 0, len(items))
		for _, item := range items {
			ok, err := cond(ctx, Resolve(item, path), argument)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, item)
			}
		}
		return filtered, nil
	}
}

// CompareFilter is the filter a two-argument comparison compiles to.
func CompareFilter(op Comparison, path, value any) Func {
	return func(ctx *Context, target any) (any, error) {
		items, err := scan(ctx, target)
		if err != nil {
			return nil, err
		}
		c := ctx.comparator()
		filtered := make([]any, 0, len(items))
		for _, item := range items {
			if c.Compare(Resolve(item, path), op, value) {
				filtered = append(filtered, item)
			}
		}
		return filtered, nil
	}
}

// scan views target as a collection and charges its length to the budget.
func scan(ctx *Context, target any) ([]any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	if err := ctx.Tick(len(items)); err != nil {
		return nil, err
	}
	return items, nil
}

func funcArg(name string, arg any) (Func, error) {
	fn, ok := arg.(Func)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s() takes query terms, got %v", name, arg)
	}
	return fn, nil
}

func and(ctx *Context, target any, args ...any) (any, error) {
	result := target
	for _, arg := range args {
		fn, err := funcArg("and", arg)
		if err != nil {
			return nil, err
		}
		if result, err = fn(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// or concatenates the matches of every branch, keeping the first occurrence of each
// element.
func or(ctx *Context, target any, args ...any) (any, error) {
	union := []any{}
	seen := newIdentitySet()
	for _, arg := range args {
		fn, err := funcArg("or", arg)
		if err != nil {
			return nil, err
		}
		branch, err := fn(ctx, target)
		if err != nil {
			return nil, err
		}
		items, err := scan(ctx, branch)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if seen.add(item) {
				union = append(union, item)
			}
		}
	}
	return union, nil
}

func compareCondition(op Comparison) Condition {
	return func(ctx *Context, value, argument any) (bool, error) {
		return ctx.comparator().Compare(value, op, argument), nil
	}
}

func match(ctx *Context, value, argument any) (bool, error) {
	re, ok := argument.(*regexp.Regexp)
	if !ok {
		var err error
		if re, err = regexp.Compile(query.Stringify(argument)); err != nil {
			return false, errors.Wrapf(ErrInvalidArgument, "match() pattern: %v", err)
		}
	}
	return matchPattern(re, value), nil
}

func in(ctx *Context, value, argument any) (bool, error) {
	set, ok := asArray(argument)
	if !ok {
		set = []any{argument}
	}
	c := ctx.comparator()
	for _, member := range set {
		if c.Compare(value, Eq, member) {
			return true, nil
		}
	}
	return false, nil
}

func out(ctx *Context, value, argument any) (bool, error) {
	found, err := in(ctx, value, argument)
	return !found, err
}

// contains tests an array property for a member equal to argument, or for a member
// that a query term argument matches.
func contains(ctx *Context, value, argument any) (bool, error) {
	array, ok := asArray(value)
	if !ok {
		return false, nil
	}
	if fn, isFunc := argument.(Func); isFunc {
		for _, member := range array {
			result, err := fn(ctx, []any{member})
			if err != nil {
				return false, err
			}
			if matched, err := ToCollection(result); err == nil && len(matched) > 0 {
				return true, nil
			}
		}
		return false, nil
	}
	c := ctx.comparator()
	for _, member := range array {
		if c.Compare(member, Eq, argument) {
			return true, nil
		}
	}
	return false, nil
}

func excludes(ctx *Context, value, argument any) (bool, error) {
	found, err := contains(ctx, value, argument)
	return !found, err
}

// between is the half-open range [low, high).
func between(ctx *Context, value, argument any) (bool, error) {
	bounds, ok := asArray(argument)
	if !ok || len(bounds) != 2 {
		return false, errors.Wrap(ErrInvalidArgument, "between() takes a (low,high) pair")
	}
	c := ctx.comparator()
	return c.Compare(value, Ge, bounds[0]) && c.Compare(value, Lt, bounds[1]), nil
}

type sortKey struct {
	path       any
	descending bool
}

func sortBy(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	keys := make([]sortKey, len(args))
	for i, arg := range args {
		keys[i] = sortKey{path: arg}
		s, ok := arg.(string)
		if !ok || s == "" {
			continue
		}
		switch s[0] {
		case '-':
			keys[i] = sortKey{path: s[1:], descending: true}
		case '+':
			keys[i] = sortKey{path: s[1:]}
		}
	}
	sorted := make([]any, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, key := range keys {
			c := Order(Resolve(sorted[i], key.path), Resolve(sorted[j], key.path))
			if c == 0 {
				continue
			}
			if key.descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sorted, nil
}

// selectProperties keeps the named properties present on each element.
func selectProperties(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	projected := make([]any, len(items))
	for i, item := range items {
		selected := make(map[string]any, len(args))
		for _, arg := range args {
			if v := Resolve(item, arg); !converters.IsUndefined(v) {
				selected[PathName(arg)] = v
			}
		}
		projected[i] = selected
	}
	return projected, nil
}

func unselectProperties(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	projected := make([]any, len(items))
	for i, item := range items {
		keys, props, _ := properties(item)
		selected := make(map[string]any, len(keys))
		for _, k := range keys {
			selected[k] = props[k]
		}
		for _, arg := range args {
			delete(selected, PathName(arg))
		}
		projected[i] = selected
	}
	return projected, nil
}

// values maps each element to one property value, to an array of the named values,
// or to an array of all its own values when no property is named.
func values(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	projected := make([]any, len(items))
	for i, item := range items {
		switch len(args) {
		case 0:
			keys, props, _ := properties(item)
			all := make([]any, len(keys))
			for j, k := range keys {
				all[j] = props[k]
			}
			projected[i] = all
		case 1:
			projected[i] = Resolve(item, args[0])
		default:
			named := make([]any, len(args))
			for j, arg := range args {
				named[j] = Resolve(item, arg)
			}
			projected[i] = named
		}
	}
	return projected, nil
}

// limit slices [start, start+count). A truthy third argument returns a Page; a
// numeric one also caps its TotalCount.
func limit(ctx *Context, target any, args ...any) (any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	count, err := numberArg("limit", args, 0, 0)
	if err != nil {
		return nil, err
	}
	start, err := numberArg("limit", args, 1, 0)
	if err != nil {
		return nil, err
	}
	if ctx.HardLimit > 0 && count > float64(ctx.HardLimit) {
		ctx.Logger.Debug().Float64("requested", count).Int("hardLimit", ctx.HardLimit).Msg("limit clamped")
		count = float64(ctx.HardLimit)
	}

	total := len(items)
	from := clampIndex(start, total)
	to := from + clampIndex(count, total-from)
	sliced := make([]any, to-from)
	copy(sliced, items[from:to])

	if len(args) < 3 {
		return sliced, nil
	}
	maxCount := math.Inf(1)
	switch m := args[2].(type) {
	case bool:
		if !m {
			return sliced, nil
		}
	case nil, converters.UndefinedValue:
		return sliced, nil
	default:
		f, ok := query.ToFloat(m)
		if !ok || f == 0 || math.IsNaN(f) {
			return sliced, nil
		}
		maxCount = f
	}
	totalCount := total
	if maxCount < float64(total) {
		totalCount = int(maxCount)
	}
	return &Page{
		Items:      sliced,
		Start:      from,
		End:        from + len(sliced) - 1,
		TotalCount: totalCount,
	}, nil
}

func numberArg(name string, args []any, i int, def float64) (float64, error) {
	if i >= len(args) || args[i] == nil || converters.IsUndefined(args[i]) {
		return def, nil
	}
	f, ok := query.ToFloat(args[i])
	if !ok {
		return 0, errors.Wrapf(ErrInvalidArgument, "%s() argument %d is not a number: %v", name, i+1, args[i])
	}
	return f, nil
}

func clampIndex(f float64, n int) int {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= float64(n):
		return n
	}
	return int(f)
}

// distinct drops repeated primitives by value and repeated references by identity.
func distinct(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	seen := newIdentitySet()
	unique := make([]any, 0, len(items))
	for _, item := range items {
		if seen.add(item) {
			unique = append(unique, item)
		}
	}
	return unique, nil
}

// recurse flattens nested arrays and objects depth first, each object before its
// children. With a property it follows only that property.
func recurse(ctx *Context, target any, args ...any) (any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	var property any
	if len(args) > 0 && !converters.IsUndefined(args[0]) {
		property = args[0]
	}
	flattened := []any{}
	var walk func(v any) error
	walk = func(v any) error {
		if err := ctx.Tick(1); err != nil {
			return err
		}
		if array, ok := asArray(v); ok {
			for _, member := range array {
				if err := walk(member); err != nil {
					return err
				}
			}
			return nil
		}
		flattened = append(flattened, v)
		if property != nil {
			if next := Resolve(v, property); isObject(next) {
				return walk(next)
			}
			return nil
		}
		keys, props, _ := properties(v)
		for _, k := range keys {
			if isObject(props[k]) {
				if err := walk(props[k]); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, item := range items {
		if err := walk(item); err != nil {
			return nil, err
		}
	}
	return flattened, nil
}

// aggregate groups by the non-term arguments and applies each term argument to every
// group. Reducer results are stored under their position among the reducers.
func aggregate(ctx *Context, target any, args ...any) (any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	var keys []any
	var reducers []Func
	for _, arg := range args {
		if fn, ok := arg.(Func); ok {
			reducers = append(reducers, fn)
			continue
		}
		keys = append(keys, arg)
	}

	groups := make(map[string][]any)
	var order []string
	for _, item := range items {
		var b strings.Builder
		for _, key := range keys {
			b.WriteByte('/')
			b.WriteString(query.EncodeValue(Resolve(item, key)))
		}
		k := b.String()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}

	aggregated := make([]any, 0, len(order))
	for _, k := range order {
		group := groups[k]
		record := make(map[string]any, len(keys)+len(reducers))
		for _, key := range keys {
			record[PathName(key)] = Resolve(group[0], key)
		}
		for i, reduce := range reducers {
			v, err := reduce(ctx, group)
			if err != nil {
				return nil, err
			}
			record[strconv.Itoa(i)] = v
		}
		aggregated = append(aggregated, record)
	}
	return aggregated, nil
}

func propertyValues(ctx *Context, target any, args []any) ([]any, error) {
	items, err := scan(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 || converters.IsUndefined(args[0]) {
		return items, nil
	}
	vals := make([]any, len(items))
	for i, item := range items {
		vals[i] = Resolve(item, args[0])
	}
	return vals, nil
}

func sum(ctx *Context, target any, args ...any) (any, error) {
	vals, err := propertyValues(ctx, target, args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, v := range vals {
		f, ok := query.ToFloat(v)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidArgument, "sum() of a non-number %v", v)
		}
		total += f
	}
	return total, nil
}

// mean of an empty collection is NaN.
func mean(ctx *Context, target any, args ...any) (any, error) {
	total, err := sum(ctx, target, args...)
	if err != nil {
		return nil, err
	}
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	n := float64(len(items))
	return total.(float64) / n, nil
}

// extreme builds min (sign -1) and max (sign 1) over Order. Absent values are
// skipped; nothing left yields Undefined.
func extreme(sign int) Operator {
	return func(ctx *Context, target any, args ...any) (any, error) {
		vals, err := propertyValues(ctx, target, args)
		if err != nil {
			return nil, err
		}
		var best any = converters.Undefined
		for _, v := range vals {
			if v == nil || converters.IsUndefined(v) {
				continue
			}
			if converters.IsUndefined(best) || Order(v, best)*sign > 0 {
				best = v
			}
		}
		return numeric(best), nil
	}
}

func count(ctx *Context, target any, args ...any) (any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	return len(items), nil
}

func first(ctx *Context, target any, args ...any) (any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return converters.Undefined, nil
	}
	return items[0], nil
}

func one(ctx *Context, target any, args ...any) (any, error) {
	items, err := ToCollection(target)
	if err != nil {
		return nil, err
	}
	if len(items) > 1 {
		return nil, errors.Wrapf(ErrTooManyResults, "%d objects matched", len(items))
	}
	if len(items) == 0 {
		return converters.Undefined, nil
	}
	return items[0], nil
}

type pointerKey struct {
	t reflect.Type
	p uintptr
}

type sliceKey struct {
	t   reflect.Type
	p   uintptr
	len int
}

// identitySet tracks seen elements without touching them: references by address,
// numbers by value across Go kinds, other comparable values by value. Values that
// are neither are never reported as duplicates.
type identitySet struct {
	keys map[any]struct{}
}

func newIdentitySet() *identitySet {
	return &identitySet{keys: make(map[any]struct{})}
}

func (s *identitySet) add(v any) bool {
	key, ok := identity(v)
	if !ok {
		return true
	}
	if _, dup := s.keys[key]; dup {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func identity(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	if f, ok := query.ToFloat(v); ok {
		return f, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Ptr, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return pointerKey{t: rv.Type(), p: rv.Pointer()}, true
	case reflect.Slice:
		return sliceKey{t: rv.Type(), p: rv.Pointer(), len: rv.Len()}, true
	}
	if rv.Comparable() {
		return v, true
	}
	return nil, false
}
