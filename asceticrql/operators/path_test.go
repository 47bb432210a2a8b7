package operators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
)

type address struct {
	City string `json:"city"`
	Zip  string
}

type customer struct {
	Name    string   `json:"name"`
	Address *address `json:"address,omitempty"`
	Tags    []string `json:"tags"`
	Secret  string   `json:"-"`
	hidden  string
}

func TestResolve(t *testing.T) {
	record := map[string]any{
		"name":     "ten",
		"a.b":      "literal",
		"nested":   map[string]any{"value": 1.0, "list": []any{"x", "y"}},
		"customer": &customer{Name: "ann", Address: &address{City: "Oslo", Zip: "0150"}, hidden: "h"},
	}
	cases := []struct {
		name     string
		path     any
		expected any
	}{
		{"key", "name", "ten"},
		{"no path is the item", nil, record},
		{"literal dotted key wins", "a.b", "literal"},
		{"dotted path", "nested.value", 1.0},
		{"array path", []any{"nested", "value"}, 1.0},
		{"slice index", "nested.list.1", "y"},
		{"struct json tag", "customer.address.city", "Oslo"},
		{"struct field name", []any{"customer", "address", "Zip"}, "0150"},
		{"missing", "nope", converters.Undefined},
		{"missing intermediate", "nope.deeper", converters.Undefined},
		{"index out of range", "nested.list.5", converters.Undefined},
		{"unexported field", "customer.hidden", converters.Undefined},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, Resolve(record, c.path))
		})
	}

	t.Run("nil pointer short circuits", func(t *testing.T) {
		assert.Equal(t, converters.Undefined, Resolve(&customer{}, "address.city"))
	})

	t.Run("typed maps", func(t *testing.T) {
		assert.Equal(t, 3, Resolve(map[string]int{"n": 3}, "n"))
	})
}

func TestProperties(t *testing.T) {
	keys, props, ok := properties(customer{Name: "ann", Tags: []string{"a"}, Secret: "s"})
	require.True(t, ok)
	assert.Equal(t, []string{"name", "address", "tags"}, keys)
	assert.Equal(t, "ann", props["name"])

	keys, _, ok = properties(map[string]any{"b": 1, "a": 2})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, keys)

	_, _, ok = properties(42)
	assert.False(t, ok)
}

func TestToCollection(t *testing.T) {
	items, err := ToCollection([]customer{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = ToCollection(&Page{Items: []any{1}})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, items)

	_, err = ToCollection(42)
	assert.ErrorIs(t, err, ErrNotCollection)

	_, err = ToCollection(nil)
	assert.ErrorIs(t, err, ErrNotCollection)
}

func TestIsObject(t *testing.T) {
	assert.True(t, isObject(map[string]any{}))
	assert.True(t, isObject(&customer{}))
	assert.True(t, isObject([]int{1}))
	assert.False(t, isObject(time.Now()))
	assert.False(t, isObject("text"))
	assert.False(t, isObject((*customer)(nil)))
}
