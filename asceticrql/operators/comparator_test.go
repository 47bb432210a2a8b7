package operators

import (
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
)

type money struct {
	amount   int
	currency string
}

func TestComparator_Compare(t *testing.T) {
	c := DefaultComparator()
	now := time.Now()

	cases := []struct {
		name     string
		left     any
		op       Comparison
		right    any
		expected bool
	}{
		{"numbers across kinds", 10, Eq, 10.0, true},
		{"int less than float", int64(5), Lt, 10.0, true},
		{"float ge", 10.0, Ge, uint8(10), true},
		{"strings", "apple", Lt, "banana", true},
		{"string not equal", "a", Ne, "b", true},
		{"booleans", true, Eq, true, true},
		{"instants", now, Lt, now.Add(time.Second), true},
		{"instants equal across zones", now, Eq, now.UTC(), true},
		{"durations", time.Second, Gt, time.Millisecond, true},
		{"mismatched order is false", "10", Lt, 20, false},
		{"mismatched equality is false", "10", Eq, 10, false},
		{"null equals null", nil, Eq, nil, true},
		{"undefined is not null", converters.Undefined, Eq, nil, false},
		{"arrays by value", []any{1, "a"}, Eq, []any{1.0, "a"}, true},
		{"structs by value", money{1, "USD"}, Eq, money{1, "USD"}, true},
		{"structs have no order", money{1, "USD"}, Lt, money{2, "USD"}, false},
		{"pattern match", "Foo", Eq, regexp.MustCompile("(?i)^f"), true},
		{"pattern mismatch", "bar", Eq, regexp.MustCompile("^f"), false},
		{"pattern ne", "bar", Ne, regexp.MustCompile("^f"), true},
		{"pattern on number", 42, Eq, regexp.MustCompile("^4"), true},
		{"pattern on undefined", converters.Undefined, Eq, regexp.MustCompile(".*"), false},
		{"nan", math.NaN(), Eq, math.NaN(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, c.Compare(tc.left, tc.op, tc.right))
		})
	}
}

func TestRegisterBinary(t *testing.T) {
	c := NewDefaultComparator()
	RegisterBinary[money, money](c, Lt, func(a, b money) bool {
		return a.currency == b.currency && a.amount < b.amount
	})

	assert.True(t, c.Compare(money{1, "USD"}, Lt, money{2, "USD"}))
	assert.False(t, c.Compare(money{1, "USD"}, Lt, money{2, "EUR"}))
	assert.False(t, DefaultComparator().Compare(money{1, "USD"}, Lt, money{2, "USD"}))
}

func TestOrder(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		a, b     any
		expected int
	}{
		{"numbers", 1, 2.5, -1},
		{"equal numbers", 2, 2.0, 0},
		{"strings", "b", "a", 1},
		{"booleans", false, true, -1},
		{"instants", now.Add(time.Hour), now, 1},
		{"absent first", converters.Undefined, 0, -1},
		{"null and undefined", nil, converters.Undefined, 0},
		{"numbers before strings", 100, "1", -1},
		{"nan before numbers", math.NaN(), math.Inf(-1), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Order(tc.a, tc.b))
		})
	}
}

func TestIsComparison(t *testing.T) {
	for _, op := range Comparisons {
		assert.True(t, IsComparison(string(op)))
	}
	assert.False(t, IsComparison("match"))
}
