package option

import (
	"encoding/json"
	"fmt"
)

// Option holds either a value (Some) or nothing. The query descriptor uses it for
// fields that may be unbounded or absent, such as the limit or the primary key.
type Option[T any] struct {
	val   T
	valid bool
}

// Some wraps val in a present Option.
func Some[T any](val T) Option[T] {
	return Option[T]{val: val, valid: true}
}

// Nothing returns an empty Option, the same as the zero value.
func Nothing[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool {
	return o.valid
}

// IsNothing reports whether the Option is empty.
func (o Option[T]) IsNothing() bool {
	return !o.valid
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.val, o.valid
}

// Unwrap panics on Nothing.
func (o Option[T]) Unwrap() T {
	if !o.valid {
		panic("called Unwrap on a Nothing Option")
	}
	return o.val
}

// UnwrapOr returns the value, or def when the Option is empty.
func (o Option[T]) UnwrapOr(def T) T {
	if o.valid {
		return o.val
	}
	return def
}

// Map applies f to the contained value, if any.
func Map[T any, U any](o Option[T], f func(T) U) Option[U] {
	if o.valid {
		return Some(f(o.val))
	}
	return Nothing[U]()
}

// String renders Some(v) or Nothing.
func (o Option[T]) String() string {
	if o.valid {
		return fmt.Sprintf("Some(%v)", o.val)
	}
	return "Nothing"
}

// MarshalJSON encodes Nothing as null and Some as the bare value.
func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

// UnmarshalJSON decodes null as Nothing.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Nothing[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
