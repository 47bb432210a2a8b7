package operators

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

// Resolve reads a property path from item. A nil or undefined path is the item
// itself; an array path descends one segment at a time; a string is tried as a
// literal key first and then as a dotted path. A missing step yields Undefined.
func Resolve(item any, path any) any {
	switch p := path.(type) {
	case nil, converters.UndefinedValue:
		return item
	case []any:
		v := item
		for _, segment := range p {
			next, ok := field(v, query.Stringify(segment))
			if !ok {
				return converters.Undefined
			}
			v = next
		}
		return v
	}
	key := query.Stringify(path)
	if v, ok := field(item, key); ok {
		return v
	}
	if !strings.Contains(key, ".") {
		return converters.Undefined
	}
	v := item
	for _, segment := range strings.Split(key, ".") {
		next, ok := field(v, segment)
		if !ok {
			return converters.Undefined
		}
		v = next
	}
	return v
}

// PathName is the key select() stores a path under.
func PathName(path any) string {
	if segments, ok := path.([]any); ok {
		parts := make([]string, len(segments))
		for i, s := range segments {
			parts[i] = query.Stringify(s)
		}
		return strings.Join(parts, ".")
	}
	return query.Stringify(path)
}

// field reads one property of a map, struct or slice. Struct fields match on the json
// tag first and the Go field name second.
func field(state any, name string) (any, bool) {
	if state == nil {
		return nil, false
	}
	if m, ok := state.(map[string]any); ok {
		v, found := m[name]
		return v, found
	}
	v := reflect.ValueOf(state)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= v.Len() {
			return nil, false
		}
		return v.Index(i).Interface(), true
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag == name {
				return v.Field(i).Interface(), true
			}
		}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.IsExported() && sf.Name == name {
				return v.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

// properties lists the own properties of a map or struct in a stable order: map
// keys sorted, struct fields in declaration order under their json names.
func properties(state any) ([]string, map[string]any, bool) {
	if state == nil {
		return nil, nil, false
	}
	if m, ok := state.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, m, true
	}
	v := reflect.ValueOf(state)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil, false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, nil, false
		}
		values := make(map[string]any, v.Len())
		keys := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		return keys, values, true
	case reflect.Struct:
		t := v.Type()
		values := make(map[string]any, t.NumField())
		keys := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := sf.Name
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			keys = append(keys, name)
			values[name] = v.Field(i).Interface()
		}
		return keys, values, true
	}
	return nil, nil, false
}

// isObject reports whether v has properties or elements to descend into.
func isObject(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return true
	case reflect.Struct:
		return !isScalarStruct(rv.Type())
	}
	return false
}

var timeType = reflect.TypeOf(time.Time{})

func isScalarStruct(t reflect.Type) bool {
	return t == timeType
}

// ToCollection views target as a slice of elements. A Page yields its items.
func ToCollection(target any) ([]any, error) {
	switch t := target.(type) {
	case []any:
		return t, nil
	case *Page:
		return t.Items, nil
	case []map[string]any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = item
		}
		return items, nil
	case nil:
		return nil, ErrNotCollection
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, errors.Wrapf(ErrNotCollection, "%T", target)
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}

// asArray views a property value as a slice; ok is false for non-array values.
func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	case nil, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
