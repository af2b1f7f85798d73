package entity

import (
	"reflect"
	"time"
)

// Kind classifies how a field value is stored.
// The single-letter values are part of the persisted type map format.
type Kind string

const (
	KindScalar Kind = "s"
	KindObject Kind = "o"
	KindDate   Kind = "d"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindScalar, KindObject, KindDate:
		return true
	}
	return false
}

// Value is a field value tagged with its kind.
// Scalars are string, float64, bool or nil. Dates are time.Time.
// Objects are JSON-shaped maps or slices.
type Value struct {
	kind Kind
	v    any
}

// Scalar wraps a string, number, boolean or nil. Numeric types normalize to float64.
func Scalar(v any) Value {
	return Value{kind: KindScalar, v: normalizeScalar(v)}
}

// Date wraps a point in time.
func Date(t time.Time) Value {
	return Value{kind: KindDate, v: t}
}

// Object wraps a nested map or slice.
func Object(v any) Value {
	return Value{kind: KindObject, v: v}
}

// Classify picks the kind from the runtime shape of v.
// Used at the edges (JSON input, Lua tables) where values arrive untagged.
func Classify(v any) Value {
	switch val := v.(type) {
	case Value:
		return val
	case time.Time:
		return Date(val)
	case *time.Time:
		if val == nil {
			return Scalar(nil)
		}
		return Date(*val)
	case map[string]any, []any:
		return Object(val)
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return Object(v)
	}
	return Scalar(v)
}

// Kind returns the value's kind. The zero Value is a nil scalar.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindScalar
	}
	return v.kind
}

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	return v.v
}

// Time returns the date and true if v is a date.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok && v.kind == KindDate
}

// Equal compares the value against a plain Go value, as used by list filters.
// Numbers compare after normalization; dates compare with time.Equal.
func (v Value) Equal(other any) bool {
	if ov, ok := other.(Value); ok {
		other = ov.v
	}

	switch v.Kind() {
	case KindDate:
		t, _ := v.v.(time.Time)
		switch o := other.(type) {
		case time.Time:
			return t.Equal(o)
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, o)
			return err == nil && t.Equal(parsed)
		}
		return false
	case KindObject:
		return reflect.DeepEqual(v.v, other)
	default:
		return reflect.DeepEqual(v.v, normalizeScalar(other))
	}
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
