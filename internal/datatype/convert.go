package datatype

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Convert maps a Go type to its DataType. Pointers are dereferenced. Slices
// and arrays become Collections, map[K]struct{} is a set (a Collection of K)
// and other maps become Maps. Struct elements fall back to Complex.
//
// Convert returns nil for a top-level struct and for shapes with no DataType
// (channels, functions, maps with non-scalar keys); the caller decides
// whether that is an error.
func Convert(t reflect.Type) DataType {
	if t == nil {
		return nil
	}
	t = Indirect(t)

	if t == timeType {
		return DateTime
	}
	if t.Implements(enumerationType) {
		if e, err := NewEnum(t); err == nil {
			return e
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return Boolean
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return Short
	case reflect.Int32, reflect.Uint16:
		return Integer
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return Long
	case reflect.Float32:
		return Float
	case reflect.Float64:
		return Double
	case reflect.String:
		return String
	case reflect.Slice, reflect.Array:
		elem := ConvertElement(t.Elem())
		if elem == nil {
			return nil
		}
		return NewCollection(elem)
	case reflect.Map:
		key, ok := Convert(t.Key()).(Basic)
		if !ok {
			return nil
		}
		if IsSet(t) {
			return NewCollection(key)
		}
		value := ConvertElement(t.Elem())
		if value == nil {
			return nil
		}
		return NewMap(key, value)
	}
	return nil
}

// ConvertElement is Convert with a Complex fallback for struct and interface
// types, used for container elements and struct fields.
func ConvertElement(t reflect.Type) DataType {
	if dt := Convert(t); dt != nil {
		return dt
	}
	switch Indirect(t).Kind() {
	case reflect.Struct, reflect.Interface:
		return NewComplex(Indirect(t))
	}
	return nil
}

// IsSet reports whether t is a map used as a set (map[K]struct{}).
func IsSet(t reflect.Type) bool {
	t = Indirect(t)
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

// Indirect strips pointer indirections from t.
func Indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
