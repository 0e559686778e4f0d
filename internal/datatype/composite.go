package datatype

import (
	"fmt"
	"reflect"
	"strings"
)

// Collection is a homogeneous list or set of Element values.
type Collection struct {
	Element DataType
}

// NewCollection builds the collection descriptor for elem.
func NewCollection(elem DataType) *Collection {
	return &Collection{Element: elem}
}

func (c *Collection) Name() string {
	return "Collection<" + c.Element.Name() + ">"
}

func (c *Collection) Kind() Kind { return KindCollection }

func (c *Collection) String() string { return c.Name() }

func (c *Collection) CompareTo(other DataType) Ordering {
	return compareKinds(c.Name(), KindCollection, other)
}

// Map associates Key values with Value values.
type Map struct {
	Key   Basic
	Value DataType
}

// NewMap builds the map descriptor for key and value.
func NewMap(key Basic, value DataType) *Map {
	return &Map{Key: key, Value: value}
}

func (m *Map) Name() string {
	return "Map<" + m.Key.Name() + ", " + m.Value.Name() + ">"
}

func (m *Map) Kind() Kind { return KindMap }

func (m *Map) String() string { return m.Name() }

func (m *Map) CompareTo(other DataType) Ordering {
	return compareKinds(m.Name(), KindMap, other)
}

// Complex is an opaque struct (or interface) type that has no scalar reduction.
type Complex struct {
	Type reflect.Type
}

// NewComplex builds the descriptor for t.
func NewComplex(t reflect.Type) *Complex {
	return &Complex{Type: t}
}

func (c *Complex) Name() string { return typeName(c.Type) }

func (c *Complex) Kind() Kind { return KindComplex }

func (c *Complex) String() string { return c.Name() }

func (c *Complex) CompareTo(other DataType) Ordering {
	return compareKinds(c.Name(), KindComplex, other)
}

// Enumeration is implemented by named string or integer types that behave as
// enums. EnumValues lists the constant names in ordinal order; for integer
// types the value is the ordinal.
type Enumeration interface {
	EnumValues() []string
}

var enumerationType = reflect.TypeOf((*Enumeration)(nil)).Elem()

// Enum is the descriptor for a Go type implementing Enumeration.
// Values compare by ordinal.
type Enum struct {
	Type   reflect.Type
	values []string
}

// NewEnum builds the descriptor for t, which must implement Enumeration and
// have a string or integer underlying type.
func NewEnum(t reflect.Type) (*Enum, error) {
	if !t.Implements(enumerationType) {
		return nil, fmt.Errorf("%s does not implement Enumeration", t)
	}
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, fmt.Errorf("%s: enum must have a string or integer underlying type", t)
	}
	values := reflect.Zero(t).Interface().(Enumeration).EnumValues()
	return &Enum{Type: t, values: append([]string(nil), values...)}, nil
}

func (e *Enum) Name() string { return typeName(e.Type) }

func (e *Enum) Kind() Kind { return KindEnum }

func (e *Enum) String() string { return e.Name() }

func (e *Enum) CompareTo(other DataType) Ordering {
	return compareKinds(e.Name(), KindEnum, other)
}

// Values returns the constant names in ordinal order.
func (e *Enum) Values() []string {
	return append([]string(nil), e.values...)
}

// FromString finds the constant named text (exact match first, then case-insensitive).
func (e *Enum) FromString(text string) (any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	idx := -1
	for i, v := range e.values {
		if v == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, v := range e.values {
			if strings.EqualFold(v, s) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil, coercionError(text, e, nil)
	}
	return e.constant(idx), nil
}

func (e *Enum) constant(idx int) any {
	v := reflect.New(e.Type).Elem()
	switch e.Type.Kind() {
	case reflect.String:
		v.SetString(e.values[idx])
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(idx))
	default:
		v.SetInt(int64(idx))
	}
	return v.Interface()
}

// Ordinal returns the position of v in EnumValues.
func (e *Enum) Ordinal(v any) (int, error) {
	rv := reflect.ValueOf(v)
	if rv.Type() != e.Type {
		return 0, coercionError(v, e, nil)
	}
	switch e.Type.Kind() {
	case reflect.String:
		for i, name := range e.values {
			if name == rv.String() {
				return i, nil
			}
		}
		return 0, coercionError(v, e, nil)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), nil
	default:
		return int(rv.Int()), nil
	}
}

func (e *Enum) CompareValue(source, target any) (int, error) {
	return compareValues(e, source, target)
}

// coerce accepts only values of the enum's own type or constant names.
func (e *Enum) coerce(value any) (any, error) {
	if s, ok := value.(string); ok {
		return e.FromString(s)
	}
	if reflect.TypeOf(value) != e.Type {
		return nil, coercionError(value, e, nil)
	}
	if _, err := e.Ordinal(value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Enum) zero() any {
	if len(e.values) == 0 {
		return reflect.Zero(e.Type).Interface()
	}
	return e.constant(0)
}

func (e *Enum) compare(a, b any) int {
	oa, _ := e.Ordinal(a)
	ob, _ := e.Ordinal(b)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}
