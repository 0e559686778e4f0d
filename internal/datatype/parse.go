package datatype

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/qengine/internal/types"
)

// The map shape is a strict superset of the collection shape, so it is tried first.
var (
	mapPattern        = regexp.MustCompile(`^(\w+)\s*<\s*(\w+)\s*,\s*(\w+)\s*>$`)
	collectionPattern = regexp.MustCompile(`^(\w+)\s*<\s*(\w+)\s*>$`)
)

// Parse resolves a type expression: a scalar keyword (case-insensitive),
// Name<Inner> for a collection or Name<Key, Value> for a map. The container
// name is not checked; "List<integer>" and "Collection<integer>" are the same type.
func Parse(expr string) (DataType, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: empty expression", types.ErrMalformedType)
	}

	if m := mapPattern.FindStringSubmatch(s); m != nil {
		key, ok := Lookup(m[2])
		if !ok {
			return nil, fmt.Errorf("%w: map key %q in %q", types.ErrUnknownType, m[2], expr)
		}
		value, ok := Lookup(m[3])
		if !ok {
			return nil, fmt.Errorf("%w: map value %q in %q", types.ErrUnknownType, m[3], expr)
		}
		return NewMap(key, value), nil
	}

	if m := collectionPattern.FindStringSubmatch(s); m != nil {
		elem, ok := Lookup(m[2])
		if !ok {
			return nil, fmt.Errorf("%w: collection element %q in %q", types.ErrUnknownType, m[2], expr)
		}
		return NewCollection(elem), nil
	}

	if strings.ContainsAny(s, "<>,") {
		return nil, fmt.Errorf("%w: %q", types.ErrMalformedType, expr)
	}

	b, ok := Lookup(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownType, expr)
	}
	return b, nil
}

// ParseBasic is Parse restricted to types with value behaviour.
func ParseBasic(expr string) (Basic, error) {
	dt, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	b, ok := dt.(Basic)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no scalar values", types.ErrIncompatibleTypes, dt.Name())
	}
	return b, nil
}

// MustParse is Parse for package-level declarations; it panics on error.
func MustParse(expr string) DataType {
	dt, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return dt
}
