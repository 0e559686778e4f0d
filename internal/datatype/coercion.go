// internal/datatype/coercion.go
package datatype

import (
	"fmt"
	"reflect"

	"github.com/solatis/qengine/internal/types"
)

/*
 * Null-safe coercion into a Basic type's native representation.
 *
 * Null and coercion failure are distinct outcomes. nil (including nil
 * pointers and empty text for non-string types) yields IsNull so callers can
 * apply their absence policy. A non-null value that cannot be represented
 * yields ErrCoercionFailed with the value and target type named.
 *
 * Native representations:
 *   - boolean: bool          - char: rune
 *   - short/integer/long: int16/int32/int64
 *   - float/double: float32/float64
 *   - string: string
 *   - date/datetime/timestamp: time.Time (UTC; date truncated to midnight)
 *   - enum: the enum's own Go type
 *
 * Cross-kind rules: numbers coerce to boolean as non-zero, booleans to
 * numbers as 1/0, anything to string through its text form, anything to char
 * through the first rune of its text form. Narrowing that loses information
 * (300 to short, 1.5 to integer) fails.
 */

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // coerced value (valid only if !IsNull)
	IsNull bool // true if input was nil/null
}

// Coerce converts value into dt's native representation.
func Coerce(value any, dt Basic) (CoercionResult, error) {
	value, ok := deref(value)
	if !ok {
		return CoercionResult{IsNull: true}, nil
	}
	v, err := dt.coerce(value)
	if err != nil {
		return CoercionResult{}, err
	}
	if v == nil {
		return CoercionResult{IsNull: true}, nil
	}
	return CoercionResult{Value: v}, nil
}

// CoerceOrZero is Coerce with nil mapped to dt's zero value.
func CoerceOrZero(value any, dt Basic) (any, error) {
	res, err := Coerce(value, dt)
	if err != nil {
		return nil, err
	}
	if res.IsNull {
		return dt.zero(), nil
	}
	return res.Value, nil
}

// Zero returns dt's zero value: false, 0, "", the epoch or the first enum constant.
func Zero(dt Basic) any {
	return dt.zero()
}

// compareValues backs every CompareValue method.
func compareValues(dt Basic, source, target any) (int, error) {
	a, err := CoerceOrZero(source, dt)
	if err != nil {
		return 0, err
	}
	b, err := CoerceOrZero(target, dt)
	if err != nil {
		return 0, err
	}
	return dt.compare(a, b), nil
}

// deref unwraps pointers and interfaces. The second result is false for nil.
func deref(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
	}
	return rv.Interface(), true
}

func coercionError(value any, dt DataType, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %v (%T) to %s: %v", types.ErrCoercionFailed, value, value, dt.Name(), cause)
	}
	return fmt.Errorf("%w: %v (%T) to %s", types.ErrCoercionFailed, value, value, dt.Name())
}
