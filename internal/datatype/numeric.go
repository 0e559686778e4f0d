package datatype

import (
	"cmp"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/solatis/qengine/internal/types"
)

type number interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Numeric is the descriptor for the integral and floating point scalars.
// T is the native representation (int16 for Short, float64 for Double, ...).
type Numeric[T number] struct {
	scalar
	bits  int
	float bool
}

func newNumeric[T number](name string, kind Kind, bits int, float bool) *Numeric[T] {
	return &Numeric[T]{scalar: scalar{name, kind}, bits: bits, float: float}
}

// FromString parses decimal text. Surrounding whitespace is ignored.
func (n *Numeric[T]) FromString(text string) (any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	if n.float {
		f, err := strconv.ParseFloat(s, n.bits)
		if err != nil {
			return nil, coercionError(text, n, err)
		}
		return T(f), nil
	}
	i, err := strconv.ParseInt(s, 10, n.bits)
	if err != nil {
		return nil, coercionError(text, n, err)
	}
	return T(i), nil
}

func (n *Numeric[T]) CompareValue(source, target any) (int, error) {
	return compareValues(n, source, target)
}

func (n *Numeric[T]) coerce(value any) (any, error) {
	switch v := value.(type) {
	case T:
		return v, nil
	case string:
		return n.FromString(v)
	case bool:
		if v {
			return T(1), nil
		}
		return T(0), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return n.fromInt(rv.Int(), value)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, coercionError(value, n, nil)
		}
		return n.fromInt(int64(u), value)
	case reflect.Float32, reflect.Float64:
		return n.fromFloat(rv.Float(), value)
	case reflect.String:
		return n.FromString(rv.String())
	case reflect.Bool:
		return n.coerce(rv.Bool())
	}
	return nil, coercionError(value, n, nil)
}

// fromInt narrows i into T, rejecting values that do not fit.
func (n *Numeric[T]) fromInt(i int64, original any) (any, error) {
	t := T(i)
	if !n.float && int64(t) != i {
		return nil, coercionError(original, n, nil)
	}
	return t, nil
}

// fromFloat converts f into T. Integral targets accept only whole numbers in range.
func (n *Numeric[T]) fromFloat(f float64, original any) (any, error) {
	if n.float {
		t := T(f)
		if !math.IsInf(f, 0) && math.IsInf(float64(t), 0) {
			return nil, coercionError(original, n, nil)
		}
		return t, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, coercionError(original, n, nil)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, coercionError(original, n, nil)
	}
	return n.fromInt(int64(f), original)
}

func (n *Numeric[T]) zero() any {
	return T(0)
}

func (n *Numeric[T]) compare(a, b any) int {
	return cmp.Compare(a.(T), b.(T))
}

// Sum folds values with +. Overflow wraps as in T.
func (n *Numeric[T]) Sum(values ...T) T {
	var acc T
	for _, v := range values {
		acc += v
	}
	return acc
}

// Subtract folds values left to right: values[0] - values[1] - ...
func (n *Numeric[T]) Subtract(values ...T) T {
	if len(values) == 0 {
		return 0
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc -= v
	}
	return acc
}

// Multiply folds values with *.
func (n *Numeric[T]) Multiply(values ...T) T {
	if len(values) == 0 {
		return 0
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc *= v
	}
	return acc
}

// Divide folds values left to right. A zero denominator is an error for
// floating point types too.
func (n *Numeric[T]) Divide(values ...T) (T, error) {
	if len(values) == 0 {
		return 0, nil
	}
	acc := values[0]
	for _, v := range values[1:] {
		if v == 0 {
			return 0, types.ErrDivideByZero
		}
		acc /= v
	}
	return acc, nil
}

// Power raises base to exponent, truncating toward zero for integral types.
func (n *Numeric[T]) Power(base, exponent T) T {
	return T(math.Pow(float64(base), float64(exponent)))
}
