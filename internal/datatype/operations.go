package datatype

// Capability interfaces. A descriptor implements exactly the operations its
// values support, so calling Sum on String does not compile.

// Summer folds values with addition.
type Summer[T any] interface {
	Sum(values ...T) T
}

// Subtracter folds values with subtraction.
type Subtracter[T any] interface {
	Subtract(values ...T) T
}

// Multiplier folds values with multiplication.
type Multiplier[T any] interface {
	Multiply(values ...T) T
}

// Divider folds values with division and rejects a zero denominator.
type Divider[T any] interface {
	Divide(values ...T) (T, error)
}

// Exponentiator raises a base to an exponent.
type Exponentiator[T any] interface {
	Power(base, exponent T) T
}

// Concatenator joins string values.
type Concatenator interface {
	Concat(values ...string) string
}

// Substringer extracts a rune range from a string value.
type Substringer interface {
	Substring(value string, pos, length int) (string, error)
}

var (
	_ Summer[int16]          = Short
	_ Summer[int32]          = Integer
	_ Summer[int64]          = Long
	_ Summer[float32]        = Float
	_ Summer[float64]        = Double
	_ Subtracter[int32]      = Integer
	_ Multiplier[int64]      = Long
	_ Divider[float64]       = Double
	_ Exponentiator[int32]   = Integer
	_ Exponentiator[float64] = Double
	_ Concatenator           = String
	_ Substringer            = String
)
