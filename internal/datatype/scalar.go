package datatype

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/solatis/qengine/internal/types"
)

// BooleanType is the descriptor for boolean values.
type BooleanType struct {
	scalar
}

func (b *BooleanType) FromString(text string) (any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, coercionError(text, b, err)
	}
	return v, nil
}

func (b *BooleanType) CompareValue(source, target any) (int, error) {
	return compareValues(b, source, target)
}

// coerce accepts booleans, boolean text and numbers (non-zero is true).
func (b *BooleanType) coerce(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return b.FromString(v)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	case reflect.String:
		return b.FromString(rv.String())
	}
	return nil, coercionError(value, b, nil)
}

func (b *BooleanType) zero() any { return false }

// compare orders false before true.
func (b *BooleanType) compare(x, y any) int {
	bx, by := x.(bool), y.(bool)
	switch {
	case bx == by:
		return 0
	case !bx:
		return -1
	default:
		return 1
	}
}

// CharType is the descriptor for single characters, represented as rune.
type CharType struct {
	scalar
}

// FromString takes the first rune of text.
func (c *CharType) FromString(text string) (any, error) {
	if text == "" {
		return nil, nil
	}
	r, _ := utf8.DecodeRuneInString(text)
	return r, nil
}

func (c *CharType) CompareValue(source, target any) (int, error) {
	return compareValues(c, source, target)
}

// coerce accepts runes and otherwise takes the first rune of the value's text form.
func (c *CharType) coerce(value any) (any, error) {
	switch v := value.(type) {
	case rune:
		return v, nil
	case string:
		return c.FromString(v)
	case byte:
		return rune(v), nil
	}
	return c.FromString(textOf(value))
}

func (c *CharType) zero() any { return rune(0) }

func (c *CharType) compare(x, y any) int {
	rx, ry := x.(rune), y.(rune)
	switch {
	case rx < ry:
		return -1
	case rx > ry:
		return 1
	default:
		return 0
	}
}

// StringType is the descriptor for text. Any value coerces to its text form.
type StringType struct {
	scalar
}

// FromString returns text unchanged; empty text is a value, not an absence.
func (s *StringType) FromString(text string) (any, error) {
	return text, nil
}

func (s *StringType) CompareValue(source, target any) (int, error) {
	return compareValues(s, source, target)
}

func (s *StringType) coerce(value any) (any, error) {
	return textOf(value), nil
}

func (s *StringType) zero() any { return "" }

func (s *StringType) compare(x, y any) int {
	return strings.Compare(x.(string), y.(string))
}

// Concat joins values in order.
func (s *StringType) Concat(values ...string) string {
	return strings.Join(values, "")
}

// Substring returns length runes starting at rune offset pos.
func (s *StringType) Substring(value string, pos, length int) (string, error) {
	runes := []rune(value)
	if pos < 0 || length < 0 || pos+length > len(runes) {
		return "", fmt.Errorf("%w: substring [%d, %d) of %d runes", types.ErrCoercionFailed, pos, pos+length, len(runes))
	}
	return string(runes[pos : pos+length]), nil
}

// textOf renders a value the way the text coercion sees it.
func textOf(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
