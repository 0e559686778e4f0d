package datatype

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/solatis/qengine/internal/types"
)

func sameValue(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA && okB {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func TestCoerce(t *testing.T) {
	five := 5
	var nilInt *int

	tests := []struct {
		name     string
		dt       Basic
		value    any
		expected any
		isNull   bool
		wantErr  error
	}{
		{name: "integer from text", dt: Integer, value: "42", expected: int32(42)},
		{name: "integer from padded text", dt: Integer, value: " 42 ", expected: int32(42)},
		{name: "integer from int", dt: Integer, value: 42, expected: int32(42)},
		{name: "integer from whole float", dt: Integer, value: 2.0, expected: int32(2)},
		{name: "integer from bool", dt: Integer, value: true, expected: int32(1)},
		{name: "integer from pointer", dt: Integer, value: &five, expected: int32(5)},
		{name: "integer overflow", dt: Integer, value: int64(1) << 40, wantErr: types.ErrCoercionFailed},
		{name: "integer from fraction", dt: Integer, value: 1.5, wantErr: types.ErrCoercionFailed},
		{name: "integer from junk text", dt: Integer, value: "abc", wantErr: types.ErrCoercionFailed},
		{name: "integer from nil", dt: Integer, value: nil, isNull: true},
		{name: "integer from nil pointer", dt: Integer, value: nilInt, isNull: true},
		{name: "integer from empty text", dt: Integer, value: "", isNull: true},
		{name: "short in range", dt: Short, value: 300, expected: int16(300)},
		{name: "short overflow", dt: Short, value: 70000, wantErr: types.ErrCoercionFailed},
		{name: "long from uint64", dt: Long, value: uint64(7), expected: int64(7)},
		{name: "double from text", dt: Double, value: "3.25", expected: 3.25},
		{name: "double from int", dt: Double, value: 2, expected: float64(2)},
		{name: "float from double", dt: Float, value: 1.5, expected: float32(1.5)},
		{name: "boolean from text", dt: Boolean, value: "true", expected: true},
		{name: "boolean from zero", dt: Boolean, value: 0, expected: false},
		{name: "boolean from non-zero float", dt: Boolean, value: 2.5, expected: true},
		{name: "boolean from junk text", dt: Boolean, value: "maybe", wantErr: types.ErrCoercionFailed},
		{name: "char from text", dt: Char, value: "xyz", expected: 'x'},
		{name: "char from rune", dt: Char, value: 'q', expected: 'q'},
		{name: "string from int", dt: String, value: 42, expected: "42"},
		{name: "string from float", dt: String, value: 1.5, expected: "1.5"},
		{name: "string from bool", dt: String, value: true, expected: "true"},
		{name: "empty string is a value", dt: String, value: "", expected: ""},
		{name: "date from text", dt: Date, value: "2024-03-05", expected: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "date truncates time", dt: Date, value: time.Date(2024, 3, 5, 13, 4, 0, 0, time.UTC), expected: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "datetime from RFC3339", dt: DateTime, value: "2024-03-05T10:20:30Z", expected: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)},
		{name: "timestamp from epoch millis", dt: Timestamp, value: "1700000000000", expected: time.UnixMilli(1700000000000)},
		{name: "timestamp from junk", dt: Timestamp, value: "yesterday", wantErr: types.ErrCoercionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Coerce(tt.value, tt.dt)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Coerce() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() error = %v, want nil", err)
			}
			if result.IsNull != tt.isNull {
				t.Fatalf("Coerce() IsNull = %v, want %v", result.IsNull, tt.isNull)
			}
			if !tt.isNull && !sameValue(result.Value, tt.expected) {
				t.Errorf("Coerce() Value = %#v (%T), want %#v (%T)", result.Value, result.Value, tt.expected, tt.expected)
			}
		})
	}
}

func TestCompareValue(t *testing.T) {
	tests := []struct {
		name    string
		dt      Basic
		source  any
		target  any
		want    int
		wantErr error
	}{
		{name: "null integer is zero", dt: Integer, source: nil, target: 0, want: 0},
		{name: "integer text below", dt: Integer, source: "5", target: 10, want: -1},
		{name: "integer above", dt: Integer, source: int64(11), target: "10", want: 1},
		{name: "double mixed representations", dt: Double, source: 1, target: 1.0, want: 0},
		{name: "null string is empty", dt: String, source: nil, target: "", want: 0},
		{name: "string ordering", dt: String, source: "apple", target: "banana", want: -1},
		{name: "false before true", dt: Boolean, source: false, target: true, want: -1},
		{name: "true after false", dt: Boolean, source: true, target: false, want: 1},
		{name: "null boolean is false", dt: Boolean, source: nil, target: false, want: 0},
		{name: "null date is epoch", dt: Date, source: nil, target: Epoch, want: 0},
		{name: "date ordering", dt: Date, source: "2024-01-01", target: "2023-12-31", want: 1},
		{name: "char ordering", dt: Char, source: "a", target: "b", want: -1},
		{name: "uncoercible source", dt: Integer, source: "x", target: 1, wantErr: types.ErrCoercionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.dt.CompareValue(tt.source, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CompareValue() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CompareValue() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("CompareValue(%v, %v) = %d, want %d", tt.source, tt.target, got, tt.want)
			}
		})
	}
}

func TestFromString_EmptyIsAbsent(t *testing.T) {
	for _, dt := range Scalars() {
		v, err := dt.FromString("")
		if err != nil {
			t.Fatalf("%s.FromString(\"\") error = %v, want nil", dt.Name(), err)
		}
		if dt == String {
			if v != "" {
				t.Errorf("string.FromString(\"\") = %v, want empty string", v)
			}
			continue
		}
		if v != nil {
			t.Errorf("%s.FromString(\"\") = %v, want nil", dt.Name(), v)
		}
	}
}
