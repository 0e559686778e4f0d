package datatype

import (
	"errors"
	"math"
	"testing"

	"github.com/solatis/qengine/internal/types"
)

func TestNumericFolds(t *testing.T) {
	if got := Integer.Sum(1, 2, 3); got != 6 {
		t.Errorf("Integer.Sum(1, 2, 3) = %d, want 6", got)
	}
	if got := Integer.Subtract(10, 3, 2); got != 5 {
		t.Errorf("Integer.Subtract(10, 3, 2) = %d, want 5", got)
	}
	if got := Long.Multiply(2, 3, 4); got != 24 {
		t.Errorf("Long.Multiply(2, 3, 4) = %d, want 24", got)
	}
	if got := Integer.Power(2, 10); got != 1024 {
		t.Errorf("Integer.Power(2, 10) = %d, want 1024", got)
	}
	if got := Double.Sum(); got != 0 {
		t.Errorf("Double.Sum() = %v, want 0", got)
	}

	got, err := Integer.Divide(20, 2, 5)
	if err != nil {
		t.Fatalf("Integer.Divide() error = %v, want nil", err)
	}
	if got != 2 {
		t.Errorf("Integer.Divide(20, 2, 5) = %d, want 2", got)
	}
}

func TestNumericFolds_Overflow(t *testing.T) {
	if got := Short.Sum(math.MaxInt16, 1); got != math.MinInt16 {
		t.Errorf("Short.Sum(MaxInt16, 1) = %d, want %d", got, math.MinInt16)
	}
}

func TestDivide_ZeroDenominator(t *testing.T) {
	if _, err := Double.Divide(1, 0); !errors.Is(err, types.ErrDivideByZero) {
		t.Errorf("Double.Divide(1, 0) error = %v, want ErrDivideByZero", err)
	}
	if _, err := Long.Divide(10, 5, 0); !errors.Is(err, types.ErrDivideByZero) {
		t.Errorf("Long.Divide(10, 5, 0) error = %v, want ErrDivideByZero", err)
	}
}

func TestStringOperations(t *testing.T) {
	if got := String.Concat("a", "b", "c"); got != "abc" {
		t.Errorf("Concat() = %q, want %q", got, "abc")
	}

	got, err := String.Substring("hello", 1, 3)
	if err != nil {
		t.Fatalf("Substring() error = %v, want nil", err)
	}
	if got != "ell" {
		t.Errorf("Substring(hello, 1, 3) = %q, want %q", got, "ell")
	}

	if _, err := String.Substring("hi", 1, 5); err == nil {
		t.Error("Substring() past end error = nil, want error")
	}
}
