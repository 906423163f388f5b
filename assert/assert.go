// Package assert provides pure predicate checks for use inside test
// functions. Each check returns nil on success and a descriptive error on
// failure; the runner converts a returned (or panicked) error into a failed
// outcome. The package holds no state and never terminates the caller.
package assert

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// True fails unless value is true.
func True(value bool, msg string) error {
	if !value {
		return fmt.Errorf("assertion failed: %s", msg)
	}
	return nil
}

// False fails unless value is false.
func False(value bool, msg string) error {
	if value {
		return fmt.Errorf("assertion failed: %s", msg)
	}
	return nil
}

// Equal fails unless got and want are deeply equal.
func Equal(got, want any, msg string) error {
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("assertion failed: %s: got %v, want %v", msg, got, want)
	}
	return nil
}

// NotEqual fails if got and want are deeply equal.
func NotEqual(got, want any, msg string) error {
	if reflect.DeepEqual(got, want) {
		return fmt.Errorf("assertion failed: %s: both values are %v", msg, got)
	}
	return nil
}

// Nil fails unless value is nil (typed or untyped).
func Nil(value any, msg string) error {
	if !isNil(value) {
		return fmt.Errorf("assertion failed: %s: expected nil, got %v", msg, value)
	}
	return nil
}

// NotNil fails if value is nil (typed or untyped).
func NotNil(value any, msg string) error {
	if isNil(value) {
		return fmt.Errorf("assertion failed: %s: unexpected nil", msg)
	}
	return nil
}

// Contains fails unless s contains substr.
func Contains(s, substr, msg string) error {
	if !strings.Contains(s, substr) {
		return fmt.Errorf("assertion failed: %s: %q does not contain %q", msg, s, substr)
	}
	return nil
}

// InDelta fails unless got is within delta of want.
func InDelta(got, want, delta float64, msg string) error {
	if math.Abs(got-want) > delta {
		return fmt.Errorf("assertion failed: %s: got %v, want %v ± %v", msg, got, want, delta)
	}
	return nil
}

// Greater fails unless got > threshold.
func Greater(got, threshold float64, msg string) error {
	if got <= threshold {
		return fmt.Errorf("assertion failed: %s: %v is not greater than %v", msg, got, threshold)
	}
	return nil
}

// Less fails unless got < threshold.
func Less(got, threshold float64, msg string) error {
	if got >= threshold {
		return fmt.Errorf("assertion failed: %s: %v is not less than %v", msg, got, threshold)
	}
	return nil
}

// NoError fails if err is non-nil.
func NoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("assertion failed: %s: unexpected error: %w", msg, err)
	}
	return nil
}

// Error fails unless err is non-nil.
func Error(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("assertion failed: %s: expected an error", msg)
	}
	return nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
