package calltracer

import (
	"errors"
	"fmt"
)

// SkipError is the skip signal: traced code returns it (or panics with it) to say
// "this test was intentionally not executed". It is never counted as a failure.
type SkipError struct {
	Message string
}

func (e *SkipError) Error() string {
	return e.Message
}

// Skip returns a skip signal carrying msg.
func Skip(msg string) error {
	return &SkipError{Message: msg}
}

// Skipf returns a skip signal with a formatted message.
func Skipf(format string, args ...any) error {
	return &SkipError{Message: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err is, or wraps, a skip signal.
func IsSkip(err error) bool {
	var skipErr *SkipError
	return errors.As(err, &skipErr)
}
