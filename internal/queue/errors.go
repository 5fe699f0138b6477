package queue

import (
	"errors"
	"fmt"
)

var (
	ErrNoHandler     = errors.New("queue: handler is required")
	ErrDispatchFault = errors.New("queue: dispatch fault")
)

// PanicError is recorded when a handler panics instead of returning an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// IsPanic reports whether err came from a recovered handler panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
