package helper

import (
	"fmt"
)

// Error wraps an error with the operation that produced it.
// Nested errors build up a trace like "load chunks sql: exec: <cause>".
type Error struct {
	Trace    string
	Original error
}

// NewError wraps err with a trace. A nil err stays nil.
func NewError(trace string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Trace:    trace,
		Original: err,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Trace, e.Original)
}

// Unwrap returns the wrapped error so errors.Is and errors.As see through the trace.
func (e *Error) Unwrap() error {
	return e.Original
}
