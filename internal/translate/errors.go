package translate

import (
	"errors"
	"fmt"
)

var ErrMissingVersion = errors.New("translations have no version")

// Error is a resolver failure. Reason is the short text reported back as the
// request's rejection; Err carries the underlying cause for logs.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...), Err: err}
}
