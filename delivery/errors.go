package delivery

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no SMTP server is set. It is never retried.
var ErrNotConfigured = errors.New("SMTP server not configured")

// Error is any transport, protocol or authentication failure of an SMTP
// session. Op names the step that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("SMTP error: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// IsDeliveryError reports whether err carries an *Error.
func IsDeliveryError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
