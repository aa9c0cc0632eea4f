package venue

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: timeouts, rate limits,
// recoverable rejections.
type TransientError struct {
	Venue string
	Op    string
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient %s failure: %v", e.Venue, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix: insufficient
// balance, unknown instrument, permanent rejection.
type FatalError struct {
	Venue string
	Op    string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal %s failure: %v", e.Venue, e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func Transient(venue, op string, err error) error {
	return &TransientError{Venue: venue, Op: op, Err: err}
}

func Fatal(venue, op string, err error) error {
	return &FatalError{Venue: venue, Op: op, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
