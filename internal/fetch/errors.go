package fetch

import (
	"errors"
	"fmt"
)

// ErrResourceBusy is returned when the fetch gate cannot be acquired
// within its bounded wait. Callers treat it as retry-later for the
// affected subscription only.
var ErrResourceBusy = errors.New("fetch resource busy")

// Class distinguishes failures that may succeed on retry from those that will not.
type Class string

// Supported error classes.
const (
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
)

// Error is a classified fetch failure.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch (%s): %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable fetch failure.
func Transient(err error) *Error {
	return &Error{Class: ClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable fetch failure.
func Permanent(err error) *Error {
	return &Error{Class: ClassPermanent, Err: err}
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Class == ClassTransient
}

// IsPermanent reports whether err is a fetch failure that will not
// succeed until the subscription's query is changed.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Class == ClassPermanent
}
