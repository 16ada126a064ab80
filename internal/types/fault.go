package types

import (
	"errors"
	"fmt"
)

// FaultClass is the caller-facing failure category. Classes map onto
// HTTP-style status families at the API boundary and tell callers whether
// retrying the same instruction can help.
type FaultClass string

const (
	// ClassInvalid covers malformed input and malformed model responses.
	ClassInvalid FaultClass = "invalid"
	// ClassRateLimited means a collaborator asked us to back off; the caller
	// should wait and retry the whole instruction.
	ClassRateLimited FaultClass = "rate_limited"
	// ClassConflict means the session already has a cycle in flight.
	ClassConflict FaultClass = "conflict"
	// ClassUnavailable covers collaborator and transport failures.
	ClassUnavailable FaultClass = "unavailable"
)

// Fault is a typed failure outcome. Fatal cycle errors are surfaced as
// faults so callers can implement backoff and user messaging without
// string-matching error text.
type Fault struct {
	Class   FaultClass
	Message string

	// Err preserves the underlying cause for logs; not part of the
	// caller-facing message.
	Err error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Faultf builds a Fault with a formatted message.
func Faultf(class FaultClass, format string, args ...interface{}) *Fault {
	return &Fault{Class: class, Message: fmt.Sprintf(format, args...)}
}

// WrapFault attaches a class and message to an underlying error.
func WrapFault(class FaultClass, err error, format string, args ...interface{}) *Fault {
	return &Fault{Class: class, Message: fmt.Sprintf(format, args...), Err: err}
}

// ClassOf extracts the failure class from err. Errors that are not faults
// default to ClassUnavailable: an unclassified failure is by definition an
// internal one.
func ClassOf(err error) FaultClass {
	var f *Fault
	if errors.As(err, &f) {
		return f.Class
	}
	return ClassUnavailable
}

// IsRetryable reports whether the caller may usefully retry the same
// instruction after a delay.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassRateLimited, ClassUnavailable:
		return true
	}
	return false
}
