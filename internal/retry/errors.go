package retry

import (
	"context"
	"errors"
	"fmt"
)

// Class is the retry classification of a failed hypervisor call.
type Class int

const (
	// Fatal failures are returned immediately.
	Fatal Class = iota
	// Transient failures are retried until the attempt bound.
	Transient
	// NotFound failures mean the referenced object does not exist.
	NotFound
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case NotFound:
		return "not_found"
	default:
		return "fatal"
	}
}

// Reason explains why a retried call gave up.
type Reason int

const (
	ReasonFatal Reason = iota
	ReasonNotFound
	ReasonExhausted
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not found"
	case ReasonExhausted:
		return "retries exhausted"
	case ReasonTimeout:
		return "deadline exceeded"
	default:
		return "fatal"
	}
}

// Sentinels matched by (*Error).Is.
var (
	ErrFatal     = errors.New("fatal hypervisor error")
	ErrNotFound  = errors.New("hypervisor object not found")
	ErrExhausted = errors.New("retries exhausted")
	ErrTimeout   = errors.New("deadline exceeded")

	// ErrAttemptTimeout is the failure recorded for an abandoned attempt.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// Error is returned by Policy when a call does not succeed.
//
// A NotFound failure outside of Exists is fatal to the caller, so it
// matches both ErrNotFound and ErrFatal.
type Error struct {
	Op       string
	Reason   Reason
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonExhausted, ReasonTimeout:
		return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, e.Reason, e.Attempts, e.Err)
	case ReasonNotFound:
		return fmt.Sprintf("%s: not found: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's reason.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrFatal:
		return e.Reason == ReasonFatal || e.Reason == ReasonNotFound
	case ErrNotFound:
		return e.Reason == ReasonNotFound
	case ErrExhausted:
		return e.Reason == ReasonExhausted
	case ErrTimeout, context.DeadlineExceeded:
		return e.Reason == ReasonTimeout
	}
	return false
}

// IsNotFound reports whether err is a NotFound failure from a Policy.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
