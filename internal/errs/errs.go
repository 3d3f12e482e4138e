// Package errs defines the error taxonomy shared by the approval, notification
// and reminder components. Callers match on the sentinels with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input or an illegal state transition.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced entity that is absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an actor lacking the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks a unique-constraint violation.
	ErrConflict = errors.New("conflict")
)

type taxonomyError struct {
	kinds []error
	msg   string
}

func (e *taxonomyError) Error() string { return e.msg }

func (e *taxonomyError) Unwrap() []error { return e.kinds }

func newError(format string, args []any, kinds ...error) error {
	return &taxonomyError{kinds: kinds, msg: fmt.Sprintf(format, args...)}
}

// Validation returns an error matching ErrValidation.
func Validation(format string, args ...any) error {
	return newError(format, args, ErrValidation)
}

// NotFound returns an error matching ErrNotFound.
func NotFound(format string, args ...any) error {
	return newError(format, args, ErrNotFound)
}

// Forbidden returns an error matching ErrForbidden.
func Forbidden(format string, args ...any) error {
	return newError(format, args, ErrForbidden)
}

// Conflict returns an error matching ErrConflict.
func Conflict(format string, args ...any) error {
	return newError(format, args, ErrConflict)
}

// Deleted returns an error for an operation attempted on a soft-deleted
// entity. It matches both ErrNotFound and ErrValidation: the entity is gone
// from read paths, and the attempted transition is illegal.
func Deleted(format string, args ...any) error {
	return newError(format, args, ErrNotFound, ErrValidation)
}

// Message returns the caller-facing text for a taxonomy error, or "" for
// anything else so infrastructure causes are not leaked.
func Message(err error) string {
	var te *taxonomyError
	if errors.As(err, &te) {
		return te.msg
	}
	return ""
}
