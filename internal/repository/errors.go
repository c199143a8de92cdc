package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a uniqueness constraint was violated.
var ErrConflict = errors.New("repository: conflict")

// ConflictError carries the violated constraint so callers can name the
// offending field. It unwraps to ErrConflict.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%v: %s", ErrConflict, e.Constraint)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
