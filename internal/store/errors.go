package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SQLSTATE codes surfaced as ConstraintError.
const (
	CodeUniqueViolation  = "23505"
	CodeNotNullViolation = "23502"
)

// ConstraintError is a typed constraint violation from the database:
// the SQLSTATE code plus the name of the violated constraint. Callers
// map the constraint name to a user-facing field instead of inspecting
// driver error strings.
type ConstraintError struct {
	Code       string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation %s on %q", e.Code, e.Constraint)
}
