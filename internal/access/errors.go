package access

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized covers missing/invalid sessions and failed
	// permission conditions. Never retried.
	ErrUnauthorized = errors.New("access: unauthorized")

	// ErrNotFound covers missing path ancestors and records invisible
	// under the caller's scope. Deliberately also used where a
	// "forbidden" would leak existence of nested resources.
	ErrNotFound = errors.New("access: not found")

	// ErrValidation covers malformed or incomplete record shapes.
	ErrValidation = errors.New("access: invalid input")

	// ErrConflict is the sentinel ConflictError matches against.
	ErrConflict = errors.New("access: conflict")
)

// ConflictError reports a uniqueness violation and the offending fields.
type ConflictError struct {
	Model  string
	Fields []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("access: %s conflicts on %s", e.Model, strings.Join(e.Fields, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
