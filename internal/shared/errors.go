package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict indicates an operation attempted on an entity not in
	// the required state, e.g. repaying a pending loan.
	ErrStateConflict = errors.New("state conflict")
	// ErrDuplicateOperation indicates an idempotent replay; callers receive
	// the original result, never a second application.
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrPersistence indicates a failed commit. The whole mutation rolled
	// back; the caller must retry the operation from scratch.
	ErrPersistence = errors.New("persistence failure")
)

// Validationf wraps ErrValidation with a precise, actionable message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// StateConflictf wraps ErrStateConflict with the offending state.
func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStateConflict}, args...)...)
}
