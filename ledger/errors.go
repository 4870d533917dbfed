/*
errors.go - Centralized error taxonomy

PURPOSE:
  All error categories in one place. Callers branch with errors.Is against
  the sentinels; the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Validation  - malformed input, caught before any persistence call
  2. NotFound    - referenced entity absent or not in the expected state
  3. Conflict    - stock exhausted, insufficient points, already decided
  4. Persistence - transaction or connection failure (full rollback)

USAGE:
  if errors.Is(err, ledger.ErrConflict) { ... }

  var ce *ledger.ConflictError
  if errors.As(err, &ce) { fmt.Println(ce.Detail) }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for missing or malformed input. Nothing has
	// been persisted when this is returned.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when a referenced entity does not exist or is
	// no longer in the state the operation requires (e.g. a redemption that
	// has already been decided).
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a precondition fails against live state:
	// sold-out stock, insufficient points, duplicate email.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the caller's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrPersistence is returned when the storage layer fails. The enclosing
	// transaction has been rolled back in full.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a precondition that failed against live state.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientPointsError is the conflict raised when a member's balance
// cannot cover a redemption.
type InsufficientPointsError struct {
	MemberID  MemberID
	Available Points
	Required  Points
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %s, required %s",
		e.Available, e.Required)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault and safe to
// show verbatim.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden)
}
