package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Failure sentinels shared across the domain and persistence layers.
// Callers classify with errors.Is; persistence wraps them into *Error
// with an operation name before surfacing.
var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("validation")
	// ErrNotFound indicates a referenced row or resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an optimistic-lock/concurrency conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvariant indicates an invariant rule violation.
	ErrInvariant = errors.New("invariant violation")
	// ErrRetryable indicates a transient failure the caller may retry.
	ErrRetryable = errors.New("retryable")
)

func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

func NotFoundError(msg string) error {
	return errors.Join(ErrNotFound, errors.New(strings.TrimSpace(msg)))
}

func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

// Error is the canonical wrapper carried out of aggregate operations.
type Error struct {
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s", op, msg)
	case op != "":
		return op
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// WrapOp annotates err with the failing operation, preserving sentinel
// classification through Unwrap.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: strings.TrimSpace(op), Message: err.Error(), Cause: err}
}
