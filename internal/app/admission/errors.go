package admission

import (
	"errors"
	"fmt"
)

// Sentinel kinds for structural failures. Capacity and eligibility conflicts
// are never errors; they are reported through Result.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrDeadlinePassed = errors.New("signup deadline passed")
	ErrInvalidInput   = errors.New("invalid input")
)

// Error carries the failing operation and its kind so callers can branch
// with errors.Is(err, ErrNotFound) while logs keep the operation name.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Is matches the kind.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewKind builds an Error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind builds an Error of the given kind around err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns a short label for metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "infrastructure"
	}
}
