package ierr

import (
	"errors"
	"fmt"
)

// Sentinel markers for the error taxonomy. Use with ErrorBuilder.Mark so
// errors.Is(err, ErrNotFound) keeps working through the cockroachdb/errors
// wrap chain.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrVersionConflict    = errors.New("version conflict")
	ErrValidation         = errors.New("validation error")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDependencyMissing  = errors.New("dependency missing")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrGuardFailed        = errors.New("guard failed")
	ErrProviderMismatch   = errors.New("provider mismatch")
)

// Error is a domain error carrying a machine code, a message, the logical
// operation that produced it and an unwrap chain.
type Error struct {
	Code    string
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return e.Code == t.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

func WithOp(err error, op string) *Error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return &Error{Message: err.Error(), Op: op, Err: err}
	}
	e.Op = op
	return e
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool      { return errors.Is(err, ErrAlreadyExists) }
func IsVersionConflict(err error) bool    { return errors.Is(err, ErrVersionConflict) }
func IsValidation(err error) bool         { return errors.Is(err, ErrValidation) }
func IsInvalidOperation(err error) bool   { return errors.Is(err, ErrInvalidOperation) }
func IsPermissionDenied(err error) bool   { return errors.Is(err, ErrPermissionDenied) }
func IsDependencyMissing(err error) bool  { return errors.Is(err, ErrDependencyMissing) }
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }
func IsGuardFailed(err error) bool        { return errors.Is(err, ErrGuardFailed) }
func IsProviderMismatch(err error) bool   { return errors.Is(err, ErrProviderMismatch) }

// BoundaryCode maps the internal sentinel taxonomy onto the four
// caller-facing codes of the external interface: NOT_FOUND, BAD_REQUEST,
// CONFLICT, INTERNAL_SERVER_ERROR.
func BoundaryCode(err error) string {
	switch {
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsValidation(err), IsInvalidOperation(err), IsGuardFailed(err):
		return "BAD_REQUEST"
	case IsAlreadyExists(err), IsVersionConflict(err):
		return "CONFLICT"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}
