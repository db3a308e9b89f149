package subscription

import (
	"fmt"

	ierr "github.com/usagebilling/core/internal/ierr"
)

// Error codes specific to subscription domain
const (
	ErrCodeNotFound        = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeAlreadyExists   = "SUBSCRIPTION_ALREADY_EXISTS"
	ErrCodeVersionConflict = "SUBSCRIPTION_VERSION_CONFLICT"
	ErrCodeInvalidState    = "SUBSCRIPTION_INVALID_STATE"
)

// Common subscription errors
var (
	ErrNotFound        = ierr.New(ErrCodeNotFound, "subscription not found")
	ErrAlreadyExists   = ierr.New(ErrCodeAlreadyExists, "subscription already exists")
	ErrVersionConflict = ierr.New(ErrCodeVersionConflict, "subscription version conflict")
	ErrInvalidState    = ierr.New(ErrCodeInvalidState, "subscription is in invalid state for operation")
)

// NewNotFoundError creates a new not found error with additional context
func NewNotFoundError(id string) error {
	return ierr.Wrap(ErrNotFound, ErrCodeNotFound,
		"subscription not found with id: "+id)
}

// NewAlreadyExistsError creates a new already exists error with additional context
func NewAlreadyExistsError(id string) error {
	return ierr.Wrap(ErrAlreadyExists, ErrCodeAlreadyExists,
		"subscription already exists with id: "+id)
}

// NewVersionConflictError creates a new version conflict error with additional context
func NewVersionConflictError(id string, currentVersion, expectedVersion int) error {
	return ierr.Wrap(ErrVersionConflict, ErrCodeVersionConflict,
		fmt.Sprintf("subscription version conflict: expected %d but got %d for id: %s",
			expectedVersion, currentVersion, id))
}

// NewInvalidStateError creates a new invalid state error with additional context
func NewInvalidStateError(id string, currentState, expectedState string) error {
	return ierr.Wrap(ErrInvalidState, ErrCodeInvalidState,
		fmt.Sprintf("subscription is in invalid state: expected %s but got %s for id: %s",
			expectedState, currentState, id))
}
