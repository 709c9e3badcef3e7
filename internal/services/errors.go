package services

import (
	"errors"
	"strings"

	"github.com/foodshare/apiserver/types"
)

var (
	// ErrForbidden is returned when the principal's role or ownership does
	// not allow the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound covers both a missing post and a post that is not in the
	// state the requested transition starts from.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned to the loser of a concurrent transition.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateEmail is returned when registering an email that is taken.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPhotosDisabled is returned when no object storage is configured.
	ErrPhotosDisabled = errors.New("photo storage is not configured")
)

// ValidationError reports user-correctable input problems.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

func invalid(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

// fromFieldsError converts a model validation error into a ValidationError.
func fromFieldsError(err error) error {
	var fe *types.FieldsError
	if errors.As(err, &fe) {
		return &ValidationError{Fields: fe.Fields}
	}
	return &ValidationError{Reason: err.Error()}
}
