package service

import (
	"errors"
	"fmt"

	"retail-core/internal/store"
)

// Error kinds. The API layer maps each one to an HTTP status with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error pairs a kind with a message meant for the caller
type Error struct {
	Kind    error
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches both the kind and the wrapped cause
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func notFoundError(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func conflictError(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

func unauthorizedError(format string, args ...interface{}) error {
	return newError(ErrUnauthorized, format, args...)
}

// translate classifies store sentinels. Errors that already carry a kind,
// and unknown errors, pass through unchanged.
func translate(err error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: ErrNotFound, Message: err.Error(), cause: err}
	case errors.Is(err, store.ErrInsufficientStock):
		return &Error{Kind: ErrConflict, Message: err.Error(), cause: err}
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrInvalidState):
		return &Error{Kind: ErrConflict, Message: err.Error(), cause: err}
	default:
		return err
	}
}
