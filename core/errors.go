package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a requested Resource does not exist.
// Err is one of the package level sentinel errors (eg: fees.ErrStudentNotFound).
type NotFoundError struct {
	Resource string
	Key      string
	Err      error
}

func NewNotFoundError(err error, resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key, Err: err}
}

func (err NotFoundError) Error() string {
	if err.Key == "" {
		return err.Err.Error()
	}
	return fmt.Sprintf("%s: %s", err.Err.Error(), err.Key)
}

func (err NotFoundError) Unwrap() error { return err.Err }

// IsNotFound reports whether err (or its cause) is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
