package model

import (
	"errors"
	"fmt"
)

// ValidationError is returned when caller supplied arguments violate a
// precondition. It is raised before any network call and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NewValidationError ...
func NewValidationError(field, format string, v ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, v...)}
}

// NotFoundError is returned when a lookup required by the caller yields no match.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// CacheError is returned when the cache store backing the client can not be provisioned.
type CacheError struct {
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("initialize cache: %s", e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsNotFound ...
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsValidation ...
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}
