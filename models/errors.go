package models

import (
	"errors"
	"fmt"
)

// ValidationError represents malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// InsufficientDataError is returned when no score dimension can be computed.
// Partial results are not an error.
type InsufficientDataError struct {
	Dimension string
}

// Error implements the error interface
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Dimension)
}

// DependencyUnavailableError marks a degraded cache or rate-limit backend.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

// Error implements the error interface
func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Dependency, e.Err)
}

// Unwrap returns the underlying error
func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// NarrativeFailure records why the narrative service could not be used.
// It is always recovered by the structured fallback.
type NarrativeFailure struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *NarrativeFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("narrative failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("narrative failure (%s)", e.Reason)
}

// Unwrap returns the underlying error
func (e *NarrativeFailure) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewValidationErrorWithValue creates a new ValidationError with a value
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

// NewInsufficientData creates a new InsufficientDataError
func NewInsufficientData(dimension string) error {
	return &InsufficientDataError{Dimension: dimension}
}

// NewDependencyUnavailable wraps a backend failure
func NewDependencyUnavailable(dependency string, err error) error {
	return &DependencyUnavailableError{Dependency: dependency, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInsufficientData reports whether err is (or wraps) an InsufficientDataError
func IsInsufficientData(err error) bool {
	var v *InsufficientDataError
	return errors.As(err, &v)
}

// IsDependencyUnavailable reports whether err is (or wraps) a DependencyUnavailableError
func IsDependencyUnavailable(err error) bool {
	var v *DependencyUnavailableError
	return errors.As(err, &v)
}
