package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across services and handlers. Validation and
// no-confident-match are ordinary typed results handled where they are
// detected; timeout and unavailability propagate unchanged so the API layer
// can pick the right HTTP status.

// ErrGenerationUnavailable indicates the language-generation provider is
// down or returned an unusable result. Never accompanied by partial output.
var ErrGenerationUnavailable = errors.New("generation provider unavailable")

// ErrSessionNotFound indicates a lookup for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError is a user-correctable input error, rejected before any
// side effects occur.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TimeoutError wraps a dependency call that exceeded its deadline. Callers
// may retry with backoff; the API layer maps it to a retryable status.
type TimeoutError struct {
	Dependency string
	Err        error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline exceeded", e.Dependency)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NewTimeoutError creates a timeout error for the named dependency.
func NewTimeoutError(dependency string, err error) *TimeoutError {
	return &TimeoutError{Dependency: dependency, Err: err}
}

// IsTimeout reports whether err is a dependency timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ConsistencyError marks a partial ingestion or chunk/document mismatch.
// The affected document is rolled back to its last committed generation
// before this error surfaces.
type ConsistencyError struct {
	DocumentID string
	Err        error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("document %s: inconsistent ingestion state: %v", e.DocumentID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// NewConsistencyError creates a consistency error for a document.
func NewConsistencyError(documentID string, err error) *ConsistencyError {
	return &ConsistencyError{DocumentID: documentID, Err: err}
}
