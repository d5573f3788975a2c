package model

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (optionally wrapped) by the store and the
// components built on it.
var (
	ErrNotFound       = errors.New("not found")
	ErrIdentityExists = errors.New("identity already exists")
	ErrNoIdentity     = errors.New("no identity: run init first")
	ErrStoreClosed    = errors.New("store closed")
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
