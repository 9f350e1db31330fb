package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for filter payload validation.
var (
	ErrMalformedFilter  = errors.New("malformed filter payload")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidLimit     = errors.New("invalid limit")
)

// FilterError wraps a sentinel with the offending field and value.
type FilterError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *FilterError) Unwrap() error { return e.Wrapped }

// NewFilterError creates a FilterError.
func NewFilterError(field, value string, wrapped error) *FilterError {
	return &FilterError{Field: field, Value: value, Wrapped: wrapped}
}
