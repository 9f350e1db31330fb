package domain

import (
	"bytes"
	"encoding/json"
)

// FieldState distinguishes an absent constraint from an explicitly cleared one.
type FieldState uint8

const (
	FieldUnset   FieldState = iota // field not mentioned
	FieldSet                       // field carries a value
	FieldCleared                   // field explicitly cleared ("remove the brand filter")
)

// Field is a tri-state optional value. In JSON, an absent key decodes to
// FieldUnset, an explicit null to FieldCleared, and anything else to FieldSet.
// Unset and Cleared behave identically everywhere except in a merge delta,
// where Cleared removes the base constraint and Unset leaves it alone.
type Field[T any] struct {
	state FieldState
	value T
}

// Set returns a Field holding v.
func Set[T any](v T) Field[T] { return Field[T]{state: FieldSet, value: v} }

// Clear returns a Field marking the explicit removal of a constraint.
func Clear[T any]() Field[T] { return Field[T]{state: FieldCleared} }

// State returns the field's tri-state.
func (f Field[T]) State() FieldState { return f.state }

// IsSet reports whether the field carries a value.
func (f Field[T]) IsSet() bool { return f.state == FieldSet }

// Get returns the value and whether it is set.
func (f Field[T]) Get() (T, bool) { return f.value, f.state == FieldSet }

// Or returns the value if set, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.state == FieldSet {
		return f.value
	}
	return fallback
}

var nullBytes = []byte("null")

// MarshalJSON emits the value when set and null otherwise. The Unset/Cleared
// distinction is not preserved across marshalling; it only matters inside a
// delta, which is never re-serialized as one.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != FieldSet {
		return nullBytes, nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON maps explicit null to Cleared and any value to Set.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), nullBytes) {
		*f = Field[T]{state: FieldCleared}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Field[T]{state: FieldSet, value: v}
	return nil
}

// merge applies delta-over-base semantics for a single field.
func merge[T any](base, delta Field[T]) Field[T] {
	switch delta.state {
	case FieldSet:
		return delta
	case FieldCleared:
		return Field[T]{}
	default:
		return base
	}
}
