// Package service implements the reservation core: validation against the
// restaurant service, table assignment, the reservation lifecycle and the
// background reconciler.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared across the service layer.
var (
	// ErrConflict signals a lost race on a status transition; the caller
	// should re-read and retry.
	ErrConflict = errors.New("concurrent modification conflict")
)

// ValidationError carries per-field messages for rejected input or an
// illegal state transition.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records another field message; first write wins per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// NotFoundError identifies a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// CapacityKind distinguishes why a slot could not take the reservation.
type CapacityKind string

const (
	// NoAvailability means the slot's reservation count or capacity
	// threshold is exhausted.
	NoAvailability CapacityKind = "NO_AVAILABILITY"
	// NoSuitableTables means no table fits the party, or the remaining
	// seat capacity cannot accommodate it.
	NoSuitableTables CapacityKind = "NO_SUITABLE_TABLES"
)

// CapacityError reports an exhausted slot. Slot is the human-readable
// descriptor ("2025-07-04, 19:00") so callers can surface it directly.
type CapacityError struct {
	Kind CapacityKind
	Slot string
}

func (e *CapacityError) Error() string {
	switch e.Kind {
	case NoSuitableTables:
		return fmt.Sprintf("no suitable tables available for %s", e.Slot)
	default:
		return fmt.Sprintf("no availability for %s", e.Slot)
	}
}

// IsRetryable reports whether the error is transient from the caller's
// point of view — infrastructure trouble rather than a business outcome.
func IsRetryable(err error) bool {
	var ve *ValidationError
	var nf *NotFoundError
	var ce *CapacityError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ce) {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return false
	}
	return err != nil
}
