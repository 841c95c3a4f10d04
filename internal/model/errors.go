package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of them.
var (
	ErrValidation             = errors.New("validation error")
	ErrConflict               = errors.New("conflict")
	ErrNotFound               = errors.New("not found")
	ErrIncompleteComponentSet = errors.New("incomplete component set")
	ErrPersistence            = errors.New("persistence error")
	ErrConfiguration          = errors.New("configuration error")
)

// Code is a named failure that belongs to one kind.
// errors.Is matches both the code itself and its kind.
type Code struct {
	kind error
	name string
}

func (c *Code) Error() string { return c.name }

func (c *Code) Unwrap() error { return c.kind }

// Name returns the stable machine-readable identifier of the code.
func (c *Code) Name() string { return c.name }

var (
	ErrAlreadyPublished   = &Code{kind: ErrConflict, name: "already_published"}
	ErrSlotOverlap        = &Code{kind: ErrConflict, name: "slot_overlap"}
	ErrConcurrentUpdate   = &Code{kind: ErrConflict, name: "concurrent_update"}
	ErrInvalidTransition  = &Code{kind: ErrValidation, name: "invalid_transition"}
	ErrZeroLengthSlot     = &Code{kind: ErrValidation, name: "zero_length_slot"}
	ErrMissingTimezone    = &Code{kind: ErrConfiguration, name: "missing_timezone"}
	ErrUnknownRestaurant  = &Code{kind: ErrConfiguration, name: "unknown_restaurant"}
	ErrMissingProteina    = &Code{kind: ErrIncompleteComponentSet, name: "missing_proteina"}
	ErrForbiddenComponent = &Code{kind: ErrIncompleteComponentSet, name: "forbidden_component"}
)

// Persistence wraps a storage failure so callers can treat it as retryable.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// CodeOf returns the most specific identifier for err: the code name when
// present, otherwise the kind.
func CodeOf(err error) string {
	var c *Code
	if errors.As(err, &c) {
		return c.name
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIncompleteComponentSet):
		return "incomplete_component_set"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	default:
		return "internal_error"
	}
}
