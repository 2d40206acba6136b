package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmappedReplicate is returned when a replicate has no treatment channel assignment.
	ErrUnmappedReplicate = errors.New("replicate has no label swap assignment")
	// ErrMissingColumn is returned when an input table lacks a required column.
	ErrMissingColumn = errors.New("required column missing")
	// ErrInvalidChannel is returned for channel names other than light or heavy.
	ErrInvalidChannel = errors.New("invalid isotope channel")
	// ErrInvariant is returned when a computed record violates a data invariant.
	ErrInvariant = errors.New("invariant violated")
)

// ConfigError is a fatal configuration problem tied to a replicate and/or column.
type ConfigError struct {
	Replicate int    // 0 when not replicate specific
	Column    string // empty when not column specific
	Err       error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Replicate != 0 && e.Column != "":
		return fmt.Sprintf("configuration error: replicate %d: column %q: %v", e.Replicate, e.Column, e.Err)
	case e.Replicate != 0:
		return fmt.Sprintf("configuration error: replicate %d: %v", e.Replicate, e.Err)
	case e.Column != "":
		return fmt.Sprintf("configuration error: column %q: %v", e.Column, e.Err)
	default:
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error found during record validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvariant
}
