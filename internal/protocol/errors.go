package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol package.
// Callers match these with errors.Is after unwrapping.
var (
	// ErrAddressing indicates a topic or topic component that does not
	// conform to the hub protocol grammar.
	ErrAddressing = errors.New("protocol: invalid address")

	// ErrSchema indicates a payload that is missing required fields or
	// carries mistyped values.
	ErrSchema = errors.New("protocol: schema violation")
)

// AddressingError describes why a topic or address component is invalid.
type AddressingError struct {
	Field  string
	Reason string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("protocol: invalid address: %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrAddressing) to match.
func (e *AddressingError) Unwrap() error {
	return ErrAddressing
}

// SchemaViolation describes why a payload failed validation.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("protocol: schema violation: %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrSchema) to match.
func (e *SchemaViolation) Unwrap() error {
	return ErrSchema
}
