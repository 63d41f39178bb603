package vin

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the decoder, the recall fetcher and the record mapper.
var (
	ErrInvalidLength     = errors.New("VIN must be 17 characters long")
	ErrUnsupportedPrefix = errors.New("not a valid BMW VIN prefix")
	ErrNetwork           = errors.New("vpic request failed")
	ErrParse             = errors.New("vpic response is not valid JSON")
	ErrConversion        = errors.New("field conversion failed")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ConversionError reports a present value that could not be converted to
// the declared column type. Absent values never produce one.
type ConversionError struct {
	Field string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s=%q: %v", ErrConversion, e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() []error { return []error{ErrConversion, e.Err} }
