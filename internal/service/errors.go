package service

import (
	"errors"
	"fmt"
)

// ValidationError marks a client-caused failure; the HTTP layer maps it to
// 400. It wraps a cause so sentinel checks via errors.Is still work.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	// ErrNoInput fires when normalization yields zero parts; checked
	// unconditionally after all shape-specific processing.
	ErrNoInput = errors.New("at least one input required")

	// ErrBase64Pairing fires when exactly one of data/mime_type is present.
	ErrBase64Pairing = errors.New("mime_type and data must be provided together")

	// ErrBase64Decode fires when the payload is not valid base64; distinct
	// from the pairing error.
	ErrBase64Decode = errors.New("invalid base64 data")
)

func invalid(err error) error {
	return &ValidationError{Err: err}
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}
