package relayer

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady        = errors.New("swap is not locked yet")
	ErrSwapClosed      = errors.New("swap is already closed")
	ErrFallbackRefused = errors.New("quote would be priced from the fallback table")
	ErrAmountTooSmall  = errors.New("amount too small to cover the fee")
	ErrUnknownSwap     = errors.New("unknown swap")
)

// ValidationError rejects input before any state is created.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validation(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

func IsValidationError(err error) bool {
	var v *ValidationError

	return errors.As(err, &v)
}
