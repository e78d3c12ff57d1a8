package models

import (
	"errors"
	"fmt"
)

// Domain error kinds. Callers match them with errors.Is; anything that does
// not wrap one of these is an internal failure.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrItemNotFound        = errors.New("menu item not found")
	ErrItemUnavailable     = errors.New("menu item unavailable")
	ErrOrderNotFound       = errors.New("order not found")
	ErrSubOrderNotFound    = errors.New("vendor order not found in this order")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrIdempotencyConflict = errors.New("request with this idempotency key is in progress")
	ErrVendorNotFound      = errors.New("vendor not found")
)

// ValidationError reports a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput
func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}
