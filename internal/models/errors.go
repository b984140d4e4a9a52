package models

import "github.com/zeebo/errs"

// Error classes shared by the catalog, the store and the reservation engine.
var (
	// ErrValidation is returned for malformed input. Nothing is written.
	ErrValidation = errs.Class("validation")
	// ErrNotFound is returned for an unknown voucher code or reservation handle.
	ErrNotFound = errs.Class("not found")
	// ErrConflict is returned by a store when the version token is stale.
	ErrConflict = errs.Class("version conflict")
	// ErrTransient is returned once conflict retries are exhausted; the caller
	// should retry the whole request.
	ErrTransient = errs.Class("transient")
	// ErrExpired is returned when a reservation TTL elapsed before commit.
	ErrExpired = errs.Class("reservation expired")
	// ErrReleased is returned when committing a reservation that was released.
	ErrReleased = errs.Class("reservation released")
	// ErrExhausted is returned when the offer ran out of capacity before commit.
	ErrExhausted = errs.Class("offer exhausted")
)

// ValidationResponse is the error body returned to HTTP callers.
type ValidationResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
