package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrValidation   = errors.New("validation failed")

	// ErrInvalidOrExpiredCode covers a missing, mismatched, consumed or expired code.
	// The branches are never distinguished to the caller.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrTooManyRequests      = errors.New("too many requests")
	ErrDelivery             = errors.New("delivery failed")
)
