package models

import "errors"

// Domain error kinds. Services return these (usually wrapped with context
// via fmt.Errorf and %w); the HTTP boundary maps them to status codes once.
var (
	// ErrInvalidInput marks payload validation failures (missing field,
	// bad length, out-of-range value). Maps to 422.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a failed lookup by identifier. Maps to 404.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate marks a uniqueness violation. Maps to 409.
	ErrDuplicate = errors.New("duplicate")

	// ErrUnauthorized marks a missing or unrecognized credential. Maps to 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExpired marks an expired credential (service account past its
	// expiration, session past its lifetime). Maps to 401.
	ErrExpired = errors.New("expired")

	// ErrForbidden marks a credential that lacks the required scope or a
	// self-access mismatch. Maps to 403.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks a concurrent-modification conflict. Maps to 409.
	ErrConflict = errors.New("conflict")
)
