package port

import "errors"

// Sentinel errors used across ports.
var (
	// ErrValidation marks malformed or missing identity/field data,
	// rejected before any merge happens.
	ErrValidation = errors.New("invalid submission data")

	// ErrNotFound is returned for lookups of nonexistent or
	// foreign-owned records.
	ErrNotFound = errors.New("record not found")

	// ErrConflict marks an identity uniqueness violation that the
	// reconciler has not yet repaired.
	ErrConflict = errors.New("duplicate submission identity")

	// ErrDependencyUnavailable marks an unreachable embedding provider
	// or similarity index. It is always recovered locally and never
	// surfaced to an ingest caller.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrUserNotFound = errors.New("user not found")
)
