// Package common defines shared constants and sentinel errors used across
// the gateway layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Registration conflicts. The concrete field is carried in the
	// wrapping message; all three map to the same HTTP outcome.
	ErrorConflict = errors.New("already exists")

	// Validation errors (malformed email, weak password, missing fields).
	ErrorValidation = errors.New("validation error")

	// Auth errors (invalid, expired or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Ownership errors: a batch operation touched a session that does
	// not belong to the caller. Distinct from ErrorNotFound because the
	// whole batch is rejected, not a single record missed.
	ErrorOwnership = errors.New("not owned by caller")

	// ErrorNoChanges signals an update with an empty patch. Reported to
	// clients exactly like a missing session.
	ErrorNoChanges = errors.New("no changes made")
)
