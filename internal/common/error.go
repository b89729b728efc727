// Package common defines shared constants and sentinel errors used across
// the LandVault server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Review-lock protocol errors.
	ErrAlreadyUnderReview = errors.New("document already under review")
	ErrNotUnderReview     = errors.New("document not under review by caller")

	// Validation errors (bad review result, unknown slot).
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when transaction contention persists past the
	// retry budget. The whole operation may be retried by the caller.
	ErrConflict = errors.New("transaction conflict")
)
