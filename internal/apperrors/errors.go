package apperrors

import "errors"

// Sentinel errors for the license engine. Services wrap these with
// fmt.Errorf("...: %w", Err...) so callers can classify failures with
// errors.Is while still getting a descriptive message.
var (
	// ErrValidation indicates malformed input
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing product, license, key or user
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an invalid state transition or duplicate bootstrap
	ErrConflict = errors.New("conflict")

	// ErrConfiguration indicates missing system configuration
	// (no active key, missing provider credentials)
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication indicates tag or signature verification failure.
	// Never retried: it signals tampering or corruption.
	ErrAuthentication = errors.New("authentication error")

	// ErrInsufficientBalance indicates a balance adjustment would go negative
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrFormat indicates malformed stored ciphertext
	ErrFormat = errors.New("invalid format")
)
