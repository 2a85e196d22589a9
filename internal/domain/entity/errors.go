package entity

import "errors"

// Error taxonomy shared by every layer. Adapters and services wrap these with
// fmt.Errorf("...: %w", err) so callers can classify failures with errors.Is.
var (
	// ErrNotFound means no record, identity or content exists at the expected key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by create operations on an existing key.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput covers malformed addresses, self-targeting and empty values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnverified means the counterpart has no discoverable identity.
	ErrUnverified = errors.New("unverified")

	// ErrTransientIO marks retryable network or storage failures.
	ErrTransientIO = errors.New("transient i/o failure")

	// ErrConflict is returned when concurrent creates race on the same key.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized means a platform rejected the credentials of a proving attempt.
	ErrUnauthorized = errors.New("platform credentials rejected")
)
