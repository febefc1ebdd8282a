package backend

import "github.com/pkg/errors"

var (
	// ErrKeyNotFound is returned when a key id is unknown to the backend.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrSigningFailed wraps backend or network failures during signature
	// computation. Safe to retry with backoff: no nonce or state was
	// consumed by a failed signing attempt.
	ErrSigningFailed = errors.New("signing failed")

	// ErrRecoveryFailed is returned when an HSM signature cannot be matched
	// to the address on file for the key. This indicates a backend bug or
	// tampering and must not be silently retried.
	ErrRecoveryFailed = errors.New("signature recovery failed")

	// ErrConfiguration is returned for invalid backend configuration.
	ErrConfiguration = errors.New("invalid signing backend configuration")
)
