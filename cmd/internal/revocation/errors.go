package revocation

import "errors"

var (
	// ErrEmptyFingerprint is returned when a blank fingerprint is submitted.
	ErrEmptyFingerprint = errors.New("empty fingerprint")

	// ErrStoreUnavailable wraps backing-store failures so callers can apply
	// the fail-closed policy explicitly.
	ErrStoreUnavailable = errors.New("revocation store unavailable")
)
