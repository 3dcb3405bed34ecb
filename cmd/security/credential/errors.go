package credential

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("credential HMAC key missing")
	ErrHMACKeyTooShort = errors.New("credential HMAC key too short")
	ErrEmptyCredential = errors.New("empty credential")
)
