package app

import (
	"errors"

	"ripple/cmd/security/credential"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast is intentional: silently falling back to unkeyed fingerprint
// hashing in production would let anyone with a credential dump precompute
// the revocation keys. Enforcement validates the same module that performs
// the hashing (security/credential).
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireCredentialHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured in bytes
	// because the key is used raw.
	if _, err := credential.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, credential.ErrHMACKeyMissing):
			return errors.New("security policy: RIPPLE_REQUIRE_CREDENTIAL_HMAC=true but RIPPLE_CREDENTIAL_HMAC_KEY is missing")
		case errors.Is(err, credential.ErrHMACKeyTooShort):
			return errors.New("security policy: RIPPLE_REQUIRE_CREDENTIAL_HMAC=true but RIPPLE_CREDENTIAL_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	return nil
}
