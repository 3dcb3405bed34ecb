// Package credential provides bearer-credential primitives for Ripple.
//
// It is the single source of truth for credential fingerprinting and for
// deriving a credential's expiry instant from its claims.
//
// Design goals:
//   - The raw credential is never stored or logged; only a stable fingerprint
//     (64-char hex) derived from it is used as a lookup key.
//   - Default dev/back-compat mode: SHA-256(credential) when no HMAC key is
//     configured.
//   - Production-enforced mode: HMAC-SHA256(credential, key) when policy
//     requires it.
//
// Environment:
//   - RIPPLE_CREDENTIAL_HMAC_KEY: when set, enables HMAC mode.
//
// Policy:
//   - If RequireCredentialHMAC=true, callers MUST enforce a minimum key size
//     (>= 32 bytes) and MUST use HMAC (no SHA fallback).
package credential
