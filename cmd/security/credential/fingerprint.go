package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the credential HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "RIPPLE_CREDENTIAL_HMAC_KEY"

	// shortFingerprintLen is the number of hex chars used for log-safe short forms.
	shortFingerprintLen = 16
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a
// minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// FingerprintHex derives the stable fingerprint used to key sessions and
// revocation entries.
// Behavior:
//   - If RIPPLE_CREDENTIAL_HMAC_KEY is set (non-empty), uses HMAC-SHA256(credential, key).
//   - Otherwise falls back to SHA-256(credential) for dev/back-compat.
func FingerprintHex(cred string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(cred)
	}
	return HashHMACSHA256Hex(cred, []byte(key))
}

// FingerprintHexRequireHMAC derives the fingerprint in enforced-HMAC mode.
// It fails on a blank credential and if the key is missing or too short.
func FingerprintHexRequireHMAC(cred string, minBytes int) (string, error) {
	if strings.TrimSpace(cred) == "" {
		return "", ErrEmptyCredential
	}
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	return HashHMACSHA256Hex(cred, key), nil
}

// ShortFingerprint truncates a fingerprint for log fields. It never returns
// the full value to keep lookup keys out of logs.
func ShortFingerprint(fp string) string {
	if len(fp) <= shortFingerprintLen {
		return fp
	}
	return fp[:shortFingerprintLen]
}
