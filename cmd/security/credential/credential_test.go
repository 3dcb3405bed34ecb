package credential

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFingerprintHex_SHAFallback(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	a := FingerprintHex("token-a")
	b := FingerprintHex("token-a")
	c := FingerprintHex("token-b")

	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("distinct credentials collided")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprintHex_HMACMode(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	plain := FingerprintHex("token-a")

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	keyed := FingerprintHex("token-a")

	if plain == keyed {
		t.Fatalf("HMAC mode produced the same digest as SHA fallback")
	}
	if len(keyed) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(keyed))
	}
}

func TestFingerprintHexRequireHMAC(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := FingerprintHexRequireHMAC("tok", 32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	if _, err := FingerprintHexRequireHMAC("  ", 32); err != ErrEmptyCredential {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := FingerprintHexRequireHMAC("tok", 32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	fp, err := FingerprintHexRequireHMAC("tok", 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp))
	}
}

func TestShortFingerprint(t *testing.T) {
	t.Parallel()

	full := "aabbccddeeff00112233445566778899"
	if got := ShortFingerprint(full); got != "aabbccddeeff0011" {
		t.Fatalf("unexpected short form: %s", got)
	}
	if got := ShortFingerprint("abc"); got != "abc" {
		t.Fatalf("short input should pass through, got %s", got)
	}
}

func TestExpiryFromCredential(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(1 * time.Hour).Truncate(time.Second).UTC()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "p1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, ok := ExpiryFromCredential(signed)
	if !ok {
		t.Fatalf("expected exp claim to be found")
	}
	if !got.Equal(exp) {
		t.Fatalf("exp mismatch: got %v want %v", got, exp)
	}
}

func TestExpiryFromCredential_NoExp(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "p1"})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, ok := ExpiryFromCredential(signed); ok {
		t.Fatalf("expected no exp claim")
	}
	if _, ok := ExpiryFromCredential("not-a-jwt"); ok {
		t.Fatalf("expected opaque credential to report no exp")
	}
}

func TestEffectiveExpiry_RetentionCap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	got := EffectiveExpiry("opaque-token", now, 30*24*time.Hour)
	want := now.Add(30 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("retention cap not applied: got %v want %v", got, want)
	}
}
