package revocation

import (
	"context"
	"time"
)

// DefaultRetentionCap bounds how long a revocation entry is retained when the
// credential carries no usable expiry of its own.
const DefaultRetentionCap = 30 * 24 * time.Hour

// Entry is one revoked credential fingerprint.
type Entry struct {
	Fingerprint string
	Reason      string
	RevokedAt   time.Time
	ExpiresAt   time.Time
}

// Store abstracts persistence for the revocation set.
//
// Implementations must be safe for concurrent use. IsRevoked must check the
// entry's expiry on read so correctness never depends on sweep timing.
type Store interface {
	// Revoke records a fingerprint as invalid until expiresAt. Re-revoking an
	// existing fingerprint keeps the earliest revocation instant.
	Revoke(ctx context.Context, fingerprint, reason string, expiresAt time.Time) error

	// IsRevoked reports whether the fingerprint is currently revoked.
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)

	// Sweep discards entries whose expiry is at or before now, returning the
	// number removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
