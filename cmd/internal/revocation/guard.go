package revocation

import (
	"context"
	"log/slog"
)

// Guard wraps a Store with the explicit unavailability policy.
//
// Default policy is fail-closed: when the store cannot answer, the credential
// is treated as revoked-unknown and denied. Fail-open must be a deliberate
// configuration choice, never an accident.
type Guard struct {
	log      *slog.Logger
	store    Store
	failOpen bool
}

// NewGuard constructs a Guard. failOpen=false (the default everywhere) denies
// on store errors.
func NewGuard(log *slog.Logger, store Store, failOpen bool) *Guard {
	return &Guard{log: log, store: store, failOpen: failOpen}
}

// Denied reports whether the fingerprint must be rejected: either it is
// revoked, or the store is unreachable and the policy is fail-closed.
func (g *Guard) Denied(ctx context.Context, fingerprint string) bool {
	revoked, err := g.store.IsRevoked(ctx, fingerprint)
	if err != nil {
		if g.log != nil {
			g.log.Warn("revocation.check.fail", "err", err, "fail_open", g.failOpen)
		}
		return !g.failOpen
	}
	return revoked
}
