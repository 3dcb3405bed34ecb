package revocation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ripple/cmd/internal/metrics"
	"ripple/cmd/internal/session"
)

// ExpirySource looks up the authoritative expiry instant recorded for a
// credential fingerprint. directory.Directory satisfies it.
type ExpirySource interface {
	CredentialExpiry(ctx context.Context, fingerprint string) (time.Time, error)
}

// Service combines the revocation set with the session registry for
// operations that act on a whole principal ("log out everywhere", forced
// account lock).
type Service struct {
	log      *slog.Logger
	met      *metrics.Metrics
	store    Store
	registry *session.Registry

	expiry       ExpirySource
	retentionCap time.Duration
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithExpirySource consults src for fingerprints revoked without a known
// expiry, so entries are retained no longer than the credential itself lives.
func WithExpirySource(src ExpirySource) ServiceOption {
	return func(s *Service) { s.expiry = src }
}

// WithRetentionCap bounds how long any revocation entry is retained.
func WithRetentionCap(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.retentionCap = d
		}
	}
}

// NewService constructs a Service. met may be nil.
func NewService(log *slog.Logger, store Store, registry *session.Registry, met *metrics.Metrics, opts ...ServiceOption) *Service {
	s := &Service{log: log, met: met, store: store, registry: registry, retentionCap: DefaultRetentionCap}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveExpiry fills in a missing expiry from the expiry source and clamps
// the result to the retention cap.
func (s *Service) resolveExpiry(ctx context.Context, fingerprint string, expiresAt time.Time) time.Time {
	if expiresAt.IsZero() && s.expiry != nil {
		if exp, err := s.expiry.CredentialExpiry(ctx, fingerprint); err == nil {
			expiresAt = exp
		}
	}
	limit := time.Now().UTC().Add(s.retentionCap)
	if expiresAt.IsZero() || expiresAt.After(limit) {
		return limit
	}
	return expiresAt
}

// Revoke records a single fingerprint. A zero expiresAt is resolved against
// the expiry source and the retention cap.
func (s *Service) Revoke(ctx context.Context, fingerprint, reason string, expiresAt time.Time) error {
	if err := s.store.Revoke(ctx, fingerprint, reason, s.resolveExpiry(ctx, fingerprint, expiresAt)); err != nil {
		return err
	}
	s.met.CredentialRevoked()
	if s.log != nil {
		s.log.Info("revocation.add", "reason", reason)
	}
	return nil
}

// RevokeAll revokes every fingerprint currently registered for the principal
// except the optional survivor, removing the matching sessions. Returns the
// number of fingerprints revoked.
//
// Registry reads and in-memory removal happen without holding any lock across
// the store writes.
func (s *Service) RevokeAll(ctx context.Context, principalID, exceptFingerprint string) (int, error) {
	exceptFingerprint = strings.TrimSpace(exceptFingerprint)
	active := s.registry.ListActive(principalID)

	now := time.Now().UTC()
	revoked := 0
	var firstErr error

	seen := make(map[string]struct{}, len(active))
	for _, sess := range active {
		if sess.Fingerprint == exceptFingerprint {
			continue
		}

		if _, done := seen[sess.Fingerprint]; !done {
			seen[sess.Fingerprint] = struct{}{}
			if err := s.store.Revoke(ctx, sess.Fingerprint, "revoke_all", s.resolveExpiry(ctx, sess.Fingerprint, sess.ExpiresAt)); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			s.met.CredentialRevoked()
			revoked++
		}

		s.registry.Remove(sess.ID, "revoke_all", now)
	}

	if s.log != nil {
		s.log.Info("revocation.revoke_all", "principal_id", principalID, "revoked", revoked, "kept_survivor", exceptFingerprint != "")
	}
	return revoked, firstErr
}
