package revocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"ripple/cmd/internal/session"
	v1 "ripple/shared/contracts/realtime/v1"
)

type stubConn struct {
	once sync.Once
	done chan struct{}
}

func newStubConn() *stubConn { return &stubConn{done: make(chan struct{})} }

func (c *stubConn) Send(context.Context, v1.Envelope) error { return nil }
func (c *stubConn) TrySend(v1.Envelope) bool                { return true }
func (c *stubConn) Done() <-chan struct{}                   { return c.done }
func (c *stubConn) Close()                                  { c.once.Do(func() { close(c.done) }) }

func memEntry(s *MemoryStore, fingerprint string) (Entry, bool) {
	sh := s.shardFor(fingerprint)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[fingerprint]
	return e, ok
}

type stubExpiry struct {
	exp time.Time
}

func (s stubExpiry) CredentialExpiry(context.Context, string) (time.Time, error) {
	return s.exp, nil
}

func TestRevokeResolvesMissingExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	reg := session.NewRegistry(nil, 5, nil)

	want := time.Now().UTC().Add(2 * time.Hour)
	svc := NewService(nil, store, reg, nil, WithExpirySource(stubExpiry{exp: want}))

	if err := svc.Revoke(ctx, "fp-x", "test", time.Time{}); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	e, ok := memEntry(store, "fp-x")
	if !ok {
		t.Fatalf("entry not recorded")
	}
	if !e.ExpiresAt.Equal(want) {
		t.Fatalf("expiry not taken from source: got %v want %v", e.ExpiresAt, want)
	}
}

func TestRevokeClampsToRetentionCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	reg := session.NewRegistry(nil, 5, nil)

	svc := NewService(nil, store, reg, nil, WithRetentionCap(time.Hour))

	farFuture := time.Now().UTC().Add(100 * 24 * time.Hour)
	if err := svc.Revoke(ctx, "fp-y", "test", farFuture); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	e, ok := memEntry(store, "fp-y")
	if !ok {
		t.Fatalf("entry not recorded")
	}
	if e.ExpiresAt.After(time.Now().UTC().Add(time.Hour + time.Minute)) {
		t.Fatalf("expiry not clamped: %v", e.ExpiresAt)
	}
}

func TestRevokeAllExceptSurvivor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	reg := session.NewRegistry(nil, 5, nil)
	svc := NewService(nil, store, reg, nil)

	now := time.Now().UTC()
	exp := now.Add(time.Hour)

	fps := []string{"fp-a", "fp-b", "fp-c"}
	for _, fp := range fps {
		if _, err := reg.Register("u1", "u1", fp, exp, newStubConn(), now); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	count, err := svc.RevokeAll(ctx, "u1", "fp-b")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revocations, got %d", count)
	}

	for _, fp := range []string{"fp-a", "fp-c"} {
		revoked, err := store.IsRevoked(ctx, fp)
		if err != nil {
			t.Fatalf("IsRevoked: %v", err)
		}
		if !revoked {
			t.Fatalf("%s should be revoked", fp)
		}
	}
	revoked, err := store.IsRevoked(ctx, "fp-b")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatalf("survivor fingerprint must not be revoked")
	}

	active := reg.ListActive("u1")
	if len(active) != 1 || active[0].Fingerprint != "fp-b" {
		t.Fatalf("expected only survivor session, got %+v", active)
	}
}

func TestRevokeAllWithoutSurvivor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	reg := session.NewRegistry(nil, 5, nil)
	svc := NewService(nil, store, reg, nil)

	now := time.Now().UTC()
	for _, fp := range []string{"fp-a", "fp-b"} {
		if _, err := reg.Register("u1", "u1", fp, now.Add(time.Hour), newStubConn(), now); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	count, err := svc.RevokeAll(ctx, "u1", "")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revocations, got %d", count)
	}
	if got := reg.ActiveCount("u1"); got != 0 {
		t.Fatalf("expected no live sessions, got %d", got)
	}
}
