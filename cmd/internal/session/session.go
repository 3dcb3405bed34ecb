package session

import (
	"context"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// Conn is the opaque transport handle a session dispatches into.
//
// Implementations must be safe for concurrent use and must never panic on a
// closed connection: Send after Close returns an error, TrySend returns false.
type Conn interface {
	// Send enqueues an envelope, blocking until queued or ctx is done.
	Send(ctx context.Context, env v1.Envelope) error

	// TrySend enqueues an envelope without blocking; false means dropped.
	TrySend(env v1.Envelope) bool

	// Done is closed when the connection is shutting down.
	Done() <-chan struct{}

	// Close signals connection shutdown (idempotent).
	Close()
}

// Session is a read-only snapshot of one live connection for a principal.
type Session struct {
	ID           string
	PrincipalID  string
	DisplayName  string
	Fingerprint  string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	Conn         Conn
}

// live is the registry-internal mutable record. LastActivity is guarded by
// the owning shard's mutex.
type live struct {
	id           string
	principalID  string
	displayName  string
	fingerprint  string
	createdAt    time.Time
	lastActivity time.Time
	expiresAt    time.Time
	conn         Conn
}

func (s *live) snapshot() Session {
	return Session{
		ID:           s.id,
		PrincipalID:  s.principalID,
		DisplayName:  s.displayName,
		Fingerprint:  s.fingerprint,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		ExpiresAt:    s.expiresAt,
		Conn:         s.conn,
	}
}

// Evicted describes a session removed by the per-principal cap. The caller is
// responsible for revoking its fingerprint.
type Evicted struct {
	SessionID   string
	Fingerprint string
	ExpiresAt   time.Time
}

// RegisterResult is the outcome of admitting a new session.
type RegisterResult struct {
	SessionID string

	// First reports whether this was the principal's first live session
	// (edge-triggered presence: offline -> online).
	First bool

	// Evicted lists oldest sessions displaced to honor the cap.
	Evicted []Evicted
}
