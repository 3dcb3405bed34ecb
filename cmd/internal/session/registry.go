package session

import (
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ripple/cmd/internal/ids"
	"ripple/cmd/internal/metrics"
)

const (
	// DefaultMaxSessionsPerPrincipal bounds concurrent sessions per principal.
	DefaultMaxSessionsPerPrincipal = 5

	shardCount = 32
)

// EdgeObserver receives edge-triggered presence events from the registry.
//
// Callbacks are invoked outside registry locks and must not block; under
// concurrent connect/disconnect for the same principal, callbacks may
// interleave, so observers should re-check ActiveCount when they act.
type EdgeObserver interface {
	FirstSessionCreated(principalID string, at time.Time)
	LastSessionRemoved(principalID string, at time.Time)
}

type shard struct {
	mu          sync.Mutex
	byPrincipal map[string][]*live
}

// Registry tracks live sessions sharded by principal id.
type Registry struct {
	log *slog.Logger
	met *metrics.Metrics

	capPerPrincipal int
	shards          [shardCount]*shard

	// index maps session id -> *live for O(1) touch/remove.
	index sync.Map

	obsMu    sync.RWMutex
	observer EdgeObserver
}

// NewRegistry constructs a Registry. capPerPrincipal <= 0 falls back to the
// default. met may be nil.
func NewRegistry(log *slog.Logger, capPerPrincipal int, met *metrics.Metrics) *Registry {
	if capPerPrincipal <= 0 {
		capPerPrincipal = DefaultMaxSessionsPerPrincipal
	}

	r := &Registry{log: log, met: met, capPerPrincipal: capPerPrincipal}
	for i := range r.shards {
		r.shards[i] = &shard{byPrincipal: make(map[string][]*live)}
	}
	return r
}

// SetObserver installs the edge observer. Call before serving traffic.
func (r *Registry) SetObserver(obs EdgeObserver) {
	r.obsMu.Lock()
	r.observer = obs
	r.obsMu.Unlock()
}

func (r *Registry) shardFor(principalID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principalID))
	return r.shards[h.Sum32()%shardCount]
}

// Register admits a new session for a principal. If the principal already
// holds the maximum number of sessions, the oldest (by creation instant) are
// evicted synchronously and returned so the caller can revoke their
// fingerprints. Eviction is bounded: it never removes more than the overflow.
func (r *Registry) Register(principalID, displayName, fingerprint string, expiresAt time.Time, conn Conn, now time.Time) (RegisterResult, error) {
	principalID = strings.TrimSpace(principalID)
	fingerprint = strings.TrimSpace(fingerprint)
	if principalID == "" || fingerprint == "" {
		return RegisterResult{}, ErrInvalidSession
	}
	if conn == nil {
		return RegisterResult{}, ErrNilConn
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s := &live{
		id:           ids.MustULID(now),
		principalID:  principalID,
		displayName:  strings.TrimSpace(displayName),
		fingerprint:  fingerprint,
		createdAt:    now,
		lastActivity: now,
		expiresAt:    expiresAt,
		conn:         conn,
	}

	sh := r.shardFor(principalID)

	var evicted []*live

	sh.mu.Lock()
	sessions := sh.byPrincipal[principalID]
	first := len(sessions) == 0

	// Oldest-first eviction keeps the count at the cap after admission.
	// Insertion order equals creation order, so victims are the head.
	for len(sessions) >= r.capPerPrincipal {
		victim := sessions[0]
		sessions = sessions[1:]
		evicted = append(evicted, victim)
		r.index.Delete(victim.id)
	}

	sessions = append(sessions, s)
	sh.byPrincipal[principalID] = sessions
	sh.mu.Unlock()

	r.index.Store(s.id, s)
	r.met.SessionRegistered()

	res := RegisterResult{SessionID: s.id, First: first}
	for _, v := range evicted {
		v.conn.Close()
		r.met.SessionRemoved()
		r.met.SessionEvicted()
		res.Evicted = append(res.Evicted, Evicted{
			SessionID:   v.id,
			Fingerprint: v.fingerprint,
			ExpiresAt:   v.expiresAt,
		})
		if r.log != nil {
			r.log.Info("session.evict", "principal_id", principalID, "session_id", v.id, "reason", "session_limit")
		}
	}

	if first {
		r.notifyFirst(principalID, now)
	}
	if r.log != nil {
		r.log.Info("session.register", "principal_id", principalID, "session_id", s.id, "first", first)
	}

	return res, nil
}

// Touch updates last-activity for a session. Returns false when the session
// is unknown (already removed); callers treat that as "re-authenticate".
func (r *Registry) Touch(sessionID string, now time.Time) bool {
	v, ok := r.index.Load(sessionID)
	if !ok {
		return false
	}
	s := v.(*live)

	sh := r.shardFor(s.principalID)
	sh.mu.Lock()
	s.lastActivity = now
	sh.mu.Unlock()
	return true
}

// Remove destroys a session. Idempotent: removing twice is a no-op and
// returns false. The session's connection is closed.
func (r *Registry) Remove(sessionID, reason string, now time.Time) bool {
	v, ok := r.index.LoadAndDelete(sessionID)
	if !ok {
		return false
	}
	s := v.(*live)

	sh := r.shardFor(s.principalID)

	sh.mu.Lock()
	sessions := sh.byPrincipal[s.principalID]
	for i, cand := range sessions {
		if cand.id == sessionID {
			sessions = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	last := len(sessions) == 0
	if last {
		delete(sh.byPrincipal, s.principalID)
	} else {
		sh.byPrincipal[s.principalID] = sessions
	}
	sh.mu.Unlock()

	s.conn.Close()
	r.met.SessionRemoved()

	if last {
		r.notifyLast(s.principalID, now)
	}
	if r.log != nil {
		r.log.Info("session.remove", "principal_id", s.principalID, "session_id", sessionID, "reason", reason, "last", last)
	}
	return true
}

// ListActive returns the principal's live sessions in insertion order.
func (r *Registry) ListActive(principalID string) []Session {
	sh := r.shardFor(principalID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sessions := sh.byPrincipal[principalID]
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// ActiveCount returns the number of live sessions for a principal.
func (r *Registry) ActiveCount(principalID string) int {
	sh := r.shardFor(principalID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.byPrincipal[principalID])
}

// EachSession calls fn with a snapshot of every live session. Snapshots are
// taken shard by shard; fn runs without any registry lock held.
func (r *Registry) EachSession(fn func(Session)) {
	for _, sh := range r.shards {
		sh.mu.Lock()
		snap := make([]Session, 0, len(sh.byPrincipal))
		for _, sessions := range sh.byPrincipal {
			for _, s := range sessions {
				snap = append(snap, s.snapshot())
			}
		}
		sh.mu.Unlock()

		for _, s := range snap {
			fn(s)
		}
	}
}

// SweepExpired removes sessions whose expiry instant is at or before now.
// Returns the number removed. Intended to run on a fixed interval.
func (r *Registry) SweepExpired(now time.Time) int {
	var expired []string

	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, sessions := range sh.byPrincipal {
			for _, s := range sessions {
				if !s.expiresAt.IsZero() && !s.expiresAt.After(now) {
					expired = append(expired, s.id)
				}
			}
		}
		sh.mu.Unlock()
	}

	removed := 0
	for _, id := range expired {
		if r.Remove(id, "expired", now) {
			removed++
		}
	}
	return removed
}

// Stats reports total live sessions and distinct online principals.
func (r *Registry) Stats() (sessions, principals int) {
	for _, sh := range r.shards {
		sh.mu.Lock()
		principals += len(sh.byPrincipal)
		for _, s := range sh.byPrincipal {
			sessions += len(s)
		}
		sh.mu.Unlock()
	}
	return sessions, principals
}

func (r *Registry) notifyFirst(principalID string, at time.Time) {
	r.obsMu.RLock()
	obs := r.observer
	r.obsMu.RUnlock()
	if obs != nil {
		obs.FirstSessionCreated(principalID, at)
	}
}

func (r *Registry) notifyLast(principalID string, at time.Time) {
	r.obsMu.RLock()
	obs := r.observer
	r.obsMu.RUnlock()
	if obs != nil {
		obs.LastSessionRemoved(principalID, at)
	}
}
