// Package presence derives online/offline state from session registry edge
// events and broadcasts change notifications.
//
// The tracker is strictly a read-only observer: it never mutates registry
// state and never polls. Rapid connect/disconnect bursts are coalesced inside
// a debounce window; after the window closes, the broadcast state always
// matches the registry.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"ripple/cmd/internal/events"
	"ripple/cmd/internal/metrics"
)

// DefaultDebounce is the recommended coalescing window for presence flaps.
const DefaultDebounce = 1500 * time.Millisecond

// ActiveCounter is the read-side registry dependency.
type ActiveCounter interface {
	ActiveCount(principalID string) int
}

// Tracker converts edge events into exactly-once presence transitions.
type Tracker struct {
	log    *slog.Logger
	met    *metrics.Metrics
	counts ActiveCounter
	bus    *events.Bus
	window time.Duration

	mu        sync.Mutex
	closed    bool
	published map[string]bool
	pending   map[string]*time.Timer
	lastSeen  map[string]time.Time
}

// NewTracker constructs a Tracker. window <= 0 disables debouncing (every
// edge is evaluated immediately), which is mainly useful in tests.
func NewTracker(log *slog.Logger, counts ActiveCounter, bus *events.Bus, window time.Duration, met *metrics.Metrics) *Tracker {
	return &Tracker{
		log:       log,
		met:       met,
		counts:    counts,
		bus:       bus,
		window:    window,
		published: make(map[string]bool),
		pending:   make(map[string]*time.Timer),
		lastSeen:  make(map[string]time.Time),
	}
}

// FirstSessionCreated implements session.EdgeObserver.
func (t *Tracker) FirstSessionCreated(principalID string, at time.Time) {
	t.schedule(principalID)
}

// LastSessionRemoved implements session.EdgeObserver.
func (t *Tracker) LastSessionRemoved(principalID string, at time.Time) {
	t.mu.Lock()
	t.lastSeen[principalID] = at
	t.mu.Unlock()

	t.schedule(principalID)
}

// schedule arms (or extends) the debounce timer for a principal. With no
// window configured the evaluation runs inline.
func (t *Tracker) schedule(principalID string) {
	if t.window <= 0 {
		t.evaluate(principalID)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if timer, ok := t.pending[principalID]; ok {
		timer.Reset(t.window)
		t.mu.Unlock()
		return
	}
	t.pending[principalID] = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		delete(t.pending, principalID)
		closed := t.closed
		t.mu.Unlock()
		if !closed {
			t.evaluate(principalID)
		}
	})
	t.mu.Unlock()
}

// evaluate compares the registry-derived state with the last broadcast state
// and emits at most one transition.
func (t *Tracker) evaluate(principalID string) {
	online := t.counts.ActiveCount(principalID) > 0

	t.mu.Lock()
	prev, seen := t.published[principalID]
	if (seen && prev == online) || (!seen && !online) {
		t.mu.Unlock()
		return
	}
	t.published[principalID] = online

	var lastSeen *time.Time
	if !online {
		if ls, ok := t.lastSeen[principalID]; ok {
			cp := ls
			lastSeen = &cp
		}
	}
	t.mu.Unlock()

	t.met.PresenceTransition(online)
	if t.log != nil {
		t.log.Info("presence.change", "principal_id", principalID, "online", online)
	}
	if t.bus != nil {
		t.bus.Publish(events.CategoryPresence, events.PresenceChange{
			PrincipalID: principalID,
			Online:      online,
			LastSeen:    lastSeen,
		})
	}
}

// IsOnline reports whether the principal currently holds any live session.
func (t *Tracker) IsOnline(principalID string) bool {
	return t.counts.ActiveCount(principalID) > 0
}

// Snapshot returns the last broadcast state per known principal.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]bool, len(t.published))
	for p, online := range t.published {
		out[p] = online
	}
	return out
}

// LastSeen returns the instant the principal's last session was removed.
func (t *Tracker) LastSeen(principalID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ls, ok := t.lastSeen[principalID]
	return ls, ok
}

// Close stops pending debounce timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for p, timer := range t.pending {
		timer.Stop()
		delete(t.pending, p)
	}
}
