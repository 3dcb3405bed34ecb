// Package typing relays ephemeral typing indicators within conversations.
//
// Indicators are never persisted and never queued for offline principals: a
// start is broadcast to the conversation's live scope, auto-expires after a
// fixed window unless refreshed, and is cleared early by an explicit stop or
// by the principal disconnecting.
package typing

import (
	"log/slog"
	"sync"
	"time"

	"ripple/cmd/internal/events"
	"ripple/cmd/internal/metrics"
)

// DefaultExpiry clears a typing indicator that was never explicitly stopped.
const DefaultExpiry = 5 * time.Second

// Broadcaster pushes a typing change to a conversation's live members,
// excluding the typist's own sessions.
type Broadcaster interface {
	BroadcastTyping(conversationID, principalID, displayName string, typing bool)
}

type key struct {
	conversationID string
	principalID    string
}

type indicator struct {
	displayName string
	timer       *time.Timer
}

// Relay owns the active indicator timers.
type Relay struct {
	log       *slog.Logger
	broadcast Broadcaster
	bus       *events.Bus
	metrics   *metrics.Metrics
	expiry    time.Duration

	mu     sync.Mutex
	active map[key]*indicator
	closed bool
}

// NewRelay constructs a typing relay. expiry <= 0 falls back to the default.
func NewRelay(log *slog.Logger, broadcast Broadcaster, bus *events.Bus, m *metrics.Metrics, expiry time.Duration) *Relay {
	if log == nil {
		log = slog.Default()
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Relay{
		log:       log,
		broadcast: broadcast,
		bus:       bus,
		metrics:   m,
		expiry:    expiry,
		active:    make(map[key]*indicator),
	}
}

// Start begins or refreshes a typing indicator. A refresh re-arms the expiry
// timer without re-broadcasting.
func (r *Relay) Start(conversationID, principalID, displayName string) {
	if conversationID == "" || principalID == "" {
		return
	}
	k := key{conversationID, principalID}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if ind, ok := r.active[k]; ok {
		ind.timer.Reset(r.expiry)
		r.mu.Unlock()
		return
	}
	r.active[k] = &indicator{
		displayName: displayName,
		timer: time.AfterFunc(r.expiry, func() {
			r.expire(k)
		}),
	}
	r.mu.Unlock()

	r.emit(conversationID, principalID, displayName, true)
}

// Stop clears an indicator explicitly. Unknown indicators are ignored.
func (r *Relay) Stop(conversationID, principalID string) {
	k := key{conversationID, principalID}

	r.mu.Lock()
	ind, ok := r.active[k]
	if ok {
		ind.timer.Stop()
		delete(r.active, k)
	}
	r.mu.Unlock()

	if ok {
		r.emit(conversationID, principalID, ind.displayName, false)
	}
}

// expire clears an indicator whose timer fired without a refresh or stop.
func (r *Relay) expire(k key) {
	r.mu.Lock()
	ind, ok := r.active[k]
	if ok {
		delete(r.active, k)
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug("typing.expire", "conversation_id", k.conversationID, "principal_id", k.principalID)
		r.emit(k.conversationID, k.principalID, ind.displayName, false)
	}
}

// DisconnectPrincipal clears every indicator the principal holds, sending a
// stop for each. Called when a principal's last session closes.
func (r *Relay) DisconnectPrincipal(principalID string) {
	r.mu.Lock()
	var cleared []key
	names := make(map[key]string)
	for k, ind := range r.active {
		if k.principalID == principalID {
			ind.timer.Stop()
			names[k] = ind.displayName
			cleared = append(cleared, k)
			delete(r.active, k)
		}
	}
	r.mu.Unlock()

	for _, k := range cleared {
		r.emit(k.conversationID, k.principalID, names[k], false)
	}
}

// Active reports whether a typing indicator is currently live.
func (r *Relay) Active(conversationID, principalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key{conversationID, principalID}]
	return ok
}

// Close stops all timers without broadcasting stops.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for k, ind := range r.active {
		ind.timer.Stop()
		delete(r.active, k)
	}
}

func (r *Relay) emit(conversationID, principalID, displayName string, typing bool) {
	r.metrics.TypingSignal()
	if r.broadcast != nil {
		r.broadcast.BroadcastTyping(conversationID, principalID, displayName, typing)
	}
	if r.bus != nil {
		r.bus.Publish(events.CategoryTyping, events.TypingChange{
			ConversationID: conversationID,
			PrincipalID:    principalID,
			DisplayName:    displayName,
			Typing:         typing,
		})
	}
}
