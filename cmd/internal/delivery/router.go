// Package delivery routes accepted message envelopes to recipient sessions
// and tracks per-recipient receipt state.
//
// Design goals:
//   - Per-sender FIFO: Route is called synchronously from the sender's read
//     loop and does not return until fan-out completes, so two envelopes from
//     the same sender can never reorder.
//   - Best-effort parallel multi-device fan-out: every live session of every
//     recipient gets its own dispatch attempt, bounded by a per-session
//     timeout; the first success marks the recipient delivered.
//   - Monotonic receipts: pending -> delivered -> read only moves forward,
//     duplicate and out-of-order acks are absorbed silently.
package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ripple/cmd/internal/directory"
	"ripple/cmd/internal/events"
	"ripple/cmd/internal/ids"
	"ripple/cmd/internal/metrics"
	"ripple/cmd/internal/session"
	v1 "ripple/shared/contracts/realtime/v1"
)

// DefaultDispatchTimeout bounds one per-session send attempt.
const DefaultDispatchTimeout = 5 * time.Second

// DefaultRetention bounds how long receipt state for a routed envelope is
// kept in memory before Sweep reclaims it.
const DefaultRetention = 24 * time.Hour

// SessionSource resolves a principal's live sessions at dispatch time and
// drops the ones that turn out to be unresponsive.
type SessionSource interface {
	ListActive(principalID string) []session.Session
	Remove(sessionID, reason string, now time.Time) bool
}

type receipt struct {
	state     State
	updatedAt time.Time
}

type tracked struct {
	conversationID string
	senderID       string
	receivedAt     time.Time
	recipients     map[string]*receipt
}

// Router owns envelope fan-out and the per-recipient receipt state machine.
type Router struct {
	log      *slog.Logger
	sessions SessionSource
	bus      *events.Bus
	metrics  *metrics.Metrics
	receipts directory.ReceiptWriter

	dispatchTimeout time.Duration
	retention       time.Duration

	mu      sync.Mutex
	entries map[string]*tracked
}

// Option configures the router.
type Option func(*Router)

// WithDispatchTimeout overrides the per-session send timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.dispatchTimeout = d
		}
	}
}

// WithRetention overrides how long receipt state is retained.
func WithRetention(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithReceiptWriter attaches a persistence sink for final receipt states.
// Writes are fire-and-forget: failures are logged and never affect dispatch.
func WithReceiptWriter(w directory.ReceiptWriter) Option {
	return func(r *Router) { r.receipts = w }
}

// NewRouter constructs a delivery router.
func NewRouter(log *slog.Logger, sessions SessionSource, bus *events.Bus, m *metrics.Metrics, opts ...Option) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		log:             log,
		sessions:        sessions,
		bus:             bus,
		metrics:         m,
		dispatchTimeout: DefaultDispatchTimeout,
		retention:       DefaultRetention,
		entries:         make(map[string]*tracked),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Route accepts an envelope and fans it out to every recipient's live
// sessions. The sender is excluded from the recipient set. The returned map
// holds the route-time outcome per recipient id: "delivered" when at least
// one session confirmed the enqueue, "pending" otherwise.
//
// Route blocks until every dispatch attempt has resolved, bounded by the
// per-session timeout.
func (r *Router) Route(ctx context.Context, env Envelope, recipients []string) (map[string]string, error) {
	if strings.TrimSpace(env.ConversationID) == "" || len(env.Body) == 0 {
		return nil, ErrEmptyEnvelope
	}
	if env.ID == "" {
		env.ID = ids.MustULID(env.ReceivedAt)
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now().UTC()
	}

	targets := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, id := range recipients {
		if id == "" || id == env.SenderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return nil, ErrNoRecipients
	}

	entry := &tracked{
		conversationID: env.ConversationID,
		senderID:       env.SenderID,
		receivedAt:     env.ReceivedAt,
		recipients:     make(map[string]*receipt, len(targets)),
	}
	for _, id := range targets {
		entry.recipients[id] = &receipt{state: StatePending, updatedAt: env.ReceivedAt}
	}

	r.mu.Lock()
	r.entries[env.ID] = entry
	r.mu.Unlock()

	r.metrics.EnvelopeRouted()
	if r.bus != nil {
		r.bus.Publish(events.CategoryMessage, events.MessageAccepted{
			EnvelopeID:     env.ID,
			ConversationID: env.ConversationID,
			SenderID:       env.SenderID,
			Body:           env.Body,
		})
	}

	wire, err := newMessageEnvelope(env)
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]string, len(targets))
	var outcomeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, recipientID := range targets {
		g.Go(func() error {
			delivered := r.dispatchToRecipient(gctx, recipientID, wire)

			outcome := StatePending.String()
			if delivered {
				r.markReceipt(env.ID, recipientID, StateDelivered, time.Now().UTC())
				outcome = StateDelivered.String()
			}

			outcomeMu.Lock()
			outcomes[recipientID] = outcome
			outcomeMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Debug("delivery.route",
		"envelope_id", env.ID,
		"conversation_id", env.ConversationID,
		"recipients", len(targets),
	)
	return outcomes, nil
}

// dispatchToRecipient pushes the wire envelope to every live session of one
// recipient in parallel and reports whether any enqueue succeeded. A session
// that fails or times out is treated as unresponsive and removed, which also
// re-evaluates the recipient's presence.
func (r *Router) dispatchToRecipient(ctx context.Context, recipientID string, wire v1.Envelope) bool {
	live := r.sessions.ListActive(recipientID)
	if len(live) == 0 {
		return false
	}

	var succeeded atomic.Bool
	var wg sync.WaitGroup
	for _, s := range live {
		wg.Add(1)
		go func(s session.Session) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
			defer cancel()

			err := s.Conn.Send(sendCtx, wire)
			r.metrics.Dispatch(err == nil)
			if err != nil {
				r.log.Debug("delivery.dispatch.fail",
					"envelope_id", wire.ID,
					"recipient_id", recipientID,
					"error", err,
				)
				// Parent cancellation means the sender went away, not that
				// this session is broken.
				if ctx.Err() == nil && r.sessions.Remove(s.ID, "dispatch_failed", time.Now().UTC()) {
					r.log.Info("delivery.session.unresponsive", "session_id", s.ID, "principal_id", recipientID)
				}
				return
			}
			succeeded.Store(true)
		}(s)
	}
	wg.Wait()
	return succeeded.Load()
}

// AcknowledgeDelivered records a recipient's delivery ack. Duplicate and
// regressive acks are no-ops.
func (r *Router) AcknowledgeDelivered(envelopeID, recipientID string, now time.Time) {
	r.markReceipt(envelopeID, recipientID, StateDelivered, now)
}

// AcknowledgeRead records a recipient's read ack. A read from pending is
// accepted directly (read implies delivered).
func (r *Router) AcknowledgeRead(envelopeID, recipientID string, now time.Time) {
	r.markReceipt(envelopeID, recipientID, StateRead, now)
}

// markReceipt advances one recipient's state if the transition moves forward,
// then notifies the sender and persists the receipt. Acks for envelopes whose
// state was already reclaimed create a fresh entry so the receipt still lands
// in the persistence sink.
func (r *Router) markReceipt(envelopeID, recipientID string, next State, now time.Time) {
	if envelopeID == "" || recipientID == "" {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r.mu.Lock()
	entry := r.entries[envelopeID]
	if entry == nil {
		entry = &tracked{
			receivedAt: now,
			recipients: make(map[string]*receipt, 1),
		}
		r.entries[envelopeID] = entry
	}
	rec := entry.recipients[recipientID]
	if rec == nil {
		rec = &receipt{state: StatePending, updatedAt: now}
		entry.recipients[recipientID] = rec
	}
	if next <= rec.state {
		r.mu.Unlock()
		return
	}
	rec.state = next
	rec.updatedAt = now
	senderID := entry.senderID
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(events.CategoryDelivery, events.DeliveryStateChange{
			EnvelopeID:  envelopeID,
			RecipientID: recipientID,
			State:       next.String(),
		})
	}

	if senderID != "" {
		r.notifySender(senderID, envelopeID, recipientID, next, now)
	}

	if r.receipts != nil {
		go r.persistReceipt(envelopeID, recipientID, next, now)
	}
}

// notifySender pushes a delivery_update to the sender's live sessions.
// Best effort: a full session queue drops the update.
func (r *Router) notifySender(senderID, envelopeID, recipientID string, state State, at time.Time) {
	payload, err := json.Marshal(v1.DeliveryUpdatePayload{
		EnvelopeID:  envelopeID,
		RecipientID: recipientID,
		State:       state.String(),
		At:          at,
	})
	if err != nil {
		return
	}
	wire := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeDeliveryUpdate,
		ID:      ids.MustULID(at),
		TS:      at,
		Payload: payload,
	}
	for _, s := range r.sessions.ListActive(senderID) {
		if !s.Conn.TrySend(wire) {
			r.log.Debug("delivery.update.drop", "session_id", s.ID, "envelope_id", envelopeID)
		}
	}
}

func (r *Router) persistReceipt(envelopeID, recipientID string, state State, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.dispatchTimeout)
	defer cancel()
	if err := r.receipts.WriteReceipt(ctx, envelopeID, recipientID, directory.ReceiptState(state.String()), at); err != nil {
		r.log.Warn("delivery.receipt.persist_fail",
			"envelope_id", envelopeID,
			"recipient_id", recipientID,
			"error", err,
		)
	}
}

// Receipts returns a snapshot of per-recipient states for one envelope.
func (r *Router) Receipts(envelopeID string) map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[envelopeID]
	if entry == nil {
		return nil
	}
	out := make(map[string]State, len(entry.recipients))
	for id, rec := range entry.recipients {
		out[id] = rec.state
	}
	return out
}

// Sweep drops receipt state older than the retention window and returns how
// many envelopes were reclaimed.
func (r *Router) Sweep(now time.Time) int {
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		newest := entry.receivedAt
		for _, rec := range entry.recipients {
			if rec.updatedAt.After(newest) {
				newest = rec.updatedAt
			}
		}
		if newest.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debug("delivery.sweep", "removed", removed)
	}
	return removed
}

// Tracked reports how many envelopes currently hold receipt state.
func (r *Router) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newMessageEnvelope(env Envelope) (v1.Envelope, error) {
	payload, err := json.Marshal(v1.MessageNewPayload{
		ConversationID: env.ConversationID,
		EnvelopeID:     env.ID,
		SenderID:       env.SenderID,
		Body:           env.Body,
		ServerTS:       env.ReceivedAt,
	})
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMessageNew,
		ID:      env.ID,
		TS:      env.ReceivedAt,
		Payload: payload,
	}, nil
}
