// Package events provides the outward-facing publish/subscribe channels for
// the realtime core.
//
// Each event category (presence, message, delivery, typing) has its own
// subscriber list. Publishing never blocks: a subscriber that cannot keep up
// has its oldest queued event dropped, so one slow consumer cannot stall
// dispatch to others.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Category identifies an event stream.
type Category string

const (
	// CategoryPresence carries PresenceChange events.
	CategoryPresence Category = "presence"
	// CategoryMessage carries MessageAccepted events.
	CategoryMessage Category = "message"
	// CategoryDelivery carries DeliveryStateChange events.
	CategoryDelivery Category = "delivery"
	// CategoryTyping carries TypingChange events.
	CategoryTyping Category = "typing"
)

// Event is the wrapper delivered to subscribers.
type Event struct {
	Category Category
	At       time.Time
	Payload  any
}

// PresenceChange reports an online/offline edge transition for a principal.
type PresenceChange struct {
	PrincipalID string
	Online      bool
	LastSeen    *time.Time
}

// MessageAccepted reports a routed message envelope.
type MessageAccepted struct {
	EnvelopeID     string
	ConversationID string
	SenderID       string
	Body           json.RawMessage
}

// DeliveryStateChange reports a per-recipient receipt transition.
type DeliveryStateChange struct {
	EnvelopeID  string
	RecipientID string
	State       string
}

// TypingChange reports a typing indicator toggling in a conversation.
type TypingChange struct {
	ConversationID string
	PrincipalID    string
	DisplayName    string
	Typing         bool
}

const defaultSubscriberBuffer = 64

// Bus is the in-process event hub.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Category]map[uint64]*Subscription
}

// Subscription is one consumer's bounded event queue.
// Events arrive on C; Cancel detaches the subscription.
type Subscription struct {
	C chan Event

	bus      *Bus
	category Category
	id       uint64
	once     sync.Once
}

// NewBus constructs an event bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[Category]map[uint64]*Subscription),
	}
}

// Subscribe registers a consumer for one category with a bounded queue.
// buffer <= 0 falls back to a safe default.
func (b *Bus) Subscribe(category Category, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		C:        make(chan Event, buffer),
		bus:      b,
		category: category,
		id:       b.nextID,
	}

	m := b.subs[category]
	if m == nil {
		m = make(map[uint64]*Subscription)
		b.subs[category] = m
	}
	m[sub.id] = sub

	return sub
}

// Publish delivers an event to every subscriber of its category.
// Never blocks: when a subscriber queue is full, the oldest queued event is
// dropped to make room (drop-oldest backpressure).
func (b *Bus) Publish(category Category, payload any) {
	ev := Event{Category: category, At: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[category] {
		select {
		case sub.C <- ev:
			continue
		default:
		}

		// Queue full: evict the oldest entry, then retry once.
		select {
		case <-sub.C:
			if b.log != nil {
				b.log.Debug("events.drop_oldest", "category", string(category), "sub", sub.id)
			}
		default:
		}

		select {
		case sub.C <- ev:
		default:
			// Still full under concurrent consumption; drop the new event.
		}
	}
}

// Cancel detaches the subscription. The channel is left open so in-flight
// reads drain safely; it simply stops receiving new events.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if m := s.bus.subs[s.category]; m != nil {
			delete(m, s.id)
		}
	})
}
