package events

import (
	"testing"
)

func TestBusDeliversToCategorySubscribers(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	presence := b.Subscribe(CategoryPresence, 4)
	typing := b.Subscribe(CategoryTyping, 4)

	b.Publish(CategoryPresence, PresenceChange{PrincipalID: "p1", Online: true})

	select {
	case ev := <-presence.C:
		pc, ok := ev.Payload.(PresenceChange)
		if !ok || pc.PrincipalID != "p1" || !pc.Online {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("presence subscriber did not receive event")
	}

	select {
	case ev := <-typing.C:
		t.Fatalf("typing subscriber received cross-category event: %+v", ev)
	default:
	}
}

func TestBusDropOldestWhenSlow(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	sub := b.Subscribe(CategoryDelivery, 2)

	for i := 0; i < 5; i++ {
		b.Publish(CategoryDelivery, DeliveryStateChange{EnvelopeID: "e", RecipientID: "r", State: stateName(i)})
	}

	// Queue holds the two newest events; the oldest three were dropped.
	first := <-sub.C
	second := <-sub.C

	if first.Payload.(DeliveryStateChange).State != stateName(3) {
		t.Fatalf("expected oldest surviving event to be %s, got %+v", stateName(3), first.Payload)
	}
	if second.Payload.(DeliveryStateChange).State != stateName(4) {
		t.Fatalf("expected newest event to be %s, got %+v", stateName(4), second.Payload)
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("expected empty queue, got %+v", ev)
	default:
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	b := NewBus(nil)
	sub := b.Subscribe(CategoryMessage, 2)
	sub.Cancel()
	sub.Cancel() // idempotent

	b.Publish(CategoryMessage, MessageAccepted{EnvelopeID: "e1"})

	select {
	case ev := <-sub.C:
		t.Fatalf("cancelled subscriber received event: %+v", ev)
	default:
	}
}

func stateName(i int) string {
	return map[int]string{0: "s0", 1: "s1", 2: "s2", 3: "s3", 4: "s4"}[i]
}
