package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

func recv(t *testing.T, c *Client) v1.Envelope {
	t.Helper()
	select {
	case env := <-c.Outbox():
		return env
	default:
		t.Fatalf("expected a queued envelope")
		return v1.Envelope{}
	}
}

func TestClientSendAfterClose(t *testing.T) {
	t.Parallel()

	c := NewClient("s1", "p1", "P One", 4)
	c.Close()
	c.Close() // idempotent

	if err := c.Send(context.Background(), v1.Envelope{}); err != ErrClientClosed {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if c.TrySend(v1.Envelope{}) {
		t.Fatalf("TrySend after close must fail")
	}
}

func TestClientTrySendBackpressure(t *testing.T) {
	t.Parallel()

	c := NewClient("s1", "p1", "", 0) // clamps to default
	for i := 0; i < 64; i++ {
		if !c.TrySend(v1.Envelope{Type: v1.TypeError}) {
			t.Fatalf("queue filled early at %d", i)
		}
	}
	if c.TrySend(v1.Envelope{Type: v1.TypeError}) {
		t.Fatalf("full queue should drop")
	}
}

func TestScopeTableJoinBroadcastLeave(t *testing.T) {
	t.Parallel()

	st := NewScopeTable(nil)
	alice := NewClient("sa", "alice", "Alice", 8)
	bob := NewClient("sb", "bob", "Bob", 8)

	st.Join("c1", alice)
	st.Join("c1", bob)

	st.Broadcast("c1", v1.Envelope{V: v1.Version, Type: v1.TypeMessageNew}, "alice")

	if len(bob.Outbox()) != 1 {
		t.Fatalf("bob should receive the broadcast")
	}
	if len(alice.Outbox()) != 0 {
		t.Fatalf("excluded principal must not receive the broadcast")
	}

	st.Leave("c1", "sb")
	st.Broadcast("c1", v1.Envelope{V: v1.Version, Type: v1.TypeMessageNew}, "")
	if len(bob.Outbox()) != 1 {
		t.Fatalf("left session must not receive broadcasts")
	}
}

func TestScopeTableRemoveSessionDetachesEverywhere(t *testing.T) {
	t.Parallel()

	st := NewScopeTable(nil)
	c := NewClient("s1", "p1", "", 8)
	st.Join("c1", c)
	st.Join("c2", c)

	if !st.InScope("c1", "s1") || !st.InScope("c2", "s1") {
		t.Fatalf("session should be in both scopes")
	}

	st.RemoveSession("s1")

	if st.InScope("c1", "s1") || st.InScope("c2", "s1") {
		t.Fatalf("session should be detached everywhere")
	}
	if st.Scopes() != 0 {
		t.Fatalf("empty scopes should be reaped, got %d", st.Scopes())
	}
}

func TestBroadcastTypingExcludesTypist(t *testing.T) {
	t.Parallel()

	st := NewScopeTable(nil)
	typist := NewClient("sa", "alice", "Alice", 8)
	watcher := NewClient("sb", "bob", "Bob", 8)
	st.Join("c1", typist)
	st.Join("c1", watcher)

	st.BroadcastTyping("c1", "alice", "Alice", true)

	if len(typist.Outbox()) != 0 {
		t.Fatalf("typist must not see their own indicator")
	}

	env := recv(t, watcher)
	if env.Type != v1.TypeTypingChange {
		t.Fatalf("expected typing_change, got %s", env.Type)
	}
	var p v1.TypingChangePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.PrincipalID != "alice" || p.DisplayName != "Alice" || !p.Typing {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestClientSendBlocksUntilContext(t *testing.T) {
	t.Parallel()

	c := NewClient("s1", "p1", "", 32)
	for c.TrySend(v1.Envelope{}) {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Send(ctx, v1.Envelope{}); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded on full queue, got %v", err)
	}
}
