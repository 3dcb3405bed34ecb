package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []v1.Envelope
	closed bool
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Send(_ context.Context, env v1.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) TrySend(env v1.Envelope) bool {
	return c.Send(context.Background(), env) == nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type edgeRecorder struct {
	mu     sync.Mutex
	firsts []string
	lasts  []string
}

func (e *edgeRecorder) FirstSessionCreated(p string, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.firsts = append(e.firsts, p)
}

func (e *edgeRecorder) LastSessionRemoved(p string, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lasts = append(e.lasts, p)
}

func (e *edgeRecorder) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.firsts), len(e.lasts)
}

func register(t *testing.T, r *Registry, principal, fp string, at time.Time) (RegisterResult, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	res, err := r.Register(principal, principal, fp, at.Add(time.Hour), conn, at)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res, conn
}

func TestRegisterCapEvictsOldest(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 5, nil)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	conns := make([]*fakeConn, 0, 6)
	for i := 0; i < 5; i++ {
		res, conn := register(t, r, "u1", fp(i), base.Add(time.Duration(i)*time.Second))
		conns = append(conns, conn)
		if len(res.Evicted) != 0 {
			t.Fatalf("unexpected eviction at session %d", i)
		}
	}

	res, _ := register(t, r, "u1", fp(5), base.Add(5*time.Second))
	if len(res.Evicted) != 1 {
		t.Fatalf("expected exactly one eviction, got %d", len(res.Evicted))
	}
	if res.Evicted[0].Fingerprint != fp(0) {
		t.Fatalf("expected oldest fingerprint %s evicted, got %s", fp(0), res.Evicted[0].Fingerprint)
	}
	if !conns[0].isClosed() {
		t.Fatalf("evicted session's connection was not closed")
	}

	active := r.ListActive("u1")
	if len(active) != 5 {
		t.Fatalf("expected cap of 5 active sessions, got %d", len(active))
	}
	// Insertion order: sessions 1..5.
	if active[0].Fingerprint != fp(1) || active[4].Fingerprint != fp(5) {
		t.Fatalf("unexpected active order: first=%s last=%s", active[0].Fingerprint, active[4].Fingerprint)
	}
}

func TestEdgeEventsFirstAndLastOnly(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 5, nil)
	rec := &edgeRecorder{}
	r.SetObserver(rec)

	base := time.Now().UTC()
	var results []RegisterResult
	for i := 0; i < 3; i++ {
		res, _ := register(t, r, "u1", fp(i), base)
		results = append(results, res)
	}

	firsts, lasts := rec.counts()
	if firsts != 1 || lasts != 0 {
		t.Fatalf("after 3 registers: firsts=%d lasts=%d, want 1/0", firsts, lasts)
	}

	r.Remove(results[0].SessionID, "test", base)
	r.Remove(results[1].SessionID, "test", base)

	firsts, lasts = rec.counts()
	if firsts != 1 || lasts != 0 {
		t.Fatalf("still online: firsts=%d lasts=%d, want 1/0", firsts, lasts)
	}

	r.Remove(results[2].SessionID, "test", base)

	firsts, lasts = rec.counts()
	if firsts != 1 || lasts != 1 {
		t.Fatalf("after last remove: firsts=%d lasts=%d, want 1/1", firsts, lasts)
	}
}

func TestEvictionDoesNotFlapPresence(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 2, nil)
	rec := &edgeRecorder{}
	r.SetObserver(rec)

	base := time.Now().UTC()
	register(t, r, "u1", fp(0), base)
	register(t, r, "u1", fp(1), base)
	register(t, r, "u1", fp(2), base) // evicts fp(0)

	firsts, lasts := rec.counts()
	if firsts != 1 || lasts != 0 {
		t.Fatalf("eviction flapped presence: firsts=%d lasts=%d", firsts, lasts)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 0, nil)
	now := time.Now().UTC()
	res, _ := register(t, r, "u1", fp(0), now)

	if !r.Remove(res.SessionID, "test", now) {
		t.Fatalf("first remove should report true")
	}
	if r.Remove(res.SessionID, "test", now) {
		t.Fatalf("second remove should be a no-op")
	}
}

func TestTouchUnknownSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 0, nil)
	if r.Touch("missing", time.Now().UTC()) {
		t.Fatalf("touch of unknown session should report false")
	}
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 0, nil)
	base := time.Now().UTC()
	res, _ := register(t, r, "u1", fp(0), base)

	later := base.Add(10 * time.Second)
	if !r.Touch(res.SessionID, later) {
		t.Fatalf("touch of live session should report true")
	}

	active := r.ListActive("u1")
	if len(active) != 1 || !active[0].LastActivity.Equal(later) {
		t.Fatalf("last activity not updated: %+v", active)
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 0, nil)
	rec := &edgeRecorder{}
	r.SetObserver(rec)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	shortConn := newFakeConn()
	if _, err := r.Register("u1", "u1", fp(0), base.Add(time.Minute), shortConn, base); err != nil {
		t.Fatalf("Register: %v", err)
	}
	longConn := newFakeConn()
	if _, err := r.Register("u2", "u2", fp(1), base.Add(time.Hour), longConn, base); err != nil {
		t.Fatalf("Register: %v", err)
	}

	removed := r.SweepExpired(base.Add(5 * time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 expired session, got %d", removed)
	}
	if !shortConn.isClosed() {
		t.Fatalf("expired session's connection should be closed")
	}
	if r.ActiveCount("u1") != 0 || r.ActiveCount("u2") != 1 {
		t.Fatalf("unexpected counts: u1=%d u2=%d", r.ActiveCount("u1"), r.ActiveCount("u2"))
	}

	_, lasts := rec.counts()
	if lasts != 1 {
		t.Fatalf("sweep should emit one offline edge, got %d", lasts)
	}
}

func TestConcurrentRegisterRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, 5, nil)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				conn := newFakeConn()
				res, err := r.Register("hot", "hot", fp(i*100+j), now.Add(time.Hour), conn, now)
				if err != nil {
					t.Errorf("Register: %v", err)
					return
				}
				r.Touch(res.SessionID, now)
				r.Remove(res.SessionID, "test", now)
			}
		}(i)
	}
	wg.Wait()

	if got := r.ActiveCount("hot"); got > 5 {
		t.Fatalf("cap violated under concurrency: %d", got)
	}
}

func fp(i int) string {
	return "fp-" + string(rune('a'+i%26)) + "-" + time.Duration(i).String()
}
