package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ripple/cmd/internal/delivery"
	"ripple/cmd/internal/events"
	"ripple/cmd/internal/presence"
	"ripple/cmd/internal/revocation"
	"ripple/cmd/internal/session"
	v1 "ripple/shared/contracts/realtime/v1"
)

type stubConn struct {
	done chan struct{}
	once sync.Once
}

func newStubConn() *stubConn { return &stubConn{done: make(chan struct{})} }

func (c *stubConn) Send(context.Context, v1.Envelope) error { return nil }
func (c *stubConn) TrySend(v1.Envelope) bool                { return true }
func (c *stubConn) Done() <-chan struct{}                   { return c.done }
func (c *stubConn) Close()                                  { c.once.Do(func() { close(c.done) }) }

type stubScopes struct{ n int }

func (s stubScopes) Scopes() int { return s.n }

type registryCounts struct{ reg *session.Registry }

func (rc registryCounts) ActiveCount(p string) int { return rc.reg.ActiveCount(p) }

func newTestHandler(t *testing.T) (*Handler, *session.Registry, *revocation.MemoryStore) {
	t.Helper()

	registry := session.NewRegistry(nil, 5, nil)
	bus := events.NewBus(nil)
	tracker := presence.NewTracker(nil, registryCounts{registry}, bus, 0, nil)
	t.Cleanup(tracker.Close)
	registry.SetObserver(tracker)

	store := revocation.NewMemoryStore()
	revoker := revocation.NewService(nil, store, registry, nil)
	router := delivery.NewRouter(nil, stubSessions{}, bus, nil)

	return NewHandler(nil, registry, tracker, revoker, router, stubScopes{n: 2}), registry, store
}

type stubSessions struct{}

func (stubSessions) ListActive(string) []session.Session  { return nil }
func (stubSessions) Remove(string, string, time.Time) bool { return false }

func TestListSessions(t *testing.T) {
	t.Parallel()

	h, registry, _ := newTestHandler(t)
	now := time.Now().UTC()
	if _, err := registry.Register("alice", "Alice", "fp-alice-1", now.Add(time.Hour), newStubConn(), now); err != nil {
		t.Fatalf("register: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/principals/alice/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out sessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %+v", out)
	}
	if got := out.Sessions[0].Fingerprint; len(got) > 16 {
		t.Fatalf("fingerprint must be shortened, got %q", got)
	}
}

func TestRevokeAllEndpoint(t *testing.T) {
	t.Parallel()

	h, registry, store := newTestHandler(t)
	now := time.Now().UTC()

	phone := newStubConn()
	laptop := newStubConn()
	if _, err := registry.Register("alice", "Alice", "fp-phone", now.Add(time.Hour), phone, now); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Register("alice", "Alice", "fp-laptop", now.Add(time.Hour), laptop, now); err != nil {
		t.Fatalf("register: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	body := strings.NewReader(`{"except_fingerprint":"fp-laptop"}`)
	req := httptest.NewRequest("POST", "/admin/principals/alice/revoke", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out revokeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Revoked != 1 {
		t.Fatalf("expected 1 revoked, got %+v", out)
	}

	if revoked, _ := store.IsRevoked(context.Background(), "fp-phone"); !revoked {
		t.Fatalf("fp-phone should be revoked")
	}
	if revoked, _ := store.IsRevoked(context.Background(), "fp-laptop"); revoked {
		t.Fatalf("survivor fingerprint must not be revoked")
	}
	if registry.ActiveCount("alice") != 1 {
		t.Fatalf("only the survivor session should remain, got %d", registry.ActiveCount("alice"))
	}
}

func TestRevokeAllMissingID(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/admin/principals/%20/revoke", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	h, registry, _ := newTestHandler(t)
	now := time.Now().UTC()
	if _, err := registry.Register("alice", "Alice", "fp-1", now.Add(time.Hour), newStubConn(), now); err != nil {
		t.Fatalf("register: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Sessions != 1 || out.Principals != 1 || out.PrincipalsOnline != 1 || out.LiveScopes != 2 {
		t.Fatalf("unexpected stats: %+v", out)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	t.Parallel()

	h, registry, _ := newTestHandler(t)
	now := time.Now().UTC()
	res, err := registry.Register("alice", "Alice", "fp-1", now.Add(time.Hour), newStubConn(), now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	registry.Remove(res.SessionID, "disconnect", now)

	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/presence", nil))

	var out map[string]presenceEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry, ok := out["alice"]
	if !ok || entry.Online {
		t.Fatalf("alice should be reported offline: %+v", out)
	}
	if entry.LastSeen == nil {
		t.Fatalf("offline entry should carry last_seen")
	}
}
