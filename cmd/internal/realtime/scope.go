package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ripple/cmd/internal/ids"
	v1 "ripple/shared/contracts/realtime/v1"
)

// Scope is the live fan-out set for one conversation: the sessions that are
// currently attached and should receive its realtime traffic.
//
// Concurrency guarantees:
//   - Join/Leave are safe under concurrent Broadcast.
//   - Broadcast never blocks (drops under backpressure).
//   - Broadcast is panic-safe because a client's outbound queue is never
//     closed by the server.
type Scope struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client // session id -> client
}

func newScope(log *slog.Logger, id string) *Scope {
	return &Scope{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join attaches a session to the scope.
func (s *Scope) Join(client *Client) {
	if s == nil || client == nil || client.SessionID == "" {
		return
	}

	s.mu.Lock()
	s.members[client.SessionID] = client
	s.mu.Unlock()

	s.log.Debug("scope.join", "conversation_id", s.ID, "session_id", client.SessionID)
}

// Leave detaches a session from the scope. The client itself stays alive; a
// session can be attached to many scopes at once.
func (s *Scope) Leave(sessionID string) {
	if s == nil || sessionID == "" {
		return
	}

	s.mu.Lock()
	delete(s.members, sessionID)
	s.mu.Unlock()

	s.log.Debug("scope.leave", "conversation_id", s.ID, "session_id", sessionID)
}

// Contains reports whether the session is attached.
func (s *Scope) Contains(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[sessionID]
	return ok
}

func (s *Scope) empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members) == 0
}

// Broadcast fans an envelope out to every attached session, skipping any
// session owned by exceptPrincipal. Non-blocking: full or closing clients
// are dropped.
func (s *Scope) Broadcast(env v1.Envelope, exceptPrincipal string) {
	if s == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m == nil || (exceptPrincipal != "" && m.PrincipalID == exceptPrincipal) {
			continue
		}
		if !m.TrySend(env) {
			s.log.Debug("scope.broadcast.drop", "conversation_id", s.ID, "session_id", m.SessionID)
		}
	}
}

// ScopeTable owns the live scopes and the session -> scope reverse index
// used for disconnect cleanup.
type ScopeTable struct {
	log *slog.Logger

	mu        sync.Mutex
	scopes    map[string]*Scope
	bySession map[string]map[string]struct{} // session id -> scope ids
}

// NewScopeTable constructs an empty scope table.
func NewScopeTable(log *slog.Logger) *ScopeTable {
	if log == nil {
		log = slog.Default()
	}
	return &ScopeTable{
		log:       log,
		scopes:    make(map[string]*Scope),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Join attaches a client's session to a conversation scope, creating the
// scope on first use.
func (t *ScopeTable) Join(conversationID string, client *Client) *Scope {
	if conversationID == "" || client == nil {
		return nil
	}

	t.mu.Lock()
	sc := t.scopes[conversationID]
	if sc == nil {
		sc = newScope(t.log, conversationID)
		t.scopes[conversationID] = sc
	}
	idx := t.bySession[client.SessionID]
	if idx == nil {
		idx = make(map[string]struct{})
		t.bySession[client.SessionID] = idx
	}
	idx[conversationID] = struct{}{}
	t.mu.Unlock()

	sc.Join(client)
	return sc
}

// Leave detaches a session from one conversation scope.
func (t *ScopeTable) Leave(conversationID, sessionID string) {
	t.mu.Lock()
	sc := t.scopes[conversationID]
	if idx := t.bySession[sessionID]; idx != nil {
		delete(idx, conversationID)
		if len(idx) == 0 {
			delete(t.bySession, sessionID)
		}
	}
	t.mu.Unlock()

	if sc != nil {
		sc.Leave(sessionID)
		t.reapIfEmpty(conversationID, sc)
	}
}

// RemoveSession detaches a session from every scope it joined.
func (t *ScopeTable) RemoveSession(sessionID string) {
	t.mu.Lock()
	idx := t.bySession[sessionID]
	delete(t.bySession, sessionID)
	attached := make([]*Scope, 0, len(idx))
	for convID := range idx {
		if sc := t.scopes[convID]; sc != nil {
			attached = append(attached, sc)
		}
	}
	t.mu.Unlock()

	for _, sc := range attached {
		sc.Leave(sessionID)
		t.reapIfEmpty(sc.ID, sc)
	}
}

// InScope reports whether a session is attached to a conversation scope.
func (t *ScopeTable) InScope(conversationID, sessionID string) bool {
	t.mu.Lock()
	sc := t.scopes[conversationID]
	t.mu.Unlock()
	return sc != nil && sc.Contains(sessionID)
}

// Broadcast fans an envelope out to a conversation's live scope.
func (t *ScopeTable) Broadcast(conversationID string, env v1.Envelope, exceptPrincipal string) {
	t.mu.Lock()
	sc := t.scopes[conversationID]
	t.mu.Unlock()
	if sc != nil {
		sc.Broadcast(env, exceptPrincipal)
	}
}

// BroadcastTyping relays a typing indicator change into a conversation's
// live scope, excluding the typist's own sessions. It satisfies the typing
// relay's Broadcaster interface.
func (t *ScopeTable) BroadcastTyping(conversationID, principalID, displayName string, typing bool) {
	now := time.Now().UTC()
	payload, err := json.Marshal(v1.TypingChangePayload{
		ConversationID: conversationID,
		PrincipalID:    principalID,
		DisplayName:    displayName,
		Typing:         typing,
	})
	if err != nil {
		return
	}
	t.Broadcast(conversationID, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeTypingChange,
		ID:      ids.MustULID(now),
		TS:      now,
		Payload: payload,
	}, principalID)
}

// Scopes reports how many live scopes exist.
func (t *ScopeTable) Scopes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scopes)
}

// reapIfEmpty drops a scope once its last session detached, so the table
// does not accumulate dead conversations.
func (t *ScopeTable) reapIfEmpty(conversationID string, sc *Scope) {
	if !sc.empty() {
		return
	}
	t.mu.Lock()
	if cur := t.scopes[conversationID]; cur == sc && sc.empty() {
		delete(t.scopes, conversationID)
	}
	t.mu.Unlock()
}
