// Package admin is the operator HTTP surface: forced revocation, session
// inventory, presence snapshots, and aggregate stats.
//
// It is meant to be mounted behind a trusted network boundary; it performs
// no authentication of its own.
package admin

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ripple/cmd/internal/delivery"
	"ripple/cmd/internal/presence"
	"ripple/cmd/internal/revocation"
	"ripple/cmd/internal/session"
	"ripple/cmd/security/credential"
)

const maxBodyBytes = 64 << 10

// ScopeCounter reports how many live conversation scopes exist.
type ScopeCounter interface {
	Scopes() int
}

// Handler wires the admin endpoints to the core components.
type Handler struct {
	log      *slog.Logger
	registry *session.Registry
	presence *presence.Tracker
	revoker  *revocation.Service
	router   *delivery.Router
	scopes   ScopeCounter
}

// NewHandler constructs an admin handler.
func NewHandler(log *slog.Logger, registry *session.Registry, tracker *presence.Tracker, revoker *revocation.Service, router *delivery.Router, scopes ScopeCounter) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		registry: registry,
		presence: tracker,
		revoker:  revoker,
		router:   router,
		scopes:   scopes,
	}
}

// Register mounts the admin routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/principals/{id}/revoke", h.handleRevokeAll)
	mux.HandleFunc("GET /admin/principals/{id}/sessions", h.handleListSessions)
	mux.HandleFunc("GET /admin/presence", h.handlePresence)
	mux.HandleFunc("GET /admin/stats", h.handleStats)
}

type revokeRequest struct {
	ExceptFingerprint string `json:"except_fingerprint,omitempty"`
}

type revokeResponse struct {
	PrincipalID string `json:"principal_id"`
	Revoked     int    `json:"revoked"`
}

// handleRevokeAll force-disconnects a principal and blacklists every live
// credential, optionally sparing one fingerprint (the device that initiated
// the action).
func (h *Handler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	principalID := strings.TrimSpace(r.PathValue("id"))
	if principalID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing principal id")
		return
	}

	var req revokeRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
			return
		}
	}

	n, err := h.revoker.RevokeAll(r.Context(), principalID, strings.TrimSpace(req.ExceptFingerprint))
	if err != nil {
		h.log.Error("admin.revoke_all.fail", "principal_id", principalID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "revocation_unavailable", "revocation store unavailable")
		return
	}

	h.log.Info("admin.revoke_all", "principal_id", principalID, "revoked", n)
	writeJSON(w, http.StatusOK, revokeResponse{PrincipalID: principalID, Revoked: n})
}

type sessionResponse struct {
	SessionID    string    `json:"session_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

type sessionsResponse struct {
	PrincipalID string            `json:"principal_id"`
	Sessions    []sessionResponse `json:"sessions"`
}

// handleListSessions returns a principal's live sessions. Fingerprints are
// shortened so raw credential hashes never leave the core.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	principalID := strings.TrimSpace(r.PathValue("id"))
	if principalID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing principal id")
		return
	}

	live := h.registry.ListActive(principalID)
	out := sessionsResponse{
		PrincipalID: principalID,
		Sessions:    make([]sessionResponse, 0, len(live)),
	}
	for _, s := range live {
		out.Sessions = append(out.Sessions, sessionResponse{
			SessionID:    s.ID,
			DisplayName:  s.DisplayName,
			Fingerprint:  credential.ShortFingerprint(s.Fingerprint),
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type presenceEntry struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// handlePresence returns the current published presence map.
func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	snap := h.presence.Snapshot()

	out := make(map[string]presenceEntry, len(snap))
	for principalID, online := range snap {
		entry := presenceEntry{Online: online}
		if ls, ok := h.presence.LastSeen(principalID); ok {
			t := ls
			entry.LastSeen = &t
		}
		out[principalID] = entry
	}

	writeJSON(w, http.StatusOK, out)
}

type statsResponse struct {
	Sessions         int `json:"sessions"`
	Principals       int `json:"principals"`
	PrincipalsOnline int `json:"principals_online"`
	LiveScopes       int `json:"live_scopes"`
	TrackedEnvelopes int `json:"tracked_envelopes"`
}

// handleStats returns aggregate counters for dashboards.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sessions, principals := h.registry.Stats()

	online := 0
	for _, isOnline := range h.presence.Snapshot() {
		if isOnline {
			online++
		}
	}

	out := statsResponse{
		Sessions:         sessions,
		Principals:       principals,
		PrincipalsOnline: online,
		TrackedEnvelopes: h.router.Tracked(),
	}
	if h.scopes != nil {
		out.LiveScopes = h.scopes.Scopes()
	}

	writeJSON(w, http.StatusOK, out)
}
