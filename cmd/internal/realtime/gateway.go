// Package realtime is the websocket surface of the ripple core.
//
// It enforces origin policy, the hello handshake (credential fingerprinting
// plus the revocation check), per-connection rate limits, and heartbeats,
// then routes validated envelopes to the session registry, delivery router,
// and typing relay.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"ripple/cmd/internal/delivery"
	"ripple/cmd/internal/directory"
	"ripple/cmd/internal/ids"
	"ripple/cmd/internal/revocation"
	"ripple/cmd/internal/session"
	"ripple/cmd/internal/typing"
	"ripple/cmd/security/credential"
	v1 "ripple/shared/contracts/realtime/v1"
)

const (
	wsSubprotocolV1 = "ripple.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Deps are the collaborators the gateway dispatches into.
type Deps struct {
	Registry  *session.Registry
	Guard     *revocation.Guard
	Revoker   *revocation.Service
	Router    *delivery.Router
	Relay     *typing.Relay
	Scopes    *ScopeTable
	Directory directory.Directory

	// RetentionCap bounds the session lifetime derived from credentials
	// that carry no expiry.
	RetentionCap time.Duration
}

// Gateway is the WebSocket entrypoint for ripple realtime.
type Gateway struct {
	log  *slog.Logger
	deps Deps

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	helloTimeout    time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, deps Deps) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{log: log, deps: deps}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("RIPPLE_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("RIPPLE_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("RIPPLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("RIPPLE_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("RIPPLE_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)
	g.helloTimeout = envDurationWS("RIPPLE_WS_HELLO_TIMEOUT", helloDeadline)

	g.sendQueueSize = envIntWS("RIPPLE_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("RIPPLE_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("RIPPLE_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("RIPPLE_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("RIPPLE_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the realtime loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Nothing is accepted before a successful hello. No session exists yet.
	client, err := g.handshake(ctx, conn)
	if err != nil {
		g.log.Info("ws.reject.hello", "err", err, "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusPolicyViolation, helloCloseReason(err))
		return
	}

	sessionID := client.SessionID
	principalID := client.PrincipalID

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close the client's outbound queue.
	// Membership removal happens before client.Close so broadcasters never
	// hold a tearing-down client.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.deps.Scopes.RemoveSession(sessionID)
			g.deps.Registry.Remove(sessionID, "disconnect", time.Now().UTC())
			if g.deps.Registry.ActiveCount(principalID) == 0 {
				g.deps.Relay.DisconnectPrincipal(principalID)
			}

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.autoJoin(ctx, client)

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// The session was closed out from under the connection
				// (revoke-all, expiry sweep, eviction, dispatch failure).
				// Tear the socket down instead of leaving a zombie reader.
				shutdown(websocket.StatusPolicyViolation, "session closed")
				return
			case env := <-client.Outbox():
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		// Any valid envelope counts as activity.
		if !g.deps.Registry.Touch(sessionID, now) {
			// Session was removed out from under us (revoke-all, sweep).
			shutdown(websocket.StatusPolicyViolation, "session revoked")
			break readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			g.trySendError(client, "already_authenticated", "hello already completed")

		case v1.TypeConversationJoin:
			if err := g.onJoin(ctx, client, env); err != nil {
				g.trySendError(client, "join_failed", err.Error())
			}

		case v1.TypeConversationLeave:
			if err := g.onLeave(client, env); err != nil {
				g.trySendError(client, "leave_failed", err.Error())
			}

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env, now); err != nil {
				g.trySendError(client, "send_failed", err.Error())
			}

		case v1.TypeDeliveryAck:
			var p v1.DeliveryAckPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil || p.EnvelopeID == "" {
				g.trySendError(client, "bad_ack", "missing envelope_id")
				continue readLoop
			}
			g.deps.Router.AcknowledgeDelivered(p.EnvelopeID, principalID, now)

		case v1.TypeReadAck:
			var p v1.ReadAckPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil || p.EnvelopeID == "" {
				g.trySendError(client, "bad_ack", "missing envelope_id")
				continue readLoop
			}
			g.deps.Router.AcknowledgeRead(p.EnvelopeID, principalID, now)

		case v1.TypeTypingStart:
			if convID, err := g.typingScope(client, env.Payload, true); err != nil {
				g.trySendError(client, "typing_failed", err.Error())
			} else {
				g.deps.Relay.Start(convID, principalID, client.DisplayName)
			}

		case v1.TypeTypingStop:
			if convID, err := g.typingScope(client, env.Payload, false); err != nil {
				g.trySendError(client, "typing_failed", err.Error())
			} else {
				g.deps.Relay.Stop(convID, principalID)
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handshake ----

var (
	errUnauthenticated = errors.New("unauthenticated")
	errRevoked         = errors.New("credential revoked")
)

func helloCloseReason(err error) string {
	switch {
	case errors.Is(err, errRevoked):
		return "revoked"
	case errors.Is(err, errUnauthenticated):
		return "unauthenticated"
	default:
		return "hello failed"
	}
}

// handshake reads the mandatory first hello envelope, fingerprints the
// credential, checks revocation, and registers the session. Eviction victims
// displaced by the per-principal cap get their credentials revoked here.
func (g *Gateway) handshake(ctx context.Context, conn *websocket.Conn) (*Client, error) {
	helloCtx, cancel := context.WithTimeout(ctx, g.helloTimeout)
	env, err := readEnvelope(helloCtx, conn)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if env.Type != v1.TypeHello {
		return nil, fmt.Errorf("%w: first envelope must be hello, got %s", errUnauthenticated, env.Type)
	}

	var p v1.HelloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", errUnauthenticated)
	}
	principalID := strings.TrimSpace(p.PrincipalID)
	cred := strings.TrimSpace(p.Credential)
	if principalID == "" || cred == "" {
		return nil, fmt.Errorf("%w: missing principal_id or credential", errUnauthenticated)
	}

	fp := credential.FingerprintHex(cred)
	if g.deps.Guard.Denied(ctx, fp) {
		return nil, fmt.Errorf("%w: fingerprint=%s", errRevoked, credential.ShortFingerprint(fp))
	}

	now := time.Now().UTC()
	expiresAt := credential.EffectiveExpiry(cred, now, g.deps.RetentionCap)

	client := NewClient("", principalID, strings.TrimSpace(p.DisplayName), g.sendQueueSize)
	res, err := g.deps.Registry.Register(principalID, p.DisplayName, fp, expiresAt, client, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	client.SessionID = res.SessionID

	// Displaced sessions lose their credentials too, so the evicted device
	// cannot silently reconnect. Same-credential victims are skipped: that
	// would revoke the session we just admitted.
	for _, ev := range res.Evicted {
		if ev.Fingerprint == fp {
			continue
		}
		if err := g.deps.Revoker.Revoke(ctx, ev.Fingerprint, "session_limit", ev.ExpiresAt); err != nil {
			g.log.Warn("ws.evict.revoke_fail", "session_id", ev.SessionID, "err", err)
		}
	}

	ackPayload, _ := json.Marshal(v1.HelloAckPayload{SessionID: res.SessionID})
	if !client.TrySend(newEnvelope(v1.TypeHelloAck, ackPayload, now)) {
		g.deps.Registry.Remove(res.SessionID, "handshake_failed", now)
		return nil, errors.New("backpressure: hello ack")
	}

	g.log.Info("ws.hello",
		"session_id", res.SessionID,
		"principal_id", principalID,
		"fingerprint", credential.ShortFingerprint(fp),
		"first", res.First,
	)
	return client, nil
}

// autoJoin attaches the session to every conversation the principal belongs
// to, so routed traffic reaches it without explicit joins. Best effort: a
// directory failure just leaves the session to join manually.
func (g *Gateway) autoJoin(ctx context.Context, client *Client) {
	convs, err := g.deps.Directory.PrincipalConversations(ctx, client.PrincipalID)
	if err != nil {
		g.log.Warn("ws.autojoin.fail", "session_id", client.SessionID, "err", err)
		return
	}
	for _, convID := range convs {
		g.deps.Scopes.Join(convID, client)
	}
	if len(convs) > 0 {
		g.log.Debug("ws.autojoin", "session_id", client.SessionID, "scopes", len(convs))
	}
}

// ---- handlers ----

func (g *Gateway) onJoin(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.ConversationJoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}

	if err := g.requireMembership(ctx, convID, client.PrincipalID); err != nil {
		return err
	}

	g.deps.Scopes.Join(convID, client)

	echoPayload, _ := json.Marshal(v1.ConversationJoinPayload{ConversationID: convID})
	if !client.TrySend(newEnvelope(v1.TypeConversationJoin, echoPayload, time.Now().UTC())) {
		g.deps.Scopes.Leave(convID, client.SessionID)
		return errors.New("backpressure: join echo")
	}
	return nil
}

func (g *Gateway) onLeave(client *Client, env v1.Envelope) error {
	var p v1.ConversationLeavePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}

	g.deps.Scopes.Leave(convID, client.SessionID)
	g.deps.Relay.Stop(convID, client.PrincipalID)
	return nil
}

func (g *Gateway) onMessageSend(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}
	if strings.TrimSpace(p.ClientMsgID) == "" {
		return errors.New("missing client_msg_id")
	}
	if len(p.Body) == 0 {
		return errors.New("empty body")
	}
	if len(p.Body) > maxBodyBytes {
		return fmt.Errorf("body too large: max=%d bytes", maxBodyBytes)
	}

	members, err := g.deps.Directory.ConversationMembers(ctx, convID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return errors.New("unknown conversation")
		}
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !contains(members, client.PrincipalID) {
		return errors.New("not a member")
	}

	// A typing indicator is implicitly over once the message lands.
	g.deps.Relay.Stop(convID, client.PrincipalID)

	envelopeID := ids.MustULID(now)
	outcomes, err := g.deps.Router.Route(ctx, delivery.Envelope{
		ID:             envelopeID,
		ConversationID: convID,
		SenderID:       client.PrincipalID,
		Body:           p.Body,
		ReceivedAt:     now,
	}, members)
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}

	ackPayload, _ := json.Marshal(v1.MessageAckPayload{
		ConversationID: convID,
		ClientMsgID:    p.ClientMsgID,
		EnvelopeID:     envelopeID,
		Recipients:     outcomes,
	})
	if !client.TrySend(newEnvelope(v1.TypeMessageAck, ackPayload, now)) {
		return errors.New("backpressure: ack")
	}
	return nil
}

// typingScope validates a typing payload and, for starts, that the session
// is attached to the conversation's live scope.
func (g *Gateway) typingScope(client *Client, payload json.RawMessage, start bool) (string, error) {
	var p v1.TypingStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return "", errors.New("missing conversation_id")
	}
	if start && !g.deps.Scopes.InScope(convID, client.SessionID) {
		return "", errors.New("not joined")
	}
	return convID, nil
}

func (g *Gateway) requireMembership(ctx context.Context, conversationID, principalID string) error {
	members, err := g.deps.Directory.ConversationMembers(ctx, conversationID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return errors.New("unknown conversation")
		}
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !contains(members, principalID) {
		return errors.New("not a member")
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// ---- send helpers ----

func (g *Gateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = client.TrySend(newEnvelope(v1.TypeError, p, time.Now().UTC()))
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      ids.MustULID(ts),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
