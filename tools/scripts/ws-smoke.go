// Package main provides a CI-friendly WebSocket smoke test for ripple realtime.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment (credential fingerprinting path)
//   - join echo
//   - send -> ack with per-recipient outcomes
//   - fanout message_new to another client
//   - delivery ack -> delivery_update back to the sender
//   - typing start -> typing_change fanout
//
// Run against a dev server started with e.g.
//
//	RIPPLE_DEV_CONVERSATIONS="dev-room-1:alice,bob" ./ripple
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "ripple/shared/contracts/realtime/v1"
)

const (
	defaultSubprotocol = "ripple.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name        string
	principalID string
	conn        *websocket.Conn
	sessionID   string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		convID  = flag.String("conv", "dev-room-1", "Conversation ID to join")
		sender  = flag.String("sender", "alice", "Sender principal id")
		peer    = flag.String("peer", "bob", "Recipient principal id")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *sender, *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *peer, *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.sessionID, b.sessionID, *origin)
	}

	mustJoin(root, a, *convID, *timeout)
	mustJoin(root, b, *convID, *timeout)

	clientMsgID := fmt.Sprintf("cmsg-%d", time.Now().UnixNano())

	envelopeID := mustSendAndAssertAck(root, a, *convID, clientMsgID, *peer, *timeout)

	mustAssertNew(root, b, *convID, envelopeID, a.principalID, *timeout)

	mustDeliveryAckAndUpdate(root, a, b, envelopeID, *timeout)

	mustTypingFanout(root, a, b, *convID, *timeout)

	fmt.Printf("OK: A=%s B=%s conv_id=%s envelope_id=%s\n", a.sessionID, b.sessionID, *convID, envelopeID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, principalID, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:        name,
		principalID: principalID,
		conn:        conn,
		inbox:       make(chan v1.Envelope, 512),
		errCh:       make(chan error, 1),
	}
	c.startReadLoop()

	hello := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeHello,
		ID:   fmt.Sprintf("%s-hello", name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{
			PrincipalID: principalID,
			DisplayName: strings.ToUpper(principalID[:1]) + principalID[1:],
			Credential:  fmt.Sprintf("smoke-credential-%s-%d", principalID, time.Now().UnixNano()),
		}),
	}
	mustWriteWithTimeout(parent, conn, hello, stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello_ack missing session_id (%s)", name)
	}
	c.sessionID = p.SessionID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustJoin(parent context.Context, c *smokeClient, convID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeConversationJoin,
		ID:   fmt.Sprintf("%s-join", c.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.ConversationJoinPayload{
			ConversationID: convID,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	// presence_change envelopes may arrive interleaved with the echo.
	skip := map[string]struct{}{v1.TypePresenceChange: {}}
	echo := c.mustReadUntilType(parent, v1.TypeConversationJoin, stepTimeout, skip)

	var p v1.ConversationJoinPayload
	if err := json.Unmarshal(echo.Payload, &p); err != nil {
		fatalf("unmarshal join echo payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("join echo conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
}

func mustSendAndAssertAck(parent context.Context, c *smokeClient, convID, clientMsgID, peer string, stepTimeout time.Duration) (envelopeID string) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeMessageSend,
		ID:   fmt.Sprintf("%s-send-%s", c.name, clientMsgID),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.MessageSendPayload{
			ConversationID: convID,
			ClientMsgID:    clientMsgID,
			Body:           mustJSON(map[string]string{"text": "hello ripple"}),
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	// The route-time "delivered" update is queued before the ack.
	skip := map[string]struct{}{
		v1.TypeMessageNew:     {},
		v1.TypePresenceChange: {},
		v1.TypeDeliveryUpdate: {},
	}
	ack := c.mustReadUntilType(parent, v1.TypeMessageAck, stepTimeout, skip)

	var p v1.MessageAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal message_ack payload (%s): %v", c.name, err)
	}
	if p.ConversationID != convID {
		fatalf("ack conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
	if p.ClientMsgID != clientMsgID {
		fatalf("ack client_msg_id mismatch (%s): got=%q want=%q", c.name, p.ClientMsgID, clientMsgID)
	}
	if strings.TrimSpace(p.EnvelopeID) == "" {
		fatalf("ack missing envelope_id (%s)", c.name)
	}
	if got := p.Recipients[peer]; got != "delivered" {
		fatalf("ack recipient outcome mismatch (%s): %s=%q want=%q", c.name, peer, got, "delivered")
	}
	return p.EnvelopeID
}

func mustAssertNew(parent context.Context, c *smokeClient, convID, envelopeID, senderID string, stepTimeout time.Duration) {
	skip := map[string]struct{}{v1.TypePresenceChange: {}}
	env := c.mustReadUntilType(parent, v1.TypeMessageNew, stepTimeout, skip)

	var p v1.MessageNewPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message_new payload (%s): %v", c.name, err)
	}

	if p.ConversationID != convID {
		fatalf("new conv_id mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
	if p.EnvelopeID != envelopeID {
		fatalf("new envelope_id mismatch (%s): got=%q want=%q", c.name, p.EnvelopeID, envelopeID)
	}
	if p.SenderID != senderID {
		fatalf("new sender mismatch (%s): got=%q want=%q", c.name, p.SenderID, senderID)
	}
	if p.ServerTS.IsZero() {
		fatalf("new server_ts missing/zero (%s)", c.name)
	}
}

func mustDeliveryAckAndUpdate(parent context.Context, sender, recipient *smokeClient, envelopeID string, stepTimeout time.Duration) {
	ack := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeReadAck,
		ID:      fmt.Sprintf("%s-read-ack", recipient.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.ReadAckPayload{EnvelopeID: envelopeID}),
	}
	mustWriteWithTimeout(parent, recipient.conn, ack, stepTimeout)

	skip := map[string]struct{}{v1.TypePresenceChange: {}}
	for {
		update := sender.mustReadUntilType(parent, v1.TypeDeliveryUpdate, stepTimeout, skip)

		var p v1.DeliveryUpdatePayload
		if err := json.Unmarshal(update.Payload, &p); err != nil {
			fatalf("unmarshal delivery_update payload (%s): %v", sender.name, err)
		}
		if p.EnvelopeID != envelopeID {
			fatalf("update envelope_id mismatch (%s): got=%q want=%q", sender.name, p.EnvelopeID, envelopeID)
		}
		if p.RecipientID != recipient.principalID {
			fatalf("update recipient mismatch (%s): got=%q want=%q", sender.name, p.RecipientID, recipient.principalID)
		}
		// route-time "delivered" may precede the "read" we acked.
		if p.State == "read" {
			return
		}
		if p.State != "delivered" {
			fatalf("unexpected update state (%s): %q", sender.name, p.State)
		}
	}
}

func mustTypingFanout(parent context.Context, typist, watcher *smokeClient, convID string, stepTimeout time.Duration) {
	start := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeTypingStart,
		ID:      fmt.Sprintf("%s-typing", typist.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.TypingStartPayload{ConversationID: convID}),
	}
	mustWriteWithTimeout(parent, typist.conn, start, stepTimeout)

	skip := map[string]struct{}{
		v1.TypePresenceChange: {},
		v1.TypeDeliveryUpdate: {},
	}
	change := watcher.mustReadUntilType(parent, v1.TypeTypingChange, stepTimeout, skip)

	var p v1.TypingChangePayload
	if err := json.Unmarshal(change.Payload, &p); err != nil {
		fatalf("unmarshal typing_change payload (%s): %v", watcher.name, err)
	}
	if p.ConversationID != convID || p.PrincipalID != typist.principalID || !p.Typing {
		fatalf("typing_change mismatch (%s): %+v", watcher.name, p)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
