package realtime

import (
	"context"
	"errors"
	"sync"

	v1 "ripple/shared/contracts/realtime/v1"
)

// ErrClientClosed is returned by Send after the client began shutdown.
var ErrClientClosed = errors.New("realtime: client closed")

// Client is one connected websocket session.
//
// Design notes:
//   - The outbound queue is intentionally never closed by the server to
//     avoid panics from concurrent broadcasters.
//   - done signals goroutines to stop; Close is idempotent.
//   - Client satisfies the session registry's Conn interface, so the
//     delivery router can dispatch into it without knowing the transport.
type Client struct {
	SessionID   string
	PrincipalID string
	DisplayName string

	out       chan v1.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID, principalID, displayName string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID:   sessionID,
		PrincipalID: principalID,
		DisplayName: displayName,
		out:         make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Send enqueues an envelope, blocking until queued, the context is done, or
// the client is shutting down.
func (c *Client) Send(ctx context.Context, env v1.Envelope) error {
	select {
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.out <- env:
		return nil
	}
}

// TrySend enqueues an envelope without blocking. False means the queue is
// full or the client is shutting down; the envelope is dropped.
func (c *Client) TrySend(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- env:
		return true
	default:
		return false
	}
}

// Outbox is the queue the connection's writer goroutine drains.
func (c *Client) Outbox() <-chan v1.Envelope { return c.out }

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close the outbound queue to keep broadcast safe under
// concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
