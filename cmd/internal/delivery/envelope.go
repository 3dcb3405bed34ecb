package delivery

import (
	"encoding/json"
	"time"
)

// State is a per-recipient receipt state. Transitions are monotonic:
// pending -> delivered -> read, and a read ack from pending is accepted
// (read implies delivered).
type State uint8

const (
	// StatePending means the envelope was accepted but not yet confirmed
	// received by this recipient.
	StatePending State = iota
	// StateDelivered means at least one of the recipient's live sessions
	// confirmed receipt.
	StateDelivered
	// StateRead means the recipient viewed the message.
	StateRead
)

// String returns the wire representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	default:
		return "unknown"
	}
}

// Envelope is one routed message. ID is the canonical server-assigned id;
// the sender's client_msg_id never leaves the gateway.
type Envelope struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           json.RawMessage
	ReceivedAt     time.Time
}
