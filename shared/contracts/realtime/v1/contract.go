// Package v1 defines the Ripple Realtime Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello authenticates a connection (client -> server). It must be the
	// first envelope on a connection; nothing else is accepted before it.
	TypeHello = "hello"
	// TypeHelloAck confirms authentication and carries the session id (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeConversationJoin joins a conversation scope (client -> server) and is echoed back.
	TypeConversationJoin = "conversation_join"
	// TypeConversationLeave leaves a conversation scope (client -> server).
	TypeConversationLeave = "conversation_leave"

	// TypeMessageSend requests routing of a new message (client -> server).
	TypeMessageSend = "message_send"
	// TypeMessageAck acknowledges a send request (server -> client).
	TypeMessageAck = "message_ack"
	// TypeMessageNew pushes a routed message to recipients (server -> client).
	TypeMessageNew = "message_new"

	// TypeDeliveryAck reports receipt of a message (client -> server).
	TypeDeliveryAck = "delivery_ack"
	// TypeReadAck reports that a message was viewed (client -> server).
	TypeReadAck = "read_ack"
	// TypeDeliveryUpdate notifies the sender of a receipt state change (server -> client).
	TypeDeliveryUpdate = "delivery_update"

	// TypePresenceChange notifies about a principal going online/offline (server -> client).
	TypePresenceChange = "presence_change"

	// TypeTypingStart signals a typing indicator (client -> server).
	TypeTypingStart = "typing_start"
	// TypeTypingStop clears a typing indicator (client -> server).
	TypeTypingStop = "typing_stop"
	// TypeTypingChange relays a typing indicator to conversation members (server -> client).
	TypeTypingChange = "typing_change"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeConversationJoin,
		TypeConversationLeave,
		TypeMessageSend,
		TypeMessageAck,
		TypeMessageNew,
		TypeDeliveryAck,
		TypeReadAck,
		TypeDeliveryUpdate,
		TypePresenceChange,
		TypeTypingStart,
		TypeTypingStop,
		TypeTypingChange,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload authenticates the connection. Credential is the opaque bearer
// token; the server derives a fingerprint from it and never echoes it back.
type HelloPayload struct {
	PrincipalID string `json:"principal_id"`
	DisplayName string `json:"display_name,omitempty"`
	Credential  string `json:"credential"`
}

// HelloAckPayload carries the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// ConversationJoinPayload requests membership in a conversation scope.
type ConversationJoinPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationLeavePayload leaves a conversation scope.
type ConversationLeavePayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageSendPayload requests routing of a message into a conversation.
type MessageSendPayload struct {
	ConversationID string          `json:"conversation_id"`
	ClientMsgID    string          `json:"client_msg_id"`
	Body           json.RawMessage `json:"body"`
}

// MessageAckPayload acknowledges a send request with the canonical envelope id
// and the per-recipient dispatch outcome at route time.
type MessageAckPayload struct {
	ConversationID string            `json:"conversation_id"`
	ClientMsgID    string            `json:"client_msg_id"`
	EnvelopeID     string            `json:"envelope_id"`
	Recipients     map[string]string `json:"recipients,omitempty"`
}

// MessageNewPayload pushes a routed message to a recipient session.
type MessageNewPayload struct {
	ConversationID string          `json:"conversation_id"`
	EnvelopeID     string          `json:"envelope_id"`
	SenderID       string          `json:"sender_id"`
	Body           json.RawMessage `json:"body"`
	ServerTS       time.Time       `json:"server_ts"`
}

// DeliveryAckPayload reports that a recipient received a message.
type DeliveryAckPayload struct {
	EnvelopeID string `json:"envelope_id"`
}

// ReadAckPayload reports that a recipient viewed a message.
type ReadAckPayload struct {
	EnvelopeID string `json:"envelope_id"`
}

// DeliveryUpdatePayload notifies the sender about a receipt state change.
type DeliveryUpdatePayload struct {
	EnvelopeID  string    `json:"envelope_id"`
	RecipientID string    `json:"recipient_id"`
	State       string    `json:"state"`
	At          time.Time `json:"at"`
}

// PresenceChangePayload notifies about an online/offline transition.
type PresenceChangePayload struct {
	PrincipalID string     `json:"principal_id"`
	Online      bool       `json:"online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// TypingStartPayload signals the start of typing in a conversation.
type TypingStartPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingStopPayload clears a typing indicator in a conversation.
type TypingStopPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingChangePayload relays a typing indicator to conversation members.
type TypingChangePayload struct {
	ConversationID string `json:"conversation_id"`
	PrincipalID    string `json:"principal_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Typing         bool   `json:"typing"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
