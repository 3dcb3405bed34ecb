// Package directory is the boundary to the external user/conversation store.
//
// The realtime core never owns users, conversation membership, or message
// history; it only reads the authoritative membership sets and, at most,
// persists final receipt states fire-and-forget.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation or credential is unknown.
var ErrNotFound = errors.New("directory: not found")

// Directory exposes the read-side lookups the core needs.
type Directory interface {
	// ConversationMembers returns the principal ids belonging to a conversation.
	ConversationMembers(ctx context.Context, conversationID string) ([]string, error)

	// PrincipalConversations returns the conversation ids a principal belongs to.
	PrincipalConversations(ctx context.Context, principalID string) ([]string, error)

	// CredentialExpiry returns the recorded expiry instant for a credential
	// fingerprint, used to bound revocation retention.
	CredentialExpiry(ctx context.Context, fingerprint string) (time.Time, error)
}

// ReceiptState mirrors delivery.State for persistence without importing it.
type ReceiptState string

// ReceiptWriter persists final delivery-state transitions. Calls are
// fire-and-forget from the hot path: errors are logged, never propagated into
// dispatch.
type ReceiptWriter interface {
	WriteReceipt(ctx context.Context, envelopeID, recipientID string, state ReceiptState, at time.Time) error
}
