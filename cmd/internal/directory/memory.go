package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is a dev/test implementation of Directory and ReceiptWriter.
type MemoryDirectory struct {
	mu          sync.RWMutex
	members     map[string][]string          // conversation -> principals
	credentials map[string]time.Time         // fingerprint -> expiry
	receipts    map[string]map[string]string // envelope -> recipient -> state
}

// NewMemoryDirectory constructs an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		members:     make(map[string][]string),
		credentials: make(map[string]time.Time),
		receipts:    make(map[string]map[string]string),
	}
}

// SetMembers replaces a conversation's membership.
func (d *MemoryDirectory) SetMembers(conversationID string, principalIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[conversationID] = append([]string(nil), principalIDs...)
}

// SetCredentialExpiry records a credential fingerprint's expiry instant.
func (d *MemoryDirectory) SetCredentialExpiry(fingerprint string, expiry time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials[fingerprint] = expiry
}

// ConversationMembers implements Directory.
func (d *MemoryDirectory) ConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	members, ok := d.members[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), members...), nil
}

// PrincipalConversations implements Directory.
func (d *MemoryDirectory) PrincipalConversations(ctx context.Context, principalID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for conv, members := range d.members {
		for _, m := range members {
			if m == principalID {
				out = append(out, conv)
				break
			}
		}
	}
	return out, nil
}

// CredentialExpiry implements Directory.
func (d *MemoryDirectory) CredentialExpiry(ctx context.Context, fingerprint string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	exp, ok := d.credentials[fingerprint]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return exp, nil
}

// WriteReceipt implements ReceiptWriter.
func (d *MemoryDirectory) WriteReceipt(ctx context.Context, envelopeID, recipientID string, state ReceiptState, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.receipts[envelopeID]
	if m == nil {
		m = make(map[string]string)
		d.receipts[envelopeID] = m
	}
	m[recipientID] = string(state)
	return nil
}

// Receipt reports the stored receipt state (test helper).
func (d *MemoryDirectory) Receipt(envelopeID, recipientID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.receipts[envelopeID]
	if !ok {
		return "", false
	}
	s, ok := m[recipientID]
	return s, ok
}
