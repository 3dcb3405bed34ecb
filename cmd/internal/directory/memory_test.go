package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDirectoryMembers(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	d.SetMembers("c1", "a", "b", "c")

	ctx := context.Background()

	members, err := d.ConversationMembers(ctx, "c1")
	if err != nil {
		t.Fatalf("ConversationMembers: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %v", members)
	}

	if _, err := d.ConversationMembers(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDirectoryPrincipalConversations(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	d.SetMembers("c1", "a", "b")
	d.SetMembers("c2", "b", "c")

	convs, err := d.PrincipalConversations(context.Background(), "b")
	if err != nil {
		t.Fatalf("PrincipalConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected b in 2 conversations, got %v", convs)
	}
}

func TestMemoryDirectoryCredentialExpiry(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	exp := time.Now().UTC().Add(time.Hour)
	d.SetCredentialExpiry("fp-1", exp)

	got, err := d.CredentialExpiry(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("CredentialExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expiry mismatch: got %v want %v", got, exp)
	}

	if _, err := d.CredentialExpiry(context.Background(), "fp-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDirectoryReceipts(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	if err := d.WriteReceipt(context.Background(), "e1", "r1", ReceiptState("delivered"), time.Now()); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}

	state, ok := d.Receipt("e1", "r1")
	if !ok || state != "delivered" {
		t.Fatalf("unexpected receipt: %q ok=%v", state, ok)
	}
}
