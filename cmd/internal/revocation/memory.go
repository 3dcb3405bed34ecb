package revocation

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const memShardCount = 16

type memShard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// MemoryStore is the in-process revocation set, sharded by fingerprint hash.
// Entries self-expire lazily on read; Sweep compacts them.
type MemoryStore struct {
	shards [memShardCount]*memShard
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memShard{entries: make(map[string]Entry)}
	}
	return s
}

func (s *MemoryStore) shardFor(fingerprint string) *memShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return s.shards[h.Sum32()%memShardCount]
}

// Revoke records the fingerprint until expiresAt.
func (s *MemoryStore) Revoke(_ context.Context, fingerprint, reason string, expiresAt time.Time) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return ErrEmptyFingerprint
	}

	sh := s.shardFor(fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.entries[fingerprint]; ok {
		// Keep the earliest revocation; extend retention if needed.
		if expiresAt.After(existing.ExpiresAt) {
			existing.ExpiresAt = expiresAt
		}
		sh.entries[fingerprint] = existing
		return nil
	}

	sh.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Reason:      reason,
		RevokedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	return nil
}

// IsRevoked checks membership with expiry evaluated on read.
func (s *MemoryStore) IsRevoked(_ context.Context, fingerprint string) (bool, error) {
	sh := s.shardFor(fingerprint)

	sh.mu.RLock()
	e, ok := sh.entries[fingerprint]
	sh.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(time.Now().UTC()) {
		return false, nil
	}
	return true, nil
}

// Sweep discards expired entries.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for fp, e := range sh.entries {
			if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now) {
				delete(sh.entries, fp)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len reports the number of retained entries (including not-yet-swept ones).
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
