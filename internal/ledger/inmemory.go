package ledger

import (
	"context"
	"sync"
	"time"
)

type inMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq int64
}

// NewInMemory creates a concurrency-safe in-memory journal used in dev mode
// and unit tests.
func NewInMemory() Store {
	return &inMemoryStore{nextSeq: 1}
}

func (s *inMemoryStore) Append(_ context.Context, entries []Entry) ([]int64, error) {
	if err := validateBatch(entries); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	seqs := make([]int64, 0, len(entries))
	for _, e := range entries {
		e.Sequence = s.nextSeq
		s.nextSeq++
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		s.entries = append(s.entries, e)
		seqs = append(seqs, e.Sequence)
	}
	return seqs, nil
}

// ReadAll returns a copy of the full journal in insertion order.
func (s *inMemoryStore) ReadAll(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// List returns up to limit entries, newest first.
func (s *inMemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
