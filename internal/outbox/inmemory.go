package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type inMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	nextID int64
}

// NewInMemory creates an in-memory outbox for dev mode and tests.
func NewInMemory() Store {
	return &inMemoryStore{nextID: 1}
}

func (s *inMemoryStore) Append(_ context.Context, eventType string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := Event{
		ID:        s.nextID,
		Type:      eventType,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.events = append(s.events, ev)
	return ev.ID, nil
}

func (s *inMemoryStore) Unpublished(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, 0, limit)
	for _, ev := range s.events {
		if ev.PublishedAt != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *inMemoryStore) MarkPublished(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			now := time.Now().UTC()
			s.events[i].PublishedAt = &now
			return nil
		}
	}
	return errors.New("outbox event not found")
}

// Latest returns up to limit events, newest first.
func (s *inMemoryStore) Latest(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
