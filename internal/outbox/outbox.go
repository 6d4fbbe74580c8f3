package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the durable envelope written transactionally alongside the domain
// mutation that produced it. PublishedAt stays nil until a relay delivers the
// event; consumers dedupe by id, delivery is at-least-once.
type Event struct {
	ID          int64           `json:"id"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at"`
}

// Store persists outbox events.
type Store interface {
	Append(ctx context.Context, eventType string, payload any) (int64, error)
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id int64) error
	Latest(ctx context.Context, limit int) ([]Event, error)
}
