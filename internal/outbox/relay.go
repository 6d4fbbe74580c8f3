package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Publisher delivers one event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher is a stand-in publisher that writes events to the structured
// logger. Real deployments swap in a broker-backed implementation.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("outbox event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"payload", string(event.Payload),
	)
	return nil
}

// Relay drains unpublished events on an interval. Delivery is at-least-once:
// a crash between Publish and MarkPublished re-delivers the event, and
// consumers are expected to dedupe by event id.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRelay constructs a relay over the given store and publisher.
func NewRelay(store Store, publisher Publisher, interval time.Duration, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{store: store, publisher: publisher, interval: interval, batchSize: 100, logger: logger}
}

// Run drains events until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes every currently unpublished event once.
func (r *Relay) Drain(ctx context.Context) error {
	events, err := r.store.Unpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			return err
		}
		if err := r.store.MarkPublished(ctx, ev.ID); err != nil {
			return err
		}
	}
	return nil
}
