package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/logging"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (p *capturingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) published() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestDrainPublishesAndMarks(t *testing.T) {
	store := NewInMemory()
	pub := &capturingPublisher{}
	relay := NewRelay(store, pub, time.Second, logging.Discard())
	ctx := context.Background()

	for _, typ := range []string{"transfer.settled", "reserve_deposit.recorded"} {
		if _, err := store.Append(ctx, typ, map[string]any{"k": "v"}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}

	if err := relay.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	got := pub.published()
	if len(got) != 2 {
		t.Fatalf("published %d events, want 2", len(got))
	}
	if got[0].Type != "transfer.settled" || got[1].Type != "reserve_deposit.recorded" {
		t.Fatalf("events published out of order: %q %q", got[0].Type, got[1].Type)
	}

	unpublished, err := store.Unpublished(ctx, 0)
	if err != nil {
		t.Fatalf("unpublished: %v", err)
	}
	if len(unpublished) != 0 {
		t.Fatalf("%d events still unpublished after drain", len(unpublished))
	}

	// A second drain has nothing left to deliver.
	if err := relay.Drain(ctx); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(pub.published()) != 2 {
		t.Fatalf("drain re-published already delivered events")
	}
}

func TestDrainKeepsEventsOnPublishFailure(t *testing.T) {
	store := NewInMemory()
	pub := &capturingPublisher{fail: true}
	relay := NewRelay(store, pub, time.Second, logging.Discard())
	ctx := context.Background()

	if _, err := store.Append(ctx, "transfer.settled", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := relay.Drain(ctx); err == nil {
		t.Fatalf("expected drain error when publisher fails")
	}

	unpublished, _ := store.Unpublished(ctx, 0)
	if len(unpublished) != 1 {
		t.Fatalf("failed publish marked the event anyway")
	}

	// Once the broker recovers, the same event is delivered.
	pub.fail = false
	if err := relay.Drain(ctx); err != nil {
		t.Fatalf("drain after recovery: %v", err)
	}
	if len(pub.published()) != 1 {
		t.Fatalf("event lost after publisher recovery")
	}
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	store := NewInMemory()
	pub := &capturingPublisher{}
	relay := NewRelay(store, pub, 5*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	if _, err := store.Append(ctx, "transfer.settled", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(pub.published()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("relay never delivered the event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("relay did not stop on cancellation")
	}
}

func TestLatestNewestFirst(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	for _, typ := range []string{"a", "b", "c"} {
		if _, err := store.Append(ctx, typ, nil); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}

	latest, err := store.Latest(ctx, 2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 || latest[0].Type != "c" || latest[1].Type != "b" {
		t.Fatalf("unexpected latest order: %+v", latest)
	}
}
