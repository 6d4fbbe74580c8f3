package projection

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrReplayInProgress is returned when a rebuild is requested while another
// one is still running.
var ErrReplayInProgress = errors.New("ledger replay already in progress")

// Gate coordinates live settlement commits with the replay engine. Live
// operations hold the gate shared for the duration of their atomic unit;
// replay takes it exclusively, so it observes a quiescent projection and
// blocks new commits until it finishes.
type Gate struct {
	mu      sync.RWMutex
	running atomic.Bool
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Enter marks a live commit in flight. The returned function must be called
// when the atomic unit completes.
func (g *Gate) Enter() func() {
	g.mu.RLock()
	return g.mu.RUnlock
}

// Exclusive claims the gate for a replay run. A second concurrent claim fails
// fast with ErrReplayInProgress instead of queueing.
func (g *Gate) Exclusive() (func(), error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, ErrReplayInProgress
	}
	g.mu.Lock()
	return func() {
		g.mu.Unlock()
		g.running.Store(false)
	}, nil
}
