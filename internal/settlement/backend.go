package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Backend is the pluggable proof-of-settlement layer. RecordSettlement
// returns the external transaction id for a transfer, or an error when the
// settlement network rejects it. Implementations must be safe for concurrent
// use and should honor ctx cancellation.
type Backend interface {
	Name() string
	RecordSettlement(ctx context.Context, transfer Transfer) (string, error)
}

// StaticBackend is the in-repo stand-in that always succeeds and fabricates
// an identifier. Real settlement networks implement the same interface.
type StaticBackend struct {
	layer string
}

// NewStaticBackend constructs a stand-in backend for the named layer.
func NewStaticBackend(layer string) *StaticBackend {
	if layer == "" {
		layer = "simulated-solana"
	}
	return &StaticBackend{layer: layer}
}

// Name returns the settlement layer identifier recorded on transfers.
func (b *StaticBackend) Name() string { return b.layer }

// RecordSettlement fabricates a settlement transaction id.
func (b *StaticBackend) RecordSettlement(_ context.Context, _ Transfer) (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate settlement tx id: %w", err)
	}
	return "simsol_" + hex.EncodeToString(buf), nil
}
