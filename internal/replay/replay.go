package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// Summary describes one completed rebuild.
type Summary struct {
	LedgerEntries int
	BalanceRows   int
	Duration      time.Duration
}

// Service rebuilds the balance projection from the full journal. It is a
// maintenance operation: it claims the projection gate exclusively, so live
// settlement and reserve commits block for its whole duration, and a second
// concurrent run is rejected with projection.ErrReplayInProgress.
type Service struct {
	journal ledger.Store
	proj    projection.Projector
	gate    *projection.Gate
	logger  *slog.Logger
}

// NewService wires the replay engine.
func NewService(journal ledger.Store, proj projection.Projector, gate *projection.Gate, logger *slog.Logger) *Service {
	return &Service{journal: journal, proj: proj, gate: gate, logger: logger}
}

// Run discards the projection and refolds the entire journal in insertion
// order. If the fold ever produces a negative balance the history is corrupt:
// the run aborts and the existing projection is left untouched.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	release, err := s.gate.Exclusive()
	if err != nil {
		return Summary{}, err
	}
	defer release()

	start := time.Now()
	entries, err := s.journal.ReadAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read journal: %w", err)
	}
	snapshot, err := projection.Fold(entries)
	if err != nil {
		return Summary{}, err
	}
	if err := s.proj.ReplaceAll(ctx, snapshot); err != nil {
		return Summary{}, fmt.Errorf("replace projection: %w", err)
	}

	summary := Summary{
		LedgerEntries: len(entries),
		BalanceRows:   len(snapshot),
		Duration:      time.Since(start),
	}
	s.logger.Info("ledger replay completed",
		"ledger_entries", summary.LedgerEntries,
		"balance_rows", summary.BalanceRows,
		"duration", summary.Duration,
	)
	return summary, nil
}
