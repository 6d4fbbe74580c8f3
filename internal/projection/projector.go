package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
)

var (
	// ErrInsufficientBalance occurs when applying an entry would drive a
	// balance below zero on the live path.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCorruptHistory indicates a journal whose fold produces a negative
	// balance. The projection must not be touched when this is returned.
	ErrCorruptHistory = errors.New("ledger history is corrupt")
)

// Key identifies one balance row.
type Key struct {
	InstitutionID string
	Currency      string
}

// Snapshot is a full set of balances, as produced by folding the journal.
type Snapshot map[Key]int64

// Row is one materialized balance with its bookkeeping timestamp.
type Row struct {
	InstitutionID string
	Currency      string
	Available     int64
	UpdatedAt     time.Time
}

// Projector maintains the queryable balance per (institution, currency). It
// is never authoritative: ReplaceAll lets the replay engine swap the whole
// projection for one rebuilt from the journal.
type Projector interface {
	Balance(ctx context.Context, institutionID, currency string) (int64, error)
	Apply(ctx context.Context, entry ledger.Entry) (int64, error)
	ReplaceAll(ctx context.Context, snapshot Snapshot) error
	Rows(ctx context.Context, limit int) ([]Row, error)
}

// delta converts an entry into a signed balance movement: credits add,
// debits subtract.
func delta(entry ledger.Entry) int64 {
	if entry.Side == ledger.SideCredit {
		return entry.Amount
	}
	return -entry.Amount
}

// Fold replays entries in order into a fresh snapshot. Any intermediate
// negative balance means history was tampered with or written out of order,
// which is fatal.
func Fold(entries []ledger.Entry) (Snapshot, error) {
	snapshot := make(Snapshot)
	for _, e := range entries {
		key := Key{InstitutionID: e.InstitutionID, Currency: e.Currency}
		next := snapshot[key] + delta(e)
		if next < 0 {
			return nil, fmt.Errorf("%w: entry %d drives %s/%s to %d",
				ErrCorruptHistory, e.Sequence, e.InstitutionID, e.Currency, next)
		}
		snapshot[key] = next
	}
	return snapshot, nil
}
