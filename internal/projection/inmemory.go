package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
)

type inMemoryProjector struct {
	mu       sync.RWMutex
	balances map[Key]int64
	updated  map[Key]time.Time
}

// NewInMemory creates an in-memory balance projection for dev mode and tests.
func NewInMemory() Projector {
	return &inMemoryProjector{
		balances: make(map[Key]int64),
		updated:  make(map[Key]time.Time),
	}
}

func (p *inMemoryProjector) Balance(_ context.Context, institutionID, currency string) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[Key{InstitutionID: institutionID, Currency: currency}], nil
}

func (p *inMemoryProjector) Apply(_ context.Context, entry ledger.Entry) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := Key{InstitutionID: entry.InstitutionID, Currency: entry.Currency}
	next := p.balances[key] + delta(entry)
	if next < 0 {
		return 0, fmt.Errorf("%w: %s %s", ErrInsufficientBalance, entry.InstitutionID, entry.Currency)
	}
	p.balances[key] = next
	p.updated[key] = time.Now().UTC()
	return next, nil
}

func (p *inMemoryProjector) ReplaceAll(_ context.Context, snapshot Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	p.balances = make(map[Key]int64, len(snapshot))
	p.updated = make(map[Key]time.Time, len(snapshot))
	for key, amount := range snapshot {
		p.balances[key] = amount
		p.updated[key] = now
	}
	return nil
}

// Rows lists balances ordered by amount descending, institution ascending.
func (p *inMemoryProjector) Rows(_ context.Context, limit int) ([]Row, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows := make([]Row, 0, len(p.balances))
	for key, amount := range p.balances {
		rows = append(rows, Row{
			InstitutionID: key.InstitutionID,
			Currency:      key.Currency,
			Available:     amount,
			UpdatedAt:     p.updated[key],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Available != rows[j].Available {
			return rows[i].Available > rows[j].Available
		}
		return rows[i].InstitutionID < rows[j].InstitutionID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
