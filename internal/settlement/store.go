package settlement

import (
	"context"
	"errors"

	"github.com/eupaygrid/eupaygrid/internal/directory"
)

// ErrTransferNotFound indicates an unknown transfer id.
var ErrTransferNotFound = errors.New("transfer not found")

// Store owns the atomic unit of settlement: balance check-and-update, the
// journal pair, the settlement event, the transfer row and the outbox event
// either all commit or none do. Eligibility validation happens in the
// service before Settle is called; the balance check must happen inside the
// unit, under the sender/recipient locks, to close the double-spend race.
type Store interface {
	Settle(ctx context.Context, sender, recipient directory.Institution, transfer Transfer) (Transfer, error)
	Get(ctx context.Context, id string) (Transfer, error)
	List(ctx context.Context, query, status string, limit int) ([]Transfer, error)
	Events(ctx context.Context, limit int) ([]Event, error)
}
