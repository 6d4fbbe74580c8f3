package reserve

import (
	"context"

	"github.com/eupaygrid/eupaygrid/internal/directory"
)

// Store owns the atomic unit of a reserve intake: deposit record, the single
// credit journal entry, the balance increment, the audit record and the
// outbox event commit together or not at all.
type Store interface {
	Record(ctx context.Context, institution directory.Institution, deposit Deposit) (Deposit, error)
}
