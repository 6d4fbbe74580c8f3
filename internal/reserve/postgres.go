package reserve

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// PostgresStore executes a reserve intake as a single database transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs the production reserve store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, institution directory.Institution, deposit Deposit) (Deposit, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Deposit{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := projection.LockBalanceTx(ctx, tx, institution.Code, deposit.Currency); err != nil {
		return Deposit{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO reserve_deposits (id, institution_id, amount, currency, reference, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		deposit.ID, institution.Code, deposit.Amount, deposit.Currency,
		deposit.Reference, deposit.CreatedBy, deposit.CreatedAt); err != nil {
		return Deposit{}, err
	}

	entry := MintEntry(institution, deposit)
	if _, err := ledger.AppendTx(ctx, tx, []ledger.Entry{entry}); err != nil {
		return Deposit{}, err
	}
	balance, err := projection.ApplyTx(ctx, tx, entry)
	if err != nil {
		return Deposit{}, err
	}
	deposit.BalanceAfter = balance

	if err := appendActionTx(ctx, tx, AuditAction(institution, deposit)); err != nil {
		return Deposit{}, err
	}
	if _, err := outbox.AppendTx(ctx, tx, "reserve_deposit.recorded", Payload(deposit)); err != nil {
		return Deposit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Deposit{}, err
	}
	return deposit, nil
}

func appendActionTx(ctx context.Context, tx pgx.Tx, action directory.AdminAction) error {
	metadata, err := json.Marshal(action.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO admin_actions (action_type, actor, target_institution_id, reason, metadata)
        VALUES ($1, $2, $3, $4, $5::jsonb)`,
		action.ActionType, action.Actor, action.TargetCode, action.Reason, metadata)
	return err
}
