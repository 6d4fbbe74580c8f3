package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
)

// PostgresProjector materializes balances in the balances table. The table's
// CHECK (available_balance >= 0) backs the non-negativity invariant at the
// storage layer.
type PostgresProjector struct {
	db *pgxpool.Pool
}

// NewPostgresProjector constructs a Postgres-backed projector.
func NewPostgresProjector(db *pgxpool.Pool) *PostgresProjector {
	return &PostgresProjector{db: db}
}

func (p *PostgresProjector) Balance(ctx context.Context, institutionID, currency string) (int64, error) {
	var amount int64
	err := p.db.QueryRow(ctx,
		`SELECT available_balance FROM balances WHERE institution_id = $1 AND currency = $2`,
		institutionID, currency).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}

func (p *PostgresProjector) Apply(ctx context.Context, entry ledger.Entry) (int64, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	amount, err := ApplyTx(ctx, tx, entry)
	if err != nil {
		return 0, err
	}
	return amount, tx.Commit(ctx)
}

// EnsureRowTx creates a zero balance row if none exists yet for the key.
func EnsureRowTx(ctx context.Context, tx pgx.Tx, institutionID, currency string) error {
	_, err := tx.Exec(ctx, `INSERT INTO balances (institution_id, currency, available_balance)
        VALUES ($1, $2, 0) ON CONFLICT (institution_id, currency) DO NOTHING`,
		institutionID, currency)
	return err
}

// LockBalanceTx ensures the row exists and takes a row lock, returning the
// current balance. Callers must lock keys in deterministic institution order.
func LockBalanceTx(ctx context.Context, tx pgx.Tx, institutionID, currency string) (int64, error) {
	if err := EnsureRowTx(ctx, tx, institutionID, currency); err != nil {
		return 0, err
	}
	var amount int64
	err := tx.QueryRow(ctx, `SELECT available_balance FROM balances
        WHERE institution_id = $1 AND currency = $2 FOR UPDATE`,
		institutionID, currency).Scan(&amount)
	return amount, err
}

// ApplyTx moves a balance inside the caller's transaction. The database CHECK
// constraint turns a would-be-negative result into ErrInsufficientBalance.
func ApplyTx(ctx context.Context, tx pgx.Tx, entry ledger.Entry) (int64, error) {
	if err := EnsureRowTx(ctx, tx, entry.InstitutionID, entry.Currency); err != nil {
		return 0, err
	}
	var amount int64
	err := tx.QueryRow(ctx, `UPDATE balances
        SET available_balance = available_balance + $3, updated_at = NOW()
        WHERE institution_id = $1 AND currency = $2
        RETURNING available_balance`,
		entry.InstitutionID, entry.Currency, delta(entry)).Scan(&amount)
	if err != nil {
		if isCheckViolation(err) {
			return 0, fmt.Errorf("%w: %s %s", ErrInsufficientBalance, entry.InstitutionID, entry.Currency)
		}
		return 0, err
	}
	return amount, nil
}

// ReplaceAll swaps the entire projection in one transaction.
func (p *PostgresProjector) ReplaceAll(ctx context.Context, snapshot Snapshot) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE TABLE balances`); err != nil {
		return err
	}
	for key, amount := range snapshot {
		if _, err := tx.Exec(ctx, `INSERT INTO balances (institution_id, currency, available_balance, updated_at)
            VALUES ($1, $2, $3, NOW())`, key.InstitutionID, key.Currency, amount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *PostgresProjector) Rows(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := p.db.Query(ctx, `SELECT institution_id, currency, available_balance, updated_at
        FROM balances ORDER BY available_balance DESC, institution_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.InstitutionID, &r.Currency, &r.Available, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isCheckViolation reports whether the error is the Postgres check_violation
// class (SQLSTATE 23514) raised by the non-negative balance constraint.
func isCheckViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23514"
	}
	return false
}
