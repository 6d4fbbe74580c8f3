package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists journal entries in PostgreSQL. The ledger_entries
// table carries triggers rejecting UPDATE and DELETE, so immutability holds
// even against direct SQL access.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed journal.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertEntrySQL = `INSERT INTO ledger_entries (
        transfer_id, reserve_deposit_id, institution_id, account_ref,
        counterparty_ref, entry_type, side, currency, amount, description)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    RETURNING sequence`

// Append inserts the batch within its own transaction.
func (s *PostgresStore) Append(ctx context.Context, entries []Entry) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	seqs, err := AppendTx(ctx, tx, entries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return seqs, nil
}

// AppendTx inserts the batch using the caller's transaction so the journal
// write commits atomically with the rest of a settlement unit.
func AppendTx(ctx context.Context, tx pgx.Tx, entries []Entry) ([]int64, error) {
	if err := validateBatch(entries); err != nil {
		return nil, err
	}

	seqs := make([]int64, 0, len(entries))
	for _, e := range entries {
		var seq int64
		err := tx.QueryRow(ctx, insertEntrySQL,
			nullable(e.TransferID), nullable(e.ReserveDepositID), e.InstitutionID,
			e.AccountRef, nullable(e.CounterpartyRef), string(e.Type), string(e.Side),
			e.Currency, e.Amount, e.Description,
		).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("append ledger entry: %w", err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

const selectEntrySQL = `SELECT
        sequence, COALESCE(transfer_id::text, ''), COALESCE(reserve_deposit_id::text, ''),
        institution_id, account_ref, COALESCE(counterparty_ref, ''), entry_type, side,
        currency, amount, description, created_at
    FROM ledger_entries`

// ReadAll streams the full journal in insertion order. Used by replay only.
func (s *PostgresStore) ReadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, selectEntrySQL+` ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// List returns up to limit entries, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, selectEntrySQL+` ORDER BY sequence DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var entryType, side string
		if err := rows.Scan(&e.Sequence, &e.TransferID, &e.ReserveDepositID,
			&e.InstitutionID, &e.AccountRef, &e.CounterpartyRef, &entryType, &side,
			&e.Currency, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EntryType(entryType)
		e.Side = Side(side)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
