package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// PostgresStore executes the settlement unit as a single database
// transaction. Balance rows are locked FOR UPDATE in sorted institution
// order, which is the row-level equivalent of the in-memory key locks.
type PostgresStore struct {
	db      *pgxpool.Pool
	backend Backend
}

// NewPostgresStore constructs the production settlement store.
func NewPostgresStore(db *pgxpool.Pool, backend Backend) *PostgresStore {
	return &PostgresStore{db: db, backend: backend}
}

func (s *PostgresStore) Settle(ctx context.Context, sender, recipient directory.Institution, transfer Transfer) (Transfer, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	codes := []string{sender.Code, recipient.Code}
	sort.Strings(codes)
	balances := make(map[string]int64, 2)
	for _, code := range codes {
		balance, err := projection.LockBalanceTx(ctx, tx, code, transfer.Currency)
		if err != nil {
			return Transfer{}, err
		}
		balances[code] = balance
	}

	if balances[sender.Code] < transfer.Amount {
		return s.failTx(ctx, tx, sender, recipient, transfer, FailureInsufficientBalance)
	}

	txID, err := s.backend.RecordSettlement(ctx, transfer)
	if err != nil {
		return s.failTx(ctx, tx, sender, recipient, transfer, fmt.Sprintf("settlement backend: %v", err))
	}

	settledAt := time.Now().UTC()
	transfer.Status = StatusSettled
	transfer.SettlementLayer = s.backend.Name()
	transfer.SettlementTxID = txID
	transfer.SettledAt = &settledAt

	if err := insertTransferTx(ctx, tx, sender, recipient, transfer); err != nil {
		return Transfer{}, err
	}

	debit := ledger.Entry{
		TransferID:      transfer.ID,
		InstitutionID:   sender.Code,
		AccountRef:      sender.Wallet.PseudonymousID,
		CounterpartyRef: recipient.Wallet.PseudonymousID,
		Type:            ledger.EntryTypeTransfer,
		Side:            ledger.SideDebit,
		Currency:        transfer.Currency,
		Amount:          transfer.Amount,
		Description:     "Outgoing institutional transfer",
	}
	credit := ledger.Entry{
		TransferID:      transfer.ID,
		InstitutionID:   recipient.Code,
		AccountRef:      recipient.Wallet.PseudonymousID,
		CounterpartyRef: sender.Wallet.PseudonymousID,
		Type:            ledger.EntryTypeTransfer,
		Side:            ledger.SideCredit,
		Currency:        transfer.Currency,
		Amount:          transfer.Amount,
		Description:     "Incoming institutional transfer",
	}
	if _, err := ledger.AppendTx(ctx, tx, []ledger.Entry{debit, credit}); err != nil {
		return Transfer{}, err
	}
	if _, err := projection.ApplyTx(ctx, tx, debit); err != nil {
		return Transfer{}, err
	}
	if _, err := projection.ApplyTx(ctx, tx, credit); err != nil {
		return Transfer{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO settlement_events (transfer_id, settlement_layer, settlement_tx_id, status, settled_at)
        VALUES ($1, $2, $3, 'recorded', $4)`,
		transfer.ID, transfer.SettlementLayer, txID, settledAt); err != nil {
		return Transfer{}, err
	}
	if _, err := outbox.AppendTx(ctx, tx, "transfer.settled", transferPayload(transfer, sender, recipient)); err != nil {
		return Transfer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// failTx persists the terminal failed transfer and its outbox event, then
// commits. Nothing else in the unit has been written at this point.
func (s *PostgresStore) failTx(ctx context.Context, tx pgx.Tx, sender, recipient directory.Institution, transfer Transfer, reason string) (Transfer, error) {
	transfer.Status = StatusFailed
	transfer.FailureReason = reason
	if err := insertTransferTx(ctx, tx, sender, recipient, transfer); err != nil {
		return Transfer{}, err
	}
	if _, err := outbox.AppendTx(ctx, tx, "transfer.failed", transferPayload(transfer, sender, recipient)); err != nil {
		return Transfer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

func insertTransferTx(ctx context.Context, tx pgx.Tx, sender, recipient directory.Institution, t Transfer) error {
	_, err := tx.Exec(ctx, `INSERT INTO transfers (
            id, sender_institution_id, recipient_institution_id, amount, currency, note,
            status, failure_reason, settlement_layer, settlement_tx_id, submitted_at, settled_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, sender.Code, recipient.Code, t.Amount, t.Currency, nullIfEmpty(t.Note),
		t.Status, nullIfEmpty(t.FailureReason), nullIfEmpty(t.SettlementLayer),
		nullIfEmpty(t.SettlementTxID), t.SubmittedAt, t.SettledAt)
	return err
}

const selectTransferSQL = `SELECT
        id, sender_institution_id, recipient_institution_id, amount, currency,
        COALESCE(note, ''), status, COALESCE(failure_reason, ''),
        COALESCE(settlement_layer, ''), COALESCE(settlement_tx_id, ''),
        submitted_at, settled_at
    FROM transfers`

func (s *PostgresStore) Get(ctx context.Context, id string) (Transfer, error) {
	t, err := scanTransfer(s.db.QueryRow(ctx, selectTransferSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	return t, err
}

func (s *PostgresStore) List(ctx context.Context, query, status string, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, selectTransferSQL+`
        WHERE ($1::text = '' OR status = $1)
        AND ($2::text = '' OR (
            sender_institution_id ILIKE '%' || $2 || '%' OR
            recipient_institution_id ILIKE '%' || $2 || '%' OR
            COALESCE(note, '') ILIKE '%' || $2 || '%' OR
            COALESCE(settlement_tx_id, '') ILIKE '%' || $2 || '%' OR
            EXISTS (SELECT 1 FROM institutions i
                WHERE i.institution_id IN (sender_institution_id, recipient_institution_id)
                AND (i.legal_name ILIKE '%' || $2 || '%' OR i.cvr_number ILIKE '%' || $2 || '%'))))
        ORDER BY submitted_at DESC
        LIMIT $3`, status, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, transfer_id, settlement_layer, settlement_tx_id, status, settled_at
        FROM settlement_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.TransferID, &ev.Layer, &ev.TxID, &ev.Status, &ev.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.SenderCode, &t.RecipientCode, &t.Amount, &t.Currency,
		&t.Note, &t.Status, &t.FailureReason, &t.SettlementLayer, &t.SettlementTxID,
		&t.SubmittedAt, &t.SettledAt)
	return t, err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
