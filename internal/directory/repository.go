package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the institution code is unknown.
	ErrNotFound = errors.New("institution not found")

	// ErrCVRExists indicates a duplicate registration number.
	ErrCVRExists = errors.New("institution with this CVR already exists")

	// ErrCodeExists indicates a clash on the public institution code.
	ErrCodeExists = errors.New("institution id already exists")
)

// Repository persists institutions, wallets and the governance audit log.
// Mutating calls append the given AdminAction in the same atomic unit.
type Repository interface {
	Create(ctx context.Context, inst Institution, action AdminAction) (Institution, error)
	GetByCode(ctx context.Context, code string) (Institution, error)
	List(ctx context.Context, query, status string, limit int) ([]Institution, error)
	SetStatus(ctx context.Context, code, status string, action AdminAction) (Institution, error)
	SetFrozen(ctx context.Context, code string, frozen bool, action AdminAction) (Institution, error)
	AppendAction(ctx context.Context, action AdminAction) error
	ListActions(ctx context.Context, limit int) ([]AdminAction, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed directory repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectInstitutionSQL = `SELECT
        i.institution_id, i.legal_name, i.cvr_number, i.country, i.status, i.created_at,
        w.wallet_address, w.pseudonymous_id, w.is_frozen
    FROM institutions i
    JOIN wallets w ON w.institution_id = i.institution_id`

func scanInstitution(row pgx.Row) (Institution, error) {
	var inst Institution
	err := row.Scan(&inst.Code, &inst.LegalName, &inst.CVRNumber, &inst.Country,
		&inst.Status, &inst.CreatedAt,
		&inst.Wallet.Address, &inst.Wallet.PseudonymousID, &inst.Wallet.IsFrozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return Institution{}, ErrNotFound
	}
	return inst, err
}

// Create inserts the institution, its wallet and the onboarding audit record
// in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, inst Institution, action AdminAction) (Institution, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Institution{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM institutions WHERE cvr_number = $1)`, inst.CVRNumber).Scan(&exists); err != nil {
		return Institution{}, err
	}
	if exists {
		return Institution{}, ErrCVRExists
	}
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM institutions WHERE institution_id = $1)`, inst.Code).Scan(&exists); err != nil {
		return Institution{}, err
	}
	if exists {
		return Institution{}, ErrCodeExists
	}

	if _, err := tx.Exec(ctx, `INSERT INTO institutions (institution_id, legal_name, cvr_number, country, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		inst.Code, inst.LegalName, inst.CVRNumber, inst.Country, inst.Status, inst.CreatedAt); err != nil {
		return Institution{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO wallets (institution_id, wallet_address, pseudonymous_id, is_frozen)
        VALUES ($1, $2, $3, $4)`,
		inst.Code, inst.Wallet.Address, inst.Wallet.PseudonymousID, inst.Wallet.IsFrozen); err != nil {
		return Institution{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO balances (institution_id, currency, available_balance)
        VALUES ($1, 'EUR', 0) ON CONFLICT (institution_id, currency) DO NOTHING`, inst.Code); err != nil {
		return Institution{}, err
	}
	if err := appendActionTx(ctx, tx, action); err != nil {
		return Institution{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Institution{}, err
	}
	return inst, nil
}

// GetByCode fetches an institution with its wallet.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (Institution, error) {
	return scanInstitution(r.db.QueryRow(ctx, selectInstitutionSQL+` WHERE i.institution_id = $1`, code))
}

// List searches institutions by name, CVR or code with an optional status
// filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, query, status string, limit int) ([]Institution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, selectInstitutionSQL+`
        WHERE ($1::text = '' OR (
            i.legal_name ILIKE '%' || $1 || '%' OR
            i.cvr_number ILIKE '%' || $1 || '%' OR
            i.institution_id ILIKE '%' || $1 || '%'))
        AND ($2::text = '' OR i.status = $2)
        ORDER BY i.created_at DESC
        LIMIT $3`, strings.TrimSpace(query), status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SetStatus updates the lifecycle status and logs the action atomically.
func (r *PostgresRepository) SetStatus(ctx context.Context, code, status string, action AdminAction) (Institution, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Institution{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE institutions SET status = $2 WHERE institution_id = $1`, code, status)
	if err != nil {
		return Institution{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Institution{}, ErrNotFound
	}
	if err := appendActionTx(ctx, tx, action); err != nil {
		return Institution{}, err
	}
	inst, err := scanInstitution(tx.QueryRow(ctx, selectInstitutionSQL+` WHERE i.institution_id = $1`, code))
	if err != nil {
		return Institution{}, err
	}
	return inst, tx.Commit(ctx)
}

// SetFrozen updates the wallet freeze flag and logs the action atomically.
func (r *PostgresRepository) SetFrozen(ctx context.Context, code string, frozen bool, action AdminAction) (Institution, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Institution{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE wallets SET is_frozen = $2 WHERE institution_id = $1`, code, frozen)
	if err != nil {
		return Institution{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Institution{}, ErrNotFound
	}
	if err := appendActionTx(ctx, tx, action); err != nil {
		return Institution{}, err
	}
	inst, err := scanInstitution(tx.QueryRow(ctx, selectInstitutionSQL+` WHERE i.institution_id = $1`, code))
	if err != nil {
		return Institution{}, err
	}
	return inst, tx.Commit(ctx)
}

// AppendAction records an audit entry outside of a governance mutation.
func (r *PostgresRepository) AppendAction(ctx context.Context, action AdminAction) error {
	metadata, err := json.Marshal(action.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO admin_actions (action_type, actor, target_institution_id, reason, metadata)
        VALUES ($1, $2, $3, $4, $5::jsonb)`,
		action.ActionType, action.Actor, nullableCode(action.TargetCode), action.Reason, metadata)
	return err
}

// ListActions returns the audit log, newest first.
func (r *PostgresRepository) ListActions(ctx context.Context, limit int) ([]AdminAction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `SELECT id, action_type, actor, COALESCE(target_institution_id, ''), reason, metadata, created_at
        FROM admin_actions ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdminAction
	for rows.Next() {
		var a AdminAction
		var metadata []byte
		if err := rows.Scan(&a.ID, &a.ActionType, &a.Actor, &a.TargetCode, &a.Reason, &metadata, &a.Timestamp); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func appendActionTx(ctx context.Context, tx pgx.Tx, action AdminAction) error {
	metadata, err := json.Marshal(action.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO admin_actions (action_type, actor, target_institution_id, reason, metadata)
        VALUES ($1, $2, $3, $4, $5::jsonb)`,
		action.ActionType, action.Actor, nullableCode(action.TargetCode), action.Reason, metadata)
	return err
}

func nullableCode(code string) any {
	if code == "" {
		return nil
	}
	return code
}
