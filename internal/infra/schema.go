package infra

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the relational schema if it does not exist yet. The
// statements are idempotent, so running this on every startup is safe.
//
// TRUNCATE on balances during replay bypasses row triggers by design, which
// is why the immutability triggers only guard ledger_entries and
// settlement_events.
func ApplySchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
