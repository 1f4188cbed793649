package migrations

import (
	"context"
	"fmt"

	"github.com/confusion-labs/gateway/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251019000001, down_20251019000001)
}

// up_20251019000001 creates the identities table and its lookup indexes.
func up_20251019000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating identities table...")
	_, err := db.NewCreateTable().
		Model((*models.Identity)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_identities_created_at ON identities(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create identities created_at index: %w", err)
	}

	// SQLite cannot add constraints after CREATE TABLE; the repository enforces
	// the same rule for both dialects.
	if IsPostgreSQL(db) {
		_, err = db.ExecContext(ctx, `
			ALTER TABLE identities
			ADD CONSTRAINT identities_auth_path
			CHECK (password_hash IS NOT NULL OR provider_id IS NOT NULL)
		`)
		if err != nil {
			return fmt.Errorf("failed to add identities auth path constraint: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

func down_20251019000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping identities table...")
	_, err := db.NewDropTable().
		Model((*models.Identity)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop identities table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
