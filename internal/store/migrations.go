package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const directorySchema = `
CREATE TABLE IF NOT EXISTS banking_directories (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    name VARCHAR(90),
    provider_name VARCHAR(255) NOT NULL,
    encrypted_credentials TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_banking_directories_user_id ON banking_directories (user_id);
`

// Migrate creates the directory schema when it does not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, directorySchema); err != nil {
		return fmt.Errorf("failed to apply directory schema: %w", err)
	}
	return nil
}
