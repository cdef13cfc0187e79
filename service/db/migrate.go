package db

import (
	"context"
	"fmt"
)

// createTransactionsTable is the baseline schema from the first deployment.
const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	session_id VARCHAR(255) UNIQUE NOT NULL,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL,
	phone VARCHAR(50) NOT NULL,
	usd_amount DECIMAL(10, 2) NOT NULL,
	token_amount DECIMAL(18, 8) NOT NULL,
	wallet_address VARCHAR(255) NOT NULL,
	status VARCHAR(50) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// additiveColumns holds every nullable column added after the baseline.
// Schema evolution is additive-only: deployments that predate a column pick
// it up here on the next startup, so webhook processing never fails because
// a column is missing.
var additiveColumns = []string{
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS deposit_status VARCHAR(50)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS withdraw_status VARCHAR(50)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS withdraw_tx_id VARCHAR(255)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS webhook_data TEXT`,
}

// Migrate initializes the schema. It is idempotent and is run once at
// service startup (or via `nilax db migrate`), never on the request path.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTransactionsTable); err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}
	for _, stmt := range additiveColumns {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply additive column: %w", err)
		}
	}
	return nil
}
