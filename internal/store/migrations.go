package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all carbonshift tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS steps (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT '',
		state                TEXT NOT NULL DEFAULT 'PENDING',
		patience_ns          INTEGER NOT NULL,
		expected_duration_ns INTEGER NOT NULL,
		latitude             REAL NOT NULL,
		longitude            REAL NOT NULL,
		optimization_metric  TEXT NOT NULL DEFAULT '',
		recommended_start    TEXT,
		wake_at              TEXT,
		output               TEXT,
		error_code           TEXT NOT NULL DEFAULT '',
		error_message        TEXT NOT NULL DEFAULT '',
		labels               TEXT NOT NULL DEFAULT '{}',
		created_at           TEXT NOT NULL,
		evaluated_at         TEXT,
		completed_at         TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_steps_state ON steps(state)`,
	// Compound index for the due-wake-up scan (state + wake_at).
	`CREATE INDEX IF NOT EXISTS idx_steps_state_wake_at ON steps(state, wake_at)`,
	`CREATE INDEX IF NOT EXISTS idx_steps_created_at ON steps(created_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
