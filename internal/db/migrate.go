package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migrate creates the traces schema if it does not exist yet.
//
// The dedup identity (source_id, correlation_id, endpoint, direction) is
// deliberately not a uniqueness constraint: it only holds within the dedup
// window, which is enforced by the created_at predicate at write time. The
// (correlation_id, timestamp, suffix) constraint is the orthogonal
// exact-duplicate protection.
func Migrate(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS th`,
		`CREATE TABLE IF NOT EXISTS th.traces (
			id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			source_id      TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			timestamp      DOUBLE PRECISION NOT NULL,
			suffix         TEXT NOT NULL,
			direction      TEXT NOT NULL,
			operation      TEXT NOT NULL,
			endpoint       TEXT NOT NULL,
			data           JSONB,
			hostname       TEXT NOT NULL DEFAULT 'unknown',
			raw_line       TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (correlation_id, timestamp, suffix)
		)`,
		`CREATE INDEX IF NOT EXISTS traces_correlation_idx ON th.traces (correlation_id)`,
		`CREATE INDEX IF NOT EXISTS traces_created_at_idx ON th.traces (created_at)`,
		`CREATE INDEX IF NOT EXISTS traces_source_idx ON th.traces (source_id)`,
		`CREATE INDEX IF NOT EXISTS traces_dedup_idx ON th.traces (source_id, correlation_id, endpoint, direction, created_at)`,
	}

	for _, statement := range statements {
		_, err := tx.Exec(ctx, statement)
		if err != nil {
			return fmt.Errorf("migrate traces schema: %w", err)
		}
	}

	return nil
}
