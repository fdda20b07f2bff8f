package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"payments/internal/repository"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Schema creates the tables used by the repositories. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS payment_instruments (
	id          TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_events (
	seq                 BIGSERIAL,
	id                  TEXT PRIMARY KEY,
	parent_id           TEXT REFERENCES payment_events (id),
	reference_id        TEXT NOT NULL,
	type                TEXT NOT NULL,
	status              TEXT NOT NULL,
	amount              NUMERIC(20, 4) NOT NULL,
	currency            CHAR(3) NOT NULL,
	instrument_id       TEXT NOT NULL,
	original_instrument BOOLEAN NOT NULL DEFAULT FALSE,
	planned_steps       INTEGER NOT NULL DEFAULT 0,
	provider_ref        TEXT NOT NULL DEFAULT '',
	message             TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_events_reference_id ON payment_events (reference_id, created_at);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// translateError maps driver errors onto repository errors.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateID, pqErr.Detail)
	}
	return err
}
