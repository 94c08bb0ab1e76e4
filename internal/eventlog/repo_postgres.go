package eventlog

import (
	"context"
	"database/sql"
)

// PostgresRepo appends deliveries to the webhook_deliveries table.
//
// Assumed table:
//
//	CREATE TABLE webhook_deliveries (
//	    id         UUID PRIMARY KEY,
//	    kind       TEXT NOT NULL,
//	    call_key   VARCHAR(140),
//	    outcome    TEXT NOT NULL,
//	    remote_ip  TEXT,
//	    detail     TEXT,
//	    payload    TEXT,
//	    created_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, d Delivery) error {
	const q = `
INSERT INTO webhook_deliveries (id, kind, call_key, outcome, remote_ip, detail, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.Kind, d.CallKey, d.Outcome, d.RemoteIP, d.Detail, d.Payload, d.CreatedAt,
	)
	return err
}
