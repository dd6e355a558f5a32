package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool with sane defaults for a small service.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the invoices table if needed. Keeping the migration in
// code keeps the service self-contained for docker-compose bootstrap.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS invoices (
	id UUID PRIMARY KEY,
	file_name TEXT NOT NULL,
	vendor JSONB NOT NULL DEFAULT '{}',
	invoice_details JSONB NOT NULL DEFAULT '{}',
	items JSONB NOT NULL DEFAULT '[]',
	total_invoice_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_gst_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	review_needed BOOLEAN NOT NULL DEFAULT FALSE,
	review_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
