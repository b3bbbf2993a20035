// Package postgres opens the shared connection pool and bootstraps the schema
// used by the Postgres ledger and stores.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Connect parses the DSN, sizes the pool and pings the database.
func Connect(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
	)
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS inventory_records (
	pharmacy_id TEXT NOT NULL,
	medicine_id TEXT NOT NULL,
	id UUID NOT NULL,
	stock INT NOT NULL CHECK (stock >= 0),
	reserved INT NOT NULL DEFAULT 0 CHECK (reserved >= 0),
	price NUMERIC(12, 2) NOT NULL DEFAULT 0,
	low_stock_threshold INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (pharmacy_id, medicine_id),
	CHECK (reserved <= stock)
);

CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	pharmacy_id TEXT NOT NULL,
	items JSONB NOT NULL,
	status TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	prescription_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS prescriptions (
	id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	pharmacy_id TEXT NOT NULL,
	files JSONB NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reviewer_id TEXT NOT NULL DEFAULT '',
	quote JSONB,
	verification JSONB,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(expires_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_reservations_customer ON reservations(customer_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_customer ON prescriptions(customer_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_pharmacy ON prescriptions(pharmacy_id, status);
`

// EnsureSchema creates the tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	logger.Info("database schema ready")
	return nil
}
