// Package pgtest hands Postgres-backed tests a migrated, empty pool.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/storage/postgres"
)

// EnvURL names the variable holding the disposable test database DSN.
const EnvURL = "MEDRESERVE_TEST_DATABASE_URL"

// Pool connects to the test database, migrates it and truncates every table.
// The test is skipped when EnvURL is unset.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skip(EnvURL + " not set")
	}

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{URL: url, MaxConns: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.EnsureSchema(ctx, pool, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE inventory_records, reservations, prescriptions`)
	require.NoError(t, err)
	return pool
}
