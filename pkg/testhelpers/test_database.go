package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/floroz/gavel-auctioneer/migrations"
	"github.com/floroz/gavel-auctioneer/pkg/database"
)

// TestDatabase is a migrated Postgres running in a container
type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDatabase starts Postgres, applies the embedded migrations and
// registers cleanup with t.
func NewTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("auctions"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "failed to connect to database")
	require.NoError(t, pool.Ping(ctx), "failed to ping database")

	require.NoError(t, database.Migrate(ctx, pool, migrations.FS), "failed to run migrations")

	td := &TestDatabase{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
	t.Cleanup(td.Close)
	return td
}

// Truncate empties every table so tests sharing a container start clean.
func (td *TestDatabase) Truncate(t *testing.T) {
	t.Helper()
	_, err := td.Pool.Exec(context.Background(), "TRUNCATE processed_events, outbox_events, bids, items, accounts")
	require.NoError(t, err)
}

func (td *TestDatabase) Close() {
	td.Pool.Close()
	// Container shutdown failures must not fail the test
	_ = td.Container.Terminate(context.Background())
}
