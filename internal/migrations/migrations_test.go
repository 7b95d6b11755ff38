package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func migrationsPath(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs("../..")
	require.NoError(t, err)
	return filepath.Join(root, "migrations")
}

func TestRunMigrations(t *testing.T) {
	db := getTestDB(t)

	require.NoError(t, Run(db, migrationsPath(t)))

	for _, table := range []string{
		"users", "admin_users", "plans", "settings", "accounts", "transactions",
		"payment_methods", "payment_transactions", "payment_confirmations",
		"campaigns", "audit_logs", "sessions", "trial_notifications",
	} {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		require.Truef(t, exists, "table %s should exist", table)
	}

	var limits string
	err := db.QueryRow(`SELECT value::text FROM settings WHERE key = 'plan_limits:basic'`).Scan(&limits)
	require.NoError(t, err)
	require.JSONEq(t, `{"maxAccounts": 5, "maxTransactions": 100}`, limits)

	var methods int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM payment_methods`).Scan(&methods))
	require.Equal(t, 4, methods)
}

func TestMigrationIdempotency(t *testing.T) {
	db := getTestDB(t)
	path := migrationsPath(t)

	require.NoError(t, Run(db, path))
	require.NoError(t, Run(db, path))

	var plans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM plans`).Scan(&plans))
	require.Equal(t, 3, plans)
}

func TestRun_BadPath(t *testing.T) {
	db := getTestDB(t)
	require.Error(t, Run(db, filepath.Join(t.TempDir(), "missing")))
}
