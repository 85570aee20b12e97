// Package dbtest opens a migrated Postgres database for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/database"
)

// URLEnv names the variable holding the integration database URL
const URLEnv = "PODJDR_TEST_DATABASE_URL"

// Open returns a migrated database with every table emptied, or skips the
// test when no integration database is configured
func Open(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database integration test")
	}
	url := os.Getenv(URLEnv)
	if url == "" {
		t.Skipf("Skipping database integration test: %s not set", URLEnv)
	}

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE messages, contacts, bot_contacts, shadow_codes, shadow_access, dice_rolls, bots, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}
