package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestStore(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_CreatesSchema(t *testing.T) {
	db := openTestStore(t)
	require.NoError(t, RunMigrations(db, zaptest.NewLogger(t)))

	var tables []string
	require.NoError(t, db.Select(&tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('workspaces', 'sessions') ORDER BY name`))
	assert.Equal(t, []string{"sessions", "workspaces"}, tables)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := openTestStore(t)
	logger := zaptest.NewLogger(t)

	require.NoError(t, RunMigrations(db, logger))
	require.NoError(t, RunMigrations(db, logger))

	// The shared handle must survive the migrator.
	require.NoError(t, db.PingContext(context.Background()))
}

func TestOpen_EnforcesForeignKeys(t *testing.T) {
	db := openTestStore(t)
	require.NoError(t, RunMigrations(db, zaptest.NewLogger(t)))

	_, err := db.Exec(`INSERT INTO sessions (id, workspace_id, name, created_at, updated_at)
		VALUES ('s1', 'missing', '', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}
