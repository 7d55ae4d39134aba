package model

import (
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/username/tradereview/backend/src/database"
)

// setupTestDB opens a migrated sqlite database in a temp dir.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	_, filename, _, _ := runtime.Caller(0)
	migrationsPath := filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db, migrationsPath, dbPath))
	return db
}
