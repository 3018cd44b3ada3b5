package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "migrate-test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateAppliesAll(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, Migrate(database, nil))

	// Tables exist after migration
	for _, table := range []string{"schema_migrations", "queue_items", "matches"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, Migrate(database, nil))
	require.NoError(t, Migrate(database, nil))

	var count int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestInflightUniqueIndex(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, Migrate(database, nil))

	insert := `INSERT INTO queue_items
		(id, item_type, stage, status, tracking_id, source_key, created_at, updated_at)
		VALUES (?, 'job', 'scrape', ?, 'trk-1', 'https://example.com/a', datetime('now'), datetime('now'))`

	_, err := database.Exec(insert, "item-1", "pending")
	require.NoError(t, err)

	// Second in-flight row for the same (tracking_id, source_key) must fail
	_, err = database.Exec(insert, "item-2", "processing")
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err))

	// A terminal row for the same pair is allowed
	_, err = database.Exec(insert, "item-3", "success")
	assert.NoError(t, err)
}
