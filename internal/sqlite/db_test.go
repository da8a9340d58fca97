package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a migrated in-memory database closed with the test.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, db.RunMigrations(), "failed to run migrations")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrations_CreateJournalTables(t *testing.T) {
	db := NewTestDB(t)

	for _, table := range []string{"activity_log", "final_transitions"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}
	require.NoError(t, db.RunMigrations(), "migrations are idempotent")
}

func TestFinalsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reelwatch.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	fresh, err := NewFinalRepository(db).MarkFinal(ctx, "p1", "a1", "https://cdn/final.mp4")
	require.NoError(t, err)
	require.True(t, fresh)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations())
	fresh, err = NewFinalRepository(db).MarkFinal(ctx, "p1", "a1", "https://cdn/final.mp4")
	require.NoError(t, err)
	require.False(t, fresh, "a restarted process must not announce the same final again")
}
