// Package storagetest provides migrated throwaway databases for tests.
package storagetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/stretchr/testify/require"
)

// NewSQLite returns a migrated SQLite storage under t.TempDir, closed on cleanup
func NewSQLite(t *testing.T) storage.Storage {
	t.Helper()

	store := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "settlement.db"),
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	t.Cleanup(func() { store.Close() })
	return store
}
