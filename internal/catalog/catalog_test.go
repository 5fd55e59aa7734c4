package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a fresh catalog in a temp directory. A single connection
// keeps PRAGMA changes and write ordering deterministic in tests.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewWithConfig(filepath.Join(t.TempDir(), "catalog.db"), DBConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

// insertTestEntry inserts an entry in its own transaction and returns it with
// the assigned ID
func insertTestEntry(t *testing.T, db *DB, filename, hash string, originID *int64) *Entry {
	t.Helper()

	entry := &Entry{
		StorageRoot:   "/volume1/photos",
		Directory:     "2024",
		Filename:      filename,
		Extension:     filepath.Ext(filename),
		MediaType:     "jpeg",
		ContentHash:   hash,
		HashAlgorithm: "blake3",
		Size:          int64(len(hash)),
		Created:       time.Now(),
		OriginID:      originID,
	}

	tx, err := db.BeginTx()
	require.NoError(t, err)
	require.NoError(t, InsertEntryTx(tx, entry))
	require.NoError(t, tx.Commit())
	require.NotZero(t, entry.ID)

	return entry
}
