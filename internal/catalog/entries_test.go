package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetEntry(t *testing.T) {
	db := newTestDB(t)

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	importID := "run-1"
	entry := &Entry{
		StorageRoot:   "/volume1/photos",
		Directory:     "2024/June",
		Filename:      "IMG_0412.CR2",
		Extension:     ".CR2",
		MediaType:     "raw_image",
		ContentHash:   "abc123",
		HashAlgorithm: "blake3",
		Size:          2048,
		Created:       created,
		Metadata:      map[string]string{"camera": "EOS R5"},
		ImportID:      &importID,
	}

	tx, err := db.BeginTx()
	require.NoError(t, err)
	require.NoError(t, InsertEntryTx(tx, entry))
	require.NoError(t, tx.Commit())

	got, err := db.GetEntryByID(entry.ID)
	require.NoError(t, err)

	assert.Equal(t, "/volume1/photos", got.StorageRoot)
	assert.Equal(t, "2024/June", got.Directory)
	assert.Equal(t, "IMG_0412.CR2", got.Filename)
	assert.Equal(t, "raw_image", got.MediaType)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Equal(t, "blake3", got.HashAlgorithm)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, created.Unix(), got.Created.Unix())
	assert.True(t, got.IsOriginal)
	assert.Nil(t, got.OriginID)
	assert.True(t, got.IsFinal)
	assert.Equal(t, map[string]string{"camera": "EOS R5"}, got.Metadata)
	require.NotNil(t, got.ImportID)
	assert.Equal(t, "run-1", *got.ImportID)
	assert.Nil(t, got.DeletedAt)
}

func TestInsertDerivesIsOriginalFromOriginID(t *testing.T) {
	db := newTestDB(t)

	parent := insertTestEntry(t, db, "A.CR2", "hash-a", nil)
	child := insertTestEntry(t, db, "A.jpg", "hash-b", &parent.ID)

	got, err := db.GetEntryByID(child.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOriginal)
	require.NotNil(t, got.OriginID)
	assert.Equal(t, parent.ID, *got.OriginID)
}

func TestInsertDuplicateContentHash(t *testing.T) {
	db := newTestDB(t)
	insertTestEntry(t, db, "a.jpg", "samehash", nil)

	dup := &Entry{
		StorageRoot:   "/volume1/photos",
		Directory:     "other",
		Filename:      "b.jpg",
		Extension:     ".jpg",
		MediaType:     "jpeg",
		ContentHash:   "samehash",
		HashAlgorithm: "blake3",
		Created:       time.Now(),
	}

	tx, err := db.BeginTx()
	require.NoError(t, err)
	err = InsertEntryTx(tx, dup)
	tx.Rollback()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateContent)
}

func TestGetEntryByHash(t *testing.T) {
	db := newTestDB(t)
	inserted := insertTestEntry(t, db, "a.jpg", "findme", nil)

	got, err := db.GetEntryByHash("findme")
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, got.ID)

	_, err = db.GetEntryByHash("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGetEntryByIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetEntryByID(404)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGetIDsByHashes(t *testing.T) {
	db := newTestDB(t)
	a := insertTestEntry(t, db, "a.jpg", "hash-a", nil)
	b := insertTestEntry(t, db, "b.jpg", "hash-b", nil)

	found, err := db.GetIDsByHashes(context.Background(), []string{"hash-a", "hash-b", "hash-missing"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"hash-a": a.ID, "hash-b": b.ID}, found)
}

func TestExistingHashesIncludesSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	kept := insertTestEntry(t, db, "a.jpg", "hash-a", nil)
	gone := insertTestEntry(t, db, "b.jpg", "hash-b", nil)
	require.NoError(t, db.SoftDeleteEntry(context.Background(), gone.ID))

	hashes, err := db.ExistingHashes(context.Background())
	require.NoError(t, err)

	// A soft-deleted file's content is still cataloged content
	assert.Equal(t, map[string]int64{"hash-a": kept.ID, "hash-b": gone.ID}, hashes)
}

func TestFindParentCandidates(t *testing.T) {
	db := newTestDB(t)
	raw := insertTestEntry(t, db, "IMG_0412.CR2", "hash-raw", nil)
	insertTestEntry(t, db, "IMG_0412.jpg", "hash-jpg", nil)

	// Prefix matching is loose: numbered suffixes and longer names are
	// returned too, and the caller filters by base-name semantics
	insertTestEntry(t, db, "IMG_0412_001.CR2", "hash-suffix", nil)
	insertTestEntry(t, db, "IMG_04123.CR2", "hash-other", nil)

	// The underscore must be treated literally, not as a LIKE wildcard
	insertTestEntry(t, db, "IMGX0412.CR2", "hash-wildcard", nil)

	deleted := insertTestEntry(t, db, "IMG_0412.dng", "hash-deleted", nil)
	require.NoError(t, db.SoftDeleteEntry(context.Background(), deleted.ID))

	candidates, err := db.FindParentCandidates(context.Background(), "/volume1/photos", "2024", "IMG_0412")
	require.NoError(t, err)

	var names []string
	for _, c := range candidates {
		names = append(names, c.Filename)
	}
	assert.Equal(t, []string{"IMG_0412.CR2", "IMG_0412.jpg", "IMG_04123.CR2", "IMG_0412_001.CR2"}, names)
	assert.Equal(t, raw.ID, candidates[0].ID)
}

func TestListEntriesFilters(t *testing.T) {
	db := newTestDB(t)
	parent := insertTestEntry(t, db, "a.CR2", "hash-a", nil)
	insertTestEntry(t, db, "a.jpg", "hash-b", &parent.ID)
	deleted := insertTestEntry(t, db, "c.jpg", "hash-c", nil)
	require.NoError(t, db.SoftDeleteEntry(context.Background(), deleted.ID))

	// Deleted entries are excluded by default
	entries, total, err := db.ListEntries(context.Background(), EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, entries, 2)

	entries, total, err = db.ListEntries(context.Background(), EntryFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, entries, 3)

	isOriginal := true
	entries, _, err = db.ListEntries(context.Background(), EntryFilter{IsOriginal: &isOriginal})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, parent.ID, entries[0].ID)

	entries, total, err = db.ListEntries(context.Background(), EntryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, entries, 1)

	entries, _, err = db.ListEntries(context.Background(), EntryFilter{Filename: "a.jpg"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jpg", entries[0].Filename)
}

func TestUpdateThumbnailPaths(t *testing.T) {
	db := newTestDB(t)
	a := insertTestEntry(t, db, "a.jpg", "hash-a", nil)
	b := insertTestEntry(t, db, "b.jpg", "hash-b", nil)

	require.NoError(t, db.UpdateThumbnailPaths(context.Background(), map[int64]string{
		a.ID: "/thumbs/a.webp",
		b.ID: "/thumbs/b.webp",
	}))

	got, err := db.GetEntryByID(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ThumbnailPath)
	assert.Equal(t, "/thumbs/a.webp", *got.ThumbnailPath)

	// Empty batch is a no-op
	require.NoError(t, db.UpdateThumbnailPaths(context.Background(), nil))
}

func TestImportRunLifecycle(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.CreateImportRun("run-42"))
	require.NoError(t, db.CompleteImportRun("run-42", "completed", 3, 1, 2, 0))

	var status string
	var inserted, skippedCatalog, skippedBatch, errorCount int
	var completedAt sql.NullInt64
	err := db.Conn().QueryRow(`
		SELECT status, inserted, skipped_catalog, skipped_batch, error_count, completed_at
		FROM imports WHERE id = ?`, "run-42").
		Scan(&status, &inserted, &skippedCatalog, &skippedBatch, &errorCount, &completedAt)
	require.NoError(t, err)

	assert.Equal(t, "completed", status)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 1, skippedCatalog)
	assert.Equal(t, 2, skippedBatch)
	assert.Zero(t, errorCount)
	assert.True(t, completedAt.Valid)
}

func TestBuildInClause(t *testing.T) {
	assert.Equal(t, "", buildInClause(0))
	assert.Equal(t, "?", buildInClause(1))
	assert.Equal(t, "?,?,?", buildInClause(3))
}
