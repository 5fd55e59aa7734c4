package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"mediacat/internal/constants"
)

// Entry represents one catalog row: a single physical file ever seen.
// The logical location triple (StorageRoot, Directory, Filename) is stored
// as three columns and never recomputed from a concatenated path.
type Entry struct {
	ID            int64
	StorageRoot   string
	Directory     string
	Filename      string
	Extension     string
	MediaType     string
	ContentHash   string
	HashAlgorithm string
	Size          int64
	Created       time.Time
	IsOriginal    bool
	OriginID      *int64 // nil means this entry is an original
	IsFinal       bool
	Metadata      map[string]string
	ThumbnailPath *string
	ImportID      *string
	DeletedAt     *time.Time
	CreatedAt     time.Time
}

const entryColumns = `id, storage_root, directory, filename, extension, media_type,
	content_hash, hash_algorithm, size, created, is_original, origin_id, is_final,
	metadata, thumbnail_path, import_id, deleted_at, created_at`

// scanEntryRow scans a single media row from a query result
func scanEntryRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*Entry, error) {
	entry := &Entry{}
	var created, createdAt int64
	var originID sql.NullInt64
	var metadata, thumbnailPath, importID sql.NullString
	var deletedAt sql.NullInt64

	err := scanner.Scan(
		&entry.ID,
		&entry.StorageRoot,
		&entry.Directory,
		&entry.Filename,
		&entry.Extension,
		&entry.MediaType,
		&entry.ContentHash,
		&entry.HashAlgorithm,
		&entry.Size,
		&created,
		&entry.IsOriginal,
		&originID,
		&entry.IsFinal,
		&metadata,
		&thumbnailPath,
		&importID,
		&deletedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Created = time.Unix(created, 0)
	entry.CreatedAt = time.Unix(createdAt, 0)

	if originID.Valid {
		entry.OriginID = &originID.Int64
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for entry %d: %w", entry.ID, err)
		}
	}
	if thumbnailPath.Valid {
		entry.ThumbnailPath = &thumbnailPath.String
	}
	if importID.Valid {
		entry.ImportID = &importID.String
	}
	if deletedAt.Valid {
		t := time.Unix(deletedAt.Int64, 0)
		entry.DeletedAt = &t
	}

	return entry, nil
}

// buildInClause builds a placeholder list like "?,?,?" for IN queries
func buildInClause(count int) string {
	if count == 0 {
		return ""
	}
	return strings.Repeat("?,", count-1) + "?"
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// InsertEntryTx inserts a new entry inside an existing transaction and
// assigns its catalog ID. is_original is derived from OriginID so the two
// can never be stored inconsistently. A content hash collision surfaces as
// ErrDuplicateContent.
func InsertEntryTx(tx *sql.Tx, entry *Entry) error {
	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(encoded), Valid: true}
	}

	var originID sql.NullInt64
	if entry.OriginID != nil {
		originID = sql.NullInt64{Int64: *entry.OriginID, Valid: true}
	}
	entry.IsOriginal = entry.OriginID == nil

	var importID sql.NullString
	if entry.ImportID != nil {
		importID = sql.NullString{String: *entry.ImportID, Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO media (storage_root, directory, filename, extension, media_type,
			content_hash, hash_algorithm, size, created, is_original, origin_id,
			is_final, metadata, import_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		entry.StorageRoot,
		entry.Directory,
		entry.Filename,
		entry.Extension,
		entry.MediaType,
		entry.ContentHash,
		entry.HashAlgorithm,
		entry.Size,
		entry.Created.Unix(),
		entry.IsOriginal,
		originID,
		metadata,
		importID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateContent, entry.ContentHash)
		}
		return fmt.Errorf("failed to insert entry %s: %w", entry.Filename, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}
	entry.ID = id
	entry.IsFinal = true

	return nil
}

// GetEntryByID retrieves a single entry by catalog ID
func (db *DB) GetEntryByID(id int64) (*Entry, error) {
	row := db.conn.QueryRow(`SELECT `+entryColumns+` FROM media WHERE id = ?`, id)
	entry, err := scanEntryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return entry, nil
}

// GetEntryByHash retrieves a single entry by content hash
func (db *DB) GetEntryByHash(hash string) (*Entry, error) {
	row := db.conn.QueryRow(`SELECT `+entryColumns+` FROM media WHERE content_hash = ?`, hash)
	entry, err := scanEntryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hash %s", ErrEntryNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by hash: %w", err)
	}
	return entry, nil
}

// GetIDsByHashes returns a hash -> id map for every given hash already in the
// catalog. Lookups are chunked to stay under SQLite's parameter limit.
func (db *DB) GetIDsByHashes(ctx context.Context, hashes []string) (map[string]int64, error) {
	found := make(map[string]int64, len(hashes))

	for start := 0; start < len(hashes); start += constants.HashLookupChunkSize {
		end := start + constants.HashLookupChunkSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		args := make([]interface{}, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		query := `SELECT content_hash, id FROM media WHERE content_hash IN (` + buildInClause(len(chunk)) + `)`
		rows, err := db.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up hashes: %w", err)
		}

		for rows.Next() {
			var hash string
			var id int64
			if err := rows.Scan(&hash, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan hash row: %w", err)
			}
			found[hash] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to iterate hash rows: %w", err)
		}
		rows.Close()
	}

	return found, nil
}

// ExistingHashes returns every content hash in the catalog mapped to its
// entry ID. Soft-deleted rows are included: their content is still cataloged.
func (db *DB) ExistingHashes(ctx context.Context) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT content_hash, id FROM media`)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]int64)
	for rows.Next() {
		var hash string
		var id int64
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("failed to scan hash row: %w", err)
		}
		hashes[hash] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hashes: %w", err)
	}

	return hashes, nil
}

// escapeLike escapes LIKE wildcards in a literal string
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// FindParentCandidates returns active entries in the given directory whose
// filename starts with baseName. The prefix match is deliberately loose
// (IMG_0412 also matches IMG_04123.jpg and IMG_0412_001.CR2); the caller
// filters by exact base-name semantics and decides which candidate, if any,
// is a usable parent.
func (db *DB) FindParentCandidates(ctx context.Context, storageRoot, directory, baseName string) ([]*Entry, error) {
	pattern := escapeLike(baseName) + `%`
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM media
		WHERE storage_root = ? AND directory = ? AND filename LIKE ? ESCAPE '\'
			AND deleted_at IS NULL
		ORDER BY filename`,
		storageRoot, directory, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to find parent candidates: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	return entries, nil
}

// EntryFilter selects entries for ListEntries. Nil pointer fields are not
// filtered on.
type EntryFilter struct {
	IsOriginal     *bool
	IsFinal        *bool
	ContentHash    string
	StorageRoot    string
	Directory      string
	Filename       string
	ImportID       string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ListEntries returns entries matching the filter plus the total match count
func (db *DB) ListEntries(ctx context.Context, filter EntryFilter) ([]*Entry, int, error) {
	var conditions []string
	var args []interface{}

	if filter.IsOriginal != nil {
		conditions = append(conditions, "is_original = ?")
		args = append(args, *filter.IsOriginal)
	}
	if filter.IsFinal != nil {
		conditions = append(conditions, "is_final = ?")
		args = append(args, *filter.IsFinal)
	}
	if filter.ContentHash != "" {
		conditions = append(conditions, "content_hash = ?")
		args = append(args, filter.ContentHash)
	}
	if filter.StorageRoot != "" {
		conditions = append(conditions, "storage_root = ?")
		args = append(args, filter.StorageRoot)
	}
	if filter.Directory != "" {
		conditions = append(conditions, "directory = ?")
		args = append(args, filter.Directory)
	}
	if filter.Filename != "" {
		conditions = append(conditions, "filename = ?")
		args = append(args, filter.Filename)
	}
	if filter.ImportID != "" {
		conditions = append(conditions, "import_id = ?")
		args = append(args, filter.ImportID)
	}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM media` + where + ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, total, nil
}

// UpdateThumbnailPaths records generated artifact paths as a single batched
// update. Callers must confirm the artifact exists on disk before its path
// reaches this method.
func (db *DB) UpdateThumbnailPaths(ctx context.Context, thumbnails map[int64]string) error {
	if len(thumbnails) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin thumbnail update: %w", err)
	}

	stmt, err := tx.Prepare(`UPDATE media SET thumbnail_path = ? WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare thumbnail update: %w", err)
	}

	for id, path := range thumbnails {
		if _, err := stmt.Exec(path, id); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to record thumbnail for entry %d: %w", id, err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thumbnail update: %w", err)
	}

	return nil
}

// CreateImportRun records the start of a batch import
func (db *DB) CreateImportRun(id string) error {
	_, err := db.conn.Exec(`
		INSERT INTO imports (id, started_at, status)
		VALUES (?, ?, 'running')`,
		id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	return nil
}

// CompleteImportRun records the outcome of a batch import
func (db *DB) CompleteImportRun(id, status string, inserted, skippedCatalog, skippedBatch, errorCount int) error {
	_, err := db.conn.Exec(`
		UPDATE imports
		SET completed_at = ?, status = ?, inserted = ?, skipped_catalog = ?,
			skipped_batch = ?, error_count = ?
		WHERE id = ?`,
		time.Now().Unix(), status, inserted, skippedCatalog, skippedBatch, errorCount, id)
	if err != nil {
		return fmt.Errorf("failed to complete import run: %w", err)
	}
	return nil
}
