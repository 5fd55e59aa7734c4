package catalog

const schema = `
-- Media table: one row per physical file ever seen.
-- content_hash is the dedup identity; the UNIQUE constraint on it is the
-- ultimate guard against duplicate rows, regardless of what the in-memory
-- duplicate checks concluded.
CREATE TABLE IF NOT EXISTS media (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	storage_root TEXT NOT NULL,
	directory TEXT NOT NULL,
	filename TEXT NOT NULL,
	extension TEXT NOT NULL,
	media_type TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	hash_algorithm TEXT NOT NULL DEFAULT 'blake3',
	size INTEGER NOT NULL,
	created INTEGER NOT NULL,
	is_original INTEGER NOT NULL DEFAULT 1,
	origin_id INTEGER REFERENCES media(id),
	is_final INTEGER NOT NULL DEFAULT 1,
	metadata TEXT,
	thumbnail_path TEXT,
	import_id TEXT,
	deleted_at INTEGER,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

-- No triggers maintain is_final. It is updated by explicit statements issued
-- after the origin_id write commits; see provenance.go.

-- Performance indexes for the media table
-- Note: content_hash has a UNIQUE constraint which creates an index automatically
CREATE INDEX IF NOT EXISTS idx_media_origin_id ON media(origin_id);
CREATE INDEX IF NOT EXISTS idx_media_is_final ON media(is_final);
CREATE INDEX IF NOT EXISTS idx_media_is_original ON media(is_original);
CREATE INDEX IF NOT EXISTS idx_media_location ON media(storage_root, directory, filename);
CREATE INDEX IF NOT EXISTS idx_media_deleted_at ON media(deleted_at);
CREATE INDEX IF NOT EXISTS idx_media_import_id ON media(import_id);

-- Import runs table to track batch import history
CREATE TABLE IF NOT EXISTS imports (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	completed_at INTEGER,
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'completed_with_errors', 'failed')),
	inserted INTEGER NOT NULL DEFAULT 0,
	skipped_catalog INTEGER NOT NULL DEFAULT 0,
	skipped_batch INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_imports_started_at ON imports(started_at);
`

// GetSchema returns the full schema DDL
func GetSchema() string {
	return schema
}
