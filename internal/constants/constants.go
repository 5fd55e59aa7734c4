package constants

// Hashing constants
const (
	// DefaultHashAlgorithm is the content fingerprint algorithm used for new entries
	DefaultHashAlgorithm = "blake3"

	// DefaultHashBufferSize is the read buffer size for full-file hashing (4MB)
	DefaultHashBufferSize = 4 * 1024 * 1024

	// LargeFileCacheThreshold is the size above which page cache is released after hashing (1GB)
	LargeFileCacheThreshold = 1024 * 1024 * 1024
)

// Import constants
const (
	// DefaultImportWorkers is the default number of concurrent hashing workers
	DefaultImportWorkers = 4

	// DefaultImportBufferSize is the default channel buffer size for the hashing pool
	DefaultImportBufferSize = 100

	// HashLookupChunkSize is the maximum number of hashes per IN clause when
	// checking the catalog for existing fingerprints
	HashLookupChunkSize = 500

	// OriginUpdateChunkSize is the maximum number of origin assignments applied
	// per batched UPDATE statement
	OriginUpdateChunkSize = 500
)

// Thumbnail worker constants
const (
	// DefaultThumbnailWorkers is the default number of artifact generation workers
	DefaultThumbnailWorkers = 4

	// DefaultThumbnailBufferSize is the task channel buffer for the artifact pool
	DefaultThumbnailBufferSize = 50
)

// Stats constants
const (
	// DefaultStatsCacheTTL is the TTL for cached catalog statistics in seconds
	DefaultStatsCacheTTL = 30
)

// Path resolution constants
const (
	// PathCacheSize is the maximum number of cached path translations
	PathCacheSize = 10000
)

// Error collection constants
const (
	// ErrorSliceCapacity is the initial capacity for per-batch error slices
	ErrorSliceCapacity = 64
)
