package catalog

import "errors"

// ErrEntryNotFound is returned when a lookup targets a nonexistent entry
var ErrEntryNotFound = errors.New("catalog entry not found")

// ErrInvariantViolation signals a state where is_original, origin_id and
// is_final disagree with each other, or where the origin relation is not a
// forest. It is fatal to the operation that produced it and is never
// silently corrected by later reads.
var ErrInvariantViolation = errors.New("provenance invariant violation")

// ErrDuplicateContent is returned when an insert collides with the unique
// content_hash constraint. Duplicate content is a normal, reportable dedup
// outcome rather than a failure of the batch.
var ErrDuplicateContent = errors.New("duplicate content hash")
