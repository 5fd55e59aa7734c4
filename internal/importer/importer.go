// Package importer orchestrates batch imports: hashing, deduplication
// against catalog and batch, relationship linking, and two-phase
// persistence with provenance maintenance.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mediacat/internal/catalog"
	"mediacat/internal/constants"
	"mediacat/internal/hashing"
	"mediacat/internal/linker"
	"mediacat/internal/scanner"
)

// Importer runs deduplicating batch imports against the catalog. Imports
// are single-writer batch jobs: the unique constraint on content_hash is
// the correctness guarantee, the in-memory duplicate checks are an
// optimization on top of it.
type Importer struct {
	db         *catalog.DB
	hasher     *hashing.FileHasher
	workers    int
	bufferSize int
}

// New creates an importer with the given hashing worker count and task
// channel buffer size
func New(db *catalog.DB, hasher *hashing.FileHasher, workers, bufferSize int) *Importer {
	if workers < 1 {
		workers = constants.DefaultImportWorkers
	}
	if bufferSize < 1 {
		bufferSize = constants.DefaultImportBufferSize
	}
	return &Importer{
		db:         db,
		hasher:     hasher,
		workers:    workers,
		bufferSize: bufferSize,
	}
}

// batchContext owns every piece of per-import state. It is created by one
// Import call and discarded at the end; nothing in it outlives the batch.
type batchContext struct {
	importID string
	batch    []scanner.FileCandidate

	hashes   []string // by batch index, "" when hashing failed
	hashErrs []error  // by batch index

	firstSeen   map[string]int   // hash -> first batch index that carries it
	existing    map[string]int64 // catalog hash -> entry id
	survivors   []int            // batch indices that passed dedup, input order
	links       map[int]int      // child batch index -> parent batch index
	assignedIDs map[int]int64    // batch index -> catalog id after persistence

	report *Report
}

// Import runs the full pipeline over the batch. existingHashes is the
// catalog's hash -> id map at the start of the run. Per-file errors are
// collected in the report; a persistence failure aborts and rolls back the
// phase it occurred in.
func (imp *Importer) Import(ctx context.Context, batch []scanner.FileCandidate, existingHashes map[string]int64) (*Report, error) {
	bc := &batchContext{
		importID:    uuid.NewString(),
		batch:       batch,
		firstSeen:   make(map[string]int),
		existing:    existingHashes,
		links:       make(map[int]int),
		assignedIDs: make(map[int]int64),
		report: &Report{
			Errors: make([]FileError, 0, constants.ErrorSliceCapacity),
		},
	}
	bc.report.ImportID = bc.importID

	if err := imp.db.CreateImportRun(bc.importID); err != nil {
		return nil, err
	}

	runErr := imp.run(ctx, bc)
	if runErr != nil {
		if completeErr := imp.db.CompleteImportRun(bc.importID, "failed",
			bc.report.Inserted, bc.report.SkippedDuplicateInCatalog,
			bc.report.SkippedDuplicateInBatch, len(bc.report.Errors)); completeErr != nil {
			return bc.report, errors.Join(runErr, completeErr)
		}
		return bc.report, runErr
	}

	if err := imp.db.CompleteImportRun(bc.importID, bc.report.Status(),
		bc.report.Inserted, bc.report.SkippedDuplicateInCatalog,
		bc.report.SkippedDuplicateInBatch, len(bc.report.Errors)); err != nil {
		return bc.report, err
	}

	return bc.report, nil
}

// run executes the pipeline stages in order
func (imp *Importer) run(ctx context.Context, bc *batchContext) error {
	imp.hashBatch(ctx, bc)
	imp.partition(bc)
	imp.linkSurvivors(bc)

	phase1, phase2 := imp.splitPhases(bc)

	if err := imp.persistPhase1(ctx, bc, phase1); err != nil {
		return err
	}
	if err := imp.persistPhase2(ctx, bc, phase2); err != nil {
		return err
	}

	return nil
}

// hashBatch fingerprints every file concurrently. Results land at the
// file's own batch index, so input order survives the pool.
func (imp *Importer) hashBatch(ctx context.Context, bc *batchContext) {
	bc.hashes = make([]string, len(bc.batch))
	bc.hashErrs = make([]error, len(bc.batch))

	indices := make(chan int, imp.bufferSize)
	var wg sync.WaitGroup

	for w := 0; w < imp.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				hash, err := imp.hasher.HashFile(ctx, bc.batch[i].Path)
				if err != nil {
					bc.hashErrs[i] = err
					continue
				}
				bc.hashes[i] = hash
			}
		}()
	}

	for i := range bc.batch {
		select {
		case <-ctx.Done():
			bc.hashErrs[i] = ctx.Err()
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()
}

// partition classifies every file in input order: hash failure, duplicate
// in catalog, duplicate within the batch (first occurrence wins), or
// survivor. A hash failure is always an error, never a dedup decision.
func (imp *Importer) partition(bc *batchContext) {
	for i, candidate := range bc.batch {
		if bc.hashErrs[i] != nil {
			bc.report.Errors = append(bc.report.Errors, FileError{
				Path:    candidate.Path,
				Message: bc.hashErrs[i].Error(),
			})
			continue
		}

		hash := bc.hashes[i]
		if _, ok := bc.existing[hash]; ok {
			bc.report.SkippedDuplicateInCatalog++
			continue
		}
		if _, ok := bc.firstSeen[hash]; ok {
			bc.report.SkippedDuplicateInBatch++
			continue
		}

		bc.firstSeen[hash] = i
		bc.survivors = append(bc.survivors, i)
	}
}

// linkSurvivors runs the relationship linker over the surviving files and
// translates its sub-indices back to batch indices. Linking sees only the
// in-batch candidate set.
func (imp *Importer) linkSurvivors(bc *batchContext) {
	candidates := make([]linker.Candidate, len(bc.survivors))
	for sub, idx := range bc.survivors {
		c := bc.batch[idx]
		candidates[sub] = linker.Candidate{
			Directory: c.Directory,
			Filename:  c.Filename,
			Extension: c.Extension,
			Timestamp: c.ModTime,
			Metadata:  c.Metadata,
		}
	}

	for childSub, parentSub := range linker.Link(candidates) {
		bc.links[bc.survivors[childSub]] = bc.survivors[parentSub]
	}
}

// splitPhases divides survivors into the set persisted first (no in-batch
// parent) and the set whose parent is also in this batch
func (imp *Importer) splitPhases(bc *batchContext) (phase1, phase2 []int) {
	for _, idx := range bc.survivors {
		if _, hasParent := bc.links[idx]; hasParent {
			phase2 = append(phase2, idx)
		} else {
			phase1 = append(phase1, idx)
		}
	}
	return phase1, phase2
}

// toEntry builds the catalog row for a batch index
func (bc *batchContext) toEntry(idx int, algorithm string) *catalog.Entry {
	c := bc.batch[idx]
	importID := bc.importID
	return &catalog.Entry{
		StorageRoot:   c.StorageRoot,
		Directory:     c.Directory,
		Filename:      c.Filename,
		Extension:     c.Extension,
		MediaType:     c.MediaType,
		ContentHash:   bc.hashes[idx],
		HashAlgorithm: algorithm,
		Size:          c.Size,
		Created:       c.ModTime,
		Metadata:      c.Metadata,
		ImportID:      &importID,
	}
}

// persistPhase1 inserts every file with no in-batch parent in one
// transaction. Derivative-format files whose raw sibling is already in the
// catalog from an earlier batch get their origin set at insert time.
func (imp *Importer) persistPhase1(ctx context.Context, bc *batchContext, phase1 []int) error {
	if len(phase1) == 0 {
		return nil
	}

	// Resolve catalog parents before opening the transaction
	catalogParents := make(map[int]int64)
	for _, idx := range phase1 {
		c := bc.batch[idx]
		if linker.IsRawExtension(c.Extension) {
			continue
		}
		parentID, err := imp.findCatalogParent(ctx, c)
		if err != nil {
			return err
		}
		if parentID != nil {
			catalogParents[idx] = *parentID
		}
	}

	tx, err := imp.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin phase-1 transaction: %w", err)
	}

	var newParentIDs []int64
	for _, idx := range phase1 {
		entry := bc.toEntry(idx, imp.hasher.Algorithm())
		if parentID, ok := catalogParents[idx]; ok {
			entry.OriginID = &parentID
		}

		if err := catalog.InsertEntryTx(tx, entry); err != nil {
			if errors.Is(err, catalog.ErrDuplicateContent) {
				// The unique constraint is the source of truth; count the
				// collision as a catalog duplicate and keep the phase alive
				bc.report.SkippedDuplicateInCatalog++
				continue
			}
			tx.Rollback()
			return fmt.Errorf("phase-1 persistence failed: %w", err)
		}

		bc.assignedIDs[idx] = entry.ID
		bc.report.Inserted++
		if entry.OriginID != nil {
			newParentIDs = append(newParentIDs, *entry.OriginID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit phase 1: %w", err)
	}

	// Finality maintenance runs as its own statements after the commit
	return imp.db.MarkParentsNotFinal(ctx, dedupeIDs(newParentIDs))
}

// findCatalogParent looks for an already-cataloged raw sibling of the
// candidate: same storage root and directory, same base name, raw format.
// The best candidate by extension priority and filename order wins.
func (imp *Importer) findCatalogParent(ctx context.Context, c scanner.FileCandidate) (*int64, error) {
	baseName := linker.BaseName(c.Filename)
	siblings, err := imp.db.FindParentCandidates(ctx, c.StorageRoot, c.Directory, baseName)
	if err != nil {
		return nil, err
	}

	var best *catalog.Entry
	for _, sibling := range siblings {
		// The store's prefix match is loose; require the same grouping key a
		// shared batch would have produced
		if linker.BaseName(sibling.Filename) != baseName {
			continue
		}
		if !linker.IsRawExtension(sibling.Extension) {
			continue
		}
		if best == nil {
			best = sibling
			continue
		}
		br, sr := linker.ExtensionRank(best.Extension), linker.ExtensionRank(sibling.Extension)
		if sr < br || (sr == br && sibling.Filename < best.Filename) {
			best = sibling
		}
	}

	if best == nil {
		return nil, nil
	}
	id := best.ID
	return &id, nil
}

// persistPhase2 inserts the in-batch derivatives without their origin, then
// resolves every origin_id from the ids assigned during persistence as a
// batched update inside the same transaction. The forest never observes a
// reference to a nonexistent row.
func (imp *Importer) persistPhase2(ctx context.Context, bc *batchContext, phase2 []int) error {
	if len(phase2) == 0 {
		return nil
	}

	tx, err := imp.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin phase-2 transaction: %w", err)
	}

	inserted := make([]int, 0, len(phase2))
	for _, idx := range phase2 {
		entry := bc.toEntry(idx, imp.hasher.Algorithm())

		if err := catalog.InsertEntryTx(tx, entry); err != nil {
			if errors.Is(err, catalog.ErrDuplicateContent) {
				bc.report.SkippedDuplicateInCatalog++
				continue
			}
			tx.Rollback()
			return fmt.Errorf("phase-2 persistence failed: %w", err)
		}

		bc.assignedIDs[idx] = entry.ID
		inserted = append(inserted, idx)
	}

	// Map in-batch parent indices to their assigned catalog ids
	assignments := make(map[int64]int64, len(inserted))
	var parentIDs []int64
	for _, idx := range inserted {
		parentIdx := bc.links[idx]
		parentID, ok := bc.assignedIDs[parentIdx]
		if !ok {
			// Parent fell out of the batch (hash failure or duplicate); the
			// child stays an original rather than referencing nothing
			continue
		}
		assignments[bc.assignedIDs[idx]] = parentID
		parentIDs = append(parentIDs, parentID)
	}

	if err := catalog.AssignOriginsTx(tx, assignments); err != nil {
		tx.Rollback()
		return fmt.Errorf("phase-2 origin resolution failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit phase 2: %w", err)
	}

	bc.report.Inserted += len(inserted)

	return imp.db.MarkParentsNotFinal(ctx, dedupeIDs(parentIDs))
}

// dedupeIDs removes duplicate ids while preserving first-seen order
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
