package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mediacat/internal/constants"
)

// Finality maintenance lives here, deliberately outside any trigger. Every
// is_final update is a distinct statement issued after the origin_id write
// has committed; the media table is never updated from within the same
// atomic operation that changed it.

// notFinalExpr computes whether an entry has at least one child. Soft-deleted
// children still count: a soft-deleted row is structurally present for
// provenance purposes.
const notFinalExpr = `EXISTS (SELECT 1 FROM media c WHERE c.origin_id = media.id)`

// OnParentAssigned maintains is_final after a child's origin changed from
// oldParentID to newParentID. The new parent becomes non-final
// unconditionally; the old parent becomes final again only if the
// zero-children check passes.
func (db *DB) OnParentAssigned(ctx context.Context, newParentID int64, oldParentID *int64) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE media SET is_final = 0 WHERE id = ?`, newParentID); err != nil {
		return fmt.Errorf("failed to mark parent %d non-final: %w", newParentID, err)
	}

	if oldParentID != nil && *oldParentID != newParentID {
		if err := db.refreshFinal(ctx, *oldParentID); err != nil {
			return err
		}
	}

	return nil
}

// OnEntryRemoved maintains is_final after an entry was removed. The former
// parent is recomputed with the same zero-children check.
func (db *DB) OnEntryRemoved(ctx context.Context, formerParentID *int64) error {
	if formerParentID == nil {
		return nil
	}
	return db.refreshFinal(ctx, *formerParentID)
}

// refreshFinal recomputes is_final for a single entry from its actual child count
func (db *DB) refreshFinal(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE media SET is_final = CASE WHEN `+notFinalExpr+` THEN 0 ELSE 1 END
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to refresh final flag for %d: %w", id, err)
	}
	return nil
}

// MarkParentsNotFinal flips is_final off for every given parent in chunked
// batches. Used after an import phase commits a set of new origin links.
func (db *DB) MarkParentsNotFinal(ctx context.Context, parentIDs []int64) error {
	for start := 0; start < len(parentIDs); start += constants.OriginUpdateChunkSize {
		end := start + constants.OriginUpdateChunkSize
		if end > len(parentIDs) {
			end = len(parentIDs)
		}
		chunk := parentIDs[start:end]

		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := `UPDATE media SET is_final = 0 WHERE id IN (` + buildInClause(len(chunk)) + `)`
		if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark parents non-final: %w", err)
		}
	}
	return nil
}

// RecomputeFinalFlags recomputes is_final for every row from the actual
// child counts. Incremental maintenance can drift under partial failures;
// this is the bulk repair path, callable after any out-of-band data change.
func (db *DB) RecomputeFinalFlags(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE media SET is_final = CASE WHEN `+notFinalExpr+` THEN 0 ELSE 1 END
		WHERE is_final != CASE WHEN `+notFinalExpr+` THEN 0 ELSE 1 END`)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute final flags: %w", err)
	}

	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count recomputed rows: %w", err)
	}
	return changed, nil
}

// AssignOriginsTx applies child -> parent origin assignments inside an
// existing transaction as batched updates. is_original is kept consistent
// with origin_id in the same statement.
func AssignOriginsTx(tx *sql.Tx, assignments map[int64]int64) error {
	if len(assignments) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`UPDATE media SET origin_id = ?, is_original = 0 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare origin update: %w", err)
	}
	defer stmt.Close()

	for childID, parentID := range assignments {
		if childID == parentID {
			return fmt.Errorf("%w: entry %d cannot be its own origin", ErrInvariantViolation, childID)
		}
		if _, err := stmt.Exec(parentID, childID); err != nil {
			return fmt.Errorf("failed to assign origin %d to entry %d: %w", parentID, childID, err)
		}
	}

	return nil
}

// AssignParent re-parents a single entry. A nil parentID makes the entry an
// original. The origin relation must remain a forest, so the ancestor chain
// of the new parent is walked before the write; the finality updates run as
// separate statements after the origin write commits.
func (db *DB) AssignParent(ctx context.Context, childID int64, parentID *int64) error {
	child, err := db.GetEntryByID(childID)
	if err != nil {
		return err
	}
	oldParentID := child.OriginID

	if parentID != nil {
		if err := db.assertNoCycle(ctx, childID, *parentID); err != nil {
			return err
		}
	}

	var origin sql.NullInt64
	if parentID != nil {
		origin = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE media SET origin_id = ?, is_original = ? WHERE id = ?`,
		origin, parentID == nil, childID)
	if err != nil {
		return fmt.Errorf("failed to re-parent entry %d: %w", childID, err)
	}

	if parentID != nil {
		if err := db.OnParentAssigned(ctx, *parentID, oldParentID); err != nil {
			return err
		}
	} else if err := db.OnEntryRemoved(ctx, oldParentID); err != nil {
		return err
	}

	return nil
}

// assertNoCycle walks the ancestor chain from parentID and fails if childID
// appears in it
func (db *DB) assertNoCycle(ctx context.Context, childID, parentID int64) error {
	if childID == parentID {
		return fmt.Errorf("%w: entry %d cannot be its own origin", ErrInvariantViolation, childID)
	}

	seen := map[int64]bool{childID: true}
	current := parentID
	for {
		if seen[current] {
			return fmt.Errorf("%w: assigning origin %d to entry %d creates a cycle", ErrInvariantViolation, parentID, childID)
		}
		seen[current] = true

		var origin sql.NullInt64
		err := db.conn.QueryRowContext(ctx, `SELECT origin_id FROM media WHERE id = ?`, current).Scan(&origin)
		if err == sql.ErrNoRows {
			// Dangling ancestor; the consistency scan reports these
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk ancestors of %d: %w", parentID, err)
		}
		if !origin.Valid {
			return nil
		}
		current = origin.Int64
	}
}

// SoftDeleteEntry marks an entry inactive without touching the provenance
// graph: its children keep their origin and the entry stays structurally
// present for finality computation.
func (db *DB) SoftDeleteEntry(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE media SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete entry %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check soft-delete of %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

// RemoveEntry hard-deletes an entry and then recomputes its former parent's
// finality. Children of the removed entry become orphaned references; the
// consistency scan reports them and repair is a separate policy decision.
func (db *DB) RemoveEntry(ctx context.Context, id int64) error {
	entry, err := db.GetEntryByID(id)
	if err != nil {
		return err
	}

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove entry %d: %w", id, err)
	}

	return db.OnEntryRemoved(ctx, entry.OriginID)
}

// OrphanedReference describes an entry whose origin points to nothing
type OrphanedReference struct {
	EntryID  int64
	OriginID int64
}

// ConsistencyReport is the result of a full provenance scan
type ConsistencyReport struct {
	// OrphanedReferences are reported but never auto-repaired
	OrphanedReferences []OrphanedReference

	// Contradictions lists entries where is_original disagrees with origin_id
	Contradictions []int64

	// FinalityDrift lists entries whose stored is_final disagrees with the
	// actual child count
	FinalityDrift []int64

	// Cycles lists origin chains that loop back on themselves
	Cycles [][]int64
}

// Clean reports whether the scan found nothing at all
func (r *ConsistencyReport) Clean() bool {
	return len(r.OrphanedReferences) == 0 && len(r.Contradictions) == 0 &&
		len(r.FinalityDrift) == 0 && len(r.Cycles) == 0
}

// Err returns ErrInvariantViolation if the scan found states that indicate a
// maintenance bug. Orphaned references alone do not qualify; they can arise
// from out-of-band deletes and are report-only.
func (r *ConsistencyReport) Err() error {
	if len(r.Contradictions) > 0 || len(r.FinalityDrift) > 0 || len(r.Cycles) > 0 {
		return fmt.Errorf("%w: %d contradictions, %d drifted final flags, %d cycles",
			ErrInvariantViolation, len(r.Contradictions), len(r.FinalityDrift), len(r.Cycles))
	}
	return nil
}

// VerifyConsistency scans the whole catalog for orphaned references,
// is_original contradictions, finality drift, and origin cycles
func (db *DB) VerifyConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.origin_id
		FROM media c
		WHERE c.origin_id IS NOT NULL
			AND NOT EXISTS (SELECT 1 FROM media p WHERE p.id = c.origin_id)
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for orphaned references: %w", err)
	}
	for rows.Next() {
		var ref OrphanedReference
		if err := rows.Scan(&ref.EntryID, &ref.OriginID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan orphan row: %w", err)
		}
		report.OrphanedReferences = append(report.OrphanedReferences, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate orphan rows: %w", err)
	}
	rows.Close()

	if report.Contradictions, err = db.scanIDs(ctx, `
		SELECT id FROM media
		WHERE is_original != (origin_id IS NULL)
		ORDER BY id`); err != nil {
		return nil, err
	}

	if report.FinalityDrift, err = db.scanIDs(ctx, `
		SELECT id FROM media
		WHERE is_final != CASE WHEN `+notFinalExpr+` THEN 0 ELSE 1 END
		ORDER BY id`); err != nil {
		return nil, err
	}

	cycles, err := db.findCycles(ctx)
	if err != nil {
		return nil, err
	}
	report.Cycles = cycles

	return report, nil
}

// scanIDs runs a query returning a single id column
func (db *DB) scanIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run consistency query: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate id rows: %w", err)
	}
	return ids, nil
}

// findCycles loads the full origin relation and walks every chain looking
// for loops. The relation is expected to be a forest, so any loop is a
// maintenance bug.
func (db *DB) findCycles(ctx context.Context) ([][]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, origin_id FROM media WHERE origin_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load origin relation: %w", err)
	}
	defer rows.Close()

	parents := make(map[int64]int64)
	for rows.Next() {
		var id, origin int64
		if err := rows.Scan(&id, &origin); err != nil {
			return nil, fmt.Errorf("failed to scan origin row: %w", err)
		}
		parents[id] = origin
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate origin rows: %w", err)
	}

	var cycles [][]int64
	state := make(map[int64]int) // 0 unvisited, 1 in progress, 2 done
	for id := range parents {
		if state[id] != 0 {
			continue
		}

		var chain []int64
		current := id
		for {
			if state[current] == 2 {
				break
			}
			if state[current] == 1 {
				// Loop found; trim the chain to the looping segment
				for i, node := range chain {
					if node == current {
						cycle := make([]int64, len(chain)-i)
						copy(cycle, chain[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				break
			}
			state[current] = 1
			chain = append(chain, current)

			next, ok := parents[current]
			if !ok {
				break
			}
			current = next
		}
		for _, node := range chain {
			state[node] = 2
		}
	}

	return cycles, nil
}
