package stats

import (
	"fmt"
	"time"

	"mediacat/internal/catalog"
	"mediacat/internal/constants"
)

// Stats contains statistical information about the catalog
type Stats struct {
	TotalEntries int64
	TotalSize    int64
	Originals    int64
	Derivatives  int64
	FinalEntries int64
	SoftDeleted  int64
	ImportRuns   int64
}

// Calculator calculates statistics from the catalog. Results are cached for
// a short TTL; Invalidate after writes that must be visible immediately.
type Calculator struct {
	db    *catalog.DB
	cache *Cache
}

// NewCalculator creates a new stats calculator
func NewCalculator(db *catalog.DB) *Calculator {
	return &Calculator{
		db:    db,
		cache: NewCache(constants.DefaultStatsCacheTTL * time.Second),
	}
}

// Calculate calculates all statistics, serving from the cache when fresh
func (c *Calculator) Calculate() (*Stats, error) {
	if cached := c.cache.Get(); cached != nil {
		return cached, nil
	}

	stats := &Stats{}

	if err := c.calculateTotals(stats); err != nil {
		return nil, fmt.Errorf("failed to calculate totals: %w", err)
	}

	if err := c.calculateProvenance(stats); err != nil {
		return nil, fmt.Errorf("failed to calculate provenance counts: %w", err)
	}

	if err := c.calculateImportRuns(stats); err != nil {
		return nil, fmt.Errorf("failed to count import runs: %w", err)
	}

	c.cache.Set(stats)

	return stats, nil
}

// Invalidate drops the cached statistics
func (c *Calculator) Invalidate() {
	c.cache.Invalidate()
}

func (c *Calculator) calculateTotals(stats *Stats) error {
	query := `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media`
	return c.db.Conn().QueryRow(query).Scan(&stats.TotalEntries, &stats.TotalSize)
}

func (c *Calculator) calculateProvenance(stats *Stats) error {
	query := `
		SELECT
			COALESCE(SUM(is_original), 0),
			COALESCE(SUM(1 - is_original), 0),
			COALESCE(SUM(is_final), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM media
	`
	return c.db.Conn().QueryRow(query).Scan(&stats.Originals, &stats.Derivatives, &stats.FinalEntries, &stats.SoftDeleted)
}

func (c *Calculator) calculateImportRuns(stats *Stats) error {
	return c.db.Conn().QueryRow(`SELECT COUNT(*) FROM imports`).Scan(&stats.ImportRuns)
}
