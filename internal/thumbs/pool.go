// Package thumbs runs derivative-artifact generation (thumbnails) over a
// bounded worker pool. The image processing itself is a collaborator behind
// the Generator interface; this package owns scheduling and the batched
// catalog update.
package thumbs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"mediacat/internal/catalog"
	"mediacat/internal/constants"
	"mediacat/internal/paths"
)

// Generator produces one artifact for one entry and returns the artifact's
// path on disk
type Generator interface {
	Generate(ctx context.Context, sourcePath, outputDir string, entry *catalog.Entry) (string, error)
}

// Result is the outcome of a single generation task
type Result struct {
	EntryID int64
	Path    string // artifact path, empty on failure
	Err     error
}

// RoundReport summarizes one worker-pool round
type RoundReport struct {
	Generated int
	Failures  []Result
}

// Pool schedules generation tasks over a fixed number of workers. Results
// are aggregated over a channel and applied to the catalog as one batched
// update per round; a cancelled round records nothing for unfinished tasks,
// and no artifact path is recorded unless the artifact exists on disk.
type Pool struct {
	db        *catalog.DB
	resolver  *paths.Resolver
	generator Generator
	outputDir string
	workers   int
}

// NewPool creates a worker pool
func NewPool(db *catalog.DB, resolver *paths.Resolver, generator Generator, outputDir string, workers int) *Pool {
	if workers < 1 {
		workers = constants.DefaultThumbnailWorkers
	}
	return &Pool{
		db:        db,
		resolver:  resolver,
		generator: generator,
		outputDir: outputDir,
		workers:   workers,
	}
}

// Run generates artifacts for the given entries and applies the confirmed
// results in one batched catalog update
func (p *Pool) Run(ctx context.Context, entries []*catalog.Entry) (*RoundReport, error) {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tasks := make(chan *catalog.Entry, constants.DefaultThumbnailBufferSize)
	results := make(chan Result, constants.DefaultThumbnailBufferSize)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go p.worker(ctx, tasks, results, &wg)
	}

	go func() {
		defer close(tasks)
		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return
			case tasks <- entry:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	report := &RoundReport{}
	confirmed := make(map[int64]string)
	for result := range results {
		if result.Err != nil {
			report.Failures = append(report.Failures, result)
			continue
		}
		confirmed[result.EntryID] = result.Path
	}

	// One batched write per round; tasks cancelled mid-flight simply never
	// reach the map
	if err := p.db.UpdateThumbnailPaths(ctx, confirmed); err != nil {
		return report, err
	}
	report.Generated = len(confirmed)

	return report, nil
}

// worker consumes tasks until the channel closes or the context is cancelled
func (p *Pool) worker(ctx context.Context, tasks <-chan *catalog.Entry, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-tasks:
			if !ok {
				return
			}
			results <- p.generate(ctx, entry)
		}
	}
}

// generate runs one task and confirms the artifact exists before reporting success
func (p *Pool) generate(ctx context.Context, entry *catalog.Entry) Result {
	sourcePath, err := p.resolver.Resolve(entry.StorageRoot, entry.Directory, entry.Filename)
	if err != nil {
		return Result{EntryID: entry.ID, Err: fmt.Errorf("failed to resolve source: %w", err)}
	}

	artifactPath, err := p.generator.Generate(ctx, sourcePath, p.outputDir, entry)
	if err != nil {
		return Result{EntryID: entry.ID, Err: err}
	}

	// The catalog must never reference an artifact that is not on disk
	if _, err := os.Stat(artifactPath); err != nil {
		return Result{EntryID: entry.ID, Err: fmt.Errorf("artifact missing after generation: %w", err)}
	}

	return Result{EntryID: entry.ID, Path: artifactPath}
}
