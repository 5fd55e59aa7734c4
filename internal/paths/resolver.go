package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoMappingFound is returned when the local_only strategy finds no mapping
// for a storage root. It is never silently defaulted.
var ErrNoMappingFound = errors.New("no mapping found for storage root")

// Strategy selects how logical storage roots are translated to local paths
type Strategy string

const (
	// StrategyMapped translates the storage root through the mapping table,
	// falling back to the stored root when no mapping matches
	StrategyMapped Strategy = "mapped"

	// StrategyDirect uses the stored storage root as-is, ignoring the mapping table
	StrategyDirect Strategy = "direct"

	// StrategyLocalOnly translates through the mapping table and fails with
	// ErrNoMappingFound when no mapping matches
	StrategyLocalOnly Strategy = "local_only"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMapped, StrategyDirect, StrategyLocalOnly:
		return true
	}
	return false
}

// Mapping maps a logical storage root prefix to a physical mount prefix
// for the current environment
type Mapping struct {
	Logical  string `yaml:"logical"`
	Physical string `yaml:"physical"`
}

// Resolver translates logical (storageRoot, directory, filename) triples
// stored in the catalog into physical filesystem paths for this machine.
//
// Resolution is a pure lookup: the resolver never touches the filesystem
// unless CheckExists is called explicitly.
type Resolver struct {
	mappings []Mapping
	strategy Strategy
	cache    *Cache
}

// NewResolver creates a resolver for the given mapping table and strategy
func NewResolver(mappings []Mapping, strategy Strategy) *Resolver {
	return &Resolver{
		mappings: mappings,
		strategy: strategy,
		cache:    NewCache(),
	}
}

// Strategy returns the configured resolution strategy
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Resolve translates a logical location into a physical path using the
// configured strategy. Separator normalization is applied after construction
// regardless of strategy.
func (r *Resolver) Resolve(storageRoot, directory, filename string) (string, error) {
	localRoot, err := r.localRoot(storageRoot)
	if err != nil {
		return "", err
	}

	var resolved string
	if directory != "" {
		resolved = filepath.Join(localRoot, directory, filename)
	} else {
		resolved = filepath.Join(localRoot, filename)
	}

	return normalizeSeparators(resolved), nil
}

// localRoot translates the storage root according to the strategy, using the
// translation cache for repeated lookups
func (r *Resolver) localRoot(storageRoot string) (string, error) {
	if r.strategy == StrategyDirect {
		return storageRoot, nil
	}

	cacheKey := string(r.strategy) + ":" + storageRoot
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	mapped, found := r.translateRoot(storageRoot)
	if !found {
		if r.strategy == StrategyLocalOnly {
			return "", fmt.Errorf("%w: %s", ErrNoMappingFound, storageRoot)
		}
		// mapped strategy falls back to the stored root
		mapped = storageRoot
	}

	r.cache.Set(cacheKey, mapped)
	return mapped, nil
}

// translateRoot finds the mapping whose logical prefix is the longest prefix
// of storageRoot and substitutes the physical prefix. A mapping for
// /vol/photo matches /vol/photo/RAW but not /vol/photos.
func (r *Resolver) translateRoot(storageRoot string) (string, bool) {
	var bestMatch Mapping
	maxLen := -1

	for _, mapping := range r.mappings {
		if !prefixMatches(storageRoot, mapping.Logical) {
			continue
		}
		if len(mapping.Logical) > maxLen {
			bestMatch = mapping
			maxLen = len(mapping.Logical)
		}
	}

	if maxLen < 0 {
		return "", false
	}

	remainder := strings.TrimPrefix(storageRoot, bestMatch.Logical)
	remainder = strings.TrimLeft(remainder, "/\\")
	if remainder == "" {
		return bestMatch.Physical, true
	}
	return filepath.Join(bestMatch.Physical, remainder), true
}

// prefixMatches reports whether logical is a path-boundary prefix of root
func prefixMatches(root, logical string) bool {
	if !strings.HasPrefix(root, logical) {
		return false
	}
	if len(root) == len(logical) {
		return true
	}
	// Must match at a separator boundary, or the logical prefix itself must
	// end with one
	next := root[len(logical)]
	last := logical[len(logical)-1]
	return next == '/' || next == '\\' || last == '/' || last == '\\'
}

// normalizeSeparators rewrites both separator styles to the local OS separator
func normalizeSeparators(path string) string {
	sep := string(os.PathSeparator)
	path = strings.ReplaceAll(path, "\\", sep)
	path = strings.ReplaceAll(path, "/", sep)
	return path
}

// CheckExists reports whether the resolved path exists on disk. Existence
// checking is a separate operation from resolution, never implicit.
func (r *Resolver) CheckExists(storageRoot, directory, filename string) (string, bool, error) {
	resolved, err := r.Resolve(storageRoot, directory, filename)
	if err != nil {
		return "", false, err
	}
	_, statErr := os.Stat(resolved)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return resolved, false, nil
		}
		return resolved, false, fmt.Errorf("failed to stat %s: %w", resolved, statErr)
	}
	return resolved, true, nil
}

// ClearCache clears the translation cache
func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

// CacheStats returns cache hit statistics for monitoring
func (r *Resolver) CacheStats() (hits, total uint64, hitRate float64) {
	return r.cache.Stats()
}
