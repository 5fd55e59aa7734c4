// Package scanner lists media files under a directory and describes them as
// import candidates with their logical catalog location.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileCandidate describes one file found on disk, ready for import. The
// logical location triple is already split: StorageRoot is the configured
// logical root, Directory is relative to the scanned directory.
type FileCandidate struct {
	Path        string // physical path, used for reading bytes
	StorageRoot string
	Directory   string
	Filename    string
	Extension   string
	MediaType   string
	Size        int64
	ModTime     time.Time
	Metadata    map[string]string
}

// MetadataExtractor supplies the opaque per-file metadata payload (EXIF/XMP
// and similar). The scanner attaches the payload without interpreting it.
type MetadataExtractor interface {
	Extract(path string) (map[string]string, error)
}

// NoopExtractor attaches no metadata
type NoopExtractor struct{}

// Extract implements MetadataExtractor
func (NoopExtractor) Extract(string) (map[string]string, error) {
	return nil, nil
}

// ScanResult is the outcome of walking a directory
type ScanResult struct {
	Candidates []FileCandidate
	// Skipped collects per-file problems (unreadable info, failed metadata
	// extraction). A bad file never aborts the walk.
	Skipped []string
}

// Scan walks scanRoot and returns every media file as a candidate carrying
// logicalRoot as its storage root. Candidates are ordered by path so import
// input order is stable across runs. Symlinks and unrecognized extensions
// are skipped.
func Scan(ctx context.Context, scanRoot, logicalRoot string, extractor MetadataExtractor) (*ScanResult, error) {
	if extractor == nil {
		extractor = NoopExtractor{}
	}

	result := &ScanResult{}

	err := filepath.WalkDir(scanRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("error accessing %s: %v", path, err))
			return nil // Continue walking
		}

		if d.IsDir() {
			return nil
		}

		// Skip symlinks (the files they point to are scanned where they live)
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		ext := filepath.Ext(path)
		mediaType := MediaTypeForExtension(ext)
		if mediaType == "" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("error getting info for %s: %v", path, err))
			return nil
		}

		directory, filename, splitErr := splitUnderRoot(scanRoot, path)
		if splitErr != nil {
			result.Skipped = append(result.Skipped, splitErr.Error())
			return nil
		}

		metadata, err := extractor.Extract(path)
		if err != nil {
			// Metadata is best-effort; the file still gets cataloged
			result.Skipped = append(result.Skipped, fmt.Sprintf("metadata extraction failed for %s: %v", path, err))
		}

		result.Candidates = append(result.Candidates, FileCandidate{
			Path:        path,
			StorageRoot: logicalRoot,
			Directory:   directory,
			Filename:    filename,
			Extension:   ext,
			MediaType:   mediaType,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			Metadata:    metadata,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", scanRoot, err)
	}

	sort.Slice(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].Path < result.Candidates[j].Path
	})

	return result, nil
}

// splitUnderRoot splits a physical path into the directory relative to the
// scanned root and the filename
func splitUnderRoot(root, path string) (directory, filename string, err error) {
	rel, relErr := filepath.Rel(root, path)
	if relErr != nil {
		return "", "", fmt.Errorf("file %s is not under %s: %w", path, root, relErr)
	}

	directory = filepath.Dir(rel)
	if directory == "." {
		directory = ""
	}
	directory = filepath.ToSlash(directory)
	filename = filepath.Base(rel)

	if strings.HasPrefix(directory, "..") {
		return "", "", fmt.Errorf("file %s escapes scan root %s", path, root)
	}

	return directory, filename, nil
}
