// Package linker determines which files in an import batch are derivatives
// of which originals. Linking operates purely on the in-memory batch; the
// persisted catalog is never consulted here.
package linker

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Candidate describes one file of an import batch as seen by the linker
type Candidate struct {
	Directory string
	Filename  string
	Extension string // including the dot, any case
	Timestamp time.Time
	Metadata  map[string]string
}

// MetadataRawFlag marks a candidate as a raw capture regardless of its
// extension. Some vendors wrap raw payloads in container formats that carry
// a generic extension.
const MetadataRawFlag = "raw"

// rawPriority ranks raw extensions for parent selection. Lower is better.
// Any extension in this table outranks every non-raw format.
var rawPriority = map[string]int{
	".dng": 0,
	".cr3": 1,
	".cr2": 2,
	".nef": 3,
	".arw": 4,
	".raf": 5,
	".orf": 6,
	".rw2": 7,
	".raw": 8,
}

// IsRawExtension reports whether ext (with dot, any case) is a raw capture format
func IsRawExtension(ext string) bool {
	_, ok := rawPriority[strings.ToLower(ext)]
	return ok
}

// numberedSuffix matches disambiguating suffixes like _001 at the end of a
// name that has already been stripped of extensions
var numberedSuffix = regexp.MustCompile(`^(.+?)(_\d+)?$`)

// rawSegment splits vendor patterns like PXL_20251210_200246684.RAW-01.COVER.jpg
var rawSegment = regexp.MustCompile(`(?i)\.RAW-`)

// BaseName extracts the grouping key from a filename: the part shared by a
// capture and everything derived from it. "IMG_0412.CR2", "IMG_0412.jpg" and
// "IMG_0412_001.jpg" all yield "IMG_0412"; "photo.jpg.xmp" yields "photo".
func BaseName(filename string) string {
	if loc := rawSegment.FindStringIndex(filename); loc != nil {
		return filename[:loc[0]]
	}

	// Strip every extension: photo.jpg.xmp -> photo
	name := filename
	for strings.Contains(name, ".") {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	// Strip a trailing numbered suffix: photo_001 -> photo
	if m := numberedSuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// isRaw reports whether the candidate can serve as a parent
func isRaw(c Candidate) bool {
	if IsRawExtension(c.Extension) {
		return true
	}
	return c.Metadata[MetadataRawFlag] == "true"
}

// ExtensionRank orders extensions for parent selection: ranked raw formats
// first in priority order, everything else (including metadata-flagged
// candidates without a ranked extension) after them.
func ExtensionRank(ext string) int {
	if p, ok := rawPriority[strings.ToLower(ext)]; ok {
		return p
	}
	return len(rawPriority)
}

// parentRank ranks a candidate by its extension
func parentRank(c Candidate) int {
	return ExtensionRank(c.Extension)
}

// Link maps each derivative in the batch to the batch index of its parent.
// Two files are candidates for linking when they share a directory and a
// base name. Among candidates the raw capture is the parent; groups without
// a raw member are siblings and produce no links. The result is identical
// for any permutation of the input order.
func Link(batch []Candidate) map[int]int {
	groups := make(map[[2]string][]int)
	for i, c := range batch {
		key := [2]string{c.Directory, BaseName(c.Filename)}
		groups[key] = append(groups[key], i)
	}

	links := make(map[int]int)
	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}

		var parents []int
		for _, idx := range indices {
			if isRaw(batch[idx]) {
				parents = append(parents, idx)
			}
		}
		if len(parents) == 0 {
			// No raw capture in the group: siblings, not parent/child
			continue
		}

		sort.Slice(parents, func(a, b int) bool {
			ra, rb := parentRank(batch[parents[a]]), parentRank(batch[parents[b]])
			if ra != rb {
				return ra < rb
			}
			return batch[parents[a]].Filename < batch[parents[b]].Filename
		})
		parent := parents[0]

		for _, idx := range indices {
			if idx != parent {
				links[idx] = parent
			}
		}
	}

	return links
}
