package importer

import (
	"fmt"
	"strings"
)

// FileError records a per-file failure during import. Individual failures
// never abort the batch; they are collected here instead.
type FileError struct {
	Path    string
	Message string
}

// Report summarizes one batch import
type Report struct {
	ImportID                  string
	Inserted                  int
	SkippedDuplicateInCatalog int
	SkippedDuplicateInBatch   int
	Errors                    []FileError
}

// Status returns the import run status for the catalog's imports table
func (r *Report) Status() string {
	if len(r.Errors) > 0 {
		return "completed_with_errors"
	}
	return "completed"
}

// Summary renders the human-readable outcome printed by the import CLI
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import %s: %d inserted, %d already in catalog, %d duplicated in batch, %d errors\n",
		r.ImportID, r.Inserted, r.SkippedDuplicateInCatalog, r.SkippedDuplicateInBatch, len(r.Errors))
	for _, fe := range r.Errors {
		fmt.Fprintf(&b, "  error: %s: %s\n", fe.Path, fe.Message)
	}
	return b.String()
}
