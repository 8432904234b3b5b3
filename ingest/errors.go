package ingest

import "fmt"

// SchemaMismatchError reports a row missing a configured filter, vector,
// or id column. The run aborts rather than silently dropping rows, which
// would corrupt counts.
type SchemaMismatchError struct {
	Column string
	File   string
	Row    int
}

func (e *SchemaMismatchError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("schema mismatch: column %q absent (file %s, row %d)", e.Column, e.File, e.Row)
	}
	return fmt.Sprintf("schema mismatch: column %q absent", e.Column)
}
