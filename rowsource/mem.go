package rowsource

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/vecmigrate/model"
)

// MemSource serves rows from memory. Intended for tests and for callers
// that already hold decoded rows.
type MemSource struct {
	files map[string][]string            // dataPath -> file names
	rows  map[string][]model.Row         // file name -> rows
	paths map[string]map[string]struct{} // membership guard
}

// NewMemSource creates an empty in-memory source.
func NewMemSource() *MemSource {
	return &MemSource{
		files: make(map[string][]string),
		rows:  make(map[string][]model.Row),
		paths: make(map[string]map[string]struct{}),
	}
}

// AddFile registers a file with its rows under a data path. Files are
// listed in sorted name order regardless of registration order.
func (s *MemSource) AddFile(dataPath, file string, rows []model.Row) {
	if s.paths[dataPath] == nil {
		s.paths[dataPath] = make(map[string]struct{})
	}
	if _, dup := s.paths[dataPath][file]; !dup {
		s.paths[dataPath][file] = struct{}{}
		s.files[dataPath] = append(s.files[dataPath], file)
		sort.Strings(s.files[dataPath])
	}
	s.rows[file] = rows
}

// Files implements Source.
func (s *MemSource) Files(ctx context.Context, dataPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, ok := s.files[dataPath]
	if !ok {
		return nil, fmt.Errorf("rowsource: unknown data path %q", dataPath)
	}
	out := make([]string, len(files))
	copy(out, files)
	return out, nil
}

// Rows implements Source.
func (s *MemSource) Rows(ctx context.Context, file string) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, ok := s.rows[file]
	if !ok {
		return nil, fmt.Errorf("rowsource: unknown file %q", file)
	}
	return &sliceIterator{rows: rows}, nil
}

var _ Source = (*MemSource)(nil)
