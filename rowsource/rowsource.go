// Package rowsource yields ordered rows from the columnar row files of a
// dataset. Files are line-delimited JSON records, optionally compressed
// with gzip or lz4; listing order is stable so imports are reproducible.
package rowsource

import (
	"context"
	"io"

	"github.com/hupe1980/vecmigrate/model"
)

// Source lists the row files under a data path and opens them for
// iteration. Implementations must return files in a stable order.
type Source interface {
	// Files returns the ordered row file identifiers under dataPath.
	Files(ctx context.Context, dataPath string) ([]string, error)

	// Rows opens a row iterator over a single file.
	Rows(ctx context.Context, file string) (Iterator, error)
}

// Iterator yields rows in file order. Next returns io.EOF after the last
// row.
type Iterator interface {
	Next() (model.Row, error)
	Close() error
}

// sliceIterator serves rows from memory; shared by MemSource and tests.
type sliceIterator struct {
	rows []model.Row
	pos  int
}

func (it *sliceIterator) Next() (model.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *sliceIterator) Close() error { return nil }
