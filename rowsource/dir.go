package rowsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vecmigrate/model"
)

// maxLineBytes bounds a single row line. High-dimensional embedding rows
// run to hundreds of kilobytes, far past bufio.Scanner's 64KB default.
const maxLineBytes = 16 << 20

// DirSource reads row files from a local directory tree. Data paths from
// the manifest are resolved relative to the root.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// rowFileExt reports whether name is a recognized row file.
func rowFileExt(name string) bool {
	return strings.HasSuffix(name, ".jsonl") ||
		strings.HasSuffix(name, ".jsonl.gz") ||
		strings.HasSuffix(name, ".jsonl.lz4")
}

// Files lists the row files under dataPath in lexicographic order.
// Unrecognized extensions are skipped.
func (s *DirSource) Files(ctx context.Context, dataPath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, dataPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rowsource: list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !rowFileExt(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dataPath, e.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// Rows opens a row iterator over one file, transparently decoding gzip and
// lz4 compression by extension.
func (s *DirSource) Rows(ctx context.Context, file string) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, file)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rowsource: open %s: %w", path, err)
	}

	var r io.Reader = f
	closers := []io.Closer{f}

	switch {
	case strings.HasSuffix(file, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("rowsource: gzip open %s: %w", path, err)
		}
		r = gz
		closers = append(closers, gz)
	case strings.HasSuffix(file, ".lz4"):
		r = lz4.NewReader(f)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	return &lineIterator{
		file:    file,
		scanner: sc,
		closers: closers,
	}, nil
}

// lineIterator decodes one JSON row per line.
type lineIterator struct {
	file    string
	scanner *bufio.Scanner
	closers []io.Closer
	line    int
}

func (it *lineIterator) Next() (model.Row, error) {
	for it.scanner.Scan() {
		it.line++
		data := strings.TrimSpace(it.scanner.Text())
		if data == "" {
			continue
		}
		var row model.Row
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("rowsource: %s line %d: %w", it.file, it.line, err)
		}
		return row, nil
	}
	if err := it.scanner.Err(); err != nil {
		return nil, fmt.Errorf("rowsource: %s: %w", it.file, err)
	}
	return nil, io.EOF
}

func (it *lineIterator) Close() error {
	var first error
	for i := len(it.closers) - 1; i >= 0; i-- {
		if err := it.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Source = (*DirSource)(nil)
