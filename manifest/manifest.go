// Package manifest loads the interchange metadata document describing the
// logical indexes of a portable vector dataset, their namespaces, and where
// their row data lives.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const (
	// FileName is the well-known manifest file name inside a dataset dir.
	FileName = "VDF_META.json"

	// DefaultIDColumn is used when the manifest does not declare an id column.
	DefaultIDColumn = "id"
)

// ErrInvalidManifest is returned when the manifest is structurally unusable.
var ErrInvalidManifest = errors.New("invalid manifest")

// NamespaceMeta describes one namespace of a logical index.
type NamespaceMeta struct {
	Namespace         string   `json:"namespace"`
	IndexName         string   `json:"index_name"`
	DataPath          string   `json:"data_path"`
	VectorColumns     []string `json:"vector_columns"`
	IDColumn          string   `json:"id_column,omitempty"`
	Dimensions        int      `json:"dimensions"`
	Metric            string   `json:"metric,omitempty"`
	TotalVectorCount  int      `json:"total_vector_count,omitempty"`
	ExportedVectorCnt int      `json:"exported_vector_count,omitempty"`
	ModelName         string   `json:"model_name,omitempty"`
}

// Manifest is the parsed metadata document.
type Manifest struct {
	Version  string                     `json:"version,omitempty"`
	IDColumn string                     `json:"id_column,omitempty"`
	Author   string                     `json:"author,omitempty"`
	Exported string                     `json:"exported_at,omitempty"`
	Indexes  map[string][]NamespaceMeta `json:"indexes"`

	warnings []string
}

// Warnings returns non-fatal conditions observed while decoding, such as a
// missing version field.
func (m *Manifest) Warnings() []string { return m.warnings }

// IndexNames returns the logical index names in sorted order, giving the
// pipeline a deterministic walk.
func (m *Manifest) IndexNames() []string {
	names := make([]string, 0, len(m.Indexes))
	for name := range m.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveIDColumn returns the id column for a namespace, falling back to
// the manifest-level declaration and then to DefaultIDColumn.
func (m *Manifest) ResolveIDColumn(ns NamespaceMeta) string {
	if ns.IDColumn != "" {
		return ns.IDColumn
	}
	if m.IDColumn != "" {
		return m.IDColumn
	}
	return DefaultIDColumn
}

// ResolveVectorColumn returns the vector column to import for a namespace.
// When more than one vector column is declared only the first is imported;
// extra reports whether additional columns were ignored so the caller can
// warn. This mirrors the exporter contract: additional vector columns are
// intentionally skipped, not an error.
func ResolveVectorColumn(ns NamespaceMeta) (column string, extra bool, err error) {
	if len(ns.VectorColumns) == 0 {
		return "", false, fmt.Errorf("%w: namespace %q declares no vector columns", ErrInvalidManifest, ns.Namespace)
	}
	return ns.VectorColumns[0], len(ns.VectorColumns) > 1, nil
}

// Load reads and decodes the manifest at path. A directory path is
// resolved to its VDF_META.json.
func Load(path string) (*Manifest, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, FileName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses a manifest document from r and validates it.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if m.Indexes == nil {
		return nil, fmt.Errorf("%w: 'indexes' key not found", ErrInvalidManifest)
	}

	if m.Version == "" {
		m.warnings = append(m.warnings, "'version' key not found in manifest")
	}

	for name, namespaces := range m.Indexes {
		if len(namespaces) == 0 {
			m.warnings = append(m.warnings, fmt.Sprintf("index %q declares no namespaces", name))
		}
		for _, ns := range namespaces {
			if ns.DataPath == "" {
				return nil, fmt.Errorf("%w: index %q namespace %q has no data_path", ErrInvalidManifest, name, ns.Namespace)
			}
		}
	}

	return &m, nil
}
