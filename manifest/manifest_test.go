package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
	"version": "0.1.0",
	"id_column": "id",
	"indexes": {
		"demo": [
			{
				"namespace": "ns1",
				"data_path": "ns1",
				"vector_columns": ["embedding"],
				"dimensions": 4
			}
		]
	}
}`

func TestDecode(t *testing.T) {
	m, err := Decode(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, []string{"demo"}, m.IndexNames())
	assert.Empty(t, m.Warnings())

	ns := m.Indexes["demo"][0]
	assert.Equal(t, "id", m.ResolveIDColumn(ns))

	col, extra, err := ResolveVectorColumn(ns)
	require.NoError(t, err)
	assert.Equal(t, "embedding", col)
	assert.False(t, extra)
}

func TestDecode_MissingIndexes(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": "0.1.0"}`))
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestDecode_MissingVersionWarns(t *testing.T) {
	m, err := Decode(strings.NewReader(`{"indexes": {"demo": [{"namespace": "a", "data_path": "a", "vector_columns": ["v"]}]}}`))
	require.NoError(t, err)
	require.Len(t, m.Warnings(), 1)
	assert.Contains(t, m.Warnings()[0], "version")
}

func TestDecode_MissingDataPath(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": "1", "indexes": {"demo": [{"namespace": "a", "vector_columns": ["v"]}]}}`))
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestResolveVectorColumn(t *testing.T) {
	col, extra, err := ResolveVectorColumn(NamespaceMeta{
		Namespace:     "ns1",
		VectorColumns: []string{"emb_a", "emb_b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "emb_a", col)
	assert.True(t, extra)

	_, _, err = ResolveVectorColumn(NamespaceMeta{Namespace: "ns1"})
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestResolveIDColumn_Fallbacks(t *testing.T) {
	m := &Manifest{}
	assert.Equal(t, DefaultIDColumn, m.ResolveIDColumn(NamespaceMeta{}))

	m.IDColumn = "pk"
	assert.Equal(t, "pk", m.ResolveIDColumn(NamespaceMeta{}))
	assert.Equal(t, "doc", m.ResolveIDColumn(NamespaceMeta{IDColumn: "doc"}))
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sampleManifest), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Contains(t, m.Indexes, "demo")
}
