package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmigrate/checkpoint"
	"github.com/hupe1980/vecmigrate/internal/clock"
	"github.com/hupe1980/vecmigrate/manifest"
	"github.com/hupe1980/vecmigrate/model"
	"github.com/hupe1980/vecmigrate/remote"
	"github.com/hupe1980/vecmigrate/remote/remotetest"
	"github.com/hupe1980/vecmigrate/rowsource"
)

const testIndexID = "projects/test/locations/test/indexes/1"

func testManifest(namespaces ...manifest.NamespaceMeta) *manifest.Manifest {
	return &manifest.Manifest{
		Version: "1.0",
		Indexes: map[string][]manifest.NamespaceMeta{"demo": namespaces},
	}
}

func testRows(start, n int) []model.Row {
	rows := make([]model.Row, 0, n)
	for i := start; i < start+n; i++ {
		rows = append(rows, model.Row{
			"id":     model.String(fmt.Sprintf("row-%d", i)),
			"vector": model.Floats([]float32{float32(i), float32(i)}),
		})
	}
	return rows
}

// twoFileSetup registers two three-row files under one namespace. With a
// batch size of four the run must produce batches of four and two rows:
// the partial first file spills into the second rather than flushing
// early.
func twoFileSetup() (*rowsource.MemSource, *manifest.Manifest) {
	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", testRows(0, 3))
	src.AddFile("demo/ns1", "demo/ns1/part-001.jsonl", testRows(3, 3))

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vector"},
		Dimensions:    2,
	})
	return src, m
}

func TestPipeline_BatchesSpanFiles(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := twoFileSetup()

	p, err := NewPipeline(backend, src, WithBatchSize(4))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ns1": 6}, rep.PerNamespace)
	assert.Equal(t, 6, rep.Total)

	require.Len(t, backend.UpsertedBatches, 2)
	assert.Len(t, backend.UpsertedBatches[0], 4)
	assert.Len(t, backend.UpsertedBatches[1], 2)

	// Row order survives batching.
	assert.Equal(t, "row-0", backend.UpsertedBatches[0][0].ID)
	assert.Equal(t, "row-3", backend.UpsertedBatches[0][3].ID)
	assert.Equal(t, "row-4", backend.UpsertedBatches[1][0].ID)
}

func TestPipeline_FatalAbortReportsPartialProgress(t *testing.T) {
	backend := remotetest.NewBackend()
	backend.FailUpsert(nil, remote.Fatal(errors.New("invalid datapoint")))
	src, m := twoFileSetup()

	p, err := NewPipeline(backend, src, WithBatchSize(4))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.Error(t, err)

	// The acknowledged first batch is counted, the failed trailer is not.
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, map[string]int{"ns1": 4}, rep.PerNamespace)
	assert.Equal(t, 2, backend.UpsertCalls)
}

func TestPipeline_TransientRetrySucceeds(t *testing.T) {
	transient := remote.Transient(errors.New("http 503"))
	backend := remotetest.NewBackend()
	backend.FailUpsert(transient, transient)
	src, m := twoFileSetup()

	fc := clock.NewFake()
	p, err := NewPipeline(backend, src, WithBatchSize(10), WithClock(fc))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	assert.Equal(t, 6, rep.Total)
	assert.Equal(t, 3, backend.UpsertCalls)
	require.Len(t, backend.UpsertedBatches, 1)

	// Exponential backoff between attempts.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, fc.Sleeps())
}

func TestPipeline_TransientBudgetExhausted(t *testing.T) {
	transient := remote.Transient(errors.New("http 429"))
	backend := remotetest.NewBackend()
	backend.FailUpsert(transient, transient, transient)
	src, m := twoFileSetup()

	p, err := NewPipeline(backend, src,
		WithBatchSize(10),
		WithClock(clock.NewFake()),
		WithRetry(3, time.Millisecond),
	)
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.Error(t, err)
	assert.Equal(t, 0, rep.Total)
	assert.Equal(t, 3, backend.UpsertCalls)
}

func TestPipeline_ConcurrentDispatch(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", testRows(0, 20))

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vector"},
	})

	p, err := NewPipeline(backend, src, WithBatchSize(3), WithMaxInFlight(4))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	// Completion order is unspecified; totals are not.
	assert.Equal(t, 20, rep.Total)
	assert.Equal(t, 7, backend.UpsertCalls)
}

func TestPipeline_MultipleNamespaces(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/a", "demo/a/part-000.jsonl", testRows(0, 2))
	src.AddFile("demo/b", "demo/b/part-000.jsonl", testRows(0, 3))

	m := testManifest(
		manifest.NamespaceMeta{Namespace: "a", DataPath: "demo/a", VectorColumns: []string{"vector"}},
		manifest.NamespaceMeta{Namespace: "b", DataPath: "demo/b", VectorColumns: []string{"vector"}},
	)

	p, err := NewPipeline(backend, src, WithBatchSize(4))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 3}, rep.PerNamespace)
	assert.Equal(t, 5, rep.Total)
}

func TestPipeline_SharedNamespaceAcrossIndexes(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("a/ns1", "a/ns1/part-000.jsonl", testRows(0, 3))
	src.AddFile("b/ns1", "b/ns1/part-000.jsonl", testRows(3, 3))

	m := &manifest.Manifest{
		Version: "1.0",
		Indexes: map[string][]manifest.NamespaceMeta{
			"a": {{Namespace: "ns1", DataPath: "a/ns1", VectorColumns: []string{"vector"}}},
			"b": {{Namespace: "ns1", DataPath: "b/ns1", VectorColumns: []string{"vector"}}},
		},
	}

	p, err := NewPipeline(backend, src, WithBatchSize(4))
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	// Both indexes feed the same namespace; their counts accumulate
	// rather than overwrite each other.
	assert.Equal(t, map[string]int{"ns1": 6}, rep.PerNamespace)
	assert.Equal(t, 6, rep.Total)
	assert.Equal(t, 2, backend.UpsertCalls)
}

func TestPipeline_Checkpointing(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := twoFileSetup()
	store := checkpoint.NewMemStore()

	p, err := NewPipeline(backend, src,
		WithBatchSize(4),
		WithCheckpointStore(store, "run-1"),
	)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	n, ok, err := store.Get(context.Background(), "run-1", "ns1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, n)
}

func TestPipeline_RestrictsAttached(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", []model.Row{{
		"id":     model.String("row-0"),
		"vector": model.Floats([]float32{1, 2}),
		"color":  model.String("red"),
		"price":  model.Int(9),
		"group":  model.Int(3),
	}})

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vector"},
	})

	p, err := NewPipeline(backend, src,
		WithFilterSpecs([]model.NamespaceFilterSpec{
			{Namespace: "color", AllowColumns: []string{"color"}},
		}),
		WithNumericFilterSpecs([]model.NumericFilterSpec{
			{Namespace: "price", DataType: model.NumericInt, SourceColumn: "price"},
		}),
		WithCrowdingColumn("group"),
	)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	require.Len(t, backend.UpsertedBatches, 1)
	dp := backend.UpsertedBatches[0][0]
	require.Len(t, dp.Restricts, 1)
	assert.Equal(t, []string{"red"}, dp.Restricts[0].AllowList)
	require.Len(t, dp.NumericRestricts, 1)
	require.NotNil(t, dp.NumericRestricts[0].ValueInt)
	assert.Equal(t, int64(9), *dp.NumericRestricts[0].ValueInt)
	assert.Equal(t, "3", dp.CrowdingAttribute)
}

func TestPipeline_ExtraVectorColumnsIgnored(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", []model.Row{{
		"id":     model.String("row-0"),
		"vec_a":  model.Floats([]float32{1, 2}),
		"vec_b":  model.Floats([]float32{3, 4}),
		"vector": model.Floats([]float32{5, 6}),
	}})

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vec_a", "vec_b"},
	})

	p, err := NewPipeline(backend, src)
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)

	require.Len(t, backend.UpsertedBatches, 1)
	assert.Equal(t, []float32{1, 2}, backend.UpsertedBatches[0][0].Vector)
}

func TestPipeline_SchemaMismatchAnnotated(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", []model.Row{
		{"id": model.String("row-0"), "vector": model.Floats([]float32{1})},
		{"vector": model.Floats([]float32{2})},
	})

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vector"},
	})

	p, err := NewPipeline(backend, src)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), m, testIndexID)
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "id", sm.Column)
	assert.Equal(t, "demo/ns1/part-000.jsonl", sm.File)
	assert.Equal(t, 2, sm.Row)
}

func TestPipeline_Cancellation(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := twoFileSetup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := NewPipeline(backend, src)
	require.NoError(t, err)

	rep, err := p.Run(ctx, m, testIndexID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rep.Total)
	assert.Equal(t, 0, backend.UpsertCalls)
}

func TestPipeline_InvalidFilterSpecs(t *testing.T) {
	_, err := NewPipeline(remotetest.NewBackend(), rowsource.NewMemSource(),
		WithNumericFilterSpecs([]model.NumericFilterSpec{
			{Namespace: "price", DataType: "decimal", SourceColumn: "price"},
		}),
	)
	assert.Error(t, err)
}

func TestPipeline_IDColumnOverride(t *testing.T) {
	backend := remotetest.NewBackend()

	src := rowsource.NewMemSource()
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", []model.Row{{
		"pk":     model.Int(7),
		"vector": model.Floats([]float32{1}),
	}})

	m := testManifest(manifest.NamespaceMeta{
		Namespace:     "ns1",
		DataPath:      "demo/ns1",
		VectorColumns: []string{"vector"},
	})

	p, err := NewPipeline(backend, src, WithIDColumn("pk"))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), m, testIndexID)
	require.NoError(t, err)

	require.Len(t, backend.UpsertedBatches, 1)
	assert.Equal(t, "7", backend.UpsertedBatches[0][0].ID)
}
