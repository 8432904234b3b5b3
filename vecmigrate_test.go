package vecmigrate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmigrate/bootstrap"
	"github.com/hupe1980/vecmigrate/internal/clock"
	"github.com/hupe1980/vecmigrate/manifest"
	"github.com/hupe1980/vecmigrate/model"
	"github.com/hupe1980/vecmigrate/remote"
	"github.com/hupe1980/vecmigrate/remote/remotetest"
	"github.com/hupe1980/vecmigrate/rowsource"
)

func demoDataset(rows int) (*rowsource.MemSource, *manifest.Manifest) {
	src := rowsource.NewMemSource()

	data := make([]model.Row, 0, rows)
	for i := 0; i < rows; i++ {
		data = append(data, model.Row{
			"id":     model.String(fmt.Sprintf("row-%d", i)),
			"vector": model.Floats([]float32{float32(i), float32(i), float32(i)}),
		})
	}
	src.AddFile("demo/ns1", "demo/ns1/part-000.jsonl", data)

	m := &manifest.Manifest{
		Version: "1.0",
		Indexes: map[string][]manifest.NamespaceMeta{
			"demo": {{
				Namespace:     "ns1",
				DataPath:      "demo/ns1",
				VectorColumns: []string{"vector"},
				Dimensions:    3,
			}},
		},
	}
	return src, m
}

func TestMigrator_CreateDeployIngest(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := demoDataset(5)
	seeds := bootstrap.NewMemStore()

	mg, err := New(backend, src,
		WithCreateIfAbsent(0), // dimensions from the manifest
		WithDeploy(),
		WithSeedStore(seeds, ""),
		WithBatchSize(2),
		WithClock(clock.NewFake()),
	)
	require.NoError(t, err)

	rep, err := mg.MigrateManifest(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Total)

	// Seed record lands under the index name before the index exists.
	_, ok := seeds.Object("demo/" + bootstrap.SeedFileName)
	assert.True(t, ok)

	assert.Equal(t, 1, backend.CreateIndexCalls)
	assert.Equal(t, 1, backend.CreateEndpointCalls)
	assert.Equal(t, 1, backend.DeployCalls)
	assert.Equal(t, 3, backend.UpsertCalls)
}

func TestMigrator_ExistingIndexSkipsCreation(t *testing.T) {
	backend := remotetest.NewBackend()
	backend.SeedIndex(remote.Index{
		Name:        "projects/p/locations/l/indexes/9",
		DisplayName: "demo",
		Dimensions:  3,
	})
	src, m := demoDataset(2)

	mg, err := New(backend, src, WithClock(clock.NewFake()))
	require.NoError(t, err)

	rep, err := mg.MigrateManifest(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 0, backend.CreateIndexCalls)

	// Upserts target the resolved resource, not the display name.
	require.Len(t, backend.UpsertedBatches, 1)
}

func TestMigrator_MissingIndexWithoutCreate(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := demoDataset(1)

	mg, err := New(backend, src)
	require.NoError(t, err)

	_, err = mg.MigrateManifest(context.Background(), m)
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.Equal(t, 0, backend.UpsertCalls)
}

func TestMigrator_CreateWithoutSeedStore(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := demoDataset(1)

	mg, err := New(backend, src, WithCreateIfAbsent(3))
	require.NoError(t, err)

	_, err = mg.MigrateManifest(context.Background(), m)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestMigrator_ExplicitContentsLocationSkipsSeeding(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := demoDataset(1)

	mg, err := New(backend, src,
		WithCreateIfAbsent(3),
		WithContentsDeltaURI("s3://staging/demo"),
		WithClock(clock.NewFake()),
	)
	require.NoError(t, err)

	rep, err := mg.MigrateManifest(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, backend.CreateIndexCalls)
}

func TestMigrator_EmptyManifest(t *testing.T) {
	mg, err := New(remotetest.NewBackend(), rowsource.NewMemSource())
	require.NoError(t, err)

	_, err = mg.MigrateManifest(context.Background(), &manifest.Manifest{
		Indexes: map[string][]manifest.NamespaceMeta{},
	})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestMigrator_MetricsCollected(t *testing.T) {
	backend := remotetest.NewBackend()
	src, m := demoDataset(4)
	metrics := &BasicMetricsCollector{}

	mg, err := New(backend, src,
		WithCreateIfAbsent(3),
		WithSeedStore(bootstrap.NewMemStore(), "staging"),
		WithBatchSize(2),
		WithMetricsCollector(metrics),
		WithClock(clock.NewFake()),
	)
	require.NoError(t, err)

	_, err = mg.MigrateManifest(context.Background(), m)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ReconcileCount)
	assert.Equal(t, int64(2), stats.UpsertBatchCount)
	assert.Equal(t, int64(4), stats.UpsertRowCount)
	assert.Equal(t, int64(0), stats.UpsertErrors)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, rowsource.NewMemSource())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(remotetest.NewBackend(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
