package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	_, ok, err := store.Get(ctx, "run-1", "ns1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "run-1", "ns1", 100))

	n, ok, err := store.Get(ctx, "run-1", "ns1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, n)
}

func TestMemStore_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Put(ctx, "run-1", "ns1", 100))
	// A stale write from a slower batch must not regress the count.
	require.NoError(t, store.Put(ctx, "run-1", "ns1", 40))

	n, _, err := store.Get(ctx, "run-1", "ns1")
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestMemStore_KeysAreScoped(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.Put(ctx, "run-1", "ns1", 1))
	require.NoError(t, store.Put(ctx, "run-1", "ns2", 2))
	require.NoError(t, store.Put(ctx, "run-2", "ns1", 3))

	n, _, _ := store.Get(ctx, "run-1", "ns1")
	assert.Equal(t, 1, n)
	n, _, _ = store.Get(ctx, "run-1", "ns2")
	assert.Equal(t, 2, n)
	n, _, _ = store.Get(ctx, "run-2", "ns1")
	assert.Equal(t, 3, n)
}
