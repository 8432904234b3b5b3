package bootstrap

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	uri, err := Seed(ctx, store, "staging/demo", 4)
	require.NoError(t, err)
	assert.Equal(t, "mem://staging/demo", uri)

	require.Equal(t, 1, store.Len())
	data, ok := store.Object("staging/demo/" + SeedFileName)
	require.True(t, ok)

	var rec struct {
		ID        string    `json:"id"`
		Embedding []float32 `json:"embedding"`
	}
	require.NoError(t, json.Unmarshal(data, &rec))

	// A fresh 32-hex-char id and a zero vector of the index dimensionality.
	assert.Len(t, rec.ID, 32)
	assert.Equal(t, []float32{0, 0, 0, 0}, rec.Embedding)
}

func TestSeed_UniqueIDs(t *testing.T) {
	ctx := context.Background()

	ids := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		store := NewMemStore()
		_, err := Seed(ctx, store, "f", 1)
		require.NoError(t, err)

		data, _ := store.Object("f/" + SeedFileName)
		var rec struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(data, &rec))
		ids[rec.ID] = struct{}{}
	}
	assert.Len(t, ids, 10)
}

func TestSeed_InvalidDimensions(t *testing.T) {
	_, err := Seed(context.Background(), NewMemStore(), "f", 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Seed(context.Background(), NewMemStore(), "f", -3)
	assert.ErrorIs(t, err, ErrConfiguration)
}
