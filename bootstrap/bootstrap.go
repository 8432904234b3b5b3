// Package bootstrap writes the placeholder record a brand-new index
// requires as its initial contents: a zero vector of the configured
// dimensionality tagged with a fresh unique id, uploaded to a
// caller-designated object-store location before index creation.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
)

// SeedFileName is the object name of the placeholder record.
const SeedFileName = "embeddings_0.json"

// ErrConfiguration is returned for unusable seed parameters.
var ErrConfiguration = errors.New("bootstrap: invalid configuration")

// ObjectStore is the write seam to the backing object storage.
type ObjectStore interface {
	// Put writes data under key. The write must be visible to the remote
	// service once Put returns.
	Put(ctx context.Context, key string, data []byte) error

	// URI returns the service-addressable location of key.
	URI(key string) string
}

// seedRecord matches the initial-contents format the service ingests.
type seedRecord struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
}

// Seed uploads the placeholder record under folder and returns the folder
// URI for use as the index's initial contents location.
func Seed(ctx context.Context, store ObjectStore, folder string, dimensions int) (string, error) {
	if dimensions <= 0 {
		return "", fmt.Errorf("%w: dimensions must be positive, got %d", ErrConfiguration, dimensions)
	}

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return "", fmt.Errorf("bootstrap: generate seed id: %w", err)
	}

	data, err := json.Marshal(seedRecord{
		ID:        hex.EncodeToString(id),
		Embedding: make([]float32, dimensions),
	})
	if err != nil {
		return "", fmt.Errorf("bootstrap: encode seed record: %w", err)
	}

	key := path.Join(folder, SeedFileName)
	if err := store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("bootstrap: upload seed record: %w", err)
	}

	return store.URI(folder), nil
}

// MemStore is an in-memory ObjectStore for tests.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

// Put implements ObjectStore.
func (s *MemStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

// URI implements ObjectStore.
func (s *MemStore) URI(key string) string { return "mem://" + key }

// Object returns a stored object and whether it exists.
func (s *MemStore) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ ObjectStore = (*MemStore)(nil)
