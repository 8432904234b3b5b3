// Package remotetest provides a scripted in-memory backend implementing
// remote.Client for reconciler and pipeline tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/vecmigrate/model"
	"github.com/hupe1980/vecmigrate/remote"
)

// Backend is a fake managed service. Resources become visible only once
// their creation operation polls Done, mirroring the real service.
// All methods are safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	indexes   []remote.Index
	endpoints []remote.Endpoint

	// PendingPolls is the number of Pending statuses every new operation
	// reports before settling.
	PendingPolls int

	nextID int

	upsertErrs   []error
	listIndexErr error
	nextOpErr    error

	// Counters and captures.
	CreateIndexCalls    int
	CreateEndpointCalls int
	DeployCalls         int
	UpsertCalls         int
	UpsertedBatches     [][]model.Datapoint
}

// NewBackend creates an empty fake service.
func NewBackend() *Backend {
	return &Backend{}
}

// SeedIndex registers a pre-existing index.
func (b *Backend) SeedIndex(idx remote.Index) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexes = append(b.indexes, idx)
}

// SeedEndpoint registers a pre-existing endpoint.
func (b *Backend) SeedEndpoint(ep remote.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = append(b.endpoints, ep)
}

// FailUpsert scripts the errors returned by successive UpsertDatapoints
// calls; a nil entry means that call succeeds. Once the script is
// exhausted all calls succeed.
func (b *Backend) FailUpsert(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upsertErrs = append(b.upsertErrs, errs...)
}

// FailListIndexes makes the next ListIndexes call return err.
func (b *Backend) FailListIndexes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listIndexErr = err
}

// FailNextOperation makes the next created operation settle as Failed
// with err.
func (b *Backend) FailNextOperation(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextOpErr = err
}

// Indexes returns a snapshot of the registered indexes.
func (b *Backend) Indexes() []remote.Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]remote.Index, len(b.indexes))
	copy(out, b.indexes)
	return out
}

// ListIndexes implements remote.Client.
func (b *Backend) ListIndexes(ctx context.Context) ([]remote.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.listIndexErr; err != nil {
		b.listIndexErr = nil
		return nil, err
	}
	out := make([]remote.Index, len(b.indexes))
	copy(out, b.indexes)
	return out, nil
}

// ListEndpoints implements remote.Client.
func (b *Backend) ListEndpoints(ctx context.Context) ([]remote.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]remote.Endpoint, len(b.endpoints))
	copy(out, b.endpoints)
	return out, nil
}

// GetIndex implements remote.Client.
func (b *Backend) GetIndex(ctx context.Context, id string) (remote.Index, error) {
	if err := ctx.Err(); err != nil {
		return remote.Index{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, idx := range b.indexes {
		if idx.Name == id {
			return idx, nil
		}
	}
	return remote.Index{}, remote.Fatal(fmt.Errorf("%w: index %q", remote.ErrNotFound, id))
}

// fakeOp settles after a scripted number of Pending polls, invoking
// commit exactly once on the Done transition.
type fakeOp[T any] struct {
	mu          sync.Mutex
	pendingLeft int
	result      T
	err         error
	commit      func()
	committed   bool
}

func (op *fakeOp[T]) Poll(ctx context.Context) (remote.OperationStatus[T], error) {
	if err := ctx.Err(); err != nil {
		return remote.OperationStatus[T]{}, err
	}
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.pendingLeft > 0 {
		op.pendingLeft--
		return remote.OperationStatus[T]{State: remote.OperationPending}, nil
	}
	if op.err != nil {
		return remote.OperationStatus[T]{State: remote.OperationFailed, Err: op.err}, nil
	}
	if !op.committed && op.commit != nil {
		op.commit()
		op.committed = true
	}
	return remote.OperationStatus[T]{State: remote.OperationDone, Result: op.result}, nil
}

func (b *Backend) takeOpErr() error {
	err := b.nextOpErr
	b.nextOpErr = nil
	return err
}

// CreateIndex implements remote.Client.
func (b *Backend) CreateIndex(ctx context.Context, spec remote.IndexSpec) (remote.Operation[remote.Index], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.CreateIndexCalls++
	b.nextID++
	idx := remote.Index{
		Name:            fmt.Sprintf("projects/test/locations/test/indexes/%d", b.nextID),
		DisplayName:     spec.DisplayName,
		Dimensions:      spec.Dimensions,
		DistanceMeasure: spec.DistanceMeasure,
		ShardSize:       spec.ShardSize,
	}

	return &fakeOp[remote.Index]{
		pendingLeft: b.PendingPolls,
		result:      idx,
		err:         b.takeOpErr(),
		commit: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.indexes = append(b.indexes, idx)
		},
	}, nil
}

// CreateEndpoint implements remote.Client.
func (b *Backend) CreateEndpoint(ctx context.Context, spec remote.EndpointSpec) (remote.Operation[remote.Endpoint], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.CreateEndpointCalls++
	b.nextID++
	ep := remote.Endpoint{
		Name:           fmt.Sprintf("projects/test/locations/test/indexEndpoints/%d", b.nextID),
		DisplayName:    spec.DisplayName,
		PublicEndpoint: spec.PublicEndpoint,
	}

	return &fakeOp[remote.Endpoint]{
		pendingLeft: b.PendingPolls,
		result:      ep,
		err:         b.takeOpErr(),
		commit: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.endpoints = append(b.endpoints, ep)
		},
	}, nil
}

// DeployIndex implements remote.Client.
func (b *Backend) DeployIndex(ctx context.Context, endpointID string, spec remote.DeploymentSpec) (remote.Operation[remote.Endpoint], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.DeployCalls++

	var target *remote.Endpoint
	for i := range b.endpoints {
		if b.endpoints[i].Name == endpointID {
			target = &b.endpoints[i]
			break
		}
	}
	if target == nil {
		return nil, remote.Fatal(fmt.Errorf("%w: endpoint %q", remote.ErrNotFound, endpointID))
	}

	deployed := remote.DeployedIndex{ID: spec.ID, DisplayName: spec.DisplayName, Index: spec.Index}
	result := *target
	result.DeployedIndexes = append(append([]remote.DeployedIndex(nil), result.DeployedIndexes...), deployed)

	return &fakeOp[remote.Endpoint]{
		pendingLeft: b.PendingPolls,
		result:      result,
		err:         b.takeOpErr(),
		commit: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i := range b.endpoints {
				if b.endpoints[i].Name == endpointID {
					b.endpoints[i].DeployedIndexes = append(b.endpoints[i].DeployedIndexes, deployed)
				}
			}
		},
	}, nil
}

// UpsertDatapoints implements remote.Client.
func (b *Backend) UpsertDatapoints(ctx context.Context, indexID string, datapoints []model.Datapoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.UpsertCalls++
	if len(b.upsertErrs) > 0 {
		err := b.upsertErrs[0]
		b.upsertErrs = b.upsertErrs[1:]
		if err != nil {
			return err
		}
	}

	batch := make([]model.Datapoint, len(datapoints))
	copy(batch, datapoints)
	b.UpsertedBatches = append(b.UpsertedBatches, batch)
	return nil
}

var _ remote.Client = (*Backend)(nil)
