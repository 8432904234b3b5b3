// Package remote abstracts the managed vector-index service behind a
// narrow client interface so that reconciliation and ingestion are
// testable without a live backend.
package remote

import (
	"context"

	"github.com/hupe1980/vecmigrate/model"
)

// Index creation defaults, matching the service's recommended settings.
const (
	DefaultApproximateNeighborsCount = 150
	DefaultLeafNodeEmbeddingCount    = 1000
	DefaultLeafNodesToSearchPercent  = 7
	DefaultDistanceMeasure           = "DOT_PRODUCT_DISTANCE"
	DefaultShardSize                 = "SHARD_SIZE_MEDIUM"
	DefaultMachineType               = "e2-standard-16"
)

// Index is a remote index resource.
type Index struct {
	// Name is the remote resource identifier.
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`

	Dimensions      int    `json:"dimensions,omitempty"`
	DistanceMeasure string `json:"distanceMeasure,omitempty"`
	ShardSize       string `json:"shardSize,omitempty"`
}

// DeployedIndex binds an index to an endpoint under a deployment alias.
type DeployedIndex struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	// Index is the resource identifier of the deployed index.
	Index string `json:"index"`
}

// Endpoint is a remote serving endpoint resource.
type Endpoint struct {
	Name            string          `json:"name"`
	DisplayName     string          `json:"displayName"`
	PublicEndpoint  bool            `json:"publicEndpointEnabled,omitempty"`
	DeployedIndexes []DeployedIndex `json:"deployedIndexes,omitempty"`
}

// IndexSpec describes an index to create.
type IndexSpec struct {
	DisplayName               string            `json:"displayName"`
	Description               string            `json:"description,omitempty"`
	Dimensions                int               `json:"dimensions"`
	ApproximateNeighborsCount int               `json:"approximateNeighborsCount,omitempty"`
	LeafNodeEmbeddingCount    int               `json:"leafNodeEmbeddingCount,omitempty"`
	LeafNodesToSearchPercent  int               `json:"leafNodesToSearchPercent,omitempty"`
	DistanceMeasure           string            `json:"distanceMeasureType,omitempty"`
	ShardSize                 string            `json:"shardSize,omitempty"`
	ContentsDeltaURI          string            `json:"contentsDeltaUri,omitempty"`
	Labels                    map[string]string `json:"labels,omitempty"`
}

// EndpointSpec describes an endpoint to create.
type EndpointSpec struct {
	DisplayName    string `json:"displayName"`
	PublicEndpoint bool   `json:"publicEndpointEnabled"`
}

// DeploymentSpec describes the deployment of an index onto an endpoint.
type DeploymentSpec struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Index       string `json:"index"`
	MachineType string `json:"machineType"`
	MinReplicas int    `json:"minReplicaCount"`
	MaxReplicas int    `json:"maxReplicaCount"`
}

// OperationState enumerates the phases of a long-running operation.
type OperationState uint8

const (
	OperationPending OperationState = iota
	OperationDone
	OperationFailed
)

// OperationStatus is the result of a single poll of a long-running
// operation. Result is meaningful only when State is OperationDone, Err
// only when State is OperationFailed.
type OperationStatus[T any] struct {
	State  OperationState
	Result T
	Err    error
}

// Operation is a handle to an asynchronous remote action. Poll never
// blocks for the operation to complete; callers drive their own cadence.
type Operation[T any] interface {
	Poll(ctx context.Context) (OperationStatus[T], error)
}

// Client is the seam to the managed service. Listing operates over the
// service's parent scope configured at client construction.
type Client interface {
	ListIndexes(ctx context.Context) ([]Index, error)
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	GetIndex(ctx context.Context, id string) (Index, error)

	CreateIndex(ctx context.Context, spec IndexSpec) (Operation[Index], error)
	CreateEndpoint(ctx context.Context, spec EndpointSpec) (Operation[Endpoint], error)
	DeployIndex(ctx context.Context, endpointID string, spec DeploymentSpec) (Operation[Endpoint], error)

	UpsertDatapoints(ctx context.Context, indexID string, datapoints []model.Datapoint) error
}
