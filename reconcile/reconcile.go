// Package reconcile implements the get-or-create state machines that map
// logical index, endpoint, and deployment names onto exactly one remote
// resource each, tolerating partial prior runs and long-running
// asynchronous provisioning.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/vecmigrate/internal/clock"
	"github.com/hupe1980/vecmigrate/remote"
)

// Default polling cadences. Deployment provisioning is materially slower
// than creation, hence the longer interval.
const (
	DefaultCreatePollInterval = 5 * time.Second
	DefaultDeployPollInterval = 60 * time.Second
)

var (
	// ErrResourceNotFound is returned when a named resource is absent and
	// creation was not requested.
	ErrResourceNotFound = errors.New("reconcile: resource not found and creation not requested")

	// ErrAmbiguousResource is returned when a lookup matches more than one
	// distinct remote resource. The reconciler raises rather than guesses.
	ErrAmbiguousResource = errors.New("reconcile: ambiguous resource lookup")

	// ErrConfiguration is returned when a creation request is missing
	// required parameters.
	ErrConfiguration = errors.New("reconcile: invalid configuration")
)

// Request is the immutable reconciliation request for one logical index.
// Build it once with NewRequest; derived names are computed at
// construction time and never mutated afterwards.
type Request struct {
	IndexName    string
	EndpointName string

	CreateIfAbsent bool
	DeployIfAbsent bool

	// Index creation parameters, required when CreateIfAbsent is set.
	Dimensions                int
	ApproximateNeighborsCount int
	LeafNodeEmbeddingCount    int
	LeafNodesToSearchPercent  int
	DistanceMeasure           string
	ShardSize                 string
	ContentsDeltaURI          string

	// Deployment parameters.
	MachineType string
	MinReplicas int
	MaxReplicas int
}

// NewRequest builds a Request with service defaults applied and the
// endpoint name derived from the index name when not set explicitly.
func NewRequest(indexName string) Request {
	return Request{
		IndexName:                 indexName,
		EndpointName:              indexName + "-endpoint",
		ApproximateNeighborsCount: remote.DefaultApproximateNeighborsCount,
		LeafNodeEmbeddingCount:    remote.DefaultLeafNodeEmbeddingCount,
		LeafNodesToSearchPercent:  remote.DefaultLeafNodesToSearchPercent,
		DistanceMeasure:           remote.DefaultDistanceMeasure,
		ShardSize:                 remote.DefaultShardSize,
		MachineType:               remote.DefaultMachineType,
		MinReplicas:               1,
		MaxReplicas:               1,
	}
}

// Reconciler drives the per-resource state machines against a remote
// client.
type Reconciler struct {
	client remote.Client
	clock  clock.Clock
	logger *slog.Logger

	createPollInterval time.Duration
	deployPollInterval time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used for polling sleeps.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPollIntervals overrides the creation and deployment polling cadences.
func WithPollIntervals(create, deploy time.Duration) Option {
	return func(r *Reconciler) {
		if create > 0 {
			r.createPollInterval = create
		}
		if deploy > 0 {
			r.deployPollInterval = deploy
		}
	}
}

// New creates a Reconciler.
func New(client remote.Client, optFns ...Option) *Reconciler {
	r := &Reconciler{
		client:             client,
		clock:              clock.Real{},
		logger:             slog.New(slog.DiscardHandler),
		createPollInterval: DefaultCreatePollInterval,
		deployPollInterval: DefaultDeployPollInterval,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(r)
		}
	}
	return r
}

// Result carries the reconciled resources of one Ensure run.
type Result struct {
	Index    remote.Index
	Endpoint remote.Endpoint
	// Deployed reports whether the index is deployed on the endpoint.
	// False when deployment was not requested.
	Deployed bool
}

// Ensure reconciles the index and, when requested, its endpoint and
// deployment. Re-entrant: a second call finds the first call's resources
// and performs zero creations.
func (r *Reconciler) Ensure(ctx context.Context, req Request) (Result, error) {
	idx, err := r.EnsureIndex(ctx, req)
	if err != nil {
		return Result{}, err
	}

	res := Result{Index: idx}
	if !req.DeployIfAbsent {
		return res, nil
	}

	ep, err := r.EnsureEndpoint(ctx, req)
	if err != nil {
		return Result{}, err
	}
	ep, err = r.EnsureDeployment(ctx, ep, idx, req)
	if err != nil {
		return Result{}, err
	}

	res.Endpoint = ep
	res.Deployed = true
	return res, nil
}

// lookupIndex is the two-phase index lookup. Phase one matches the name
// against each index's resource id and display name. Phase two, attempted
// only after phase one explicitly finds nothing, searches every
// endpoint's deployments for a matching alias and resolves back to the
// owning index. Transport errors propagate from either phase; they are
// never masked as not-found.
func (r *Reconciler) lookupIndex(ctx context.Context, name string) (remote.Index, bool, error) {
	indexes, err := r.client.ListIndexes(ctx)
	if err != nil {
		return remote.Index{}, false, fmt.Errorf("reconcile: list indexes: %w", err)
	}

	var matches []remote.Index
	for _, idx := range indexes {
		if idx.Name == name || idx.DisplayName == name {
			matches = append(matches, idx)
		}
	}
	if len(matches) > 1 {
		return remote.Index{}, false, fmt.Errorf("%w: %d indexes match %q", ErrAmbiguousResource, len(matches), name)
	}
	if len(matches) == 1 {
		return matches[0], true, nil
	}

	// Phase two: the logical name may be registered only as a deployment
	// alias, not as the index's own display name.
	endpoints, err := r.client.ListEndpoints(ctx)
	if err != nil {
		return remote.Index{}, false, fmt.Errorf("reconcile: list endpoints: %w", err)
	}

	owners := make(map[string]struct{})
	for _, ep := range endpoints {
		for _, d := range ep.DeployedIndexes {
			if d.ID == name || d.DisplayName == name {
				owners[d.Index] = struct{}{}
			}
		}
	}
	if len(owners) > 1 {
		return remote.Index{}, false, fmt.Errorf("%w: %d deployments match %q", ErrAmbiguousResource, len(owners), name)
	}
	for owner := range owners {
		idx, err := r.client.GetIndex(ctx, owner)
		if err != nil {
			return remote.Index{}, false, fmt.Errorf("reconcile: resolve deployed index %q: %w", owner, err)
		}
		r.logger.InfoContext(ctx, "index resolved via deployment alias",
			"name", name,
			"resource", idx.Name,
		)
		return idx, true, nil
	}

	return remote.Index{}, false, nil
}

// EnsureIndex finds or creates the index named by the request.
func (r *Reconciler) EnsureIndex(ctx context.Context, req Request) (remote.Index, error) {
	if req.IndexName == "" {
		return remote.Index{}, fmt.Errorf("%w: index name is required", ErrConfiguration)
	}

	idx, found, err := r.lookupIndex(ctx, req.IndexName)
	if err != nil {
		return remote.Index{}, err
	}
	if found {
		r.logger.InfoContext(ctx, "index exists", "name", req.IndexName, "resource", idx.Name)
		return idx, nil
	}

	if !req.CreateIfAbsent {
		return remote.Index{}, fmt.Errorf("%w: index %q", ErrResourceNotFound, req.IndexName)
	}
	if req.Dimensions <= 0 {
		return remote.Index{}, fmt.Errorf("%w: dimensions required to create index %q", ErrConfiguration, req.IndexName)
	}
	if req.ContentsDeltaURI == "" {
		return remote.Index{}, fmt.Errorf("%w: contents location required to create index %q", ErrConfiguration, req.IndexName)
	}

	spec := remote.IndexSpec{
		DisplayName:               req.IndexName,
		Description:               fmt.Sprintf("created during vecmigrate import at %s", r.clock.Now().UTC().Format("20060102_150405")),
		Dimensions:                req.Dimensions,
		ApproximateNeighborsCount: req.ApproximateNeighborsCount,
		LeafNodeEmbeddingCount:    req.LeafNodeEmbeddingCount,
		LeafNodesToSearchPercent:  req.LeafNodesToSearchPercent,
		DistanceMeasure:           req.DistanceMeasure,
		ShardSize:                 req.ShardSize,
		ContentsDeltaURI:          req.ContentsDeltaURI,
		Labels:                    map[string]string{"tag": "vecmigrate-import"},
	}

	r.logger.InfoContext(ctx, "creating index", "name", req.IndexName, "dimensions", req.Dimensions)

	op, err := r.client.CreateIndex(ctx, spec)
	if err != nil {
		return remote.Index{}, fmt.Errorf("reconcile: create index %q: %w", req.IndexName, err)
	}

	idx, err = awaitOperation(ctx, r.clock, op, r.createPollInterval)
	if err != nil {
		return remote.Index{}, fmt.Errorf("reconcile: index %q: %w", req.IndexName, err)
	}

	r.logger.InfoContext(ctx, "index created", "name", req.IndexName, "resource", idx.Name)
	return idx, nil
}

// EnsureEndpoint finds or creates the serving endpoint named by the
// request.
func (r *Reconciler) EnsureEndpoint(ctx context.Context, req Request) (remote.Endpoint, error) {
	if req.EndpointName == "" {
		return remote.Endpoint{}, fmt.Errorf("%w: endpoint name is required", ErrConfiguration)
	}

	endpoints, err := r.client.ListEndpoints(ctx)
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("reconcile: list endpoints: %w", err)
	}

	var matches []remote.Endpoint
	for _, ep := range endpoints {
		if ep.Name == req.EndpointName || ep.DisplayName == req.EndpointName {
			matches = append(matches, ep)
		}
	}
	if len(matches) > 1 {
		return remote.Endpoint{}, fmt.Errorf("%w: %d endpoints match %q", ErrAmbiguousResource, len(matches), req.EndpointName)
	}
	if len(matches) == 1 {
		r.logger.InfoContext(ctx, "endpoint exists", "name", req.EndpointName, "resource", matches[0].Name)
		return matches[0], nil
	}

	if !req.CreateIfAbsent {
		return remote.Endpoint{}, fmt.Errorf("%w: endpoint %q", ErrResourceNotFound, req.EndpointName)
	}

	r.logger.InfoContext(ctx, "creating endpoint", "name", req.EndpointName)

	op, err := r.client.CreateEndpoint(ctx, remote.EndpointSpec{
		DisplayName:    req.EndpointName,
		PublicEndpoint: true,
	})
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("reconcile: create endpoint %q: %w", req.EndpointName, err)
	}

	ep, err := awaitOperation(ctx, r.clock, op, r.createPollInterval)
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("reconcile: endpoint %q: %w", req.EndpointName, err)
	}

	r.logger.InfoContext(ctx, "endpoint created", "name", req.EndpointName, "resource", ep.Name)
	return ep, nil
}

// EnsureDeployment binds the index to the endpoint. When the index is
// already among the endpoint's deployed indexes the endpoint is returned
// unchanged and no deployment call is made.
func (r *Reconciler) EnsureDeployment(ctx context.Context, ep remote.Endpoint, idx remote.Index, req Request) (remote.Endpoint, error) {
	for _, d := range ep.DeployedIndexes {
		if d.Index == idx.Name {
			r.logger.InfoContext(ctx, "index already deployed, skipping",
				"index", idx.Name,
				"endpoint", ep.Name,
				"deployment", d.ID,
			)
			return ep, nil
		}
	}

	spec := remote.DeploymentSpec{
		ID:          deployedIndexID(req.IndexName, r.clock.Now()),
		Index:       idx.Name,
		MachineType: req.MachineType,
		MinReplicas: req.MinReplicas,
		MaxReplicas: req.MaxReplicas,
	}
	spec.DisplayName = spec.ID

	r.logger.InfoContext(ctx, "deploying index",
		"index", idx.Name,
		"endpoint", ep.Name,
		"deployment", spec.ID,
		"machine_type", spec.MachineType,
	)

	op, err := r.client.DeployIndex(ctx, ep.Name, spec)
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("reconcile: deploy index %q: %w", idx.Name, err)
	}

	deployed, err := awaitOperation(ctx, r.clock, op, r.deployPollInterval)
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("reconcile: deployment of %q: %w", idx.Name, err)
	}

	r.logger.InfoContext(ctx, "index deployed", "index", idx.Name, "endpoint", deployed.Name)
	return deployed, nil
}

// deployedIndexID derives a service-legal deployment id from the logical
// index name and an invocation timestamp.
func deployedIndexID(indexName string, now time.Time) string {
	return strings.ReplaceAll(indexName, "-", "_") + "_" + now.UTC().Format("20060102_150405")
}

// awaitOperation drives a long-running operation to completion, sleeping
// interval between polls. Cancellation is observed at every sleep and
// poll; an operation that reports Failed surfaces the provider error as
// fatal.
func awaitOperation[T any](ctx context.Context, c clock.Clock, op remote.Operation[T], interval time.Duration) (T, error) {
	var zero T
	for {
		st, err := op.Poll(ctx)
		if err != nil {
			return zero, err
		}
		switch st.State {
		case remote.OperationDone:
			return st.Result, nil
		case remote.OperationFailed:
			return zero, remote.Fatal(st.Err)
		}
		if err := c.Sleep(ctx, interval); err != nil {
			return zero, err
		}
	}
}
