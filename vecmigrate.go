package vecmigrate

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecmigrate/bootstrap"
	"github.com/hupe1980/vecmigrate/ingest"
	"github.com/hupe1980/vecmigrate/manifest"
	"github.com/hupe1980/vecmigrate/reconcile"
	"github.com/hupe1980/vecmigrate/remote"
	"github.com/hupe1980/vecmigrate/rowsource"
)

// Report is the per-namespace row accounting returned by a migration.
type Report = ingest.Report

// Migrator migrates one dataset into one target index. Construct with
// New; the zero value is not usable.
type Migrator struct {
	client remote.Client
	source rowsource.Source
	opts   options
}

// New creates a Migrator reading rows from source and talking to the
// service through client.
func New(client remote.Client, source rowsource.Source, optFns ...Option) (*Migrator, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: remote client is required", ErrConfiguration)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: row source is required", ErrConfiguration)
	}

	return &Migrator{
		client: client,
		source: source,
		opts:   applyOptions(optFns),
	}, nil
}

// Migrate loads the manifest at path (a dataset directory or the
// manifest file itself) and runs the migration.
func (mg *Migrator) Migrate(ctx context.Context, path string) (ingest.Report, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return ingest.Report{}, err
	}
	return mg.MigrateManifest(ctx, m)
}

// MigrateManifest runs the migration for an already-loaded manifest:
// seed upload when a new index needs initial contents, resource
// reconciliation, then ingestion. The returned report carries the rows
// acknowledged by the service; on error it holds the partial progress
// before the abort.
func (mg *Migrator) MigrateManifest(ctx context.Context, m *manifest.Manifest) (ingest.Report, error) {
	req, err := mg.buildRequest(m)
	if err != nil {
		return ingest.Report{}, err
	}

	if mg.opts.create && req.ContentsDeltaURI == "" {
		uri, err := mg.seed(ctx, req)
		if err != nil {
			return ingest.Report{}, err
		}
		req.ContentsDeltaURI = uri
	}

	res, err := mg.reconcile(ctx, req)
	if err != nil {
		return ingest.Report{}, err
	}

	p, err := mg.pipeline()
	if err != nil {
		return ingest.Report{}, err
	}

	rep, err := p.Run(ctx, m, res.Index.Name)
	mg.opts.logger.LogMigration(ctx, rep, err)
	return rep, err
}

// buildRequest resolves the reconciliation request from options and
// manifest, filling dimensions from the dataset when not set explicitly.
func (mg *Migrator) buildRequest(m *manifest.Manifest) (reconcile.Request, error) {
	indexName := mg.opts.indexName
	if indexName == "" {
		names := m.IndexNames()
		if len(names) == 0 {
			return reconcile.Request{}, fmt.Errorf("%w: manifest declares no indexes", ErrConfiguration)
		}
		indexName = names[0]
	}

	req := reconcile.NewRequest(indexName)
	req.CreateIfAbsent = mg.opts.create
	req.DeployIfAbsent = mg.opts.deploy
	req.ContentsDeltaURI = mg.opts.contentsDeltaURI

	if mg.opts.endpointName != "" {
		req.EndpointName = mg.opts.endpointName
	}
	if mg.opts.distanceMeasure != "" {
		req.DistanceMeasure = mg.opts.distanceMeasure
	}
	if mg.opts.shardSize != "" {
		req.ShardSize = mg.opts.shardSize
	}
	if mg.opts.machineType != "" {
		req.MachineType = mg.opts.machineType
	}
	if mg.opts.minReplicas > 0 {
		req.MinReplicas = mg.opts.minReplicas
	}
	if mg.opts.maxReplicas > 0 {
		req.MaxReplicas = mg.opts.maxReplicas
	}

	req.Dimensions = mg.opts.dimensions
	if req.Dimensions == 0 {
		req.Dimensions = manifestDimensions(m)
	}

	return req, nil
}

// manifestDimensions returns the first declared namespace dimensionality.
func manifestDimensions(m *manifest.Manifest) int {
	for _, name := range m.IndexNames() {
		for _, ns := range m.Indexes[name] {
			if ns.Dimensions > 0 {
				return ns.Dimensions
			}
		}
	}
	return 0
}

// seed uploads the zero-vector placeholder a brand-new index requires and
// returns its folder URI.
func (mg *Migrator) seed(ctx context.Context, req reconcile.Request) (string, error) {
	if mg.opts.seedStore == nil {
		return "", fmt.Errorf("%w: creating index %q requires a seed store or an explicit contents location", ErrConfiguration, req.IndexName)
	}

	folder := mg.opts.seedFolder
	if folder == "" {
		folder = req.IndexName
	}

	uri, err := bootstrap.Seed(ctx, mg.opts.seedStore, folder, req.Dimensions)
	mg.opts.logger.LogSeed(ctx, uri, req.Dimensions, err)
	if err != nil {
		return "", err
	}
	return uri, nil
}

func (mg *Migrator) reconcile(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	r := reconcile.New(mg.client,
		reconcile.WithClock(mg.opts.clock),
		reconcile.WithLogger(mg.opts.logger.Logger),
		reconcile.WithPollIntervals(mg.opts.createPollInterval, mg.opts.deployPollInterval),
	)

	began := mg.opts.clock.Now()
	res, err := r.Ensure(ctx, req)
	mg.opts.metrics.RecordReconcile(mg.opts.clock.Now().Sub(began), err)
	mg.opts.logger.LogReconcile(ctx, req.IndexName, res.Deployed, err)
	if err != nil {
		return reconcile.Result{}, err
	}
	return res, nil
}

func (mg *Migrator) pipeline() (*ingest.Pipeline, error) {
	pipelineOpts := []ingest.Option{
		ingest.WithBatchSize(mg.opts.batchSize),
		ingest.WithFilterSpecs(mg.opts.filterSpecs),
		ingest.WithNumericFilterSpecs(mg.opts.numericSpecs),
		ingest.WithCrowdingColumn(mg.opts.crowdingColumn),
		ingest.WithIDColumn(mg.opts.idColumn),
		ingest.WithMaxInFlight(mg.opts.maxInFlight),
		ingest.WithRetry(mg.opts.maxAttempts, mg.opts.backoffBase),
		ingest.WithClock(mg.opts.clock),
		ingest.WithLogger(mg.opts.logger.Logger),
		ingest.WithMetrics(mg.opts.metrics),
	}
	if mg.opts.rateLimit != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithRateLimit(mg.opts.rateLimit))
	}
	if mg.opts.ckptStore != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithCheckpointStore(mg.opts.ckptStore, mg.opts.runID))
	}

	return ingest.NewPipeline(mg.client, mg.source, pipelineOpts...)
}
