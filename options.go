package vecmigrate

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/vecmigrate/bootstrap"
	"github.com/hupe1980/vecmigrate/checkpoint"
	"github.com/hupe1980/vecmigrate/internal/clock"
	"github.com/hupe1980/vecmigrate/model"
)

type options struct {
	logger  *Logger
	metrics MetricsCollector
	clock   clock.Clock

	// Target resources.
	indexName    string
	endpointName string
	create       bool
	deploy       bool

	// Index creation parameters.
	dimensions       int
	distanceMeasure  string
	shardSize        string
	contentsDeltaURI string
	machineType      string
	minReplicas      int
	maxReplicas      int

	// Seeding for brand-new indexes.
	seedStore  bootstrap.ObjectStore
	seedFolder string

	// Pipeline tuning.
	batchSize      int
	filterSpecs    []model.NamespaceFilterSpec
	numericSpecs   []model.NumericFilterSpec
	crowdingColumn string
	idColumn       string
	maxInFlight    int
	maxAttempts    int
	backoffBase    time.Duration
	rateLimit      *rate.Limiter

	// Progress persistence.
	ckptStore checkpoint.Store
	runID     string

	// Reconciler polling cadences; zero keeps the defaults.
	createPollInterval time.Duration
	deployPollInterval time.Duration
}

// Option configures Migrator behavior.
type Option func(*options)

// WithIndexName sets the target index's logical name. When unset the
// first index name declared in the manifest is used.
func WithIndexName(name string) Option {
	return func(o *options) {
		o.indexName = name
	}
}

// WithEndpointName overrides the derived "<index>-endpoint" endpoint name.
func WithEndpointName(name string) Option {
	return func(o *options) {
		o.endpointName = name
	}
}

// WithCreateIfAbsent enables index and endpoint creation when the named
// resources do not exist. dimensions is the vector dimensionality of the
// new index; pass 0 to take it from the manifest.
func WithCreateIfAbsent(dimensions int) Option {
	return func(o *options) {
		o.create = true
		o.dimensions = dimensions
	}
}

// WithDeploy enables endpoint reconciliation and index deployment before
// ingestion. Without it only the index itself is reconciled.
func WithDeploy() Option {
	return func(o *options) {
		o.deploy = true
	}
}

// WithDistanceMeasure overrides the distance measure for index creation.
func WithDistanceMeasure(measure string) Option {
	return func(o *options) {
		o.distanceMeasure = measure
	}
}

// WithShardSize overrides the shard size for index creation.
func WithShardSize(size string) Option {
	return func(o *options) {
		o.shardSize = size
	}
}

// WithContentsDeltaURI sets the initial-contents location for index
// creation explicitly, bypassing seed upload.
func WithContentsDeltaURI(uri string) Option {
	return func(o *options) {
		o.contentsDeltaURI = uri
	}
}

// WithMachineType sets the deployment machine type.
func WithMachineType(machineType string) Option {
	return func(o *options) {
		o.machineType = machineType
	}
}

// WithReplicas sets the deployment replica bounds.
func WithReplicas(min, max int) Option {
	return func(o *options) {
		o.minReplicas = min
		o.maxReplicas = max
	}
}

// WithSeedStore configures the object store that receives the zero-vector
// seed record when a new index is created. folder is the key prefix the
// record is written under; empty uses the index name.
func WithSeedStore(store bootstrap.ObjectStore, folder string) Option {
	return func(o *options) {
		o.seedStore = store
		o.seedFolder = folder
	}
}

// WithBatchSize bounds upsert batches; values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithFilterSpecs configures string restrict derivation.
func WithFilterSpecs(specs []model.NamespaceFilterSpec) Option {
	return func(o *options) {
		o.filterSpecs = specs
	}
}

// WithNumericFilterSpecs configures numeric restrict derivation.
func WithNumericFilterSpecs(specs []model.NumericFilterSpec) Option {
	return func(o *options) {
		o.numericSpecs = specs
	}
}

// WithCrowdingColumn sets the column whose value becomes the crowding
// attribute.
func WithCrowdingColumn(col string) Option {
	return func(o *options) {
		o.crowdingColumn = col
	}
}

// WithIDColumn overrides the manifest's id column.
func WithIDColumn(col string) Option {
	return func(o *options) {
		o.idColumn = col
	}
}

// WithMaxInFlight allows up to n concurrent upsert calls.
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		o.maxInFlight = n
	}
}

// WithRetry overrides the transient-failure retry budget and backoff base.
func WithRetry(maxAttempts int, backoffBase time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.backoffBase = backoffBase
	}
}

// WithRateLimit caps upsert calls per second.
func WithRateLimit(l *rate.Limiter) Option {
	return func(o *options) {
		o.rateLimit = l
	}
}

// WithCheckpointStore records per-namespace committed counts under runID
// after each acknowledged batch.
func WithCheckpointStore(store checkpoint.Store, runID string) Option {
	return func(o *options) {
		o.ckptStore = store
		o.runID = runID
	}
}

// WithPollIntervals overrides the creation and deployment polling cadences.
func WithPollIntervals(create, deploy time.Duration) Option {
	return func(o *options) {
		o.createPollInterval = create
		o.deployPollInterval = deploy
	}
}

// WithClock overrides the clock used for polling and retry backoff.
// Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecmigrate.BasicMetricsCollector{}
//	mg, _ := vecmigrate.New(client, source, vecmigrate.WithMetricsCollector(metrics))
//	// ... run the migration ...
//	stats := metrics.GetStats()
//	fmt.Printf("Batches: %d, Retries: %d\n", stats.UpsertBatchCount, stats.RetryCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecmigrate.NewJSONLogger(slog.LevelInfo)
//	mg, _ := vecmigrate.New(client, source, vecmigrate.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
		clock:   clock.Real{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	return o
}
