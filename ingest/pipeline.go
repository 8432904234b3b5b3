// Package ingest streams rows out of a dataset's columnar files and
// upserts them into a reconciled remote index in bounded batches with
// at-least-once delivery.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecmigrate/checkpoint"
	"github.com/hupe1980/vecmigrate/internal/clock"
	"github.com/hupe1980/vecmigrate/manifest"
	"github.com/hupe1980/vecmigrate/model"
	"github.com/hupe1980/vecmigrate/remote"
	"github.com/hupe1980/vecmigrate/rowsource"
)

// Retry defaults for transient upsert failures.
const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = 500 * time.Millisecond
)

// Metrics receives pipeline observations. The root package's collectors
// satisfy this interface.
type Metrics interface {
	// RecordUpsertBatch is called after each upsert attempt settles.
	RecordUpsertBatch(size int, duration time.Duration, err error)
	// RecordRetry is called before each retry of a transient failure.
	RecordRetry()
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) RecordUpsertBatch(int, time.Duration, error) {}
func (NoopMetrics) RecordRetry()                                {}

// Report carries the rows acknowledged by the remote service, keyed by
// namespace. On an aborted run it holds the partial progress achieved
// before the abort.
type Report struct {
	PerNamespace map[string]int
	Total        int
}

// Pipeline drives the ingestion of one manifest into one target index.
type Pipeline struct {
	client remote.Client
	source rowsource.Source
	clock  clock.Clock
	logger *slog.Logger
	m      Metrics

	batchSize      int
	filterSpecs    []model.NamespaceFilterSpec
	numericSpecs   []model.NumericFilterSpec
	crowdingColumn string
	idColumn       string

	maxInFlight int64
	maxAttempts int
	backoffBase time.Duration
	limiter     *rate.Limiter

	ckpt  checkpoint.Store
	runID string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize bounds upsert batches; values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFilterSpecs configures string restrict derivation.
func WithFilterSpecs(specs []model.NamespaceFilterSpec) Option {
	return func(p *Pipeline) {
		p.filterSpecs = specs
	}
}

// WithNumericFilterSpecs configures numeric restrict derivation.
func WithNumericFilterSpecs(specs []model.NumericFilterSpec) Option {
	return func(p *Pipeline) {
		p.numericSpecs = specs
	}
}

// WithCrowdingColumn sets the column whose value becomes the crowding
// attribute. Empty means no crowding.
func WithCrowdingColumn(col string) Option {
	return func(p *Pipeline) {
		p.crowdingColumn = col
	}
}

// WithIDColumn overrides the manifest's id column.
func WithIDColumn(col string) Option {
	return func(p *Pipeline) {
		p.idColumn = col
	}
}

// WithMaxInFlight allows up to n concurrent upsert calls. The default of
// 1 dispatches batches sequentially. Row order within a batch is always
// preserved; batch completion order across namespaces is not.
func WithMaxInFlight(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxInFlight = int64(n)
		}
	}
}

// WithRetry overrides the transient-failure retry budget and backoff base.
func WithRetry(maxAttempts int, backoffBase time.Duration) Option {
	return func(p *Pipeline) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if backoffBase > 0 {
			p.backoffBase = backoffBase
		}
	}
}

// WithRateLimit caps upsert calls per second.
func WithRateLimit(l *rate.Limiter) Option {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

// WithCheckpointStore records per-namespace committed counts under runID
// after each acknowledged batch. Checkpoint failures are logged, never
// fatal.
func WithCheckpointStore(store checkpoint.Store, runID string) Option {
	return func(p *Pipeline) {
		p.ckpt = store
		p.runID = runID
	}
}

// WithClock overrides the clock used for retry backoff.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.m = m
		}
	}
}

// NewPipeline creates a Pipeline reading rows from source and upserting
// through client.
func NewPipeline(client remote.Client, source rowsource.Source, optFns ...Option) (*Pipeline, error) {
	p := &Pipeline{
		client:      client,
		source:      source,
		clock:       clock.Real{},
		logger:      slog.New(slog.DiscardHandler),
		m:           NoopMetrics{},
		batchSize:   DefaultBatchSize,
		maxInFlight: 1,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(p)
		}
	}

	if err := model.ValidateFilterSpecs(p.filterSpecs, p.numericSpecs); err != nil {
		return nil, err
	}
	return p, nil
}

// progress tracks acknowledged rows per namespace. Batches may complete
// out of order under concurrent dispatch; a bitmap of committed row
// ordinals makes the count independent of completion order.
type progress struct {
	mu        sync.Mutex
	committed map[string]*roaring.Bitmap
	next      map[string]uint64
	order     []string
}

func newProgress() *progress {
	return &progress{
		committed: make(map[string]*roaring.Bitmap),
		next:      make(map[string]uint64),
	}
}

func (pr *progress) namespace(key string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if _, ok := pr.committed[key]; !ok {
		pr.committed[key] = roaring.New()
		pr.order = append(pr.order, key)
	}
}

// reserve allocates the next n row ordinals of a namespace. Multiple
// manifest indexes may declare the same namespace name; the shared
// counter keeps their ordinal ranges disjoint so commits never overlap.
func (pr *progress) reserve(key string, n uint64) uint64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	start := pr.next[key]
	pr.next[key] += n
	return start
}

// commit marks the ordinal range [start, end) of a namespace as
// acknowledged and returns the namespace's new total.
func (pr *progress) commit(key string, start, end uint64) int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	bm := pr.committed[key]
	bm.AddRange(start, end)
	return int(bm.GetCardinality())
}

func (pr *progress) report() Report {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	rep := Report{PerNamespace: make(map[string]int, len(pr.committed))}
	for _, key := range pr.order {
		n := int(pr.committed[key].GetCardinality())
		rep.PerNamespace[key] = n
		rep.Total += n
	}
	return rep
}

// Run ingests every index entry of the manifest into the reconciled
// target index identified by indexID. It returns the per-namespace and
// total counts acknowledged by the remote service; on error the counts
// reflect the partial progress before the abort. All in-flight batches
// are awaited before Run returns.
func (p *Pipeline) Run(ctx context.Context, m *manifest.Manifest, indexID string) (Report, error) {
	for _, w := range m.Warnings() {
		p.logger.WarnContext(ctx, "manifest warning", "warning", w)
	}

	pr := newProgress()
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.maxInFlight)

	err := p.produce(gctx, m, indexID, pr, g, sem)

	// Join barrier: every dispatched batch settles before counts are
	// reported, even on abort.
	if werr := g.Wait(); err == nil {
		err = werr
	}

	rep := pr.report()
	if err != nil {
		p.logger.ErrorContext(ctx, "ingestion aborted",
			"committed", rep.Total,
			"error", err,
		)
		return rep, err
	}

	p.logger.InfoContext(ctx, "ingestion complete", "total", rep.Total)
	return rep, nil
}

func (p *Pipeline) produce(
	ctx context.Context,
	m *manifest.Manifest,
	indexID string,
	pr *progress,
	g *errgroup.Group,
	sem *semaphore.Weighted,
) error {
	for _, indexName := range m.IndexNames() {
		for _, ns := range m.Indexes[indexName] {
			if err := p.produceNamespace(ctx, m, indexName, ns, indexID, pr, g, sem); err != nil {
				return err
			}
		}
	}
	return nil
}

// namespaceKey names a namespace in reports; exporters may leave the
// namespace field empty and identify the partition by its data path.
func namespaceKey(ns manifest.NamespaceMeta) string {
	if ns.Namespace != "" {
		return ns.Namespace
	}
	return ns.DataPath
}

func (p *Pipeline) produceNamespace(
	ctx context.Context,
	m *manifest.Manifest,
	indexName string,
	ns manifest.NamespaceMeta,
	indexID string,
	pr *progress,
	g *errgroup.Group,
	sem *semaphore.Weighted,
) error {
	key := namespaceKey(ns)
	pr.namespace(key)

	vectorColumn, extra, err := manifest.ResolveVectorColumn(ns)
	if err != nil {
		return err
	}
	if extra {
		p.logger.WarnContext(ctx, "multiple vector columns declared, importing only the first",
			"index", indexName,
			"namespace", key,
			"vector_column", vectorColumn,
		)
	}

	idColumn := p.idColumn
	if idColumn == "" {
		idColumn = m.ResolveIDColumn(ns)
	}

	files, err := p.source.Files(ctx, ns.DataPath)
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "importing namespace",
		"index", indexName,
		"namespace", key,
		"files", len(files),
	)

	asm := NewAssembler(p.batchSize)

	dispatch := func(batch []model.Datapoint) error {
		start := pr.reserve(key, uint64(len(batch)))
		return p.dispatch(ctx, g, sem, indexID, key, batch, start, pr)
	}

	for _, file := range files {
		if err := p.produceFile(ctx, file, idColumn, vectorColumn, asm, dispatch); err != nil {
			return err
		}
	}

	// Trailing partial batch at the end of the namespace.
	if batch := asm.Flush(); batch != nil {
		if err := dispatch(batch); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) produceFile(
	ctx context.Context,
	file, idColumn, vectorColumn string,
	asm *Assembler,
	dispatch func([]model.Datapoint) error,
) error {
	it, err := p.source.Rows(ctx, file)
	if err != nil {
		return err
	}
	defer it.Close()

	rowNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		rowNum++

		dp, err := p.buildDatapoint(row, idColumn, vectorColumn)
		if err != nil {
			var sm *SchemaMismatchError
			if errors.As(err, &sm) {
				sm.File = file
				sm.Row = rowNum
			}
			return err
		}

		if batch := asm.Add(dp); batch != nil {
			if err := dispatch(batch); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) buildDatapoint(row model.Row, idColumn, vectorColumn string) (model.Datapoint, error) {
	idVal, ok := row[idColumn]
	if !ok || idVal.IsZero() {
		return model.Datapoint{}, &SchemaMismatchError{Column: idColumn}
	}

	vecVal, ok := row[vectorColumn]
	if !ok || vecVal.IsZero() {
		return model.Datapoint{}, &SchemaMismatchError{Column: vectorColumn}
	}
	vector, ok := vecVal.AsFloat32Slice()
	if !ok {
		return model.Datapoint{}, fmt.Errorf("ingest: column %q is %s, not a float sequence", vectorColumn, vecVal.Kind())
	}

	restricts, numericRestricts, crowding, err := BuildFilters(row, p.filterSpecs, p.numericSpecs, p.crowdingColumn)
	if err != nil {
		return model.Datapoint{}, err
	}

	return model.Datapoint{
		ID:                idVal.Stringify(),
		Vector:            vector,
		Restricts:         restricts,
		NumericRestricts:  numericRestricts,
		CrowdingAttribute: crowding,
	}, nil
}

// dispatch hands a batch to the bounded worker group. With MaxInFlight 1
// this degenerates to sequential submission.
func (p *Pipeline) dispatch(
	ctx context.Context,
	g *errgroup.Group,
	sem *semaphore.Weighted,
	indexID, nsKey string,
	batch []model.Datapoint,
	start uint64,
	pr *progress,
) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.Go(func() error {
		defer sem.Release(1)

		if err := p.upsertWithRetry(ctx, indexID, batch); err != nil {
			return fmt.Errorf("ingest: namespace %q batch at row %d: %w", nsKey, start, err)
		}

		committed := pr.commit(nsKey, start, start+uint64(len(batch)))
		p.logger.DebugContext(ctx, "batch committed",
			"namespace", nsKey,
			"size", len(batch),
			"committed", committed,
		)

		if p.ckpt != nil {
			if err := p.ckpt.Put(ctx, p.runID, nsKey, committed); err != nil {
				p.logger.WarnContext(ctx, "checkpoint write failed",
					"namespace", nsKey,
					"error", err,
				)
			}
		}
		return nil
	})
	return nil
}

// upsertWithRetry retries transient failures with exponential backoff up
// to the attempt budget. Fatal errors and exhausted budgets abort.
func (p *Pipeline) upsertWithRetry(ctx context.Context, indexID string, batch []model.Datapoint) error {
	backoff := p.backoffBase
	for attempt := 1; ; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		began := p.clock.Now()
		err := p.client.UpsertDatapoints(ctx, indexID, batch)
		p.m.RecordUpsertBatch(len(batch), p.clock.Now().Sub(began), err)

		if err == nil {
			return nil
		}
		if !remote.IsTransient(err) || attempt >= p.maxAttempts {
			return err
		}

		p.m.RecordRetry()
		p.logger.WarnContext(ctx, "transient upsert failure, backing off",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if err := p.clock.Sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}
