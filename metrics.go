package vecmigrate

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
// It is a superset of ingest.Metrics, so a collector passed to the Migrator
// also receives the pipeline's per-batch observations.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    batchCounter   prometheus.Counter
//	    batchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordUpsertBatch(size int, duration time.Duration, err error) {
//	    p.batchCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordUpsertBatch is called after each upsert attempt settles.
	// size is the number of datapoints in the batch, duration is the time
	// taken, err is nil if successful.
	RecordUpsertBatch(size int, duration time.Duration, err error)

	// RecordRetry is called before each retry of a transient upsert failure.
	RecordRetry()

	// RecordReconcile is called once per migration after resource
	// reconciliation settles.
	RecordReconcile(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsertBatch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRetry()                                {}
func (NoopMetricsCollector) RecordReconcile(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertBatchCount    atomic.Int64
	UpsertRowCount      atomic.Int64
	UpsertErrors        atomic.Int64
	UpsertTotalNanos    atomic.Int64
	RetryCount          atomic.Int64
	ReconcileCount      atomic.Int64
	ReconcileErrors     atomic.Int64
	ReconcileTotalNanos atomic.Int64
}

// RecordUpsertBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsertBatch(size int, duration time.Duration, err error) {
	b.UpsertBatchCount.Add(1)
	b.UpsertRowCount.Add(int64(size))
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordRetry implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetry() {
	b.RetryCount.Add(1)
}

// RecordReconcile implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReconcile(duration time.Duration, err error) {
	b.ReconcileCount.Add(1)
	b.ReconcileTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReconcileErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertBatchCount:  b.UpsertBatchCount.Load(),
		UpsertRowCount:    b.UpsertRowCount.Load(),
		UpsertErrors:      b.UpsertErrors.Load(),
		UpsertAvgNanos:    b.getAvgUpsertNanos(),
		RetryCount:        b.RetryCount.Load(),
		ReconcileCount:    b.ReconcileCount.Load(),
		ReconcileErrors:   b.ReconcileErrors.Load(),
		ReconcileAvgNanos: b.getAvgReconcileNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgUpsertNanos() int64 {
	count := b.UpsertBatchCount.Load()
	if count == 0 {
		return 0
	}
	return b.UpsertTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgReconcileNanos() int64 {
	count := b.ReconcileCount.Load()
	if count == 0 {
		return 0
	}
	return b.ReconcileTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertBatchCount  int64
	UpsertRowCount    int64
	UpsertErrors      int64
	UpsertAvgNanos    int64
	RetryCount        int64
	ReconcileCount    int64
	ReconcileErrors   int64
	ReconcileAvgNanos int64
}
