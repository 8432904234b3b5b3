package vecmigrate

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/vecmigrate/ingest"
)

// Logger wraps slog.Logger with vecmigrate-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRun adds a run id field to the logger.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", runID),
	}
}

// WithIndex adds an index field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithNamespace adds a namespace field to the logger.
func (l *Logger) WithNamespace(ns string) *Logger {
	return &Logger{
		Logger: l.Logger.With("namespace", ns),
	}
}

// LogSeed logs the seed-record upload for a new index.
func (l *Logger) LogSeed(ctx context.Context, uri string, dimensions int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "seed upload failed",
			"dimensions", dimensions,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "seed record uploaded",
			"uri", uri,
			"dimensions", dimensions,
		)
	}
}

// LogReconcile logs the outcome of resource reconciliation.
func (l *Logger) LogReconcile(ctx context.Context, indexName string, deployed bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reconciliation failed",
			"index", indexName,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "resources reconciled",
			"index", indexName,
			"deployed", deployed,
		)
	}
}

// LogMigration logs the final outcome of a migration run.
func (l *Logger) LogMigration(ctx context.Context, report ingest.Report, err error) {
	if err != nil {
		l.ErrorContext(ctx, "migration aborted",
			"committed", report.Total,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "migration completed",
			"total", report.Total,
			"namespaces", len(report.PerNamespace),
		)
	}
}
