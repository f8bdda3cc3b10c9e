package postgres

import (
	"context"
	"fmt"
	"time"

	"filmmigrate/internal/config"
	"filmmigrate/internal/metrics"
	"filmmigrate/internal/migrate"

	"github.com/hashicorp/go-hclog"
)

// Writer submits encoded batches through a Loader, absorbing unique
// violations and retrying transient connectivity failures.
type Writer struct {
	loader  Loader
	schema  string
	retry   config.Retry
	logger  hclog.Logger
	metrics *metrics.Recorder
}

var _ migrate.Destination = (*Writer)(nil)

// NewWriter returns a Writer loading into schema. Fewer than one retry
// attempt is treated as one.
func NewWriter(loader Loader, schema string, retry config.Retry, logger hclog.Logger, rec *metrics.Recorder) *Writer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Writer{loader: loader, schema: schema, retry: retry, logger: logger.Named("destination"), metrics: rec}
}

// WriteBatch loads block, holding rows records, into table. A unique
// violation rolls the batch back and is returned as OutcomeConflict with a
// nil error; any other integrity violation (e.g. a missing referenced row) is
// returned the same way as OutcomeRejected. Neither is retried. Transient
// failures are retried up to the configured attempts with a linearly growing
// delay. Anything else is returned as an error.
func (w *Writer) WriteBatch(ctx context.Context, table string, columns []string, block []byte, rows int) (migrate.BatchResult, error) {
	sql := CopySQL(w.schema, table, columns)
	logger := w.logger.With("table", table, "rows", rows)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		n, err := w.loader.CopyBatch(ctx, sql, block)
		w.metrics.ObserveCopy(table, time.Since(start))
		switch {
		case err == nil:
			w.metrics.Batch(table, metrics.OutcomeLoaded)
			w.metrics.RowsLoaded(table, n)
			logger.Debug("batch loaded", "attempt", attempt, "loaded", n)
			return migrate.BatchResult{Outcome: migrate.OutcomeLoaded, Rows: n, Attempts: attempt}, nil
		case IsUniqueViolation(err):
			w.metrics.Batch(table, metrics.OutcomeConflict)
			logger.Warn("batch conflicts with existing rows, rolled back", "error", err)
			return migrate.BatchResult{Outcome: migrate.OutcomeConflict, Attempts: attempt, Err: err}, nil
		case IsIntegrityViolation(err):
			w.metrics.Batch(table, metrics.OutcomeRejected)
			logger.Warn("batch violates an integrity constraint, rolled back", "error", err)
			return migrate.BatchResult{Outcome: migrate.OutcomeRejected, Attempts: attempt, Err: err}, nil
		case IsTransient(err) && attempt < w.retry.Attempts && ctx.Err() == nil:
			w.metrics.Batch(table, metrics.OutcomeRetried)
			delay := w.retry.Delay * time.Duration(attempt)
			logger.Warn("transient destination error, retrying", "attempt", attempt, "max_attempts", w.retry.Attempts, "delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return migrate.BatchResult{Attempts: attempt}, fmt.Errorf("copy into %s: %w", table, err)
			}
		default:
			w.metrics.Batch(table, metrics.OutcomeFailed)
			logger.Error("batch failed", "attempt", attempt, "error", err)
			return migrate.BatchResult{Attempts: attempt}, fmt.Errorf("copy into %s: %w", table, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
