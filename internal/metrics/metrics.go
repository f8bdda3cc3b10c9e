// Package metrics records run counters on a private Prometheus registry and
// exports them once the one-shot run finishes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filmmigrate/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job name.
const Job = "filmmigrate"

// Batch outcome label values.
const (
	OutcomeLoaded   = "loaded"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeRetried  = "retried"
)

// Recorder holds the run metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry     *prometheus.Registry
	recordsRead  *prometheus.CounterVec
	batches      *prometheus.CounterVec
	rowsLoaded   *prometheus.CounterVec
	copyDuration *prometheus.HistogramVec
	lastRun      prometheus.Gauge
}

// New registers the run metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		recordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmmigrate_records_read_total",
			Help: "Records read from the source catalogue.",
		}, []string{"table"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmmigrate_batches_total",
			Help: "COPY batches by outcome.",
		}, []string{"table", "outcome"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmmigrate_rows_loaded_total",
			Help: "Rows committed at the destination.",
		}, []string{"table"}),
		copyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filmmigrate_copy_duration_seconds",
			Help:    "Latency of one COPY attempt including commit.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"table"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filmmigrate_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.recordsRead, r.batches, r.rowsLoaded, r.copyDuration, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordsRead(table string, n int) {
	if r == nil {
		return
	}
	r.recordsRead.WithLabelValues(table).Add(float64(n))
}

func (r *Recorder) Batch(table, outcome string) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(table, outcome).Inc()
}

func (r *Recorder) RowsLoaded(table string, n int64) {
	if r == nil {
		return
	}
	r.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

func (r *Recorder) ObserveCopy(table string, d time.Duration) {
	if r == nil {
		return
	}
	r.copyDuration.WithLabelValues(table).Observe(d.Seconds())
}

// MarkRun stamps the finish time of the run.
func (r *Recorder) MarkRun(t time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(t.Unix()))
}

// Export writes the textfile and pushes to the Pushgateway when configured.
// Both targets are attempted; their errors are joined.
func (r *Recorder) Export(ctx context.Context, cfg config.Metrics) error {
	if r == nil {
		return nil
	}
	var errs []error
	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if cfg.PushgatewayURL != "" {
		if err := push.New(cfg.PushgatewayURL, Job).Gatherer(r.registry).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
