package migrate

import (
	"context"
	"errors"
	"time"

	"filmmigrate/internal/copyfmt"
	"filmmigrate/internal/metrics"
	"filmmigrate/internal/record"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Pipeline moves every kind from Source to Destination in record.Kinds order.
type Pipeline struct {
	Source      Source
	Destination Destination
	// BatchSize defaults to copyfmt.DefaultBatchSize.
	BatchSize int
	// TailMode defaults to copyfmt.FlushTail.
	TailMode copyfmt.TailMode
	Logger   hclog.Logger
	Metrics  *metrics.Recorder
}

// Run migrates the five kinds one after another. Source read failures and
// batch conflicts are recorded in the summary and the run goes on. The first
// fatal error stops the run: the kinds not yet finished are marked aborted and
// the error is returned together with the summary.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	logger := p.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	n := p.BatchSize
	if n <= 0 {
		n = copyfmt.DefaultBatchSize
	}
	mode := p.TailMode
	if !mode.Valid() {
		mode = copyfmt.FlushTail
	}
	sum := Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		BatchSize: n,
		TailMode:  mode,
	}
	logger = logger.With("run_id", sum.RunID)
	logger.Info("migration started", "batch_size", n, "tail", mode)

	var fatal error
	for _, kind := range record.Kinds() {
		if fatal != nil {
			sum.Kinds = append(sum.Kinds, KindSummary{Kind: kind.String(), Table: kind.Table(), Status: StatusAborted})
			continue
		}
		ks, err := p.runKind(ctx, logger.With("table", kind.Table()), kind, n, mode, &sum)
		sum.Kinds = append(sum.Kinds, ks)
		if err != nil {
			fatal = err
			sum.Fatal = err.Error()
			var e *Error
			if errors.As(err, &e) {
				sum.Errors = append(sum.Errors, e.Entry())
			}
			logger.Error("migration aborted", "table", kind.Table(), "error", err)
		}
	}
	sum.FinishedAt = time.Now().UTC()
	p.Metrics.MarkRun(sum.FinishedAt)
	t := sum.Totals()
	logger.Info("migration finished", "status", sum.Status(), "read", t.Read, "loaded", t.Loaded,
		"conflicted", t.Conflicted, "rejected", t.Rejected, "dropped", t.Dropped, "elapsed", sum.FinishedAt.Sub(sum.StartedAt))
	return sum, fatal
}

func (p *Pipeline) runKind(ctx context.Context, logger hclog.Logger, kind record.Kind, n int, mode copyfmt.TailMode, sum *Summary) (KindSummary, error) {
	ks := KindSummary{Kind: kind.String(), Table: kind.Table()}
	if err := ctx.Err(); err != nil {
		ks.Status = StatusAborted
		return ks, &Error{Kind: ErrCanceled, Table: kind.Table(), Err: err}
	}

	recs, err := p.Source.ReadKind(ctx, kind)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			ks.Status = StatusAborted
			return ks, &Error{Kind: ErrCanceled, Table: kind.Table(), Err: ctxErr}
		}
		e := &Error{Kind: ErrSourceRead, Table: kind.Table(), Err: err}
		sum.Errors = append(sum.Errors, e.Entry())
		ks.Status = StatusUnavailable
		ks.Error = err.Error()
		logger.Error("source table unavailable, skipping", "error", err)
		return ks, nil
	}
	ks.Read = len(recs)
	p.Metrics.RecordsRead(kind.Table(), len(recs))
	if len(recs) == 0 {
		ks.settle()
		logger.Info("source table empty, nothing to load")
		return ks, nil
	}

	batches := copyfmt.Split(recs, n, mode)
	ks.Dropped = copyfmt.Dropped(len(recs), n, mode)
	if ks.Dropped > 0 {
		logger.Warn("partial tail batch dropped", "records", ks.Dropped, "batch_size", n)
	}

	cols := record.Columns(kind)
	var enc copyfmt.Encoder
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			ks.Status = StatusAborted
			return ks, &Error{Kind: ErrCanceled, Table: kind.Table(), Batch: i + 1, Err: err}
		}
		block, err := enc.Encode(batch)
		if err != nil {
			ks.Status = StatusAborted
			return ks, &Error{Kind: ErrEncode, Table: kind.Table(), Batch: i + 1, Err: err}
		}
		ks.Batches++
		ks.Attempted += len(batch)
		res, err := p.Destination.WriteBatch(ctx, kind.Table(), cols, block, len(batch))
		if err != nil {
			ks.Status = StatusAborted
			ks.Error = err.Error()
			ek := ErrDestination
			if ctx.Err() != nil {
				ek = ErrCanceled
			}
			return ks, &Error{Kind: ek, Table: kind.Table(), Batch: i + 1, Err: err}
		}
		switch res.Outcome {
		case OutcomeConflict:
			ks.ConflictBatches++
			ks.Conflicted += len(batch)
			sum.Errors = append(sum.Errors, batchError(ErrConflict, kind, i+1, res.Err, "unique violation").Entry())
		case OutcomeRejected:
			ks.RejectedBatches++
			ks.Rejected += len(batch)
			sum.Errors = append(sum.Errors, batchError(ErrRejected, kind, i+1, res.Err, "integrity constraint violation").Entry())
		default:
			ks.Loaded += res.Rows
		}
	}
	ks.settle()
	logger.Info("table migrated", "status", ks.Status, "read", ks.Read, "batches", ks.Batches,
		"loaded", ks.Loaded, "conflicted", ks.Conflicted, "rejected", ks.Rejected)
	return ks, nil
}

func batchError(ek ErrorKind, kind record.Kind, batch int, err error, fallback string) *Error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &Error{Kind: ek, Table: kind.Table(), Batch: batch, Err: err}
}
