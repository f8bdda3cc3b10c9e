// Package migrate sequences the five catalogue tables from the source store
// through the COPY encoder into the destination store and aggregates the run
// summary.
package migrate

import (
	"context"

	"filmmigrate/internal/record"
)

// Source yields every record of one kind. Implementations do not retry.
type Source interface {
	ReadKind(ctx context.Context, kind record.Kind) ([]record.Record, error)
}

// Destination loads one encoded batch into table. Conflicts and rejected
// batches are reported through BatchResult with a nil error; a non-nil error
// is fatal for the run.
type Destination interface {
	WriteBatch(ctx context.Context, table string, columns []string, block []byte, rows int) (BatchResult, error)
}

// Outcome is the result of one batch at the destination.
type Outcome string

const (
	OutcomeLoaded   Outcome = "loaded"
	OutcomeConflict Outcome = "conflict"
	// OutcomeRejected is a batch refused by a constraint other than the
	// primary key, typically a reference to a row that was never loaded.
	OutcomeRejected Outcome = "rejected"
)

// BatchResult describes a batch the destination has finished with.
type BatchResult struct {
	Outcome  Outcome
	Rows     int64
	Attempts int
	// Err carries the store error when Outcome is OutcomeConflict or OutcomeRejected.
	Err error
}
