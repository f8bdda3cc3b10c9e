package migrate

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"filmmigrate/internal/copyfmt"
	"filmmigrate/internal/record"
)

// Status is the final state of one table in a run.
type Status string

const (
	// StatusLoaded means every emitted batch committed.
	StatusLoaded Status = "loaded"
	// StatusPartial means some batches committed and some were skipped.
	StatusPartial Status = "partial"
	// StatusConflicted means every emitted batch conflicted.
	StatusConflicted Status = "conflicted"
	// StatusRejected means every emitted batch was skipped and at least one
	// was refused by an integrity constraint.
	StatusRejected Status = "rejected"
	// StatusDropped means records were read but all fell into a dropped tail.
	StatusDropped Status = "dropped"
	// StatusEmpty means the source table had no rows.
	StatusEmpty Status = "empty"
	// StatusUnavailable means the source scan failed.
	StatusUnavailable Status = "unavailable"
	// StatusAborted means a fatal error stopped the run before or during this table.
	StatusAborted Status = "aborted"
)

// KindSummary holds the counters of one table.
type KindSummary struct {
	Kind            string `json:"kind"`
	Table           string `json:"table"`
	Status          Status `json:"status"`
	Read            int    `json:"read"`
	Batches         int    `json:"batches"`
	Attempted       int    `json:"attempted"`
	Loaded          int64  `json:"loaded"`
	Conflicted      int    `json:"conflicted"`
	ConflictBatches int    `json:"conflict_batches"`
	Rejected        int    `json:"rejected"`
	RejectedBatches int    `json:"rejected_batches"`
	Dropped         int    `json:"dropped"`
	Error           string `json:"error,omitempty"`
}

func (k *KindSummary) settle() {
	switch {
	case k.Status != "":
	case k.Read == 0:
		k.Status = StatusEmpty
	case k.Batches == 0:
		k.Status = StatusDropped
	case k.ConflictBatches+k.RejectedBatches == 0:
		k.Status = StatusLoaded
	case k.ConflictBatches == k.Batches:
		k.Status = StatusConflicted
	case k.ConflictBatches+k.RejectedBatches == k.Batches:
		k.Status = StatusRejected
	default:
		k.Status = StatusPartial
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	BatchSize  int              `json:"batch_size"`
	TailMode   copyfmt.TailMode `json:"tail_mode"`
	Kinds      []KindSummary    `json:"kinds"`
	Errors     []ErrorEntry     `json:"errors,omitempty"`
	Fatal      string           `json:"fatal,omitempty"`
}

// Failed reports whether a fatal error stopped the run.
func (s Summary) Failed() bool { return s.Fatal != "" }

// ExitCode maps the run outcome to a process exit status.
func (s Summary) ExitCode() int {
	if s.Failed() {
		return 1
	}
	return 0
}

// Status returns "failed" or "completed".
func (s Summary) Status() string {
	if s.Failed() {
		return "failed"
	}
	return "completed"
}

// Kind returns the summary of kind, if the run reached it.
func (s Summary) Kind(kind record.Kind) (KindSummary, bool) {
	for _, k := range s.Kinds {
		if k.Table == kind.Table() {
			return k, true
		}
	}
	return KindSummary{}, false
}

// Totals sums the per-table counters.
func (s Summary) Totals() KindSummary {
	t := KindSummary{Kind: "total"}
	for _, k := range s.Kinds {
		t.Read += k.Read
		t.Batches += k.Batches
		t.Attempted += k.Attempted
		t.Loaded += k.Loaded
		t.Conflicted += k.Conflicted
		t.ConflictBatches += k.ConflictBatches
		t.Rejected += k.Rejected
		t.RejectedBatches += k.RejectedBatches
		t.Dropped += k.Dropped
	}
	return t
}

// WriteTable renders the summary as an aligned text table.
func WriteTable(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\t%s\tbatch size %d\ttail %s\n", s.RunID, s.Status(), s.BatchSize, s.TailMode)
	fmt.Fprintln(tw, "TABLE\tSTATUS\tREAD\tBATCHES\tLOADED\tCONFLICTED\tREJECTED\tDROPPED")
	for _, k := range s.Kinds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n", k.Table, k.Status, k.Read, k.Batches, k.Loaded, k.Conflicted, k.Rejected, k.Dropped)
	}
	t := s.Totals()
	fmt.Fprintf(tw, "%s\t\t%d\t%d\t%d\t%d\t%d\t%d\n", t.Kind, t.Read, t.Batches, t.Loaded, t.Conflicted, t.Rejected, t.Dropped)
	return tw.Flush()
}
