// Package copyfmt renders records into the Postgres COPY text format and cuts
// record streams into fixed-size batches.
package copyfmt

import "filmmigrate/internal/record"

// DefaultBatchSize is the number of records per COPY block when none is configured.
const DefaultBatchSize = 10

// TailMode decides what happens to the final batch when it holds fewer than
// the batch size records.
type TailMode string

const (
	// FlushTail emits the short final batch, ceil(M/N) batches in total.
	FlushTail TailMode = "flush"
	// DropTail discards the short final batch, floor(M/N) batches in total.
	DropTail TailMode = "drop"
)

// Valid reports whether m is a known mode.
func (m TailMode) Valid() bool {
	return m == FlushTail || m == DropTail
}

// Split partitions records into consecutive batches of at most n records,
// preserving order. A non-positive n falls back to DefaultBatchSize.
// Batches share the backing array of records.
func Split(records []record.Record, n int, mode TailMode) [][]record.Record {
	if n <= 0 {
		n = DefaultBatchSize
	}
	full := len(records) / n
	out := make([][]record.Record, 0, full+1)
	for i := 0; i < full; i++ {
		out = append(out, records[i*n:(i+1)*n:(i+1)*n])
	}
	if rest := records[full*n:]; len(rest) > 0 && mode != DropTail {
		out = append(out, rest)
	}
	return out
}

// Dropped reports how many of m records Split discards for batch size n.
func Dropped(m, n int, mode TailMode) int {
	if mode != DropTail {
		return 0
	}
	if n <= 0 {
		n = DefaultBatchSize
	}
	return m % n
}
