package migrate

import (
	"errors"
	"fmt"
)

// ErrorKind classifies run errors.
type ErrorKind string

const (
	// ErrSourceRead is a failed table scan; the table is skipped.
	ErrSourceRead ErrorKind = "source_read"
	// ErrConflict is a batch rejected for duplicate ids; the batch is skipped.
	ErrConflict ErrorKind = "conflict"
	// ErrRejected is a batch refused by an integrity constraint; the batch is skipped.
	ErrRejected ErrorKind = "rejected"
	// ErrDestination is a connectivity or schema failure; the run stops.
	ErrDestination ErrorKind = "destination"
	// ErrEncode is a value the COPY encoder cannot render; the run stops.
	ErrEncode ErrorKind = "encode"
	// ErrCanceled is a run interrupted through its context.
	ErrCanceled ErrorKind = "canceled"
)

// Fatal reports whether errors of kind k stop the run.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrSourceRead, ErrConflict, ErrRejected:
		return false
	}
	return true
}

// Error is a run error tied to a table and, for batch errors, a 1-based batch number.
type Error struct {
	Kind  ErrorKind
	Table string
	Batch int
	Err   error
}

func (e *Error) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("%s: table %s batch %d: %v", e.Kind, e.Table, e.Batch, e.Err)
	}
	return fmt.Sprintf("%s: table %s: %v", e.Kind, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Entry flattens e for the run report.
func (e *Error) Entry() ErrorEntry {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return ErrorEntry{Kind: e.Kind, Table: e.Table, Batch: e.Batch, Message: msg}
}

// ErrorEntry is the machine-readable form of an Error.
type ErrorEntry struct {
	Kind    ErrorKind `json:"kind"`
	Table   string    `json:"table"`
	Batch   int       `json:"batch,omitempty"`
	Message string    `json:"message"`
}

// KindOf returns the ErrorKind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
