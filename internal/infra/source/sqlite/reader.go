// Package sqlite reads the movie catalogue from an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"filmmigrate/internal/record"

	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var sqlOpen = sql.Open

// Open opens the catalogue at path read-only and verifies it is reachable.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	dsn, err := sourceURI(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db, err := sqlOpen("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// sourceURI returns a read-only SQLite URI for path. The path is made
// absolute and percent-escaped so '?', '#' and '%' stay part of the file name.
func sourceURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

// Querier is the subset of *sql.DB the reader needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReadError reports a failed scan of one table.
type ReadError struct {
	Kind  record.Kind
	Table string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read table %s: %v", e.Table, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Reader runs full-table scans and maps rows onto records.
type Reader struct {
	db     Querier
	logger hclog.Logger
}

// NewReader returns a Reader over db. A nil logger discards output.
func NewReader(db Querier, logger hclog.Logger) *Reader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reader{db: db, logger: logger.Named("source")}
}

// SelectSQL returns the full-table scan for kind. Columns are named so the
// physical column order of the source table does not matter.
func SelectSQL(kind record.Kind) string {
	cols := record.Columns(kind)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return "SELECT " + strings.Join(quoted, ", ") + " FROM " + quoteIdent(kind.Table())
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ReadKind returns every row of kind's table in source order. On failure no
// records are returned and the error is a *ReadError.
func (r *Reader) ReadKind(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	if !kind.Valid() {
		return nil, &ReadError{Kind: kind, Table: kind.String(), Err: errors.New("unknown record kind")}
	}
	fail := func(err error) error {
		return &ReadError{Kind: kind, Table: kind.Table(), Err: err}
	}
	rows, err := r.db.QueryContext(ctx, SelectSQL(kind))
	if err != nil {
		return nil, fail(fmt.Errorf("query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var out []record.Record
	for rows.Next() {
		rec, err := record.Scan(kind, rows.Scan)
		if err != nil {
			return nil, fail(fmt.Errorf("scan row %d: %w", len(out)+1, err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(fmt.Errorf("iterate rows: %w", err))
	}
	r.logger.Debug("read table", "table", kind.Table(), "rows", len(out))
	return out, nil
}
