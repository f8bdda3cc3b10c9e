// Package testutil provides an in-memory COPY target for destination tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// references mirrors the foreign keys of the content schema: table -> column
// -> referenced table.
var references = map[string]map[string]string{
	"genre_film_work":  {"film_work_id": "film_work", "genre_id": "genre"},
	"person_film_work": {"film_work_id": "film_work", "person_id": "person"},
}

// MemLoader stores COPY lines per table and enforces primary key uniqueness
// on the first column and the content schema's foreign keys, rejecting a
// whole batch the way a transaction would.
type MemLoader struct {
	mu     sync.Mutex
	tables map[string][]string
	ids    map[string]map[string]struct{}
	// Failures are returned, one per call, before any row is applied.
	Failures []error
	// FailTable makes every COPY into that table fail with FailErr.
	FailTable string
	FailErr   error
	Calls     int
	SQL       []string
}

// NewMemLoader returns an empty loader.
func NewMemLoader() *MemLoader {
	return &MemLoader{tables: map[string][]string{}, ids: map[string]map[string]struct{}{}}
}

// CopyBatch implements the destination Loader contract.
func (m *MemLoader) CopyBatch(ctx context.Context, sql string, block []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.SQL = append(m.SQL, sql)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(m.Failures) > 0 {
		err := m.Failures[0]
		m.Failures = m.Failures[1:]
		if err != nil {
			return 0, err
		}
	}
	table, columns, err := copyTarget(sql)
	if err != nil {
		return 0, err
	}
	if table == m.FailTable && m.FailErr != nil {
		return 0, m.FailErr
	}
	lines := strings.Split(strings.TrimSuffix(string(block), "\n"), "\n")
	if len(block) == 0 {
		lines = nil
	}
	seen := m.ids[table]
	if seen == nil {
		seen = map[string]struct{}{}
		m.ids[table] = seen
	}
	batch := map[string]struct{}{}
	for _, line := range lines {
		id, _, _ := strings.Cut(line, "|")
		_, exists := seen[id]
		_, dup := batch[id]
		if exists || dup {
			return 0, &pgconn.PgError{
				Severity:       "ERROR",
				Code:           pgerrcode.UniqueViolation,
				Message:        fmt.Sprintf("duplicate key value violates unique constraint %q", table+"_pkey"),
				Detail:         fmt.Sprintf("Key (id)=(%s) already exists.", id),
				TableName:      table,
				ConstraintName: table + "_pkey",
			}
		}
		batch[id] = struct{}{}
	}
	if err := m.checkReferences(table, columns, lines); err != nil {
		return 0, err
	}
	for id := range batch {
		seen[id] = struct{}{}
	}
	m.tables[table] = append(m.tables[table], lines...)
	return int64(len(lines)), nil
}

// Rows returns the number of rows committed to table.
func (m *MemLoader) Rows(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// Lines returns a copy of the COPY lines committed to table.
func (m *MemLoader) Lines(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tables[table]...)
}

func (m *MemLoader) checkReferences(table string, columns, lines []string) error {
	refs := references[table]
	for pos, col := range columns {
		parent, ok := refs[col]
		if !ok {
			continue
		}
		for _, line := range lines {
			fields := strings.Split(line, "|")
			if pos >= len(fields) {
				return fmt.Errorf("line %q has no column %s", line, col)
			}
			if _, ok := m.ids[parent][fields[pos]]; ok {
				continue
			}
			constraint := table + "_" + col + "_fkey"
			return &pgconn.PgError{
				Severity:       "ERROR",
				Code:           pgerrcode.ForeignKeyViolation,
				Message:        fmt.Sprintf("insert or update on table %q violates foreign key constraint %q", table, constraint),
				Detail:         fmt.Sprintf("Key (%s)=(%s) is not present in table %q.", col, fields[pos], parent),
				TableName:      table,
				ConstraintName: constraint,
			}
		}
	}
	return nil
}

// copyTarget extracts the unqualified table name and the column list from a
// COPY statement.
func copyTarget(sql string) (string, []string, error) {
	rest, ok := strings.CutPrefix(sql, "COPY ")
	if !ok {
		return "", nil, errors.New("not a COPY statement")
	}
	target, rest, ok := strings.Cut(rest, " (")
	if !ok {
		return "", nil, errors.New("COPY statement without column list")
	}
	if i := strings.LastIndex(target, "."); i >= 0 {
		target = target[i+1:]
	}
	list, _, ok := strings.Cut(rest, ")")
	if !ok {
		return "", nil, errors.New("unterminated COPY column list")
	}
	var columns []string
	for _, c := range strings.Split(list, ",") {
		columns = append(columns, strings.Trim(strings.TrimSpace(c), `"`))
	}
	return strings.Trim(target, `"`), columns, nil
}
