// Package schema exposes the catalogue DDL for the source and destination
// stores. The migration never runs DDL itself; the bundles seed test fixtures
// and scratch databases.
package schema

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	sqldocs "filmmigrate/docs/schema/sql"
)

// Source returns the SQLite DDL of the source catalogue.
func Source() string {
	return sqldocs.SQLite
}

// Destination returns the Postgres DDL of the content schema.
func Destination() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}

// Apply runs every statement of ddl through exec, stopping at the first failure.
func Apply(ctx context.Context, ddl string, exec func(ctx context.Context, stmt string) error) error {
	for i, stmt := range SplitStatements(ddl) {
		if err := exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl statement %d: %w", i+1, err)
		}
	}
	return nil
}
