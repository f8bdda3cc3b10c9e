package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"filmmigrate/internal/record"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(Source())
	if len(stmts) != len(record.Kinds()) {
		t.Fatalf("expected one statement per table, got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- note\nSELECT 1;\n\nSELECT 2")
	if len(stmts) != 2 || stmts[1] != "SELECT 2" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}

func TestBundlesDeclareEveryColumn(t *testing.T) {
	for _, ddl := range []string{Source(), Destination()} {
		for _, kind := range record.Kinds() {
			if !strings.Contains(ddl, kind.Table()+" (") {
				t.Fatalf("ddl missing table %s", kind.Table())
			}
			for _, col := range record.Columns(kind) {
				if !strings.Contains(ddl, "    "+col+" ") {
					t.Fatalf("ddl missing column %s.%s", kind.Table(), col)
				}
			}
		}
	}
	if !strings.Contains(Destination(), "CREATE SCHEMA IF NOT EXISTS content") {
		t.Fatal("expected destination DDL to create the content schema")
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	err := Apply(context.Background(), "SELECT 1;\nSELECT 2;\nSELECT 3;", func(_ context.Context, stmt string) error {
		ran = append(ran, stmt)
		if stmt == "SELECT 2;" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected to stop after second statement, ran %q", ran)
	}
}
