package migrate_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"testing"

	"filmmigrate/internal/config"
	"filmmigrate/internal/copyfmt"
	"filmmigrate/internal/infra/destination/postgres"
	pgtestutil "filmmigrate/internal/infra/destination/postgres/testutil"
	"filmmigrate/internal/infra/source/sqlite"
	sqlitetestutil "filmmigrate/internal/infra/source/sqlite/testutil"
	"filmmigrate/internal/metrics"
	"filmmigrate/internal/migrate"
	"filmmigrate/internal/record"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

type harness struct {
	reader *sqlite.Reader
	loader *pgtestutil.MemLoader
	writer *postgres.Writer
}

func newHarness(t *testing.T, setup func(seed *sql.DB) error, recs ...record.Record) *harness {
	t.Helper()
	path, db := sqlitetestutil.NewCatalogue(t)
	sqlitetestutil.MustInsert(t, db, recs...)
	if setup != nil {
		if err := setup(db); err != nil {
			t.Fatalf("setup catalogue: %v", err)
		}
	}
	src, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open catalogue: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	loader := pgtestutil.NewMemLoader()
	return &harness{
		reader: sqlite.NewReader(src, hclog.NewNullLogger()),
		loader: loader,
		writer: postgres.NewWriter(loader, "content", config.Retry{Attempts: 2}, hclog.NewNullLogger(), nil),
	}
}

func (h *harness) pipeline(n int, mode copyfmt.TailMode) *migrate.Pipeline {
	return &migrate.Pipeline{
		Source:      h.reader,
		Destination: h.writer,
		BatchSize:   n,
		TailMode:    mode,
		Logger:      hclog.NewNullLogger(),
		Metrics:     metrics.New(),
	}
}

func mustKind(t *testing.T, sum migrate.Summary, kind record.Kind) migrate.KindSummary {
	t.Helper()
	ks, ok := sum.Kind(kind)
	if !ok {
		t.Fatalf("summary has no entry for %s", kind)
	}
	return ks
}

func encodedLines(t *testing.T, recs []record.Record) []string {
	t.Helper()
	block, err := copyfmt.EncodeBatch(recs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(block), "\n"), "\n")
	sort.Strings(lines)
	return lines
}

func TestRunLoadsEveryKind(t *testing.T) {
	cat := sqlitetestutil.NewLinkedCatalogue(2, 2, 3)
	h := newHarness(t, nil, cat.Records()...)

	sum, err := h.pipeline(4, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed() || sum.ExitCode() != 0 || len(sum.Errors) != 0 {
		t.Fatalf("unexpected failure summary %+v", sum)
	}
	if len(sum.Kinds) != 5 {
		t.Fatalf("expected 5 kinds in summary, got %d", len(sum.Kinds))
	}
	for i, kind := range record.Kinds() {
		ks := sum.Kinds[i]
		if ks.Table != kind.Table() {
			t.Fatalf("summary order: position %d is %s, want %s", i, ks.Table, kind.Table())
		}
		want := cat.Count(kind)
		if ks.Status != migrate.StatusLoaded || ks.Read != want || ks.Loaded != int64(want) || h.loader.Rows(kind.Table()) != want {
			t.Fatalf("%s: unexpected summary %+v (destination rows %d)", kind, ks, h.loader.Rows(kind.Table()))
		}
		if wantBatches := (want + 3) / 4; ks.Batches != wantBatches {
			t.Fatalf("%s: expected %d batches, got %d", kind, wantBatches, ks.Batches)
		}
	}

	var persons []record.Record
	for _, p := range cat.Persons {
		persons = append(persons, p)
	}
	got := h.loader.Lines("person")
	sort.Strings(got)
	want := encodedLines(t, persons)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("person line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if !strings.Contains(h.loader.SQL[0], `COPY "content"."film_work" ("id", "title", "description", "creation_date"`) {
		t.Fatalf("first COPY must target film_work with named columns: %s", h.loader.SQL[0])
	}
}

func TestRunContinuesPastUnreadableTable(t *testing.T) {
	cat := sqlitetestutil.NewLinkedCatalogue(2, 2, 2)
	h := newHarness(t, func(db *sql.DB) error {
		_, err := db.Exec("DROP TABLE genre")
		return err
	}, cat.Records()...)

	sum, err := h.pipeline(10, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("source read failures must not be fatal: %v", err)
	}
	genre := mustKind(t, sum, record.KindGenre)
	if genre.Status != migrate.StatusUnavailable || genre.Error == "" || h.loader.Rows("genre") != 0 {
		t.Fatalf("unexpected genre summary %+v", genre)
	}
	for _, kind := range []record.Kind{record.KindFilm, record.KindPerson, record.KindFilmPerson} {
		ks := mustKind(t, sum, kind)
		if ks.Status != migrate.StatusLoaded || h.loader.Rows(kind.Table()) != cat.Count(kind) {
			t.Fatalf("%s: expected full load, got %+v", kind, ks)
		}
	}
	links := mustKind(t, sum, record.KindFilmGenre)
	if links.Status != migrate.StatusRejected || links.Rejected != cat.Count(record.KindFilmGenre) || links.Loaded != 0 || h.loader.Rows("genre_film_work") != 0 {
		t.Fatalf("links to the missing genres must be rejected, got %+v", links)
	}
	if len(sum.Errors) != 2 || sum.Errors[0].Kind != migrate.ErrSourceRead || sum.Errors[0].Table != "genre" {
		t.Fatalf("unexpected errors %+v", sum.Errors)
	}
	if !strings.Contains(sum.Errors[0].Message, "no such table") {
		t.Fatalf("driver text missing from %q", sum.Errors[0].Message)
	}
	if e := sum.Errors[1]; e.Kind != migrate.ErrRejected || e.Table != "genre_film_work" || e.Batch != 1 || !strings.Contains(e.Message, "23503") {
		t.Fatalf("unexpected rejection entry %+v", e)
	}
	if sum.ExitCode() != 0 {
		t.Fatalf("expected exit code 0, got %d", sum.ExitCode())
	}
}

func TestRunRejectedBatchDoesNotStopLaterKinds(t *testing.T) {
	cat := sqlitetestutil.NewLinkedCatalogue(1, 2, 2)
	h := newHarness(t, nil, cat.Records()...)
	h.loader.FailTable = "genre_film_work"
	h.loader.FailErr = &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Message: `violates foreign key constraint "genre_film_work_genre_id_fkey"`}

	sum, err := h.pipeline(1, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("integrity violations must not be fatal: %v", err)
	}
	links := mustKind(t, sum, record.KindFilmGenre)
	if links.Status != migrate.StatusRejected || links.RejectedBatches != links.Batches || links.Batches != cat.Count(record.KindFilmGenre) {
		t.Fatalf("unexpected link summary %+v", links)
	}
	for _, kind := range []record.Kind{record.KindPerson, record.KindFilmPerson} {
		if ks := mustKind(t, sum, kind); ks.Status != migrate.StatusLoaded || h.loader.Rows(kind.Table()) != cat.Count(kind) {
			t.Fatalf("%s: expected full load after rejected kind, got %+v", kind, ks)
		}
	}
	if sum.Failed() || sum.Totals().Rejected != cat.Count(record.KindFilmGenre) {
		t.Fatalf("unexpected run outcome %+v", sum)
	}
}

func threeGenres() []record.Record {
	return []record.Record{
		sqlitetestutil.Genre("Drama"),
		sqlitetestutil.Genre("Comedy"),
		sqlitetestutil.Genre("Documentary"),
	}
}

func TestRunDropTailBelowBatchSize(t *testing.T) {
	h := newHarness(t, nil, threeGenres()...)
	sum, err := h.pipeline(10, copyfmt.DropTail).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	genre := mustKind(t, sum, record.KindGenre)
	if genre.Read != 3 || genre.Batches != 0 || genre.Dropped != 3 || genre.Status != migrate.StatusDropped {
		t.Fatalf("unexpected genre summary %+v", genre)
	}
	if h.loader.Rows("genre") != 0 || h.loader.Calls != 0 {
		t.Fatalf("expected no COPY at all, calls=%d", h.loader.Calls)
	}
	if film := mustKind(t, sum, record.KindFilm); film.Status != migrate.StatusEmpty {
		t.Fatalf("empty source table must be reported as empty, got %+v", film)
	}
}

func TestRunFlushTailBelowBatchSize(t *testing.T) {
	h := newHarness(t, nil, threeGenres()...)
	sum, err := h.pipeline(10, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	genre := mustKind(t, sum, record.KindGenre)
	if genre.Batches != 1 || genre.Loaded != 3 || genre.Dropped != 0 || genre.Status != migrate.StatusLoaded {
		t.Fatalf("unexpected genre summary %+v", genre)
	}
	if h.loader.Rows("genre") != 3 {
		t.Fatalf("expected 3 destination rows, got %d", h.loader.Rows("genre"))
	}
}

func TestRerunConflictsWithoutChangingDestination(t *testing.T) {
	cat := sqlitetestutil.NewLinkedCatalogue(1, 3, 1)
	h := newHarness(t, nil, cat.Records()...)
	if _, err := h.pipeline(2, copyfmt.FlushTail).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := map[string]int{}
	for _, kind := range record.Kinds() {
		before[kind.Table()] = h.loader.Rows(kind.Table())
	}

	sum, err := h.pipeline(2, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("rerun must not be fatal: %v", err)
	}
	for _, kind := range record.Kinds() {
		ks := mustKind(t, sum, kind)
		if ks.Status != migrate.StatusConflicted || ks.Loaded != 0 || ks.Conflicted != cat.Count(kind) {
			t.Fatalf("%s: unexpected rerun summary %+v", kind, ks)
		}
		if h.loader.Rows(kind.Table()) != before[kind.Table()] {
			t.Fatalf("%s: destination changed by rerun", kind)
		}
	}
	for _, e := range sum.Errors {
		if e.Kind != migrate.ErrConflict || e.Batch == 0 {
			t.Fatalf("unexpected error entry %+v", e)
		}
	}
	if sum.ExitCode() != 0 {
		t.Fatalf("conflicts must not fail the run")
	}
}

func TestRunPartialConflict(t *testing.T) {
	genres := threeGenres()
	h := newHarness(t, nil, genres...)
	if _, err := h.writer.WriteBatch(context.Background(), "genre", record.Columns(record.KindGenre), mustEncode(t, genres[1:2]), 1); err != nil {
		t.Fatalf("preload: %v", err)
	}
	sum, err := h.pipeline(1, copyfmt.FlushTail).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	genre := mustKind(t, sum, record.KindGenre)
	if genre.Status != migrate.StatusPartial || genre.Loaded != 2 || genre.ConflictBatches != 1 || genre.Conflicted != 1 {
		t.Fatalf("unexpected genre summary %+v", genre)
	}
	if h.loader.Rows("genre") != 3 {
		t.Fatalf("expected 3 genre rows, got %d", h.loader.Rows("genre"))
	}
}

func mustEncode(t *testing.T, recs []record.Record) []byte {
	t.Helper()
	block, err := copyfmt.EncodeBatch(recs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return block
}

func TestRunStopsOnDestinationError(t *testing.T) {
	cat := sqlitetestutil.NewLinkedCatalogue(1, 1, 1)
	h := newHarness(t, nil, cat.Records()...)
	schemaErr := &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "content.genre_film_work" does not exist`}
	h.loader.FailTable = "genre_film_work"
	h.loader.FailErr = schemaErr

	sum, err := h.pipeline(10, copyfmt.FlushTail).Run(context.Background())
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if kind, ok := migrate.KindOf(err); !ok || kind != migrate.ErrDestination {
		t.Fatalf("expected destination error, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UndefinedTable {
		t.Fatalf("store error lost from chain: %v", err)
	}
	if !sum.Failed() || sum.ExitCode() != 1 || !strings.Contains(sum.Fatal, "genre_film_work") {
		t.Fatalf("unexpected summary outcome %+v", sum)
	}
	want := map[record.Kind]migrate.Status{
		record.KindFilm:       migrate.StatusLoaded,
		record.KindGenre:      migrate.StatusLoaded,
		record.KindFilmGenre:  migrate.StatusAborted,
		record.KindPerson:     migrate.StatusAborted,
		record.KindFilmPerson: migrate.StatusAborted,
	}
	for kind, status := range want {
		if got := mustKind(t, sum, kind).Status; got != status {
			t.Fatalf("%s: status %s, want %s", kind, got, status)
		}
	}
	if h.loader.Rows("person") != 0 {
		t.Fatalf("kinds after a fatal error must not be loaded")
	}
}

func TestRunCanceled(t *testing.T) {
	h := newHarness(t, nil, threeGenres()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := h.pipeline(10, copyfmt.FlushTail).Run(ctx)
	if kind, ok := migrate.KindOf(err); !ok || kind != migrate.ErrCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	for _, ks := range sum.Kinds {
		if ks.Status != migrate.StatusAborted {
			t.Fatalf("%s: expected aborted, got %s", ks.Table, ks.Status)
		}
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("context error lost: %v", err)
	}
}

func TestWriteTable(t *testing.T) {
	h := newHarness(t, nil, threeGenres()...)
	sum, err := h.pipeline(2, copyfmt.DropTail).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var buf bytes.Buffer
	if err := migrate.WriteTable(&buf, sum); err != nil {
		t.Fatalf("write table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{sum.RunID, "TABLE", "film_work", "person_film_work", "total", "completed", "tail drop"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 8 {
		t.Fatalf("expected 8 lines, got %d:\n%s", lines, out)
	}
}
