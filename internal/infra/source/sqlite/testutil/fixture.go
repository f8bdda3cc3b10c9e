// Package testutil builds SQLite catalogue files for tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filmmigrate/internal/record"
	"filmmigrate/internal/schema"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const timestampLayout = "2006-01-02 15:04:05.999999999-07:00"

// NewCatalogue creates an empty catalogue file with the source DDL applied and
// returns its path plus a writable handle closed at test cleanup. The test is
// skipped when the sqlite driver cannot be used.
func NewCatalogue(t testing.TB) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	err = schema.Apply(context.Background(), schema.Source(), func(ctx context.Context, stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return path, db
}

// Insert writes recs into their tables.
func Insert(ctx context.Context, db *sql.DB, recs ...record.Record) error {
	for _, rec := range recs {
		cols := rec.Columns()
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", rec.Kind().Table(), strings.Join(cols, ", "), marks)
		args, err := Args(rec)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Kind(), err)
		}
	}
	return nil
}

// MustInsert is Insert that fails the test on error.
func MustInsert(t testing.TB, db *sql.DB, recs ...record.Record) {
	t.Helper()
	if err := Insert(context.Background(), db, recs...); err != nil {
		t.Fatalf("seed catalogue: %v", err)
	}
}

// Args converts the values of rec into the text forms the catalogue stores.
func Args(rec record.Record) ([]any, error) {
	vals := rec.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case pgtype.Date:
			if x.Valid {
				out[i] = x.Time.Format("2006-01-02")
			}
		case pgtype.Timestamptz:
			if x.Valid {
				out[i] = x.Time.UTC().Format(timestampLayout)
			}
		case driver.Valuer:
			dv, err := x.Value()
			if err != nil {
				return nil, fmt.Errorf("%s column %s: %w", rec.Kind(), rec.Columns()[i], err)
			}
			out[i] = dv
		default:
			out[i] = v
		}
	}
	return out, nil
}

// Stamp is a fixed, microsecond-precision timestamp for fixtures.
var Stamp = pgtype.Timestamptz{Time: time.Date(2021, 6, 16, 20, 14, 9, 221838000, time.UTC), Valid: true}

func text(s string) pgtype.Text { return pgtype.Text{String: s, Valid: true} }

// Film returns a film with every required column set.
func Film(title string) record.Film {
	return record.Film{
		ID:          uuid.New(),
		Title:       text(title),
		Description: text(title + " description"),
		ReleaseDate: pgtype.Date{Time: time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		Rating:      pgtype.Float8{Float64: 8.5, Valid: true},
		Type:        record.NullFilmType{FilmType: record.FilmTypeMovie, Valid: true},
		CreatedAt:   Stamp,
		UpdatedAt:   Stamp,
	}
}

// Genre returns a genre with every required column set.
func Genre(name string) record.Genre {
	return record.Genre{ID: uuid.New(), Name: text(name), CreatedAt: Stamp, UpdatedAt: Stamp}
}

// Person returns a person with every required column set.
func Person(name string) record.Person {
	return record.Person{ID: uuid.New(), FullName: text(name), CreatedAt: Stamp, UpdatedAt: Stamp}
}

// FilmGenre links film to genre.
func FilmGenre(film record.Film, genre record.Genre) record.FilmGenre {
	return record.FilmGenre{ID: uuid.New(), FilmID: film.ID, GenreID: genre.ID, CreatedAt: Stamp}
}

// FilmPerson links film to person in role.
func FilmPerson(film record.Film, person record.Person, role string) record.FilmPerson {
	return record.FilmPerson{ID: uuid.New(), FilmID: film.ID, PersonID: person.ID, Role: text(role), CreatedAt: Stamp}
}

// Catalogue is a small linked dataset covering every kind.
type Catalogue struct {
	Films       []record.Film
	Genres      []record.Genre
	FilmGenres  []record.FilmGenre
	Persons     []record.Person
	FilmPersons []record.FilmPerson
}

// NewLinkedCatalogue builds films*genres*persons worth of linked rows: every
// film is tagged with every genre and cast with every person.
func NewLinkedCatalogue(films, genres, persons int) Catalogue {
	var c Catalogue
	for i := 0; i < films; i++ {
		c.Films = append(c.Films, Film(fmt.Sprintf("Film %d", i+1)))
	}
	for i := 0; i < genres; i++ {
		c.Genres = append(c.Genres, Genre(fmt.Sprintf("Genre %d", i+1)))
	}
	for i := 0; i < persons; i++ {
		c.Persons = append(c.Persons, Person(fmt.Sprintf("Person %d", i+1)))
	}
	for _, f := range c.Films {
		for _, g := range c.Genres {
			c.FilmGenres = append(c.FilmGenres, FilmGenre(f, g))
		}
		for _, p := range c.Persons {
			c.FilmPersons = append(c.FilmPersons, FilmPerson(f, p, "actor"))
		}
	}
	return c
}

// Records flattens the catalogue in migration order.
func (c Catalogue) Records() []record.Record {
	var out []record.Record
	for _, r := range c.Films {
		out = append(out, r)
	}
	for _, r := range c.Genres {
		out = append(out, r)
	}
	for _, r := range c.FilmGenres {
		out = append(out, r)
	}
	for _, r := range c.Persons {
		out = append(out, r)
	}
	for _, r := range c.FilmPersons {
		out = append(out, r)
	}
	return out
}

// Count returns the number of rows of kind in the catalogue.
func (c Catalogue) Count(kind record.Kind) int {
	switch kind {
	case record.KindFilm:
		return len(c.Films)
	case record.KindGenre:
		return len(c.Genres)
	case record.KindFilmGenre:
		return len(c.FilmGenres)
	case record.KindPerson:
		return len(c.Persons)
	case record.KindFilmPerson:
		return len(c.FilmPersons)
	}
	return 0
}
