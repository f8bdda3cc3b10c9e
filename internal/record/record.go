package record

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Record is one row of a catalogue table.
type Record interface {
	Kind() Kind
	// Columns returns the column names in the order Values reports them.
	Columns() []string
	// Values returns the field values in column order.
	Values() []any
}

var columns = map[Kind][]string{
	KindFilm:       {"id", "title", "description", "creation_date", "certificate", "file_path", "rating", "type", "created_at", "updated_at"},
	KindGenre:      {"id", "name", "description", "created_at", "updated_at"},
	KindFilmGenre:  {"id", "film_work_id", "genre_id", "created_at"},
	KindPerson:     {"id", "full_name", "birth_date", "created_at", "updated_at"},
	KindFilmPerson: {"id", "film_work_id", "person_id", "role", "created_at"},
}

// Columns returns the ordered column names for kind, or nil for an unknown kind.
func Columns(kind Kind) []string {
	cols, ok := columns[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// ErrNullID is returned by Scan when an id or reference column is NULL.
var ErrNullID = errors.New("null id")

// requiredUUID scans a NOT NULL uuid column into dst.
type requiredUUID struct {
	dst    *uuid.UUID
	column string
}

// Scan implements sql.Scanner.
func (r requiredUUID) Scan(src any) error {
	if src == nil {
		return fmt.Errorf("column %s: %w", r.column, ErrNullID)
	}
	if err := r.dst.Scan(src); err != nil {
		return fmt.Errorf("column %s: %w", r.column, err)
	}
	return nil
}

func requireID(dst *uuid.UUID, column string) requiredUUID {
	return requiredUUID{dst: dst, column: column}
}

// FilmType is the film_work.type enumeration.
type FilmType string

const (
	FilmTypeMovie  FilmType = "movie"
	FilmTypeTVShow FilmType = "tv_show"
)

// NullFilmType is a FilmType that may be NULL in the source.
type NullFilmType struct {
	FilmType FilmType
	Valid    bool
}

// Scan implements sql.Scanner.
func (n *NullFilmType) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = NullFilmType{}
	case string:
		*n = NullFilmType{FilmType: FilmType(v), Valid: true}
	case []byte:
		*n = NullFilmType{FilmType: FilmType(v), Valid: true}
	default:
		return fmt.Errorf("cannot scan %T into NullFilmType", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (n NullFilmType) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return string(n.FilmType), nil
}

// Film is a film_work row.
type Film struct {
	ID          uuid.UUID
	Title       pgtype.Text
	Description pgtype.Text
	ReleaseDate pgtype.Date // creation_date
	Certificate pgtype.Text
	FilePath    pgtype.Text
	Rating      pgtype.Float8
	Type        NullFilmType
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (Film) Kind() Kind        { return KindFilm }
func (Film) Columns() []string { return Columns(KindFilm) }
func (f Film) Values() []any {
	return []any{f.ID, f.Title, f.Description, f.ReleaseDate, f.Certificate, f.FilePath, f.Rating, f.Type, f.CreatedAt, f.UpdatedAt}
}

func (f *Film) targets() []any {
	return []any{requireID(&f.ID, "id"), &f.Title, &f.Description, &f.ReleaseDate, &f.Certificate, &f.FilePath, &f.Rating, &f.Type, &f.CreatedAt, &f.UpdatedAt}
}

// Genre is a genre row.
type Genre struct {
	ID          uuid.UUID
	Name        pgtype.Text
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (Genre) Kind() Kind        { return KindGenre }
func (Genre) Columns() []string { return Columns(KindGenre) }
func (g Genre) Values() []any {
	return []any{g.ID, g.Name, g.Description, g.CreatedAt, g.UpdatedAt}
}

func (g *Genre) targets() []any {
	return []any{requireID(&g.ID, "id"), &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt}
}

// FilmGenre links a film to a genre.
type FilmGenre struct {
	ID        uuid.UUID
	FilmID    uuid.UUID // film_work_id
	GenreID   uuid.UUID
	CreatedAt pgtype.Timestamptz
}

func (FilmGenre) Kind() Kind        { return KindFilmGenre }
func (FilmGenre) Columns() []string { return Columns(KindFilmGenre) }
func (fg FilmGenre) Values() []any {
	return []any{fg.ID, fg.FilmID, fg.GenreID, fg.CreatedAt}
}

func (fg *FilmGenre) targets() []any {
	return []any{requireID(&fg.ID, "id"), requireID(&fg.FilmID, "film_work_id"), requireID(&fg.GenreID, "genre_id"), &fg.CreatedAt}
}

// Person is a person row.
type Person struct {
	ID        uuid.UUID
	FullName  pgtype.Text
	BirthDate pgtype.Date
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func (Person) Kind() Kind        { return KindPerson }
func (Person) Columns() []string { return Columns(KindPerson) }
func (p Person) Values() []any {
	return []any{p.ID, p.FullName, p.BirthDate, p.CreatedAt, p.UpdatedAt}
}

func (p *Person) targets() []any {
	return []any{requireID(&p.ID, "id"), &p.FullName, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt}
}

// FilmPerson links a film to a person in a role.
type FilmPerson struct {
	ID        uuid.UUID
	FilmID    uuid.UUID // film_work_id
	PersonID  uuid.UUID
	Role      pgtype.Text
	CreatedAt pgtype.Timestamptz
}

func (FilmPerson) Kind() Kind        { return KindFilmPerson }
func (FilmPerson) Columns() []string { return Columns(KindFilmPerson) }
func (fp FilmPerson) Values() []any {
	return []any{fp.ID, fp.FilmID, fp.PersonID, fp.Role, fp.CreatedAt}
}

func (fp *FilmPerson) targets() []any {
	return []any{requireID(&fp.ID, "id"), requireID(&fp.FilmID, "film_work_id"), requireID(&fp.PersonID, "person_id"), &fp.Role, &fp.CreatedAt}
}

// Scan builds a record of the given kind by handing scan one destination per
// column, in Columns(kind) order. scan is typically (*sql.Rows).Scan. A NULL
// id or reference column fails with ErrNullID.
func Scan(kind Kind, scan func(dest ...any) error) (Record, error) {
	switch kind {
	case KindFilm:
		var r Film
		if err := scan(r.targets()...); err != nil {
			return nil, err
		}
		return r, nil
	case KindGenre:
		var r Genre
		if err := scan(r.targets()...); err != nil {
			return nil, err
		}
		return r, nil
	case KindFilmGenre:
		var r FilmGenre
		if err := scan(r.targets()...); err != nil {
			return nil, err
		}
		return r, nil
	case KindPerson:
		var r Person
		if err := scan(r.targets()...); err != nil {
			return nil, err
		}
		return r, nil
	case KindFilmPerson:
		var r FilmPerson
		if err := scan(r.targets()...); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown record kind %s", kind)
	}
}
