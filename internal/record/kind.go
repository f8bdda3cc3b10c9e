// Package record defines the fixed-shape rows moved from the SQLite catalogue
// into the Postgres content schema. Records are plain value holders: they know
// their column order and hand out their values, nothing else.
package record

import "fmt"

// Kind identifies one of the five catalogue tables.
type Kind int

const (
	KindFilm       Kind = iota // film_work
	KindGenre                  // genre
	KindFilmGenre              // genre_film_work
	KindPerson                 // person
	KindFilmPerson             // person_film_work
)

// kinds is ordered so that association tables follow the entities they reference.
var kinds = []Kind{KindFilm, KindGenre, KindFilmGenre, KindPerson, KindFilmPerson}

var kindNames = map[Kind]string{
	KindFilm:       "film",
	KindGenre:      "genre",
	KindFilmGenre:  "film_genre",
	KindPerson:     "person",
	KindFilmPerson: "film_person",
}

var kindTables = map[Kind]string{
	KindFilm:       "film_work",
	KindGenre:      "genre",
	KindFilmGenre:  "genre_film_work",
	KindPerson:     "person",
	KindFilmPerson: "person_film_work",
}

// Kinds returns every kind in migration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Table returns the table name shared by the source and destination stores.
func (k Kind) Table() string {
	return kindTables[k]
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindTables[k]
	return ok
}
