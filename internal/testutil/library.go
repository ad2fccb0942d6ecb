package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/schema"
	"github.com/roach88/qgraph/internal/store"
)

// LibraryCUE is the shared test model:
// Publisher 1-n Author 1-n Book n-m Reader, with an embedded Address and
// an element collection of author tags.
const LibraryCUE = `
embeddable: Address: {
	city: {type: "string", column: "address_city"}
	zip:  {type: "string", column: "address_zip"}
}

entity: Publisher: {
	table:    "publishers"
	identity: "id"
	attributes: {
		id:      "integer"
		name:    "string"
		authors: {toMany: "Author", mappedBy: "publisher"}
	}
}

entity: Author: {
	table:    "authors"
	identity: "id"
	attributes: {
		id:        "integer"
		name:      "string"
		born:      {type: "date", optional: true}
		active:    "boolean"
		address:   {embedded: "Address"}
		publisher: {toOne: "Publisher", column: "publisher_id", optional: true}
		books:     {toMany: "Book", mappedBy: "author"}
		tags:      {elements: "string", table: "author_tags", key: ["author_id"], column: "tag"}
	}
}

entity: Book: {
	table:    "books"
	identity: "id"
	attributes: {
		id:     "integer"
		title:  "string"
		genre:  {type: "enum", values: ["NOVEL", "POETRY", "ESSAY"]}
		price:  "float"
		isbn:   {type: "uuid", optional: true}
		author: {toOne: "Author", column: "author_id"}
		readers: {
			toMany: "Reader"
			joinTable: {name: "book_readers", ownerColumns: ["book_id"], targetColumns: ["reader_id"]}
		}
	}
}

entity: Reader: {
	table:    "readers"
	identity: "id"
	attributes: {
		id:    "integer"
		name:  "string"
		books: {toMany: "Book", mappedBy: "readers"}
	}
}
`

// LibraryFixtures seeds the library model.
//
//	Ann (Acme):       Alpha NOVEL, Beta POETRY, Gamma NOVEL; tags classic, prize
//	Bo (Acme):        Delta ESSAY; tag debut
//	Cy (no publisher): no books, no address
//	Di (Borealis):    Epsilon NOVEL; born unknown
//
// Readers Rita and Sam read Alpha; Rita reads Gamma, Sam reads Delta;
// Tom reads nothing.
const LibraryFixtures = `
- table: publishers
  rows:
    - {id: 1, name: Acme}
    - {id: 2, name: Borealis}
- table: authors
  rows:
    - {id: 1, name: Ann, born: "1970-01-05", active: true, address_city: Oslo, address_zip: "0150", publisher_id: 1}
    - {id: 2, name: Bo, born: "1980-02-10", active: false, address_city: Bergen, address_zip: "5003", publisher_id: 1}
    - {id: 3, name: Cy, born: "1990-03-15", active: true}
    - {id: 4, name: Di, active: true, address_city: Oslo, publisher_id: 2}
- table: books
  rows:
    - {id: 1, title: Alpha, genre: NOVEL, price: 10.5, isbn: 6ba7b810-9dad-11d1-80b4-00c04fd430c8, author_id: 1}
    - {id: 2, title: Beta, genre: POETRY, price: 8.0, author_id: 1}
    - {id: 3, title: Gamma, genre: NOVEL, price: 12.0, author_id: 1}
    - {id: 4, title: Delta, genre: ESSAY, price: 5.0, author_id: 2}
    - {id: 5, title: Epsilon, genre: NOVEL, price: 9.5, author_id: 4}
- table: readers
  rows:
    - {id: 1, name: Rita}
    - {id: 2, name: Sam}
    - {id: 3, name: Tom}
- table: book_readers
  rows:
    - {book_id: 1, reader_id: 1}
    - {book_id: 1, reader_id: 2}
    - {book_id: 3, reader_id: 1}
    - {book_id: 4, reader_id: 2}
- table: author_tags
  rows:
    - {author_id: 1, tag: classic}
    - {author_id: 1, tag: prize}
    - {author_id: 2, tag: debut}
`

// LibrarySchema compiles LibraryCUE.
func LibrarySchema(t testing.TB) *schema.Schema {
	t.Helper()
	v := cuecontext.New().CompileString(LibraryCUE)
	s, err := schema.Compile(v)
	require.NoError(t, err)
	return s
}

// NewStore opens a migrated SQLite store in t.TempDir(), loaded with the
// given YAML fixtures. It is closed when the test ends.
func NewStore(t testing.TB, s *schema.Schema, fixtures string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "qgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, s))
	if fixtures != "" {
		f, err := store.ParseFixtures([]byte(fixtures))
		require.NoError(t, err)
		require.NoError(t, st.LoadFixtures(ctx, f))
	}
	return st
}

// LibraryStore returns the library schema and a store seeded with
// LibraryFixtures.
func LibraryStore(t testing.TB) (*schema.Schema, *store.Store) {
	t.Helper()
	s := LibrarySchema(t)
	return s, NewStore(t, s, LibraryFixtures)
}
