package querysql

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

// librarySchema builds a small catalog:
// Publisher 1-n Author 1-n Book n-m Reader, with an embedded Address and
// an element collection of author tags.
func librarySchema(t *testing.T) *schema.Schema {
	t.Helper()

	s, err := schema.New([]*schema.EntityType{
		{
			Name: "Publisher", Table: "publishers", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "name", Kind: schema.KindScalar, Family: schema.FamilyString},
			},
		},
		{
			Name: "Author", Table: "authors", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "name", Kind: schema.KindScalar, Family: schema.FamilyString},
				{Name: "born", Kind: schema.KindScalar, Family: schema.FamilyDate},
				{Name: "active", Kind: schema.KindScalar, Family: schema.FamilyBoolean},
				{Name: "address", Kind: schema.KindEmbedded, Target: "Address"},
				{Name: "publisher", Kind: schema.KindToOne, Target: "Publisher", Optional: true, Columns: []string{"publisher_id"}},
				{Name: "books", Kind: schema.KindToMany, Target: "Book", MappedBy: "author"},
				{Name: "tags", Kind: schema.KindElementCollection, Family: schema.FamilyString,
					CollectionTable: "author_tags", CollectionKey: []string{"author_id"}, Column: "tag"},
			},
		},
		{
			Name: "Book", Table: "books", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "title", Kind: schema.KindScalar, Family: schema.FamilyString},
				{Name: "genre", Kind: schema.KindScalar, Family: schema.FamilyEnum, EnumValues: []string{"NOVEL", "POETRY", "ESSAY"}},
				{Name: "price", Kind: schema.KindScalar, Family: schema.FamilyFloat},
				{Name: "isbn", Kind: schema.KindScalar, Family: schema.FamilyUUID},
				{Name: "author", Kind: schema.KindToOne, Target: "Author", Columns: []string{"author_id"}},
				{Name: "readers", Kind: schema.KindToMany, Target: "Reader", JoinTable: &schema.JoinTable{
					Name: "book_readers", OwnerColumns: []string{"book_id"}, TargetColumns: []string{"reader_id"},
				}},
			},
		},
		{
			Name: "Reader", Table: "readers", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "name", Kind: schema.KindScalar, Family: schema.FamilyString},
				{Name: "books", Kind: schema.KindToMany, Target: "Book", MappedBy: "readers"},
			},
		},
	}, []*schema.Embeddable{
		{
			Name: "Address",
			Attributes: []*schema.Attribute{
				{Name: "city", Kind: schema.KindScalar, Family: schema.FamilyString, Column: "address_city"},
				{Name: "zip", Kind: schema.KindScalar, Family: schema.FamilyString, Column: "address_zip"},
			},
		},
	})
	require.NoError(t, err)
	return s
}

// compileFilter compiles f against a fresh graph rooted at entity and
// renders the predicate alone.
func compileFilter(t *testing.T, entity string, f queryir.Filter) (string, []any, *JoinGraph) {
	t.Helper()
	s := librarySchema(t)
	root, ok := s.Entity(entity)
	require.True(t, ok)

	g := NewJoinGraph(s, SQLite, root, NewAliasAllocator())
	pred, err := NewFilterCompiler(s, SQLite).Compile(g, f)
	require.NoError(t, err)
	require.NotNil(t, pred)

	sql, args, err := pred.ToSql()
	require.NoError(t, err)
	return sql, args, g
}

// compileFilterErr compiles f and returns the error.
func compileFilterErr(t *testing.T, entity string, f queryir.Filter) error {
	t.Helper()
	s := librarySchema(t)
	root, ok := s.Entity(entity)
	require.True(t, ok)

	g := NewJoinGraph(s, SQLite, root, NewAliasAllocator())
	_, err := NewFilterCompiler(s, SQLite).Compile(g, f)
	require.Error(t, err)
	return err
}

// renderQuery renders a SELECT of the root identity with g's joins.
func renderQuery(t *testing.T, d Dialect, g *JoinGraph, where sq.Sqlizer) (string, []any) {
	t.Helper()
	b := g.Apply(sq.Select(g.IdentityColumns(RootNode)...).From(g.FromClause()))
	if where != nil {
		b = b.Where(where)
	}
	sql, args, err := d.Finish(b)
	require.NoError(t, err)
	return sql, args
}
