package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
)

func TestCompileScalarCriteria(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		filter queryir.Filter
		sql    string
		args   []any
	}{
		{
			name:   "string default is case-insensitive starts-with",
			entity: "Author",
			filter: queryir.Where("name", queryir.Default, "Da"),
			sql:    `LOWER(t0."name") LIKE LOWER(?) ESCAPE '\'`,
			args:   []any{"Da%"},
		},
		{
			name:   "string EQ is case-sensitive",
			entity: "Author",
			filter: queryir.Where("name", queryir.EQ, "Dan"),
			sql:    `t0."name" = ?`,
			args:   []any{"Dan"},
		},
		{
			name:   "CASE is exact",
			entity: "Author",
			filter: queryir.Where("name", queryir.CASE, "Dan"),
			sql:    `t0."name" = ?`,
			args:   []any{"Dan"},
		},
		{
			name:   "ENDS escapes wildcards",
			entity: "Book",
			filter: queryir.Where("title", queryir.ENDS, "50%_OFF"),
			sql:    `LOWER(t0."title") LIKE LOWER(?) ESCAPE '\'`,
			args:   []any{`%50\%\_OFF`},
		},
		{
			name:   "integer default is EQ",
			entity: "Author",
			filter: queryir.Where("id", queryir.Default, 7),
			sql:    `t0."id" = ?`,
			args:   []any{int64(7)},
		},
		{
			name:   "float default is LE",
			entity: "Book",
			filter: queryir.Where("price", queryir.Default, 9.5),
			sql:    `t0."price" <= ?`,
			args:   []any{9.5},
		},
		{
			name:   "float accepts integral values",
			entity: "Book",
			filter: queryir.Where("price", queryir.GT, 3),
			sql:    `t0."price" > ?`,
			args:   []any{float64(3)},
		},
		{
			name:   "BETWEEN",
			entity: "Book",
			filter: queryir.Where("price", queryir.BETWEEN, []any{1.5, 5.5}),
			sql:    `t0."price" BETWEEN ? AND ?`,
			args:   []any{1.5, 5.5},
		},
		{
			name:   "NOT_BETWEEN",
			entity: "Author",
			filter: queryir.Where("born", queryir.NOT_BETWEEN, []any{"1900-01-01", "1950-12-31"}),
			sql:    `t0."born" NOT BETWEEN ? AND ?`,
			args:   []any{"1900-01-01", "1950-12-31"},
		},
		{
			name:   "dates normalize to the layout",
			entity: "Author",
			filter: queryir.Where("born", queryir.GE, "1970-01-02T10:00:00Z"),
			sql:    `t0."born" >= ?`,
			args:   []any{"1970-01-02"},
		},
		{
			name:   "dates keep the calendar day of their offset",
			entity: "Author",
			filter: queryir.Where("born", queryir.GE, "1970-01-02T01:00:00+05:00"),
			sql:    `t0."born" >= ?`,
			args:   []any{"1970-01-02"},
		},
		{
			name:   "boolean NE negates the value",
			entity: "Author",
			filter: queryir.Where("active", queryir.NE, true),
			sql:    `t0."active" = ?`,
			args:   []any{false},
		},
		{
			name:   "array value is IN",
			entity: "Author",
			filter: queryir.Where("id", queryir.Default, []any{1, 2}),
			sql:    `t0."id" IN (?,?)`,
			args:   []any{int64(1), int64(2)},
		},
		{
			name:   "array with NE is NOT IN",
			entity: "Book",
			filter: queryir.Where("genre", queryir.NE, []any{"NOVEL"}),
			sql:    `t0."genre" NOT IN (?)`,
			args:   []any{"NOVEL"},
		},
		{
			name:   "IN wraps a single value",
			entity: "Book",
			filter: queryir.Where("genre", queryir.IN, "ESSAY"),
			sql:    `t0."genre" IN (?)`,
			args:   []any{"ESSAY"},
		},
		{
			name:   "empty IN matches nothing",
			entity: "Author",
			filter: queryir.Where("id", queryir.IN, []any{}),
			sql:    `(1=0)`,
		},
		{
			name:   "empty NIN matches everything",
			entity: "Author",
			filter: queryir.Where("id", queryir.NIN, []any{}),
			sql:    `(1=1)`,
		},
		{
			name:   "uuid is canonicalized",
			entity: "Book",
			filter: queryir.Where("isbn", queryir.EQ, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8"),
			sql:    `t0."isbn" = ?`,
			args:   []any{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		},
		{
			name:   "IS_NULL false",
			entity: "Author",
			filter: queryir.Where("born", queryir.IS_NULL, false),
			sql:    `t0."born" IS NOT NULL`,
		},
		{
			name:   "NOT_NULL true",
			entity: "Author",
			filter: queryir.Where("born", queryir.NOT_NULL, true),
			sql:    `t0."born" IS NOT NULL`,
		},
		{
			name:   "embedded scalar stays on the owner table",
			entity: "Author",
			filter: queryir.Where("address.city", queryir.EQ, "Oslo"),
			sql:    `t0."address_city" = ?`,
			args:   []any{"Oslo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, g := compileFilter(t, tt.entity, tt.filter)
			assert.Equal(t, tt.sql, sql)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
			assert.Empty(t, g.Edges(), "scalar criteria never join")
		})
	}
}

func TestCompileSiblingCriteriaCombineWithAnd(t *testing.T) {
	f, err := queryir.DecodeFilter(map[string]any{
		"name": map[string]any{"EQ": "x", "LIKE": "y"},
	})
	require.NoError(t, err)

	sql, args, _ := compileFilter(t, "Author", f)
	assert.Equal(t, `(t0."name" = ? AND LOWER(t0."name") LIKE LOWER(?) ESCAPE '\')`, sql)
	assert.Equal(t, []any{"x", "%y%"}, args)
}

func TestCompileEmptyLogicalMatchesNothing(t *testing.T) {
	for _, f := range []queryir.Filter{queryir.And(), queryir.Or()} {
		sql, args, _ := compileFilter(t, "Author", f)
		assert.Equal(t, "1 = 0", sql)
		assert.Empty(t, args)
	}
}

func TestCompileDuplicateCriteriaOnce(t *testing.T) {
	sql, args, _ := compileFilter(t, "Author", queryir.And(
		queryir.Where("name", queryir.EQ, "x"),
		queryir.Where("name", queryir.EQ, "x"),
	))
	assert.Equal(t, `t0."name" = ?`, sql)
	assert.Equal(t, []any{"x"}, args)
}

func TestCompileNot(t *testing.T) {
	sql, args, _ := compileFilter(t, "Author", queryir.Not{Inner: queryir.Where("active", queryir.EQ, true)})
	assert.Equal(t, `NOT (t0."active" = ?)`, sql)
	assert.Equal(t, []any{true}, args)
}

func TestCompileJoinReuse(t *testing.T) {
	sql, _, g := compileFilter(t, "Author", queryir.And(
		queryir.Where("books.genre", queryir.EQ, "NOVEL"),
		queryir.Where("books.title", queryir.LIKE, "go"),
		queryir.Where("books.price", queryir.LT, 20),
	))

	require.Len(t, g.Edges(), 1, "one relation prefix joins once")
	e := g.Edges()[0]
	assert.Equal(t, JoinInner, e.Kind)
	assert.Equal(t, "t1", e.Alias)
	assert.Equal(t, `(t1."genre" = ? AND LOWER(t1."title") LIKE LOWER(?) ESCAPE '\' AND t1."price" < ?)`, sql)
}

func TestCompileNestedPathReusesPrefix(t *testing.T) {
	_, _, g := compileFilter(t, "Book", queryir.And(
		queryir.Where("author.name", queryir.EQ, "Dan"),
		queryir.Relation{Field: "author", Inner: queryir.Where("publisher.name", queryir.EQ, "Acme")},
		queryir.Where("author.publisher.id", queryir.EQ, 1),
	))

	require.Len(t, g.Edges(), 2)
	assert.Equal(t, "author", g.Edges()[0].Attribute.Name)
	assert.Equal(t, "publisher", g.Edges()[1].Attribute.Name)
	assert.Equal(t, g.Edges()[0].ID, g.Edges()[1].Parent)
}

func TestCompileOrUsesGuardedOuterJoin(t *testing.T) {
	sql, args, g := compileFilter(t, "Author", queryir.Or(
		queryir.Where("books.genre", queryir.EQ, "NOVEL"),
		queryir.Where("name", queryir.EQ, "x"),
	))

	require.Len(t, g.Edges(), 1)
	assert.Equal(t, JoinLeftOuter, g.Edges()[0].Kind)
	assert.Equal(t, `((t1."author_id" IS NOT NULL AND t1."genre" = ?) OR t0."name" = ?)`, sql)
	assert.Equal(t, []any{"NOVEL", "x"}, args)
}

func TestCompileInnerRequestUpgradesOuterEdge(t *testing.T) {
	_, _, g := compileFilter(t, "Author", queryir.And(
		queryir.Or(queryir.Where("books.genre", queryir.EQ, "NOVEL"), queryir.Where("name", queryir.EQ, "x")),
		queryir.Where("books.title", queryir.LIKE, "go"),
	))

	require.Len(t, g.Edges(), 1)
	assert.Equal(t, JoinInner, g.Edges()[0].Kind)
}

func TestCompileNotUsesOuterJoin(t *testing.T) {
	_, _, g := compileFilter(t, "Book", queryir.Not{Inner: queryir.Where("author.name", queryir.EQ, "Dan")})
	require.Len(t, g.Edges(), 1)
	assert.Equal(t, JoinLeftOuter, g.Edges()[0].Kind)
}

func TestCompileRelationCriteriaTargetIdentity(t *testing.T) {
	sql, args, g := compileFilter(t, "Author", queryir.Where("publisher", queryir.EQ, 3))
	require.Len(t, g.Edges(), 1)
	assert.Equal(t, `t1."id" = ?`, sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestCompileRelationNullChecks(t *testing.T) {
	sql, _, g := compileFilter(t, "Author", queryir.Where("publisher", queryir.IS_NULL, true))
	assert.Equal(t, `t0."publisher_id" IS NULL`, sql)
	assert.Empty(t, g.Edges(), "owner-side foreign keys are tested in place")

	sql, _, g = compileFilter(t, "Author", queryir.Where("books", queryir.IS_NULL, true))
	assert.Equal(t, `NOT EXISTS (SELECT 1 FROM "books" AS t1 WHERE t0."id" = t1."author_id")`, sql)
	assert.Empty(t, g.Edges())

	sql, _, _ = compileFilter(t, "Author", queryir.Where("tags", queryir.NOT_NULL, true))
	assert.Equal(t, `EXISTS (SELECT 1 FROM "author_tags" AS t1 WHERE t0."id" = t1."author_id")`, sql)
}

func TestCompileElementCollection(t *testing.T) {
	sql, args, g := compileFilter(t, "Author", queryir.Where("tags", queryir.EQ, "sf"))
	require.Len(t, g.Edges(), 1)
	assert.Nil(t, g.Edges()[0].Target)
	assert.Equal(t, `t1."tag" = ?`, sql)
	assert.Equal(t, []any{"sf"}, args)

	query, _ := renderQuery(t, SQLite, g, nil)
	assert.Equal(t, `SELECT t0."id" FROM "authors" AS t0 JOIN "author_tags" AS t1 ON t0."id" = t1."author_id"`, query)
}

func TestCompileManyToManyJoinsTwice(t *testing.T) {
	sql, _, g := compileFilter(t, "Book", queryir.Where("readers.name", queryir.EQ, "Ria"))
	require.Len(t, g.Edges(), 1)
	assert.Equal(t, `t2."name" = ?`, sql)

	query, _ := renderQuery(t, SQLite, g, nil)
	assert.Equal(t,
		`SELECT t0."id" FROM "books" AS t0 JOIN "book_readers" AS t1 ON t0."id" = t1."book_id" JOIN "readers" AS t2 ON t1."reader_id" = t2."id"`,
		query)
}

func TestCompileInverseManyToMany(t *testing.T) {
	_, _, g := compileFilter(t, "Reader", queryir.Where("books.title", queryir.EQ, "Go"))
	query, _ := renderQuery(t, SQLite, g, nil)
	assert.Equal(t,
		`SELECT t0."id" FROM "readers" AS t0 JOIN "book_readers" AS t1 ON t0."id" = t1."reader_id" JOIN "books" AS t2 ON t1."book_id" = t2."id"`,
		query)
}

func TestCompileExists(t *testing.T) {
	sql, args, g := compileFilter(t, "Author", queryir.Exists{
		Op:       queryir.OpExists,
		Relation: "books",
		Inner:    queryir.Where("genre", queryir.EQ, "NOVEL"),
	})

	assert.Empty(t, g.Edges(), "the subquery has its own graph")
	assert.Equal(t, `EXISTS (SELECT 1 FROM "books" AS t1 WHERE (t0."id" = t1."author_id" AND t1."genre" = ?))`, sql)
	assert.Equal(t, []any{"NOVEL"}, args)
}

func TestCompileNotExistsManyToMany(t *testing.T) {
	sql, _, _ := compileFilter(t, "Book", queryir.Exists{
		Op:       queryir.OpNotExists,
		Relation: "readers",
		Inner:    queryir.Where("name", queryir.EQ, "Ria"),
	})
	assert.Equal(t,
		`NOT EXISTS (SELECT 1 FROM "readers" AS t2 JOIN "book_readers" AS t1 ON t1."reader_id" = t2."id" WHERE (t0."id" = t1."book_id" AND t2."name" = ?))`,
		sql)
}

func TestCompileExistsNestedPathJoinsInside(t *testing.T) {
	sql, args, g := compileFilter(t, "Author", queryir.Exists{
		Op:       queryir.OpExists,
		Relation: "books.readers",
		Inner:    queryir.Where("name", queryir.EQ, "Ria"),
	})

	assert.Empty(t, g.Edges())
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM "books" AS t1 JOIN "book_readers" AS t2 ON t1."id" = t2."book_id" JOIN "readers" AS t3 ON t2."reader_id" = t3."id" WHERE (t0."id" = t1."author_id" AND t3."name" = ?))`,
		sql)
	assert.Equal(t, []any{"Ria"}, args)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		filter queryir.Filter
		code   string
		path   string
	}{
		{"unknown field", "Author", queryir.Where("nope", queryir.EQ, 1), queryir.ErrUnknownField, "where"},
		{"unknown nested field", "Author", queryir.Where("books.nope", queryir.EQ, 1), queryir.ErrUnknownField, "where.books"},
		{"string LT", "Author", queryir.Where("name", queryir.LT, "m"), queryir.ErrUnsupportedCriteria, "where.name"},
		{"boolean LIKE", "Author", queryir.Where("active", queryir.LIKE, true), queryir.ErrUnsupportedCriteria, "where.active"},
		{"enum value", "Book", queryir.Where("genre", queryir.EQ, "COMIC"), queryir.ErrInvalidValue, "where.genre"},
		{"integer from string", "Book", queryir.Where("id", queryir.EQ, "one"), queryir.ErrInvalidValue, "where.id"},
		{"bad uuid", "Book", queryir.Where("isbn", queryir.EQ, "xyz"), queryir.ErrInvalidValue, "where.isbn"},
		{"bad date", "Author", queryir.Where("born", queryir.EQ, "yesterday"), queryir.ErrInvalidValue, "where.born"},
		{"string BETWEEN", "Author", queryir.Where("name", queryir.BETWEEN, []any{"a", "m"}), queryir.ErrUnsupportedCriteria, "where.name"},
		{"enum NOT_BETWEEN", "Book", queryir.Where("genre", queryir.NOT_BETWEEN, []any{"ESSAY", "NOVEL"}), queryir.ErrUnsupportedCriteria, "where.genre"},
		{"boolean BETWEEN", "Author", queryir.Where("active", queryir.BETWEEN, []any{false, true}), queryir.ErrUnsupportedCriteria, "where.active"},
		{"between arity", "Book", queryir.Where("price", queryir.BETWEEN, []any{1}), queryir.ErrInvalidValue, "where.price"},
		{"null comparison", "Author", queryir.Where("name", queryir.EQ, nil), queryir.ErrInvalidValue, "where.name"},
		{"path through scalar", "Author", queryir.Where("name.first", queryir.EQ, "x"), queryir.ErrUnknownRelation, "where.name"},
		{"embedded without sub-field", "Author", queryir.Where("address", queryir.EQ, "x"), queryir.ErrMalformedPath, "where.address"},
		{"empty segment", "Author", queryir.Where("books..title", queryir.EQ, "x"), queryir.ErrMalformedPath, "where.books"},
		{"exists on scalar", "Author", queryir.Exists{Relation: "name"}, queryir.ErrUnknownRelation, "where.EXISTS.name"},
		{"exists into collection values", "Author",
			queryir.Exists{Relation: "tags", Inner: queryir.Where("tag", queryir.EQ, "x")}, queryir.ErrMalformedPath, "where.EXISTS.tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileFilterErr(t, tt.entity, tt.filter)
			assert.True(t, IsCompileError(err))

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.path, ce.Path)
		})
	}
}

func TestCompileNilFilter(t *testing.T) {
	s := librarySchema(t)
	root, _ := s.Entity("Author")
	g := NewJoinGraph(s, SQLite, root, NewAliasAllocator())

	pred, err := NewFilterCompiler(s, SQLite).Compile(g, nil)
	require.NoError(t, err)
	assert.Nil(t, pred)
}
