package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qgraph/internal/ir"
)

func decodeYAMLFilter(t *testing.T, src string) (Filter, error) {
	t.Helper()
	var obj map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &obj))
	return DecodeFilter(obj)
}

func TestDecodeFilterCriteriaObject(t *testing.T) {
	f, err := decodeYAMLFilter(t, `name: {LIKE: "an", EQ: "Dan"}`)
	require.NoError(t, err)

	// Criteria are ordered by criteria kind, not map order.
	assert.Equal(t, And(
		FieldCriteria{Field: "name", Criteria: EQ, Value: ir.String("Dan")},
		FieldCriteria{Field: "name", Criteria: LIKE, Value: ir.String("an")},
	), f)
}

func TestDecodeFilterNestedRelation(t *testing.T) {
	f, err := decodeYAMLFilter(t, `books: {genre: {EQ: NOVEL}}`)
	require.NoError(t, err)

	assert.Equal(t, Relation{
		Field: "books",
		Inner: FieldCriteria{Field: "genre", Criteria: EQ, Value: ir.String("NOVEL")},
	}, f)
}

func TestDecodeFilterBareValues(t *testing.T) {
	f, err := decodeYAMLFilter(t, `
id: [1, 2]
name: Jo
`)
	require.NoError(t, err)

	assert.Equal(t, And(
		FieldCriteria{Field: "id", Criteria: Default, Value: ir.Array{ir.Int(1), ir.Int(2)}},
		FieldCriteria{Field: "name", Criteria: Default, Value: ir.String("Jo")},
	), f)
}

func TestDecodeFilterLogical(t *testing.T) {
	f, err := decodeYAMLFilter(t, `
OR:
  - name: {EQ: a}
  - name: {EQ: b}
NOT: {id: {EQ: 3}}
`)
	require.NoError(t, err)

	assert.Equal(t, And(
		Not{Inner: FieldCriteria{Field: "id", Criteria: EQ, Value: ir.Int(3)}},
		Or(
			FieldCriteria{Field: "name", Criteria: EQ, Value: ir.String("a")},
			FieldCriteria{Field: "name", Criteria: EQ, Value: ir.String("b")},
		),
	), f)
}

func TestDecodeFilterEmptyObjects(t *testing.T) {
	f, err := DecodeFilter(map[string]any{})
	require.NoError(t, err)
	l, ok := f.(Logical)
	require.True(t, ok)
	assert.Equal(t, OpAnd, l.Op)
	assert.Empty(t, l.Children)

	f, err = decodeYAMLFilter(t, `OR: []`)
	require.NoError(t, err)
	l, ok = f.(Logical)
	require.True(t, ok)
	assert.Equal(t, OpOr, l.Op)
	assert.Empty(t, l.Children)
}

func TestDecodeFilterExists(t *testing.T) {
	f, err := decodeYAMLFilter(t, `
EXISTS: {books: {title: {LIKE: go}}}
NOT_EXISTS: {tags: {}}
`)
	require.NoError(t, err)

	assert.Equal(t, And(
		Exists{Op: OpExists, Relation: "books", Inner: FieldCriteria{Field: "title", Criteria: LIKE, Value: ir.String("go")}},
		Exists{Op: OpNotExists, Relation: "tags"},
	), f)
}

func TestDecodeFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"mixed criteria and fields", `author: {EQ: 1, name: x}`, ErrMalformedFilter},
		{"AND of scalars", `AND: [1, 2]`, ErrMalformedFilter},
		{"EXISTS of scalar", `EXISTS: books`, ErrMalformedFilter},
		{"EXISTS inner scalar", `EXISTS: {books: 3}`, ErrMalformedFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeYAMLFilter(t, tt.src)
			require.Error(t, err)
			assert.True(t, IsCompileError(err))
			assert.Equal(t, tt.code, CompileErrorCode(err))
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	src := `
entity: Author
where: {books: {genre: {EQ: NOVEL}}}
select:
  - id
  - name
  - field: books
    where: {genre: {EQ: NOVEL}}
    select: [id, {field: title, orderBy: DESC}]
  - publisher: [name]
page: {start: 2, limit: 5}
orderBy: [name, "born DESC", {path: publisher.name, dir: asc}]
distinct: false
count: true
`
	var obj map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &obj))

	req, err := DecodeRequest(obj)
	require.NoError(t, err)

	assert.Equal(t, "Author", req.Entity)
	assert.Equal(t, &Page{Start: 2, Limit: 5}, req.Page)
	assert.Equal(t, 5, req.Page.Offset())
	assert.False(t, req.IsDistinct())
	assert.True(t, req.WantsCount())
	assert.Equal(t, []OrderBy{
		{Path: "name", Dir: Asc},
		{Path: "born", Dir: Desc},
		{Path: "publisher.name", Dir: Asc},
	}, req.OrderBy)

	require.Len(t, req.Select, 4)
	books := req.Select[2]
	assert.Equal(t, "books", books.Field)
	assert.NotNil(t, books.Where)
	require.Len(t, books.Children, 2)
	assert.Equal(t, Desc, books.Children[1].Order)

	publisher := req.Select[3]
	assert.Equal(t, "publisher", publisher.Field)
	assert.Equal(t, []*Selection{Field("name")}, publisher.Children)
}

func TestDecodeRequestDefaults(t *testing.T) {
	req, err := DecodeRequest(map[string]any{"entity": "Book", "select": []any{"id"}})
	require.NoError(t, err)

	assert.True(t, req.IsDistinct())
	assert.False(t, req.WantsCount(), "unpaged requests skip the count by default")
	assert.Nil(t, req.Where)
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		obj  map[string]any
		code string
	}{
		{"missing entity", map[string]any{"select": []any{"id"}}, ErrMalformedFilter},
		{"unknown key", map[string]any{"entity": "A", "limit": 3}, ErrMalformedFilter},
		{"bad page", map[string]any{"entity": "A", "page": map[string]any{"start": "x"}}, ErrInvalidPage},
		{"bad direction", map[string]any{"entity": "A", "orderBy": []any{"name UP"}}, ErrUnsupportedOrdering},
		{"bad selection", map[string]any{"entity": "A", "select": []any{3}}, ErrMalformedFilter},
		{"bad optional", map[string]any{"entity": "A", "select": []any{map[string]any{"field": "b", "optional": "no"}}}, ErrMalformedFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(tt.obj)
			require.Error(t, err)
			assert.Equal(t, tt.code, CompileErrorCode(err))
		})
	}
}

func TestParseCriteria(t *testing.T) {
	c, ok := ParseCriteria("NOT_BETWEEN")
	assert.True(t, ok)
	assert.Equal(t, NOT_BETWEEN, c)
	assert.True(t, c.IsRange())
	assert.True(t, c.Negated())

	_, ok = ParseCriteria("DEFAULT")
	assert.False(t, ok, "the default is expressed by a bare value")

	_, ok = ParseCriteria("name")
	assert.False(t, ok)
}
