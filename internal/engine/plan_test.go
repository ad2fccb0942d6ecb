package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/testutil"
)

func TestPlanTwoPhaseStatements(t *testing.T) {
	e, rec := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{queryir.Field("name")},
		Where:  queryir.Where("name", queryir.STARTS, "a"),
		Page:   &queryir.Page{Start: 1, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeTwoPhase, plan.Mode)
	assert.Equal(t, 2, plan.Limit)
	assert.Equal(t, 0, plan.Offset)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, PhaseKey, stmts[0].Phase)
	assert.Equal(t,
		`SELECT DISTINCT t0."id" FROM "authors" AS t0 WHERE LOWER(t0."name") LIKE LOWER(?) ESCAPE '\' ORDER BY t0."id" ASC LIMIT 2 OFFSET 0`,
		stmts[0].SQL)
	assert.Equal(t, []any{"a%"}, stmts[0].Args)

	assert.Equal(t, PhaseContent, stmts[1].Phase)
	assert.Equal(t,
		`SELECT t0."id" AS c0, t0."name" AS c1 FROM "authors" AS t0 WHERE t0."id" IN (?) ORDER BY t0."id" ASC`,
		stmts[1].SQL)

	assert.Equal(t, PhaseCount, stmts[2].Phase)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT DISTINCT t0."id" FROM "authors" AS t0 WHERE LOWER(t0."name") LIKE LOWER(?) ESCAPE '\') AS k`,
		stmts[2].SQL)

	assert.Zero(t, rec.Count(), "planning issues no queries")
}

func TestPlanSelectedIdentityIsProjectedOnce(t *testing.T) {
	e, _ := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{queryir.Field("id"), queryir.Field("name")},
	})
	require.NoError(t, err)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS c0, t0."name" AS c1 FROM "authors" AS t0 ORDER BY t0."id" ASC`,
		stmts[0].SQL)

	res, err := e.Run(context.Background(), plan)
	require.NoError(t, err)
	require.NotEmpty(t, res.Rows)
	assert.Equal(t, int64(1), res.Rows[0]["id"])
	assert.Equal(t, "Ann", res.Rows[0]["name"])
}

func TestPlanSemiJoinWithFetchJoin(t *testing.T) {
	e, _ := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity:  "Book",
		Select:  []*queryir.Selection{queryir.Field("title"), queryir.Nested("author", queryir.Field("name"))},
		Where:   queryir.Where("genre", queryir.EQ, "NOVEL"),
		OrderBy: []queryir.OrderBy{{Path: "author.name", Dir: queryir.Desc}},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeSemiJoin, plan.Mode)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`SELECT t0."id" AS c0, t0."title" AS c1, t1."id" AS c2, t1."name" AS c3, t1."id" AS c4 `+
			`FROM "books" AS t0 JOIN "authors" AS t1 ON t0."author_id" = t1."id" `+
			`WHERE t0."id" IN (SELECT DISTINCT t2."id" FROM "books" AS t2 WHERE t2."genre" = ?) `+
			`ORDER BY t1."name" DESC, t0."id" ASC`,
		stmts[0].SQL)
	assert.Equal(t, []any{"NOVEL"}, stmts[0].Args)
}

func TestPlanBatchStatement(t *testing.T) {
	e, _ := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{queryir.Nested("books", queryir.Field("title"))},
	})
	require.NoError(t, err)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, `SELECT t0."id" AS c0 FROM "authors" AS t0 ORDER BY t0."id" ASC`, stmts[0].SQL)

	assert.Equal(t, PhaseBatch, stmts[1].Phase)
	assert.Equal(t, "select.books", stmts[1].Path)
	assert.Equal(t,
		`SELECT t0."id" AS c0, t1."id" AS c1, t1."title" AS c2 FROM "authors" AS t0 `+
			`JOIN "books" AS t1 ON t0."id" = t1."author_id" WHERE t0."id" IN (?) ORDER BY t0."id" ASC, t1."id" ASC`,
		stmts[1].SQL)
}

func TestPlanModes(t *testing.T) {
	e, _ := newLibraryEngine(t)

	tests := []struct {
		name string
		req  *queryir.Request
		want Mode
	}{
		{"paged", &queryir.Request{Entity: "Author", Page: &queryir.Page{Start: 2, Limit: 3}}, ModeTwoPhase},
		{"unpaged", &queryir.Request{Entity: "Author"}, ModeSemiJoin},
		{"not distinct", &queryir.Request{Entity: "Author", Distinct: queryir.Bool(false), Page: &queryir.Page{Limit: 3}}, ModeSingle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := e.Plan(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Mode)
		})
	}
}

func TestPlanSettingsDistinctDefault(t *testing.T) {
	e, _ := newLibraryEngine(t, WithSettings(Settings{Distinct: queryir.Bool(false)}))

	plan, err := e.Plan(&queryir.Request{Entity: "Author"})
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, plan.Mode)

	plan, err = e.Plan(&queryir.Request{Entity: "Author", Distinct: queryir.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, ModeSemiJoin, plan.Mode, "the request overrides the engine default")
}

func TestPlanPageLimits(t *testing.T) {
	e, _ := newLibraryEngine(t, WithDefaultLimit(7), WithMaxLimit(10))

	plan, err := e.Plan(&queryir.Request{Entity: "Author", Page: &queryir.Page{Start: 3}})
	require.NoError(t, err)
	assert.Equal(t, 7, plan.Limit)
	assert.Equal(t, 14, plan.Offset)

	for _, page := range []*queryir.Page{{Start: 1, Limit: 11}, {Start: -1, Limit: 2}, {Start: 1, Limit: -2}} {
		_, err := e.Plan(&queryir.Request{Entity: "Author", Page: page})
		require.Error(t, err)
		assert.Equal(t, queryir.ErrInvalidPage, queryir.CompileErrorCode(err))
	}
}

func TestPlanCompileErrors(t *testing.T) {
	e, _ := newLibraryEngine(t)

	tests := []struct {
		name string
		req  *queryir.Request
		code string
		path string
	}{
		{
			name: "unknown entity",
			req:  &queryir.Request{Entity: "Nope"},
			code: queryir.ErrUnknownEntity,
			path: "entity",
		},
		{
			name: "unknown selected field",
			req:  &queryir.Request{Entity: "Author", Select: []*queryir.Selection{queryir.Field("nope")}},
			code: queryir.ErrUnknownField,
			path: "select.nope",
		},
		{
			name: "unknown nested field",
			req:  &queryir.Request{Entity: "Author", Select: []*queryir.Selection{queryir.Nested("books", queryir.Field("nope"))}},
			code: queryir.ErrUnknownField,
			path: "select.books.nope",
		},
		{
			name: "scalar with children",
			req:  &queryir.Request{Entity: "Author", Select: []*queryir.Selection{queryir.Nested("name", queryir.Field("x"))}},
			code: queryir.ErrMalformedPath,
			path: "select.name",
		},
		{
			name: "ordering through to-many",
			req:  &queryir.Request{Entity: "Author", OrderBy: []queryir.OrderBy{{Path: "books.title"}}},
			code: queryir.ErrUnsupportedOrdering,
			path: "orderBy.books.title",
		},
		{
			name: "unknown filter field",
			req:  &queryir.Request{Entity: "Author", Where: queryir.Where("nope", queryir.EQ, 1)},
			code: queryir.ErrUnknownField,
		},
		{
			name: "bad child filter",
			req: &queryir.Request{Entity: "Author", Select: []*queryir.Selection{
				{Field: "books", Where: queryir.Where("genre", queryir.EQ, "OPERA")},
			}},
			code: queryir.ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Plan(tt.req)
			require.Error(t, err)
			assert.True(t, queryir.IsCompileError(err))
			assert.Equal(t, tt.code, queryir.CompileErrorCode(err))
			if tt.path != "" {
				var ce *queryir.CompileError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.path, ce.Path)
			}
		})
	}
}

func TestPlanWithoutIdentity(t *testing.T) {
	s := identitylessSchema(t)
	st := testutil.NewStore(t, s, "")
	e, _ := newEngineOver(t, s, testutil.NewRecordingQuerier(st))

	plan, err := e.Plan(&queryir.Request{Entity: "Event", Page: &queryir.Page{Start: 2, Limit: 5}})
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, plan.Mode)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnMissingIdentity, plan.Warnings[0].Code)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."name" AS c0 FROM "events" AS t0 LIMIT 5 OFFSET 5`, stmts[0].SQL)

	// A fetched to-one needs no identity; a batched one does.
	_, err = e.Plan(&queryir.Request{Entity: "Event", Select: []*queryir.Selection{queryir.Nested("label", queryir.Field("name"))}})
	require.NoError(t, err)

	_, err = e.Plan(&queryir.Request{Entity: "Event", Select: []*queryir.Selection{
		{Field: "label", Children: []*queryir.Selection{queryir.Field("name")}, Where: queryir.Where("name", queryir.EQ, "x")},
	}})
	require.Error(t, err)
	assert.Equal(t, queryir.ErrIdentityRequired, queryir.CompileErrorCode(err))
}

func TestPlanReportsSuspiciousRequests(t *testing.T) {
	e, _ := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{queryir.Field("name"), queryir.Field("name")},
		Where: queryir.And(
			queryir.Where("name", queryir.LIKE, "a"),
			queryir.Where("name", queryir.LIKE, "a"),
		),
	})
	require.NoError(t, err)

	var msgs []string
	for _, w := range plan.Warnings {
		assert.Equal(t, WarnSuspiciousRequest, w.Code)
		msgs = append(msgs, w.Message)
	}
	assert.Equal(t, []string{
		"where: repeated LIKE criteria on name",
		"select.name: field selected twice",
	}, msgs)

	clean, err := e.Plan(&queryir.Request{Entity: "Author", Where: queryir.Where("name", queryir.LIKE, "a")})
	require.NoError(t, err)
	assert.Empty(t, clean.Warnings)
}

func TestPlanOptionalFalseRestrictsParents(t *testing.T) {
	e, _ := newLibraryEngine(t)

	plan, err := e.Plan(&queryir.Request{
		Entity: "Author",
		Select: []*queryir.Selection{
			{Field: "books", Children: []*queryir.Selection{queryir.Field("title")}, Optional: queryir.Bool(false)},
		},
	})
	require.NoError(t, err)

	stmts, err := plan.Statements()
	require.NoError(t, err)
	assert.Contains(t, stmts[0].SQL, `WHERE t0."id" IN (SELECT DISTINCT t1."id" FROM "authors" AS t1 WHERE EXISTS (SELECT 1 FROM "books" AS t2`)
}

func TestPlanGroupsIdenticalAssociations(t *testing.T) {
	e, _ := newLibraryEngine(t)

	sel := func() *queryir.Selection {
		return &queryir.Selection{Field: "books", Children: []*queryir.Selection{queryir.Field("title")}}
	}
	p1, err := e.Plan(&queryir.Request{Entity: "Author", Select: []*queryir.Selection{sel()}})
	require.NoError(t, err)
	p2, err := e.Plan(&queryir.Request{Entity: "Author", Select: []*queryir.Selection{queryir.Field("name"), sel()}})
	require.NoError(t, err)
	assert.Equal(t, p1.Associations()[0].Group, p2.Associations()[0].Group)

	filtered := sel()
	filtered.Where = queryir.Where("genre", queryir.EQ, "NOVEL")
	p3, err := e.Plan(&queryir.Request{Entity: "Author", Select: []*queryir.Selection{filtered}})
	require.NoError(t, err)
	assert.NotEqual(t, p1.Associations()[0].Group, p3.Associations()[0].Group)
}
