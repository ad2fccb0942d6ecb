package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
	"github.com/roach88/qgraph/internal/testutil"
)

// newLibraryEngine returns an engine over the seeded library store and the
// recorder all of its queries pass through.
func newLibraryEngine(t *testing.T, opts ...Option) (*Engine, *testutil.RecordingQuerier) {
	t.Helper()
	s, st := testutil.LibraryStore(t)
	return newEngineOver(t, s, testutil.NewRecordingQuerier(st), opts...)
}

func newEngineOver(t *testing.T, s *schema.Schema, q *testutil.RecordingQuerier, opts ...Option) (*Engine, *testutil.RecordingQuerier) {
	t.Helper()
	all := append([]Option{WithRequestIDs(testutil.NewStaticRequestIDs("req-1"))}, opts...)
	e, err := New(s, q, all...)
	require.NoError(t, err)
	return e, q
}

// ids extracts the "id" field of every row.
func ids(rows []Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r["id"]
	}
	return out
}

// field extracts one field of every row.
func field(rows []Row, name string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[name]
	}
	return out
}

// identitylessSchema declares an entity without identity.
func identitylessSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]*schema.EntityType{
		{
			Name: "Event", Table: "events",
			Attributes: []*schema.Attribute{
				{Name: "name", Kind: schema.KindScalar, Family: schema.FamilyString},
				{Name: "label", Kind: schema.KindToOne, Target: "Label", Optional: true, Columns: []string{"label_id"}},
			},
		},
		{
			Name: "Label", Table: "labels", IdentityOf: []string{"id"},
			Attributes: []*schema.Attribute{
				{Name: "id", Kind: schema.KindScalar, Family: schema.FamilyInteger},
				{Name: "name", Kind: schema.KindScalar, Family: schema.FamilyString},
			},
		},
	}, nil)
	require.NoError(t, err)
	return s
}

func mustDecode(t *testing.T, obj map[string]any) *queryir.Request {
	t.Helper()
	req, err := queryir.DecodeRequest(obj)
	require.NoError(t, err)
	return req
}
