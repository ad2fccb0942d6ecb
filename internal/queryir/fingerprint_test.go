package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/ir"
)

func TestFilterObject(t *testing.T) {
	f := And(
		Where("genre", EQ, "NOVEL"),
		Exists{Op: OpNotExists, Relation: "tags"},
	)

	got, err := ir.MarshalCanonical(FilterObject(f))
	require.NoError(t, err)
	assert.Equal(t,
		`{"AND":[{"criteria":"EQ","field":"genre","value":"NOVEL"},{"NOT_EXISTS":{"relation":"tags","where":null}}]}`,
		string(got))
}

func TestFilterFingerprintStructural(t *testing.T) {
	a, err := FilterFingerprint(Where("genre", EQ, "NOVEL"))
	require.NoError(t, err)
	b, err := FilterFingerprint(&FieldCriteria{Field: "genre", Criteria: EQ, Value: ir.String("NOVEL")})
	require.NoError(t, err)
	c, err := FilterFingerprint(Where("genre", NE, "NOVEL"))
	require.NoError(t, err)

	assert.Equal(t, a, b, "pointer and value forms fingerprint alike")
	assert.NotEqual(t, a, c)

	none, err := FilterFingerprint(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, none)
}

func TestSelectionObject(t *testing.T) {
	books := Nested("books", Field("id"), &Selection{Field: "title", Order: Desc})
	books.Optional = Bool(false)

	got, err := ir.MarshalCanonical(SelectionObject([]*Selection{books}))
	require.NoError(t, err)
	assert.Equal(t,
		`[{"field":"books","optional":false,"select":[{"field":"id"},{"field":"title","orderBy":"DESC"}]}]`,
		string(got))
}

func TestFieldCriteriaKey(t *testing.T) {
	assert.Equal(t, Where("id", IN, []any{1, 2}).Key(), Where("id", IN, []any{1, 2}).Key())
	assert.NotEqual(t, Where("id", IN, []any{1, 2}).Key(), Where("id", IN, []any{2, 1}).Key())
	assert.NotEqual(t, Where("id", EQ, 1).Key(), Where("id", NE, 1).Key())
}
