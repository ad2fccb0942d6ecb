package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/ir"
)

func TestRunWithGolden_FilteredPage(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/golden_authors_page.yaml")
	require.NoError(t, err)

	// Golden file: testdata/golden/golden_authors_page.golden
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_ReusesResult(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/golden_authors_page.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/authors_page.yaml")
	require.NoError(t, err)

	var outputs []string
	for i := 0; i < 3; i++ {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		snap := Snapshot{Scenario: scenario.Name, Steps: result.Steps}
		data, err := ir.MarshalCanonical(snap.toCanonicalMap())
		require.NoError(t, err)
		outputs = append(outputs, string(data))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
}

func TestSnapshot_OmitsUnsetFields(t *testing.T) {
	total := int64(3)
	snap := Snapshot{
		Scenario: "s",
		Steps: []StepResult{
			{Name: "plain", RequestID: "r", Rows: []engine.Row{{"id": int64(1)}}, Queries: []string{"SELECT 1"}},
			{Name: "full", RequestID: "r", Rows: []engine.Row{}, Queries: []string{}, Total: &total,
				Warnings: []string{"W201"}, FieldErrors: []string{"rows[0].tags"}, ErrorCode: "Q101"},
		},
	}

	data, err := ir.MarshalCanonical(snap.toCanonicalMap())
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"s","steps":[`+
			`{"name":"plain","queries":["SELECT 1"],"request_id":"r","rows":[{"id":1}]},`+
			`{"error":"Q101","field_errors":["rows[0].tags"],"name":"full","queries":[],"request_id":"r","rows":[],"total":3,"warnings":["W201"]}`+
			`]}`,
		string(data))
}
