package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qgraph/internal/ir"
)

// Snapshot captures the observable outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Steps    []StepResult `json:"steps"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		rows := make([]any, len(step.Rows))
		for j, row := range step.Rows {
			rows[j] = row
		}
		stepMap := map[string]any{
			"name":       step.Name,
			"request_id": step.RequestID,
			"rows":       rows,
			"queries":    stringList(step.Queries),
		}
		if step.Total != nil {
			stepMap["total"] = *step.Total
		}
		if step.Pages != nil {
			stepMap["pages"] = *step.Pages
		}
		if len(step.Warnings) > 0 {
			stepMap["warnings"] = stringList(step.Warnings)
		}
		if len(step.FieldErrors) > 0 {
			stepMap["field_errors"] = stringList(step.FieldErrors)
		}
		if step.ErrorCode != "" {
			stepMap["error"] = step.ErrorCode
		}
		steps[i] = stepMap
	}

	return map[string]any{
		"scenario": s.Scenario,
		"steps":    steps,
	}
}

// MarshalSnapshot renders the canonical JSON snapshot of a result, the
// content of its golden file.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		Scenario: scenarioName,
		Steps:    result.Steps,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
