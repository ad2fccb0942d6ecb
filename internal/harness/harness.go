package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/qgraph/internal/config"
	"github.com/roach88/qgraph/internal/engine"
	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/store"
	"github.com/roach88/qgraph/internal/testutil"
)

// Harness runs the steps of one scenario against a private database.
type Harness struct {
	project *config.Project
	store   *store.Store
	ids     *testutil.StaticRequestIDs
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, and
// every request gets the scenario's fixed request id, so results are
// reproducible.
//
// Execution flow:
// 1. Load the CUE project
// 2. Create the tables and seed the fixtures
// 3. Run each step through a recording querier
// 4. Check expect clauses and assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	project, err := config.Load(scenario.Project)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx, project.Schema); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	if scenario.Fixtures != "" {
		if err := st.LoadFixturesFile(ctx, scenario.Fixtures); err != nil {
			return nil, fmt.Errorf("failed to load fixtures: %w", err)
		}
	}

	h := &Harness{
		project: project,
		store:   st,
		ids:     testutil.NewStaticRequestIDs(scenario.RequestID),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		result.Steps = append(result.Steps, *sr)
		for _, msg := range checkExpect(step, sr) {
			result.AddError(fmt.Sprintf("step %q: %s", step.Name, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// runStep compiles and executes one request. Compile errors are recorded
// on the step; any other failure aborts the scenario.
func (h *Harness) runStep(ctx context.Context, step Step) (*StepResult, error) {
	rec := testutil.NewRecordingQuerier(h.store)
	for _, f := range step.FailOn {
		rec.FailOn(f)
	}
	eng, err := engine.New(h.project.Schema, rec,
		engine.WithSettings(h.project.Settings),
		engine.WithRequestIDs(h.ids),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, err
	}

	sr := &StepResult{Name: step.Name, Rows: []engine.Row{}}
	req, err := queryir.DecodeRequest(step.Request)
	if err == nil {
		var res *engine.Result
		res, err = eng.CompileAndRun(ctx, req)
		if err == nil {
			sr.RequestID = res.RequestID
			sr.Rows = res.Rows
			sr.Total = res.Total
			sr.Pages = res.Pages
			for _, w := range res.Warnings {
				sr.Warnings = append(sr.Warnings, w.Code)
			}
			for _, fe := range res.FieldErrors {
				sr.FieldErrors = append(sr.FieldErrors, fe.Path)
			}
		}
	}
	sr.Queries = rec.Statements()
	if sr.Queries == nil {
		sr.Queries = []string{}
	}

	if err != nil {
		if !queryir.IsCompileError(err) {
			return nil, err
		}
		sr.ErrorCode = queryir.CompileErrorCode(err)
	}

	h.logger.Info("step completed",
		"step", step.Name,
		"rows", len(sr.Rows),
		"queries", len(sr.Queries),
		"error", sr.ErrorCode,
	)
	return sr, nil
}

// checkExpect compares a step result with its expect clause.
func checkExpect(step Step, sr *StepResult) []string {
	var msgs []string
	exp := step.Expect
	if exp == nil {
		exp = &ExpectClause{}
	}

	if sr.ErrorCode != exp.Error {
		switch {
		case exp.Error == "":
			msgs = append(msgs, fmt.Sprintf("unexpected compile error %s", sr.ErrorCode))
		default:
			msgs = append(msgs, fmt.Sprintf("expected compile error %s, got %q", exp.Error, sr.ErrorCode))
		}
	}
	if exp.Rows != nil && len(sr.Rows) != *exp.Rows {
		msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d", *exp.Rows, len(sr.Rows)))
	}
	if exp.Total != nil {
		switch {
		case sr.Total == nil:
			msgs = append(msgs, fmt.Sprintf("expected total %d, got no count", *exp.Total))
		case *sr.Total != *exp.Total:
			msgs = append(msgs, fmt.Sprintf("expected total %d, got %d", *exp.Total, *sr.Total))
		}
	}
	return msgs
}
