package engine

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/qgraph/internal/queryir"
)

// execution is the per-request state shared by every query of a request.
type execution struct {
	engine    *Engine
	requestID string
	budget    *QueryBudget
}

func (e *Engine) newExecution(requestID string) *execution {
	return &execution{
		engine:    e,
		requestID: requestID,
		budget:    NewQueryBudget(e.settings.MaxQueries),
	}
}

func (e *Engine) tracedPlan(ctx context.Context, req *queryir.Request) (*Plan, error) {
	_, span := e.tracer.Start(ctx, "qgraph.plan")
	defer span.End()

	plan, err := e.Plan(req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("qgraph.mode", string(plan.Mode)),
		attribute.Int("qgraph.associations", len(plan.Associations())),
	)
	return plan, nil
}

// query renders b, runs it in its own span and reads every row.
// Driver errors are wrapped in *ExecutionError.
func (x *execution) query(ctx context.Context, phase Phase, path string, b sq.SelectBuilder) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := x.budget.Check(x.requestID); err != nil {
		return nil, err
	}

	e := x.engine
	stmt, args, err := e.dialect.Finish(b)
	if err != nil {
		return nil, fmt.Errorf("render %s query: %w", phase, err)
	}

	ctx, span := e.tracer.Start(ctx, "qgraph."+string(phase),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", e.dialect.Name),
			attribute.String("db.statement", stmt),
			attribute.String("qgraph.request_id", x.requestID),
		),
	)
	defer span.End()
	if path != "" {
		span.SetAttributes(attribute.String("qgraph.path", path))
	}

	e.logger.Debug("query",
		"request_id", x.requestID,
		"phase", phase,
		"path", path,
		"sql", stmt,
		"args", len(args),
	)

	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = &ExecutionError{Phase: phase, Err: err}
		recordError(span, err)
		return nil, err
	}
	defer rows.Close()

	out, err := readRows(rows)
	if err != nil {
		err = &ExecutionError{Phase: phase, Err: err}
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("qgraph.rows", len(out)))
	return out, nil
}

// readRows copies every row of the cursor into detached values.
func readRows(rows *sql.Rows) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
