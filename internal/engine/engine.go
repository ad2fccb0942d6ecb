package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/schema"
)

// Querier runs read queries. It is satisfied by *sql.DB, *sql.Tx and
// *store.Store.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Default engine settings.
const (
	DefaultPageLimit = 25
	DefaultMaxLimit  = 1000
)

// TracerName is the instrumentation name of engine spans.
const TracerName = "github.com/roach88/qgraph/internal/engine"

// Settings are the tunables of an engine, typically loaded from the
// engine section of a project configuration. Zero values keep the
// defaults.
type Settings struct {
	Dialect      string `json:"dialect,omitempty"`
	DefaultLimit int    `json:"defaultLimit,omitempty"`
	MaxLimit     int    `json:"maxLimit,omitempty"`
	Distinct     *bool  `json:"distinct,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
	MaxQueries   int    `json:"maxQueries,omitempty"`
}

func (s Settings) distinct() bool {
	return s.Distinct == nil || *s.Distinct
}

// Engine compiles and runs requests against one schema and database.
//
// An Engine is safe for concurrent use: the schema is read-only and every
// request owns its join graphs, query budget and batch scheduler.
type Engine struct {
	schema   *schema.Schema
	db       Querier
	dialect  querysql.Dialect
	logger   *slog.Logger
	tracer   trace.Tracer
	ids      RequestIDGenerator
	settings Settings
}

// Option configures an Engine.
type Option func(*Engine) error

// WithDialect sets the SQL dialect. Default: SQLite.
func WithDialect(d querysql.Dialect) Option {
	return func(e *Engine) error {
		e.dialect = d
		e.settings.Dialect = d.Name
		return nil
	}
}

// WithLogger sets the logger. Compiled SQL is logged at debug level and
// data-shape warnings at warn level. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}

// WithRequestIDs sets the request id generator. Default: UUIDv7Generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) error {
		e.ids = g
		return nil
	}
}

// WithConcurrency sets how many batch groups of one tick may run at once.
//
// Default: 1. Concurrency above 1 needs a Querier backed by a connection
// pool; SQLite serializes queries regardless.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		e.settings.Concurrency = n
		return nil
	}
}

// WithDefaultLimit sets the limit of pages that omit one.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) error {
		e.settings.DefaultLimit = n
		return nil
	}
}

// WithMaxLimit sets the largest accepted page limit. Zero disables the check.
func WithMaxLimit(n int) Option {
	return func(e *Engine) error {
		e.settings.MaxLimit = n
		return nil
	}
}

// WithMaxQueries sets the per-request query budget.
//
// Default: 1000 queries (DefaultMaxQueries). Zero or less disables it.
func WithMaxQueries(n int) Option {
	return func(e *Engine) error {
		e.settings.MaxQueries = n
		return nil
	}
}

// WithSettings applies every non-zero field of s.
func WithSettings(s Settings) Option {
	return func(e *Engine) error {
		if s.Dialect != "" {
			d, err := querysql.DialectByName(s.Dialect)
			if err != nil {
				return err
			}
			e.dialect = d
			e.settings.Dialect = d.Name
		}
		if s.DefaultLimit != 0 {
			e.settings.DefaultLimit = s.DefaultLimit
		}
		if s.MaxLimit != 0 {
			e.settings.MaxLimit = s.MaxLimit
		}
		if s.Distinct != nil {
			e.settings.Distinct = s.Distinct
		}
		if s.Concurrency != 0 {
			e.settings.Concurrency = s.Concurrency
		}
		if s.MaxQueries != 0 {
			e.settings.MaxQueries = s.MaxQueries
		}
		return nil
	}
}

// New creates an Engine over s, querying db.
func New(s *schema.Schema, db Querier, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: nil schema")
	}
	e := &Engine{
		schema:  s,
		db:      db,
		dialect: querysql.SQLite,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer(TracerName),
		ids:     UUIDv7Generator{},
		settings: Settings{
			Dialect:      querysql.SQLite.Name,
			DefaultLimit: DefaultPageLimit,
			MaxLimit:     DefaultMaxLimit,
			Concurrency:  1,
			MaxQueries:   DefaultMaxQueries,
		},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	return e, nil
}

// Schema returns the engine's schema.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Dialect returns the engine's SQL dialect.
func (e *Engine) Dialect() querysql.Dialect {
	return e.dialect
}

// Settings returns the effective settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

func (e *Engine) planner() *planner {
	return &planner{schema: e.schema, dialect: e.dialect, settings: e.settings}
}

// Plan compiles req without touching the database. Every CompileError of
// the request is reported here.
func (e *Engine) Plan(req *queryir.Request) (*Plan, error) {
	return e.planner().plan(req)
}

// Result is the shaped outcome of a request.
type Result struct {
	RequestID string `json:"requestId"`
	Rows      []Row  `json:"rows"`

	// Total and Pages are set when the count was requested.
	Total *int64 `json:"total,omitempty"`
	Pages *int64 `json:"pages,omitempty"`

	FieldErrors []FieldError `json:"-"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}

// CompileAndRun compiles and executes req.
//
// Compile errors are returned before any query runs. Failed batch queries
// do not fail the request: the affected fields are null and listed in
// Result.FieldErrors.
func (e *Engine) CompileAndRun(ctx context.Context, req *queryir.Request) (*Result, error) {
	requestID := e.ids.Generate()
	ctx, span := e.tracer.Start(ctx, "qgraph.request", trace.WithAttributes(
		attribute.String("qgraph.request_id", requestID),
		attribute.String("qgraph.entity", requestEntity(req)),
	))
	defer span.End()

	plan, err := e.tracedPlan(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	res, err := e.run(ctx, requestID, plan)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return res, nil
}

// Run executes a compiled plan.
func (e *Engine) Run(ctx context.Context, plan *Plan) (*Result, error) {
	requestID := e.ids.Generate()
	ctx, span := e.tracer.Start(ctx, "qgraph.request", trace.WithAttributes(
		attribute.String("qgraph.request_id", requestID),
		attribute.String("qgraph.entity", plan.Root.Name),
	))
	defer span.End()

	res, err := e.run(ctx, requestID, plan)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, requestID string, plan *Plan) (*Result, error) {
	x := e.newExecution(requestID)
	res := &Result{
		RequestID: requestID,
		Rows:      []Row{},
		Warnings:  append([]Warning(nil), plan.Warnings...),
	}

	var keys [][]any
	if plan.Mode == ModeTwoPhase {
		rows, err := x.query(ctx, PhaseKey, "", *plan.key)
		if err != nil {
			return nil, err
		}
		keys = make([][]any, 0, len(rows))
		for _, vals := range rows {
			key := make([]any, plan.keyWidth)
			for i := range key {
				key[i] = normalize(plan.keyAttrs[i], vals[i])
			}
			keys = append(keys, key)
		}
	}

	var pending []pendingLoad
	if plan.Mode != ModeTwoPhase || len(keys) > 0 {
		rows, err := x.query(ctx, PhaseContent, "", plan.contentQuery(keys))
		if err != nil {
			return nil, err
		}
		for i, vals := range rows {
			res.Rows = append(res.Rows, plan.shape.build(vals, fmt.Sprintf("rows[%d]", i), &pending))
		}
	}

	if plan.count != nil {
		rows, err := x.query(ctx, PhaseCount, "", *plan.count)
		if err != nil {
			return nil, err
		}
		var total int64
		if len(rows) > 0 && len(rows[0]) > 0 {
			total, _ = normalize(countAttr, rows[0][0]).(int64)
		}
		res.Total = &total
		if plan.Paged {
			pages := (total + int64(plan.Limit) - 1) / int64(plan.Limit)
			res.Pages = &pages
		}
	}

	r := newResolver(x, e.settings.Concurrency)
	if err := r.resolve(ctx, pending); err != nil {
		return nil, err
	}
	res.FieldErrors = r.fieldErrors
	res.Warnings = append(res.Warnings, r.warnings...)

	for _, w := range res.Warnings {
		e.logger.Warn("data shape", "request_id", requestID, "code", w.Code, "message", w.Message)
	}
	for _, fe := range res.FieldErrors {
		e.logger.Warn("association failed", "request_id", requestID, "path", fe.Path, "error", fe.Err)
	}
	e.logger.Debug("request done",
		"request_id", requestID,
		"mode", plan.Mode,
		"rows", len(res.Rows),
		"queries", x.budget.Current(),
		"ticks", r.sched.Tick(),
	)
	return res, nil
}

var countAttr = &schema.Attribute{Name: "count", Kind: schema.KindScalar, Family: schema.FamilyInteger}

// ResolveAssociation batch loads one association of owner for the given
// parent identities, outside of a full request.
//
// The result maps KeyString(key) to []Row for to-many relations, Row (or
// nil) for to-one relations and []any for element collections. Nested
// associations in selection are resolved as in CompileAndRun.
func (e *Engine) ResolveAssociation(
	ctx context.Context,
	owner string,
	parentKeys [][]any,
	association string,
	childFilter queryir.Filter,
	selection []*queryir.Selection,
) (map[string]any, []FieldError, error) {
	ownerType, ok := e.schema.Entity(owner)
	if !ok {
		return nil, nil, queryir.NewCompileError(queryir.ErrUnknownEntity, "entity", "unknown entity type %q", owner)
	}
	path := "select." + association
	attr, ok := ownerType.Attribute(association)
	if !ok {
		return nil, nil, queryir.NewCompileError(queryir.ErrUnknownField, path, "%s has no field %q", owner, association)
	}
	switch attr.Kind {
	case schema.KindToOne, schema.KindToMany, schema.KindElementCollection:
	default:
		return nil, nil, queryir.NewCompileError(queryir.ErrUnknownRelation, path, "%s attribute cannot be batch loaded", attr.Kind)
	}
	if !ownerType.HasIdentity() {
		return nil, nil, queryir.NewCompileError(queryir.ErrIdentityRequired, path, "%s has no identity to batch %s by", owner, association)
	}

	sel := &queryir.Selection{Field: association, Children: selection, Where: childFilter}
	assoc, err := e.planner().association(ownerType, attr, sel, path)
	if err != nil {
		return nil, nil, err
	}

	requestID := e.ids.Generate()
	ctx, span := e.tracer.Start(ctx, "qgraph.request", trace.WithAttributes(
		attribute.String("qgraph.request_id", requestID),
		attribute.String("qgraph.entity", owner),
		attribute.String("qgraph.association", association),
	))
	defer span.End()

	idAttrs := ownerType.Identity()
	holders := make(map[string]Row, len(parentKeys))
	var pending []pendingLoad
	for _, raw := range parentKeys {
		key, err := normalizeKey(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parent key: %w", err)
		}
		if len(key) != len(idAttrs) {
			return nil, nil, fmt.Errorf("parent key %v: want %d values, got %d", raw, len(idAttrs), len(key))
		}
		for i := range key {
			key[i] = normalize(idAttrs[i], key[i])
			if key[i] == nil {
				key = nil
				break
			}
		}
		ks := KeyString(key)
		if _, ok := holders[ks]; ok {
			continue
		}
		holder := Row{}
		holders[ks] = holder
		pending = append(pending, pendingLoad{assoc: assoc, row: holder, key: key, path: ks})
	}

	r := newResolver(e.newExecution(requestID), e.settings.Concurrency)
	if err := r.resolve(ctx, pending); err != nil {
		recordError(span, err)
		return nil, nil, err
	}

	out := make(map[string]any, len(holders))
	for ks, holder := range holders {
		out[ks] = holder[association]
	}
	return out, r.fieldErrors, nil
}

func requestEntity(req *queryir.Request) string {
	if req == nil {
		return ""
	}
	return req.Entity
}
