package engine

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qgraph/internal/ir"
	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/schema"
)

// Mode is the execution strategy chosen for a request.
type Mode string

const (
	// ModeTwoPhase pages distinct root identities first, then loads the
	// content of exactly those rows.
	ModeTwoPhase Mode = "two-phase"

	// ModeSemiJoin restricts the content query with
	// identity IN (SELECT DISTINCT identity ...).
	ModeSemiJoin Mode = "semi-join"

	// ModeSingle runs one query carrying filter and fetch joins together.
	ModeSingle Mode = "single"
)

// Plan is a compiled request. Plans are immutable and may be executed
// more than once.
type Plan struct {
	Request  *queryir.Request
	Root     *schema.EntityType
	Mode     Mode
	Paged    bool
	Limit    int
	Offset   int
	Warnings []Warning

	dialect         querysql.Dialect
	shape           *Shape
	key             *sq.SelectBuilder
	keyWidth        int
	keyAttrs        []*schema.Attribute
	content         sq.SelectBuilder
	contentIdentity []string
	count           *sq.SelectBuilder
}

// Statement is one rendered query of a plan.
type Statement struct {
	Phase Phase  `json:"phase"`
	Path  string `json:"path,omitempty"`
	SQL   string `json:"sql"`
	Args  []any  `json:"args"`
}

// Associations returns every deferred association of the plan,
// parents before children.
func (p *Plan) Associations() []*AssociationPlan {
	var out []*AssociationPlan
	var walk func(s *Shape)
	walk = func(s *Shape) {
		for _, sl := range s.slots {
			switch sl.kind {
			case slotEmbedded, slotObject:
				walk(sl.shape)
			case slotDeferred:
				out = append(out, sl.assoc)
				if sl.assoc.Child != nil {
					walk(sl.assoc.Child)
				}
			}
		}
	}
	walk(p.shape)
	return out
}

// Statements renders every query of the plan for inspection. Queries that
// take runtime keys are rendered with a single placeholder key.
func (p *Plan) Statements() ([]Statement, error) {
	var out []Statement
	add := func(phase Phase, path string, b sq.SelectBuilder) error {
		sql, args, err := p.dialect.Finish(b)
		if err != nil {
			return fmt.Errorf("render %s query: %w", phase, err)
		}
		out = append(out, Statement{Phase: phase, Path: path, SQL: sql, Args: args})
		return nil
	}

	if p.key != nil {
		if err := add(PhaseKey, "", *p.key); err != nil {
			return nil, err
		}
	}
	if err := add(PhaseContent, "", p.contentQuery(placeholderKeys(len(p.contentIdentity)))); err != nil {
		return nil, err
	}
	if p.count != nil {
		if err := add(PhaseCount, "", *p.count); err != nil {
			return nil, err
		}
	}
	for _, a := range p.Associations() {
		if err := add(PhaseBatch, a.Path, a.queryFor(placeholderKeys(len(a.parentIdentity)))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// contentQuery returns the content query, restricted to keys in two-phase
// mode.
func (p *Plan) contentQuery(keys [][]any) sq.SelectBuilder {
	if p.Mode != ModeTwoPhase {
		return p.content
	}
	return p.content.Where(querysql.TupleIn{Columns: p.contentIdentity, Tuples: keys})
}

func placeholderKeys(width int) [][]any {
	if width == 0 {
		return nil
	}
	return [][]any{make([]any, width)}
}

// planner compiles requests against one schema and dialect.
type planner struct {
	schema   *schema.Schema
	dialect  querysql.Dialect
	settings Settings
}

func (p *planner) filters(root string) *querysql.FilterCompiler {
	fc := querysql.NewFilterCompiler(p.schema, p.dialect)
	if root != "" {
		fc.Root = root
	}
	return fc
}

func (p *planner) plan(req *queryir.Request) (*Plan, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	root, ok := p.schema.Entity(req.Entity)
	if !ok {
		return nil, queryir.NewCompileError(queryir.ErrUnknownEntity, "entity", "unknown entity type %q", req.Entity)
	}

	plan := &Plan{Request: req, Root: root, dialect: p.dialect}
	if err := p.page(req, plan); err != nil {
		return nil, err
	}
	if !root.HasIdentity() {
		plan.Warnings = append(plan.Warnings, Warning{
			Code:    WarnMissingIdentity,
			Message: fmt.Sprintf("%s declares no identity; default ordering and deduplication are disabled", root.Name),
		})
	}
	for _, w := range queryir.Validate(req).Warnings {
		plan.Warnings = append(plan.Warnings, Warning{Code: WarnSuspiciousRequest, Message: w})
	}

	sels := req.Select
	if len(sels) == 0 {
		sels = defaultSelection(root)
	}

	content := querysql.NewJoinGraph(p.schema, p.dialect, root, querysql.NewAliasAllocator())
	b := &shapeBuilder{planner: p, graph: content, proj: &projection{}}
	shape, err := b.shape(querysql.RootNode, root, sels, "select", "")
	if err != nil {
		return nil, err
	}
	plan.shape = shape

	where := withRestrictions(req.Where, b.restrict)
	orders := append(append([]queryir.OrderBy{}, req.OrderBy...), b.orders...)

	distinct := p.settings.distinct()
	if req.Distinct != nil {
		distinct = *req.Distinct
	}
	switch {
	case !distinct || !root.HasIdentity():
		plan.Mode = ModeSingle
	case plan.Paged:
		plan.Mode = ModeTwoPhase
	default:
		plan.Mode = ModeSemiJoin
	}

	switch plan.Mode {
	case ModeSingle:
		err = p.single(plan, content, b.proj, where, orders)
	case ModeTwoPhase:
		err = p.twoPhase(plan, content, b.proj, where, orders)
	default:
		err = p.semiJoin(plan, content, b.proj, where, orders)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// page validates the page window against the engine limits.
func (p *planner) page(req *queryir.Request, plan *Plan) error {
	if req.Page == nil {
		return nil
	}
	start := req.Page.Start
	if start == 0 {
		start = 1
	}
	if start < 1 {
		return queryir.NewCompileError(queryir.ErrInvalidPage, "page.start", "start must be at least 1, got %d", start)
	}

	limit := req.Page.Limit
	if limit == 0 {
		limit = p.settings.DefaultLimit
	}
	switch {
	case limit == 0:
		return queryir.NewCompileError(queryir.ErrInvalidPage, "page.limit", "limit is required")
	case limit < 0:
		return queryir.NewCompileError(queryir.ErrInvalidPage, "page.limit", "limit must be positive, got %d", limit)
	case p.settings.MaxLimit > 0 && limit > p.settings.MaxLimit:
		return queryir.NewCompileError(queryir.ErrInvalidPage, "page.limit", "limit %d exceeds the maximum of %d", limit, p.settings.MaxLimit)
	}

	plan.Paged = true
	plan.Limit = limit
	plan.Offset = (start - 1) * limit
	return nil
}

func (p *planner) single(plan *Plan, g *querysql.JoinGraph, proj *projection, where queryir.Filter, orders []queryir.OrderBy) error {
	pred, err := p.filters("").Compile(g, where)
	if err != nil {
		return err
	}
	terms, _, err := orderTerms(g, querysql.RootNode, orders, queryir.Asc)
	if err != nil {
		return err
	}

	q := g.Apply(sq.Select(proj.columns()...).From(g.FromClause()))
	if pred != nil {
		q = q.Where(pred)
	}
	q = q.OrderBy(terms...)
	if plan.Paged {
		q = q.Limit(uint64(plan.Limit)).Offset(uint64(plan.Offset))
	}
	plan.content = q

	if plan.Request.WantsCount() {
		c := g.Apply(sq.Select("COUNT(*)").From(g.FromClause()))
		if pred != nil {
			c = c.Where(pred)
		}
		plan.count = &c
	}
	return nil
}

func (p *planner) twoPhase(plan *Plan, content *querysql.JoinGraph, proj *projection, where queryir.Filter, orders []queryir.OrderBy) error {
	kg := querysql.NewJoinGraph(p.schema, p.dialect, plan.Root, querysql.NewAliasAllocator())
	pred, err := p.filters("").Compile(kg, where)
	if err != nil {
		return err
	}
	keyTerms, extras, err := orderTerms(kg, querysql.RootNode, orders, queryir.Asc)
	if err != nil {
		return err
	}

	ids := kg.IdentityColumns(querysql.RootNode)
	cols := append([]string{}, ids...)
	for i, expr := range extras {
		cols = append(cols, fmt.Sprintf("%s AS o%d", expr, i))
	}

	base := kg.Apply(sq.Select().From(kg.FromClause()))
	if pred != nil {
		base = base.Where(pred)
	}
	key := base.Columns(cols...).Distinct().
		OrderBy(keyTerms...).
		Limit(uint64(plan.Limit)).
		Offset(uint64(plan.Offset))
	plan.key = &key
	plan.keyWidth = len(ids)
	plan.keyAttrs = plan.Root.Identity()

	if plan.Request.WantsCount() {
		c := sq.Select("COUNT(*)").FromSelect(base.Columns(ids...).Distinct(), "k")
		plan.count = &c
	}

	terms, _, err := orderTerms(content, querysql.RootNode, orders, queryir.Asc)
	if err != nil {
		return err
	}
	plan.content = content.Apply(sq.Select(proj.columns()...).From(content.FromClause())).OrderBy(terms...)
	plan.contentIdentity = content.IdentityColumns(querysql.RootNode)
	return nil
}

func (p *planner) semiJoin(plan *Plan, content *querysql.JoinGraph, proj *projection, where queryir.Filter, orders []queryir.OrderBy) error {
	terms, _, err := orderTerms(content, querysql.RootNode, orders, queryir.Asc)
	if err != nil {
		return err
	}
	q := content.Apply(sq.Select(proj.columns()...).From(content.FromClause()))

	if where != nil || plan.Request.WantsCount() {
		kg := querysql.NewJoinGraph(p.schema, p.dialect, plan.Root, content.Aliases())
		pred, err := p.filters("").Compile(kg, where)
		if err != nil {
			return err
		}
		sub := kg.Apply(sq.Select(kg.IdentityColumns(querysql.RootNode)...).Distinct().From(kg.FromClause()))
		if pred != nil {
			sub = sub.Where(pred)
		}
		if where != nil {
			q = q.Where(querysql.InSubquery{Columns: content.IdentityColumns(querysql.RootNode), Sub: sub})
		}
		if plan.Request.WantsCount() {
			c := sq.Select("COUNT(*)").FromSelect(sub, "k")
			plan.count = &c
		}
	}
	plan.content = q.OrderBy(terms...)
	return nil
}

// orderTerms resolves orders from node n and appends the identity of n
// as a tie-break in direction tie. extras are the resolved non-identity
// order expressions, in order.
func orderTerms(g *querysql.JoinGraph, n querysql.NodeID, orders []queryir.OrderBy, tie queryir.Direction) (terms, extras []string, err error) {
	ids := g.IdentityColumns(n)
	isID := make(map[string]bool, len(ids))
	for _, id := range ids {
		isID[id] = true
	}

	seen := make(map[string]bool)
	for _, o := range orders {
		col, _, err := g.OrderColumn(n, o.Path)
		if err != nil {
			return nil, nil, err
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		terms = append(terms, querysql.OrderTerm(col, o.Dir))
		if !isID[col] {
			extras = append(extras, col)
		}
	}
	for _, id := range ids {
		if !seen[id] {
			terms = append(terms, querysql.OrderTerm(id, tie))
		}
	}
	return terms, extras, nil
}

// withRestrictions ANDs extra restrictions onto f.
func withRestrictions(f queryir.Filter, extra []queryir.Filter) queryir.Filter {
	if len(extra) == 0 {
		return f
	}
	children := make([]queryir.Filter, 0, len(extra)+1)
	if f != nil {
		children = append(children, f)
	}
	children = append(children, extra...)
	if len(children) == 1 {
		return children[0]
	}
	return queryir.And(children...)
}

// defaultSelection selects every scalar and embedded attribute of e.
func defaultSelection(e *schema.EntityType) []*queryir.Selection {
	var out []*queryir.Selection
	for _, a := range e.Attributes {
		if a.Kind == schema.KindScalar || a.Kind == schema.KindEmbedded {
			out = append(out, queryir.Field(a.Name))
		}
	}
	return out
}

func childSelections(sel *queryir.Selection, target *schema.EntityType) []*queryir.Selection {
	if sel.IsLeaf() {
		return defaultSelection(target)
	}
	return sel.Children
}

// shapeBuilder walks one selection level set into a projection.
type shapeBuilder struct {
	planner  *planner
	graph    *querysql.JoinGraph
	proj     *projection
	restrict []queryir.Filter
	orders   []queryir.OrderBy
}

// shape builds the Shape of entity at node, adding fetch joins to the
// builder's graph. path is the selection path for errors, prefix the
// relation path of node from the query root.
func (b *shapeBuilder) shape(node querysql.NodeID, entity *schema.EntityType, sels []*queryir.Selection, path, prefix string) (*Shape, error) {
	s := &Shape{Entity: entity}
	for _, id := range entity.Identity() {
		s.identity = append(s.identity, b.proj.add(b.graph.Column(node, id.Column)))
		s.idAttrs = append(s.idAttrs, id)
	}

	for _, sel := range sels {
		if sel == nil {
			continue
		}
		selPath := path + "." + sel.Field
		attr, ok := entity.Attribute(sel.Field)
		if !ok {
			return nil, queryir.NewCompileError(queryir.ErrUnknownField, selPath, "%s has no field %q", entity.Name, sel.Field)
		}

		switch attr.Kind {
		case schema.KindScalar:
			if !sel.IsLeaf() {
				return nil, queryir.NewCompileError(queryir.ErrMalformedPath, selPath, "scalar %s has no fields", sel.Field)
			}
			if sel.Where != nil {
				return nil, queryir.NewCompileError(queryir.ErrMalformedFilter, selPath, "filters apply to relations only")
			}
			col, ok := s.identityColumn(attr)
			if !ok {
				col = b.proj.add(b.graph.Column(node, attr.Column))
			}
			s.slots = append(s.slots, slot{name: sel.Field, kind: slotScalar, attr: attr, col: col})
			if sel.Order != queryir.Unordered {
				b.orders = append(b.orders, queryir.OrderBy{Path: prefix + sel.Field, Dir: sel.Order})
			}

		case schema.KindEmbedded:
			emb, ok := b.planner.schema.Embeddable(attr.Target)
			if !ok {
				return nil, queryir.NewCompileError(queryir.ErrUnknownField, selPath, "unknown embeddable %q", attr.Target)
			}
			sub, err := b.embedded(node, emb, sel, selPath, prefix+sel.Field+".")
			if err != nil {
				return nil, err
			}
			s.slots = append(s.slots, slot{name: sel.Field, kind: slotEmbedded, attr: attr, shape: sub})

		case schema.KindToOne:
			if sel.Where == nil && sel.Order == queryir.Unordered {
				outer := attr.Optional
				if sel.Optional != nil {
					outer = *sel.Optional
					if !outer {
						// The key query has no fetch joins; restrict it too.
						b.restrict = append(b.restrict, queryir.Exists{Op: queryir.OpExists, Relation: prefix + sel.Field})
					}
				}
				e, err := b.graph.Traverse(node, attr, outer, true)
				if err != nil {
					return nil, err
				}
				sub, err := b.shape(e.ID, e.Target, childSelections(sel, e.Target), selPath, prefix+sel.Field+".")
				if err != nil {
					return nil, err
				}
				for _, col := range b.graph.PresenceColumns(e) {
					sub.presence = append(sub.presence, b.proj.add(col))
				}
				s.slots = append(s.slots, slot{name: sel.Field, kind: slotObject, attr: attr, shape: sub})
				continue
			}
			fallthrough

		case schema.KindToMany, schema.KindElementCollection:
			if !entity.HasIdentity() {
				return nil, queryir.NewCompileError(queryir.ErrIdentityRequired, selPath, "%s has no identity to batch %s by", entity.Name, sel.Field)
			}
			assoc, err := b.planner.association(entity, attr, sel, selPath)
			if err != nil {
				return nil, err
			}
			if sel.Optional != nil && !*sel.Optional {
				b.restrict = append(b.restrict, queryir.Exists{
					Op:       queryir.OpExists,
					Relation: prefix + sel.Field,
					Inner:    sel.Where,
				})
			}
			s.slots = append(s.slots, slot{name: sel.Field, kind: slotDeferred, attr: attr, assoc: assoc})
		}
	}
	return s, nil
}

func (b *shapeBuilder) embedded(node querysql.NodeID, emb *schema.Embeddable, sel *queryir.Selection, path, prefix string) (*Shape, error) {
	children := sel.Children
	if sel.IsLeaf() {
		for _, a := range emb.Attributes {
			children = append(children, queryir.Field(a.Name))
		}
	}

	s := &Shape{}
	for _, c := range children {
		cPath := path + "." + c.Field
		attr, ok := emb.Attribute(c.Field)
		if !ok {
			return nil, queryir.NewCompileError(queryir.ErrUnknownField, cPath, "%s has no field %q", emb.Name, c.Field)
		}
		if !c.IsLeaf() {
			return nil, queryir.NewCompileError(queryir.ErrMalformedPath, cPath, "scalar %s has no fields", c.Field)
		}
		s.slots = append(s.slots, slot{
			name: c.Field,
			kind: slotScalar,
			attr: attr,
			col:  b.proj.add(b.graph.Column(node, attr.Column)),
		})
		if c.Order != queryir.Unordered {
			b.orders = append(b.orders, queryir.OrderBy{Path: prefix + c.Field, Dir: c.Order})
		}
	}
	return s, nil
}

// association compiles the batch query of a deferred relation or element
// collection of owner.
func (p *planner) association(owner *schema.EntityType, attr *schema.Attribute, sel *queryir.Selection, path string) (*AssociationPlan, error) {
	g := querysql.NewJoinGraph(p.schema, p.dialect, owner, querysql.NewAliasAllocator())
	e, err := g.Traverse(querysql.RootNode, attr, false, false)
	if err != nil {
		return nil, err
	}

	proj := &projection{}
	a := &AssociationPlan{
		Owner:          owner,
		Attribute:      attr,
		Path:           path,
		Filter:         sel.Where,
		Order:          sel.Order,
		dialect:        p.dialect,
		parentIdentity: g.IdentityColumns(querysql.RootNode),
		parentAttrs:    owner.Identity(),
	}
	var terms []string
	for _, col := range a.parentIdentity {
		a.parentCols = append(a.parentCols, proj.add(col))
		terms = append(terms, querysql.OrderTerm(col, queryir.Asc))
	}

	var pred sq.Sqlizer
	if attr.Kind == schema.KindElementCollection {
		if !sel.IsLeaf() {
			return nil, queryir.NewCompileError(queryir.ErrMalformedPath, path, "element collection values have no fields")
		}
		if sel.Where != nil {
			return nil, queryir.NewCompileError(queryir.ErrMalformedFilter, path, "element collections take no filter")
		}
		value := g.Column(e.ID, attr.Column)
		a.valueCol = proj.add(value)
		terms = append(terms, querysql.OrderTerm(value, sel.Order))
	} else {
		b := &shapeBuilder{planner: p, graph: g, proj: proj}
		child, err := b.shape(e.ID, e.Target, childSelections(sel, e.Target), path, "")
		if err != nil {
			return nil, err
		}
		a.Child = child

		pred, err = p.filters(path+".where").CompileAt(g, e.ID, withRestrictions(sel.Where, b.restrict))
		if err != nil {
			return nil, err
		}

		tie := sel.Order
		if tie == queryir.Unordered {
			tie = queryir.Asc
		}
		childTerms, _, err := orderTerms(g, e.ID, b.orders, tie)
		if err != nil {
			return nil, err
		}
		terms = append(terms, childTerms...)
	}

	q := g.Apply(sq.Select(proj.columns()...).From(g.FromClause()))
	if pred != nil {
		q = q.Where(pred)
	}
	a.query = q.OrderBy(terms...)

	a.Group, err = ir.Fingerprint(ir.DomainBatch, ir.Object{
		"owner":     ir.String(owner.Name),
		"attribute": ir.String(attr.Name),
		"where":     queryir.FilterObject(sel.Where),
		"select":    queryir.SelectionObject(sel.Children),
		"orderBy":   ir.String(sel.Order.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return a, nil
}
