package querysql

import (
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

// JoinKind is the SQL join used for an edge.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeftOuter
)

func (k JoinKind) String() string {
	if k == JoinLeftOuter {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// NodeID identifies a node of a JoinGraph. The root is always RootNode.
type NodeID int

const RootNode NodeID = 0

// AliasAllocator hands out table aliases t0, t1, ... It is shared by a
// query and all of its correlated subqueries so aliases never collide.
type AliasAllocator struct {
	next int
}

// NewAliasAllocator returns an allocator starting at t0.
func NewAliasAllocator() *AliasAllocator {
	return &AliasAllocator{}
}

// Next returns a fresh alias.
func (a *AliasAllocator) Next() string {
	alias := "t" + strconv.Itoa(a.next)
	a.next++
	return alias
}

// Edge is one traversed relation or element collection.
type Edge struct {
	ID        NodeID
	Parent    NodeID
	Attribute *schema.Attribute
	Target    *schema.EntityType // nil for element collections
	Kind      JoinKind
	Fetch     bool
	Alias     string // alias of the target or collection table

	linkAliases []string
	links       []schema.Link
}

// presenceColumns are non-null exactly when the edge matched a row.
func (e *Edge) presenceColumns() []string {
	last := e.links[len(e.links)-1]
	return last.RightColumns
}

type edgeKey struct {
	parent NodeID
	attr   string
}

type graphNode struct {
	entity *schema.EntityType // nil below an element collection
	alias  string
	edge   *Edge
}

// JoinGraph is the per-compilation arena of joins.
//
// Traverse is idempotent per (node, attribute): a relation prefix shared by
// several filters or selections joins once. The graph is discarded after
// the query is built.
type JoinGraph struct {
	schema  *schema.Schema
	dialect Dialect
	aliases *AliasAllocator

	rootTable string
	nodes     []graphNode
	edges     map[edgeKey]*Edge
	order     []*Edge

	// prelude holds joins of a correlated subquery that connect its root
	// to the correlation table; they precede every edge.
	prelude []string
}

// NewJoinGraph returns a graph rooted at entity. The root takes the next
// alias from aliases.
func NewJoinGraph(s *schema.Schema, d Dialect, root *schema.EntityType, aliases *AliasAllocator) *JoinGraph {
	g := &JoinGraph{
		schema:    s,
		dialect:   d,
		aliases:   aliases,
		rootTable: root.Table,
		edges:     make(map[edgeKey]*Edge),
	}
	g.nodes = append(g.nodes, graphNode{entity: root, alias: aliases.Next()})
	return g
}

// Dialect returns the dialect the graph renders with.
func (g *JoinGraph) Dialect() Dialect {
	return g.dialect
}

// Schema returns the schema the graph resolves attributes against.
func (g *JoinGraph) Schema() *schema.Schema {
	return g.schema
}

// Aliases returns the allocator shared with subqueries.
func (g *JoinGraph) Aliases() *AliasAllocator {
	return g.aliases
}

// Alias returns the table alias of node n.
func (g *JoinGraph) Alias(n NodeID) string {
	return g.nodes[n].alias
}

// Entity returns the entity type at node n, or nil for an element
// collection node.
func (g *JoinGraph) Entity(n NodeID) *schema.EntityType {
	return g.nodes[n].entity
}

// Edge returns the edge that created node n, or nil for the root.
func (g *JoinGraph) Edge(n NodeID) *Edge {
	return g.nodes[n].edge
}

// Edges returns all edges in creation order. Parents precede children.
func (g *JoinGraph) Edges() []*Edge {
	return g.order
}

// FromClause returns the quoted root table with its alias.
func (g *JoinGraph) FromClause() string {
	return g.dialect.Table(g.rootTable, g.Alias(RootNode))
}

// Column qualifies a column of node n.
func (g *JoinGraph) Column(n NodeID, column string) string {
	return g.dialect.Column(g.Alias(n), column)
}

// IdentityColumns returns the qualified identity columns of node n.
func (g *JoinGraph) IdentityColumns(n NodeID) []string {
	e := g.Entity(n)
	if e == nil {
		return nil
	}
	return g.dialect.Columns(g.Alias(n), e.IdentityColumns())
}

// Traverse joins attr from node parent and returns its edge.
//
// Repeated requests for the same (parent, attr) return the same edge.
// The edge becomes Inner as soon as any request does not want an outer
// join, and Fetch is sticky.
func (g *JoinGraph) Traverse(parent NodeID, attr *schema.Attribute, wantsOuter, wantsFetch bool) (*Edge, error) {
	key := edgeKey{parent: parent, attr: attr.Name}
	if e, ok := g.edges[key]; ok {
		if !wantsOuter {
			e.Kind = JoinInner
		}
		e.Fetch = e.Fetch || wantsFetch
		return e, nil
	}

	var target *schema.EntityType
	switch attr.Kind {
	case schema.KindToOne, schema.KindToMany:
		t, ok := g.schema.Target(attr)
		if !ok {
			return nil, compileErr(queryir.ErrUnknownEntity, attr.Name, "unknown target type %q", attr.Target)
		}
		target = t
	case schema.KindElementCollection:
		if wantsFetch {
			return nil, fmt.Errorf("element collection %s cannot be fetch-joined", attr.Name)
		}
	default:
		return nil, compileErr(queryir.ErrUnknownRelation, attr.Name, "%s attribute cannot be joined", attr.Kind)
	}
	if wantsFetch && attr.Kind == schema.KindToMany {
		return nil, fmt.Errorf("to-many relation %s cannot be fetch-joined", attr.Name)
	}

	links := attr.Links()
	if len(links) == 0 {
		return nil, fmt.Errorf("attribute %s has no join mapping", attr.Name)
	}

	aliases := make([]string, len(links))
	for i := range links {
		aliases[i] = g.aliases.Next()
	}

	kind := JoinInner
	if wantsOuter {
		kind = JoinLeftOuter
	}
	e := &Edge{
		ID:          NodeID(len(g.nodes)),
		Parent:      parent,
		Attribute:   attr,
		Target:      target,
		Kind:        kind,
		Fetch:       wantsFetch,
		Alias:       aliases[len(aliases)-1],
		linkAliases: aliases,
		links:       links,
	}
	g.nodes = append(g.nodes, graphNode{entity: target, alias: e.Alias, edge: e})
	g.edges[key] = e
	g.order = append(g.order, e)
	return e, nil
}

// Presence returns a predicate that holds when edge e matched a row.
// Filters compiled over an outer edge are guarded with it.
func (g *JoinGraph) Presence(e *Edge) sq.Sqlizer {
	return nullCheck(g.PresenceColumns(e), false)
}

// PresenceColumns returns the qualified columns of e that are non-null
// exactly when the edge matched a row.
func (g *JoinGraph) PresenceColumns(e *Edge) []string {
	return g.dialect.Columns(e.Alias, e.presenceColumns())
}

// Apply adds the prelude and every edge's joins to b, in creation order.
func (g *JoinGraph) Apply(b sq.SelectBuilder) sq.SelectBuilder {
	for _, clause := range g.prelude {
		b = b.Join(clause)
	}
	for _, e := range g.order {
		left := g.Alias(e.Parent)
		for i, link := range e.links {
			alias := e.linkAliases[i]
			clause := g.dialect.Table(link.Table, alias) + " ON " + columnsEqual(
				g.dialect.Columns(left, link.LeftColumns),
				g.dialect.Columns(alias, link.RightColumns),
			)
			if e.Kind == JoinInner {
				b = b.Join(clause)
			} else {
				b = b.LeftJoin(clause)
			}
			left = alias
		}
	}
	return b
}

// Correlate starts a subquery graph for attr, rooted at the attribute's
// target (or collection) table and correlated to node parent of g.
//
// The returned predicate ties the subquery to the outer row. The subquery
// shares g's alias allocator.
func (g *JoinGraph) Correlate(parent NodeID, attr *schema.Attribute) (*JoinGraph, sq.Sqlizer, error) {
	links := attr.Links()
	if len(links) == 0 {
		return nil, nil, compileErr(queryir.ErrUnknownRelation, attr.Name, "%s attribute has no related rows", attr.Kind)
	}

	var target *schema.EntityType
	if attr.Kind.IsRelation() {
		t, ok := g.schema.Target(attr)
		if !ok {
			return nil, nil, compileErr(queryir.ErrUnknownEntity, attr.Name, "unknown target type %q", attr.Target)
		}
		target = t
	}

	aliases := make([]string, len(links))
	for i := range links {
		aliases[i] = g.aliases.Next()
	}
	last := len(links) - 1

	sub := &JoinGraph{
		schema:    g.schema,
		dialect:   g.dialect,
		aliases:   g.aliases,
		rootTable: links[last].Table,
		edges:     make(map[edgeKey]*Edge),
	}
	sub.nodes = append(sub.nodes, graphNode{entity: target, alias: aliases[last]})

	// Walk back from the root to the first link table.
	for i := last - 1; i >= 0; i-- {
		next := links[i+1]
		sub.prelude = append(sub.prelude, g.dialect.Table(links[i].Table, aliases[i])+" ON "+columnsEqual(
			g.dialect.Columns(aliases[i], next.LeftColumns),
			g.dialect.Columns(aliases[i+1], next.RightColumns),
		))
	}

	correlation := sq.Expr(columnsEqual(
		g.dialect.Columns(g.Alias(parent), links[0].LeftColumns),
		g.dialect.Columns(aliases[0], links[0].RightColumns),
	))
	return sub, correlation, nil
}
