package engine

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/schema"
)

// AssociationPlan is the compiled batch query of one deferred association.
//
// The query is rooted at the owner type and inner joined to the child, so
// it returns one row per (parent, child) pair. Parents are bound at run
// time with a (tuple) IN over the owner identity.
type AssociationPlan struct {
	Owner     *schema.EntityType
	Attribute *schema.Attribute
	Path      string // selection path, "select.books"
	Filter    queryir.Filter
	Order     queryir.Direction

	// Group identifies the batch: loads with equal Group share one query
	// per tick.
	Group string

	// Child shapes the loaded rows; nil for element collections.
	Child *Shape

	dialect        querysql.Dialect
	query          sq.SelectBuilder
	parentIdentity []string
	parentAttrs    []*schema.Attribute
	parentCols     []int
	valueCol       int
}

// queryFor binds the parent keys.
func (a *AssociationPlan) queryFor(keys [][]any) sq.SelectBuilder {
	return a.query.Where(querysql.TupleIn{Columns: a.parentIdentity, Tuples: keys})
}

// isCollection reports whether the association loads element values.
func (a *AssociationPlan) isCollection() bool {
	return a.Attribute.Kind == schema.KindElementCollection
}

// loaded is one child of a batch. Collections load bare values.
type loaded struct {
	value   any
	pending []pendingLoad // deferred loads of the child, paths relative to it
}

// Batch is the result of one batch query, grouped by parent key.
type Batch struct {
	groups map[string][]loaded
}

// Values returns the children loaded for a parent key, in query order.
// Unknown keys and parents without children return an empty slice.
func (b *Batch) Values(key []any) []any {
	entries := b.groups[KeyString(key)]
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func (b *Batch) entries(key []any) []loaded {
	return b.groups[KeyString(key)]
}

// BatchLoader issues batch queries for one request.
type BatchLoader struct {
	exec *execution
}

// Load runs the batch query of a for the given parent keys.
//
// Every requested key is present in the result. Children of one parent are
// deduplicated by child identity and keep the query's ordering.
func (l *BatchLoader) Load(ctx context.Context, a *AssociationPlan, keys [][]any) (*Batch, error) {
	batch := &Batch{groups: make(map[string][]loaded, len(keys))}

	unique := make([][]any, 0, len(keys))
	for _, k := range keys {
		ks := KeyString(k)
		if _, ok := batch.groups[ks]; ok {
			continue
		}
		batch.groups[ks] = []loaded{}
		unique = append(unique, k)
	}
	if len(unique) == 0 {
		return batch, nil
	}

	rows, err := l.exec.query(ctx, PhaseBatch, a.Path, a.queryFor(unique))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]map[string]bool)
	for _, vals := range rows {
		parent := make([]any, len(a.parentCols))
		for i, col := range a.parentCols {
			parent[i] = normalize(a.parentAttrs[i], vals[col])
		}
		ks := KeyString(parent)

		if a.isCollection() {
			batch.groups[ks] = append(batch.groups[ks], loaded{value: normalize(a.Attribute, vals[a.valueCol])})
			continue
		}

		if child := a.Child.key(vals); child != nil {
			if seen[ks] == nil {
				seen[ks] = make(map[string]bool)
			}
			cs := KeyString(child)
			if seen[ks][cs] {
				continue
			}
			seen[ks][cs] = true
		}

		var pending []pendingLoad
		row := a.Child.build(vals, "", &pending)
		batch.groups[ks] = append(batch.groups[ks], loaded{value: row, pending: pending})
	}
	return batch, nil
}
