package querysql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

// FilterCompiler compiles filter trees into predicates over a JoinGraph.
type FilterCompiler struct {
	schema *schema.Schema
	preds  PredicateBuilder
	// Root is the path prefix of error messages, "where" by default.
	Root string
}

// NewFilterCompiler returns a compiler for s rendering with d.
func NewFilterCompiler(s *schema.Schema, d Dialect) *FilterCompiler {
	return &FilterCompiler{schema: s, preds: NewPredicateBuilder(d), Root: "where"}
}

// scope is the traversal state of one filter node.
type scope struct {
	graph *JoinGraph
	node  NodeID
	// embedded is set while compiling inside an embedded attribute; fields
	// resolve against it and live on the node's table.
	embedded *schema.Embeddable
	// conjunctive holds while every ancestor is an AND from the root.
	// Only then may relation joins be inner.
	conjunctive bool
	path        string
}

func (s scope) at(elem string) scope {
	if s.path == "" {
		s.path = elem
	} else {
		s.path += "." + elem
	}
	return s
}

// Compile compiles f against the root of g. A nil filter compiles to nil;
// callers leave the WHERE clause empty.
func (c *FilterCompiler) Compile(g *JoinGraph, f queryir.Filter) (sq.Sqlizer, error) {
	return c.CompileAt(g, RootNode, f)
}

// CompileAt compiles f against node n of g in a conjunctive context.
func (c *FilterCompiler) CompileAt(g *JoinGraph, n NodeID, f queryir.Filter) (sq.Sqlizer, error) {
	if f == nil {
		return nil, nil
	}
	return c.compile(scope{graph: g, node: n, conjunctive: true, path: c.Root}, f)
}

func (c *FilterCompiler) compile(s scope, f queryir.Filter) (sq.Sqlizer, error) {
	switch n := f.(type) {
	case nil:
		return alwaysTrue, nil
	case queryir.Logical:
		return c.compileLogical(s, n)
	case *queryir.Logical:
		return c.compileLogical(s, *n)
	case queryir.Not:
		return c.compileNot(s, n)
	case *queryir.Not:
		return c.compileNot(s, *n)
	case queryir.Exists:
		return c.compileExists(s, n)
	case *queryir.Exists:
		return c.compileExists(s, *n)
	case queryir.FieldCriteria:
		return c.compileCriteria(s, n)
	case *queryir.FieldCriteria:
		return c.compileCriteria(s, *n)
	case queryir.Relation:
		return c.compileRelation(s, n)
	case *queryir.Relation:
		return c.compileRelation(s, *n)
	default:
		return nil, fmt.Errorf("unknown filter type %T", f)
	}
}

func (c *FilterCompiler) compileLogical(s scope, l queryir.Logical) (sq.Sqlizer, error) {
	if len(l.Children) == 0 {
		return alwaysFalse, nil
	}

	child := s.at(l.Op.String())
	if l.Op == queryir.OpOr {
		child.conjunctive = false
	}

	preds := make([]sq.Sqlizer, 0, len(l.Children))
	seen := make(map[string]bool)
	for _, f := range l.Children {
		if fc, ok := f.(queryir.FieldCriteria); ok {
			key := fc.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		p, err := c.compile(child, f)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return combine(l.Op == queryir.OpOr, preds), nil
}

func (c *FilterCompiler) compileNot(s scope, n queryir.Not) (sq.Sqlizer, error) {
	child := s.at(queryir.KeyNot)
	child.conjunctive = false
	p, err := c.compile(child, n.Inner)
	if err != nil {
		return nil, err
	}
	return notExpr{inner: p}, nil
}

// resolve looks up a field in the scope's embeddable or node entity.
func (c *FilterCompiler) resolve(s scope, field string) (*schema.Attribute, error) {
	if s.embedded != nil {
		if a, ok := s.embedded.Attribute(field); ok {
			return a, nil
		}
		return nil, compileErr(queryir.ErrUnknownField, s.path, "%s has no field %q", s.embedded.Name, field)
	}
	e := s.graph.Entity(s.node)
	if e == nil {
		return nil, compileErr(queryir.ErrMalformedPath, s.path, "element collection values have no fields")
	}
	if a, ok := e.Attribute(field); ok {
		return a, nil
	}
	return nil, compileErr(queryir.ErrUnknownField, s.path, "%s has no field %q", e.Name, field)
}

// splitPath normalizes "a.b.c" into ("a", "b.c").
func splitPath(path, field string) (string, string, error) {
	head, rest, dotted := strings.Cut(field, ".")
	if head == "" || (dotted && rest == "") {
		return "", "", compileErr(queryir.ErrMalformedPath, path, "malformed field path %q", field)
	}
	return head, rest, nil
}

func (c *FilterCompiler) compileCriteria(s scope, fc queryir.FieldCriteria) (sq.Sqlizer, error) {
	head, rest, err := splitPath(s.path, fc.Field)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return c.compileRelation(s, queryir.Relation{
			Field: head,
			Inner: queryir.FieldCriteria{Field: rest, Criteria: fc.Criteria, Value: fc.Value},
		})
	}

	attr, err := c.resolve(s, head)
	if err != nil {
		return nil, err
	}
	path := s.at(head).path

	switch attr.Kind {
	case schema.KindScalar:
		return c.preds.Build(path, s.graph.Column(s.node, attr.Column), attr, fc.Criteria, fc.Value)

	case schema.KindEmbedded:
		return nil, compileErr(queryir.ErrMalformedPath, path, "embedded %s needs a sub-field", head)

	case schema.KindElementCollection:
		if fc.Criteria.IsNullCheck() {
			return c.presence(s, attr, fc)
		}
		e, err := s.graph.Traverse(s.node, attr, !s.conjunctive, false)
		if err != nil {
			return nil, err
		}
		p, err := c.preds.Build(path, s.graph.Column(e.ID, attr.Column), attr, fc.Criteria, fc.Value)
		if err != nil {
			return nil, err
		}
		if e.Kind == JoinLeftOuter {
			return sq.And{s.graph.Presence(e), p}, nil
		}
		return p, nil

	default:
		if fc.Criteria.IsNullCheck() {
			return c.presence(s, attr, fc)
		}
		target, ok := c.schema.Target(attr)
		if !ok {
			return nil, compileErr(queryir.ErrUnknownEntity, path, "unknown target type %q", attr.Target)
		}
		if len(target.IdentityOf) != 1 {
			return nil, compileErr(queryir.ErrUnsupportedCriteria, path,
				"%s has no single identity; compare its fields instead", target.Name)
		}
		return c.compileRelation(s, queryir.Relation{
			Field: head,
			Inner: queryir.FieldCriteria{Field: target.IdentityOf[0], Criteria: fc.Criteria, Value: fc.Value},
		})
	}
}

// presence compiles IS_NULL/NOT_NULL on a relation or element collection.
// Owner-side to-ones test their foreign key columns; everything else tests
// for related rows with EXISTS.
func (c *FilterCompiler) presence(s scope, attr *schema.Attribute, fc queryir.FieldCriteria) (sq.Sqlizer, error) {
	path := s.at(attr.Name).path
	wantNull, err := nullCheckValue(path, fc.Criteria, fc.Value)
	if err != nil {
		return nil, err
	}
	if attr.OwnsForeignKey() {
		return nullCheck(s.graph.dialect.Columns(s.graph.Alias(s.node), attr.Columns), wantNull), nil
	}

	sub, correlation, err := s.graph.Correlate(s.node, attr)
	if err != nil {
		return nil, err
	}
	q := sub.Apply(sq.Select("1").From(sub.FromClause())).Where(correlation)
	return existsExpr{negate: wantNull, sub: q}, nil
}

func (c *FilterCompiler) compileRelation(s scope, r queryir.Relation) (sq.Sqlizer, error) {
	head, rest, err := splitPath(s.path, r.Field)
	if err != nil {
		return nil, err
	}
	inner := r.Inner
	if rest != "" {
		inner = queryir.Relation{Field: rest, Inner: r.Inner}
	}

	attr, err := c.resolve(s, head)
	if err != nil {
		return nil, err
	}
	child := s.at(head)

	switch attr.Kind {
	case schema.KindEmbedded:
		emb, ok := c.schema.Embeddable(attr.Target)
		if !ok {
			return nil, compileErr(queryir.ErrUnknownEntity, child.path, "unknown embeddable %q", attr.Target)
		}
		child.embedded = emb
		return c.compile(child, inner)

	case schema.KindToOne, schema.KindToMany:
		e, err := s.graph.Traverse(s.node, attr, !s.conjunctive, false)
		if err != nil {
			return nil, err
		}
		child.node = e.ID
		child.embedded = nil
		p, err := c.compile(child, inner)
		if err != nil {
			return nil, err
		}
		if e.Kind == JoinLeftOuter {
			return sq.And{s.graph.Presence(e), p}, nil
		}
		return p, nil

	default:
		return nil, compileErr(queryir.ErrUnknownRelation, child.path, "%s is a %s, not a relation", head, attr.Kind)
	}
}

func (c *FilterCompiler) compileExists(s scope, x queryir.Exists) (sq.Sqlizer, error) {
	head, rest, err := splitPath(s.path, x.Relation)
	if err != nil {
		return nil, err
	}
	inner := x.Inner
	if rest != "" {
		inner = queryir.Relation{Field: rest, Inner: x.Inner}
	}

	attr, err := c.resolve(s, head)
	if err != nil {
		return nil, err
	}
	child := s.at(x.Op.String()).at(head)

	switch attr.Kind {
	case schema.KindToOne, schema.KindToMany:
	case schema.KindElementCollection:
		if inner != nil {
			return nil, compileErr(queryir.ErrMalformedPath, child.path, "element collections only support presence tests")
		}
	default:
		return nil, compileErr(queryir.ErrUnknownRelation, child.path, "%s is a %s, not a relation", head, attr.Kind)
	}

	sub, correlation, err := s.graph.Correlate(s.node, attr)
	if err != nil {
		return nil, err
	}

	where := []sq.Sqlizer{correlation}
	if inner != nil {
		p, err := c.compile(scope{graph: sub, node: RootNode, conjunctive: true, path: child.path}, inner)
		if err != nil {
			return nil, err
		}
		where = append(where, p)
	}

	q := sub.Apply(sq.Select("1").From(sub.FromClause())).Where(sq.And(where))
	return existsExpr{negate: x.Op == queryir.OpNotExists, sub: q}, nil
}
