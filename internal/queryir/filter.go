package queryir

import (
	"fmt"

	"github.com/roach88/qgraph/internal/ir"
)

// Filter is a node of the filter-expression tree.
//
// This is a sealed interface: Logical, Not, Exists, FieldCriteria and
// Relation are the only implementations.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// LogicalOp combines child filters.
type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
)

func (op LogicalOp) String() string {
	if op == OpOr {
		return "OR"
	}
	return "AND"
}

// Logical combines children with AND or OR.
//
// An empty child list matches nothing, for both operators. An explicitly
// empty filter object therefore never widens a result.
type Logical struct {
	Op       LogicalOp
	Children []Filter
}

func (Logical) filterNode() {}

// Not negates its inner filter.
// Relations traversed below a Not are joined outer.
type Not struct {
	Inner Filter
}

func (Not) filterNode() {}

// ExistsOp selects EXISTS or NOT EXISTS.
type ExistsOp int

const (
	OpExists ExistsOp = iota
	OpNotExists
)

func (op ExistsOp) String() string {
	if op == OpNotExists {
		return "NOT_EXISTS"
	}
	return "EXISTS"
}

// Exists tests for related rows with a correlated subquery.
//
// Relation may be a dotted path of relation attributes. Inner is compiled
// inside the subquery against the relation's target type; nil tests
// presence only.
type Exists struct {
	Op       ExistsOp
	Relation string
	Inner    Filter
}

func (Exists) filterNode() {}

// FieldCriteria compares one field with a value.
//
// Field may be dotted ("author.name"); the compiler normalizes dotted names
// into nested Relations. When Field names a relation, the criteria apply to
// the target's identity, except IS_NULL and NOT_NULL which test presence.
type FieldCriteria struct {
	Field    string
	Criteria Criteria
	Value    ir.Value
}

func (FieldCriteria) filterNode() {}

// Key identifies the (field, criteria, value) triple. Equal keys compile
// to the same predicate.
func (fc FieldCriteria) Key() string {
	val, err := ir.MarshalCanonical(fc.Value)
	if err != nil {
		val = []byte(fmt.Sprintf("%v", fc.Value))
	}
	return fc.Field + "\x00" + fc.Criteria.String() + "\x00" + string(val)
}

// Relation compiles Inner against the target type of relation Field.
type Relation struct {
	Field string
	Inner Filter
}

func (Relation) filterNode() {}

// And returns a Logical AND of children.
func And(children ...Filter) Logical {
	return Logical{Op: OpAnd, Children: children}
}

// Or returns a Logical OR of children.
func Or(children ...Filter) Logical {
	return Logical{Op: OpOr, Children: children}
}

// Where returns a FieldCriteria. v is converted with ir.FromAny and
// panics on unsupported values; it is meant for literals in code and tests.
func Where(field string, c Criteria, v any) FieldCriteria {
	val, err := ir.FromAny(v)
	if err != nil {
		panic(err)
	}
	return FieldCriteria{Field: field, Criteria: c, Value: val}
}
