package queryir

import (
	"fmt"

	"github.com/roach88/qgraph/internal/ir"
)

// FilterObject returns the canonical object form of f, used for
// fingerprints and explain output. A nil filter encodes as null.
func FilterObject(f Filter) ir.Value {
	switch n := f.(type) {
	case nil:
		return ir.Null{}
	case Logical:
		children := make(ir.Array, len(n.Children))
		for i, c := range n.Children {
			children[i] = FilterObject(c)
		}
		return ir.Object{n.Op.String(): children}
	case *Logical:
		return FilterObject(*n)
	case Not:
		return ir.Object{KeyNot: FilterObject(n.Inner)}
	case *Not:
		return FilterObject(*n)
	case Exists:
		return ir.Object{n.Op.String(): ir.Object{
			"relation": ir.String(n.Relation),
			"where":    FilterObject(n.Inner),
		}}
	case *Exists:
		return FilterObject(*n)
	case FieldCriteria:
		val := n.Value
		if val == nil {
			val = ir.Null{}
		}
		return ir.Object{
			"field":    ir.String(n.Field),
			"criteria": ir.String(n.Criteria.String()),
			"value":    val,
		}
	case *FieldCriteria:
		return FilterObject(*n)
	case Relation:
		return ir.Object{
			"relation": ir.String(n.Field),
			"where":    FilterObject(n.Inner),
		}
	case *Relation:
		return FilterObject(*n)
	default:
		return ir.String(fmt.Sprintf("%T", f))
	}
}

// FilterFingerprint hashes the canonical form of f. Structurally equal
// filters have equal fingerprints.
func FilterFingerprint(f Filter) (string, error) {
	return ir.Fingerprint(ir.DomainFilter, FilterObject(f))
}

// SelectionObject returns the canonical form of a selection list,
// including nested filters, ordering and optionality.
func SelectionObject(sels []*Selection) ir.Value {
	out := make(ir.Array, len(sels))
	for i, s := range sels {
		obj := ir.Object{"field": ir.String(s.Field)}
		if len(s.Children) > 0 {
			obj["select"] = SelectionObject(s.Children)
		}
		if s.Order != Unordered {
			obj["orderBy"] = ir.String(s.Order.String())
		}
		if s.Where != nil {
			obj["where"] = FilterObject(s.Where)
		}
		if s.Optional != nil {
			obj["optional"] = ir.Bool(*s.Optional)
		}
		out[i] = obj
	}
	return out
}
