package querysql

import (
	"strings"

	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

// OrderColumn resolves an ordering path from node n to a qualified column.
//
// To-one segments are joined left outer so ordering never drops rows.
// Embedded segments stay on the current table. To-many segments and
// non-scalar leaves are rejected.
func (g *JoinGraph) OrderColumn(n NodeID, path string) (string, *schema.Attribute, error) {
	errPath := "orderBy." + path
	segments := strings.Split(path, ".")

	node := n
	var embedded *schema.Embeddable
	for i, seg := range segments {
		if seg == "" {
			return "", nil, compileErr(queryir.ErrMalformedPath, errPath, "malformed ordering path")
		}
		last := i == len(segments)-1

		var attr *schema.Attribute
		var ok bool
		if embedded != nil {
			attr, ok = embedded.Attribute(seg)
		} else {
			attr, ok = g.Entity(node).Attribute(seg)
		}
		if !ok {
			return "", nil, compileErr(queryir.ErrUnknownField, errPath, "unknown field %q", seg)
		}

		switch attr.Kind {
		case schema.KindScalar:
			if !last {
				return "", nil, compileErr(queryir.ErrMalformedPath, errPath, "%s is a scalar", seg)
			}
			return g.Column(node, attr.Column), attr, nil

		case schema.KindEmbedded:
			emb, ok := g.schema.Embeddable(attr.Target)
			if !ok {
				return "", nil, compileErr(queryir.ErrUnknownEntity, errPath, "unknown embeddable %q", attr.Target)
			}
			embedded = emb

		case schema.KindToOne:
			e, err := g.Traverse(node, attr, true, false)
			if err != nil {
				return "", nil, err
			}
			node, embedded = e.ID, nil

		default:
			return "", nil, compileErr(queryir.ErrUnsupportedOrdering, errPath, "cannot order through %s %s", attr.Kind, seg)
		}
	}
	return "", nil, compileErr(queryir.ErrUnsupportedOrdering, errPath, "ordering path must end at a scalar")
}

// OrderTerm renders "column ASC" or "column DESC". Unordered reads as ASC.
func OrderTerm(column string, dir queryir.Direction) string {
	if dir == queryir.Desc {
		return column + " DESC"
	}
	return column + " ASC"
}
