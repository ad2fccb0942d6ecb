package queryir

import "strings"

// Direction is an ordering direction.
type Direction int

const (
	Unordered Direction = iota
	Asc
	Desc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return ""
	}
}

// ParseDirection accepts "ASC" and "DESC" in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(s) {
	case "ASC":
		return Asc, true
	case "DESC":
		return Desc, true
	default:
		return Unordered, false
	}
}

// Selection is one node of the selection tree.
//
// A leaf selects a scalar, embedded scalar or element collection. A node
// with Children selects a relation (or all scalars of an embedded
// attribute). Order on a scalar leaf contributes to the ordering of the
// enclosing rows. Where and Order on a relation node, and Optional, steer
// how the relation is resolved:
//
//   - Where or Order set: the relation is batch loaded.
//   - Optional never changes the strategy. For a fetch-joined to-one it
//     picks the join kind; for a batched relation Optional=false restricts
//     the parents to those with a matching related row.
type Selection struct {
	Field    string
	Children []*Selection
	Order    Direction
	Where    Filter
	Optional *bool
}

// Field returns a leaf selection.
func Field(name string) *Selection {
	return &Selection{Field: name}
}

// Nested returns a selection of name with children.
func Nested(name string, children ...*Selection) *Selection {
	return &Selection{Field: name, Children: children}
}

// IsLeaf reports whether s has no children.
func (s *Selection) IsLeaf() bool {
	return len(s.Children) == 0
}

// Page is a 1-based page window.
// A zero Limit means "use the engine's default limit".
type Page struct {
	Start int
	Limit int
}

// Offset returns the number of rows skipped before the page.
func (p Page) Offset() int {
	if p.Start < 1 {
		return 0
	}
	return (p.Start - 1) * p.Limit
}

// OrderBy is an explicit ordering term. Path may traverse to-one relations.
type OrderBy struct {
	Path string
	Dir  Direction
}

// Request is a complete query against one root entity type.
type Request struct {
	Entity  string
	Select  []*Selection
	Where   Filter
	Page    *Page
	OrderBy []OrderBy

	// Distinct defaults to true: rows are deduplicated by root identity.
	Distinct *bool
	// Count defaults to true for paged requests.
	Count *bool
}

// IsDistinct reports whether rows are deduplicated by identity.
func (r *Request) IsDistinct() bool {
	return r.Distinct == nil || *r.Distinct
}

// WantsCount reports whether the total count is computed.
func (r *Request) WantsCount() bool {
	if r.Count != nil {
		return *r.Count
	}
	return r.Page != nil
}

// Bool returns a pointer to b, for optional request flags.
func Bool(b bool) *bool {
	return &b
}
