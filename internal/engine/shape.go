package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/qgraph/internal/ir"
	"github.com/roach88/qgraph/internal/schema"
)

// Row is one shaped result object. Nested to-one objects are Rows, to-many
// relations are []Row and element collections are []any.
type Row = map[string]any

// projection collects the select list of one query.
type projection struct {
	exprs []string
}

// add appends an expression and returns its index in scanned rows.
func (p *projection) add(expr string) int {
	p.exprs = append(p.exprs, expr)
	return len(p.exprs) - 1
}

func (p *projection) columns() []string {
	out := make([]string, len(p.exprs))
	for i, e := range p.exprs {
		out[i] = e + " AS c" + strconv.Itoa(i)
	}
	return out
}

type slotKind int

const (
	slotScalar slotKind = iota
	slotEmbedded
	slotObject
	slotDeferred
)

// slot is one output field of a Shape.
type slot struct {
	name  string
	kind  slotKind
	attr  *schema.Attribute
	col   int              // slotScalar
	shape *Shape           // slotEmbedded, slotObject
	assoc *AssociationPlan // slotDeferred
}

// Shape maps the flat columns of a scanned row back to a nested Row.
type Shape struct {
	Entity *schema.EntityType // nil for embedded shapes

	slots    []slot
	identity []int // projected identity columns, in identity order
	idAttrs  []*schema.Attribute
	presence []int // fetched to-one: all null means the object is absent
}

// pendingLoad is a deferred association waiting for its tick.
type pendingLoad struct {
	assoc *AssociationPlan
	row   Row    // object the loaded value is attached to
	key   []any  // parent identity; nil when any identity value is null
	path  string // result path of row
}

// key returns the normalized identity values of the row, or nil.
func (s *Shape) key(vals []any) []any {
	if len(s.identity) == 0 {
		return nil
	}
	key := make([]any, len(s.identity))
	for i, col := range s.identity {
		v := normalize(s.idAttrs[i], vals[col])
		if v == nil {
			return nil
		}
		key[i] = v
	}
	return key
}

// identityColumn returns the projected column of attr when attr is part of
// the identity.
func (s *Shape) identityColumn(attr *schema.Attribute) (int, bool) {
	for i, id := range s.idAttrs {
		if id == attr {
			return s.identity[i], true
		}
	}
	return 0, false
}

func (s *Shape) absent(vals []any) bool {
	for _, col := range s.presence {
		if vals[col] != nil {
			return false
		}
	}
	return len(s.presence) > 0
}

// build shapes one scanned row. Deferred associations are appended to
// pending with their parent object and identity.
func (s *Shape) build(vals []any, path string, pending *[]pendingLoad) Row {
	row := make(Row, len(s.slots))
	key := s.key(vals)

	for _, sl := range s.slots {
		switch sl.kind {
		case slotScalar:
			row[sl.name] = normalize(sl.attr, vals[sl.col])
		case slotEmbedded:
			row[sl.name] = sl.shape.build(vals, joinResultPath(path, sl.name), pending)
		case slotObject:
			if sl.shape.absent(vals) {
				row[sl.name] = nil
				continue
			}
			row[sl.name] = sl.shape.build(vals, joinResultPath(path, sl.name), pending)
		case slotDeferred:
			row[sl.name] = nil
			*pending = append(*pending, pendingLoad{assoc: sl.assoc, row: row, key: key, path: path})
		}
	}
	return row
}

func joinResultPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "." + elem
}

// KeyString renders an identity tuple as a stable map key.
func KeyString(key []any) string {
	b, err := ir.MarshalCanonical(key)
	if err != nil {
		return fmt.Sprintf("%v", key)
	}
	return string(b)
}

// normalizeKey converts caller-supplied identity values to the forms
// scanned rows produce (int64, float64, string, bool).
func normalizeKey(key []any) ([]any, error) {
	out := make([]any, len(key))
	for i, v := range key {
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("key[%d]: %w", i, err)
		}
		out[i] = ir.Native(val)
	}
	return out, nil
}

// normalize converts a scanned driver value to the attribute's family.
//
// Drivers differ: MySQL returns most columns as []byte, SQLite returns
// booleans as integers unless the column is declared BOOLEAN, and date
// columns may arrive as time.Time.
func normalize(attr *schema.Attribute, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil || attr == nil {
		return v
	}

	switch attr.Family {
	case schema.FamilyInteger:
		switch n := v.(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case schema.FamilyFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case schema.FamilyBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			switch strings.ToLower(b) {
			case "1", "t", "true":
				return true
			case "0", "f", "false":
				return false
			}
		}
	case schema.FamilyDate:
		if t, ok := v.(time.Time); ok {
			layout := attr.Layout
			if layout == "" {
				layout = schema.DefaultDateLayout
			}
			return t.UTC().Format(layout)
		}
	}
	return v
}
