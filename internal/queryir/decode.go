package queryir

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/qgraph/internal/ir"
)

// Logical operator keys of the object form.
const (
	KeyAnd       = "AND"
	KeyOr        = "OR"
	KeyNot       = "NOT"
	KeyExists    = "EXISTS"
	KeyNotExists = "NOT_EXISTS"
)

// DecodeFilter converts the object form of a filter into the AST.
// Keys are processed in sorted order so decoding is deterministic.
// An empty object decodes to an empty AND, which matches nothing.
func DecodeFilter(obj map[string]any) (Filter, error) {
	return decodeFilter("where", obj)
}

func decodeFilter(path string, obj map[string]any) (Filter, error) {
	children, err := decodeChildren(path, obj)
	if err != nil {
		return nil, err
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And(children...), nil
}

// decodeChildren returns one filter per key of obj.
func decodeChildren(path string, obj map[string]any) ([]Filter, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Filter, 0, len(keys))
	for _, k := range keys {
		f, err := decodeKey(joinPath(path, k), k, obj[k])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeKey(path, key string, v any) (Filter, error) {
	switch key {
	case KeyAnd, KeyOr:
		children, err := decodeOperands(path, v)
		if err != nil {
			return nil, err
		}
		if key == KeyOr {
			return Or(children...), nil
		}
		return And(children...), nil

	case KeyNot:
		children, err := decodeOperands(path, v)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 {
			return Not{Inner: children[0]}, nil
		}
		return Not{Inner: And(children...)}, nil

	case KeyExists, KeyNotExists:
		op := OpExists
		if key == KeyNotExists {
			op = OpNotExists
		}
		return decodeExists(path, op, v)

	default:
		return decodeField(path, key, v)
	}
}

// decodeOperands accepts a list of filter objects or a single object whose
// keys are the operands.
func decodeOperands(path string, v any) ([]Filter, error) {
	switch val := v.(type) {
	case []any:
		out := make([]Filter, 0, len(val))
		for i, elem := range val {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, NewCompileError(ErrMalformedFilter, fmt.Sprintf("%s[%d]", path, i),
					"expected a filter object, got %T", elem)
			}
			f, err := decodeFilter(fmt.Sprintf("%s[%d]", path, i), obj)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	case map[string]any:
		return decodeChildren(path, val)
	default:
		return nil, NewCompileError(ErrMalformedFilter, path,
			"expected a list or object of filters, got %T", v)
	}
}

// decodeExists maps {relation: {inner}} to Exists nodes. An empty inner
// object tests presence only.
func decodeExists(path string, op ExistsOp, v any) (Filter, error) {
	var objs []map[string]any
	switch val := v.(type) {
	case map[string]any:
		objs = []map[string]any{val}
	case []any:
		for i, elem := range val {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, NewCompileError(ErrMalformedFilter, fmt.Sprintf("%s[%d]", path, i),
					"expected a relation object, got %T", elem)
			}
			objs = append(objs, obj)
		}
	default:
		return nil, NewCompileError(ErrMalformedFilter, path, "expected a relation object, got %T", v)
	}

	var out []Filter
	for _, obj := range objs {
		rels := make([]string, 0, len(obj))
		for k := range obj {
			rels = append(rels, k)
		}
		sort.Strings(rels)

		for _, rel := range rels {
			relPath := joinPath(path, rel)
			e := Exists{Op: op, Relation: rel}
			switch inner := obj[rel].(type) {
			case nil:
			case map[string]any:
				if len(inner) > 0 {
					f, err := decodeFilter(relPath, inner)
					if err != nil {
						return nil, err
					}
					e.Inner = f
				}
			default:
				return nil, NewCompileError(ErrMalformedFilter, relPath,
					"expected a filter object, got %T", obj[rel])
			}
			out = append(out, e)
		}
	}

	if len(out) == 1 {
		return out[0], nil
	}
	return And(out...), nil
}

// decodeField handles a non-logical key: a criteria object, a nested
// relation filter, a list (membership) or a bare value (default criteria).
func decodeField(path, field string, v any) (Filter, error) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, NewCompileError(ErrInvalidValue, path, "%v", err)
		}
		return FieldCriteria{Field: field, Criteria: Default, Value: val}, nil
	}

	var crit []Criteria
	var other []string
	for k := range obj {
		if c, ok := ParseCriteria(k); ok {
			crit = append(crit, c)
		} else {
			other = append(other, k)
		}
	}

	switch {
	case len(crit) > 0 && len(other) > 0:
		sort.Strings(other)
		return nil, NewCompileError(ErrMalformedFilter, path,
			"field object mixes criteria with fields %s", strings.Join(other, ", "))

	case len(crit) == 0:
		inner, err := decodeFilter(path, obj)
		if err != nil {
			return nil, err
		}
		return Relation{Field: field, Inner: inner}, nil
	}

	sort.Slice(crit, func(i, j int) bool { return crit[i] < crit[j] })
	out := make([]Filter, 0, len(crit))
	for _, c := range crit {
		val, err := ir.FromAny(obj[c.String()])
		if err != nil {
			return nil, NewCompileError(ErrInvalidValue, joinPath(path, c.String()), "%v", err)
		}
		out = append(out, FieldCriteria{Field: field, Criteria: c, Value: val})
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return And(out...), nil
}

// DecodeRequest converts the object form of a request:
//
//	entity: Author
//	select: [id, name, {field: books, where: {...}, select: [id, title]}]
//	where: {...}
//	page: {start: 1, limit: 10}
//	orderBy: [name, "born DESC", {path: publisher.name, dir: ASC}]
//	distinct: true
//	count: true
func DecodeRequest(obj map[string]any) (*Request, error) {
	req := &Request{}

	for k, v := range obj {
		switch k {
		case "entity":
			s, ok := v.(string)
			if !ok || s == "" {
				return nil, NewCompileError(ErrMalformedFilter, "entity", "expected an entity name")
			}
			req.Entity = s

		case "select":
			sel, err := DecodeSelection("select", v)
			if err != nil {
				return nil, err
			}
			req.Select = sel

		case "where":
			m, ok := v.(map[string]any)
			if !ok {
				return nil, NewCompileError(ErrMalformedFilter, "where", "expected a filter object, got %T", v)
			}
			f, err := DecodeFilter(m)
			if err != nil {
				return nil, err
			}
			req.Where = f

		case "page":
			p, err := decodePage(v)
			if err != nil {
				return nil, err
			}
			req.Page = p

		case "orderBy":
			terms, err := decodeOrderBy(v)
			if err != nil {
				return nil, err
			}
			req.OrderBy = terms

		case "distinct", "count":
			b, ok := v.(bool)
			if !ok {
				return nil, NewCompileError(ErrMalformedFilter, k, "expected a boolean, got %T", v)
			}
			if k == "distinct" {
				req.Distinct = Bool(b)
			} else {
				req.Count = Bool(b)
			}

		default:
			return nil, NewCompileError(ErrMalformedFilter, k, "unknown request key")
		}
	}

	if req.Entity == "" {
		return nil, NewCompileError(ErrMalformedFilter, "entity", "entity is required")
	}
	return req, nil
}

// DecodeSelection converts a selection list. Items are field names,
// {field: name, select: [...], where: {...}, orderBy: DESC, optional: false}
// objects, or {name: [...]} shorthands for nested selections.
func DecodeSelection(path string, v any) ([]*Selection, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, NewCompileError(ErrMalformedFilter, path, "expected a selection list, got %T", v)
	}

	out := make([]*Selection, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		sel, err := decodeSelectionItem(itemPath, item)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func decodeSelectionItem(path string, item any) (*Selection, error) {
	switch val := item.(type) {
	case string:
		if val == "" {
			return nil, NewCompileError(ErrMalformedFilter, path, "empty field name")
		}
		return Field(val), nil

	case map[string]any:
		name, hasField := val["field"].(string)
		if !hasField {
			if len(val) != 1 {
				return nil, NewCompileError(ErrMalformedFilter, path, "selection object needs a field")
			}
			for k, children := range val {
				sel := Field(k)
				nested, err := DecodeSelection(joinPath(path, k), children)
				if err != nil {
					return nil, err
				}
				sel.Children = nested
				return sel, nil
			}
		}

		sel := Field(name)
		for k, v := range val {
			switch k {
			case "field":
			case "select":
				nested, err := DecodeSelection(joinPath(path, name), v)
				if err != nil {
					return nil, err
				}
				sel.Children = nested
			case "where":
				m, ok := v.(map[string]any)
				if !ok {
					return nil, NewCompileError(ErrMalformedFilter, joinPath(path, "where"), "expected a filter object, got %T", v)
				}
				f, err := decodeFilter(joinPath(path, "where"), m)
				if err != nil {
					return nil, err
				}
				sel.Where = f
			case "orderBy":
				s, _ := v.(string)
				dir, ok := ParseDirection(s)
				if !ok {
					return nil, NewCompileError(ErrMalformedFilter, joinPath(path, "orderBy"), "expected ASC or DESC, got %v", v)
				}
				sel.Order = dir
			case "optional":
				b, ok := v.(bool)
				if !ok {
					return nil, NewCompileError(ErrMalformedFilter, joinPath(path, "optional"), "expected a boolean, got %T", v)
				}
				sel.Optional = Bool(b)
			default:
				return nil, NewCompileError(ErrMalformedFilter, joinPath(path, k), "unknown selection key")
			}
		}
		return sel, nil

	default:
		return nil, NewCompileError(ErrMalformedFilter, path, "expected a field name or object, got %T", item)
	}
}

func decodePage(v any) (*Page, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, NewCompileError(ErrInvalidPage, "page", "expected {start, limit}, got %T", v)
	}
	p := &Page{Start: 1}
	for k, raw := range m {
		n, ok := toInt(raw)
		if !ok {
			return nil, NewCompileError(ErrInvalidPage, joinPath("page", k), "expected an integer, got %v", raw)
		}
		switch k {
		case "start":
			p.Start = n
		case "limit":
			p.Limit = n
		default:
			return nil, NewCompileError(ErrInvalidPage, joinPath("page", k), "unknown page key")
		}
	}
	return p, nil
}

func decodeOrderBy(v any) ([]OrderBy, error) {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}

	out := make([]OrderBy, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("orderBy[%d]", i)
		switch val := item.(type) {
		case string:
			fields := strings.Fields(val)
			if len(fields) == 0 || len(fields) > 2 {
				return nil, NewCompileError(ErrUnsupportedOrdering, path, "expected \"path [ASC|DESC]\", got %q", val)
			}
			term := OrderBy{Path: fields[0], Dir: Asc}
			if len(fields) == 2 {
				dir, ok := ParseDirection(fields[1])
				if !ok {
					return nil, NewCompileError(ErrUnsupportedOrdering, path, "unknown direction %q", fields[1])
				}
				term.Dir = dir
			}
			out = append(out, term)
		case map[string]any:
			p, _ := val["path"].(string)
			if p == "" {
				p, _ = val["field"].(string)
			}
			if p == "" {
				return nil, NewCompileError(ErrUnsupportedOrdering, path, "ordering needs a path")
			}
			term := OrderBy{Path: p, Dir: Asc}
			if d, ok := val["dir"].(string); ok {
				dir, ok := ParseDirection(d)
				if !ok {
					return nil, NewCompileError(ErrUnsupportedOrdering, path, "unknown direction %q", d)
				}
				term.Dir = dir
			}
			out = append(out, term)
		default:
			return nil, NewCompileError(ErrUnsupportedOrdering, path, "expected a string or object, got %T", item)
		}
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}
