package querysql

import (
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/qgraph/internal/ir"
	"github.com/roach88/qgraph/internal/queryir"
	"github.com/roach88/qgraph/internal/schema"
)

// PredicateBuilder turns one (column, criteria, value) triple into a SQL
// predicate. Values are always bound as arguments.
type PredicateBuilder struct {
	dialect Dialect
}

// NewPredicateBuilder returns a builder for d.
func NewPredicateBuilder(d Dialect) PredicateBuilder {
	return PredicateBuilder{dialect: d}
}

// Build returns the predicate for column, which must already be qualified
// and quoted. path locates the criteria for error messages.
func (b PredicateBuilder) Build(path, column string, attr *schema.Attribute, c queryir.Criteria, v ir.Value) (sq.Sqlizer, error) {
	if c.IsNullCheck() {
		wantNull, err := nullCheckValue(path, c, v)
		if err != nil {
			return nil, err
		}
		return nullCheck([]string{column}, wantNull), nil
	}
	if c.IsRange() && !ordered(attr.Family) {
		return nil, unsupported(path, attr, c)
	}

	if c == queryir.IN || c == queryir.NIN {
		if _, ok := v.(ir.Array); !ok {
			v = ir.Array{v}
		}
	}
	if arr, ok := v.(ir.Array); ok && !c.IsRange() {
		return b.membership(path, column, attr, c, arr)
	}

	switch attr.Family {
	case schema.FamilyString:
		return b.stringPredicate(path, column, attr, c, v)
	case schema.FamilyInteger, schema.FamilyFloat, schema.FamilyDate:
		return b.orderedPredicate(path, column, attr, c, v)
	case schema.FamilyBoolean:
		return b.booleanPredicate(path, column, attr, c, v)
	case schema.FamilyEnum, schema.FamilyUUID:
		return b.equalityPredicate(path, column, attr, c, v)
	default:
		return nil, compileErr(queryir.ErrUnsupportedCriteria, path, "field has no scalar family")
	}
}

// ordered reports whether the family supports range criteria.
func ordered(f schema.ScalarFamily) bool {
	switch f {
	case schema.FamilyInteger, schema.FamilyFloat, schema.FamilyDate:
		return true
	}
	return false
}

// nullCheckValue decides between IS NULL and IS NOT NULL. A missing value
// reads as true.
func nullCheckValue(path string, c queryir.Criteria, v ir.Value) (bool, error) {
	flag := true
	switch val := v.(type) {
	case nil, ir.Null:
	case ir.Bool:
		flag = bool(val)
	default:
		return false, compileErr(queryir.ErrInvalidValue, path, "%s takes a boolean, got %s", c, ir.TypeName(v))
	}
	if c == queryir.NOT_NULL {
		return !flag, nil
	}
	return flag, nil
}

func (b PredicateBuilder) membership(path, column string, attr *schema.Attribute, c queryir.Criteria, arr ir.Array) (sq.Sqlizer, error) {
	if attr.Family == schema.FamilyBoolean {
		return nil, compileErr(queryir.ErrUnsupportedCriteria, path, "boolean fields do not support set membership")
	}

	values := make([]any, len(arr))
	for i, elem := range arr {
		p, err := param(path, attr, elem)
		if err != nil {
			return nil, err
		}
		values[i] = p
	}

	// Empty lists render as 1=0 (IN) and 1=1 (NOT IN) in squirrel.
	if c.Negated() {
		return sq.NotEq{column: values}, nil
	}
	return sq.Eq{column: values}, nil
}

func (b PredicateBuilder) stringPredicate(path, column string, attr *schema.Attribute, c queryir.Criteria, v ir.Value) (sq.Sqlizer, error) {
	p, err := param(path, attr, v)
	if err != nil {
		return nil, err
	}
	s := p.(string)

	switch c {
	case queryir.EQ, queryir.CASE:
		return sq.Eq{b.dialect.CaseSensitive(column): s}, nil
	case queryir.NE:
		return sq.NotEq{b.dialect.CaseSensitive(column): s}, nil
	case queryir.Default, queryir.STARTS:
		return b.like(column, escapeLike(s)+"%"), nil
	case queryir.LIKE:
		return b.like(column, "%"+escapeLike(s)+"%"), nil
	case queryir.ENDS:
		return b.like(column, "%"+escapeLike(s)), nil
	case queryir.EXACT:
		return b.like(column, escapeLike(s)), nil
	default:
		return nil, unsupported(path, attr, c)
	}
}

// like is a case-insensitive LIKE against an escaped pattern. Both sides
// are folded by the database so column and pattern share one LOWER.
func (b PredicateBuilder) like(column, pattern string) sq.Sqlizer {
	return sq.Expr("LOWER("+column+") LIKE LOWER(?) ESCAPE "+b.dialect.LikeEscape(), pattern)
}

func (b PredicateBuilder) orderedPredicate(path, column string, attr *schema.Attribute, c queryir.Criteria, v ir.Value) (sq.Sqlizer, error) {
	if c.IsRange() {
		arr, ok := v.(ir.Array)
		if !ok || len(arr) != 2 {
			return nil, compileErr(queryir.ErrInvalidValue, path, "%s takes exactly two values", c)
		}
		lo, err := param(path, attr, arr[0])
		if err != nil {
			return nil, err
		}
		hi, err := param(path, attr, arr[1])
		if err != nil {
			return nil, err
		}
		op := " BETWEEN ? AND ?"
		if c == queryir.NOT_BETWEEN {
			op = " NOT BETWEEN ? AND ?"
		}
		return sq.Expr(column+op, lo, hi), nil
	}

	p, err := param(path, attr, v)
	if err != nil {
		return nil, err
	}

	if c == queryir.Default {
		c = queryir.LE
		if attr.Family == schema.FamilyInteger {
			c = queryir.EQ
		}
	}

	switch c {
	case queryir.EQ:
		return sq.Eq{column: p}, nil
	case queryir.NE:
		return sq.NotEq{column: p}, nil
	case queryir.LT:
		return sq.Lt{column: p}, nil
	case queryir.GT:
		return sq.Gt{column: p}, nil
	case queryir.LE:
		return sq.LtOrEq{column: p}, nil
	case queryir.GE:
		return sq.GtOrEq{column: p}, nil
	default:
		return nil, unsupported(path, attr, c)
	}
}

func (b PredicateBuilder) booleanPredicate(path, column string, attr *schema.Attribute, c queryir.Criteria, v ir.Value) (sq.Sqlizer, error) {
	p, err := param(path, attr, v)
	if err != nil {
		return nil, err
	}
	flag := p.(bool)

	switch c {
	case queryir.Default, queryir.EQ:
		return sq.Eq{column: flag}, nil
	case queryir.NE:
		return sq.Eq{column: !flag}, nil
	default:
		return nil, unsupported(path, attr, c)
	}
}

func (b PredicateBuilder) equalityPredicate(path, column string, attr *schema.Attribute, c queryir.Criteria, v ir.Value) (sq.Sqlizer, error) {
	p, err := param(path, attr, v)
	if err != nil {
		return nil, err
	}

	switch c {
	case queryir.Default, queryir.EQ:
		return sq.Eq{column: p}, nil
	case queryir.NE:
		return sq.NotEq{column: p}, nil
	default:
		return nil, unsupported(path, attr, c)
	}
}

func unsupported(path string, attr *schema.Attribute, c queryir.Criteria) error {
	return compileErr(queryir.ErrUnsupportedCriteria, path, "%s fields do not support %s", attr.Family, c)
}

// param converts a request value to the driver argument for attr's family.
// Null is rejected: only IS_NULL and NOT_NULL test for absence.
func param(path string, attr *schema.Attribute, v ir.Value) (any, error) {
	if ir.IsNull(v) {
		return nil, compileErr(queryir.ErrInvalidValue, path, "null value; use IS_NULL")
	}

	switch attr.Family {
	case schema.FamilyString:
		if s, ok := v.(ir.String); ok {
			return norm.NFC.String(string(s)), nil
		}
	case schema.FamilyInteger:
		switch n := v.(type) {
		case ir.Int:
			return int64(n), nil
		case ir.Float:
			if f := float64(n); f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				return int64(f), nil
			}
		}
	case schema.FamilyFloat:
		switch n := v.(type) {
		case ir.Int:
			return float64(n), nil
		case ir.Float:
			return float64(n), nil
		}
	case schema.FamilyDate:
		if s, ok := v.(ir.String); ok {
			return normalizeDate(path, attr, string(s))
		}
	case schema.FamilyBoolean:
		if b, ok := v.(ir.Bool); ok {
			return bool(b), nil
		}
	case schema.FamilyEnum:
		if s, ok := v.(ir.String); ok {
			if !attr.HasEnumValue(string(s)) {
				return nil, compileErr(queryir.ErrInvalidValue, path, "%q is not one of %s", string(s), strings.Join(attr.EnumValues, ", "))
			}
			return string(s), nil
		}
	case schema.FamilyUUID:
		if s, ok := v.(ir.String); ok {
			id, err := uuid.Parse(string(s))
			if err != nil {
				return nil, compileErr(queryir.ErrInvalidValue, path, "invalid uuid %q", string(s))
			}
			return id.String(), nil
		}
	}
	return nil, compileErr(queryir.ErrInvalidValue, path, "%s value for %s field", ir.TypeName(v), attr.Family)
}

// dateLayouts are tried in order after the attribute's own layout.
// ir.FromAny renders time.Time as RFC 3339 with nanoseconds.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, schema.DefaultDateLayout}

// normalizeDate renders s in the attribute layout. Timestamps keep the
// calendar date of their own offset; they are not converted to UTC.
func normalizeDate(path string, attr *schema.Attribute, s string) (string, error) {
	layout := attr.Layout
	if layout == "" {
		layout = schema.DefaultDateLayout
	}
	if t, err := time.Parse(layout, s); err == nil {
		return t.Format(layout), nil
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format(layout), nil
		}
	}
	return "", compileErr(queryir.ErrInvalidValue, path, "%q is not a date in layout %s", s, layout)
}

// escapeLike escapes LIKE wildcards with backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
