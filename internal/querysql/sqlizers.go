package querysql

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// constExpr is a predicate without arguments.
type constExpr string

const (
	alwaysFalse constExpr = "1 = 0"
	alwaysTrue  constExpr = "1 = 1"
)

func (c constExpr) ToSql() (string, []any, error) {
	return string(c), nil, nil
}

// notExpr negates its inner predicate.
type notExpr struct {
	inner sq.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

// existsExpr wraps a correlated subquery. The subquery must keep the
// default question placeholders; the outer builder rewrites them.
type existsExpr struct {
	negate bool
	sub    sq.Sqlizer
}

func (e existsExpr) ToSql() (string, []any, error) {
	sql, args, err := e.sub.ToSql()
	if err != nil {
		return "", nil, err
	}
	op := "EXISTS"
	if e.negate {
		op = "NOT EXISTS"
	}
	return op + " (" + sql + ")", args, nil
}

// TupleIn matches rows whose column tuple is one of Tuples.
// A single column renders as a plain IN list. No tuples matches nothing.
type TupleIn struct {
	Columns []string
	Tuples  [][]any
}

func (t TupleIn) ToSql() (string, []any, error) {
	if len(t.Tuples) == 0 {
		return alwaysFalse.ToSql()
	}
	if len(t.Columns) == 1 {
		args := make([]any, len(t.Tuples))
		for i, tuple := range t.Tuples {
			args[i] = tuple[0]
		}
		return t.Columns[0] + " IN (" + sq.Placeholders(len(args)) + ")", args, nil
	}

	row := "(" + sq.Placeholders(len(t.Columns)) + ")"
	rows := make([]string, len(t.Tuples))
	args := make([]any, 0, len(t.Tuples)*len(t.Columns))
	for i, tuple := range t.Tuples {
		rows[i] = row
		args = append(args, tuple...)
	}
	return "(" + strings.Join(t.Columns, ", ") + ") IN (" + strings.Join(rows, ", ") + ")", args, nil
}

// columnsEqual renders left[i] = right[i] for each pair, joined by AND.
func columnsEqual(left, right []string) string {
	parts := make([]string, len(left))
	for i := range left {
		parts[i] = left[i] + " = " + right[i]
	}
	return strings.Join(parts, " AND ")
}

// nullCheck tests every column for NULL (or NOT NULL).
func nullCheck(columns []string, wantNull bool) sq.Sqlizer {
	suffix := " IS NOT NULL"
	if wantNull {
		suffix = " IS NULL"
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + suffix
	}
	if len(parts) == 1 {
		return sq.Expr(parts[0])
	}
	return sq.Expr("(" + strings.Join(parts, " AND ") + ")")
}

// combine joins predicates, unwrapping single-element lists.
func combine(or bool, preds []sq.Sqlizer) sq.Sqlizer {
	switch len(preds) {
	case 0:
		return alwaysFalse
	case 1:
		return preds[0]
	}
	if or {
		return sq.Or(preds)
	}
	return sq.And(preds)
}

// InSubquery matches rows whose column tuple is produced by Sub.
type InSubquery struct {
	Columns []string
	Sub     sq.Sqlizer
}

func (s InSubquery) ToSql() (string, []any, error) {
	sql, args, err := s.Sub.ToSql()
	if err != nil {
		return "", nil, err
	}
	cols := s.Columns[0]
	if len(s.Columns) > 1 {
		cols = "(" + strings.Join(s.Columns, ", ") + ")"
	}
	return cols + " IN (" + sql + ")", args, nil
}
