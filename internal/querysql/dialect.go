package querysql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	quote       string
	likeEscape  string
	binaryEq    bool
}

var (
	// SQLite is the default dialect.
	SQLite = Dialect{Name: "sqlite", Placeholder: sq.Question, quote: `"`, likeEscape: `'\'`}

	// Postgres uses $n placeholders.
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, quote: `"`, likeEscape: `'\'`}

	// MySQL quotes with backticks; backslash is an escape inside literals.
	// Its default collations compare strings case-insensitively.
	MySQL = Dialect{Name: "mysql", Placeholder: sq.Question, quote: "`", likeEscape: `'\\'`, binaryEq: true}
)

// DialectByName returns the dialect for "sqlite", "postgres" or "mysql".
// The empty name selects SQLite.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown dialect %q", name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d.Name {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// Quote quotes an identifier. Embedded quote characters are doubled.
func (d Dialect) Quote(ident string) string {
	return d.quote + strings.ReplaceAll(ident, d.quote, d.quote+d.quote) + d.quote
}

// Column returns alias.column with the column quoted.
func (d Dialect) Column(alias, column string) string {
	return alias + "." + d.Quote(column)
}

// Columns qualifies each column with alias.
func (d Dialect) Columns(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = d.Column(alias, c)
	}
	return out
}

// Table returns a FROM/JOIN item: quoted table with alias.
func (d Dialect) Table(table, alias string) string {
	return d.Quote(table) + " AS " + alias
}

// LikeEscape is the ESCAPE clause literal for LIKE patterns.
func (d Dialect) LikeEscape() string {
	return d.likeEscape
}

// CaseSensitive returns column wrapped so that = and <> compare
// strings byte for byte.
func (d Dialect) CaseSensitive(column string) string {
	if d.binaryEq {
		return "BINARY " + column
	}
	return column
}

// Finish applies the dialect placeholder format and renders b.
func (d Dialect) Finish(b sq.SelectBuilder) (string, []any, error) {
	return b.PlaceholderFormat(d.Placeholder).ToSql()
}
