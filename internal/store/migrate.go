package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/qgraph/internal/querysql"
	"github.com/roach88/qgraph/internal/schema"
)

// column is one column of a generated table.
type column struct {
	name     string
	sqlType  string
	nullable bool
}

// table is a generated CREATE TABLE statement.
type table struct {
	name       string
	columns    []column
	primaryKey []string
	index      map[string]bool
}

func newTable(name string) *table {
	return &table{name: name, index: make(map[string]bool)}
}

// add appends a column once; the first declaration wins.
func (t *table) add(c column) {
	if t.index[c.name] {
		return
	}
	t.index[c.name] = true
	t.columns = append(t.columns, c)
}

func (t *table) render(d querysql.Dialect) string {
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		def := d.Quote(c.name) + " " + c.sqlType
		if !c.nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.primaryKey) > 0 {
		quoted := make([]string, len(t.primaryKey))
		for i, c := range t.primaryKey {
			quoted[i] = d.Quote(c)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Quote(t.name), strings.Join(defs, ",\n\t"))
}

// DDL returns the CREATE TABLE statements for every entity table, join
// table and collection table of s, in dependency-free order. Statements
// are idempotent.
//
// Date columns are TEXT: values are stored in the attribute layout, which
// sorts lexically, and the SQLite driver would otherwise convert them to
// time.Time on read.
func DDL(s *schema.Schema, d querysql.Dialect) []string {
	var tables []*table
	byName := make(map[string]*table)
	get := func(name string) *table {
		if t, ok := byName[name]; ok {
			return t
		}
		t := newTable(name)
		byName[name] = t
		tables = append(tables, t)
		return t
	}

	for _, e := range s.Entities() {
		t := get(e.Table)
		t.primaryKey = e.IdentityColumns()
		ids := make(map[string]bool)
		for _, c := range t.primaryKey {
			ids[c] = true
		}

		for _, a := range e.Attributes {
			switch a.Kind {
			case schema.KindScalar:
				t.add(column{name: a.Column, sqlType: columnType(d, a.Family), nullable: !ids[a.Column]})

			case schema.KindEmbedded:
				emb, ok := s.Embeddable(a.Target)
				if !ok {
					continue
				}
				for _, ea := range emb.Attributes {
					t.add(column{name: ea.Column, sqlType: columnType(d, ea.Family), nullable: true})
				}

			case schema.KindToOne:
				if !a.OwnsForeignKey() {
					continue
				}
				target, ok := s.Target(a)
				if !ok {
					continue
				}
				for i, ta := range target.Identity() {
					t.add(column{name: a.Columns[i], sqlType: columnType(d, ta.Family), nullable: true})
				}

			case schema.KindToMany:
				if a.JoinTable == nil || a.MappedBy != "" {
					continue
				}
				target, ok := s.Target(a)
				if !ok {
					continue
				}
				jt := get(a.JoinTable.Name)
				addKeyColumns(d, jt, a.JoinTable.OwnerColumns, e)
				addKeyColumns(d, jt, a.JoinTable.TargetColumns, target)
				jt.primaryKey = append(append([]string{}, a.JoinTable.OwnerColumns...), a.JoinTable.TargetColumns...)

			case schema.KindElementCollection:
				ct := get(a.CollectionTable)
				addKeyColumns(d, ct, a.CollectionKey, e)
				ct.add(column{name: a.Column, sqlType: columnType(d, a.Family), nullable: true})
			}
		}
	}

	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.render(d)
	}
	return out
}

// addKeyColumns adds columns referencing the identity of e.
func addKeyColumns(d querysql.Dialect, t *table, cols []string, e *schema.EntityType) {
	ids := e.Identity()
	for i, c := range cols {
		fam := schema.FamilyString
		if i < len(ids) {
			fam = ids[i].Family
		}
		t.add(column{name: c, sqlType: columnType(d, fam)})
	}
}

// columnType maps a scalar family to a column type of d.
func columnType(d querysql.Dialect, f schema.ScalarFamily) string {
	switch d.Name {
	case querysql.Postgres.Name:
		switch f {
		case schema.FamilyInteger:
			return "BIGINT"
		case schema.FamilyFloat:
			return "DOUBLE PRECISION"
		case schema.FamilyBoolean:
			return "BOOLEAN"
		case schema.FamilyUUID:
			return "UUID"
		default:
			return "TEXT"
		}
	case querysql.MySQL.Name:
		switch f {
		case schema.FamilyInteger:
			return "BIGINT"
		case schema.FamilyFloat:
			return "DOUBLE"
		case schema.FamilyBoolean:
			return "BOOLEAN"
		case schema.FamilyUUID:
			return "CHAR(36)"
		default:
			return "VARCHAR(255)"
		}
	default:
		switch f {
		case schema.FamilyInteger:
			return "INTEGER"
		case schema.FamilyFloat:
			return "REAL"
		case schema.FamilyBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	}
}

// Migrate creates every table of s that does not exist yet, in one
// transaction.
func (s *Store) Migrate(ctx context.Context, sch *schema.Schema) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range DDL(sch, s.dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\n%s", err, stmt)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
