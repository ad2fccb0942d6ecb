package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gopkg.in/yaml.v3"
)

// TableFixture is a list of rows inserted into one table.
type TableFixture struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// Fixtures is an ordered set of table fixtures:
//
//	- table: authors
//	  rows:
//	    - {id: 1, name: Ann}
type Fixtures []TableFixture

// ParseFixtures decodes a YAML fixture document.
func ParseFixtures(data []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, t := range f {
		if t.Table == "" {
			return nil, fmt.Errorf("parse fixtures: entry %d has no table", i)
		}
	}
	return f, nil
}

// LoadFixturesFile reads and loads a YAML fixture file.
func (s *Store) LoadFixturesFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	f, err := ParseFixtures(data)
	if err != nil {
		return err
	}
	return s.LoadFixtures(ctx, f)
}

// LoadFixtures inserts every row in one transaction. Rows of a table may
// name different columns; missing columns are left to their defaults.
func (s *Store) LoadFixtures(ctx context.Context, f Fixtures) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fixtures: %w", err)
	}
	defer tx.Rollback()

	for _, t := range f {
		for i, row := range t.Rows {
			cols := make([]string, 0, len(row))
			for c := range row {
				cols = append(cols, c)
			}
			sort.Strings(cols)

			quoted := make([]string, len(cols))
			vals := make([]any, len(cols))
			for j, c := range cols {
				quoted[j] = s.dialect.Quote(c)
				vals[j] = fixtureValue(row[c])
			}

			stmt, args, err := sq.Insert(s.dialect.Quote(t.Table)).
				Columns(quoted...).
				Values(vals...).
				PlaceholderFormat(s.dialect.Placeholder).
				ToSql()
			if err != nil {
				return fmt.Errorf("fixture %s[%d]: %w", t.Table, i, err)
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("fixture %s[%d]: %w", t.Table, i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fixtures: %w", err)
	}
	return nil
}

// fixtureValue stores YAML timestamps in the default date layout.
func fixtureValue(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}
