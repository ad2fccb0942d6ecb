// Package store wraps the database a qgraph engine reads from.
//
// SQLite (github.com/mattn/go-sqlite3) is the default backend. The
// Postgres (github.com/lib/pq) and MySQL (github.com/go-sql-driver/mysql)
// drivers are registered too; OpenDSN selects one by dialect name.
//
// # Tables
//
// DDL derives CREATE TABLE statements from a schema.Schema: one table per
// entity type, plus join tables of owning many-to-many relations and
// element collection tables. Migrate applies them idempotently.
//
// # Fixtures
//
// LoadFixtures inserts YAML fixture rows, used by tests, scenarios and
// `qgraph migrate --fixtures`.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Enforce referential integrity
package store
