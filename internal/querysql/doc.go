// Package querysql compiles request filters into relational predicates.
//
// The package owns three cooperating pieces:
//
//   - JoinGraph: the per-compilation arena of joins, keyed by
//     (parent node, attribute), so each relation prefix joins once.
//   - PredicateBuilder: one SQL predicate per (column, criteria, value),
//     switching exhaustively over the scalar family.
//   - FilterCompiler: recursive descent over the filter tree that traverses
//     joins and builds predicates, including correlated EXISTS subqueries.
//
// All values are parameterized. Queries are squirrel builders that are
// finished with the dialect's placeholder format:
//
//	g := NewJoinGraph(s, SQLite, root, NewAliasAllocator())
//	where, err := NewFilterCompiler(s, SQLite).Compile(g, req.Where)
//	q := g.Apply(sq.Select(cols...).From(g.FromClause())).Where(where)
//	sql, args, err := SQLite.Finish(q)
//
// Identifiers come from the schema model and are quoted by the dialect;
// request values never reach the SQL text.
package querysql
