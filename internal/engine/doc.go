// Package engine plans and executes qgraph requests.
//
// ARCHITECTURE:
//
// Planning:
// Plan compiles a request into a Plan without touching the database. All
// CompileErrors surface here, so a bad request never issues a query.
// The planner picks one of three modes:
//   - two-phase: paged and distinct. A key query pages DISTINCT root
//     identities; the content query loads exactly those rows.
//   - semi-join: unpaged and distinct. The content query is restricted by
//     identity IN (SELECT DISTINCT identity ...).
//   - single: distinct disabled, or the root has no identity.
//
// To-one relations without a filter or ordering are fetch joined into the
// content query. Every other relation, and every element collection, is
// deferred to a batch query.
//
// Resolution:
// Deferred associations are resolved breadth-first. Each depth is one
// BatchScheduler tick: all parents waiting on the same association group
// share one query with a (tuple) IN over their identities.
//
// Failure model:
//   - CompileError: returned by Plan, before any query.
//   - ExecutionError: a key, content or count query failed; the request fails.
//   - FieldError: a batch query failed; only the affected fields are null.
//   - BudgetExceededError and context errors abort the request.
//
// Ordering is always deterministic: explicit ordering, then ordering on
// selected fields, then root identity ascending.
package engine
