// Package queryir defines the request AST that qgraph compiles into SQL.
//
// A Request names a root entity type and carries three trees:
//
//   - a selection tree (which fields and relations to return),
//   - a filter tree (logical combinators over per-field criteria),
//   - ordering and pagination parameters.
//
// ARCHITECTURE:
//
//	[object form (YAML/JSON)] → DecodeRequest → [Request AST] → querysql / engine
//
// The AST is independent of any schema. Field names are resolved against
// the schema only when the request is compiled, so every unknown field is
// reported by the compiler before any query runs.
//
// SEALED INTERFACES:
//
// Filter is a sealed interface using the marker method pattern. Only the
// types in this package implement it, which lets the compiler switch over
// it exhaustively:
//
//	switch f := filter.(type) {
//	case Logical:
//	case Not:
//	case Exists:
//	case FieldCriteria:
//	case Relation:
//	}
//
// OBJECT FORM:
//
// In the object form, AND, OR, NOT, EXISTS and NOT_EXISTS keys are logical
// operators. Inside a field object, criteria names (EQ, LIKE, ...) are
// criteria. Any other key is a field; an object of non-criteria keys below
// a field is a nested relation filter. A bare value compares with the
// family's default criteria.
//
//	{books: {genre: {EQ: "NOVEL"}}, name: {LIKE: "an", NE: "Dan"}}
//
// Filters are fingerprinted over their canonical object form, so two
// structurally equal filters share batch groups.
package queryir
