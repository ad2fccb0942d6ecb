// Package schema describes the relational data model that queries run against.
//
// A Schema is a set of EntityTypes (tables with identity columns and
// attributes) plus Embeddables (column groups stored on the owner table).
// Schemas are built once, validated, and read concurrently afterwards;
// nothing in this package mutates a Schema after New returns.
//
// Schemas are usually compiled from CUE:
//
//	entity: Author: {
//		table:    "authors"
//		identity: ["id"]
//		attributes: {
//			id:    {type: "integer"}
//			name:  {type: "string"}
//			books: {toMany: "Book", mappedBy: "author"}
//		}
//	}
package schema
