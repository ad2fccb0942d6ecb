// Package ir provides the typed value representation shared by every qgraph
// layer: filter criteria values, batch keys and canonical fingerprints.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is a sealed interface; backends switch over it exhaustively
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for fingerprints and golden comparisons
//   - Floats are allowed but NaN and infinities are rejected at the boundary
package ir
