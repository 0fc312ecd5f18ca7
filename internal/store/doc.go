// Package store defines the record store boundary: the three calls the
// data-access layer makes against persisted records, and the value types
// that cross it.
//
// # Implementations
//
//   - memstore: in-memory, for tests and reference semantics
//   - sqlstore: database/sql over SQLite (default) or Postgres
//
// Both are catalog-aware: they resolve relationship sub-queries through
// schema.Catalog and decode columns by declared field kind.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Rows come back in the query's ORDER BY with an "Id" tiebreaker
//   - Reads return empty slices, never nil
//
// Per-Record Outcomes
//   - BulkWrite returns one Result per input record, in input order
//   - A non-nil error from BulkWrite means the whole call failed and no
//     record was written
//
// Write Payloads
//   - Only fields present on the record are written; absent fields are
//     left untouched on update and stored as NULL on insert
//   - Insert assigns a UUIDv7 id unless the record carries one
package store
