// Package repository maps domain entities to records and back.
//
// A Repository turns entity-level intent into queries on a shared
// executor and queued writes on a shared batch writer. Both share the
// unit of work's governor, so repository calls from nested services draw
// on one quota.
//
// GetByIDs resolves any number of ids with one query. Save and Delete only
// queue; nothing is written until the unit of work flushes the writer.
package repository
