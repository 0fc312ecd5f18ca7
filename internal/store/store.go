package store

import (
	"context"
	"errors"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// Kind is a bulk write operation.
type Kind string

const (
	Insert Kind = "insert"
	Update Kind = "update"
	Delete Kind = "delete"
	Upsert Kind = "upsert"
)

// Kinds lists every write kind in flush order: creates before changes,
// deletes last.
var Kinds = []Kind{Insert, Upsert, Update, Delete}

// Valid reports whether k is a known write kind.
func (k Kind) Valid() bool {
	switch k {
	case Insert, Update, Delete, Upsert:
		return true
	}
	return false
}

// RequiresID reports whether records written with k must carry an ID.
func (k Kind) RequiresID() bool {
	return k == Update || k == Delete
}

// BulkOptions control one BulkWrite call.
type BulkOptions struct {
	// AllOrNone rolls back every record in the call when any one fails.
	AllOrNone bool
}

// Result is the outcome of one record in a BulkWrite, at the same index as
// the record.
type Result struct {
	Success    bool
	AssignedID string
	Err        error
}

// AggregateRow is one group of an aggregate query. Group holds the
// group-by values in group-by order; Values holds aggregates by alias.
type AggregateRow struct {
	Group  []ir.Value
	Values map[string]ir.Value
}

// Value returns the aggregate under alias, Null when absent.
func (r AggregateRow) Value(alias string) ir.Value {
	v, ok := r.Values[alias]
	if !ok || v == nil {
		return ir.Null{}
	}
	return v
}

// Store is the record store boundary. The data-access core consumes it
// and never implements it.
//
// Query and AggregateQuery are one round trip each; relationship
// sub-queries are resolved inside the same call. BulkWrite applies one
// kind of operation to many records in one call and reports per-record
// outcomes in input order.
type Store interface {
	Query(ctx context.Context, q *query.Query) ([]ir.Record, error)
	BulkWrite(ctx context.Context, kind Kind, records []ir.Record, opts BulkOptions) ([]Result, error)
	AggregateQuery(ctx context.Context, q *query.Query) ([]AggregateRow, error)
}

// Per-record failures reported in Result.Err.
var (
	// ErrRecordNotFound is reported for an update or delete of an unknown ID.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateID is reported for an insert whose ID already exists.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrMissingID is reported for an update or delete without an ID.
	ErrMissingID = errors.New("record has no id")

	// ErrRolledBack is reported for records that succeeded on their own but
	// were rolled back because another record in an AllOrNone call failed.
	ErrRolledBack = errors.New("rolled back: another record in the batch failed")
)
