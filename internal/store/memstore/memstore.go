package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

// Op names a store call for counting and failure injection.
type Op string

const (
	OpQuery     Op = "query"
	OpBulkWrite Op = "bulk_write"
	OpAggregate Op = "aggregate"
)

// Calls counts store round trips by operation.
type Calls struct {
	Queries    int
	BulkWrites int
	Aggregates int
}

// WriteCall records one BulkWrite invocation.
type WriteCall struct {
	Collection string
	Kind       store.Kind
	Records    int
	AllOrNone  bool
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides UUIDv7 id assignment on insert.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// Store is an in-memory, catalog-aware record store.
//
// It evaluates filters with SQL three-valued logic, resolves relationship
// sub-queries and aggregates, and orders rows the way the SQL store does,
// so tests written against it hold against a database.
//
// Failure hooks let tests simulate an unavailable store (FailCalls) or
// per-record rejections (RejectRecords).
type Store struct {
	mu      sync.Mutex
	catalog *schema.Catalog
	tables  map[string]map[string]ir.Record
	newID   func() string

	calls   Calls
	writes  []WriteCall
	failOp  map[Op]error
	rejectF func(kind store.Kind, rec ir.Record) error
}

var _ store.Store = (*Store)(nil)

// New creates an empty store over the catalog's collections.
func New(catalog *schema.Catalog, opts ...Option) *Store {
	s := &Store{
		catalog: catalog,
		tables:  make(map[string]map[string]ir.Record),
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
		failOp:  make(map[Op]error),
	}
	for _, col := range catalog.Collections() {
		s.tables[col.Name] = make(map[string]ir.Record)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailCalls makes every call of op fail with err until cleared with a nil err.
func (s *Store) FailCalls(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOp, op)
		return
	}
	s.failOp[op] = err
}

// RejectRecords installs a per-record check run before each write. A
// non-nil result fails that record only.
func (s *Store) RejectRecords(fn func(kind store.Kind, rec ir.Record) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectF = fn
}

// Calls returns the round-trip counts so far.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Writes returns every BulkWrite call in order.
func (s *Store) Writes() []WriteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WriteCall{}, s.writes...)
}

// Len returns the number of records in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[collection])
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, q *query.Query) ([]ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Queries++

	if err := s.precheck(ctx, OpQuery, q); err != nil {
		return nil, err
	}
	if q.IsAggregate() {
		return nil, fmt.Errorf("query %s: aggregate queries go through AggregateQuery", q.Target())
	}
	rows, err := s.selectRows(q)
	if err != nil {
		return nil, err
	}
	rows = page(rows, q)

	out := make([]ir.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Project(q.Fields())
	}
	if err := s.attachRelations(q, out); err != nil {
		return nil, err
	}
	slog.Debug("memstore query", "collection", q.Target(), "rows", len(out))
	return out, nil
}

// AggregateQuery implements store.Store.
func (s *Store) AggregateQuery(ctx context.Context, q *query.Query) ([]store.AggregateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Aggregates++

	if err := s.precheck(ctx, OpAggregate, q); err != nil {
		return nil, err
	}
	if !q.IsAggregate() {
		return nil, fmt.Errorf("aggregate query %s: no aggregates", q.Target())
	}
	rows, err := s.selectRows(q)
	if err != nil {
		return nil, err
	}
	return s.aggregate(q, rows)
}

func (s *Store) precheck(ctx context.Context, op Op, q *query.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.failOp[op]; err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}
	return s.catalog.CheckQuery(q)
}

// selectRows returns the filtered rows of q's target in q's order.
func (s *Store) selectRows(q *query.Query) ([]ir.Record, error) {
	col, _ := s.catalog.Collection(q.Target())
	var rows []ir.Record
	for _, rec := range s.tables[col.Name] {
		ok, err := s.match(col, q.Filter(), rec)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, rec)
		}
	}
	sortRows(rows, q.Ordering())
	return rows, nil
}

func page(rows []ir.Record, q *query.Query) []ir.Record {
	offset := q.RowOffset()
	if offset >= len(rows) {
		return []ir.Record{}
	}
	rows = rows[offset:]
	if limit, ok := q.RowLimit(); ok && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// attachRelations fills Related for every parent, one pass per relation.
func (s *Store) attachRelations(q *query.Query, parents []ir.Record) error {
	for _, r := range q.Relations() {
		rel, _ := s.catalog.Relation(q.Target(), r.Name)
		children, err := s.selectRows(r.Query)
		if err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
		byParent := make(map[string][]ir.Record)
		for _, child := range children {
			fk := ir.Format(child.Get(rel.ForeignKey))
			byParent[fk] = append(byParent[fk], child)
		}
		for i := range parents {
			rows := page(byParent[parents[i].ID], r.Query)
			related := make([]ir.Record, len(rows))
			for j, row := range rows {
				related[j] = row.Project(r.Query.Fields())
			}
			if err := s.attachRelations(r.Query, related); err != nil {
				return err
			}
			if parents[i].Related == nil {
				parents[i].Related = make(map[string][]ir.Record)
			}
			parents[i].Related[r.Name] = related
		}
	}
	return nil
}
