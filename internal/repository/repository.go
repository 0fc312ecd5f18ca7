package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/executor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/store"
)

// State is an entity's position in the write lifecycle.
type State int

const (
	// StateUnsaved: never saved through this repository and not loaded from it.
	StateUnsaved State = iota
	// StatePending: queued in the writer, not yet flushed.
	StatePending
	// StatePersisted: loaded from the store, or written by a successful flush.
	StatePersisted
	// StateFailed: the flush rejected the write. Save again to retry.
	StateFailed
	// StateDeleted: removed by a successful flush.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateUnsaved:
		return "unsaved"
	case StatePending:
		return "pending"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	case StateDeleted:
		return "deleted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Repository.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	cacheSize int
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithCache serves records already loaded by this repository from an LRU
// of size entries instead of the store. Writes flushed through the
// repository evict the entries they touch.
func WithCache(size int) Option {
	return func(c *config) {
		c.cacheSize = size
	}
}

// tracked is the write lifecycle of one entity.
type tracked struct {
	state State
	ref   string
	err   error
	gen   uint64
}

// queue marks t pending before its record reaches the writer, so a flush
// that settles it first is never overwritten. It returns the prior
// tracking and the generation of this enqueue.
func (t *tracked) queue() (tracked, uint64) {
	prev := *t
	t.gen++
	t.state = StatePending
	t.err = nil
	return prev, t.gen
}

// queued reports whether t is still pending from the enqueue numbered gen.
func (t *tracked) queued(gen uint64) bool {
	return t.gen == gen && t.state == StatePending
}

// restore undoes a failed enqueue unless t has moved on since.
func (t *tracked) restore(prev tracked, gen uint64) {
	if !t.queued(gen) {
		return
	}
	t.state = prev.state
	t.err = prev.err
	t.ref = prev.ref
}

// Repository reads and writes entities of one collection.
//
// Reads go through the shared Executor and cost one query reservation per
// call, however many ids they resolve. Writes are queued in the shared
// Writer and cost nothing until the unit of work flushes it.
//
// CRITICAL: Save and Delete never flush. Call Writer.Flush once at the end
// of the unit of work so every saved entity shares one reservation per
// write kind.
type Repository[E comparable] struct {
	mapping Mapping[E]
	exec    *executor.Executor
	writer  *batch.Writer
	logger  *slog.Logger
	cache   *lru.Cache[string, ir.Record]

	mu      sync.Mutex
	tracked map[E]*tracked
}

// New returns a repository for mapping over the shared executor and writer.
func New[E comparable](mapping Mapping[E], exec *executor.Executor, w *batch.Writer, opts ...Option) (*Repository[E], error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Repository[E]{
		mapping: mapping,
		exec:    exec,
		writer:  w,
		logger:  cfg.logger,
		tracked: make(map[E]*tracked),
	}
	if cfg.cacheSize > 0 {
		cache, err := lru.New[string, ir.Record](cfg.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("%s repository cache: %w", mapping.Collection, err)
		}
		r.cache = cache
	}
	return r, nil
}

// Collection returns the collection the repository maps.
func (r *Repository[E]) Collection() string { return r.mapping.Collection }

// selectAll starts a query projecting every mapped field.
func (r *Repository[E]) selectAll() *query.Query {
	return query.From(r.mapping.Collection).Select(r.mapping.Fields()...)
}

// GetByID loads one entity. A missing id is an *executor.NotFoundError.
func (r *Repository[E]) GetByID(ctx context.Context, id string) (E, error) {
	var zero E
	if rec, ok := r.cached(id); ok {
		return r.load(rec)
	}
	rec, err := r.exec.FetchOne(ctx, r.selectAll().Where(query.Eq(query.IDField, ir.Ref(id))))
	if err != nil {
		return zero, err
	}
	r.remember(rec)
	return r.load(rec)
}

// GetByIDs loads every entity in ids with a single query, whatever the
// number of ids. Duplicates are collapsed, results follow the first-seen
// order of ids, and ids with no record are left out. An empty set, or one
// fully served from the cache, makes no query.
func (r *Repository[E]) GetByIDs(ctx context.Context, ids []string) ([]E, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	found := make(map[string]ir.Record, len(unique))
	var missing []string
	for _, id := range unique {
		if rec, ok := r.cached(id); ok {
			found[id] = rec
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		recs, err := r.exec.FetchMany(ctx, r.selectAll().Where(query.InIDs(missing...)))
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			r.remember(rec)
			found[rec.ID] = rec
		}
	}

	out := make([]E, 0, len(found))
	for _, id := range unique {
		rec, ok := found[id]
		if !ok {
			continue
		}
		e, err := r.load(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	r.logger.Debug("repository get by ids",
		"collection", r.mapping.Collection,
		"requested", len(unique),
		"fetched", len(missing),
		"found", len(out))
	return out, nil
}

// FindOptions shapes a Find.
type FindOptions struct {
	OrderBy []query.Order
	Limit   int
	Offset  int
}

// Find loads the entities matching where (nil for all) with one query.
func (r *Repository[E]) Find(ctx context.Context, where query.Predicate, opts FindOptions) ([]E, error) {
	q := r.selectAll()
	if where != nil {
		q = q.Where(where)
	}
	for _, o := range opts.OrderBy {
		if o.Desc {
			q = q.OrderByDesc(o.Field)
		} else {
			q = q.OrderBy(o.Field)
		}
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	recs, err := r.exec.FetchMany(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]E, 0, len(recs))
	for _, rec := range recs {
		r.remember(rec)
		e, err := r.load(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

const countAlias = "n"

// Count returns how many records match where (nil for all) with one
// aggregate query.
func (r *Repository[E]) Count(ctx context.Context, where query.Predicate) (int64, error) {
	q := query.From(r.mapping.Collection).AggregateAs(query.Count, "", countAlias)
	if where != nil {
		q = q.Where(where)
	}
	rows, err := r.exec.FetchAggregates(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("count %s: expected one row, got %d", r.mapping.Collection, len(rows))
	}
	n, ok := rows[0].Value(countAlias).(ir.Int)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected value %s", r.mapping.Collection, ir.Format(rows[0].Value(countAlias)))
	}
	return int64(n), nil
}

// Save queues e for writing: an insert when it has no ID, an update
// otherwise. Saving an unflushed insert again replaces the queued record.
// When the flush succeeds the store-assigned ID is written back to e.
func (r *Repository[E]) Save(ctx context.Context, e E) error {
	if r.mapping.Validate != nil {
		if err := r.mapping.Validate(e); err != nil {
			return err
		}
	}
	rec := r.mapping.ToRecord(e)
	kind := store.Update
	if rec.ID == "" {
		kind = store.Insert
	}

	r.mu.Lock()
	t := r.track(e)
	rec.Ref = t.ref
	prev, gen := t.queue()
	r.mu.Unlock()

	identity, err := r.writer.Enqueue(kind, rec, batch.OnResult(func(o batch.Outcome) {
		r.settle(e, o)
	}))

	r.mu.Lock()
	if err != nil {
		t.restore(prev, gen)
	} else if t.queued(gen) {
		t.ref = identity
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "repository save queued",
		"collection", r.mapping.Collection,
		"kind", kind,
		"identity", identity)
	return nil
}

// Delete queues e for deletion. e must have an ID.
func (r *Repository[E]) Delete(ctx context.Context, e E) error {
	id := r.mapping.ID(e)
	if id == "" {
		return fmt.Errorf("delete %s: %w", r.mapping.Collection, store.ErrMissingID)
	}
	rec := ir.NewRecord(r.mapping.Collection)
	rec.ID = id

	r.mu.Lock()
	t := r.track(e)
	prev, gen := t.queue()
	r.mu.Unlock()

	if _, err := r.writer.Enqueue(store.Delete, rec, batch.OnResult(func(o batch.Outcome) {
		r.settle(e, o)
	})); err != nil {
		r.mu.Lock()
		t.restore(prev, gen)
		r.mu.Unlock()
		return err
	}

	r.logger.DebugContext(ctx, "repository delete queued",
		"collection", r.mapping.Collection,
		"id", id)
	return nil
}

// State returns where e is in the write lifecycle.
func (r *Repository[E]) State(e E) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tracked[e]; ok {
		return t.state
	}
	return StateUnsaved
}

// Failure returns the error of e's last failed write, or nil.
func (r *Repository[E]) Failure(e E) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tracked[e]; ok && t.state == StateFailed {
		return t.err
	}
	return nil
}

// track returns e's lifecycle entry, creating it. Callers hold r.mu.
func (r *Repository[E]) track(e E) *tracked {
	t, ok := r.tracked[e]
	if !ok {
		t = &tracked{state: StateUnsaved}
		r.tracked[e] = t
	}
	return t
}

// settle applies a flush outcome to e. It runs after the writer has
// released its lock.
func (r *Repository[E]) settle(e E, o batch.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.track(e)
	if !o.Success {
		t.state = StateFailed
		t.err = o.Err
		return
	}
	switch o.Kind {
	case store.Insert:
		r.mapping.SetID(e, o.ID)
		t.state = StatePersisted
	case store.Delete:
		t.state = StateDeleted
	default:
		t.state = StatePersisted
	}
	t.ref = ""
	t.err = nil
	if r.cache != nil && o.ID != "" {
		r.cache.Remove(o.ID)
	}
}

// load maps rec to a fresh entity and records it as persisted.
func (r *Repository[E]) load(rec ir.Record) (E, error) {
	e, err := r.mapping.FromRecord(rec)
	if err != nil {
		var zero E
		return zero, err
	}
	r.mu.Lock()
	r.track(e).state = StatePersisted
	r.mu.Unlock()
	return e, nil
}

func (r *Repository[E]) cached(id string) (ir.Record, bool) {
	if r.cache == nil || id == "" {
		return ir.Record{}, false
	}
	rec, ok := r.cache.Get(id)
	if !ok {
		return ir.Record{}, false
	}
	r.logger.Debug("repository cache hit", "collection", r.mapping.Collection, "id", id)
	return rec.Clone(), true
}

func (r *Repository[E]) remember(rec ir.Record) {
	if r.cache == nil || rec.ID == "" {
		return
	}
	r.cache.Add(rec.ID, rec.Clone())
}
