package batch

import (
	"fmt"
	"slices"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/store"
)

// Outcome is the flush result for one enqueued record.
type Outcome struct {
	Ref     string
	ID      string
	Kind    store.Kind
	Success bool
	Err     error
}

// EnqueueOption configures one enqueued write.
type EnqueueOption func(*entry)

// OnResult registers fn to receive the record's outcome once its batch has
// been written. Callbacks run after Flush releases the writer.
func OnResult(fn func(Outcome)) EnqueueOption {
	return func(e *entry) {
		if fn != nil {
			e.onResult = append(e.onResult, fn)
		}
	}
}

type entry struct {
	kind     store.Kind
	key      string
	rec      ir.Record
	onResult []func(Outcome)
}

// queue holds one collection's pending writes.
type queue struct {
	byKind   map[store.Kind][]*entry
	identity map[string]*entry
}

// PendingWriteSet groups pending writes by collection, then by kind, in
// enqueue order. Each record identity appears at most once.
//
// PendingWriteSet is not safe for concurrent use; Writer guards it.
type PendingWriteSet struct {
	order  []string
	queues map[string]*queue
}

// NewPendingWriteSet returns an empty set.
func NewPendingWriteSet() *PendingWriteSet {
	return &PendingWriteSet{queues: make(map[string]*queue)}
}

// Add enqueues rec under kind. rec must carry an ID or a Ref.
//
// Re-adding an identity under the same kind replaces the queued record in
// place, keeping its position; callbacks accumulate. Under a different
// kind it fails with *ConflictingOperationError.
func (p *PendingWriteSet) Add(kind store.Kind, rec ir.Record, opts ...EnqueueOption) error {
	if !kind.Valid() {
		return fmt.Errorf("enqueue: unknown kind %q", string(kind))
	}
	if rec.Collection == "" {
		return fmt.Errorf("enqueue %s: record has no collection", kind)
	}
	if kind.RequiresID() && rec.ID == "" {
		return fmt.Errorf("enqueue %s %s: %w", kind, rec.Collection, store.ErrMissingID)
	}
	key := rec.Identity()
	if key == "" {
		return fmt.Errorf("enqueue %s %s: record has neither id nor ref", kind, rec.Collection)
	}

	q, ok := p.queues[rec.Collection]
	if !ok {
		q = &queue{byKind: make(map[store.Kind][]*entry), identity: make(map[string]*entry)}
		p.queues[rec.Collection] = q
		p.order = append(p.order, rec.Collection)
	}

	if existing, ok := q.identity[key]; ok {
		if existing.kind != kind {
			return &ConflictingOperationError{
				Collection: rec.Collection,
				Identity:   key,
				Pending:    existing.kind,
				Requested:  kind,
			}
		}
		existing.rec = rec.Clone()
		for _, opt := range opts {
			opt(existing)
		}
		return nil
	}

	e := &entry{kind: kind, key: key, rec: rec.Clone()}
	for _, opt := range opts {
		opt(e)
	}
	q.byKind[kind] = append(q.byKind[kind], e)
	q.identity[key] = e
	return nil
}

// Len returns the number of pending records.
func (p *PendingWriteSet) Len() int {
	n := 0
	for _, q := range p.queues {
		n += len(q.identity)
	}
	return n
}

// Collections returns collections with pending writes, in first-enqueue
// order.
func (p *PendingWriteSet) Collections() []string {
	return slices.Clone(p.order)
}

// Records returns the pending records of one collection and kind.
func (p *PendingWriteSet) Records(collection string, kind store.Kind) []ir.Record {
	q, ok := p.queues[collection]
	if !ok {
		return nil
	}
	out := make([]ir.Record, len(q.byKind[kind]))
	for i, e := range q.byKind[kind] {
		out[i] = e.rec.Clone()
	}
	return out
}

// count returns the number of pending records of one collection and kind.
func (p *PendingWriteSet) count(collection string, kind store.Kind) int {
	q, ok := p.queues[collection]
	if !ok {
		return 0
	}
	return len(q.byKind[kind])
}

// take removes and returns the entries of one collection and kind.
func (p *PendingWriteSet) take(collection string, kind store.Kind) []*entry {
	q, ok := p.queues[collection]
	if !ok {
		return nil
	}
	entries := q.byKind[kind]
	delete(q.byKind, kind)
	for _, e := range entries {
		delete(q.identity, e.key)
	}
	if len(q.identity) == 0 {
		delete(p.queues, collection)
		p.order = slices.DeleteFunc(p.order, func(c string) bool { return c == collection })
	}
	return entries
}

// Clear drops every pending write.
func (p *PendingWriteSet) Clear() {
	p.order = nil
	p.queues = make(map[string]*queue)
}
