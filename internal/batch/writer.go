package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/store"
)

// BatchReport is the outcome of one bulk write call.
type BatchReport struct {
	Collection string
	Kind       store.Kind
	Outcomes   []Outcome
}

// FlushReport lists the bulk write calls one Flush made, in call order.
type FlushReport struct {
	Batches []BatchReport
}

// Succeeded returns the successful outcomes across all batches.
func (r *FlushReport) Succeeded() []Outcome {
	return r.filter(true)
}

// Failed returns the failed outcomes across all batches.
func (r *FlushReport) Failed() []Outcome {
	return r.filter(false)
}

func (r *FlushReport) filter(success bool) []Outcome {
	out := []Outcome{}
	for _, b := range r.Batches {
		for _, o := range b.Outcomes {
			if o.Success == success {
				out = append(out, o)
			}
		}
	}
	return out
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithRefGenerator overrides how client refs are minted for records that
// have neither an ID nor a Ref.
func WithRefGenerator(gen func() string) Option {
	return func(w *Writer) {
		w.newRef = gen
	}
}

// FlushOption configures one Flush.
type FlushOption func(*flushConfig)

type flushConfig struct {
	allOrNone bool
}

// AllOrNothing makes every bulk write call of the flush all-or-none: one
// failed record rolls back its whole batch.
func AllOrNothing() FlushOption {
	return func(c *flushConfig) {
		c.allOrNone = true
	}
}

// Writer collects writes for a unit of work and flushes them as one bulk
// call per collection and kind.
//
// Flush order is deterministic: collections by first enqueue, and within a
// collection insert, upsert, update, delete.
//
// INVARIANTS:
//   - Enqueue never touches the store or the governor
//   - Each bulk call is preceded by exactly one write-batch reservation
//   - An empty Flush reserves nothing
//
// Writer is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	store   store.Store
	gov     *governor.Governor
	pending *PendingWriteSet
	logger  *slog.Logger
	newRef  func() string
}

// NewWriter creates a writer over s, charging write batches to gov.
func NewWriter(s store.Store, gov *governor.Governor, opts ...Option) *Writer {
	w := &Writer{
		store:   s,
		gov:     gov,
		pending: NewPendingWriteSet(),
		logger:  slog.Default(),
		newRef:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue adds rec to the pending set under kind and returns the identity
// it is tracked by: its ID, else its Ref. A Ref is assigned when the
// record has neither.
func (w *Writer) Enqueue(kind store.Kind, rec ir.Record, opts ...EnqueueOption) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.ID == "" && rec.Ref == "" {
		rec.Ref = w.newRef()
	}
	if err := w.pending.Add(kind, rec, opts...); err != nil {
		return "", err
	}
	return rec.Identity(), nil
}

// Pending returns the number of records waiting to be flushed.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Len()
}

// Discard drops every pending write without notifying callbacks.
func (w *Writer) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.pending.Len()
	w.pending.Clear()
	if n > 0 {
		w.logger.Debug("discarded pending writes", "records", n)
	}
}

// Flush writes every pending record, one reservation and one bulk call per
// collection and kind.
//
// A quota denial stops the flush: the denied batch and everything after it
// stay pending, and the *governor.QuotaExceededError is returned with the
// report of batches already written. A bulk call that fails as a whole
// marks its records failed, removes them from the pending set and stops
// the flush with *ExecutionError. Per-record failures do not stop it.
func (w *Writer) Flush(ctx context.Context, opts ...FlushOption) (*FlushReport, error) {
	var cfg flushConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	w.mu.Lock()
	report, notify, err := w.flush(ctx, cfg)
	w.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return report, err
}

func (w *Writer) flush(ctx context.Context, cfg flushConfig) (*FlushReport, []func(), error) {
	report := &FlushReport{Batches: []BatchReport{}}
	var notify []func()

	for _, collection := range w.pending.Collections() {
		for _, kind := range store.Kinds {
			if w.pending.count(collection, kind) == 0 {
				continue
			}
			if err := w.gov.ReserveWriteBatch(); err != nil {
				return report, notify, err
			}

			entries := w.pending.take(collection, kind)
			records := make([]ir.Record, len(entries))
			for i, e := range entries {
				records[i] = e.rec
			}
			results, err := w.store.BulkWrite(ctx, kind, records, store.BulkOptions{AllOrNone: cfg.allOrNone})
			if err == nil && len(results) != len(records) {
				err = fmt.Errorf("store returned %d results for %d records", len(results), len(records))
			}

			var callErr *ExecutionError
			if err != nil {
				callErr = &ExecutionError{Collection: collection, Kind: kind, Cause: err}
			}
			batch := BatchReport{Collection: collection, Kind: kind, Outcomes: make([]Outcome, len(entries))}
			for i, e := range entries {
				o := Outcome{Ref: e.rec.Ref, ID: e.rec.ID, Kind: kind}
				if callErr != nil {
					o.Err = callErr
				} else {
					o.Success = results[i].Success
					o.Err = results[i].Err
					if results[i].AssignedID != "" {
						o.ID = results[i].AssignedID
					}
				}
				batch.Outcomes[i] = o
				for _, fn := range e.onResult {
					notify = append(notify, func() { fn(o) })
				}
			}
			report.Batches = append(report.Batches, batch)

			if callErr != nil {
				w.logger.Error("bulk write failed", "collection", collection, "kind", string(kind), "records", len(records), "error", err)
				return report, notify, callErr
			}
			w.logger.Debug("bulk write", "collection", collection, "kind", string(kind), "records", len(records))
		}
	}
	return report, notify, nil
}
