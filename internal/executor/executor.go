package executor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

const tracerName = "github.com/roach88/bulkstore/internal/executor"

// Store operations named in spans and ExecutionError.Op.
const (
	OpFetchOne        = "fetch_one"
	OpFetchMany       = "fetch_many"
	OpFetchAggregates = "fetch_aggregates"
)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithTracer sets the tracer for store-call spans. Default: the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithCatalog resolves queries against c before reserving, so unknown
// collections and fields fail as malformed without spending quota.
func WithCatalog(c *schema.Catalog) Option {
	return func(e *Executor) {
		e.catalog = c
	}
}

// Executor issues structured queries against a store, one governor
// reservation per call.
//
// Every call runs:
//  1. Validate the query (MalformedQueryError, nothing reserved)
//  2. Reserve one query (QuotaExceededError returned unchanged)
//  3. One store round trip (failures wrapped in ExecutionError)
//
// Executors hold no per-call state and are safe for concurrent use.
type Executor struct {
	store   store.Store
	gov     *governor.Governor
	catalog *schema.Catalog
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates an executor over s, charging reservations to gov.
func New(s store.Store, gov *governor.Governor, opts ...Option) *Executor {
	e := &Executor{
		store:  s,
		gov:    gov,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Governor returns the governor reservations are charged to.
func (e *Executor) Governor() *governor.Governor {
	return e.gov
}

// FetchOne returns the single row q matches: *NotFoundError for none,
// *MultipleResultsError for more than one.
func (e *Executor) FetchOne(ctx context.Context, q *query.Query) (ir.Record, error) {
	rows, err := e.fetch(ctx, OpFetchOne, q)
	if err != nil {
		return ir.Record{}, err
	}
	switch len(rows) {
	case 0:
		return ir.Record{}, &NotFoundError{Target: q.Target(), Query: q.Fingerprint()}
	case 1:
		return rows[0], nil
	default:
		return ir.Record{}, &MultipleResultsError{Target: q.Target(), Count: len(rows)}
	}
}

// FetchMany returns every row q matches; an empty slice when none do.
func (e *Executor) FetchMany(ctx context.Context, q *query.Query) ([]ir.Record, error) {
	rows, err := e.fetch(ctx, OpFetchMany, q)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ir.Record{}
	}
	return rows, nil
}

// FetchAggregates runs an aggregate query.
func (e *Executor) FetchAggregates(ctx context.Context, q *query.Query) ([]store.AggregateRow, error) {
	if err := e.prepare(q, true); err != nil {
		return nil, err
	}
	if err := e.gov.ReserveQuery(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, OpFetchAggregates, q)
	defer span.End()
	rows, err := e.store.AggregateQuery(ctx, q)
	if err != nil {
		return nil, e.failed(span, OpFetchAggregates, q, err)
	}
	span.SetAttributes(attribute.Int("bulkstore.rows", len(rows)))
	e.logger.Debug("aggregate query", "collection", q.Target(), "groups", len(rows))
	if rows == nil {
		rows = []store.AggregateRow{}
	}
	return rows, nil
}

func (e *Executor) fetch(ctx context.Context, op string, q *query.Query) ([]ir.Record, error) {
	if err := e.prepare(q, false); err != nil {
		return nil, err
	}
	if err := e.gov.ReserveQuery(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, op, q)
	defer span.End()
	rows, err := e.store.Query(ctx, q)
	if err != nil {
		return nil, e.failed(span, op, q, err)
	}
	span.SetAttributes(attribute.Int("bulkstore.rows", len(rows)))
	e.logger.Debug("query", "op", op, "collection", q.Target(), "rows", len(rows))
	return rows, nil
}

// prepare validates q for a row or aggregate call.
func (e *Executor) prepare(q *query.Query, aggregate bool) error {
	if err := q.Validate(); err != nil {
		return err
	}
	switch {
	case aggregate && !q.IsAggregate():
		return &query.MalformedQueryError{Target: q.Target(), Reason: "aggregate fetch requires at least one aggregate"}
	case !aggregate && q.IsAggregate():
		return &query.MalformedQueryError{Target: q.Target(), Reason: "aggregate queries must use FetchAggregates"}
	}
	if e.catalog != nil {
		if err := e.catalog.CheckQuery(q); err != nil {
			return &query.MalformedQueryError{Target: q.Target(), Reason: err.Error()}
		}
	}
	return nil
}

func (e *Executor) startSpan(ctx context.Context, op string, q *query.Query) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "bulkstore."+op, trace.WithAttributes(
		attribute.String("bulkstore.collection", q.Target()),
		attribute.String("bulkstore.query", q.Fingerprint()),
	))
}

func (e *Executor) failed(span trace.Span, op string, q *query.Query, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("store call failed", "op", op, "collection", q.Target(), "error", err)
	return &ExecutionError{Op: op, Target: q.Target(), Cause: err}
}
