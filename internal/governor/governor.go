package governor

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies the resource a reservation draws on.
type Kind string

const (
	// KindQuery is one read query against the record store.
	KindQuery Kind = "query"

	// KindWriteBatch is one bulk write call against the record store.
	KindWriteBatch Kind = "write_batch"
)

// Limits are the per-transaction ceilings.
type Limits struct {
	QueryCeiling int
	WriteCeiling int
}

// DefaultLimits are the platform ceilings for one synchronous transaction.
var DefaultLimits = Limits{QueryCeiling: 100, WriteCeiling: 150}

// Usage is a snapshot of the governor's counters.
type Usage struct {
	Scope              string `json:"scope"`
	QueriesIssued      int    `json:"queries_issued"`
	QueryCeiling       int    `json:"query_ceiling"`
	WriteBatchesIssued int    `json:"write_batches_issued"`
	WriteCeiling       int    `json:"write_ceiling"`
}

// Option configures a Governor.
type Option func(*Governor)

// WithScopeGenerator overrides how scope tokens are minted on Reset.
// Tests use it for deterministic scopes.
func WithScopeGenerator(gen func() string) Option {
	return func(g *Governor) {
		g.newScope = gen
	}
}

// WithLogger sets the logger for denials and resets.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) {
		g.logger = l
	}
}

// Governor enforces hard per-transaction ceilings on read queries and
// write batches.
//
// One Governor is shared by pointer across every executor, writer and
// repository participating in a transaction. It is the only shared mutable
// state in the data-access layer.
//
// INVARIANTS:
//   - Counters never exceed their ceilings.
//   - Check and increment happen as one step under the mutex; a denied
//     reservation leaves the counter unchanged.
//   - Behaviour is identical for one or many concurrent callers.
type Governor struct {
	mu       sync.Mutex
	limits   Limits
	scope    string
	queries  int
	writes   int
	newScope func() string
	logger   *slog.Logger
	metrics  *metrics
}

// New creates a governor with the given ceilings and a fresh scope.
func New(limits Limits, opts ...Option) *Governor {
	g := &Governor{
		limits:   limits,
		newScope: func() string { return uuid.Must(uuid.NewV7()).String() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.scope = g.newScope()
	return g
}

// ReserveQuery reserves one read query. It returns *QuotaExceededError
// when the query ceiling is reached.
func (g *Governor) ReserveQuery() error {
	return g.reserve(KindQuery)
}

// ReserveWriteBatch reserves one bulk write call. It returns
// *QuotaExceededError when the write ceiling is reached.
func (g *Governor) ReserveWriteBatch() error {
	return g.reserve(KindWriteBatch)
}

func (g *Governor) reserve(kind Kind) error {
	g.mu.Lock()
	counter, limit := &g.queries, g.limits.QueryCeiling
	if kind == KindWriteBatch {
		counter, limit = &g.writes, g.limits.WriteCeiling
	}
	if *counter >= limit {
		scope := g.scope
		g.mu.Unlock()
		g.metrics.observe(kind, false)
		g.logger.Warn("quota exceeded", "scope", scope, "kind", string(kind), "limit", limit)
		return &QuotaExceededError{Kind: kind, Limit: limit, Scope: scope}
	}
	*counter++
	g.metrics.usage(g.queries, g.writes)
	g.mu.Unlock()
	g.metrics.observe(kind, true)
	return nil
}

// Reset clears both counters and starts a new scope. The surrounding
// framework calls it once at the start of each transaction.
func (g *Governor) Reset() {
	g.mu.Lock()
	prev := Usage{Scope: g.scope, QueriesIssued: g.queries, WriteBatchesIssued: g.writes}
	g.queries = 0
	g.writes = 0
	g.metrics.usage(0, 0)
	g.scope = g.newScope()
	scope := g.scope
	g.mu.Unlock()

	g.logger.Debug("governor reset",
		"previous_scope", prev.Scope,
		"scope", scope,
		"queries", prev.QueriesIssued,
		"write_batches", prev.WriteBatchesIssued)
}

// Usage returns a consistent snapshot of the counters.
func (g *Governor) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Usage{
		Scope:              g.scope,
		QueriesIssued:      g.queries,
		QueryCeiling:       g.limits.QueryCeiling,
		WriteBatchesIssued: g.writes,
		WriteCeiling:       g.limits.WriteCeiling,
	}
}

// Limits returns the configured ceilings.
func (g *Governor) Limits() Limits {
	return g.limits
}
