package query

import (
	"fmt"
	"slices"

	"github.com/roach88/bulkstore/internal/ir"
)

// IDField addresses the record identity in selections and filters.
const IDField = ir.IDField

// Limits bounds relationship sub-queries.
type Limits struct {
	// MaxRelationDepth is how many levels of relationship sub-queries may be
	// nested below the outer query.
	MaxRelationDepth int

	// MaxRelations is how many relationship sub-queries one query may carry.
	MaxRelations int
}

// DefaultLimits mirrors the platform ceilings: one level of child
// relationship sub-queries, at most 55 of them per query.
var DefaultLimits = Limits{MaxRelationDepth: 1, MaxRelations: 55}

// Option configures a query at construction.
type Option func(*Query)

// WithLimits overrides DefaultLimits for the query and everything built from it.
func WithLimits(l Limits) Option {
	return func(q *Query) {
		q.limits = l
	}
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Relation is a named relationship sub-query, resolved by the store in the
// same round trip as the outer query.
type Relation struct {
	Name  string
	Query *Query
}

// Query is an immutable structured query.
//
// Builder methods never modify the receiver; each returns a new *Query.
// Once a step has failed, later steps return the failed query as is.
// Step-local problems (a bad operator, an over-deep relation, a non-positive
// limit) are recorded on the returned query and reported by Err. Checks that
// need the whole query (non-empty projection, grouping rules) run in
// Validate. Building a query has no side effects.
type Query struct {
	target     string
	fields     []string
	filter     Predicate
	relations  []Relation
	groupBy    []string
	aggregates []Aggregate
	orderBy    []Order
	limit      int
	hasLimit   bool
	offset     int
	limits     Limits
	err        error
}

// From starts a query against the target collection.
func From(target string, opts ...Option) *Query {
	q := &Query{target: target, limits: DefaultLimits}
	for _, opt := range opts {
		opt(q)
	}
	if target == "" {
		q.err = malformed(target, "target collection is required")
	}
	return q
}

// clone copies q so that a builder step can never alias the receiver's slices.
func (q *Query) clone() *Query {
	c := *q
	c.fields = slices.Clone(q.fields)
	c.relations = slices.Clone(q.relations)
	c.groupBy = slices.Clone(q.groupBy)
	c.aggregates = slices.Clone(q.aggregates)
	c.orderBy = slices.Clone(q.orderBy)
	return &c
}

// fail records the first error on a copy of q.
func (q *Query) fail(format string, args ...any) *Query {
	c := q.clone()
	if c.err == nil {
		c.err = malformed(q.target, fmt.Sprintf(format, args...))
	}
	return c
}

// Select appends fields to the projection. Duplicates are ignored.
func (q *Query) Select(fields ...string) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	for _, f := range fields {
		if f == "" {
			return q.fail("empty field name in selection")
		}
		if !slices.Contains(c.fields, f) {
			c.fields = append(c.fields, f)
		}
	}
	return c
}

// Where adds a filter. Repeated calls are combined with AND.
func (q *Query) Where(p Predicate) *Query {
	if q.err != nil {
		return q
	}
	if err := validatePredicate(p); err != nil {
		return q.fail("%s", err)
	}
	c := q.clone()
	if c.filter == nil {
		c.filter = p
	} else {
		c.filter = And{Predicates: []Predicate{c.filter, p}}
	}
	return c
}

// WithRelation attaches a relationship sub-query under name.
func (q *Query) WithRelation(name string, sub *Query) *Query {
	if q.err != nil {
		return q
	}
	switch {
	case name == "":
		return q.fail("relation name is required")
	case sub == nil:
		return q.fail("relation %s: sub-query is required", name)
	case sub.err != nil:
		return q.fail("relation %s: %s", name, reason(sub.err))
	}
	for _, r := range q.relations {
		if r.Name == name {
			return q.fail("duplicate relation %s", name)
		}
	}
	if len(q.relations)+1 > q.limits.MaxRelations {
		return q.fail("too many relation sub-queries: %d exceeds maximum %d", len(q.relations)+1, q.limits.MaxRelations)
	}
	if depth := sub.Depth() + 1; depth > q.limits.MaxRelationDepth {
		return q.fail("relation %s: nesting depth %d exceeds maximum %d", name, depth, q.limits.MaxRelationDepth)
	}
	c := q.clone()
	c.relations = append(c.relations, Relation{Name: name, Query: sub})
	return c
}

// GroupBy appends grouping fields.
func (q *Query) GroupBy(fields ...string) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	for _, f := range fields {
		if f == "" {
			return q.fail("empty field name in group by")
		}
		if !slices.Contains(c.groupBy, f) {
			c.groupBy = append(c.groupBy, f)
		}
	}
	return c
}

// Aggregate adds an aggregate with a positional alias (expr0, expr1, ...).
func (q *Query) Aggregate(fn AggFunc, field string) *Query {
	return q.AggregateAs(fn, field, fmt.Sprintf("expr%d", len(q.aggregates)))
}

// AggregateAs adds an aggregate under an explicit alias.
func (q *Query) AggregateAs(fn AggFunc, field, alias string) *Query {
	if q.err != nil {
		return q
	}
	agg := Aggregate{Func: fn, Field: field, Alias: alias}
	if err := agg.validate(); err != nil {
		return q.fail("%s", err)
	}
	for _, a := range q.aggregates {
		if a.Alias == alias {
			return q.fail("duplicate aggregate alias %s", alias)
		}
	}
	c := q.clone()
	c.aggregates = append(c.aggregates, agg)
	return c
}

// OrderBy appends an ascending sort key.
func (q *Query) OrderBy(field string) *Query {
	return q.order(field, false)
}

// OrderByDesc appends a descending sort key.
func (q *Query) OrderByDesc(field string) *Query {
	return q.order(field, true)
}

func (q *Query) order(field string, desc bool) *Query {
	if q.err != nil {
		return q
	}
	if field == "" {
		return q.fail("empty field name in order by")
	}
	c := q.clone()
	c.orderBy = append(c.orderBy, Order{Field: field, Desc: desc})
	return c
}

// Limit caps the number of rows. n must be positive.
func (q *Query) Limit(n int) *Query {
	if q.err != nil {
		return q
	}
	if n <= 0 {
		return q.fail("limit must be positive, got %d", n)
	}
	c := q.clone()
	c.limit = n
	c.hasLimit = true
	return c
}

// Offset skips n rows. n must not be negative.
func (q *Query) Offset(n int) *Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail("offset must not be negative, got %d", n)
	}
	c := q.clone()
	c.offset = n
	return c
}

// Err returns the first builder error, if any.
func (q *Query) Err() error {
	return q.err
}

// Build validates q and returns it.
func (q *Query) Build() (*Query, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Target returns the collection the query reads.
func (q *Query) Target() string { return q.target }

// Fields returns the projection.
func (q *Query) Fields() []string { return slices.Clone(q.fields) }

// Filter returns the filter tree, nil when unfiltered.
func (q *Query) Filter() Predicate { return q.filter }

// Relations returns the relationship sub-queries in attachment order.
func (q *Query) Relations() []Relation { return slices.Clone(q.relations) }

// GroupByFields returns the grouping fields.
func (q *Query) GroupByFields() []string { return slices.Clone(q.groupBy) }

// Aggregates returns the aggregate projections.
func (q *Query) Aggregates() []Aggregate { return slices.Clone(q.aggregates) }

// Ordering returns the ORDER BY terms.
func (q *Query) Ordering() []Order { return slices.Clone(q.orderBy) }

// RowLimit returns the row limit and whether one was set.
func (q *Query) RowLimit() (int, bool) { return q.limit, q.hasLimit }

// RowOffset returns the number of rows to skip.
func (q *Query) RowOffset() int { return q.offset }

// QueryLimits returns the relation limits the query was built with.
func (q *Query) QueryLimits() Limits { return q.limits }

// IsAggregate reports whether q projects aggregates.
func (q *Query) IsAggregate() bool { return len(q.aggregates) > 0 }

// Depth returns the relationship nesting depth; 0 without relations.
func (q *Query) Depth() int {
	depth := 0
	for _, r := range q.relations {
		if d := r.Query.Depth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}
