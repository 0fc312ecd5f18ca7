package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/bulkstore/internal/ir"
)

// Validate performs the whole-query checks and returns the first problem as
// a *MalformedQueryError. A sticky builder error is returned unchanged.
//
// Rules:
//  1. The projection is non-empty unless the query aggregates.
//  2. With aggregates, every selected field is grouped, every ORDER BY
//     names a grouped field or an aggregate alias, and no relations are
//     attached.
//  3. GroupBy requires at least one aggregate.
//  4. Relationship sub-queries are valid on their own.
//
// Validate is a pure function with no side effects.
func (q *Query) Validate() error {
	if q == nil {
		return malformed("", "nil query")
	}
	if q.err != nil {
		return q.err
	}
	if len(q.fields) == 0 && len(q.aggregates) == 0 {
		return malformed(q.target, "field list is empty")
	}
	if len(q.groupBy) > 0 && len(q.aggregates) == 0 {
		return malformed(q.target, "group by requires an aggregate")
	}
	if len(q.aggregates) > 0 {
		if len(q.relations) > 0 {
			return malformed(q.target, "relation sub-queries are not allowed in aggregate queries")
		}
		for _, f := range q.fields {
			if !slices.Contains(q.groupBy, f) {
				return malformed(q.target, fmt.Sprintf("field %s must be grouped or aggregated", f))
			}
		}
		for _, o := range q.orderBy {
			if !slices.Contains(q.groupBy, o.Field) && !q.hasAlias(o.Field) {
				return malformed(q.target, fmt.Sprintf("order by %s must name a grouped field or an aggregate alias", o.Field))
			}
		}
	}
	for _, r := range q.relations {
		if err := r.Query.Validate(); err != nil {
			return malformed(q.target, fmt.Sprintf("relation %s: %s", r.Name, reason(err)))
		}
	}
	return nil
}

func (q *Query) hasAlias(name string) bool {
	for _, a := range q.aggregates {
		if a.Alias == name {
			return true
		}
	}
	return false
}

// validatePredicate checks a filter tree in isolation.
func validatePredicate(p Predicate) error {
	if p == nil {
		return errors.New("nil predicate")
	}
	switch pred := p.(type) {
	case Compare:
		if pred.Field == "" {
			return errors.New("comparison requires a field")
		}
		if !pred.Op.valid() {
			return fmt.Errorf("unknown operator %q on %s", string(pred.Op), pred.Field)
		}
		if pred.Value == nil || ir.IsNull(pred.Value) {
			return fmt.Errorf("comparison on %s against null (use Null or NotNull)", pred.Field)
		}
		if pred.Op == OpLike {
			if _, ok := pred.Value.(ir.String); !ok {
				return fmt.Errorf("LIKE on %s requires a string pattern", pred.Field)
			}
		}
	case In:
		if pred.Field == "" {
			return errors.New("IN requires a field")
		}
		if len(pred.Values) == 0 {
			return fmt.Errorf("IN on %s has an empty value set", pred.Field)
		}
		for _, v := range pred.Values {
			if v == nil || ir.IsNull(v) {
				return fmt.Errorf("IN on %s contains null", pred.Field)
			}
		}
	case Between:
		if pred.Field == "" {
			return errors.New("BETWEEN requires a field")
		}
		if pred.Low == nil || pred.High == nil || ir.IsNull(pred.Low) || ir.IsNull(pred.High) {
			return fmt.Errorf("BETWEEN on %s requires both bounds", pred.Field)
		}
	case IsNull:
		if pred.Field == "" {
			return errors.New("null check requires a field")
		}
	case InQuery:
		if pred.Field == "" {
			return errors.New("semi-join requires a field")
		}
		sub := pred.Query
		if sub == nil {
			return fmt.Errorf("semi-join on %s requires a sub-query", pred.Field)
		}
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("semi-join on %s: %s", pred.Field, reason(err))
		}
		if len(sub.fields) != 1 || len(sub.aggregates) > 0 {
			return fmt.Errorf("semi-join on %s must select exactly one field", pred.Field)
		}
		if len(sub.relations) > 0 {
			return fmt.Errorf("semi-join on %s must not carry relations", pred.Field)
		}
	case And:
		for _, child := range pred.Predicates {
			if err := validatePredicate(child); err != nil {
				return err
			}
		}
	case Or:
		for _, child := range pred.Predicates {
			if err := validatePredicate(child); err != nil {
				return err
			}
		}
	case Not:
		return validatePredicate(pred.Predicate)
	default:
		return fmt.Errorf("unknown predicate type %T", p)
	}
	return nil
}
