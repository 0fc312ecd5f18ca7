package query

import (
	"github.com/roach88/bulkstore/internal/ir"
)

// Predicate is a node of a filter tree.
//
// This is a sealed interface; only types in this package implement it, so
// store backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Compare, In, Between, IsNull, InQuery:
//	    // leaf
//	case And, Or, Not:
//	    // composite
//	}
type Predicate interface {
	predicateNode()
}

// Op is a binary comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpGt   Op = ">"
	OpLt   Op = "<"
	OpGte  Op = ">="
	OpLte  Op = "<="
	OpLike Op = "LIKE"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpLike:
		return true
	}
	return false
}

// Compare is <field> <op> <value>. LIKE takes a String pattern using % and _.
type Compare struct {
	Field string
	Op    Op
	Value ir.Value
}

func (Compare) predicateNode() {}

// In is <field> IN (<values>). The set must not be empty.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// Between is <low> <= <field> <= <high>.
type Between struct {
	Field string
	Low   ir.Value
	High  ir.Value
}

func (Between) predicateNode() {}

// IsNull is <field> IS NULL, or IS NOT NULL when Negate is set.
type IsNull struct {
	Field  string
	Negate bool
}

func (IsNull) predicateNode() {}

// InQuery is a semi-join: <field> IN (SELECT <single field> FROM ...).
// The sub-query must select exactly one field and carry no relations.
type InQuery struct {
	Field string
	Query *Query
}

func (InQuery) predicateNode() {}

// And holds when every child holds. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when any child holds. Empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates its child.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Eq returns field = v.
func Eq(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpEq, Value: v} }

// Ne returns field != v.
func Ne(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpNe, Value: v} }

// Gt returns field > v.
func Gt(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpGt, Value: v} }

// Lt returns field < v.
func Lt(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpLt, Value: v} }

// Gte returns field >= v.
func Gte(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpGte, Value: v} }

// Lte returns field <= v.
func Lte(field string, v ir.Value) Predicate { return Compare{Field: field, Op: OpLte, Value: v} }

// Like returns field LIKE pattern.
func Like(field, pattern string) Predicate {
	return Compare{Field: field, Op: OpLike, Value: ir.String(pattern)}
}

// InSet returns field IN (values...).
func InSet(field string, values ...ir.Value) Predicate {
	return In{Field: field, Values: append([]ir.Value(nil), values...)}
}

// InIDs returns Id IN (ids...), with duplicates removed in first-seen order.
func InIDs(ids ...string) Predicate {
	seen := make(map[string]bool, len(ids))
	values := make([]ir.Value, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		values = append(values, ir.Ref(id))
	}
	return In{Field: IDField, Values: values}
}

// Range returns low <= field <= high.
func Range(field string, low, high ir.Value) Predicate {
	return Between{Field: field, Low: low, High: high}
}

// Null returns field IS NULL.
func Null(field string) Predicate { return IsNull{Field: field} }

// NotNull returns field IS NOT NULL.
func NotNull(field string) Predicate { return IsNull{Field: field, Negate: true} }

// Within returns field IN (SELECT ...sub).
func Within(field string, sub *Query) Predicate { return InQuery{Field: field, Query: sub} }

// AllOf returns the conjunction of preds.
func AllOf(preds ...Predicate) Predicate { return And{Predicates: preds} }

// AnyOf returns the disjunction of preds.
func AnyOf(preds ...Predicate) Predicate { return Or{Predicates: preds} }

// Negate returns NOT p.
func Negate(p Predicate) Predicate { return Not{Predicate: p} }
