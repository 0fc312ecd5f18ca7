package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// CheckQuery resolves every collection, field and relationship q names
// against the catalog and checks that literal values fit the field kinds.
func (c *Catalog) CheckQuery(q *query.Query) error {
	col, ok := c.Collection(q.Target())
	if !ok {
		return fmt.Errorf("unknown collection %s", q.Target())
	}
	for _, f := range q.Fields() {
		if _, ok := col.Field(f); !ok {
			return fmt.Errorf("unknown field %s.%s", col.Name, f)
		}
	}
	for _, f := range q.GroupByFields() {
		if _, ok := col.Field(f); !ok {
			return fmt.Errorf("unknown group by field %s.%s", col.Name, f)
		}
	}
	aliases := make([]string, 0, len(q.Aggregates()))
	for _, a := range q.Aggregates() {
		aliases = append(aliases, a.Alias)
		if a.Func == query.Count {
			continue
		}
		f, ok := col.Field(a.Field)
		if !ok {
			return fmt.Errorf("unknown aggregate field %s.%s", col.Name, a.Field)
		}
		if (a.Func == query.Sum || a.Func == query.Avg) && f.Kind != ir.KindInt && f.Kind != ir.KindDecimal {
			return fmt.Errorf("%s of non-numeric field %s.%s", a.Func, col.Name, a.Field)
		}
	}
	for _, o := range q.Ordering() {
		if slices.Contains(aliases, o.Field) {
			continue
		}
		if _, ok := col.Field(o.Field); !ok {
			return fmt.Errorf("unknown order by field %s.%s", col.Name, o.Field)
		}
	}
	if p := q.Filter(); p != nil {
		if err := c.checkPredicate(col, p); err != nil {
			return err
		}
	}
	for _, r := range q.Relations() {
		rel, ok := col.Relation(r.Name)
		if !ok {
			return fmt.Errorf("unknown relation %s.%s", col.Name, r.Name)
		}
		if r.Query.Target() != rel.Child {
			return fmt.Errorf("relation %s.%s reads %s, not %s", col.Name, r.Name, rel.Child, r.Query.Target())
		}
		if err := c.CheckQuery(r.Query); err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
	}
	return nil
}

func (c *Catalog) checkPredicate(col Collection, p query.Predicate) error {
	field := func(name string) (Field, error) {
		f, ok := col.Field(name)
		if !ok {
			return Field{}, fmt.Errorf("unknown filter field %s.%s", col.Name, name)
		}
		return f, nil
	}

	switch pred := p.(type) {
	case query.Compare:
		f, err := field(pred.Field)
		if err != nil {
			return err
		}
		if pred.Op == query.OpLike && f.Kind != ir.KindString {
			return fmt.Errorf("LIKE on non-string field %s.%s", col.Name, f.Name)
		}
		return checkValue(col, f, pred.Value)
	case query.In:
		f, err := field(pred.Field)
		if err != nil {
			return err
		}
		for _, v := range pred.Values {
			if err := checkValue(col, f, v); err != nil {
				return err
			}
		}
	case query.Between:
		f, err := field(pred.Field)
		if err != nil {
			return err
		}
		if err := checkValue(col, f, pred.Low); err != nil {
			return err
		}
		return checkValue(col, f, pred.High)
	case query.IsNull:
		_, err := field(pred.Field)
		return err
	case query.InQuery:
		f, err := field(pred.Field)
		if err != nil {
			return err
		}
		if err := c.CheckQuery(pred.Query); err != nil {
			return fmt.Errorf("semi-join on %s: %w", pred.Field, err)
		}
		sub, _ := c.Collection(pred.Query.Target())
		subField, _ := sub.Field(pred.Query.Fields()[0])
		if !compatibleKinds(f.Kind, subField.Kind) {
			return fmt.Errorf("semi-join compares %s.%s (%s) with %s.%s (%s)", col.Name, f.Name, f.Kind, sub.Name, subField.Name, subField.Kind)
		}
	case query.And:
		for _, child := range pred.Predicates {
			if err := c.checkPredicate(col, child); err != nil {
				return err
			}
		}
	case query.Or:
		for _, child := range pred.Predicates {
			if err := c.checkPredicate(col, child); err != nil {
				return err
			}
		}
	case query.Not:
		return c.checkPredicate(col, pred.Predicate)
	}
	return nil
}

func checkValue(col Collection, f Field, v ir.Value) error {
	got := ir.KindOf(v)
	if !compatibleKinds(f.Kind, got) {
		return fmt.Errorf("field %s.%s is %s, compared with %s", col.Name, f.Name, f.Kind, got)
	}
	return nil
}

// compatibleKinds allows ref/string and int/decimal interchange.
func compatibleKinds(field, value ir.Kind) bool {
	switch {
	case field == value:
		return true
	case field == ir.KindRef || field == ir.KindString:
		return value == ir.KindRef || value == ir.KindString
	case field == ir.KindDecimal || field == ir.KindInt:
		return value == ir.KindDecimal || value == ir.KindInt
	}
	return false
}
