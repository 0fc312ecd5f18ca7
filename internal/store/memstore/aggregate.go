package memstore

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/store"
)

type group struct {
	key  []ir.Value
	rows []ir.Record
}

func (s *Store) aggregate(q *query.Query, rows []ir.Record) ([]store.AggregateRow, error) {
	fields := q.GroupByFields()
	groups := map[string]*group{}
	var order []string
	for _, row := range rows {
		key := make([]ir.Value, len(fields))
		parts := make([]string, len(fields))
		for i, f := range fields {
			key[i] = row.Get(f)
			parts[i] = string(ir.KindOf(key[i])) + ":" + ir.Format(key[i])
		}
		k := strings.Join(parts, "\x00")
		g, ok := groups[k]
		if !ok {
			g = &group{key: key}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, row)
	}
	// Without GROUP BY there is exactly one group, even over no rows.
	if len(fields) == 0 && len(order) == 0 {
		groups[""] = &group{}
		order = append(order, "")
	}

	out := make([]store.AggregateRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := store.AggregateRow{Group: g.key, Values: make(map[string]ir.Value, len(q.Aggregates()))}
		if row.Group == nil {
			row.Group = []ir.Value{}
		}
		for _, a := range q.Aggregates() {
			v, err := compute(a, g.rows)
			if err != nil {
				return nil, err
			}
			row.Values[a.Alias] = v
		}
		out = append(out, row)
	}

	sortAggregates(out, fields, q.Ordering())
	offset := q.RowOffset()
	if offset >= len(out) {
		return []store.AggregateRow{}, nil
	}
	out = out[offset:]
	if limit, ok := q.RowLimit(); ok && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func compute(a query.Aggregate, rows []ir.Record) (ir.Value, error) {
	if a.Func == query.Count {
		return ir.Int(len(rows)), nil
	}
	var values []ir.Value
	for _, row := range rows {
		if v := row.Get(a.Field); !ir.IsNull(v) {
			values = append(values, v)
		}
	}
	switch a.Func {
	case query.CountField:
		return ir.Int(len(values)), nil
	case query.Min, query.Max:
		if len(values) == 0 {
			return ir.Null{}, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c, _ := orderValues(v, best)
			if (a.Func == query.Min && c < 0) || (a.Func == query.Max && c > 0) {
				best = v
			}
		}
		return best, nil
	case query.Sum, query.Avg:
		var acc ir.Accumulator
		for _, v := range values {
			if err := acc.Add(v); err != nil {
				return nil, fmt.Errorf("%s(%s): %w", a.Func, a.Field, err)
			}
		}
		if a.Func == query.Sum {
			return acc.Sum(), nil
		}
		avg, err := acc.Avg()
		if err != nil {
			return nil, fmt.Errorf("AVG(%s): %w", a.Field, err)
		}
		return avg, nil
	}
	return nil, fmt.Errorf("unknown aggregate function %q", string(a.Func))
}

// sortAggregates orders rows by ORDER BY terms (group fields or aliases),
// then by every group field ascending.
func sortAggregates(rows []store.AggregateRow, fields []string, order []query.Order) {
	valueOf := func(r store.AggregateRow, name string) ir.Value {
		if i := slices.Index(fields, name); i >= 0 {
			return r.Group[i]
		}
		return r.Value(name)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compareNullsFirst(valueOf(rows[i], o.Field), valueOf(rows[j], o.Field))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		for k := range fields {
			if c := compareNullsFirst(rows[i].Group[k], rows[j].Group[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
