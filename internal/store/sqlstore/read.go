package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/querysql"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

// Query implements store.Store. The parent rows are one statement; each
// relationship sub-query is one more statement across all parents.
func (s *Store) Query(ctx context.Context, q *query.Query) ([]ir.Record, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	st, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	col, _ := s.catalog.Collection(q.Target())
	rows, err := s.fetchRecords(ctx, col, st)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Target(), err)
	}
	n, err := s.attachRelations(ctx, q, rows)
	if err != nil {
		return nil, err
	}
	slog.Debug("sqlstore query", "collection", q.Target(), "rows", len(rows), "statements", 1+n)
	return rows, nil
}

// AggregateQuery implements store.Store.
func (s *Store) AggregateQuery(ctx context.Context, q *query.Query) ([]store.AggregateRow, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	st, err := s.compiler.CompileAggregate(q)
	if err != nil {
		return nil, err
	}
	col, _ := s.catalog.Collection(q.Target())
	kinds := aggregateKinds(col, q)

	raw, err := s.scan(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("aggregate query %s: %w", q.Target(), err)
	}
	groups := len(q.GroupByFields())
	out := make([]store.AggregateRow, 0, len(raw))
	for _, values := range raw {
		row := store.AggregateRow{Group: make([]ir.Value, groups), Values: make(map[string]ir.Value, len(st.Columns)-groups)}
		for i, name := range st.Columns {
			v, err := decode(kinds[i], values[i])
			if err != nil {
				return nil, fmt.Errorf("aggregate query %s: column %s: %w", q.Target(), name, err)
			}
			if i < groups {
				row.Group[i] = v
			} else {
				row.Values[name] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) check(q *query.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	return s.catalog.CheckQuery(q)
}

// aggregateKinds returns the decode kind of each aggregate result column.
func aggregateKinds(col schema.Collection, q *query.Query) []ir.Kind {
	kind := func(field string) ir.Kind {
		f, _ := col.Field(field)
		return f.Kind
	}
	var kinds []ir.Kind
	for _, g := range q.GroupByFields() {
		kinds = append(kinds, kind(g))
	}
	for _, a := range q.Aggregates() {
		switch a.Func {
		case query.Count, query.CountField:
			kinds = append(kinds, ir.KindInt)
		case query.Avg:
			kinds = append(kinds, ir.KindDecimal)
		default:
			kinds = append(kinds, kind(a.Field))
		}
	}
	return kinds
}

// fetchRecords runs a row statement whose first column is "Id" and decodes
// the rest by field kind.
func (s *Store) fetchRecords(ctx context.Context, col schema.Collection, st querysql.Statement) ([]ir.Record, error) {
	raw, err := s.scan(ctx, st)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Record, 0, len(raw))
	for _, values := range raw {
		rec := ir.NewRecord(col.Name)
		for i, name := range st.Columns {
			f, _ := col.Field(name)
			v, err := decode(f.Kind, values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			rec.Set(name, v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) scan(ctx context.Context, st querysql.Statement) ([][]any, error) {
	rows, err := s.db.QueryContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, len(st.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// attachRelations runs one statement per relationship per nesting level
// and distributes the children to their parents. Limit and offset apply
// per parent. Every parent gets an entry, empty when it has no matching
// children. It returns the number of statements run.
func (s *Store) attachRelations(ctx context.Context, q *query.Query, parents []ir.Record) (int, error) {
	if len(q.Relations()) == 0 || len(parents) == 0 {
		return 0, nil
	}
	ids := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
	}

	statements := 0
	for _, r := range q.Relations() {
		rel, _ := s.catalog.Relation(q.Target(), r.Name)
		st, err := s.compiler.CompileChildren(r.Query, rel.ForeignKey, ids)
		if err != nil {
			return statements, fmt.Errorf("relation %s: %w", r.Name, err)
		}
		child, _ := s.catalog.Collection(rel.Child)
		children, err := s.fetchRecords(ctx, child, st)
		if err != nil {
			return statements, fmt.Errorf("relation %s: %w", r.Name, err)
		}
		statements++

		keepFK := slices.Contains(r.Query.Fields(), rel.ForeignKey)
		byParent := make(map[string][]ir.Record)
		for _, c := range children {
			fk := ir.Format(c.Get(rel.ForeignKey))
			if !keepFK {
				delete(c.Fields, rel.ForeignKey)
			}
			byParent[fk] = append(byParent[fk], c)
		}

		// Page per parent into one level so the next relationship level
		// is a single statement across every parent.
		level := make([]ir.Record, 0, len(children))
		bounds := make([]int, len(parents)+1)
		for i := range parents {
			level = append(level, page(byParent[parents[i].ID], r.Query)...)
			bounds[i+1] = len(level)
		}
		n, err := s.attachRelations(ctx, r.Query, level)
		statements += n
		if err != nil {
			return statements, err
		}
		for i := range parents {
			setRelated(&parents[i], r.Name, slices.Clone(level[bounds[i]:bounds[i+1]]))
		}
	}
	return statements, nil
}

func setRelated(rec *ir.Record, name string, rows []ir.Record) {
	if rec.Related == nil {
		rec.Related = make(map[string][]ir.Record)
	}
	rec.Related[name] = rows
}

func page(rows []ir.Record, q *query.Query) []ir.Record {
	offset := q.RowOffset()
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit, ok := q.RowLimit(); ok && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
