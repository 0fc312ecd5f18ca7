package memstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

// BulkWrite implements store.Store. Every record in one call must belong to
// the same collection.
func (s *Store) BulkWrite(ctx context.Context, kind store.Kind, records []ir.Record, opts store.BulkOptions) ([]store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.BulkWrites++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.failOp[OpBulkWrite]; err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("bulk write: unknown kind %q", string(kind))
	}
	if len(records) == 0 {
		return []store.Result{}, nil
	}
	name := records[0].Collection
	col, ok := s.catalog.Collection(name)
	if !ok {
		return nil, fmt.Errorf("bulk write: unknown collection %s", name)
	}
	for _, rec := range records[1:] {
		if rec.Collection != name {
			return nil, fmt.Errorf("bulk write: mixed collections %s and %s", name, rec.Collection)
		}
	}
	s.writes = append(s.writes, WriteCall{Collection: name, Kind: kind, Records: len(records), AllOrNone: opts.AllOrNone})

	// Work on a copy; commit replaces the table.
	table := maps.Clone(s.tables[name])
	results := make([]store.Result, len(records))
	failed := false
	for i, rec := range records {
		id, err := s.apply(table, col, kind, rec)
		if err != nil {
			results[i] = store.Result{Err: err}
			failed = true
			continue
		}
		results[i] = store.Result{Success: true, AssignedID: id}
	}

	if failed && opts.AllOrNone {
		for i := range results {
			if results[i].Success {
				results[i] = store.Result{Err: store.ErrRolledBack}
			}
		}
		slog.Debug("memstore bulk write rolled back", "collection", name, "kind", string(kind), "records", len(records))
		return results, nil
	}
	s.tables[name] = table
	slog.Debug("memstore bulk write", "collection", name, "kind", string(kind), "records", len(records))
	return results, nil
}

// apply writes one record into table and returns the record's ID.
func (s *Store) apply(table map[string]ir.Record, col schema.Collection, kind store.Kind, rec ir.Record) (string, error) {
	if kind.RequiresID() && rec.ID == "" {
		return "", store.ErrMissingID
	}
	if s.rejectF != nil {
		if err := s.rejectF(kind, rec); err != nil {
			return "", err
		}
	}
	fields, err := coerceFields(col, rec)
	if err != nil {
		return "", err
	}

	switch kind {
	case store.Insert:
		id := rec.ID
		if id == "" {
			id = s.newID()
		}
		if _, exists := table[id]; exists {
			return "", fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
		}
		table[id] = ir.Record{Collection: col.Name, ID: id, Fields: fields}
		return id, nil

	case store.Update:
		existing, ok := table[rec.ID]
		if !ok {
			return "", fmt.Errorf("%w: %s", store.ErrRecordNotFound, rec.ID)
		}
		table[rec.ID] = merge(existing, fields)
		return rec.ID, nil

	case store.Upsert:
		id := rec.ID
		if id == "" {
			id = s.newID()
		}
		if existing, ok := table[id]; ok {
			table[id] = merge(existing, fields)
		} else {
			table[id] = ir.Record{Collection: col.Name, ID: id, Fields: fields}
		}
		return id, nil

	case store.Delete:
		if _, ok := table[rec.ID]; !ok {
			return "", fmt.Errorf("%w: %s", store.ErrRecordNotFound, rec.ID)
		}
		delete(table, rec.ID)
		return rec.ID, nil
	}
	return "", errors.New("unreachable write kind")
}

func coerceFields(col schema.Collection, rec ir.Record) (map[string]ir.Value, error) {
	fields := make(map[string]ir.Value, len(rec.Fields))
	for name, v := range rec.Fields {
		if name == ir.IDField {
			continue
		}
		cv, err := col.Coerce(name, v)
		if err != nil {
			return nil, err
		}
		fields[name] = cv
	}
	return fields, nil
}

// merge returns existing with fields overlaid. Stored records are never
// mutated in place, so earlier query results stay stable.
func merge(existing ir.Record, fields map[string]ir.Value) ir.Record {
	out := existing.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]ir.Value, len(fields))
	}
	maps.Copy(out.Fields, fields)
	return out
}
