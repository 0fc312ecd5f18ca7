package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/querysql"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

const savepoint = "bulk_record"

// BulkWrite implements store.Store.
//
// The call runs in one transaction. Each record gets its own savepoint, so
// a failing record is rolled back alone and the rest commit. With
// AllOrNone the whole transaction is rolled back when any record fails.
func (s *Store) BulkWrite(ctx context.Context, kind store.Kind, records []ir.Record, opts store.BulkOptions) ([]store.Result, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bulk write: begin: %w", err)
	}
	defer tx.Rollback()

	results := make([]store.Result, len(records))
	failed := false
	for i, rec := range records {
		id, err := s.writeRecord(ctx, tx, col, kind, rec)
		if err != nil {
			results[i] = store.Result{Err: err}
			failed = true
			continue
		}
		results[i] = store.Result{Success: true, AssignedID: id}
	}

	if failed && opts.AllOrNone {
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("bulk write: rollback: %w", err)
		}
		for i := range results {
			if results[i].Success {
				results[i] = store.Result{Err: store.ErrRolledBack}
			}
		}
		slog.Debug("sqlstore bulk write rolled back", "collection", name, "kind", string(kind), "records", len(records))
		return results, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bulk write: commit: %w", err)
	}
	slog.Debug("sqlstore bulk write", "collection", name, "kind", string(kind), "records", len(records))
	return results, nil
}

// writeRecord applies one record inside its own savepoint.
func (s *Store) writeRecord(ctx context.Context, tx *sql.Tx, col schema.Collection, kind store.Kind, rec ir.Record) (string, error) {
	if kind.RequiresID() && rec.ID == "" {
		return "", store.ErrMissingID
	}
	cols, err := columns(col, rec)
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return "", fmt.Errorf("savepoint: %w", err)
	}
	id, err := s.apply(ctx, tx, col.Name, kind, rec.ID, cols)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return "", errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return "", err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return "", fmt.Errorf("release savepoint: %w", err)
	}
	return id, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, table string, kind store.Kind, id string, cols []querysql.Column) (string, error) {
	switch kind {
	case store.Insert, store.Upsert:
		if id == "" {
			id = s.newID()
		}
		build := s.compiler.Insert
		if kind == store.Upsert {
			build = s.compiler.Upsert
		}
		st, err := build(table, id, cols)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, st.SQL, st.Params...); err != nil {
			if isUniqueViolation(err) {
				return "", fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
			}
			return "", fmt.Errorf("%s %s: %w", kind, id, err)
		}
		return id, nil

	case store.Update:
		if len(cols) == 0 {
			return id, s.requireRow(ctx, tx, table, id)
		}
		st, err := s.compiler.Update(table, id, cols)
		if err != nil {
			return "", err
		}
		return id, s.execOne(ctx, tx, st, id)

	case store.Delete:
		st, err := s.compiler.Delete(table, id)
		if err != nil {
			return "", err
		}
		return id, s.execOne(ctx, tx, st, id)
	}
	return "", errors.New("unreachable write kind")
}

// execOne runs st and reports ErrRecordNotFound when no row matched.
func (s *Store) execOne(ctx context.Context, tx *sql.Tx, st querysql.Statement, id string) error {
	res, err := tx.ExecContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
	}
	return nil
}

func (s *Store) requireRow(ctx context.Context, tx *sql.Tx, table, id string) error {
	st, err := s.compiler.Exists(table, id)
	if err != nil {
		return err
	}
	var one int
	err = tx.QueryRowContext(ctx, st.SQL, st.Params...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
	}
	return err
}

// columns coerces the record's fields to their declared kinds, in byte
// order of field name.
func columns(col schema.Collection, rec ir.Record) ([]querysql.Column, error) {
	var cols []querysql.Column
	for _, name := range rec.SortedFields() {
		if name == ir.IDField {
			continue
		}
		v, err := col.Coerce(name, rec.Fields[name])
		if err != nil {
			return nil, err
		}
		cols = append(cols, querysql.Column{Name: name, Value: v})
	}
	return cols, nil
}

// isUniqueViolation recognises primary-key conflicts from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
