package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/roach88/bulkstore/internal/querysql"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides UUIDv7 id assignment on insert and upsert.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// Store is a store.Store over database/sql, one table per catalog
// collection.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
	catalog  *schema.Catalog
	newID    func() string
}

var _ store.Store = (*Store)(nil)

// Open connects with driver ("sqlite3" or "pgx") and creates any missing
// tables and foreign-key indexes for the catalog.
//
// SQLite databases are configured with:
//   - decimals stored as text, compared and summed exactly in Go
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite allows one writer at a time
//
// Open is idempotent on an existing database.
func Open(driver, dsn string, catalog *schema.Catalog, opts ...Option) (*Store, error) {
	dialect, err := querysql.ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	driver = "pgx"
	if dialect == querysql.SQLite {
		driver = sqliteDriver
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := &Store{
		db:       db,
		compiler: querysql.NewCompiler(dialect, querysql.WithFieldKinds(catalog)),
		catalog:  catalog,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Debug("sqlstore opened", "dialect", dialect.String(), "collections", len(catalog.Collections()))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() querysql.Dialect {
	return s.compiler.Dialect()
}

// Truncate deletes every row of every catalog collection.
func (s *Store) Truncate(ctx context.Context) error {
	for _, col := range s.catalog.Collections() {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+querysql.QuoteIdent(col.Name)); err != nil {
			return fmt.Errorf("truncate %s: %w", col.Name, err)
		}
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// DDL returns the statements that create the catalog's tables, one per
// collection, followed by an index per relationship foreign key. Every
// statement is idempotent.
func DDL(compiler *querysql.Compiler, catalog *schema.Catalog) []string {
	var stmts []string
	for _, col := range catalog.Collections() {
		defs := make([]querysql.ColumnDef, len(col.Fields))
		for i, f := range col.Fields {
			defs[i] = querysql.ColumnDef{Name: f.Name, Kind: f.Kind}
		}
		stmts = append(stmts, compiler.CreateTable(col.Name, defs))
	}
	for _, col := range catalog.Collections() {
		for _, rel := range col.Relations {
			stmts = append(stmts, compiler.CreateIndex(rel.Child, rel.ForeignKey))
		}
	}
	return stmts
}

// migrate applies DDL. Columns are never altered or dropped.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range DDL(s.compiler, s.catalog) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
