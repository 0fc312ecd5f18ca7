// Package sqlstore implements the record store boundary over database/sql.
//
// SQLite (github.com/mattn/go-sqlite3) is the default backend; Postgres is
// reached through github.com/jackc/pgx/v5/stdlib. Statements come from
// querysql, so both backends share one compiler and differ only in dialect.
//
// # Storage Layout
//
// One table per catalog collection, named after it, with a text "Id"
// primary key and one column per declared field. Relationship foreign keys
// are indexed. Open creates missing tables; it never alters existing ones.
//
// # Bulk Writes
//
// Each BulkWrite is one transaction with a savepoint per record: failed
// records roll back individually, and AllOrNone rolls back everything.
package sqlstore
