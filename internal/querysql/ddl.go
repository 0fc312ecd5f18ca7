package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// ColumnDef declares one table column.
type ColumnDef struct {
	Name string
	Kind ir.Kind
}

// CreateTable compiles an idempotent CREATE TABLE with a text "Id" primary key.
func (c *Compiler) CreateTable(table string, cols []ColumnDef) string {
	defs := []string{QuoteIdent(query.IDField) + " TEXT PRIMARY KEY"}
	for _, col := range cols {
		if col.Name == query.IDField {
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s", QuoteIdent(col.Name), c.dialect.ColumnType(col.Kind)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", QuoteIdent(table), strings.Join(defs, ",\n    "))
}

// CreateIndex compiles an idempotent single-column index, used for
// relationship foreign keys.
func (c *Compiler) CreateIndex(table, column string) string {
	name := fmt.Sprintf("idx_%s_%s", strings.ToLower(table), strings.ToLower(column))
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", QuoteIdent(name), QuoteIdent(table), QuoteIdent(column))
}
