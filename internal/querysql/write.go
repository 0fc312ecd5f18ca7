package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// Column is a named value in a write statement.
type Column struct {
	Name  string
	Value ir.Value
}

func (c *Compiler) bindColumns(b *builder, cols []Column) ([]string, []string, error) {
	names := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, col := range cols {
		if col.Name == query.IDField {
			return nil, nil, errors.New("identity column must not be written as a field")
		}
		ph, err := b.bind(col.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("convert value for %s: %w", col.Name, err)
		}
		names[i] = QuoteIdent(col.Name)
		phs[i] = ph
	}
	return names, phs, nil
}

// Insert compiles INSERT INTO table ("Id", cols...) VALUES (...).
func (c *Compiler) Insert(table, id string, cols []Column) (Statement, error) {
	return c.insert(table, id, cols, false)
}

// Upsert compiles an insert that updates cols in place when id exists.
func (c *Compiler) Upsert(table, id string, cols []Column) (Statement, error) {
	return c.insert(table, id, cols, true)
}

func (c *Compiler) insert(table, id string, cols []Column, upsert bool) (Statement, error) {
	if id == "" {
		return Statement{}, errors.New("insert requires an id")
	}
	b := &builder{dialect: c.dialect}
	idPH, _ := b.bind(ir.Ref(id))
	names, phs, err := c.bindColumns(b, cols)
	if err != nil {
		return Statement{}, err
	}
	names = append([]string{QuoteIdent(query.IDField)}, names...)
	phs = append([]string{idPH}, phs...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", QuoteIdent(table), strings.Join(names, ", "), strings.Join(phs, ", "))
	if upsert {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO ", QuoteIdent(query.IDField))
		if len(cols) == 0 {
			sb.WriteString("NOTHING")
		} else {
			sets := make([]string, len(cols))
			for i, col := range cols {
				q := QuoteIdent(col.Name)
				sets[i] = fmt.Sprintf("%s = excluded.%s", q, q)
			}
			fmt.Fprintf(&sb, "UPDATE SET %s", strings.Join(sets, ", "))
		}
	}
	return Statement{SQL: sb.String(), Params: b.params}, nil
}

// Update compiles UPDATE table SET cols... WHERE "Id" = id.
func (c *Compiler) Update(table, id string, cols []Column) (Statement, error) {
	if id == "" {
		return Statement{}, errors.New("update requires an id")
	}
	if len(cols) == 0 {
		return Statement{}, errors.New("update requires at least one column")
	}
	b := &builder{dialect: c.dialect}
	names, phs, err := c.bindColumns(b, cols)
	if err != nil {
		return Statement{}, err
	}
	sets := make([]string, len(names))
	for i := range names {
		sets[i] = names[i] + " = " + phs[i]
	}
	idPH, _ := b.bind(ir.Ref(id))
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", QuoteIdent(table), strings.Join(sets, ", "), QuoteIdent(query.IDField), idPH)
	return Statement{SQL: sql, Params: b.params}, nil
}

// Delete compiles DELETE FROM table WHERE "Id" = id.
func (c *Compiler) Delete(table, id string) (Statement, error) {
	if id == "" {
		return Statement{}, errors.New("delete requires an id")
	}
	b := &builder{dialect: c.dialect}
	idPH, _ := b.bind(ir.Ref(id))
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", QuoteIdent(table), QuoteIdent(query.IDField), idPH)
	return Statement{SQL: sql, Params: b.params}, nil
}

// Exists compiles SELECT 1 FROM table WHERE "Id" = id.
func (c *Compiler) Exists(table, id string) (Statement, error) {
	if id == "" {
		return Statement{}, errors.New("exists requires an id")
	}
	b := &builder{dialect: c.dialect}
	idPH, _ := b.bind(ir.Ref(id))
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s", QuoteIdent(table), QuoteIdent(query.IDField), idPH)
	return Statement{SQL: sql, Params: b.params}, nil
}
