package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/bulkstore/internal/ir"
)

// Dialect selects the SQL flavour the compiler emits.
type Dialect int

const (
	// SQLite uses ? placeholders and case-insensitive LIKE.
	SQLite Dialect = iota

	// Postgres uses $n placeholders and ILIKE for LIKE.
	Postgres
)

// ParseDialect maps a driver name to a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "pgx":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unsupported driver %q", driver)
}

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// placeholder returns the bind marker for the n-th parameter (1-based).
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) like() string {
	if d == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

// SQLite functions and collations a SQLite connection must provide for
// exact decimal arithmetic. Decimals are stored as text; DecimalCollation
// compares them numerically, the aggregates fold them exactly.
const (
	DecimalCollation = "DECIMAL"
	DecimalSumFunc   = "decimal_sum"
	DecimalAvgFunc   = "decimal_avg"
)

// ColumnType returns the column type that stores values of kind k.
//
// Dates and datetimes are stored as fixed-width text so that lexical and
// chronological order agree. Postgres stores decimals as exact NUMERIC.
// SQLite would give NUMERIC columns REAL affinity, so decimals are text
// compared under DecimalCollation.
func (d Dialect) ColumnType(k ir.Kind) string {
	switch k {
	case ir.KindInt:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case ir.KindDecimal:
		if d == Postgres {
			return "NUMERIC"
		}
		return "TEXT COLLATE " + DecimalCollation
	case ir.KindBool:
		if d == Postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// QuoteIdent quotes an identifier for both dialects.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
