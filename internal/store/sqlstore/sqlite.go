package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/querysql"
)

// sqliteDriver is go-sqlite3 with the decimal collation and aggregates
// registered on every connection.
const sqliteDriver = "bulkstore_sqlite3"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{ConnectHook: registerDecimal})
}

func registerDecimal(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterCollation(querysql.DecimalCollation, compareDecimalText); err != nil {
		return fmt.Errorf("register %s collation: %w", querysql.DecimalCollation, err)
	}
	if err := conn.RegisterAggregator(querysql.DecimalSumFunc, newDecimalSum, true); err != nil {
		return fmt.Errorf("register %s: %w", querysql.DecimalSumFunc, err)
	}
	if err := conn.RegisterAggregator(querysql.DecimalAvgFunc, newDecimalAvg, true); err != nil {
		return fmt.Errorf("register %s: %w", querysql.DecimalAvgFunc, err)
	}
	return nil
}

// compareDecimalText orders decimal text numerically. Text that is not a
// finite number sorts after every number, in binary order.
func compareDecimalText(a, b string) int {
	da, okA := parseFinite(a)
	db, okB := parseFinite(b)
	switch {
	case okA && okB:
		return da.Cmp(db)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

func parseFinite(s string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(s)
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}

// sqliteNumber converts an aggregate argument to a numeric value. NULL
// arrives as a nil byte slice.
func sqliteNumber(v any) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return ir.Null{}, nil
	case []byte:
		if val == nil {
			return ir.Null{}, nil
		}
		return ir.NewDecimal(string(val))
	case int64:
		return ir.Int(val), nil
	case float64:
		return ir.NewDecimal(strconv.FormatFloat(val, 'f', -1, 64))
	case string:
		return ir.NewDecimal(val)
	}
	return nil, fmt.Errorf("cannot aggregate %T", v)
}

type decimalSum struct {
	acc ir.Accumulator
}

func newDecimalSum() *decimalSum { return &decimalSum{} }

func (a *decimalSum) Step(v any) error {
	n, err := sqliteNumber(v)
	if err != nil {
		return err
	}
	return a.acc.Add(n)
}

// Done returns NULL over no values, an integer when every input was one,
// decimal text otherwise.
func (a *decimalSum) Done() (any, error) {
	switch sum := a.acc.Sum().(type) {
	case ir.Int:
		return int64(sum), nil
	case ir.Decimal:
		return sum.String(), nil
	}
	return nil, nil
}

type decimalAvg struct {
	acc ir.Accumulator
}

func newDecimalAvg() *decimalAvg { return &decimalAvg{} }

func (a *decimalAvg) Step(v any) error {
	n, err := sqliteNumber(v)
	if err != nil {
		return err
	}
	return a.acc.Add(n)
}

func (a *decimalAvg) Done() (any, error) {
	avg, err := a.acc.Avg()
	if err != nil {
		return nil, err
	}
	if d, ok := avg.(ir.Decimal); ok {
		return d.String(), nil
	}
	return nil, nil
}
