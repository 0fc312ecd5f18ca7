package querysql

import (
	"fmt"

	"github.com/roach88/bulkstore/internal/ir"
)

// Param converts a value to a driver parameter.
//
// Decimals travel as their exact text form and dates as their fixed-width
// layouts; the columns created by ColumnType accept both.
func Param(v ir.Value) (any, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Ref:
		return string(val), nil
	case ir.Decimal:
		return val.String(), nil
	case ir.Date:
		return val.String(), nil
	case ir.DateTime:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
