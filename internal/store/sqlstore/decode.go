package sqlstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/bulkstore/internal/ir"
)

// decode converts a raw driver value to the value kind the column
// declares. Drivers differ in what they hand back: decimals arrive as text
// from both (SQLite stores them as text, pgx renders NUMERIC as text),
// integral aggregates as int64, and booleans as int64 from SQLite.
//
// A float64 is never accepted as a decimal.
func decode(kind ir.Kind, raw any) (ir.Value, error) {
	if raw == nil {
		return ir.Null{}, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch kind {
	case ir.KindString:
		if s, ok := raw.(string); ok {
			return ir.String(s), nil
		}
	case ir.KindRef:
		if s, ok := raw.(string); ok {
			return ir.Ref(s), nil
		}
	case ir.KindInt:
		switch v := raw.(type) {
		case int64:
			return ir.Int(v), nil
		case float64:
			if v == float64(int64(v)) {
				return ir.Int(int64(v)), nil
			}
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("decode int %q: %w", v, err)
			}
			return ir.Int(n), nil
		}
	case ir.KindDecimal:
		switch v := raw.(type) {
		case int64:
			return ir.DecimalFromInt(v), nil
		case string:
			return ir.NewDecimal(v)
		}
	case ir.KindBool:
		switch v := raw.(type) {
		case bool:
			return ir.Bool(v), nil
		case int64:
			return ir.Bool(v != 0), nil
		}
	case ir.KindDate:
		switch v := raw.(type) {
		case string:
			return ir.ParseDate(v)
		case time.Time:
			return ir.DateOf(v), nil
		}
	case ir.KindDateTime:
		switch v := raw.(type) {
		case string:
			return ir.ParseDateTime(v)
		case time.Time:
			return ir.NewDateTime(v), nil
		}
	}
	return nil, fmt.Errorf("cannot decode %T as %s", raw, kind)
}
