package query

import "fmt"

// AggFunc is an aggregate function.
type AggFunc string

const (
	// Count counts rows. It takes no field.
	Count AggFunc = "COUNT"

	// CountField counts rows where the field is not null.
	CountField AggFunc = "COUNT_FIELD"

	Sum AggFunc = "SUM"
	Avg AggFunc = "AVG"
	Min AggFunc = "MIN"
	Max AggFunc = "MAX"
)

// Aggregate is one aggregate projection, returned under Alias.
type Aggregate struct {
	Func  AggFunc
	Field string
	Alias string
}

func (a Aggregate) validate() error {
	switch a.Func {
	case Count:
		if a.Field != "" {
			return fmt.Errorf("COUNT takes no field, got %s (use COUNT_FIELD)", a.Field)
		}
	case CountField, Sum, Avg, Min, Max:
		if a.Field == "" {
			return fmt.Errorf("%s requires a field", a.Func)
		}
	default:
		return fmt.Errorf("unknown aggregate function %q", string(a.Func))
	}
	if a.Alias == "" {
		return fmt.Errorf("%s requires an alias", a.Func)
	}
	return nil
}
