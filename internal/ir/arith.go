package ir

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext bounds SUM and AVG results to 34 significant digits.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// Accumulator folds numeric values into an exact sum. Nulls are skipped,
// as SQL aggregates skip them. The zero value is ready to use.
type Accumulator struct {
	sum        apd.Decimal
	n          int64
	fractional bool
}

// Add folds v into the sum. Only Int, Decimal and Null are accepted.
func (a *Accumulator) Add(v Value) error {
	var d *apd.Decimal
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Int:
		d = apd.New(int64(val), 0)
	case Decimal:
		d = val.APD()
		a.fractional = true
	default:
		return fmt.Errorf("cannot sum %s", KindOf(v))
	}
	if _, err := DecimalContext.Add(&a.sum, &a.sum, d); err != nil {
		return err
	}
	a.n++
	return nil
}

// Count returns how many non-null values were added.
func (a *Accumulator) Count() int64 {
	return a.n
}

// Sum returns the total: Null over no values, Int when every value was an
// Int and the total fits, Decimal otherwise.
func (a *Accumulator) Sum() Value {
	if a.n == 0 {
		return Null{}
	}
	if !a.fractional {
		if n, err := a.sum.Int64(); err == nil {
			return Int(n)
		}
	}
	return DecimalFromAPD(&a.sum)
}

// Avg returns the mean with trailing zeros removed, Null over no values.
func (a *Accumulator) Avg() (Value, error) {
	if a.n == 0 {
		return Null{}, nil
	}
	var avg apd.Decimal
	if _, err := DecimalContext.Quo(&avg, &a.sum, apd.New(a.n, 0)); err != nil {
		return nil, err
	}
	avg.Reduce(&avg)
	return DecimalFromAPD(&avg), nil
}
