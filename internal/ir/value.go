package ir

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Value is a sealed interface over the closed set of field value variants a
// record may carry: Null, String, Int, Decimal, Date, DateTime, Bool and Ref.
// Only types in this package implement it.
type Value interface {
	irValue()
}

// Kind identifies a Value variant.
type Kind string

const (
	KindNull     Kind = "null"
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindDecimal  Kind = "decimal"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindBool     Kind = "bool"
	KindRef      Kind = "ref"
)

// ValidKinds lists every storable kind (KindNull excluded).
var ValidKinds = []Kind{KindString, KindInt, KindDecimal, KindDate, KindDateTime, KindBool, KindRef}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	for _, k := range ValidKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown field kind %q", s)
}

// Null is the absence of a value.
type Null struct{}

func (Null) irValue() {}

// String is a text value.
type String string

func (String) irValue() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Ref is the identity of another record.
type Ref string

func (Ref) irValue() {}

// Decimal is an arbitrary precision decimal. The zero value is 0.
// Decimals are immutable once constructed.
type Decimal struct {
	d *apd.Decimal
}

func (Decimal) irValue() {}

// NewDecimal parses s ("1234.50", "-3", "1e3") into a Decimal.
func NewDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustDecimal is NewDecimal that panics on malformed input. For literals only.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalFromInt returns n as a Decimal.
func DecimalFromInt(n int64) Decimal {
	return Decimal{d: apd.New(n, 0)}
}

// DecimalFromAPD wraps a copy of d.
func DecimalFromAPD(d *apd.Decimal) Decimal {
	var c apd.Decimal
	c.Set(d)
	return Decimal{d: &c}
}

// APD returns a copy of the underlying apd.Decimal.
func (v Decimal) APD() *apd.Decimal {
	var c apd.Decimal
	if v.d != nil {
		c.Set(v.d)
	}
	return &c
}

// Cmp compares v and o numerically: -1, 0 or +1.
func (v Decimal) Cmp(o Decimal) int {
	return v.APD().Cmp(o.APD())
}

// Sign returns -1, 0 or +1.
func (v Decimal) Sign() int {
	if v.d == nil {
		return 0
	}
	return v.d.Sign()
}

// String renders v in plain (non-exponent) notation.
func (v Decimal) String() string {
	if v.d == nil {
		return "0"
	}
	return v.d.Text('f')
}

// Date is a calendar date. The wrapped time is always midnight UTC.
type Date struct {
	t time.Time
}

func (Date) irValue() {}

// DateLayout is the textual form of a Date.
const DateLayout = "2006-01-02"

// NewDate returns the date of year/month/day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// Time returns the date as midnight UTC.
func (v Date) Time() time.Time { return v.t }

// IsZero reports whether v is the zero date.
func (v Date) IsZero() bool { return v.t.IsZero() }

func (v Date) String() string { return v.t.Format(DateLayout) }

// DateTime is an instant, normalised to UTC.
type DateTime struct {
	t time.Time
}

func (DateTime) irValue() {}

// DateTimeLayout is the fixed-width textual form of a DateTime. Fixed width
// keeps lexical and chronological order identical.
const DateTimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewDateTime returns t as a DateTime.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t.UTC()}
}

// ParseDateTime parses an RFC 3339 timestamp.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return NewDateTime(t), nil
}

// Time returns the instant in UTC.
func (v DateTime) Time() time.Time { return v.t }

func (v DateTime) String() string { return v.t.Format(DateTimeLayout) }

// KindOf returns the Kind of v. A nil Value is KindNull.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Decimal:
		return KindDecimal
	case Date:
		return KindDate
	case DateTime:
		return KindDateTime
	case Bool:
		return KindBool
	case Ref:
		return KindRef
	default:
		return KindNull
	}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	return KindOf(v) == KindNull
}

// Equal reports whether a and b are the same variant with the same value.
// Decimals compare numerically, so 1.50 equals 1.5.
func Equal(a, b Value) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}
	switch av := a.(type) {
	case Decimal:
		return av.Cmp(b.(Decimal)) == 0
	case Date:
		return av.t.Equal(b.(Date).t)
	case DateTime:
		return av.t.Equal(b.(DateTime).t)
	case nil, Null:
		return true
	default:
		return a == b
	}
}

// Compare orders two values of the same kind. ok is false when the values
// are not mutually comparable (different kinds, nulls, booleans).
func Compare(a, b Value) (c int, ok bool) {
	switch av := a.(type) {
	case String:
		if bv, isStr := b.(String); isStr {
			return cmpOrdered(av, bv), true
		}
	case Ref:
		if bv, isRef := b.(Ref); isRef {
			return cmpOrdered(av, bv), true
		}
	case Int:
		switch bv := b.(type) {
		case Int:
			return cmpOrdered(av, bv), true
		case Decimal:
			return DecimalFromInt(int64(av)).Cmp(bv), true
		}
	case Decimal:
		switch bv := b.(type) {
		case Decimal:
			return av.Cmp(bv), true
		case Int:
			return av.Cmp(DecimalFromInt(int64(bv))), true
		}
	case Date:
		if bv, isDate := b.(Date); isDate {
			return av.t.Compare(bv.t), true
		}
	case DateTime:
		if bv, isDT := b.(DateTime); isDT {
			return av.t.Compare(bv.t), true
		}
	}
	return 0, false
}

func cmpOrdered[T ~string | ~int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Format renders v for humans and logs.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(val)
	case Ref:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FromGo converts a plain Go value into a Value. Supported inputs: nil,
// string, int, int32, int64, bool, time.Time (DateTime) and Value itself.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case time.Time:
		return NewDateTime(val), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not a record value; use Decimal: %v", val)
	default:
		return nil, fmt.Errorf("unsupported Go type for record value: %T", v)
	}
}
