package ir

import (
	"errors"
	"fmt"
)

// FieldTypeMismatchError is returned when a record field holds a different
// variant than the one a mapping expects.
type FieldTypeMismatchError struct {
	Collection string
	Field      string
	Want       Kind
	Got        Kind
}

// Error implements the error interface.
func (e *FieldTypeMismatchError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("field %s.%s: want %s, got %s", e.Collection, e.Field, e.Want, e.Got)
	}
	return fmt.Sprintf("field %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// IsFieldTypeMismatch reports whether err is a FieldTypeMismatchError.
func IsFieldTypeMismatch(err error) bool {
	var fe *FieldTypeMismatchError
	return errors.As(err, &fe)
}

func (r Record) mismatch(field string, want Kind) error {
	return &FieldTypeMismatchError{
		Collection: r.Collection,
		Field:      field,
		Want:       want,
		Got:        KindOf(r.Get(field)),
	}
}

// String narrows field to a string. Null is a mismatch.
func (r Record) String(field string) (string, error) {
	if v, ok := r.Get(field).(String); ok {
		return string(v), nil
	}
	return "", r.mismatch(field, KindString)
}

// OptionalString narrows field to a string, mapping Null to "".
func (r Record) OptionalString(field string) (string, error) {
	if IsNull(r.Get(field)) {
		return "", nil
	}
	return r.String(field)
}

// Int narrows field to an int64.
func (r Record) Int(field string) (int64, error) {
	if v, ok := r.Get(field).(Int); ok {
		return int64(v), nil
	}
	return 0, r.mismatch(field, KindInt)
}

// Bool narrows field to a bool. Null is a mismatch.
func (r Record) Bool(field string) (bool, error) {
	if v, ok := r.Get(field).(Bool); ok {
		return bool(v), nil
	}
	return false, r.mismatch(field, KindBool)
}

// OptionalBool narrows field to a bool, mapping Null to false.
func (r Record) OptionalBool(field string) (bool, error) {
	if IsNull(r.Get(field)) {
		return false, nil
	}
	return r.Bool(field)
}

// Decimal narrows field to a Decimal. Ints widen to decimals.
func (r Record) Decimal(field string) (Decimal, error) {
	switch v := r.Get(field).(type) {
	case Decimal:
		return v, nil
	case Int:
		return DecimalFromInt(int64(v)), nil
	}
	return Decimal{}, r.mismatch(field, KindDecimal)
}

// OptionalDecimal narrows field to a Decimal; ok is false for Null.
func (r Record) OptionalDecimal(field string) (d Decimal, ok bool, err error) {
	if IsNull(r.Get(field)) {
		return Decimal{}, false, nil
	}
	d, err = r.Decimal(field)
	return d, err == nil, err
}

// Date narrows field to a Date.
func (r Record) Date(field string) (Date, error) {
	if v, ok := r.Get(field).(Date); ok {
		return v, nil
	}
	return Date{}, r.mismatch(field, KindDate)
}

// OptionalDate narrows field to a Date, mapping Null to the zero Date.
func (r Record) OptionalDate(field string) (Date, error) {
	if IsNull(r.Get(field)) {
		return Date{}, nil
	}
	return r.Date(field)
}

// DateTime narrows field to a DateTime.
func (r Record) DateTime(field string) (DateTime, error) {
	if v, ok := r.Get(field).(DateTime); ok {
		return v, nil
	}
	return DateTime{}, r.mismatch(field, KindDateTime)
}

// RefID narrows field to a reference id. Strings are accepted as refs.
func (r Record) RefID(field string) (string, error) {
	switch v := r.Get(field).(type) {
	case Ref:
		return string(v), nil
	case String:
		return string(v), nil
	}
	return "", r.mismatch(field, KindRef)
}

// OptionalRefID narrows field to a reference id, mapping Null to "".
func (r Record) OptionalRefID(field string) (string, error) {
	if IsNull(r.Get(field)) {
		return "", nil
	}
	return r.RefID(field)
}
