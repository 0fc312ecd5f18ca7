package repository

import (
	"fmt"

	"github.com/roach88/bulkstore/internal/ir"
)

// Column maps one record field to an entity.
type Column[E any] struct {
	Field string
	Kind  ir.Kind

	// Get reads the field value from the entity. Unset values are ir.Null.
	Get func(E) ir.Value

	// Set narrows the field from rec into the entity. Nil for fields that
	// Mapping.Compose assembles together with others.
	Set func(E, ir.Record) error
}

// Mapping is the fixed field mapping between an entity type and a
// collection.
type Mapping[E any] struct {
	Collection string
	Columns    []Column[E]

	New   func() E
	ID    func(E) string
	SetID func(E, string)

	// Compose runs after every Column.Set, for values spread over several
	// fields. Optional.
	Compose func(E, ir.Record) error

	// Validate checks the entity before it is queued for writing. Optional.
	Validate func(E) error
}

// Fields returns the mapped field names in column order.
func (m Mapping[E]) Fields() []string {
	fields := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		fields[i] = c.Field
	}
	return fields
}

// ToRecord maps e onto a record. Every column is present; unset values are
// Null so an update overwrites them.
func (m Mapping[E]) ToRecord(e E) ir.Record {
	rec := ir.NewRecord(m.Collection)
	rec.ID = m.ID(e)
	for _, c := range m.Columns {
		rec.Set(c.Field, c.Get(e))
	}
	return rec
}

// FromRecord builds an entity from rec. Narrowing failures surface as
// *ir.FieldTypeMismatchError, invariant violations as
// *domain.ValidationError.
func (m Mapping[E]) FromRecord(rec ir.Record) (E, error) {
	e := m.New()
	m.SetID(e, rec.ID)
	for _, c := range m.Columns {
		if c.Set == nil {
			continue
		}
		if err := c.Set(e, rec); err != nil {
			var zero E
			return zero, fmt.Errorf("map %s %s: %w", m.Collection, rec.ID, err)
		}
	}
	if m.Compose != nil {
		if err := m.Compose(e, rec); err != nil {
			var zero E
			return zero, fmt.Errorf("map %s %s: %w", m.Collection, rec.ID, err)
		}
	}
	return e, nil
}

func optionalString(s string) ir.Value {
	if s == "" {
		return ir.Null{}
	}
	return ir.String(s)
}

func optionalRef(id string) ir.Value {
	if id == "" {
		return ir.Null{}
	}
	return ir.Ref(id)
}
