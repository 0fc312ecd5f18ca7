package ir

import (
	"slices"
	"sort"
)

// IDField is the pseudo-field that addresses Record.ID in queries.
const IDField = "Id"

// Record is a loosely typed row of an external record store.
//
// ID is the store-assigned identity and is empty until the record has been
// persisted. Ref is a client-side identity that lets unsaved records be
// tracked through a unit of work. Related holds the rows returned by
// relationship sub-queries, keyed by relationship name.
type Record struct {
	Collection string
	ID         string
	Ref        string
	Fields     map[string]Value
	Related    map[string][]Record
}

// NewRecord returns an empty record of the given collection.
func NewRecord(collection string) Record {
	return Record{Collection: collection, Fields: map[string]Value{}}
}

// Get returns the value of field. Missing fields are Null. IDField yields
// the record's ID as a Ref.
func (r Record) Get(field string) Value {
	if field == IDField {
		if r.ID == "" {
			return Null{}
		}
		return Ref(r.ID)
	}
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return Null{}
	}
	return v
}

// Has reports whether field is present (possibly Null).
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Set stores v under field, allocating Fields when needed. Setting IDField
// assigns the record ID.
func (r *Record) Set(field string, v Value) {
	if field == IDField {
		r.ID = Format(v)
		if IsNull(v) {
			r.ID = ""
		}
		return
	}
	if r.Fields == nil {
		r.Fields = map[string]Value{}
	}
	if v == nil {
		v = Null{}
	}
	r.Fields[field] = v
}

// Identity returns the key used to track r through a unit of work: the ID
// when persisted, otherwise the client Ref.
func (r Record) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Ref
}

// SortedFields returns the field names in byte order.
func (r Record) SortedFields() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of r. Values are immutable and shared.
func (r Record) Clone() Record {
	c := Record{Collection: r.Collection, ID: r.ID, Ref: r.Ref}
	if r.Fields != nil {
		c.Fields = make(map[string]Value, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	if r.Related != nil {
		c.Related = make(map[string][]Record, len(r.Related))
		for k, rows := range r.Related {
			cp := make([]Record, len(rows))
			for i, row := range rows {
				cp[i] = row.Clone()
			}
			c.Related[k] = cp
		}
	}
	return c
}

// Project returns a copy of r restricted to fields. Related rows are kept.
func (r Record) Project(fields []string) Record {
	c := Record{Collection: r.Collection, ID: r.ID, Ref: r.Ref, Fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if f == IDField {
			continue
		}
		c.Fields[f] = r.Get(f)
	}
	if r.Related != nil {
		c.Related = r.Clone().Related
	}
	return c
}

// EqualRecords reports whether a and b carry the same identity and field
// values. Related rows are compared recursively.
func EqualRecords(a, b Record) bool {
	if a.Collection != b.Collection || a.ID != b.ID || a.Ref != b.Ref {
		return false
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for k, av := range a.Fields {
		bv, ok := b.Fields[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	if len(a.Related) != len(b.Related) {
		return false
	}
	for name, rows := range a.Related {
		other, ok := b.Related[name]
		if !ok || !slices.EqualFunc(rows, other, EqualRecords) {
			return false
		}
	}
	return true
}
