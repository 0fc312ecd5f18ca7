package schema

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/roach88/bulkstore/internal/ir"
)

// Field is a typed column of a collection.
type Field struct {
	Name string
	Kind ir.Kind
}

// Relation is a parent-to-children relationship. Child rows reference the
// parent through ForeignKey, a ref field on the child collection.
type Relation struct {
	Name       string
	Child      string
	ForeignKey string
}

// Collection describes one record collection. Fields keep declaration order.
type Collection struct {
	Name      string
	Fields    []Field
	Relations []Relation
}

// Field returns the named field. The identity pseudo-field is always
// present with kind ref.
func (c Collection) Field(name string) (Field, bool) {
	if name == ir.IDField {
		return Field{Name: ir.IDField, Kind: ir.KindRef}, true
	}
	i := slices.IndexFunc(c.Fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return c.Fields[i], true
}

// Relation returns the named relationship.
func (c Collection) Relation(name string) (Relation, bool) {
	i := slices.IndexFunc(c.Relations, func(r Relation) bool { return r.Name == name })
	if i < 0 {
		return Relation{}, false
	}
	return c.Relations[i], true
}

// FieldNames returns the declared field names in order.
func (c Collection) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Catalog is an immutable set of collections.
type Catalog struct {
	collections []Collection
	byName      map[string]int
}

// New builds a catalog and checks that relations are consistent: every
// child collection exists and carries its foreign key as a ref field.
func New(collections []Collection) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(collections))}
	for _, col := range collections {
		if col.Name == "" {
			return nil, &CatalogError{Field: "collection", Message: "collection name is required"}
		}
		if _, dup := c.byName[col.Name]; dup {
			return nil, &CatalogError{Field: "collection", Message: fmt.Sprintf("duplicate collection %s", col.Name)}
		}
		c.byName[col.Name] = len(c.collections)
		c.collections = append(c.collections, col)
	}
	for _, col := range c.collections {
		for _, rel := range col.Relations {
			child, ok := c.Collection(rel.Child)
			if !ok {
				return nil, &CatalogError{
					Field:   "relations",
					Message: fmt.Sprintf("%s.%s: unknown child collection %s", col.Name, rel.Name, rel.Child),
				}
			}
			fk, ok := child.Field(rel.ForeignKey)
			if !ok || fk.Kind != ir.KindRef {
				return nil, &CatalogError{
					Field:   "relations",
					Message: fmt.Sprintf("%s.%s: foreign key %s must be a ref field of %s", col.Name, rel.Name, rel.ForeignKey, rel.Child),
				}
			}
		}
	}
	return c, nil
}

// Collection returns the named collection.
func (c *Catalog) Collection(name string) (Collection, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Collection{}, false
	}
	return c.collections[i], true
}

// Collections returns every collection in declaration order.
func (c *Catalog) Collections() []Collection {
	return slices.Clone(c.collections)
}

// FieldKind returns the declared kind of collection.field.
func (c *Catalog) FieldKind(collection, field string) (ir.Kind, bool) {
	col, ok := c.Collection(collection)
	if !ok {
		return "", false
	}
	f, ok := col.Field(field)
	return f.Kind, ok
}

// Relation returns the relationship name declared on parent.
func (c *Catalog) Relation(parent, name string) (Relation, bool) {
	col, ok := c.Collection(parent)
	if !ok {
		return Relation{}, false
	}
	return col.Relation(name)
}

// CatalogError reports an invalid catalog definition.
type CatalogError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CatalogError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Coerce converts v to the declared kind of field: strings become refs on
// ref fields (and back), ints widen to decimals. Null passes through. Any
// other mismatch is a *ir.FieldTypeMismatchError.
func (c Collection) Coerce(field string, v ir.Value) (ir.Value, error) {
	f, ok := c.Field(field)
	if !ok {
		return nil, fmt.Errorf("unknown field %s.%s", c.Name, field)
	}
	got := ir.KindOf(v)
	switch {
	case got == ir.KindNull:
		return ir.Null{}, nil
	case got == f.Kind:
		return v, nil
	case f.Kind == ir.KindRef && got == ir.KindString:
		return ir.Ref(v.(ir.String)), nil
	case f.Kind == ir.KindString && got == ir.KindRef:
		return ir.String(v.(ir.Ref)), nil
	case f.Kind == ir.KindDecimal && got == ir.KindInt:
		return ir.DecimalFromInt(int64(v.(ir.Int))), nil
	}
	return nil, &ir.FieldTypeMismatchError{Collection: c.Name, Field: field, Want: f.Kind, Got: got}
}
