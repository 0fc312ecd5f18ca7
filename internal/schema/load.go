package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/bulkstore/internal/ir"
)

//go:embed default.cue
var defaultCatalog []byte

// Default returns the built-in catalog: Account with its Contacts and
// Opportunities relationships.
func Default() (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(defaultCatalog, cue.Filename("default.cue"))
	return FromValue(v)
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load loads the CUE package in dir and compiles its collection catalog.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}
	return FromValue(ctx.BuildInstance(inst))
}

// FromValue compiles the "collection" struct of a CUE value:
//
//	collection: Account: {
//	    fields: {Name: "string", AnnualRevenue: "decimal"}
//	    relations: Contacts: {child: "Contact", foreignKey: "AccountId"}
//	}
func FromValue(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	root := v.LookupPath(cue.ParsePath("collection"))
	if !root.Exists() {
		return nil, &CatalogError{Field: "collection", Message: "no collections defined", Pos: v.Pos()}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var collections []Collection
	for iter.Next() {
		col, err := compileCollection(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		collections = append(collections, col)
	}
	return New(collections)
}

func compileCollection(name string, v cue.Value) (Collection, error) {
	col := Collection{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return Collection{}, &CatalogError{Field: "fields", Message: fmt.Sprintf("%s: fields are required", name), Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return Collection{}, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Label()
		if label == ir.IDField {
			return Collection{}, &CatalogError{Field: "fields", Message: fmt.Sprintf("%s: %s is reserved", name, label), Pos: iter.Value().Pos()}
		}
		s, err := iter.Value().String()
		if err != nil {
			return Collection{}, formatCUEError(err)
		}
		kind, err := ir.ParseKind(s)
		if err != nil {
			return Collection{}, &CatalogError{Field: "type", Message: fmt.Sprintf("%s.%s: %v", name, label, err), Pos: iter.Value().Pos()}
		}
		col.Fields = append(col.Fields, Field{Name: label, Kind: kind})
	}

	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if relsVal.Exists() {
		iter, err := relsVal.Fields()
		if err != nil {
			return Collection{}, formatCUEError(err)
		}
		for iter.Next() {
			rel := Relation{Name: iter.Label()}
			if rel.Child, err = lookupString(iter.Value(), "child"); err != nil {
				return Collection{}, err
			}
			if rel.ForeignKey, err = lookupString(iter.Value(), "foreignKey"); err != nil {
				return Collection{}, err
			}
			col.Relations = append(col.Relations, rel)
		}
	}
	return col, nil
}

func lookupString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &CatalogError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CatalogError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
