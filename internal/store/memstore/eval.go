package memstore

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
)

// tri is a SQL truth value.
type tri int8

const (
	triFalse tri = iota
	triTrue
	triUnknown
)

func triOf(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}

// match reports whether rec satisfies p. Like a WHERE clause, unknown
// counts as not matching.
func (s *Store) match(col schema.Collection, p query.Predicate, rec ir.Record) (bool, error) {
	if p == nil {
		return true, nil
	}
	t, err := s.eval(col, p, rec)
	return t == triTrue, err
}

func (s *Store) eval(col schema.Collection, p query.Predicate, rec ir.Record) (tri, error) {
	switch pred := p.(type) {
	case query.Compare:
		have := rec.Get(pred.Field)
		if ir.IsNull(have) {
			return triUnknown, nil
		}
		want, err := col.Coerce(pred.Field, pred.Value)
		if err != nil {
			return triFalse, err
		}
		return compare(pred.Op, have, want)

	case query.In:
		have := rec.Get(pred.Field)
		if ir.IsNull(have) {
			return triUnknown, nil
		}
		for _, v := range pred.Values {
			want, err := col.Coerce(pred.Field, v)
			if err != nil {
				return triFalse, err
			}
			if equalValues(have, want) {
				return triTrue, nil
			}
		}
		return triFalse, nil

	case query.Between:
		have := rec.Get(pred.Field)
		if ir.IsNull(have) {
			return triUnknown, nil
		}
		low, err := col.Coerce(pred.Field, pred.Low)
		if err != nil {
			return triFalse, err
		}
		high, err := col.Coerce(pred.Field, pred.High)
		if err != nil {
			return triFalse, err
		}
		lo, err := compare(query.OpGte, have, low)
		if err != nil || lo != triTrue {
			return lo, err
		}
		return compare(query.OpLte, have, high)

	case query.IsNull:
		null := ir.IsNull(rec.Get(pred.Field))
		return triOf(null != pred.Negate), nil

	case query.InQuery:
		have := rec.Get(pred.Field)
		if ir.IsNull(have) {
			return triUnknown, nil
		}
		rows, err := s.selectRows(pred.Query)
		if err != nil {
			return triFalse, err
		}
		field := pred.Query.Fields()[0]
		sawNull := false
		for _, row := range page(rows, pred.Query) {
			v := row.Get(field)
			if ir.IsNull(v) {
				sawNull = true
				continue
			}
			if equalValues(have, v) {
				return triTrue, nil
			}
		}
		if sawNull {
			return triUnknown, nil
		}
		return triFalse, nil

	case query.And:
		result := triTrue
		for _, child := range pred.Predicates {
			t, err := s.eval(col, child, rec)
			if err != nil {
				return triFalse, err
			}
			if t == triFalse {
				return triFalse, nil
			}
			if t == triUnknown {
				result = triUnknown
			}
		}
		return result, nil

	case query.Or:
		result := triFalse
		for _, child := range pred.Predicates {
			t, err := s.eval(col, child, rec)
			if err != nil {
				return triFalse, err
			}
			if t == triTrue {
				return triTrue, nil
			}
			if t == triUnknown {
				result = triUnknown
			}
		}
		return result, nil

	case query.Not:
		t, err := s.eval(col, pred.Predicate, rec)
		switch t {
		case triTrue:
			return triFalse, err
		case triFalse:
			return triTrue, err
		}
		return triUnknown, err
	}
	return triFalse, fmt.Errorf("unsupported predicate type: %T", p)
}

// equalValues compares stored values, treating refs and strings alike.
func equalValues(a, b ir.Value) bool {
	if c, ok := orderValues(a, b); ok {
		return c == 0
	}
	return ir.Equal(a, b)
}

// orderValues extends ir.Compare to booleans (false < true) and mixed
// ref/string operands.
func orderValues(a, b ir.Value) (int, bool) {
	if ab, ok := a.(ir.Bool); ok {
		if bb, ok := b.(ir.Bool); ok {
			switch {
			case ab == bb:
				return 0, true
			case !bool(ab):
				return -1, true
			default:
				return 1, true
			}
		}
	}
	if isText(a) && isText(b) {
		return strings.Compare(ir.Format(a), ir.Format(b)), true
	}
	return ir.Compare(a, b)
}

func isText(v ir.Value) bool {
	switch v.(type) {
	case ir.String, ir.Ref:
		return true
	}
	return false
}

func compare(op query.Op, have, want ir.Value) (tri, error) {
	if op == query.OpLike {
		return triOf(like(ir.Format(have), ir.Format(want))), nil
	}
	c, ok := orderValues(have, want)
	if !ok {
		return triFalse, fmt.Errorf("cannot compare %s with %s", ir.KindOf(have), ir.KindOf(want))
	}
	switch op {
	case query.OpEq:
		return triOf(c == 0), nil
	case query.OpNe:
		return triOf(c != 0), nil
	case query.OpGt:
		return triOf(c > 0), nil
	case query.OpLt:
		return triOf(c < 0), nil
	case query.OpGte:
		return triOf(c >= 0), nil
	case query.OpLte:
		return triOf(c <= 0), nil
	}
	return triFalse, fmt.Errorf("unknown operator %q", string(op))
}

// like matches s against a LIKE pattern: % is any run of characters, _ is
// exactly one. Case is ignored for ASCII letters only, as in SQLite.
func like(s, pattern string) bool {
	return likeRunes([]rune(foldASCII(s)), []rune(foldASCII(pattern)))
}

func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII {
			return unicode.ToLower(r)
		}
		return r
	}, s)
}

func likeRunes(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeRunes(s[i:], p) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
		}
		s, p = s[1:], p[1:]
	}
	return len(s) == 0
}

// sortRows orders rows by the ORDER BY terms with nulls lowest, then by ID.
func sortRows(rows []ir.Record, order []query.Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compareNullsFirst(rows[i].Get(o.Field), rows[j].Get(o.Field))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return rows[i].ID < rows[j].ID
	})
}

func compareNullsFirst(a, b ir.Value) int {
	an, bn := ir.IsNull(a), ir.IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	c, _ := orderValues(a, b)
	return c
}
