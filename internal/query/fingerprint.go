package query

import (
	"fmt"
	"strings"
)

// Fingerprint renders the shape of q for logs. Literal values are replaced
// by ?, so two queries that differ only in their parameters share a
// fingerprint.
func (q *Query) Fingerprint() string {
	var b strings.Builder
	writeQuery(&b, q, q.target)
	return b.String()
}

// String implements fmt.Stringer with the fingerprint.
func (q *Query) String() string {
	return q.Fingerprint()
}

func writeQuery(b *strings.Builder, q *Query, from string) {
	b.WriteString("SELECT ")
	var cols []string
	cols = append(cols, q.fields...)
	for _, a := range q.aggregates {
		if a.Func == Count {
			cols = append(cols, fmt.Sprintf("COUNT() %s", a.Alias))
			continue
		}
		fn := string(a.Func)
		if a.Func == CountField {
			fn = "COUNT"
		}
		cols = append(cols, fmt.Sprintf("%s(%s) %s", fn, a.Field, a.Alias))
	}
	b.WriteString(strings.Join(cols, ", "))
	for _, r := range q.relations {
		b.WriteString(", (")
		writeQuery(b, r.Query, r.Name)
		b.WriteString(")")
	}
	b.WriteString(" FROM ")
	b.WriteString(from)
	if q.filter != nil {
		b.WriteString(" WHERE ")
		writePredicate(b, q.filter)
	}
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.orderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Field)
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if q.hasLimit {
		fmt.Fprintf(b, " LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(b, " OFFSET %d", q.offset)
	}
}

func writePredicate(b *strings.Builder, p Predicate) {
	switch pred := p.(type) {
	case Compare:
		fmt.Fprintf(b, "%s %s ?", pred.Field, pred.Op)
	case In:
		fmt.Fprintf(b, "%s IN (?*%d)", pred.Field, len(pred.Values))
	case Between:
		fmt.Fprintf(b, "%s BETWEEN ? AND ?", pred.Field)
	case IsNull:
		if pred.Negate {
			fmt.Fprintf(b, "%s != NULL", pred.Field)
		} else {
			fmt.Fprintf(b, "%s = NULL", pred.Field)
		}
	case InQuery:
		fmt.Fprintf(b, "%s IN (", pred.Field)
		writeQuery(b, pred.Query, pred.Query.target)
		b.WriteString(")")
	case And:
		writeJoined(b, pred.Predicates, " AND ", "TRUE")
	case Or:
		writeJoined(b, pred.Predicates, " OR ", "FALSE")
	case Not:
		b.WriteString("NOT ")
		writePredicate(b, pred.Predicate)
	}
}

func writeJoined(b *strings.Builder, preds []Predicate, sep, empty string) {
	if len(preds) == 0 {
		b.WriteString(empty)
		return
	}
	b.WriteString("(")
	for i, p := range preds {
		if i > 0 {
			b.WriteString(sep)
		}
		writePredicate(b, p)
	}
	b.WriteString(")")
}
