package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// Statement is compiled SQL with its bind parameters. Columns lists the
// result columns in select order.
type Statement struct {
	SQL     string
	Params  []any
	Columns []string
}

// Compiler compiles structured queries to parameterized SQL.
//
// CRITICAL: every row query ends with ORDER BY and an "Id" tiebreaker so
// result order is deterministic.
// CRITICAL: values are always bound as parameters, never interpolated.
type Compiler struct {
	dialect Dialect
	kinds   FieldKinds
}

// FieldKinds resolves the declared kind of a collection field.
type FieldKinds interface {
	FieldKind(collection, field string) (ir.Kind, bool)
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithFieldKinds lets the compiler see field kinds. On SQLite it is needed
// to order MIN and MAX of decimal fields numerically.
func WithFieldKinds(k FieldKinds) CompilerOption {
	return func(c *Compiler) {
		c.kinds = k
	}
}

// NewCompiler creates a compiler for the given dialect.
func NewCompiler(d Dialect, opts ...CompilerOption) *Compiler {
	c := &Compiler{dialect: d}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// builder accumulates one statement's parameters so placeholders number
// correctly across nested predicates.
type builder struct {
	dialect Dialect
	params  []any
}

func (b *builder) bind(v ir.Value) (string, error) {
	p, err := Param(v)
	if err != nil {
		return "", err
	}
	b.params = append(b.params, p)
	return b.dialect.placeholder(len(b.params)), nil
}

// Compile compiles a row query. Relationship sub-queries are not part of
// the statement; compile them with CompileChildren once parent ids are known.
func (c *Compiler) Compile(q *query.Query) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	if q.IsAggregate() {
		return Statement{}, errors.New("aggregate query: use CompileAggregate")
	}
	b := &builder{dialect: c.dialect}
	cols := rowColumns(q.Fields())
	sql, err := c.compileSelect(b, q, cols, "", nil)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Params: b.params, Columns: cols}, nil
}

// CompileChildren compiles the fetch for one relationship sub-query across
// all parents at once: sub's filter ANDed with foreignKey IN (parentIDs).
//
// Results are ordered by foreign key first so rows group by parent. The
// sub-query's limit and offset apply per parent and are left to the caller.
func (c *Compiler) CompileChildren(sub *query.Query, foreignKey string, parentIDs []string) (Statement, error) {
	if err := sub.Validate(); err != nil {
		return Statement{}, err
	}
	if foreignKey == "" {
		return Statement{}, errors.New("compile children: foreign key is required")
	}
	if len(parentIDs) == 0 {
		return Statement{}, errors.New("compile children: no parent ids")
	}
	b := &builder{dialect: c.dialect}
	fields := slices.DeleteFunc(sub.Fields(), func(f string) bool { return f == foreignKey })
	cols := rowColumns(append([]string{foreignKey}, fields...))

	ids := make([]ir.Value, len(parentIDs))
	for i, id := range parentIDs {
		ids[i] = ir.Ref(id)
	}
	sql, err := c.compileSelect(b, sub, cols, foreignKey, ids)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Params: b.params, Columns: cols}, nil
}

// CompileAggregate compiles an aggregate query. Result columns are the
// group-by fields followed by the aggregate aliases.
func (c *Compiler) CompileAggregate(q *query.Query) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	if !q.IsAggregate() {
		return Statement{}, errors.New("compile aggregate: query has no aggregates")
	}
	b := &builder{dialect: c.dialect}

	var selects, cols []string
	for _, g := range q.GroupByFields() {
		selects = append(selects, QuoteIdent(g))
		cols = append(cols, g)
	}
	decimalAliases := map[string]bool{}
	for _, a := range q.Aggregates() {
		selects = append(selects, c.aggregateExpr(a)+" AS "+QuoteIdent(a.Alias))
		cols = append(cols, a.Alias)
		if c.decimalResult(q.Target(), a) {
			decimalAliases[a.Alias] = true
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(selects, ", "), QuoteIdent(q.Target()))
	if err := c.writeWhere(&sb, b, q.Filter(), "", nil); err != nil {
		return Statement{}, err
	}
	if groups := q.GroupByFields(); len(groups) > 0 {
		quoted := make([]string, len(groups))
		for i, g := range groups {
			quoted[i] = QuoteIdent(g)
		}
		fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(quoted, ", "))
	}

	// Grouped fields not named by the caller break ties.
	order := q.Ordering()
	for _, g := range q.GroupByFields() {
		if !slices.ContainsFunc(order, func(o query.Order) bool { return o.Field == g }) {
			order = append(order, query.Order{Field: g})
		}
	}
	if len(order) > 0 {
		terms := make([]string, len(order))
		for i, o := range order {
			terms[i] = c.orderTerm(o)
			if decimalAliases[o.Field] {
				terms[i] = c.decimalOrderTerm(o)
			}
		}
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(terms, ", "))
	}
	c.writePaging(&sb, q)
	return Statement{SQL: sb.String(), Params: b.params, Columns: cols}, nil
}

func (c *Compiler) aggregateExpr(a query.Aggregate) string {
	switch a.Func {
	case query.Count:
		return "COUNT(*)"
	case query.CountField:
		return fmt.Sprintf("COUNT(%s)", QuoteIdent(a.Field))
	case query.Sum:
		if c.dialect == SQLite {
			return fmt.Sprintf("%s(%s)", DecimalSumFunc, QuoteIdent(a.Field))
		}
	case query.Avg:
		if c.dialect == SQLite {
			return fmt.Sprintf("%s(%s)", DecimalAvgFunc, QuoteIdent(a.Field))
		}
	}
	return fmt.Sprintf("%s(%s)", a.Func, QuoteIdent(a.Field))
}

// decimalResult reports whether a SQLite aggregate yields decimal text
// that must be ordered under DecimalCollation.
func (c *Compiler) decimalResult(collection string, a query.Aggregate) bool {
	if c.dialect != SQLite {
		return false
	}
	switch a.Func {
	case query.Sum, query.Avg:
		return true
	case query.Min, query.Max:
		if c.kinds == nil {
			return false
		}
		k, ok := c.kinds.FieldKind(collection, a.Field)
		return ok && k == ir.KindDecimal
	}
	return false
}

func (c *Compiler) decimalOrderTerm(o query.Order) string {
	term := QuoteIdent(o.Field) + " COLLATE " + DecimalCollation
	if o.Desc {
		return term + " DESC"
	}
	return term + " ASC"
}

// rowColumns puts the identity column first and drops duplicates of it.
func rowColumns(fields []string) []string {
	cols := []string{query.IDField}
	for _, f := range fields {
		if f != query.IDField {
			cols = append(cols, f)
		}
	}
	return cols
}

// compileSelect writes a row SELECT. When scopeField is set, the filter is
// narrowed to scopeField IN (scope) and rows are ordered by it first.
func (c *Compiler) compileSelect(b *builder, q *query.Query, cols []string, scopeField string, scope []ir.Value) (string, error) {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = QuoteIdent(col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(quoted, ", "), QuoteIdent(q.Target()))
	if err := c.writeWhere(&sb, b, q.Filter(), scopeField, scope); err != nil {
		return "", err
	}

	// MANDATORY: always ORDER BY, ending with the identity column.
	var order []query.Order
	if scopeField != "" {
		order = append(order, query.Order{Field: scopeField})
	}
	order = append(order, q.Ordering()...)
	terms := make([]string, 0, len(order)+1)
	for _, o := range order {
		terms = append(terms, c.orderTerm(o))
	}
	if !slices.ContainsFunc(order, func(o query.Order) bool { return o.Field == query.IDField }) {
		terms = append(terms, c.stableOrderKey())
	}
	fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(terms, ", "))

	if scopeField == "" {
		c.writePaging(&sb, q)
	}
	return sb.String(), nil
}

func (c *Compiler) writeWhere(sb *strings.Builder, b *builder, filter query.Predicate, scopeField string, scope []ir.Value) error {
	var parts []string
	if scopeField != "" {
		sql, err := c.compilePredicate(b, query.In{Field: scopeField, Values: scope})
		if err != nil {
			return err
		}
		parts = append(parts, sql)
	}
	if filter != nil {
		sql, err := c.compilePredicate(b, filter)
		if err != nil {
			return fmt.Errorf("compile filter: %w", err)
		}
		parts = append(parts, sql)
	}
	if len(parts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}
	return nil
}

// stableOrderKey is the identity tiebreaker. Binary collation keeps text
// ordering identical across databases.
func (c *Compiler) stableOrderKey() string {
	if c.dialect == Postgres {
		return QuoteIdent(query.IDField) + ` COLLATE "C" ASC`
	}
	return QuoteIdent(query.IDField) + " COLLATE BINARY ASC"
}

// orderTerm renders one ORDER BY term with nulls sorting lowest, the SQLite
// default, in both dialects.
func (c *Compiler) orderTerm(o query.Order) string {
	term := QuoteIdent(o.Field)
	if o.Desc {
		term += " DESC"
	} else {
		term += " ASC"
	}
	if c.dialect == Postgres {
		if o.Desc {
			term += " NULLS LAST"
		} else {
			term += " NULLS FIRST"
		}
	}
	return term
}

func (c *Compiler) writePaging(sb *strings.Builder, q *query.Query) {
	limit, hasLimit := q.RowLimit()
	offset := q.RowOffset()
	switch {
	case hasLimit:
		fmt.Fprintf(sb, " LIMIT %d", limit)
	case offset > 0 && c.dialect == SQLite:
		// SQLite only accepts OFFSET after a LIMIT.
		sb.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(sb, " OFFSET %d", offset)
	}
}

// compilePredicate compiles a filter node to a WHERE fragment.
// CRITICAL: values are NEVER interpolated.
func (c *Compiler) compilePredicate(b *builder, p query.Predicate) (string, error) {
	switch pred := p.(type) {
	case query.Compare:
		ph, err := b.bind(pred.Value)
		if err != nil {
			return "", fmt.Errorf("convert value for %s: %w", pred.Field, err)
		}
		op := string(pred.Op)
		switch pred.Op {
		case query.OpNe:
			op = "<>"
		case query.OpLike:
			op = c.dialect.like()
		}
		return fmt.Sprintf("%s %s %s", QuoteIdent(pred.Field), op, ph), nil

	case query.In:
		phs := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			ph, err := b.bind(v)
			if err != nil {
				return "", fmt.Errorf("convert value for %s: %w", pred.Field, err)
			}
			phs[i] = ph
		}
		return fmt.Sprintf("%s IN (%s)", QuoteIdent(pred.Field), strings.Join(phs, ", ")), nil

	case query.Between:
		low, err := b.bind(pred.Low)
		if err != nil {
			return "", fmt.Errorf("convert low bound for %s: %w", pred.Field, err)
		}
		high, err := b.bind(pred.High)
		if err != nil {
			return "", fmt.Errorf("convert high bound for %s: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", QuoteIdent(pred.Field), low, high), nil

	case query.IsNull:
		if pred.Negate {
			return QuoteIdent(pred.Field) + " IS NOT NULL", nil
		}
		return QuoteIdent(pred.Field) + " IS NULL", nil

	case query.InQuery:
		sub, err := c.compileSubSelect(b, pred.Query)
		if err != nil {
			return "", fmt.Errorf("semi-join on %s: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s IN (%s)", QuoteIdent(pred.Field), sub), nil

	case query.And:
		return c.compileJunction(b, pred.Predicates, " AND ", "1 = 1")

	case query.Or:
		return c.compileJunction(b, pred.Predicates, " OR ", "1 = 0")

	case query.Not:
		inner, err := c.compilePredicate(b, pred.Predicate)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *Compiler) compileJunction(b *builder, preds []query.Predicate, sep, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		sql, err := c.compilePredicate(b, p)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// compileSubSelect compiles the single-column select of a semi-join. It is
// only ordered when paged, since order is otherwise irrelevant to IN.
func (c *Compiler) compileSubSelect(b *builder, q *query.Query) (string, error) {
	fields := q.Fields()
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", QuoteIdent(fields[0]), QuoteIdent(q.Target()))
	if err := c.writeWhere(&sb, b, q.Filter(), "", nil); err != nil {
		return "", err
	}
	_, hasLimit := q.RowLimit()
	if hasLimit || q.RowOffset() > 0 {
		terms := make([]string, 0, len(q.Ordering())+1)
		for _, o := range q.Ordering() {
			terms = append(terms, c.orderTerm(o))
		}
		terms = append(terms, c.stableOrderKey())
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(terms, ", "))
		c.writePaging(&sb, q)
	}
	return sb.String(), nil
}
