// Package storetest is a behavioural suite every store.Store implementation
// must pass against the default catalog.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/store"
)

// Factory returns an empty store over schema.MustDefault().
type Factory func(t *testing.T) store.Store

// Run executes the suite, one fresh store per subtest.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAssignsIDs", testInsertAssignsIDs},
		{"InsertPerRecordFailures", testInsertPerRecordFailures},
		{"UpdateMergesFields", testUpdateMergesFields},
		{"UpdateAndDeleteFailures", testUpdateAndDeleteFailures},
		{"Upsert", testUpsert},
		{"AllOrNoneRollsBack", testAllOrNoneRollsBack},
		{"EmptyResultIsNotNil", testEmptyResultIsNotNil},
		{"Ordering", testOrdering},
		{"Filters", testFilters},
		{"NullsUseThreeValuedLogic", testNullsUseThreeValuedLogic},
		{"Paging", testPaging},
		{"SemiJoin", testSemiJoin},
		{"Relations", testRelations},
		{"Aggregates", testAggregates},
		{"DecimalsStayExact", testDecimalsStayExact},
		{"UnknownFieldFailsCall", testUnknownFieldFailsCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func account(id, name, industry, revenue string, active bool) ir.Record {
	r := ir.NewRecord("Account")
	r.ID = id
	r.Set("Name", ir.String(name))
	if industry != "" {
		r.Set("Industry", ir.String(industry))
	}
	if revenue != "" {
		r.Set("AnnualRevenue", ir.MustDecimal(revenue))
	}
	r.Set("Active", ir.Bool(active))
	return r
}

func contact(id, accountID, last, email string) ir.Record {
	r := ir.NewRecord("Contact")
	r.ID = id
	r.Set("AccountId", ir.Ref(accountID))
	r.Set("LastName", ir.String(last))
	if email != "" {
		r.Set("Email", ir.String(email))
	}
	return r
}

func opportunity(id, accountID, name, stage, amount string) ir.Record {
	r := ir.NewRecord("Opportunity")
	r.ID = id
	r.Set("AccountId", ir.Ref(accountID))
	r.Set("Name", ir.String(name))
	r.Set("Stage", ir.String(stage))
	r.Set("Amount", ir.MustDecimal(amount))
	r.Set("CloseDate", ir.NewDate(2024, 6, 30))
	return r
}

func write(t *testing.T, s store.Store, kind store.Kind, recs ...ir.Record) []store.Result {
	t.Helper()
	results, err := s.BulkWrite(context.Background(), kind, recs, store.BulkOptions{})
	require.NoError(t, err)
	require.Len(t, results, len(recs))
	return results
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	for _, r := range write(t, s, store.Insert,
		account("acc-1", "Acme", "Energy", "1000.5", true),
		account("acc-2", "Globex", "Retail", "250", false),
		account("acc-3", "initech", "", "", true),
		account("acc-4", "Umbrella", "Energy", "7500", true),
	) {
		require.NoError(t, r.Err)
	}
	for _, r := range write(t, s, store.Insert,
		contact("con-1", "acc-1", "Doe", "jane@acme.com"),
		contact("con-2", "acc-1", "Adams", ""),
		contact("con-3", "acc-2", "Roe", "rick@globex.com"),
		contact("con-4", "acc-1", "Baker", "bb@acme.com"),
	) {
		require.NoError(t, r.Err)
	}
	for _, r := range write(t, s, store.Insert,
		opportunity("opp-1", "acc-1", "Turbines", "Prospecting", "100.25"),
		opportunity("opp-2", "acc-1", "Panels", "Closed Won", "400"),
		opportunity("opp-3", "acc-2", "Shelving", "Prospecting", "50.25"),
		opportunity("opp-4", "acc-4", "Vaccines", "Closed Won", "1000"),
		opportunity("opp-5", "acc-4", "Labs", "Negotiation", "10"),
	) {
		require.NoError(t, r.Err)
	}
}

func fetch(t *testing.T, s store.Store, q *query.Query) []ir.Record {
	t.Helper()
	rows, err := s.Query(context.Background(), q)
	require.NoError(t, err)
	return rows
}

func ids(rows []ir.Record) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func assertDecimal(t *testing.T, want string, got ir.Value) {
	t.Helper()
	d, ok := got.(ir.Decimal)
	require.True(t, ok, "want decimal, got %T", got)
	assert.Equal(t, 0, ir.MustDecimal(want).Cmp(d), "want %s, got %s", want, d)
}

func testInsertAssignsIDs(t *testing.T, s store.Store) {
	rec := ir.NewRecord("Account")
	rec.Set("Name", ir.String("NoID"))
	results := write(t, s, store.Insert, rec, account("client-id", "Given", "", "", true))

	require.True(t, results[0].Success)
	assert.Len(t, results[0].AssignedID, 36, "generated ids are UUIDs")
	require.True(t, results[1].Success)
	assert.Equal(t, "client-id", results[1].AssignedID)

	rows := fetch(t, s, query.From("Account").Select("Name").Where(query.InIDs(results[0].AssignedID)))
	require.Len(t, rows, 1)
	assert.Equal(t, results[0].AssignedID, rows[0].ID)
	assert.Equal(t, "Account", rows[0].Collection)
	assert.Equal(t, ir.String("NoID"), rows[0].Get("Name"))
}

func testInsertPerRecordFailures(t *testing.T, s store.Store) {
	seed(t, s)
	results := write(t, s, store.Insert,
		account("acc-1", "Duplicate", "", "", true),
		account("acc-9", "Fresh", "", "", true),
	)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[0].Err, store.ErrDuplicateID)
	assert.True(t, results[1].Success)

	rows := fetch(t, s, query.From("Account").Select("Name").Where(query.InIDs("acc-1", "acc-9")))
	require.Len(t, rows, 2)
	assert.Equal(t, ir.String("Acme"), rows[0].Get("Name"))
	assert.Equal(t, ir.String("Fresh"), rows[1].Get("Name"))
}

func testUpdateMergesFields(t *testing.T, s store.Store) {
	seed(t, s)
	patch := ir.NewRecord("Account")
	patch.ID = "acc-2"
	patch.Set("Industry", ir.String("Logistics"))
	patch.Set("FoundedOn", ir.NewDate(1989, 12, 17))
	results := write(t, s, store.Update, patch)
	require.True(t, results[0].Success, "%v", results[0].Err)
	assert.Equal(t, "acc-2", results[0].AssignedID)

	rows := fetch(t, s, query.From("Account").Select("Name", "Industry", "FoundedOn", "AnnualRevenue", "Active").Where(query.Eq(query.IDField, ir.Ref("acc-2"))))
	require.Len(t, rows, 1)
	assert.Equal(t, ir.String("Globex"), rows[0].Get("Name"))
	assert.Equal(t, ir.String("Logistics"), rows[0].Get("Industry"))
	assert.Equal(t, "1989-12-17", ir.Format(rows[0].Get("FoundedOn")))
	assertDecimal(t, "250", rows[0].Get("AnnualRevenue"))
	assert.Equal(t, ir.Bool(false), rows[0].Get("Active"))
}

func testUpdateAndDeleteFailures(t *testing.T, s store.Store) {
	seed(t, s)
	missing := account("acc-404", "Ghost", "", "", true)
	noID := account("", "Nobody", "", "", true)

	results := write(t, s, store.Update, missing, noID)
	assert.ErrorIs(t, results[0].Err, store.ErrRecordNotFound)
	assert.ErrorIs(t, results[1].Err, store.ErrMissingID)

	results = write(t, s, store.Delete, missing, account("acc-3", "", "", "", true))
	assert.ErrorIs(t, results[0].Err, store.ErrRecordNotFound)
	assert.True(t, results[1].Success)

	rows := fetch(t, s, query.From("Account").Select("Name"))
	assert.Equal(t, []string{"acc-1", "acc-2", "acc-4"}, ids(rows))
}

func testUpsert(t *testing.T, s store.Store) {
	seed(t, s)
	existing := ir.NewRecord("Account")
	existing.ID = "acc-1"
	existing.Set("Industry", ir.String("Utilities"))
	results := write(t, s, store.Upsert, existing, account("acc-5", "Hooli", "Tech", "", true))
	require.True(t, results[0].Success)
	require.True(t, results[1].Success)

	rows := fetch(t, s, query.From("Account").Select("Name", "Industry").Where(query.InIDs("acc-1", "acc-5")))
	require.Len(t, rows, 2)
	assert.Equal(t, ir.String("Acme"), rows[0].Get("Name"))
	assert.Equal(t, ir.String("Utilities"), rows[0].Get("Industry"))
	assert.Equal(t, ir.String("Hooli"), rows[1].Get("Name"))
}

func testAllOrNoneRollsBack(t *testing.T, s store.Store) {
	seed(t, s)
	results, err := s.BulkWrite(context.Background(), store.Insert, []ir.Record{
		account("acc-7", "Fine", "", "", true),
		account("acc-1", "Duplicate", "", "", true),
		account("acc-8", "AlsoFine", "", "", true),
	}, store.BulkOptions{AllOrNone: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, store.ErrRolledBack)
	assert.ErrorIs(t, results[1].Err, store.ErrDuplicateID)
	assert.ErrorIs(t, results[2].Err, store.ErrRolledBack)
	for _, r := range results {
		assert.False(t, r.Success)
	}

	rows := fetch(t, s, query.From("Account").Select("Name").Where(query.InIDs("acc-7", "acc-8")))
	assert.Empty(t, rows)
}

func testEmptyResultIsNotNil(t *testing.T, s store.Store) {
	rows := fetch(t, s, query.From("Account").Select("Name"))
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	results, err := s.BulkWrite(context.Background(), store.Insert, nil, store.BulkOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testOrdering(t *testing.T, s store.Store) {
	seed(t, s)

	rows := fetch(t, s, query.From("Account").Select("Name"))
	assert.Equal(t, []string{"acc-1", "acc-2", "acc-3", "acc-4"}, ids(rows), "default order is by id")

	rows = fetch(t, s, query.From("Account").Select("Industry").OrderBy("Industry"))
	assert.Equal(t, []string{"acc-3", "acc-1", "acc-4", "acc-2"}, ids(rows), "nulls first, id breaks ties")

	rows = fetch(t, s, query.From("Account").Select("AnnualRevenue").OrderByDesc("AnnualRevenue"))
	assert.Equal(t, []string{"acc-4", "acc-1", "acc-2", "acc-3"}, ids(rows), "numeric order, nulls last when descending")
}

func testFilters(t *testing.T, s store.Store) {
	seed(t, s)
	base := query.From("Account").Select("Name")

	tests := []struct {
		name  string
		pred  query.Predicate
		want  []string
	}{
		{"eq", query.Eq("Industry", ir.String("Energy")), []string{"acc-1", "acc-4"}},
		{"like is case-insensitive", query.Like("Name", "I%"), []string{"acc-3"}},
		{"between decimals", query.Range("AnnualRevenue", ir.Int(250), ir.MustDecimal("1000.5")), []string{"acc-1", "acc-2"}},
		{"gt decimal", query.Gt("AnnualRevenue", ir.MustDecimal("999.99")), []string{"acc-1", "acc-4"}},
		{"bool", query.Eq("Active", ir.Bool(false)), []string{"acc-2"}},
		{"in", query.InSet("Name", ir.String("Globex"), ir.String("Umbrella")), []string{"acc-2", "acc-4"}},
		{"is null", query.Null("Industry"), []string{"acc-3"}},
		{"or", query.AnyOf(query.Eq("Industry", ir.String("Retail")), query.Null("AnnualRevenue")), []string{"acc-2", "acc-3"}},
		{"ids as strings", query.InSet(query.IDField, ir.String("acc-2")), []string{"acc-2"}},
		{"empty or", query.AnyOf(), []string{}},
		{"empty and", query.AllOf(), []string{"acc-1", "acc-2", "acc-3", "acc-4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(fetch(t, s, base.Where(tt.pred))))
		})
	}
}

func testNullsUseThreeValuedLogic(t *testing.T, s store.Store) {
	seed(t, s)
	base := query.From("Account").Select("Name")

	assert.Equal(t, []string{"acc-2"}, ids(fetch(t, s, base.Where(query.Ne("Industry", ir.String("Energy"))))),
		"null industry is neither equal nor unequal")
	assert.Equal(t, []string{"acc-2"}, ids(fetch(t, s, base.Where(query.Negate(query.Eq("Industry", ir.String("Energy")))))),
		"NOT unknown is unknown")
}

func testPaging(t *testing.T, s store.Store) {
	seed(t, s)
	base := query.From("Account").Select("Name").OrderBy("Name")

	assert.Equal(t, []string{"acc-1", "acc-2"}, ids(fetch(t, s, base.Limit(2))))
	assert.Equal(t, []string{"acc-4", "acc-3"}, ids(fetch(t, s, base.Offset(2))), "binary collation sorts upper case first")
	assert.Equal(t, []string{"acc-4"}, ids(fetch(t, s, base.Limit(1).Offset(2))))
	assert.Empty(t, fetch(t, s, base.Offset(10)))
}

func testSemiJoin(t *testing.T, s store.Store) {
	seed(t, s)
	energy := query.From("Account").Select(query.IDField).Where(query.Eq("Industry", ir.String("Energy")))
	rows := fetch(t, s, query.From("Opportunity").Select("Name").Where(query.Within("AccountId", energy)))
	assert.Equal(t, []string{"opp-1", "opp-2", "opp-4", "opp-5"}, ids(rows))
}

func testRelations(t *testing.T, s store.Store) {
	seed(t, s)
	q := query.From("Account").
		Select("Name").
		Where(query.InIDs("acc-1", "acc-2", "acc-3")).
		WithRelation("Contacts", query.From("Contact").Select("LastName").OrderBy("LastName").Limit(2)).
		WithRelation("Opportunities", query.From("Opportunity").Select("Name", "Amount").Where(query.Eq("Stage", ir.String("Prospecting"))))

	rows := fetch(t, s, q)
	require.Len(t, rows, 3)

	acme := rows[0]
	require.Contains(t, acme.Related, "Contacts")
	assert.Equal(t, []string{"con-2", "con-4"}, ids(acme.Related["Contacts"]), "ordered by last name, limited per parent")
	assert.Equal(t, ir.String("Adams"), acme.Related["Contacts"][0].Get("LastName"))
	assert.False(t, acme.Related["Contacts"][0].Has("AccountId"), "children carry only selected fields")
	assert.Equal(t, []string{"opp-1"}, ids(acme.Related["Opportunities"]))
	assertDecimal(t, "100.25", acme.Related["Opportunities"][0].Get("Amount"))

	assert.Equal(t, []string{"con-3"}, ids(rows[1].Related["Contacts"]))

	initech := rows[2]
	require.Contains(t, initech.Related, "Contacts")
	assert.NotNil(t, initech.Related["Contacts"])
	assert.Empty(t, initech.Related["Contacts"])
}

func testAggregates(t *testing.T, s store.Store) {
	seed(t, s)
	q := query.From("Opportunity").
		Select("Stage").
		GroupBy("Stage").
		Aggregate(query.Sum, "Amount").
		Aggregate(query.Count, "").
		OrderByDesc("expr0")

	rows, err := s.AggregateQuery(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []ir.Value{ir.String("Closed Won")}, rows[0].Group)
	assertDecimal(t, "1400", rows[0].Value("expr0"))
	assert.Equal(t, ir.Int(2), rows[0].Value("expr1"))

	assert.Equal(t, []ir.Value{ir.String("Prospecting")}, rows[1].Group)
	assertDecimal(t, "150.5", rows[1].Value("expr0"))

	assert.Equal(t, []ir.Value{ir.String("Negotiation")}, rows[2].Group)
	assert.Equal(t, ir.Int(1), rows[2].Value("expr1"))

	total, err := s.AggregateQuery(context.Background(), query.From("Opportunity").
		Where(query.Eq("Stage", ir.String("Lost"))).
		Aggregate(query.Count, "").
		Aggregate(query.Max, "Amount"))
	require.NoError(t, err)
	require.Len(t, total, 1, "no group by means one row even over no input")
	assert.Equal(t, ir.Int(0), total[0].Value("expr0"))
	assert.Equal(t, ir.Null{}, total[0].Value("expr1"))
}

func testDecimalsStayExact(t *testing.T, s store.Store) {
	for _, r := range write(t, s, store.Insert,
		account("acc-big", "Big", "", "12345678901234567.89", true),
		account("acc-mid", "Mid", "", "10.25", true),
		account("acc-small", "Small", "", "9.5", true),
	) {
		require.NoError(t, r.Err)
	}
	for _, r := range write(t, s, store.Insert,
		opportunity("opp-a", "acc-big", "A", "Prospecting", "0.1"),
		opportunity("opp-b", "acc-big", "B", "Prospecting", "0.2"),
		opportunity("opp-c", "acc-mid", "C", "Closed Won", "12345678901234567.01"),
		opportunity("opp-d", "acc-mid", "D", "Closed Won", "0.98"),
	) {
		require.NoError(t, r.Err)
	}

	rows := fetch(t, s, query.From("Account").Select("AnnualRevenue").Where(query.InIDs("acc-big")))
	require.Len(t, rows, 1)
	assertDecimal(t, "12345678901234567.89", rows[0].Get("AnnualRevenue"))

	rows = fetch(t, s, query.From("Account").Select("Name").Where(query.Gt("AnnualRevenue", ir.MustDecimal("12345678901234567.88"))))
	assert.Equal(t, []string{"acc-big"}, ids(rows))

	rows = fetch(t, s, query.From("Account").Select("Name").OrderBy("AnnualRevenue"))
	assert.Equal(t, []string{"acc-small", "acc-mid", "acc-big"}, ids(rows), "decimals order numerically")

	agg, err := s.AggregateQuery(context.Background(), query.From("Opportunity").
		Select("Stage").
		GroupBy("Stage").
		AggregateAs(query.Sum, "Amount", "total").
		AggregateAs(query.Avg, "Amount", "average").
		AggregateAs(query.Min, "Amount", "low").
		AggregateAs(query.Max, "Amount", "high").
		OrderBy("total"))
	require.NoError(t, err)
	require.Len(t, agg, 2)

	assert.Equal(t, []ir.Value{ir.String("Prospecting")}, agg[0].Group)
	assertDecimal(t, "0.3", agg[0].Value("total"))
	assertDecimal(t, "0.15", agg[0].Value("average"))
	assertDecimal(t, "0.1", agg[0].Value("low"))
	assertDecimal(t, "0.2", agg[0].Value("high"))

	assert.Equal(t, []ir.Value{ir.String("Closed Won")}, agg[1].Group)
	assertDecimal(t, "12345678901234567.99", agg[1].Value("total"))
	assertDecimal(t, "0.98", agg[1].Value("low"))
	assertDecimal(t, "12345678901234567.01", agg[1].Value("high"))
}

func testUnknownFieldFailsCall(t *testing.T, s store.Store) {
	_, err := s.Query(context.Background(), query.From("Account").Select("Nope"))
	assert.Error(t, err)

	_, err = s.Query(context.Background(), query.From("Lead").Select("Name"))
	assert.Error(t, err)

	bad := ir.NewRecord("Account")
	bad.Set("Nope", ir.String("x"))
	results, err := s.BulkWrite(context.Background(), store.Insert, []ir.Record{bad}, store.BulkOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)
}
