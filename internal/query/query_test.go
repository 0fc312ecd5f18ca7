package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstore/internal/ir"
)

func TestBuilder_Immutable(t *testing.T) {
	base := From("Account").Select("Name")
	narrowed := base.Select("Industry").Where(Eq("Active", ir.Bool(true))).Limit(5)

	assert.Equal(t, []string{"Name"}, base.Fields())
	assert.Nil(t, base.Filter())
	_, hasLimit := base.RowLimit()
	assert.False(t, hasLimit)

	assert.Equal(t, []string{"Name", "Industry"}, narrowed.Fields())
	n, hasLimit := narrowed.RowLimit()
	assert.True(t, hasLimit)
	assert.Equal(t, 5, n)
}

func TestBuilder_SiblingsDoNotAlias(t *testing.T) {
	base := From("Account").Select("Name", "Industry")
	a := base.Select("A")
	b := base.Select("B")
	assert.Equal(t, []string{"Name", "Industry", "A"}, a.Fields())
	assert.Equal(t, []string{"Name", "Industry", "B"}, b.Fields())
}

func TestSelect_Dedupes(t *testing.T) {
	q := From("Account").Select("Name", IDField, "Name")
	assert.Equal(t, []string{"Name", IDField}, q.Fields())
}

func TestWhere_RepeatedCallsAnd(t *testing.T) {
	q := From("Account").Select("Name").
		Where(Eq("Industry", ir.String("Energy"))).
		Where(Gt("Employees", ir.Int(10)))

	and, ok := q.Filter().(And)
	require.True(t, ok)
	assert.Len(t, and.Predicates, 2)
}

func TestBuild_Valid(t *testing.T) {
	q, err := From("Account").Select("Name").Where(InIDs("1", "2", "1")).Build()
	require.NoError(t, err)
	in := q.Filter().(In)
	assert.Equal(t, IDField, in.Field)
	assert.Equal(t, []ir.Value{ir.Ref("1"), ir.Ref("2")}, in.Values)
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name   string
		q      *Query
		reason string
	}{
		{"empty target", From("").Select("Name"), "target collection is required"},
		{"empty projection", From("Account"), "field list is empty"},
		{"zero limit", From("Account").Select("Name").Limit(0), "limit must be positive, got 0"},
		{"negative offset", From("Account").Select("Name").Offset(-1), "offset must not be negative, got -1"},
		{"unknown operator", From("Account").Select("Name").Where(Compare{Field: "Name", Op: "~", Value: ir.String("x")}), `unknown operator "~" on Name`},
		{"empty in set", From("Account").Select("Name").Where(InIDs()), "IN on Id has an empty value set"},
		{"null comparison", From("Account").Select("Name").Where(Eq("Name", ir.Null{})), "comparison on Name against null (use Null or NotNull)"},
		{"like needs string", From("Account").Select("Name").Where(Compare{Field: "Name", Op: OpLike, Value: ir.Int(1)}), "LIKE on Name requires a string pattern"},
		{"unknown aggregate", From("Opportunity").Aggregate("MEDIAN", "Amount"), `unknown aggregate function "MEDIAN"`},
		{"sum without field", From("Opportunity").Aggregate(Sum, ""), "SUM requires a field"},
		{"ungrouped field", From("Opportunity").Select("Stage").Aggregate(Sum, "Amount"), "field Stage must be grouped or aggregated"},
		{"group without aggregate", From("Opportunity").Select("Stage").GroupBy("Stage"), "group by requires an aggregate"},
		{"order by in aggregate", From("Opportunity").Select("Stage").GroupBy("Stage").Aggregate(Sum, "Amount").OrderBy("Amount"), "order by Amount must name a grouped field or an aggregate alias"},
		{"duplicate relation", From("Account").Select("Name").
			WithRelation("Contacts", From("Contact").Select("LastName")).
			WithRelation("Contacts", From("Contact").Select("FirstName")), "duplicate relation Contacts"},
		{"relation too deep", From("Account").Select("Name").
			WithRelation("Contacts", From("Contact").Select("LastName").
				WithRelation("Cases", From("Case").Select("Subject"))), "relation Contacts: nesting depth 2 exceeds maximum 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			require.Error(t, err)
			assert.True(t, IsMalformedQuery(err))
			var me *MalformedQueryError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.reason, me.Reason)
		})
	}
}

func TestMalformed_Sticky(t *testing.T) {
	q := From("Account").Select("Name").Limit(-3).Offset(-1).Select("Industry")
	require.Error(t, q.Err())
	assert.Contains(t, q.Err().Error(), "limit must be positive, got -3")
	assert.Equal(t, []string{"Name"}, q.Fields(), "steps after a failure keep the failed query's state")

	_, err := q.Build()
	assert.Equal(t, q.Err(), err)
}

func TestWithRelation_DepthLimit(t *testing.T) {
	child := From("Contact").Select("LastName")
	q := From("Account").Select("Name").WithRelation("Contacts", child)
	require.NoError(t, q.Validate())
	assert.Equal(t, 1, q.Depth())

	grandchild := From("Case").Select("Subject")
	deep := From("Account", WithLimits(Limits{MaxRelationDepth: 2, MaxRelations: 55})).
		Select("Name").
		WithRelation("Contacts", From("Contact", WithLimits(Limits{MaxRelationDepth: 2, MaxRelations: 55})).
			Select("LastName").
			WithRelation("Cases", grandchild))
	require.NoError(t, deep.Validate())
	assert.Equal(t, 2, deep.Depth())
}

func TestWithRelation_BreadthLimit(t *testing.T) {
	q := From("Account").Select("Name")
	for i := range DefaultLimits.MaxRelations {
		q = q.WithRelation(fmt.Sprintf("R%d", i), From("Child").Select("Name"))
	}
	require.NoError(t, q.Validate())
	assert.Len(t, q.Relations(), 55)

	over := q.WithRelation("R55", From("Child").Select("Name"))
	require.Error(t, over.Err())
	assert.Contains(t, over.Err().Error(), "too many relation sub-queries: 56 exceeds maximum 55")
}

func TestAggregate_Aliases(t *testing.T) {
	q, err := From("Opportunity").
		Select("Stage").
		GroupBy("Stage").
		Aggregate(Sum, "Amount").
		Aggregate(Count, "").
		OrderByDesc("expr0").
		Build()
	require.NoError(t, err)
	assert.True(t, q.IsAggregate())
	assert.Equal(t, []Aggregate{
		{Func: Sum, Field: "Amount", Alias: "expr0"},
		{Func: Count, Alias: "expr1"},
	}, q.Aggregates())
}

func TestAggregate_NoProjectionAllowed(t *testing.T) {
	_, err := From("Opportunity").AggregateAs(Count, "", "total").Build()
	require.NoError(t, err)
}

func TestAggregate_RelationsRejected(t *testing.T) {
	err := From("Account").
		Aggregate(Count, "").
		WithRelation("Contacts", From("Contact").Select("LastName")).
		Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation sub-queries are not allowed in aggregate queries")
}

func TestInQuery(t *testing.T) {
	accounts := From("Account").Select(IDField).Where(Eq("Industry", ir.String("Energy")))
	q := From("Contact").Select("LastName").Where(Within("AccountId", accounts))
	require.NoError(t, q.Validate())

	wide := From("Account").Select(IDField, "Name")
	bad := From("Contact").Select("LastName").Where(Within("AccountId", wide))
	require.Error(t, bad.Err())
	assert.Contains(t, bad.Err().Error(), "semi-join on AccountId must select exactly one field")
}

func TestFingerprint(t *testing.T) {
	q := From("Account").
		Select("Name", IDField).
		Where(AllOf(Eq("Industry", ir.String("Energy")), InIDs("a", "b"), NotNull("Billing_City"))).
		WithRelation("Contacts", From("Contact").Select("LastName").OrderBy("LastName")).
		OrderByDesc("Name").
		Limit(10).
		Offset(20)

	assert.Equal(t,
		"SELECT Name, Id, (SELECT LastName FROM Contacts ORDER BY LastName) FROM Account WHERE (Industry = ? AND Id IN (?*2) AND Billing_City != NULL) ORDER BY Name DESC LIMIT 10 OFFSET 20",
		q.Fingerprint())

	other := From("Account").
		Select("Name", IDField).
		Where(AllOf(Eq("Industry", ir.String("Retail")), InIDs("c", "d"), NotNull("Billing_City"))).
		WithRelation("Contacts", From("Contact").Select("LastName").OrderBy("LastName")).
		OrderByDesc("Name").
		Limit(10).
		Offset(20)
	assert.Equal(t, q.Fingerprint(), other.Fingerprint(), "values do not affect the fingerprint")
}

func TestFingerprint_Aggregate(t *testing.T) {
	q := From("Opportunity").Select("Stage").GroupBy("Stage").Aggregate(Sum, "Amount").Aggregate(Count, "")
	assert.Equal(t, "SELECT Stage, SUM(Amount) expr0, COUNT() expr1 FROM Opportunity GROUP BY Stage", q.String())
}
