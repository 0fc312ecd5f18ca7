package schema

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

func TestDefault(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	names := []string{}
	for _, c := range cat.Collections() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Account", "Contact", "Opportunity"}, names)

	account, ok := cat.Collection("Account")
	require.True(t, ok)
	assert.Equal(t, []string{
		"Name", "Industry", "AnnualRevenue", "Active", "FoundedOn",
		"BillingStreet", "BillingCity", "BillingRegion", "BillingPostalCode",
	}, account.FieldNames(), "fields keep declaration order")

	f, ok := account.Field("AnnualRevenue")
	require.True(t, ok)
	assert.Equal(t, ir.KindDecimal, f.Kind)

	id, ok := account.Field(ir.IDField)
	require.True(t, ok)
	assert.Equal(t, ir.KindRef, id.Kind)

	rel, ok := cat.Relation("Account", "Contacts")
	require.True(t, ok)
	assert.Equal(t, Relation{Name: "Contacts", Child: "Contact", ForeignKey: "AccountId"}, rel)

	_, ok = cat.Relation("Contact", "Contacts")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	cat, err := Load("testdata/custom")
	require.NoError(t, err)

	task, ok := cat.Collection("Task")
	require.True(t, ok)
	assert.Equal(t, []Field{
		{Name: "ProjectId", Kind: ir.KindRef},
		{Name: "Summary", Kind: ir.KindString},
		{Name: "Done", Kind: ir.KindBool},
	}, task.Fields)

	_, err = Load("testdata/missing")
	assert.Error(t, err)
}

func TestFromValue_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no collections", `other: 1`, "no collections defined"},
		{"bad kind", `collection: A: fields: X: "float"`, `unknown field kind "float"`},
		{"reserved id", `collection: A: fields: Id: "string"`, "Id is reserved"},
		{"unknown child", `collection: A: {fields: X: "string", relations: Bs: {child: "B", foreignKey: "AId"}}`, "unknown child collection B"},
		{"foreign key not ref", `
collection: A: {fields: X: "string", relations: Bs: {child: "B", foreignKey: "AId"}}
collection: B: fields: AId: "string"`, "foreign key AId must be a ref field of B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			_, err := FromValue(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckQuery(t *testing.T) {
	cat := MustDefault()

	ok := query.From("Account").
		Select("Name", ir.IDField).
		Where(query.AllOf(
			query.Gte("AnnualRevenue", ir.Int(1000)),
			query.Like("Name", "Ac%"),
			query.InIDs("1", "2"),
		)).
		WithRelation("Contacts", query.From("Contact").Select("LastName")).
		OrderBy("FoundedOn")
	require.NoError(t, cat.CheckQuery(ok))

	semi := query.From("Contact").Select("LastName").
		Where(query.Within("AccountId", query.From("Account").Select(ir.IDField)))
	require.NoError(t, cat.CheckQuery(semi))

	agg := query.From("Opportunity").Select("Stage").GroupBy("Stage").Aggregate(query.Sum, "Amount").OrderByDesc("expr0")
	require.NoError(t, cat.CheckQuery(agg))

	tests := []struct {
		name string
		q    *query.Query
		want string
	}{
		{"unknown collection", query.From("Lead").Select("Name"), "unknown collection Lead"},
		{"unknown field", query.From("Account").Select("Nmae"), "unknown field Account.Nmae"},
		{"kind mismatch", query.From("Account").Select("Name").Where(query.Eq("Active", ir.String("yes"))), "field Account.Active is bool, compared with string"},
		{"like on decimal", query.From("Account").Select("Name").Where(query.Like("AnnualRevenue", "1%")), "LIKE on non-string field Account.AnnualRevenue"},
		{"unknown relation", query.From("Account").Select("Name").WithRelation("Cases", query.From("Case").Select("Subject")), "unknown relation Account.Cases"},
		{"relation target", query.From("Account").Select("Name").WithRelation("Contacts", query.From("Opportunity").Select("Name")), "relation Account.Contacts reads Contact, not Opportunity"},
		{"sum of string", query.From("Opportunity").Aggregate(query.Sum, "Stage"), "SUM of non-numeric field Opportunity.Stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cat.CheckQuery(tt.q)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCoerce(t *testing.T) {
	contact, _ := MustDefault().Collection("Contact")

	v, err := contact.Coerce("AccountId", ir.String("001"))
	require.NoError(t, err)
	assert.Equal(t, ir.Ref("001"), v)

	v, err = contact.Coerce("LastName", ir.Null{})
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, v)

	opp, _ := MustDefault().Collection("Opportunity")
	v, err = opp.Coerce("Amount", ir.Int(5))
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.MustDecimal("5"), v))

	_, err = contact.Coerce("Birthdate", ir.String("1990-01-01"))
	assert.True(t, ir.IsFieldTypeMismatch(err))

	_, err = contact.Coerce("Nope", ir.String("x"))
	assert.Error(t, err)
}
