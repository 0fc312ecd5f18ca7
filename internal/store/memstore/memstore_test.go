package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
	"github.com/roach88/bulkstore/internal/store/storetest"
	"github.com/roach88/bulkstore/internal/testutil"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(schema.MustDefault())
	})
}

func sequentialIDs() Option {
	return WithIDGenerator(testutil.NewSequence("gen-%03d").Next)
}

func named(collection, name string) ir.Record {
	r := ir.NewRecord(collection)
	r.Set("Name", ir.String(name))
	return r
}

func TestStore_CountsCalls(t *testing.T) {
	s := New(schema.MustDefault(), sequentialIDs())
	ctx := context.Background()

	results, err := s.BulkWrite(ctx, store.Insert, []ir.Record{named("Account", "A"), named("Account", "B")}, store.BulkOptions{AllOrNone: true})
	require.NoError(t, err)
	assert.Equal(t, "gen-001", results[0].AssignedID)
	assert.Equal(t, "gen-002", results[1].AssignedID)

	_, err = s.Query(ctx, query.From("Account").Select("Name"))
	require.NoError(t, err)
	_, err = s.AggregateQuery(ctx, query.From("Account").Aggregate(query.Count, ""))
	require.NoError(t, err)

	assert.Equal(t, Calls{Queries: 1, BulkWrites: 1, Aggregates: 1}, s.Calls())
	assert.Equal(t, []WriteCall{{Collection: "Account", Kind: store.Insert, Records: 2, AllOrNone: true}}, s.Writes())
	assert.Equal(t, 2, s.Len("Account"))
}

func TestStore_FailCalls(t *testing.T) {
	s := New(schema.MustDefault())
	down := errors.New("connection refused")
	s.FailCalls(OpQuery, down)

	_, err := s.Query(context.Background(), query.From("Account").Select("Name"))
	assert.ErrorIs(t, err, down)

	_, err = s.BulkWrite(context.Background(), store.Insert, []ir.Record{named("Account", "A")}, store.BulkOptions{})
	assert.NoError(t, err, "other operations are unaffected")

	s.FailCalls(OpQuery, nil)
	rows, err := s.Query(context.Background(), query.From("Account").Select("Name"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_RejectRecords(t *testing.T) {
	s := New(schema.MustDefault())
	invalid := errors.New("FIELD_CUSTOM_VALIDATION_EXCEPTION")
	s.RejectRecords(func(kind store.Kind, rec ir.Record) error {
		if rec.Get("Name") == ir.String("Bad") {
			return invalid
		}
		return nil
	})

	results, err := s.BulkWrite(context.Background(), store.Insert,
		[]ir.Record{named("Account", "Good"), named("Account", "Bad")}, store.BulkOptions{})
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	assert.ErrorIs(t, results[1].Err, invalid)
	assert.Equal(t, 1, s.Len("Account"))
}

func TestStore_BulkWriteCallErrors(t *testing.T) {
	s := New(schema.MustDefault())
	ctx := context.Background()

	_, err := s.BulkWrite(ctx, store.Kind("merge"), []ir.Record{named("Account", "A")}, store.BulkOptions{})
	assert.ErrorContains(t, err, "unknown kind")

	_, err = s.BulkWrite(ctx, store.Insert, []ir.Record{named("Account", "A"), named("Opportunity", "O")}, store.BulkOptions{})
	assert.ErrorContains(t, err, "mixed collections")

	_, err = s.BulkWrite(ctx, store.Insert, []ir.Record{named("Lead", "L")}, store.BulkOptions{})
	assert.ErrorContains(t, err, "unknown collection")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.BulkWrite(cancelled, store.Insert, []ir.Record{named("Account", "A")}, store.BulkOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, s.Writes(), "rejected calls write nothing")
	assert.Zero(t, s.Len("Account"))
}

func TestStore_WriteCoercesValues(t *testing.T) {
	s := New(schema.MustDefault())
	opp := named("Opportunity", "Deal")
	opp.ID = "opp-1"
	opp.Set("AccountId", ir.String("acc-1"))
	opp.Set("Amount", ir.Int(42))
	_, err := s.BulkWrite(context.Background(), store.Insert, []ir.Record{opp}, store.BulkOptions{})
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), query.From("Opportunity").Select("AccountId", "Amount"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.Ref("acc-1"), rows[0].Get("AccountId"))
	assert.Equal(t, ir.DecimalFromInt(42).String(), ir.Format(rows[0].Get("Amount")))

	bad := named("Opportunity", "Deal")
	bad.Set("Amount", ir.String("lots"))
	results, err := s.BulkWrite(context.Background(), store.Insert, []ir.Record{bad}, store.BulkOptions{})
	require.NoError(t, err)
	assert.True(t, ir.IsFieldTypeMismatch(results[0].Err))
}

func TestStore_QueryResultsAreDetached(t *testing.T) {
	s := New(schema.MustDefault())
	acc := named("Account", "Acme")
	acc.ID = "acc-1"
	_, err := s.BulkWrite(context.Background(), store.Insert, []ir.Record{acc}, store.BulkOptions{})
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), query.From("Account").Select("Name"))
	require.NoError(t, err)
	rows[0].Set("Name", ir.String("Mutated"))

	rows, err = s.Query(context.Background(), query.From("Account").Select("Name"))
	require.NoError(t, err)
	assert.Equal(t, ir.String("Acme"), rows[0].Get("Name"))
}

func TestStore_RejectsMalformedQuery(t *testing.T) {
	s := New(schema.MustDefault())
	_, err := s.Query(context.Background(), query.From("Account"))
	assert.True(t, query.IsMalformedQuery(err))

	_, err = s.Query(context.Background(), query.From("Opportunity").Aggregate(query.Count, ""))
	assert.ErrorContains(t, err, "AggregateQuery")

	_, err = s.AggregateQuery(context.Background(), query.From("Opportunity").Select("Name"))
	assert.Error(t, err)
}

func TestLike(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"jane@acme.com", "%@acme.com", true},
		{"JANE@ACME.COM", "%@acme.com", true},
		{"Acme", "A_me", true},
		{"Acme", "A_e", false},
		{"Acme", "%", true},
		{"", "%", true},
		{"", "_", false},
		{"Acme Corp", "%me%", true},
		{"Acme", "Acme%x", false},
		{"ÉCOLE", "école", false},
		{"École", "école", false},
		{"école", "%cole", true},
		{"straße", "STRAßE", true},
	}
	for _, tt := range tests {
		t.Run(tt.s+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, like(tt.s, tt.pattern))
		})
	}
}
