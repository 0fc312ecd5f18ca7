package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
	"github.com/roach88/bulkstore/internal/store/memstore"
)

func seedAccounts(t *testing.T, s *memstore.Store, n int) []string {
	t.Helper()
	recs := make([]ir.Record, n)
	for i := range recs {
		recs[i] = ir.NewRecord("Account")
		recs[i].ID = fmt.Sprintf("acc-%03d", i)
		recs[i].Set("Name", ir.String(fmt.Sprintf("Account %d", i)))
		recs[i].Set("Industry", ir.String("Energy"))
	}
	results, err := s.BulkWrite(context.Background(), store.Insert, recs, store.BulkOptions{})
	require.NoError(t, err)
	ids := make([]string, n)
	for i, r := range results {
		require.NoError(t, r.Err)
		ids[i] = r.AssignedID
	}
	return ids
}

func newExecutor(t *testing.T, limits governor.Limits, opts ...Option) (*Executor, *memstore.Store, *governor.Governor) {
	t.Helper()
	s := memstore.New(schema.MustDefault())
	gov := governor.New(limits)
	return New(s, gov, opts...), s, gov
}

func byID(id string) *query.Query {
	return query.From("Account").Select("Name").Where(query.Eq(query.IDField, ir.Ref(id)))
}

func TestFetchOne(t *testing.T) {
	exec, s, gov := newExecutor(t, governor.DefaultLimits)
	ids := seedAccounts(t, s, 3)
	ctx := context.Background()

	rec, err := exec.FetchOne(ctx, byID(ids[1]))
	require.NoError(t, err)
	assert.Equal(t, ids[1], rec.ID)
	assert.Equal(t, ir.String("Account 1"), rec.Get("Name"))

	_, err = exec.FetchOne(ctx, byID("missing"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	all := query.From("Account").Select("Name")
	_, err = exec.FetchOne(ctx, all)
	var multi *MultipleResultsError
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, 3, multi.Count)

	rec, err = exec.FetchOne(ctx, all.Limit(1))
	require.NoError(t, err, "Limit(1) opts in to the first row")
	assert.Equal(t, ids[0], rec.ID)

	assert.Equal(t, 4, gov.Usage().QueriesIssued)
}

func TestFetchMany_EmptyIsNotNil(t *testing.T) {
	exec, _, _ := newExecutor(t, governor.DefaultLimits)
	rows, err := exec.FetchMany(context.Background(), query.From("Account").Select("Name"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetch_MalformedFailsBeforeReservation(t *testing.T) {
	exec, s, gov := newExecutor(t, governor.DefaultLimits, WithCatalog(schema.MustDefault()))
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"empty projection", func() error {
			_, err := exec.FetchMany(ctx, query.From("Account"))
			return err
		}},
		{"sticky build error", func() error {
			_, err := exec.FetchOne(ctx, query.From("Account").Select("Name").Limit(0))
			return err
		}},
		{"aggregate through FetchMany", func() error {
			_, err := exec.FetchMany(ctx, query.From("Opportunity").Aggregate(query.Count, ""))
			return err
		}},
		{"row query through FetchAggregates", func() error {
			_, err := exec.FetchAggregates(ctx, query.From("Opportunity").Select("Name"))
			return err
		}},
		{"unknown field", func() error {
			_, err := exec.FetchMany(ctx, query.From("Account").Select("Nope"))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, query.IsMalformedQuery(err), "got %v", err)
		})
	}
	assert.Zero(t, gov.Usage().QueriesIssued)
	assert.Zero(t, s.Calls().Queries)
}

func TestFetchOne_PerRecordLoopHitsCeiling(t *testing.T) {
	exec, s, gov := newExecutor(t, governor.DefaultLimits)
	ids := seedAccounts(t, s, 150)

	var failedAt int
	var quotaErr error
	for i, id := range ids {
		if _, err := exec.FetchOne(context.Background(), byID(id)); err != nil {
			failedAt, quotaErr = i+1, err
			break
		}
	}
	assert.Equal(t, 101, failedAt)
	require.Error(t, quotaErr)
	assert.True(t, governor.IsQuotaExceeded(quotaErr))
	assert.False(t, IsExecutionError(quotaErr), "quota denials are not store failures")
	assert.Equal(t, 100, s.Calls().Queries, "the denied call never reached the store")
	assert.Equal(t, 100, gov.Usage().QueriesIssued)
}

func TestFetchMany_BatchedStaysWithinCeiling(t *testing.T) {
	exec, s, gov := newExecutor(t, governor.DefaultLimits)
	ids := seedAccounts(t, s, 150)

	rows, err := exec.FetchMany(context.Background(), query.From("Account").Select("Name").Where(query.InIDs(ids...)))
	require.NoError(t, err)
	assert.Len(t, rows, 150)
	assert.Equal(t, 1, gov.Usage().QueriesIssued)
}

func TestFetch_StoreFailureIsExecutionError(t *testing.T) {
	exec, s, gov := newExecutor(t, governor.DefaultLimits)
	down := errors.New("connection reset")
	s.FailCalls(memstore.OpQuery, down)

	_, err := exec.FetchMany(context.Background(), query.From("Account").Select("Name"))
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, OpFetchMany, execErr.Op)
	assert.Equal(t, "Account", execErr.Target)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, gov.Usage().QueriesIssued, "the reservation is spent, no retry")
	assert.Equal(t, 1, s.Calls().Queries)
}

func TestFetchAggregates(t *testing.T) {
	exec, s, _ := newExecutor(t, governor.DefaultLimits)
	opps := []ir.Record{ir.NewRecord("Opportunity"), ir.NewRecord("Opportunity"), ir.NewRecord("Opportunity")}
	for i, stage := range []string{"Prospecting", "Closed Won", "Prospecting"} {
		opps[i].Set("Stage", ir.String(stage))
		opps[i].Set("Amount", ir.Int(int64(100*(i+1))))
	}
	_, err := s.BulkWrite(context.Background(), store.Insert, opps, store.BulkOptions{})
	require.NoError(t, err)

	rows, err := exec.FetchAggregates(context.Background(), query.From("Opportunity").
		Select("Stage").GroupBy("Stage").AggregateAs(query.Sum, "Amount", "total").OrderBy("Stage"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []ir.Value{ir.String("Closed Won")}, rows[0].Group)
	assert.Equal(t, "200", ir.Format(rows[0].Value("total")))
	assert.Equal(t, "400", ir.Format(rows[1].Value("total")))
}

func TestFetch_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	exec, s, _ := newExecutor(t, governor.DefaultLimits, WithTracer(provider.Tracer("test")))
	ids := seedAccounts(t, s, 1)

	_, err := exec.FetchOne(context.Background(), byID(ids[0]))
	require.NoError(t, err)
	s.FailCalls(memstore.OpQuery, errors.New("boom"))
	_, err = exec.FetchMany(context.Background(), query.From("Account").Select("Name"))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "bulkstore.fetch_one", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "bulkstore.fetch_many", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
