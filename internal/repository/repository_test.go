package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/domain"
	"github.com/roach88/bulkstore/internal/executor"
	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/schema"
	"github.com/roach88/bulkstore/internal/store"
	"github.com/roach88/bulkstore/internal/store/memstore"
	"github.com/roach88/bulkstore/internal/store/sqlstore"
	"github.com/roach88/bulkstore/internal/testutil"
)

// unitOfWork wires a repository the way a request would: one governor
// shared by the executor and the writer.
type unitOfWork struct {
	store  *memstore.Store
	gov    *governor.Governor
	exec   *executor.Executor
	writer *batch.Writer
}

func newUnitOfWork(t *testing.T, limits governor.Limits) *unitOfWork {
	t.Helper()
	s := memstore.New(schema.MustDefault(), memstore.WithIDGenerator(testutil.NewSequence("gen-%d").Next))
	gov := governor.New(limits)
	return &unitOfWork{
		store:  s,
		gov:    gov,
		exec:   executor.New(s, gov),
		writer: batch.NewWriter(s, gov),
	}
}

func (u *unitOfWork) accounts(t *testing.T, opts ...Option) *Repository[*domain.Account] {
	t.Helper()
	r, err := NewAccounts(u.exec, u.writer, opts...)
	require.NoError(t, err)
	return r
}

func (u *unitOfWork) seedAccounts(t *testing.T, n int) []string {
	t.Helper()
	recs := make([]ir.Record, n)
	for i := range recs {
		recs[i] = ir.NewRecord("Account")
		recs[i].ID = fmt.Sprintf("acc-%03d", i)
		recs[i].Set("Name", ir.String(fmt.Sprintf("Account %d", i)))
		recs[i].Set("Active", ir.Bool(i%2 == 0))
	}
	results, err := u.store.BulkWrite(context.Background(), store.Insert, recs, store.BulkOptions{})
	require.NoError(t, err)
	ids := make([]string, n)
	for i, r := range results {
		require.NoError(t, r.Err)
		ids[i] = r.AssignedID
	}
	return ids
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

var entityCmp = []cmp.Option{
	cmp.AllowUnexported(domain.Account{}, domain.Address{}, domain.Contact{}, domain.Opportunity{}),
	cmp.Comparer(func(a, b *apd.Decimal) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return a.Cmp(b) == 0
	}),
}

func TestGetByIDs_OneReservation(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 150)
	repo := u.accounts(t)

	request := append([]string{}, ids...)
	request = append(request, ids[0], "acc-missing")

	got, err := repo.GetByIDs(context.Background(), request)
	require.NoError(t, err)
	require.Len(t, got, 150)
	for i, a := range got {
		assert.Equal(t, ids[i], a.ID())
		assert.Equal(t, StatePersisted, repo.State(a))
	}
	assert.Equal(t, 1, u.gov.Usage().QueriesIssued)
	assert.Equal(t, 1, u.store.Calls().Queries)
}

func TestGetByID_PerRecordLoopHitsCeiling(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 150)
	repo := u.accounts(t)
	ctx := context.Background()

	var err error
	calls := 0
	for _, id := range ids {
		calls++
		if _, err = repo.GetByID(ctx, id); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.True(t, governor.IsQuotaExceeded(err))
	assert.Equal(t, 101, calls)

	u.gov.Reset()
	got, err := repo.GetByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 150)
	assert.Equal(t, 1, u.gov.Usage().QueriesIssued)
}

func TestGetByIDs_EmptyMakesNoQuery(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	repo := u.accounts(t)

	got, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = repo.GetByIDs(context.Background(), []string{"", ""})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, u.gov.Usage().QueriesIssued)
}

func TestGetByID_NotFound(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	_, err := u.accounts(t).GetByID(context.Background(), "acc-404")
	require.Error(t, err)
	assert.True(t, executor.IsNotFound(err))
}

func TestAccount_RoundTrip(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	repo := u.accounts(t)
	ctx := context.Background()

	a, err := domain.NewAccount("Acme")
	require.NoError(t, err)
	a.SetIndustry("Energy")
	require.NoError(t, a.SetAnnualRevenue(dec(t, "1000.50")))
	a.SetFoundedOn(time.Date(1999, 3, 4, 0, 0, 0, 0, time.UTC))
	addr, err := domain.NewAddress("1 Main St", "Springfield", "IL", "62701")
	require.NoError(t, err)
	require.NoError(t, a.SetBilling(addr))

	assert.Equal(t, StateUnsaved, repo.State(a))
	require.NoError(t, repo.Save(ctx, a))
	assert.Equal(t, StatePending, repo.State(a))
	assert.Empty(t, a.ID())

	report, err := u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded(), 1)
	assert.Equal(t, "gen-1", a.ID())
	assert.Equal(t, StatePersisted, repo.State(a))

	loaded, err := repo.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.NotSame(t, a, loaded)
	if diff := cmp.Diff(a, loaded, entityCmp...); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestAccount_RoundTripWithoutOptionalFields(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	repo := u.accounts(t)
	ctx := context.Background()

	a, err := domain.NewAccount("Bare")
	require.NoError(t, err)
	a.SetActive(false)
	require.NoError(t, repo.Save(ctx, a))
	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)

	loaded, err := repo.GetByID(ctx, a.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(a, loaded, entityCmp...); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
	_, ok := loaded.Billing()
	assert.False(t, ok)
}

func TestContactAndOpportunity_RoundTrip(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ctx := context.Background()
	contacts, err := NewContacts(u.exec, u.writer)
	require.NoError(t, err)
	opps, err := NewOpportunities(u.exec, u.writer)
	require.NoError(t, err)

	c, err := domain.NewContact("Jane", "Doe")
	require.NoError(t, err)
	c.AttachTo("acc-1")
	require.NoError(t, c.SetEmail("jane@acme.com"))
	c.SetBirthdate(time.Date(1985, 7, 1, 15, 4, 5, 0, time.UTC))

	o, err := domain.NewOpportunity("Big deal", domain.StageNegotiation)
	require.NoError(t, err)
	o.AttachTo("acc-1")
	require.NoError(t, o.SetAmount(dec(t, "12500.75")))
	o.SetCloseDate(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, contacts.Save(ctx, c))
	require.NoError(t, opps.Save(ctx, o))
	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, u.gov.Usage().WriteBatchesIssued)

	gotC, err := contacts.GetByID(ctx, c.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(c, gotC, entityCmp...); diff != "" {
		t.Errorf("contact mismatch (-saved +loaded):\n%s", diff)
	}
	gotO, err := opps.GetByID(ctx, o.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(o, gotO, entityCmp...); diff != "" {
		t.Errorf("opportunity mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSave_OneReservationPerKind(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 30)
	repo := u.accounts(t)
	ctx := context.Background()

	existing, err := repo.GetByIDs(ctx, ids)
	require.NoError(t, err)
	for _, a := range existing {
		a.SetIndustry("Retail")
		require.NoError(t, repo.Save(ctx, a))
	}
	for i := range 200 {
		a, err := domain.NewAccount(fmt.Sprintf("New %d", i))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, a))
	}
	assert.Zero(t, u.gov.Usage().WriteBatchesIssued)

	report, err := u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded(), 230)
	assert.Equal(t, 2, u.gov.Usage().WriteBatchesIssued)
	assert.Equal(t, 230, u.store.Len("Account"))

	n, err := repo.Count(ctx, query.Eq("Industry", ir.String("Retail")))
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
}

func TestSave_RepeatedInsertReplacesQueuedRecord(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	repo := u.accounts(t)
	ctx := context.Background()

	a, err := domain.NewAccount("Draft")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, a.Rename("Final"))
	require.NoError(t, repo.Save(ctx, a))
	assert.Equal(t, 1, u.writer.Pending())

	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)
	loaded, err := repo.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "Final", loaded.Name())
	assert.Equal(t, 1, u.store.Len("Account"))
}

func TestSave_RejectsInvalidEntity(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	err := u.accounts(t).Save(context.Background(), &domain.Account{})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, u.writer.Pending())
}

func TestSave_FailedWriteCanBeRetried(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	repo := u.accounts(t)
	ctx := context.Background()

	rejected := errors.New("duplicate name")
	u.store.RejectRecords(func(kind store.Kind, rec ir.Record) error {
		if ir.Format(rec.Get("Name")) == "Dup" {
			return rejected
		}
		return nil
	})

	good, err := domain.NewAccount("Good")
	require.NoError(t, err)
	bad, err := domain.NewAccount("Dup")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, good))
	require.NoError(t, repo.Save(ctx, bad))

	report, err := u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Failed(), 1)
	assert.Equal(t, StatePersisted, repo.State(good))
	assert.Equal(t, StateFailed, repo.State(bad))
	assert.ErrorIs(t, repo.Failure(bad), rejected)
	assert.Empty(t, bad.ID())

	require.NoError(t, bad.Rename("Unique"))
	require.NoError(t, repo.Save(ctx, bad))
	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, repo.State(bad))
	assert.NoError(t, repo.Failure(bad))
	assert.NotEmpty(t, bad.ID())
}

func TestDelete(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 2)
	repo := u.accounts(t)
	ctx := context.Background()

	err := repo.Delete(ctx, &domain.Account{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrMissingID)

	a, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	a.SetIndustry("Retail")
	require.NoError(t, repo.Save(ctx, a))

	err = repo.Delete(ctx, a)
	require.Error(t, err)
	assert.True(t, batch.IsConflictingOperation(err))
	assert.Equal(t, StatePending, repo.State(a))

	b, err := repo.GetByID(ctx, ids[1])
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, b))

	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, repo.State(a))
	assert.Equal(t, StateDeleted, repo.State(b))
	assert.Equal(t, 1, u.store.Len("Account"))
}

func TestFind(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	u.seedAccounts(t, 10)
	repo := u.accounts(t)

	got, err := repo.Find(context.Background(), query.Eq("Active", ir.Bool(true)), FindOptions{
		OrderBy: []query.Order{{Field: "Name", Desc: true}},
		Limit:   3,
		Offset:  1,
	})
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, a := range got {
		names[i] = a.Name()
	}
	assert.Equal(t, []string{"Account 6", "Account 4", "Account 2"}, names)

	n, err := repo.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, 2, u.gov.Usage().QueriesIssued)
}

func TestCache(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 3)
	repo := u.accounts(t, WithCache(16))
	ctx := context.Background()

	first, err := repo.GetByIDs(ctx, ids[:2])
	require.NoError(t, err)
	require.Len(t, first, 2)

	again, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.NotSame(t, first[0], again)
	assert.Equal(t, 1, u.gov.Usage().QueriesIssued)

	// Only the uncached id is fetched.
	all, err := repo.GetByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, u.gov.Usage().QueriesIssued)

	require.NoError(t, again.Rename("Renamed"))
	require.NoError(t, repo.Save(ctx, again))
	_, err = u.writer.Flush(ctx)
	require.NoError(t, err)

	reloaded, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Name())
	assert.Equal(t, 3, u.gov.Usage().QueriesIssued)
}

func TestFromRecord_Mismatch(t *testing.T) {
	rec := ir.NewRecord("Account")
	rec.ID = "acc-1"
	rec.Set("Name", ir.Int(3))

	_, err := AccountMapping().FromRecord(rec)
	require.Error(t, err)
	assert.True(t, ir.IsFieldTypeMismatch(err))

	rec.Set("Name", ir.String("Acme"))
	rec.Set("BillingCity", ir.String("Springfield"))
	_, err = AccountMapping().FromRecord(rec)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestMapping_Fields(t *testing.T) {
	catalog := schema.MustDefault()
	for _, fields := range []struct {
		collection string
		mapped     []string
	}{
		{"Account", AccountMapping().Fields()},
		{"Contact", ContactMapping().Fields()},
		{"Opportunity", OpportunityMapping().Fields()},
	} {
		col, ok := catalog.Collection(fields.collection)
		require.True(t, ok)
		assert.ElementsMatch(t, col.FieldNames(), fields.mapped, fields.collection)
	}
}

func TestRoundTrip_SQLStore(t *testing.T) {
	s, err := sqlstore.Open("sqlite3", filepath.Join(t.TempDir(), "repo.db"), schema.MustDefault(),
		sqlstore.WithIDGenerator(testutil.NewSequence("sql-%d").Next))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	gov := governor.New(governor.DefaultLimits)
	exec := executor.New(s, gov)
	writer := batch.NewWriter(s, gov)
	ctx := context.Background()

	accounts, err := NewAccounts(exec, writer)
	require.NoError(t, err)
	contacts, err := NewContacts(exec, writer)
	require.NoError(t, err)
	opps, err := NewOpportunities(exec, writer)
	require.NoError(t, err)

	a, err := domain.NewAccount("Acme")
	require.NoError(t, err)
	a.SetIndustry("Energy")
	require.NoError(t, a.SetAnnualRevenue(dec(t, "12345678901234567.89")))
	a.SetFoundedOn(time.Date(1999, 3, 4, 0, 0, 0, 0, time.UTC))
	addr, err := domain.NewAddress("1 Main St", "Springfield", "IL", "62701")
	require.NoError(t, err)
	require.NoError(t, a.SetBilling(addr))
	require.NoError(t, accounts.Save(ctx, a))
	_, err = writer.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, "sql-1", a.ID())

	c, err := domain.NewContact("Jane", "Doe")
	require.NoError(t, err)
	c.AttachTo(a.ID())
	require.NoError(t, c.SetEmail("jane@acme.com"))
	c.SetBirthdate(time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, contacts.Save(ctx, c))

	var deals []*domain.Opportunity
	for _, amount := range []string{"0.1", "0.2"} {
		o, err := domain.NewOpportunity("Deal "+amount, domain.StageProspecting)
		require.NoError(t, err)
		o.AttachTo(a.ID())
		require.NoError(t, o.SetAmount(dec(t, amount)))
		o.SetCloseDate(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
		require.NoError(t, opps.Save(ctx, o))
		deals = append(deals, o)
	}
	_, err = writer.Flush(ctx)
	require.NoError(t, err)

	gotA, err := accounts.GetByID(ctx, a.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(a, gotA, entityCmp...); diff != "" {
		t.Errorf("account mismatch (-saved +loaded):\n%s", diff)
	}
	gotC, err := contacts.GetByID(ctx, c.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(c, gotC, entityCmp...); diff != "" {
		t.Errorf("contact mismatch (-saved +loaded):\n%s", diff)
	}
	gotO, err := opps.GetByIDs(ctx, []string{deals[0].ID(), deals[1].ID()})
	require.NoError(t, err)
	require.Len(t, gotO, 2)
	for i := range deals {
		if diff := cmp.Diff(deals[i], gotO[i], entityCmp...); diff != "" {
			t.Errorf("opportunity mismatch (-saved +loaded):\n%s", diff)
		}
	}

	rows, err := exec.FetchAggregates(ctx, query.From("Opportunity").AggregateAs(query.Sum, "Amount", "total"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0.3", ir.Format(rows[0].Value("total")))
}

func TestDelete_ConflictKeepsState(t *testing.T) {
	u := newUnitOfWork(t, governor.DefaultLimits)
	ids := u.seedAccounts(t, 1)
	repo := u.accounts(t)
	ctx := context.Background()

	a, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, StatePersisted, repo.State(a))

	rec := ir.NewRecord("Account")
	rec.ID = ids[0]
	rec.Set("Name", ir.String("Renamed elsewhere"))
	_, err = u.writer.Enqueue(store.Update, rec)
	require.NoError(t, err)

	err = repo.Delete(ctx, a)
	var conflict *batch.ConflictingOperationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatePersisted, repo.State(a))
	assert.NoError(t, repo.Failure(a))
}

func TestSave_ConcurrentFlushSettlesEverySave(t *testing.T) {
	u := newUnitOfWork(t, governor.Limits{QueryCeiling: 100, WriteCeiling: 1 << 20})
	repo := u.accounts(t)
	ctx := context.Background()

	const n = 200
	accounts := make([]*domain.Account, n)
	for i := range accounts {
		a, err := domain.NewAccount(fmt.Sprintf("Account %d", i))
		require.NoError(t, err)
		accounts[i] = a
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, err := u.writer.Flush(ctx); err != nil {
				t.Errorf("flush: %v", err)
				return
			}
		}
	}()
	for _, a := range accounts {
		require.NoError(t, repo.Save(ctx, a))
	}
	close(done)
	wg.Wait()

	_, err := u.writer.Flush(ctx)
	require.NoError(t, err)
	for i, a := range accounts {
		assert.Equal(t, StatePersisted, repo.State(a), "account %d", i)
		assert.NotEmpty(t, a.ID(), "account %d", i)
	}
}
