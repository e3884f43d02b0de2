package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type memoryStore struct {
	entries []Entry
}

func (s *memoryStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return e.ID, nil
}

type mockRepo struct {
	totals      []TypeTotal
	cogs        decimal.Decimal
	totalsCalls int
	entries     []Entry
	units       []int64
}

func (m *mockRepo) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	return m.entries, nil
}

func (m *mockRepo) Totals(ctx context.Context, businessUnitID int64, from, to time.Time) ([]TypeTotal, error) {
	m.totalsCalls++
	return m.totals, nil
}

func (m *mockRepo) SaleCOGS(ctx context.Context, businessUnitID int64, from, to time.Time) (decimal.Decimal, error) {
	return m.cogs, nil
}

func (m *mockRepo) BusinessUnitIDs(ctx context.Context) ([]int64, error) {
	return m.units, nil
}

func newTestService(t *testing.T, repo RepositoryPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute))
}

func TestAppendValidatesAndStamps(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store)
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	w.WithNow(func() time.Time { return fixed })
	ctx := shared.ContextWithActor(context.Background(), 42)

	e, err := w.Append(ctx, Entry{BusinessUnitID: 1, Type: TypeIncome, Amount: d("10.005"), SourceReference: Source(SourceSale, 9)})
	require.NoError(t, err)
	require.Equal(t, int64(1), e.ID)
	require.Equal(t, int64(42), e.ActorID)
	require.Equal(t, fixed, e.CreatedAt)
	require.True(t, e.Amount.Equal(d("10.01")))
	require.Equal(t, "sale:9", store.entries[0].SourceReference)

	_, err = w.Append(ctx, Entry{BusinessUnitID: 1, Type: "BOGUS", Amount: d("1"), SourceReference: "x:1"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = w.Append(ctx, Entry{BusinessUnitID: 1, Type: TypeExpense, Amount: d("0"), SourceReference: "x:1"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = w.Append(ctx, Entry{BusinessUnitID: 1, Type: TypeExpense, Amount: d("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, store.entries, 1)
}

func TestSourceKind(t *testing.T) {
	require.Equal(t, "customer_payment", SourceKind(Source(SourceCustomerPayment, 3)))
	require.Equal(t, "plain", SourceKind("plain"))
}

func TestProjectExcludesCollectionsFromRevenue(t *testing.T) {
	pl := Project([]TypeTotal{
		{Type: TypeIncome, SourceKind: SourceSale, Amount: d("1000")},
		{Type: TypeIncome, SourceKind: SourceScrapSale, Amount: d("200")},
		{Type: TypeIncome, SourceKind: SourceCustomerPayment, Amount: d("300")},
		{Type: TypeExpense, SourceKind: SourcePayslip, Amount: d("250")},
		{Type: TypeExpense, SourceKind: SourceStockTake, Amount: d("10")},
		{Type: TypeStockGain, SourceKind: SourceStockTake, Amount: d("5")},
		{Type: TypeInternalIncome, SourceKind: SourceInternalTransfer, Amount: d("40")},
		{Type: TypeInternalExpense, SourceKind: SourceInternalTransfer, Amount: d("40")},
		{Type: TypeInventoryAcquired, SourceKind: SourcePurchaseReceipt, Amount: d("100")},
		{Type: TypeVATClaimable, SourceKind: SourcePurchaseReceipt, Amount: d("15")},
		{Type: TypeTransfer, SourceKind: SourceCashTransfer, Amount: d("300")},
	}, d("400"))

	require.True(t, pl.GrossRevenue.Equal(d("1200")))
	require.True(t, pl.AccountCollection.Equal(d("300")))
	require.True(t, pl.GrossProfit.Equal(d("800")))
	require.True(t, pl.OperatingExpenses.Equal(d("260")))
	// 800 - 260 + 5 + 40 - 40
	require.True(t, pl.NetProfit.Equal(d("545")))
	require.True(t, pl.VATClaimable.Equal(d("15")))
	require.True(t, pl.Transfers.Equal(d("300")))
}

func TestProfitAndLossCaches(t *testing.T) {
	repo := &mockRepo{
		totals: []TypeTotal{{Type: TypeIncome, SourceKind: SourceSale, Amount: d("500")}},
		cogs:   d("200"),
	}
	svc := newTestService(t, repo)
	ctx := context.Background()
	from, to := MonthBounds(time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC))

	pl, err := svc.ProfitAndLoss(ctx, 1, from, to)
	require.NoError(t, err)
	require.True(t, pl.GrossProfit.Equal(d("300")))
	require.Equal(t, 1, repo.totalsCalls)

	_, err = svc.ProfitAndLoss(ctx, 1, from, to)
	require.NoError(t, err)
	require.Equal(t, 1, repo.totalsCalls, "second call should hit cache")

	require.NoError(t, svc.Invalidate(ctx))
	repo.totals[0].Amount = d("700")
	pl, err = svc.ProfitAndLoss(ctx, 1, from, to)
	require.NoError(t, err)
	require.True(t, pl.GrossRevenue.Equal(d("700")))
	require.Equal(t, 2, repo.totalsCalls)
}

func TestProfitAndLossRejectsEmptyRange(t *testing.T) {
	svc := NewService(&mockRepo{}, nil)
	now := time.Now()
	_, err := svc.ProfitAndLoss(context.Background(), 1, now, now)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWarmMonthLoadsEveryUnit(t *testing.T) {
	repo := &mockRepo{units: []int64{1, 2, 3}}
	svc := newTestService(t, repo)
	n, err := svc.WarmMonth(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, repo.totalsCalls)
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestHandlerEntriesAndPL(t *testing.T) {
	repo := &mockRepo{
		entries: []Entry{{ID: 1, BusinessUnitID: 1, Type: TypeTransfer, Amount: d("300"), SourceReference: "cash_transfer:1"}},
		totals:  []TypeTotal{{Type: TypeIncome, SourceKind: SourceSale, Amount: d("50")}},
		cogs:    decimal.Zero,
	}
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo, nil)).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entries?business_unit_id=1&type=transfer", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cash_transfer:1"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entries?type=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pl?business_unit_id=1&from=2026-01-01&to=2026-01-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"gross_revenue":"50"`)
}
