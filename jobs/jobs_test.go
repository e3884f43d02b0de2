package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSafes struct {
	mu      sync.Mutex
	safes   []treasury.Safe
	sums    map[int64]decimal.Decimal
	checked []int64
	err     error
}

func (f *fakeSafes) ListSafes(ctx context.Context, businessUnitID int64) ([]treasury.Safe, error) {
	var out []treasury.Safe
	for _, s := range f.safes {
		if businessUnitID == 0 || s.BusinessUnitID == businessUnitID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSafes) Reconcile(ctx context.Context, safe treasury.Safe) (*treasury.Discrepancy, error) {
	f.mu.Lock()
	f.checked = append(f.checked, safe.ID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	diff := safe.CurrentBalance.Sub(safe.InitialBalance).Sub(f.sums[safe.ID])
	if diff.IsZero() {
		return nil, nil
	}
	return &treasury.Discrepancy{SafeID: safe.ID, Name: safe.Name, LedgerSum: f.sums[safe.ID], Difference: diff}, nil
}

// fakeStock maps negative-stock product ids to their business unit.
type fakeStock map[int64]int64

func (f fakeStock) CountNegative(ctx context.Context, businessUnitID int64) ([]int64, error) {
	var ids []int64
	for id, unit := range f {
		if businessUnitID == 0 || unit == businessUnitID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func safe(id, unit int64, initial, current string) treasury.Safe {
	return treasury.Safe{ID: id, BusinessUnitID: unit, Name: "Safe", InitialBalance: decimal.RequireFromString(initial), CurrentBalance: decimal.RequireFromString(current)}
}

func newLocker(t *testing.T) (*redislock.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client), mr
}

func TestLedgerIntegrityFindsDrift(t *testing.T) {
	safes := &fakeSafes{
		safes: []treasury.Safe{safe(1, 1, "1000", "700"), safe(2, 1, "200", "500"), safe(3, 2, "0", "90")},
		sums: map[int64]decimal.Decimal{
			1: decimal.RequireFromString("-300"),
			2: decimal.RequireFromString("300"),
			3: decimal.RequireFromString("80"),
		},
	}
	locker, _ := newLocker(t)
	job := NewLedgerIntegrityJob(safes, fakeStock{42: 1}, locker, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	report, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 3, report.SafesChecked)
	require.ElementsMatch(t, []int64{1, 2, 3}, safes.checked)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, int64(3), report.Discrepancies[0].SafeID)
	require.True(t, decimal.RequireFromString("10").Equal(report.Discrepancies[0].Difference))
	require.Equal(t, []int64{42}, report.NegativeStock)
	require.False(t, report.Clean())
}

func TestLedgerIntegrityScopesNegativeStockToBusinessUnit(t *testing.T) {
	reg := prometheus.NewRegistry()
	safes := &fakeSafes{safes: []treasury.Safe{safe(1, 1, "0", "0"), safe(3, 2, "0", "0")}}
	job := NewLedgerIntegrityJob(safes, fakeStock{42: 1, 43: 2, 44: 2}, nil, discard, jobmetrics.NewMetrics(reg))

	report, err := job.Run(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, report.SafesChecked)
	require.Equal(t, []int64{43, 44}, report.NegativeStock)

	expected := `
# HELP backoffice_ledger_anomalies_total Ledger integrity breaches grouped by kind and business unit.
# TYPE backoffice_ledger_anomalies_total counter
backoffice_ledger_anomalies_total{business_unit="2",kind="negative_stock"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "backoffice_ledger_anomalies_total"))
}

func TestLedgerIntegritySkipsWhenLocked(t *testing.T) {
	locker, _ := newLocker(t)
	held, err := locker.Obtain(context.Background(), shared.IntegrityLockKey(1), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	safes := &fakeSafes{safes: []treasury.Safe{safe(1, 1, "0", "0")}}
	job := NewLedgerIntegrityJob(safes, nil, locker, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	report, err := job.Run(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.SkippedRunning)
	require.Empty(t, safes.checked)

	other, err := job.Run(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, other.SkippedRunning)
	require.True(t, other.Clean())
}

func TestLedgerIntegrityPropagatesErrors(t *testing.T) {
	safes := &fakeSafes{safes: []treasury.Safe{safe(1, 1, "0", "0")}, err: errors.New("db down")}
	job := NewLedgerIntegrityJob(safes, nil, nil, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLedgerIntegrityTask(0)
	require.NoError(t, err)
	require.EqualError(t, job.Handle(context.Background(), task), "db down")
}

type fakeWarmer struct {
	calls []time.Time
}

func (f *fakeWarmer) WarmMonth(ctx context.Context, at time.Time) (int, error) {
	f.calls = append(f.calls, at)
	return 3, nil
}

func TestReportsWarmupParsesPeriod(t *testing.T) {
	warmer := &fakeWarmer{}
	locker, _ := newLocker(t)
	job := NewReportsWarmupJob(warmer, locker, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewReportsWarmupTask("2026-02")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, warmer.calls, 1)
	require.Equal(t, time.February, warmer.calls[0].Month())

	bad := asynq.NewTask(TaskReportsWarmup, []byte(`{"period":"February"}`))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type fakeCleaner struct{ olderThan time.Duration }

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 7, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, 48*time.Hour, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(6)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 6*time.Hour, cleaner.olderThan)
}

type fakeEnqueuer struct{ unit int64 }

func (f *fakeEnqueuer) EnqueueLedgerIntegrity(ctx context.Context, businessUnitID int64) (*asynq.TaskInfo, error) {
	f.unit = businessUnitID
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestHandlerHealthAndTrigger(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	r := chi.NewRouter()
	NewHandler(nil, enqueuer, discard).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, QueueDefault, health.Queue)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ledger-integrity", strings.NewReader(`{"business_unit_id":3}`))
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, int64(3), enqueuer.unit)
}
