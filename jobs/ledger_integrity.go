package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SafeReconciler lists safes and checks each against its cash ledger.
type SafeReconciler interface {
	ListSafes(ctx context.Context, businessUnitID int64) ([]treasury.Safe, error)
	Reconcile(ctx context.Context, safe treasury.Safe) (*treasury.Discrepancy, error)
}

// NegativeStockFinder returns products whose quantity on hand is below zero.
type NegativeStockFinder interface {
	CountNegative(ctx context.Context, businessUnitID int64) ([]int64, error)
}

// IntegrityReport is the outcome of one scan.
type IntegrityReport struct {
	SafesChecked   int
	Discrepancies  []treasury.Discrepancy
	NegativeStock  []int64
	SkippedRunning bool
}

// Clean reports whether nothing was breached.
func (r IntegrityReport) Clean() bool {
	return len(r.Discrepancies) == 0 && len(r.NegativeStock) == 0
}

// LedgerIntegrityJob verifies cash conservation per safe and non-negative stock.
type LedgerIntegrityJob struct {
	Safes       SafeReconciler
	Stock       NegativeStockFinder
	Locker      *redislock.Client
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Parallelism int
	LockTTL     time.Duration
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler. locker may be nil.
func NewLedgerIntegrityJob(safes SafeReconciler, stock NegativeStockFinder, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Safes: safes, Stock: stock, Locker: locker, Logger: logger, Metrics: metrics, Parallelism: 4, LockTTL: 5 * time.Minute}
}

// Handle processes integrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.BusinessUnitID)
	return err
}

// Run performs one scan. A scan already running for the same scope is skipped.
func (j *LedgerIntegrityJob) Run(ctx context.Context, businessUnitID int64) (report IntegrityReport, err error) {
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.Int64("business_unit_id", businessUnitID))

	if j.Locker != nil {
		lock, lockErr := j.Locker.Obtain(ctx, shared.IntegrityLockKey(businessUnitID), j.lockTTL(), nil)
		if errors.Is(lockErr, redislock.ErrNotObtained) {
			logger.Info("integrity scan already running")
			return IntegrityReport{SkippedRunning: true}, nil
		}
		if lockErr != nil {
			return IntegrityReport{}, lockErr
		}
		defer func() {
			if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
				logger.Warn("release integrity lock", slog.Any("error", releaseErr))
			}
		}()
	}

	safes, err := j.Safes.ListSafes(ctx, businessUnitID)
	if err != nil {
		return IntegrityReport{}, err
	}
	report.SafesChecked = len(safes)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for _, safe := range safes {
		g.Go(func() error {
			d, err := j.Safes.Reconcile(gctx, safe)
			if err != nil || d == nil {
				return err
			}
			mu.Lock()
			report.Discrepancies = append(report.Discrepancies, *d)
			mu.Unlock()
			j.metrics().AddAnomalies("cash_drift", safe.BusinessUnitID, 1)
			logger.Error("safe does not reconcile",
				slog.Int64("safe_id", d.SafeID),
				slog.String("balance", d.CurrentBalance.String()),
				slog.String("ledger_sum", d.LedgerSum.String()),
				slog.String("difference", d.Difference.String()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, err
	}

	if j.Stock != nil {
		negative, err := j.Stock.CountNegative(ctx, businessUnitID)
		if err != nil {
			return IntegrityReport{}, err
		}
		report.NegativeStock = negative
		if len(negative) > 0 {
			j.metrics().AddAnomalies("negative_stock", businessUnitID, len(negative))
			logger.Error("products with negative stock", slog.Any("product_ids", negative))
		}
	}

	logger.Info("ledger integrity scan completed",
		slog.Int("safes", report.SafesChecked),
		slog.Int("discrepancies", len(report.Discrepancies)),
		slog.Int("negative_stock", len(report.NegativeStock)))
	return report, nil
}

func (j *LedgerIntegrityJob) parallelism() int {
	if j.Parallelism > 0 {
		return j.Parallelism
	}
	return 4
}

func (j *LedgerIntegrityJob) lockTTL() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return 5 * time.Minute
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
