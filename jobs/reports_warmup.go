package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MonthWarmer precomputes the P&L projections of a month.
type MonthWarmer interface {
	WarmMonth(ctx context.Context, at time.Time) (int, error)
}

// ReportsWarmupJob fills the report cache after it has been invalidated.
type ReportsWarmupJob struct {
	Reports MonthWarmer
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler. locker may be nil.
func NewReportsWarmupJob(reports MonthWarmer, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reports,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	at := j.now()
	if payload.Period != "" {
		parsed, err := time.Parse("2006-01", payload.Period)
		if err != nil {
			return asynq.SkipRetry
		}
		at = parsed
	}
	period := at.Format("2006-01")

	tracker := j.metrics().Track(TaskReportsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.String("period", period))

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.ReportWarmupLockKey(period), time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("warmup already running")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	// Bound the run so a slow projection cannot hold the worker.
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	start := time.Now()
	warmed, err := j.Reports.WarmMonth(runCtx, at)
	if err != nil {
		logger.Error("warm reports", slog.Any("error", err))
		return err
	}
	logger.Info("completed reports warmup", slog.Int("business_units", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
