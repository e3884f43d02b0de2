package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity reconciles safes against the cash ledger and scans for negative stock.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired Idempotency-Key records.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskReportsWarmup precomputes the current month P&L per business unit.
	TaskReportsWarmup = "reports:warmup"
)

// LedgerIntegrityPayload scopes an integrity scan. Zero scans every business unit.
type LedgerIntegrityPayload struct {
	BusinessUnitID int64 `json:"business_unit_id"`
}

// IdempotencyCleanupPayload overrides the configured retention, in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// ReportsWarmupPayload names the month to warm as YYYY-MM. Empty means the current month.
type ReportsWarmupPayload struct {
	Period string `json:"period,omitempty"`
}

// NewLedgerIntegrityTask constructs an integrity scan task.
func NewLedgerIntegrityTask(businessUnitID int64) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, LedgerIntegrityPayload{BusinessUnitID: businessUnitID})
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: retentionHours})
}

// NewReportsWarmupTask constructs a warmup task.
func NewReportsWarmupTask(period string) (*asynq.Task, error) {
	return newTask(TaskReportsWarmup, ReportsWarmupPayload{Period: period})
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}
