package shared

import "fmt"

// IntegrityLockKey builds the redis key guarding a ledger integrity scan.
func IntegrityLockKey(businessUnitID int64) string {
	if businessUnitID == 0 {
		return "ledger:integrity:all:lock"
	}
	return fmt.Sprintf("ledger:integrity:unit:%d:lock", businessUnitID)
}

// ReportWarmupLockKey builds the redis key guarding a report cache warmup.
func ReportWarmupLockKey(period string) string {
	return fmt.Sprintf("ledger:reports:%s:warmup", period)
}
