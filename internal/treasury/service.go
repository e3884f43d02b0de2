package treasury

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts treasury reads.
type RepositoryPort interface {
	GetSafe(ctx context.Context, id int64) (Safe, error)
	ListSafes(ctx context.Context, businessUnitID int64) ([]Safe, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	LedgerSum(ctx context.Context, safeID int64) (decimal.Decimal, error)
}

// Service answers safe balance and cash ledger queries.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetSafe returns a safe's current balance.
func (s *Service) GetSafe(ctx context.Context, id int64) (Safe, error) {
	if id <= 0 {
		return Safe{}, shared.Invalid("safe id required")
	}
	return s.repo.GetSafe(ctx, id)
}

// ListSafes lists safes of a business unit.
func (s *Service) ListSafes(ctx context.Context, businessUnitID int64) ([]Safe, error) {
	return s.repo.ListSafes(ctx, businessUnitID)
}

// CashLedger lists entries of one safe.
func (s *Service) CashLedger(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if filter.SafeID <= 0 {
		return nil, shared.Invalid("safe id required")
	}
	return s.repo.ListEntries(ctx, filter)
}

// Reconcile checks that a safe's balance equals its initial balance plus the
// sum of its cash ledger. It returns nil when the safe reconciles.
func (s *Service) Reconcile(ctx context.Context, safe Safe) (*Discrepancy, error) {
	sum, err := s.repo.LedgerSum(ctx, safe.ID)
	if err != nil {
		return nil, err
	}
	diff := safe.CurrentBalance.Sub(safe.InitialBalance).Sub(sum)
	if diff.IsZero() {
		return nil, nil
	}
	return &Discrepancy{
		SafeID:         safe.ID,
		Name:           safe.Name,
		CurrentBalance: safe.CurrentBalance,
		InitialBalance: safe.InitialBalance,
		LedgerSum:      sum,
		Difference:     diff,
	}, nil
}
