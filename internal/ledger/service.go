package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines ledger read access.
type RepositoryPort interface {
	ListEntries(ctx context.Context, filter Filter) ([]Entry, error)
	Totals(ctx context.Context, businessUnitID int64, from, to time.Time) ([]TypeTotal, error)
	SaleCOGS(ctx context.Context, businessUnitID int64, from, to time.Time) (decimal.Decimal, error)
	BusinessUnitIDs(ctx context.Context) ([]int64, error)
}

// Service answers ledger queries and caches projections.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListEntries returns master ledger entries.
func (s *Service) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Invalid("date range end before start")
	}
	for _, t := range filter.Types {
		if !t.Valid() {
			return nil, shared.Invalid("unknown ledger entry type %q", t)
		}
	}
	return s.repo.ListEntries(ctx, filter)
}

// ProfitAndLoss projects the income statement for [from, to). Concurrent
// requests for the same key share one load.
func (s *Service) ProfitAndLoss(ctx context.Context, businessUnitID int64, from, to time.Time) (ProfitAndLoss, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return ProfitAndLoss{}, shared.Invalid("a non-empty date range is required")
	}
	key, err := s.cache.BuildKey(ctx, keyPL(businessUnitID, from, to))
	if err != nil {
		return ProfitAndLoss{}, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var pl ProfitAndLoss
		err := s.cache.FetchJSON(ctx, key, &pl, func(ctx context.Context) (any, error) {
			return s.project(ctx, businessUnitID, from, to)
		})
		return pl, err
	})
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return v.(ProfitAndLoss), nil
}

func (s *Service) project(ctx context.Context, businessUnitID int64, from, to time.Time) (ProfitAndLoss, error) {
	totals, err := s.repo.Totals(ctx, businessUnitID, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	cogs, err := s.repo.SaleCOGS(ctx, businessUnitID, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	pl := Project(totals, cogs)
	pl.BusinessUnitID = businessUnitID
	pl.From = from
	pl.To = to
	return pl, nil
}

// Invalidate drops every cached projection.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// WarmMonth precomputes the P&L of the month containing at for every business
// unit and returns how many projections were loaded.
func (s *Service) WarmMonth(ctx context.Context, at time.Time) (int, error) {
	from, to := MonthBounds(at)
	ids, err := s.repo.BusinessUnitIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := s.ProfitAndLoss(ctx, id, from, to); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// MonthBounds returns the first instant of at's month and of the next month, in UTC.
func MonthBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	from := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
