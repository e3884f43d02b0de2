package counterparty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines counterparty read access.
type RepositoryPort interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListOutstandingReceivables(ctx context.Context, customerID int64) ([]Receivable, error)
	ListOutstandingPayables(ctx context.Context, supplierID int64) ([]Payable, error)
}

// Service answers balance and aging queries.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetCustomer returns the customer's point-in-time receivable.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.Invalid("customer id required")
	}
	return s.repo.GetCustomer(ctx, id)
}

// GetSupplier returns the supplier's point-in-time payable.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.Invalid("supplier id required")
	}
	return s.repo.GetSupplier(ctx, id)
}

// OutstandingSales lists a customer's unpaid sales.
func (s *Service) OutstandingSales(ctx context.Context, customerID int64) ([]Receivable, error) {
	return s.repo.ListOutstandingReceivables(ctx, customerID)
}

// OutstandingOrders lists a supplier's unpaid purchase orders.
func (s *Service) OutstandingOrders(ctx context.Context, supplierID int64) ([]Payable, error) {
	return s.repo.ListOutstandingPayables(ctx, supplierID)
}

// ReceivableAging groups outstanding sale amounts by days since sale.
func (s *Service) ReceivableAging(ctx context.Context, customerID int64, asOf time.Time) (AgingBucket, error) {
	sales, err := s.repo.ListOutstandingReceivables(ctx, customerID)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	bucket := AgingBucket{Current: decimal.Zero, Bucket30: decimal.Zero, Bucket60: decimal.Zero, Bucket90: decimal.Zero, Bucket120: decimal.Zero}
	for _, sale := range sales {
		if sale.Status == StatusPaid {
			continue
		}
		amount := sale.Outstanding()
		days := int(asOf.Sub(sale.CreatedAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(amount)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(amount)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(amount)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(amount)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(amount)
		}
	}
	return bucket, nil
}
