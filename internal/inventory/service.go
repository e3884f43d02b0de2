package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts the read repository used by Service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, businessUnitID int64) ([]Product, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error)
}

// Service answers point-in-time inventory queries. Mutations go through Engine
// inside a unit of work.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Valuation is the stock value of a business unit at current WAC.
type Valuation struct {
	BusinessUnitID int64
	Products       []Product
	TotalValue     decimal.Decimal
}

// GetProduct returns a product's balance and WAC.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id == 0 {
		return Product{}, errors.New("inventory: product required")
	}
	return s.repo.GetProduct(ctx, id)
}

// GetStockCard lists stock card movements for a product.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.ProductID == 0 {
		return nil, errors.New("inventory: product required")
	}
	return s.repo.GetStockCard(ctx, filter)
}

// Valuate sums quantity times WAC across a business unit's products.
func (s *Service) Valuate(ctx context.Context, businessUnitID int64) (Valuation, error) {
	products, err := s.repo.ListProducts(ctx, businessUnitID)
	if err != nil {
		return Valuation{}, err
	}
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.StockValue())
	}
	return Valuation{BusinessUnitID: businessUnitID, Products: products, TotalValue: total}, nil
}
