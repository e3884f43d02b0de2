package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates stock card movements.
type MovementType string

const (
	// MovementReceipt represents an inbound movement blended into the WAC.
	MovementReceipt MovementType = "RECEIPT"
	// MovementConsume represents an outbound movement valued at the WAC.
	MovementConsume MovementType = "CONSUME"
	// MovementCount represents a stock take resetting quantity to a counted value.
	MovementCount MovementType = "COUNT"
)

// Product is an inventory item owned by a business unit.
type Product struct {
	ID             int64
	BusinessUnitID int64
	Name           string
	Unit           string
	QuantityOnHand decimal.Decimal
	CostPrice      decimal.Decimal
	SellingPrice   decimal.Decimal
	UpdatedAt      time.Time
}

// StockValue is quantity on hand valued at the current WAC.
func (p Product) StockValue() decimal.Decimal {
	return p.QuantityOnHand.Mul(p.CostPrice).Round(2)
}

// RecipeLine is one bill-of-materials ingredient of a finished good.
type RecipeLine struct {
	FinishedProductID   int64
	IngredientProductID int64
	QtyPerUnit          decimal.Decimal
}

// Movement is a stock card row written for every engine mutation.
type Movement struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Type        MovementType    `json:"movement_type"`
	QtyChange   decimal.Decimal `json:"qty_change"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	BalanceQty  decimal.Decimal `json:"balance_qty"`
	BalanceCost decimal.Decimal `json:"balance_cost"`
	Source      string          `json:"source_reference"`
	PostedAt    time.Time       `json:"posted_at"`
}

// Variance is the outcome of a stock take on one item.
type Variance struct {
	ProductID   int64
	SystemQty   decimal.Decimal
	CountedQty  decimal.Decimal
	VarianceQty decimal.Decimal
	CostAtTime  decimal.Decimal
	Value       decimal.Decimal
}

// ConsumedLine records one ingredient drawn by a mix.
type ConsumedLine struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Cost      decimal.Decimal
}

// MixResult summarises a recipe consumption.
type MixResult struct {
	FinishedProductID int64
	TargetQty         decimal.Decimal
	AbsorbedCost      decimal.Decimal
	UnitCost          decimal.Decimal
	NewCostPrice      decimal.Decimal
	Consumed          []ConsumedLine
}

// StockCardFilter filters movement listings.
type StockCardFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}
