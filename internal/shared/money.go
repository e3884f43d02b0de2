package shared

import "github.com/shopspring/decimal"

const (
	// MoneyPlaces is the persisted scale of monetary amounts.
	MoneyPlaces int32 = 2
	// CostPlaces is the persisted scale of weighted-average costs.
	CostPlaces int32 = 4
	// QtyPlaces is the persisted scale of quantities.
	QtyPlaces int32 = 3
)

// Money rounds an amount to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Cost rounds a unit cost to the WAC scale.
func Cost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostPlaces)
}

// Qty rounds a quantity to the stored scale.
func Qty(d decimal.Decimal) decimal.Decimal {
	return d.Round(QtyPlaces)
}

// Extend multiplies a quantity by a unit value and rounds to cents.
func Extend(qty, unit decimal.Decimal) decimal.Decimal {
	return Money(qty.Mul(unit))
}

// Sum adds amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
