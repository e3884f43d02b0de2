package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// WeightedAverage blends a receipt into an existing cost pool:
//
//	newWAC = (oldQty*oldWAC + recvQty*unitCost) / (oldQty + recvQty)
//
// An empty resulting pool takes the receipt's unit cost.
func WeightedAverage(oldQty, oldWAC, recvQty, unitCost decimal.Decimal) decimal.Decimal {
	totalQty := oldQty.Add(recvQty)
	if totalQty.IsZero() {
		return shared.Cost(unitCost)
	}
	value := oldQty.Mul(oldWAC).Add(recvQty.Mul(unitCost))
	return shared.Cost(value.Div(totalQty))
}

// blendValue is WeightedAverage for a receipt known by its total value rather than unit cost.
func blendValue(oldQty, oldWAC, recvQty, recvValue decimal.Decimal) decimal.Decimal {
	totalQty := oldQty.Add(recvQty)
	if totalQty.IsZero() {
		if recvQty.IsZero() {
			return shared.Cost(oldWAC)
		}
		return shared.Cost(recvValue.Div(recvQty))
	}
	return shared.Cost(oldQty.Mul(oldWAC).Add(recvValue).Div(totalQty))
}
