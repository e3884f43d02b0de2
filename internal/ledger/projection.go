package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ProfitAndLoss is the read-side income statement for a business unit and period.
type ProfitAndLoss struct {
	BusinessUnitID    int64           `json:"business_unit_id"`
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	GrossRevenue      decimal.Decimal `json:"gross_revenue"`
	COGS              decimal.Decimal `json:"cogs"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	OperatingExpenses decimal.Decimal `json:"operating_expenses"`
	StockGains        decimal.Decimal `json:"stock_gains"`
	InternalIncome    decimal.Decimal `json:"internal_income"`
	InternalExpense   decimal.Decimal `json:"internal_expense"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	AccountCollection decimal.Decimal `json:"account_collections"`
	InventoryAcquired decimal.Decimal `json:"inventory_acquired"`
	VATClaimable      decimal.Decimal `json:"vat_claimable"`
	MixAbsorbed       decimal.Decimal `json:"mix_absorbed"`
	Transfers         decimal.Decimal `json:"transfers"`
}

// Project folds grouped ledger totals and sale COGS into a ProfitAndLoss.
// Customer payment income is reported as collections: the sale on account
// already recognised that revenue.
func Project(totals []TypeTotal, cogs decimal.Decimal) ProfitAndLoss {
	pl := ProfitAndLoss{
		GrossRevenue:      decimal.Zero,
		OperatingExpenses: decimal.Zero,
		StockGains:        decimal.Zero,
		InternalIncome:    decimal.Zero,
		InternalExpense:   decimal.Zero,
		AccountCollection: decimal.Zero,
		InventoryAcquired: decimal.Zero,
		VATClaimable:      decimal.Zero,
		MixAbsorbed:       decimal.Zero,
		Transfers:         decimal.Zero,
		COGS:              shared.Money(cogs),
	}
	for _, t := range totals {
		switch t.Type {
		case TypeIncome:
			if t.SourceKind == SourceCustomerPayment {
				pl.AccountCollection = pl.AccountCollection.Add(t.Amount)
			} else {
				pl.GrossRevenue = pl.GrossRevenue.Add(t.Amount)
			}
		case TypeExpense:
			pl.OperatingExpenses = pl.OperatingExpenses.Add(t.Amount)
		case TypeStockGain:
			pl.StockGains = pl.StockGains.Add(t.Amount)
		case TypeInternalIncome:
			pl.InternalIncome = pl.InternalIncome.Add(t.Amount)
		case TypeInternalExpense:
			pl.InternalExpense = pl.InternalExpense.Add(t.Amount)
		case TypeInventoryAcquired:
			pl.InventoryAcquired = pl.InventoryAcquired.Add(t.Amount)
		case TypeVATClaimable:
			pl.VATClaimable = pl.VATClaimable.Add(t.Amount)
		case TypeCOGSAdjustment:
			pl.MixAbsorbed = pl.MixAbsorbed.Add(t.Amount)
		case TypeTransfer:
			pl.Transfers = pl.Transfers.Add(t.Amount)
		}
	}
	pl.GrossProfit = pl.GrossRevenue.Sub(pl.COGS)
	pl.NetProfit = pl.GrossProfit.
		Sub(pl.OperatingExpenses).
		Add(pl.StockGains).
		Add(pl.InternalIncome).
		Sub(pl.InternalExpense)
	return pl
}
