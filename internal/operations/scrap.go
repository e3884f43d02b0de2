package operations

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// BuyScrap pays a seller for weighed scrap. Every line is valued once at the
// WAC read under lock; the payout is debited from the safe, the weight is
// received into stock at that WAC and one EXPENSE entry is written.
func (s *Service) BuyScrap(ctx context.Context, cmd ScrapBuyCommand) (ScrapBuyResult, error) {
	if cmd.BusinessUnitID <= 0 || cmd.SafeID <= 0 {
		return ScrapBuyResult{}, shared.Invalid("business unit and safe required")
	}
	if len(cmd.Lines) == 0 {
		return ScrapBuyResult{}, shared.Invalid("scrap purchase requires at least one line")
	}
	for i, line := range cmd.Lines {
		if err := positive(fmt.Sprintf("line %d weight", i+1), line.Weight); err != nil {
			return ScrapBuyResult{}, err
		}
	}
	var res ScrapBuyResult
	err := s.run(ctx, "buy_scrap", func(ctx context.Context, u *unit) error {
		ids := make([]int64, 0, len(cmd.Lines))
		for _, line := range cmd.Lines {
			ids = append(ids, line.ProductID)
		}
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}
		lines := make([]ScrapPurchaseLine, 0, len(cmd.Lines))
		payout := decimal.Zero
		for _, in := range cmd.Lines {
			p, err := u.ownedProduct(ctx, in.ProductID, cmd.BusinessUnitID)
			if err != nil {
				return err
			}
			weight := shared.Qty(in.Weight)
			line := ScrapPurchaseLine{
				ProductID: p.ID,
				Weight:    weight,
				UnitPrice: p.CostPrice,
				LineValue: shared.Extend(weight, p.CostPrice),
			}
			payout = payout.Add(line.LineValue)
			lines = append(lines, line)
		}
		if !payout.IsPositive() {
			return shared.Invalid("scrap payout must be positive")
		}
		if err := u.cash.Lock(ctx, cmd.SafeID); err != nil {
			return err
		}

		purchase := ScrapPurchase{
			BusinessUnitID: cmd.BusinessUnitID,
			SafeID:         cmd.SafeID,
			SellerName:     cmd.SellerName,
			TotalPayout:    payout,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		id, err := u.tx.InsertScrapPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		source := ledger.Source(ledger.SourceScrapPurchase, id)

		cashEntry, err := u.cash.Debit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      payout,
			Type:        treasury.MovementPayout,
			Description: fmt.Sprintf("Scrap purchase #%d", id),
			ActorID:     u.actorID,
			ExpenseRef:  source,
		})
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].ScrapPurchaseID = id
			if err := u.tx.InsertScrapPurchaseLine(ctx, lines[i]); err != nil {
				return err
			}
			if _, err := u.stock.Receive(ctx, lines[i].ProductID, lines[i].Weight, lines[i].UnitPrice, source); err != nil {
				return err
			}
		}
		description := fmt.Sprintf("Scrap purchase #%d", id)
		if cmd.SellerName != "" {
			description += " from " + cmd.SellerName
		}
		entry, err := u.requireEntry(ctx, cmd.BusinessUnitID, ledger.TypeExpense, payout, description, source)
		if err != nil {
			return err
		}
		res = ScrapBuyResult{Purchase: purchase, Lines: lines, CashEntry: cashEntry, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return ScrapBuyResult{}, err
	}
	s.recordAudit(ctx, "SCRAP_BUY", "scrap_purchase", res.Purchase.ID, map[string]any{"payout": res.Purchase.TotalPayout.String()})
	return res, nil
}

// SellScrap sells scrap stock at negotiated prices, recording cost_at_sale from
// the locked WAC, and writes an INCOME entry. When a safe is given the
// proceeds are credited to it.
func (s *Service) SellScrap(ctx context.Context, cmd ScrapSellCommand) (ScrapSellResult, error) {
	if cmd.BusinessUnitID <= 0 {
		return ScrapSellResult{}, shared.Invalid("business unit required")
	}
	if len(cmd.Lines) == 0 {
		return ScrapSellResult{}, shared.Invalid("scrap sale requires at least one line")
	}
	for i, line := range cmd.Lines {
		if err := positive(fmt.Sprintf("line %d weight", i+1), line.Weight); err != nil {
			return ScrapSellResult{}, err
		}
		if line.UnitPrice.IsNegative() {
			return ScrapSellResult{}, shared.Invalid("line %d: unit price must be >= 0", i+1)
		}
	}
	var res ScrapSellResult
	err := s.run(ctx, "sell_scrap", func(ctx context.Context, u *unit) error {
		ids := make([]int64, 0, len(cmd.Lines))
		for _, line := range cmd.Lines {
			ids = append(ids, line.ProductID)
		}
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}
		lines := make([]ScrapSaleLine, 0, len(cmd.Lines))
		total, cost := decimal.Zero, decimal.Zero
		for _, in := range cmd.Lines {
			p, err := u.ownedProduct(ctx, in.ProductID, cmd.BusinessUnitID)
			if err != nil {
				return err
			}
			weight := shared.Qty(in.Weight)
			line := ScrapSaleLine{
				ProductID:  p.ID,
				Weight:     weight,
				UnitPrice:  shared.Money(in.UnitPrice),
				LineValue:  shared.Extend(weight, in.UnitPrice),
				CostAtSale: p.CostPrice,
			}
			total = total.Add(line.LineValue)
			cost = cost.Add(shared.Extend(weight, p.CostPrice))
			lines = append(lines, line)
		}
		if !total.IsPositive() {
			return shared.Invalid("scrap sale total must be positive")
		}

		sale := ScrapSale{
			BusinessUnitID: cmd.BusinessUnitID,
			SafeID:         optionalID(cmd.SafeID),
			BuyerName:      cmd.BuyerName,
			TotalAmount:    total,
			TotalCost:      cost,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		id, err := u.tx.InsertScrapSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		source := ledger.Source(ledger.SourceScrapSale, id)
		for i := range lines {
			if _, err := u.stock.Consume(ctx, lines[i].ProductID, lines[i].Weight, source); err != nil {
				return err
			}
			lines[i].ScrapSaleID = id
			if err := u.tx.InsertScrapSaleLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		description := fmt.Sprintf("Scrap sale #%d", id)
		if cmd.BuyerName != "" {
			description += " to " + cmd.BuyerName
		}
		entry, err := u.requireEntry(ctx, cmd.BusinessUnitID, ledger.TypeIncome, total, description, source)
		if err != nil {
			return err
		}
		res = ScrapSellResult{Sale: sale, Lines: lines, LedgerEntry: entry}
		if cmd.SafeID <= 0 {
			return nil
		}
		cashEntry, err := u.cash.Credit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      total,
			Type:        treasury.MovementSaleCash,
			Description: description,
			ActorID:     u.actorID,
		})
		if err != nil {
			return err
		}
		res.CashEntry = &cashEntry
		return nil
	})
	if err != nil {
		return ScrapSellResult{}, err
	}
	s.recordAudit(ctx, "SCRAP_SELL", "scrap_sale", res.Sale.ID, map[string]any{"total": res.Sale.TotalAmount.String()})
	return res, nil
}
