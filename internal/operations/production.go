package operations

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MixProduct produces a finished good from its recipe. Ingredients are drawn
// all-or-nothing at WAC, the absorbed cost is blended into the finished good
// and recorded as a COGS_ADJUSTMENT entry.
func (s *Service) MixProduct(ctx context.Context, cmd MixCommand) (MixResult, error) {
	if cmd.BusinessUnitID <= 0 || cmd.FinishedProductID <= 0 {
		return MixResult{}, shared.Invalid("business unit and finished product required")
	}
	if err := positive("mix quantity", cmd.Quantity); err != nil {
		return MixResult{}, err
	}
	var res MixResult
	err := s.run(ctx, "mix_product", func(ctx context.Context, u *unit) error {
		batch := MixBatch{
			BusinessUnitID:    cmd.BusinessUnitID,
			FinishedProductID: cmd.FinishedProductID,
			Quantity:          shared.Qty(cmd.Quantity),
			AbsorbedCost:      decimal.Zero,
			UnitCost:          decimal.Zero,
			NewCostPrice:      decimal.Zero,
			ActorID:           u.actorID,
			CreatedAt:         u.now,
		}
		id, err := u.tx.InsertMixBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		source := ledger.Source(ledger.SourceMixBatch, id)

		mixed, err := u.stock.ConsumeRecipe(ctx, cmd.FinishedProductID, batch.Quantity, source)
		if err != nil {
			return err
		}
		finished, err := u.ownedProduct(ctx, cmd.FinishedProductID, cmd.BusinessUnitID)
		if err != nil {
			return err
		}
		batch.AbsorbedCost = shared.Money(mixed.AbsorbedCost)
		batch.UnitCost = mixed.UnitCost
		batch.NewCostPrice = mixed.NewCostPrice
		if err := u.tx.UpdateMixBatch(ctx, batch); err != nil {
			return err
		}
		res = MixResult{Batch: batch}
		res.LedgerEntry, err = u.appendEntry(ctx, cmd.BusinessUnitID, ledger.TypeCOGSAdjustment, batch.AbsorbedCost,
			fmt.Sprintf("Mixed %s x %s", batch.Quantity.String(), finished.Name), source)
		return err
	})
	if err != nil {
		return MixResult{}, err
	}
	s.recordAudit(ctx, "MIX_PRODUCT", "mix_batch", res.Batch.ID, map[string]any{
		"finished_product_id": cmd.FinishedProductID,
		"quantity":            res.Batch.Quantity.String(),
		"absorbed_cost":       res.Batch.AbsorbedCost.String(),
	})
	return res, nil
}

// RecordStockTake resets counted products to their counted quantity. The
// variance of each line is valued at the pre-take WAC and the signed total is
// booked as one STOCK_GAIN or EXPENSE entry.
func (s *Service) RecordStockTake(ctx context.Context, cmd StockTakeCommand) (StockTakeResult, error) {
	if cmd.BusinessUnitID <= 0 {
		return StockTakeResult{}, shared.Invalid("business unit required")
	}
	if len(cmd.Lines) == 0 {
		return StockTakeResult{}, shared.Invalid("stock take requires at least one line")
	}
	seen := make(map[int64]struct{}, len(cmd.Lines))
	ids := make([]int64, 0, len(cmd.Lines))
	for i, line := range cmd.Lines {
		if line.ProductID <= 0 {
			return StockTakeResult{}, shared.Invalid("line %d: product required", i+1)
		}
		if line.CountedQty.IsNegative() {
			return StockTakeResult{}, shared.Invalid("line %d: counted quantity must be >= 0", i+1)
		}
		if _, dup := seen[line.ProductID]; dup {
			return StockTakeResult{}, shared.Invalid("product %d counted twice", line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	var res StockTakeResult
	err := s.run(ctx, "record_stock_take", func(ctx context.Context, u *unit) error {
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := u.ownedProduct(ctx, id, cmd.BusinessUnitID); err != nil {
				return err
			}
		}
		take := StockTake{
			BusinessUnitID: cmd.BusinessUnitID,
			Notes:          cmd.Notes,
			TotalVariance:  decimal.Zero,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		id, err := u.tx.InsertStockTake(ctx, take)
		if err != nil {
			return err
		}
		take.ID = id
		source := ledger.Source(ledger.SourceStockTake, id)

		lines := make([]StockTakeLine, 0, len(cmd.Lines))
		for _, in := range cmd.Lines {
			v, err := u.stock.SetCounted(ctx, in.ProductID, in.CountedQty, source)
			if err != nil {
				return err
			}
			line := StockTakeLine{
				StockTakeID:   id,
				ProductID:     v.ProductID,
				SystemQty:     v.SystemQty,
				CountedQty:    v.CountedQty,
				VarianceQty:   v.VarianceQty,
				CostAtTime:    v.CostAtTime,
				VarianceValue: v.Value,
			}
			if err := u.tx.InsertStockTakeLine(ctx, line); err != nil {
				return err
			}
			take.TotalVariance = take.TotalVariance.Add(v.Value)
			lines = append(lines, line)
		}
		if err := u.tx.UpdateStockTakeTotal(ctx, id, take.TotalVariance); err != nil {
			return err
		}
		res = StockTakeResult{StockTake: take, Lines: lines}
		if take.TotalVariance.IsPositive() {
			res.LedgerEntry, err = u.appendEntry(ctx, cmd.BusinessUnitID, ledger.TypeStockGain, take.TotalVariance,
				fmt.Sprintf("Stock take #%d gain", id), source)
			return err
		}
		res.LedgerEntry, err = u.appendEntry(ctx, cmd.BusinessUnitID, ledger.TypeExpense, take.TotalVariance.Abs(),
			fmt.Sprintf("Stock take #%d shrinkage", id), source)
		return err
	})
	if err != nil {
		return StockTakeResult{}, err
	}
	s.recordAudit(ctx, "STOCK_TAKE", "stock_take", res.StockTake.ID, map[string]any{
		"lines":          len(res.Lines),
		"total_variance": res.StockTake.TotalVariance.String(),
	})
	return res, nil
}

// TransferInternal moves stock from the providing unit to the requesting unit
// at the provider's WAC. When the two units are of different business types
// the value is booked as paired INTERNAL_EXPENSE and INTERNAL_INCOME entries.
func (s *Service) TransferInternal(ctx context.Context, cmd InternalTransferCommand) (InternalTransferResult, error) {
	if cmd.RequestingUnitID <= 0 || cmd.ProvidingUnitID <= 0 {
		return InternalTransferResult{}, shared.Invalid("requesting and providing unit required")
	}
	if cmd.RequestingUnitID == cmd.ProvidingUnitID {
		return InternalTransferResult{}, shared.Invalid("requesting and providing unit must differ")
	}
	if len(cmd.Lines) == 0 {
		return InternalTransferResult{}, shared.Invalid("internal transfer requires at least one line")
	}
	ids := make([]int64, 0, len(cmd.Lines)*2)
	for i, line := range cmd.Lines {
		if line.ProductID <= 0 {
			return InternalTransferResult{}, shared.Invalid("line %d: product required", i+1)
		}
		if err := positive(fmt.Sprintf("line %d quantity", i+1), line.Quantity); err != nil {
			return InternalTransferResult{}, err
		}
		if line.DestinationProductID == line.ProductID {
			return InternalTransferResult{}, shared.Invalid("line %d: destination product must differ from source", i+1)
		}
		ids = append(ids, line.ProductID)
		if line.DestinationProductID > 0 {
			ids = append(ids, line.DestinationProductID)
		}
	}
	var res InternalTransferResult
	err := s.run(ctx, "transfer_internal", func(ctx context.Context, u *unit) error {
		requester, err := u.tx.GetBusinessUnit(ctx, cmd.RequestingUnitID)
		if err != nil {
			return err
		}
		provider, err := u.tx.GetBusinessUnit(ctx, cmd.ProvidingUnitID)
		if err != nil {
			return err
		}
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}
		for _, line := range cmd.Lines {
			if _, err := u.ownedProduct(ctx, line.ProductID, provider.ID); err != nil {
				return err
			}
			if line.DestinationProductID > 0 {
				if _, err := u.ownedProduct(ctx, line.DestinationProductID, requester.ID); err != nil {
					return err
				}
			}
		}

		transfer := InternalTransfer{
			RequestingUnitID: requester.ID,
			ProvidingUnitID:  provider.ID,
			TotalValue:       decimal.Zero,
			Financial:        requester.BusinessType != provider.BusinessType,
			Notes:            cmd.Notes,
			ActorID:          u.actorID,
			CreatedAt:        u.now,
		}
		id, err := u.tx.InsertInternalTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		source := ledger.Source(ledger.SourceInternalTransfer, id)

		lines := make([]InternalTransferLine, 0, len(cmd.Lines))
		for _, in := range cmd.Lines {
			p, err := u.stock.Product(ctx, in.ProductID)
			if err != nil {
				return err
			}
			qty := shared.Qty(in.Quantity)
			value, err := u.stock.Consume(ctx, in.ProductID, qty, source)
			if err != nil {
				return err
			}
			line := InternalTransferLine{
				InternalTransferID:   id,
				ProductID:            in.ProductID,
				DestinationProductID: optionalID(in.DestinationProductID),
				Quantity:             qty,
				UnitCost:             p.CostPrice,
				Value:                value,
			}
			if line.DestinationProductID != nil {
				if _, err := u.stock.Receive(ctx, *line.DestinationProductID, qty, p.CostPrice, source); err != nil {
					return err
				}
			}
			if err := u.tx.InsertInternalTransferLine(ctx, line); err != nil {
				return err
			}
			transfer.TotalValue = transfer.TotalValue.Add(value)
			lines = append(lines, line)
		}
		if err := u.tx.UpdateInternalTransfer(ctx, transfer); err != nil {
			return err
		}
		res = InternalTransferResult{Transfer: transfer, Lines: lines}
		if !transfer.Financial {
			return nil
		}
		expense, err := u.appendEntry(ctx, requester.ID, ledger.TypeInternalExpense, transfer.TotalValue,
			fmt.Sprintf("Internal transfer #%d from %s", id, provider.Name), source)
		if err != nil {
			return err
		}
		income, err := u.appendEntry(ctx, provider.ID, ledger.TypeInternalIncome, transfer.TotalValue,
			fmt.Sprintf("Internal transfer #%d to %s", id, requester.Name), source)
		if err != nil {
			return err
		}
		if expense != nil && income != nil {
			res.LedgerEntries = append(res.LedgerEntries, *expense, *income)
		}
		return nil
	})
	if err != nil {
		return InternalTransferResult{}, err
	}
	s.recordAudit(ctx, "INTERNAL_TRANSFER", "internal_transfer", res.Transfer.ID, map[string]any{
		"requesting_unit_id": cmd.RequestingUnitID,
		"providing_unit_id":  cmd.ProvidingUnitID,
		"total_value":        res.Transfer.TotalValue.String(),
	})
	return res, nil
}
