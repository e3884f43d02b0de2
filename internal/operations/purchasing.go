package operations

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// CreatePurchaseOrder places an order, snapshotting cost_at_order per line
// from the given unit cost or the product's current WAC.
func (s *Service) CreatePurchaseOrder(ctx context.Context, cmd PurchaseOrderCommand) (PurchaseOrderResult, error) {
	if cmd.BusinessUnitID <= 0 || cmd.SupplierID <= 0 {
		return PurchaseOrderResult{}, shared.Invalid("business unit and supplier required")
	}
	if len(cmd.Lines) == 0 {
		return PurchaseOrderResult{}, shared.Invalid("purchase order requires at least one line")
	}
	for i, line := range cmd.Lines {
		if err := positive(fmt.Sprintf("line %d quantity", i+1), line.Quantity); err != nil {
			return PurchaseOrderResult{}, err
		}
		if line.UnitCost != nil && line.UnitCost.IsNegative() {
			return PurchaseOrderResult{}, shared.Invalid("line %d: unit cost must be >= 0", i+1)
		}
	}
	var res PurchaseOrderResult
	err := s.run(ctx, "create_purchase_order", func(ctx context.Context, u *unit) error {
		ids := make([]int64, 0, len(cmd.Lines))
		for _, line := range cmd.Lines {
			ids = append(ids, line.ProductID)
		}
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}
		if _, err := u.tx.Counterparties().LockSupplier(ctx, cmd.SupplierID); err != nil {
			return err
		}
		po := PurchaseOrder{
			BusinessUnitID: cmd.BusinessUnitID,
			SupplierID:     cmd.SupplierID,
			Status:         POStatusOrdered,
			AmountDue:      decimal.Zero,
			AmountPaid:     decimal.Zero,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
			UpdatedAt:      u.now,
		}
		poID, err := u.tx.InsertPurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		lines := make([]POLine, 0, len(cmd.Lines))
		for _, in := range cmd.Lines {
			p, err := u.ownedProduct(ctx, in.ProductID, cmd.BusinessUnitID)
			if err != nil {
				return err
			}
			cost := p.CostPrice
			if in.UnitCost != nil {
				cost = shared.Cost(*in.UnitCost)
			}
			line := POLine{
				PurchaseOrderID:  poID,
				ProductID:        p.ID,
				QuantityOrdered:  shared.Qty(in.Quantity),
				QuantityReceived: decimal.Zero,
				CostAtOrder:      cost,
			}
			id, err := u.tx.InsertPOLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = id
			lines = append(lines, line)
		}
		res = PurchaseOrderResult{Order: po, Lines: lines}
		return nil
	})
	if err != nil {
		return PurchaseOrderResult{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", "purchase_order", res.Order.ID, map[string]any{"supplier_id": cmd.SupplierID, "lines": len(res.Lines)})
	return res, nil
}

// CancelPurchaseOrder cancels an order nothing has been received against.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, shared.Invalid("purchase order id required")
	}
	var po PurchaseOrder
	err := s.run(ctx, "cancel_purchase_order", func(ctx context.Context, u *unit) error {
		order, _, err := u.tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		next, err := PurchaseOrderMachine.Fire(order.Status, TriggerCancel)
		if err != nil {
			return err
		}
		order.Status = next
		order.UpdatedAt = u.now
		if err := u.tx.UpdatePurchaseOrder(ctx, order); err != nil {
			return err
		}
		if _, err := u.tx.Counterparties().LockSupplier(ctx, order.SupplierID); err != nil {
			return err
		}
		if _, err := u.parties.RecomputeSupplier(ctx, order.SupplierID); err != nil {
			return err
		}
		po = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CANCEL", "purchase_order", id, nil)
	return po, nil
}

// ReceivePurchaseOrder receives quantities against order lines. Each line is
// blended into the product WAC at its tax exclusive cost_at_order; the
// supplier payable grows by the tax inclusive value; INVENTORY_ACQUIRED and
// VAT_CLAIMABLE entries split the value.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, cmd ReceiveCommand) (ReceiveResult, error) {
	if cmd.PurchaseOrderID <= 0 {
		return ReceiveResult{}, shared.Invalid("purchase order id required")
	}
	if len(cmd.Lines) == 0 {
		return ReceiveResult{}, shared.Invalid("receipt requires at least one line")
	}
	seen := make(map[int64]struct{}, len(cmd.Lines))
	for i, line := range cmd.Lines {
		if err := positive(fmt.Sprintf("line %d quantity", i+1), line.Quantity); err != nil {
			return ReceiveResult{}, err
		}
		if _, dup := seen[line.POLineID]; dup {
			return ReceiveResult{}, shared.Invalid("order line %d received twice", line.POLineID)
		}
		seen[line.POLineID] = struct{}{}
	}
	var res ReceiveResult
	err := s.run(ctx, "receive_purchase_order", func(ctx context.Context, u *unit) error {
		po, lines, err := u.tx.LockPurchaseOrder(ctx, cmd.PurchaseOrderID)
		if err != nil {
			return err
		}
		if !PurchaseOrderMachine.Can(po.Status, TriggerReceivePart) {
			return fmt.Errorf("purchase order %d is %s: %w", po.ID, po.Status, shared.ErrInvalidState)
		}
		byID := make(map[int64]int, len(lines))
		productIDs := make([]int64, 0, len(lines))
		for i, l := range lines {
			byID[l.ID] = i
			productIDs = append(productIDs, l.ProductID)
		}
		for _, in := range cmd.Lines {
			if _, ok := byID[in.POLineID]; !ok {
				return shared.NotFound(fmt.Sprintf("purchase order %d line", po.ID), in.POLineID)
			}
		}
		if err := u.stock.Lock(ctx, productIDs...); err != nil {
			return err
		}

		receipt := Receipt{PurchaseOrderID: po.ID, ActorID: u.actorID, ReceivedAt: u.now}
		receiptID, err := u.tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = receiptID
		source := ledger.Source(ledger.SourcePurchaseReceipt, receiptID)

		exclusive := decimal.Zero
		received := make([]ReceiptLine, 0, len(cmd.Lines))
		for _, in := range cmd.Lines {
			idx := byID[in.POLineID]
			line := lines[idx]
			qty := shared.Qty(in.Quantity)
			if qty.GreaterThan(line.Remaining()) {
				return shared.Invalid("order line %d: receiving %s exceeds outstanding %s", line.ID, qty.String(), line.Remaining().String())
			}
			newWAC, err := u.stock.Receive(ctx, line.ProductID, qty, line.CostAtOrder, source)
			if err != nil {
				return err
			}
			line.QuantityReceived = line.QuantityReceived.Add(qty)
			if err := u.tx.UpdatePOLineReceived(ctx, line.ID, line.QuantityReceived); err != nil {
				return err
			}
			lines[idx] = line
			rl := ReceiptLine{ReceiptID: receiptID, POLineID: line.ID, ProductID: line.ProductID, Quantity: qty, UnitCost: line.CostAtOrder, NewCostPrice: newWAC}
			if err := u.tx.InsertReceiptLine(ctx, rl); err != nil {
				return err
			}
			received = append(received, rl)
			exclusive = exclusive.Add(shared.Extend(qty, line.CostAtOrder))
		}

		inclusive := shared.Money(exclusive.Mul(decimal.NewFromInt(1).Add(s.vatRate)))
		tax := inclusive.Sub(exclusive)
		receipt.ExclusiveValue, receipt.TaxAmount, receipt.InclusiveValue = exclusive, tax, inclusive

		trigger := TriggerReceiveAll
		for _, l := range lines {
			if l.Remaining().IsPositive() {
				trigger = TriggerReceivePart
				break
			}
		}
		next, err := PurchaseOrderMachine.Fire(po.Status, trigger)
		if err != nil {
			return err
		}
		po.Status = next
		po.AmountDue = po.AmountDue.Add(inclusive)
		po.UpdatedAt = u.now
		if err := u.tx.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}

		balance, err := u.parties.IncreasePayable(ctx, po.SupplierID, inclusive)
		if err != nil {
			return err
		}
		res = ReceiveResult{Receipt: receipt, Lines: received, Status: po.Status, SupplierBalance: balance}
		acquired, err := u.appendEntry(ctx, po.BusinessUnitID, ledger.TypeInventoryAcquired, exclusive,
			fmt.Sprintf("Goods received on PO #%d", po.ID), source)
		if err != nil {
			return err
		}
		if acquired != nil {
			res.LedgerEntries = append(res.LedgerEntries, *acquired)
		}
		vat, err := u.appendEntry(ctx, po.BusinessUnitID, ledger.TypeVATClaimable, tax,
			fmt.Sprintf("Input VAT on PO #%d", po.ID), source)
		if err != nil {
			return err
		}
		if vat != nil {
			res.LedgerEntries = append(res.LedgerEntries, *vat)
		}
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.recordAudit(ctx, "PO_RECEIVE", "purchase_order", cmd.PurchaseOrderID, map[string]any{
		"receipt_id": res.Receipt.ID,
		"inclusive":  res.Receipt.InclusiveValue.String(),
		"status":     string(res.Status),
	})
	return res, nil
}

// PaySupplier settles purchase orders from a safe. The acquisition was already
// recognised on receipt, so the ledger records a neutral TRANSFER.
func (s *Service) PaySupplier(ctx context.Context, cmd SupplierPaymentCommand) (SupplierPaymentResult, error) {
	if cmd.SupplierID <= 0 || cmd.SafeID <= 0 {
		return SupplierPaymentResult{}, shared.Invalid("supplier and safe required")
	}
	if len(cmd.Allocations) == 0 {
		return SupplierPaymentResult{}, shared.Invalid("at least one allocation required")
	}
	amount := decimal.Zero
	for _, a := range cmd.Allocations {
		if err := positiveMoney("allocation amount", a.Amount); err != nil {
			return SupplierPaymentResult{}, err
		}
		amount = amount.Add(shared.Money(a.Amount))
	}
	var res SupplierPaymentResult
	err := s.run(ctx, "pay_supplier", func(ctx context.Context, u *unit) error {
		payment := SupplierPayment{
			SupplierID: cmd.SupplierID,
			SafeID:     cmd.SafeID,
			Amount:     amount,
			Reference:  cmd.Reference,
			ActorID:    u.actorID,
			CreatedAt:  u.now,
		}
		paymentID, err := u.tx.InsertSupplierPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = paymentID

		applied, err := u.parties.ApplySupplierPayment(ctx, cmd.SupplierID, cmd.Allocations)
		if err != nil {
			return err
		}
		for _, a := range applied.Allocations {
			if err := u.tx.InsertSupplierAllocation(ctx, paymentID, a.DocumentID, a.Applied); err != nil {
				return err
			}
		}
		cashEntry, err := u.cash.Debit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      amount,
			Type:        treasury.MovementPayout,
			Description: fmt.Sprintf("Supplier payment #%d", paymentID),
			ActorID:     u.actorID,
			PaymentID:   &paymentID,
		})
		if err != nil {
			return err
		}
		safe, err := u.cash.Safe(ctx, cmd.SafeID)
		if err != nil {
			return err
		}
		entry, err := u.requireEntry(ctx, safe.BusinessUnitID, ledger.TypeTransfer, amount,
			fmt.Sprintf("Supplier %d payment", cmd.SupplierID), ledger.Source(ledger.SourceSupplierPayment, paymentID))
		if err != nil {
			return err
		}
		res = SupplierPaymentResult{Payment: payment, Applied: applied, CashEntry: cashEntry, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return SupplierPaymentResult{}, err
	}
	s.recordAudit(ctx, "SUPPLIER_PAYMENT", "supplier_payment", res.Payment.ID, map[string]any{
		"supplier_id": cmd.SupplierID,
		"amount":      res.Payment.Amount.String(),
	})
	return res, nil
}
