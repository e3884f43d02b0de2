package operations

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

var saleCashMovement = map[PaymentMethod]treasury.MovementType{
	PaymentCash: treasury.MovementSaleCash,
	PaymentCard: treasury.MovementSaleCard,
	PaymentEFT:  treasury.MovementSaleEFT,
}

func validateSale(cmd SaleCommand) error {
	if cmd.BusinessUnitID <= 0 {
		return shared.Invalid("business unit required")
	}
	if len(cmd.Lines) == 0 {
		return shared.Invalid("sale requires at least one line")
	}
	switch cmd.PaymentMethod {
	case PaymentAccount:
		if cmd.CustomerID <= 0 {
			return shared.Invalid("sale on account requires a customer")
		}
	case PaymentCash, PaymentCard, PaymentEFT:
		if cmd.SafeID <= 0 {
			return shared.Invalid("%s sale requires a safe", cmd.PaymentMethod)
		}
	default:
		return shared.Invalid("unknown payment method %q", cmd.PaymentMethod)
	}
	for i, line := range cmd.Lines {
		if line.ProductID <= 0 {
			return shared.Invalid("line %d: product required", i+1)
		}
		if err := positive(fmt.Sprintf("line %d quantity", i+1), line.Quantity); err != nil {
			return err
		}
		if line.UnitPrice.IsNegative() {
			return shared.Invalid("line %d: unit price must be >= 0", i+1)
		}
	}
	return nil
}

// ProcessSale sells cart lines. It freezes cost_at_sale from the locked WAC,
// records the sale, decrements stock, appends an INCOME entry and then either
// credits the safe or increases the customer's receivable.
func (s *Service) ProcessSale(ctx context.Context, cmd SaleCommand) (SaleResult, error) {
	if err := validateSale(cmd); err != nil {
		return SaleResult{}, err
	}
	var res SaleResult
	err := s.run(ctx, "process_sale", func(ctx context.Context, u *unit) error {
		ids := make([]int64, 0, len(cmd.Lines))
		for _, line := range cmd.Lines {
			ids = append(ids, line.ProductID)
		}
		if err := u.stock.Lock(ctx, ids...); err != nil {
			return err
		}

		items := make([]SaleItem, 0, len(cmd.Lines))
		total := decimal.Zero
		for _, line := range cmd.Lines {
			p, err := u.ownedProduct(ctx, line.ProductID, cmd.BusinessUnitID)
			if err != nil {
				return err
			}
			price := line.UnitPrice
			if price.IsZero() {
				price = p.SellingPrice
			}
			item := SaleItem{
				ProductID:   p.ID,
				Quantity:    shared.Qty(line.Quantity),
				PriceAtSale: shared.Money(price),
				CostAtSale:  p.CostPrice,
				LineTotal:   shared.Extend(line.Quantity, price),
			}
			total = total.Add(item.LineTotal)
			items = append(items, item)
		}
		if !total.IsPositive() {
			return shared.Invalid("sale total must be positive")
		}

		sale := Sale{
			BusinessUnitID: cmd.BusinessUnitID,
			CustomerID:     optionalID(cmd.CustomerID),
			SafeID:         optionalID(cmd.SafeID),
			PaymentMethod:  cmd.PaymentMethod,
			PaymentStatus:  counterparty.StatusPaid,
			TotalAmount:    total,
			AmountPaid:     total,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		if cmd.PaymentMethod == PaymentAccount {
			sale.PaymentStatus = counterparty.StatusOnAccount
			sale.AmountPaid = decimal.Zero
		}
		saleID, err := u.tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID

		source := ledger.Source(ledger.SourceSale, saleID)
		cogs := decimal.Zero
		for i := range items {
			cost, err := u.stock.Consume(ctx, items[i].ProductID, items[i].Quantity, source)
			if err != nil {
				return err
			}
			cogs = cogs.Add(cost)
			items[i].SaleID = saleID
			id, err := u.tx.InsertSaleItem(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = id
		}

		entry, err := u.requireEntry(ctx, cmd.BusinessUnitID, ledger.TypeIncome, total,
			fmt.Sprintf("Sale #%d (%s)", saleID, cmd.PaymentMethod), source)
		if err != nil {
			return err
		}
		res = SaleResult{Sale: sale, Items: items, COGS: cogs, LedgerEntry: entry}

		if cmd.PaymentMethod == PaymentAccount {
			balance, err := u.parties.IncreaseReceivable(ctx, cmd.CustomerID, total)
			if err != nil {
				return err
			}
			res.NewBalance = &balance
			return nil
		}
		cashEntry, err := u.cash.Credit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      total,
			Type:        saleCashMovement[cmd.PaymentMethod],
			Description: fmt.Sprintf("Sale #%d", saleID),
			ActorID:     u.actorID,
			SaleID:      &saleID,
		})
		if err != nil {
			return err
		}
		res.CashEntry = &cashEntry
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}
	s.recordAudit(ctx, "SALE_PROCESS", "sale", res.Sale.ID, map[string]any{
		"total":          res.Sale.TotalAmount.String(),
		"payment_method": string(res.Sale.PaymentMethod),
	})
	return res, nil
}

// ReceiveCustomerPayment applies a payment to sales on account, recomputes the
// customer balance, credits the safe and appends an INCOME entry.
func (s *Service) ReceiveCustomerPayment(ctx context.Context, cmd CustomerPaymentCommand) (CustomerPaymentResult, error) {
	if cmd.CustomerID <= 0 || cmd.SafeID <= 0 {
		return CustomerPaymentResult{}, shared.Invalid("customer and safe required")
	}
	if len(cmd.Allocations) == 0 {
		return CustomerPaymentResult{}, shared.Invalid("at least one allocation required")
	}
	amount := decimal.Zero
	for _, a := range cmd.Allocations {
		if err := positiveMoney("allocation amount", a.Amount); err != nil {
			return CustomerPaymentResult{}, err
		}
		amount = amount.Add(shared.Money(a.Amount))
	}
	var res CustomerPaymentResult
	err := s.run(ctx, "receive_customer_payment", func(ctx context.Context, u *unit) error {
		safe, err := u.cash.Safe(ctx, cmd.SafeID)
		if err != nil {
			return err
		}
		payment := CustomerPayment{
			CustomerID: cmd.CustomerID,
			SafeID:     cmd.SafeID,
			Amount:     amount,
			Reference:  cmd.Reference,
			ActorID:    u.actorID,
			CreatedAt:  u.now,
		}
		paymentID, err := u.tx.InsertCustomerPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = paymentID

		applied, err := u.parties.ApplyPayment(ctx, cmd.CustomerID, cmd.Allocations)
		if err != nil {
			return err
		}
		for _, a := range applied.Allocations {
			if err := u.tx.InsertCustomerAllocation(ctx, paymentID, a.DocumentID, a.Applied); err != nil {
				return err
			}
		}

		cashEntry, err := u.cash.Credit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      amount,
			Type:        treasury.MovementAccountPayment,
			Description: fmt.Sprintf("Account payment #%d", paymentID),
			ActorID:     u.actorID,
			PaymentID:   &paymentID,
		})
		if err != nil {
			return err
		}
		entry, err := u.requireEntry(ctx, safe.BusinessUnitID, ledger.TypeIncome, amount,
			fmt.Sprintf("Customer %d account payment", cmd.CustomerID), ledger.Source(ledger.SourceCustomerPayment, paymentID))
		if err != nil {
			return err
		}
		res = CustomerPaymentResult{Payment: payment, Applied: applied, CashEntry: cashEntry, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return CustomerPaymentResult{}, err
	}
	s.recordAudit(ctx, "CUSTOMER_PAYMENT", "customer_payment", res.Payment.ID, map[string]any{
		"customer_id": cmd.CustomerID,
		"amount":      res.Payment.Amount.String(),
	})
	return res, nil
}
