package counterparty

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the transactional persistence used by Tracker. Lock methods must
// hold exclusive row locks until the surrounding transaction ends.
type Store interface {
	LockCustomer(ctx context.Context, id int64) (Customer, error)
	LockReceivables(ctx context.Context, customerID int64, saleIDs []int64) (map[int64]Receivable, error)
	SaveReceivable(ctx context.Context, r Receivable) error
	OutstandingReceivables(ctx context.Context, customerID int64) (decimal.Decimal, error)
	SaveCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error

	LockSupplier(ctx context.Context, id int64) (Supplier, error)
	LockPayables(ctx context.Context, supplierID int64, orderIDs []int64) (map[int64]Payable, error)
	SavePayable(ctx context.Context, p Payable) error
	OutstandingPayables(ctx context.Context, supplierID int64) (decimal.Decimal, error)
	SaveSupplierBalance(ctx context.Context, supplierID int64, balance decimal.Decimal) error
}

// Tracker maintains customer and supplier balances within one unit of work.
// Aggregate balances are always recomputed from outstanding documents, so the
// document rows must be written before the tracker is called. Document rows are
// locked before the counterparty row.
type Tracker struct {
	store Store
}

// NewTracker binds a tracker to a transactional store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// IncreaseReceivable records a sale on account of amount for the customer and
// returns the recomputed balance.
func (t *Tracker) IncreaseReceivable(ctx context.Context, customerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, shared.Invalid("receivable amount must be positive")
	}
	if _, err := t.store.LockCustomer(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	return t.RecomputeCustomer(ctx, customerID)
}

// RecomputeCustomer sets the customer balance to the sum of outstanding sale
// amounts. The customer row must already be locked.
func (t *Tracker) RecomputeCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	balance, err := t.store.OutstandingReceivables(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	balance = shared.Money(balance)
	if err := t.store.SaveCustomerBalance(ctx, customerID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// ApplyPayment allocates a customer payment across their outstanding sales.
func (t *Tracker) ApplyPayment(ctx context.Context, customerID int64, allocations []Allocation) (PaymentResult, error) {
	ids, err := allocationIDs(allocations)
	if err != nil {
		return PaymentResult{}, err
	}
	sales, err := t.store.LockReceivables(ctx, customerID, ids)
	if err != nil {
		return PaymentResult{}, err
	}
	if _, err := t.store.LockCustomer(ctx, customerID); err != nil {
		return PaymentResult{}, err
	}
	result := PaymentResult{Total: decimal.Zero}
	for _, alloc := range allocations {
		sale, ok := sales[alloc.DocumentID]
		if !ok {
			return PaymentResult{}, shared.NotFound("sale", alloc.DocumentID)
		}
		amount := shared.Money(alloc.Amount)
		if amount.GreaterThan(sale.Outstanding()) {
			return PaymentResult{}, shared.Invalid("allocation %s exceeds outstanding %s on sale %d", amount.StringFixed(2), sale.Outstanding().StringFixed(2), sale.SaleID)
		}
		sale.Paid = sale.Paid.Add(amount)
		trigger := TriggerPartPay
		if sale.Paid.GreaterThanOrEqual(sale.Total) {
			trigger = TriggerSettle
		}
		next, err := SaleStatusMachine.Fire(sale.Status, trigger)
		if err != nil {
			return PaymentResult{}, err
		}
		sale.Status = next
		if err := t.store.SaveReceivable(ctx, sale); err != nil {
			return PaymentResult{}, err
		}
		sales[sale.SaleID] = sale
		result.Total = result.Total.Add(amount)
		result.Allocations = append(result.Allocations, AllocationResult{DocumentID: sale.SaleID, Applied: amount, Paid: sale.Paid, Status: sale.Status})
	}
	balance, err := t.RecomputeCustomer(ctx, customerID)
	if err != nil {
		return PaymentResult{}, err
	}
	result.NewBalance = balance
	return result, nil
}

// IncreasePayable records goods received on credit from a supplier and returns
// the recomputed payable.
func (t *Tracker) IncreasePayable(ctx context.Context, supplierID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, shared.Invalid("payable amount must be >= 0")
	}
	if _, err := t.store.LockSupplier(ctx, supplierID); err != nil {
		return decimal.Zero, err
	}
	return t.RecomputeSupplier(ctx, supplierID)
}

// RecomputeSupplier sets the supplier balance to the sum of outstanding order
// amounts. The supplier row must already be locked.
func (t *Tracker) RecomputeSupplier(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	balance, err := t.store.OutstandingPayables(ctx, supplierID)
	if err != nil {
		return decimal.Zero, err
	}
	balance = shared.Money(balance)
	if err := t.store.SaveSupplierBalance(ctx, supplierID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// ApplySupplierPayment allocates a payment to a supplier across purchase orders.
func (t *Tracker) ApplySupplierPayment(ctx context.Context, supplierID int64, allocations []Allocation) (PaymentResult, error) {
	ids, err := allocationIDs(allocations)
	if err != nil {
		return PaymentResult{}, err
	}
	orders, err := t.store.LockPayables(ctx, supplierID, ids)
	if err != nil {
		return PaymentResult{}, err
	}
	if _, err := t.store.LockSupplier(ctx, supplierID); err != nil {
		return PaymentResult{}, err
	}
	result := PaymentResult{Total: decimal.Zero}
	for _, alloc := range allocations {
		order, ok := orders[alloc.DocumentID]
		if !ok {
			return PaymentResult{}, shared.NotFound("purchase order", alloc.DocumentID)
		}
		amount := shared.Money(alloc.Amount)
		if amount.GreaterThan(order.Outstanding()) {
			return PaymentResult{}, shared.Invalid("allocation %s exceeds outstanding %s on purchase order %d", amount.StringFixed(2), order.Outstanding().StringFixed(2), order.OrderID)
		}
		order.AmountPaid = order.AmountPaid.Add(amount)
		if err := t.store.SavePayable(ctx, order); err != nil {
			return PaymentResult{}, err
		}
		orders[order.OrderID] = order
		result.Total = result.Total.Add(amount)
		result.Allocations = append(result.Allocations, AllocationResult{DocumentID: order.OrderID, Applied: amount, Paid: order.AmountPaid})
	}
	balance, err := t.RecomputeSupplier(ctx, supplierID)
	if err != nil {
		return PaymentResult{}, err
	}
	result.NewBalance = balance
	return result, nil
}

func allocationIDs(allocations []Allocation) ([]int64, error) {
	if len(allocations) == 0 {
		return nil, shared.Invalid("at least one allocation required")
	}
	seen := make(map[int64]struct{}, len(allocations))
	ids := make([]int64, 0, len(allocations))
	for _, a := range allocations {
		if a.DocumentID <= 0 {
			return nil, shared.Invalid("allocation document id required")
		}
		if !a.Amount.IsPositive() {
			return nil, shared.Invalid("allocation amount must be positive")
		}
		if _, dup := seen[a.DocumentID]; dup {
			return nil, shared.Invalid("document %d allocated twice", a.DocumentID)
		}
		seen[a.DocumentID] = struct{}{}
		ids = append(ids, a.DocumentID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
