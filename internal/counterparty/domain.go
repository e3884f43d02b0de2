package counterparty

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/workflow"
)

// PaymentStatus captures the settlement state of a sale.
type PaymentStatus string

const (
	StatusPaid          PaymentStatus = "PAID"
	StatusOnAccount     PaymentStatus = "ON_ACCOUNT"
	StatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
)

const (
	// TriggerPartPay applies an allocation that leaves an amount outstanding.
	TriggerPartPay workflow.Trigger = "part_pay"
	// TriggerSettle applies an allocation that clears the sale.
	TriggerSettle workflow.Trigger = "settle"
)

// SaleStatusMachine governs sale payment status changes caused by allocations.
var SaleStatusMachine = workflow.New[PaymentStatus]("sale payment").
	Permit(StatusOnAccount, TriggerPartPay, StatusPartiallyPaid).
	Permit(StatusOnAccount, TriggerSettle, StatusPaid).
	Permit(StatusPartiallyPaid, TriggerPartPay, StatusPartiallyPaid).
	Permit(StatusPartiallyPaid, TriggerSettle, StatusPaid)

// Customer owes the business; AccountBalance is the receivable.
type Customer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	AccountBalance decimal.Decimal `json:"account_balance"`
}

// Supplier is owed by the business; AccountBalance is the payable.
type Supplier struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	AccountBalance decimal.Decimal `json:"account_balance"`
}

// Receivable is the settlement view of a sale.
type Receivable struct {
	SaleID     int64           `json:"sale_id"`
	CustomerID int64           `json:"customer_id"`
	Total      decimal.Decimal `json:"total_amount"`
	Paid       decimal.Decimal `json:"amount_paid"`
	Status     PaymentStatus   `json:"payment_status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Outstanding is what remains to be paid.
func (r Receivable) Outstanding() decimal.Decimal {
	return r.Total.Sub(r.Paid)
}

// Payable is the settlement view of a purchase order.
type Payable struct {
	OrderID    int64           `json:"purchase_order_id"`
	SupplierID int64           `json:"supplier_id"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Outstanding is what remains to be paid.
func (p Payable) Outstanding() decimal.Decimal {
	return p.AmountDue.Sub(p.AmountPaid)
}

// Allocation applies part of a payment to one document.
type Allocation struct {
	DocumentID int64           `json:"document_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

// AllocationResult reports the document state after an allocation.
type AllocationResult struct {
	DocumentID int64           `json:"document_id"`
	Applied    decimal.Decimal `json:"applied"`
	Paid       decimal.Decimal `json:"amount_paid"`
	Status     PaymentStatus   `json:"payment_status,omitempty"`
}

// PaymentResult summarises an applied payment.
type PaymentResult struct {
	Allocations []AllocationResult `json:"allocations"`
	Total       decimal.Decimal    `json:"total"`
	NewBalance  decimal.Decimal    `json:"new_balance"`
}

// AgingBucket summarises outstanding receivables by age.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"bucket_30"`
	Bucket60  decimal.Decimal `json:"bucket_60"`
	Bucket90  decimal.Decimal `json:"bucket_90"`
	Bucket120 decimal.Decimal `json:"bucket_120"`
}

// Total sums every bucket.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}
