// Package operations is the unit-of-work coordinator: every business event is
// applied as one transaction spanning inventory, treasury, counterparties and
// the master ledger.
package operations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/workflow"
)

// BusinessUnit is one of the businesses sharing the back office.
type BusinessUnit struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	BusinessType string `json:"business_type"`
}

// PaymentMethod is how a sale was settled at the till.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "CASH"
	PaymentCard    PaymentMethod = "CARD"
	PaymentEFT     PaymentMethod = "EFT"
	PaymentAccount PaymentMethod = "ACCOUNT"
)

// Sale is a point-of-sale transaction.
type Sale struct {
	ID             int64                      `json:"id"`
	BusinessUnitID int64                      `json:"business_unit_id"`
	CustomerID     *int64                     `json:"customer_id,omitempty"`
	SafeID         *int64                     `json:"safe_id,omitempty"`
	PaymentMethod  PaymentMethod              `json:"payment_method"`
	PaymentStatus  counterparty.PaymentStatus `json:"payment_status"`
	TotalAmount    decimal.Decimal            `json:"total_amount"`
	AmountPaid     decimal.Decimal            `json:"amount_paid"`
	ActorID        int64                      `json:"actor_id,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// SaleItem freezes the WAC at the moment of sale in CostAtSale.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale"`
	CostAtSale  decimal.Decimal `json:"cost_at_sale"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// POStatus is the receiving state of a purchase order.
type POStatus string

const (
	POStatusOrdered           POStatus = "ORDERED"
	POStatusPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POStatusReceived          POStatus = "RECEIVED"
	POStatusCancelled         POStatus = "CANCELLED"
)

const (
	TriggerReceivePart workflow.Trigger = "receive_part"
	TriggerReceiveAll  workflow.Trigger = "receive_all"
	TriggerCancel      workflow.Trigger = "cancel"
)

// PurchaseOrderMachine governs purchase order status changes.
var PurchaseOrderMachine = workflow.New[POStatus]("purchase order").
	Permit(POStatusOrdered, TriggerReceivePart, POStatusPartiallyReceived).
	Permit(POStatusOrdered, TriggerReceiveAll, POStatusReceived).
	Permit(POStatusPartiallyReceived, TriggerReceivePart, POStatusPartiallyReceived).
	Permit(POStatusPartiallyReceived, TriggerReceiveAll, POStatusReceived).
	Permit(POStatusOrdered, TriggerCancel, POStatusCancelled)

// PurchaseOrder is an order placed with a supplier. AmountDue accumulates the
// tax inclusive value of each receipt.
type PurchaseOrder struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	SupplierID     int64           `json:"supplier_id"`
	Status         POStatus        `json:"status"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// POLine snapshots the tax exclusive unit cost at order time.
type POLine struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	CostAtOrder      decimal.Decimal `json:"cost_at_order"`
}

// Remaining is the quantity still to be received.
func (l POLine) Remaining() decimal.Decimal {
	return l.QuantityOrdered.Sub(l.QuantityReceived)
}

// Receipt is one receiving event against a purchase order.
type Receipt struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	ExclusiveValue  decimal.Decimal `json:"exclusive_value"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	InclusiveValue  decimal.Decimal `json:"inclusive_value"`
	ActorID         int64           `json:"actor_id,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// ReceiptLine records the quantity received on one order line.
type ReceiptLine struct {
	ReceiptID    int64           `json:"receipt_id"`
	POLineID     int64           `json:"po_line_id"`
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	NewCostPrice decimal.Decimal `json:"new_cost_price"`
}

// CashTransfer is a movement of cash between two safes.
type CashTransfer struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	FromSafeID     int64           `json:"from_safe_id"`
	ToSafeID       int64           `json:"to_safe_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScrapPurchase is a payout to a seller for scrap material.
type ScrapPurchase struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	SafeID         int64           `json:"safe_id"`
	SellerName     string          `json:"seller_name,omitempty"`
	TotalPayout    decimal.Decimal `json:"total_payout"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScrapPurchaseLine values a weighed line at the WAC read once under lock.
type ScrapPurchaseLine struct {
	ScrapPurchaseID int64           `json:"scrap_purchase_id"`
	ProductID       int64           `json:"product_id"`
	Weight          decimal.Decimal `json:"weight"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	LineValue       decimal.Decimal `json:"line_value"`
}

// ScrapSale is bulk scrap sold to a buyer.
type ScrapSale struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	SafeID         *int64          `json:"safe_id,omitempty"`
	BuyerName      string          `json:"buyer_name,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScrapSaleLine records one sold line with the WAC at the moment of sale.
type ScrapSaleLine struct {
	ScrapSaleID int64           `json:"scrap_sale_id"`
	ProductID   int64           `json:"product_id"`
	Weight      decimal.Decimal `json:"weight"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineValue   decimal.Decimal `json:"line_value"`
	CostAtSale  decimal.Decimal `json:"cost_at_sale"`
}

// MixBatch is one production run of a finished good from its recipe.
type MixBatch struct {
	ID                int64           `json:"id"`
	BusinessUnitID    int64           `json:"business_unit_id"`
	FinishedProductID int64           `json:"finished_product_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	AbsorbedCost      decimal.Decimal `json:"absorbed_cost"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	NewCostPrice      decimal.Decimal `json:"new_cost_price"`
	ActorID           int64           `json:"actor_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// CustomerPayment is money received against sales on account.
type CustomerPayment struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	SafeID     int64           `json:"safe_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	ActorID    int64           `json:"actor_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SupplierPayment is money paid against purchase orders.
type SupplierPayment struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	SafeID     int64           `json:"safe_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	ActorID    int64           `json:"actor_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StockTake is a physical count of a business unit's stock.
type StockTake struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	Notes          string          `json:"notes,omitempty"`
	TotalVariance  decimal.Decimal `json:"total_variance"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// StockTakeLine is one counted product.
type StockTakeLine struct {
	StockTakeID   int64           `json:"stock_take_id"`
	ProductID     int64           `json:"product_id"`
	SystemQty     decimal.Decimal `json:"system_qty"`
	CountedQty    decimal.Decimal `json:"counted_qty"`
	VarianceQty   decimal.Decimal `json:"variance_qty"`
	CostAtTime    decimal.Decimal `json:"cost_at_time"`
	VarianceValue decimal.Decimal `json:"variance_value"`
}

// Employee is paid hourly through payroll runs.
type Employee struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	Name           string          `json:"name"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
	IsActive       bool            `json:"is_active"`
}

// StaffLoan is an advance repaid through payroll deductions.
type StaffLoan struct {
	ID           int64           `json:"id"`
	EmployeeID   int64           `json:"employee_id"`
	Principal    decimal.Decimal `json:"principal"`
	AmountRepaid decimal.Decimal `json:"amount_repaid"`
	IsActive     bool            `json:"is_active"`
	ActorID      int64           `json:"actor_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Remaining is the unpaid principal.
func (l StaffLoan) Remaining() decimal.Decimal {
	return l.Principal.Sub(l.AmountRepaid)
}

// PayrollRun groups the payslips of one pay period.
type PayrollRun struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	SafeID         *int64          `json:"safe_id,omitempty"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payslip is one employee's pay within a run.
type Payslip struct {
	ID            int64           `json:"id"`
	PayrollRunID  int64           `json:"payroll_run_id"`
	EmployeeID    int64           `json:"employee_id"`
	Hours         decimal.Decimal `json:"hours"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	Gross         decimal.Decimal `json:"gross"`
	LoanDeduction decimal.Decimal `json:"loan_deduction"`
	Net           decimal.Decimal `json:"net"`
	LoanID        *int64          `json:"loan_id,omitempty"`
}

// Expense is a petty cash expense paid from a safe.
type Expense struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	SafeID         int64           `json:"safe_id"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	Description    string          `json:"description,omitempty"`
	ActorID        int64           `json:"actor_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// InternalTransfer moves stock from a providing unit to a requesting unit.
type InternalTransfer struct {
	ID               int64           `json:"id"`
	RequestingUnitID int64           `json:"requesting_unit_id"`
	ProvidingUnitID  int64           `json:"providing_unit_id"`
	TotalValue       decimal.Decimal `json:"total_value"`
	Financial        bool            `json:"financial"`
	Notes            string          `json:"notes,omitempty"`
	ActorID          int64           `json:"actor_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// InternalTransferLine is one product moved at its provider WAC.
type InternalTransferLine struct {
	InternalTransferID   int64           `json:"internal_transfer_id"`
	ProductID            int64           `json:"product_id"`
	DestinationProductID *int64          `json:"destination_product_id,omitempty"`
	Quantity             decimal.Decimal `json:"quantity"`
	UnitCost             decimal.Decimal `json:"unit_cost"`
	Value                decimal.Decimal `json:"value"`
}
