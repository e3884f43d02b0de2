package operations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// SaleLine is one cart line. A zero UnitPrice sells at the product's selling price.
type SaleLine struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleCommand processes a point-of-sale transaction.
type SaleCommand struct {
	BusinessUnitID int64         `json:"business_unit_id" validate:"required,gt=0"`
	CustomerID     int64         `json:"customer_id" validate:"gte=0"`
	SafeID         int64         `json:"safe_id" validate:"gte=0"`
	PaymentMethod  PaymentMethod `json:"payment_method" validate:"required,oneof=CASH CARD EFT ACCOUNT"`
	Lines          []SaleLine    `json:"lines" validate:"required,min=1,dive"`
}

// SaleResult is the materialised sale.
type SaleResult struct {
	Sale        Sale             `json:"sale"`
	Items       []SaleItem       `json:"items"`
	COGS        decimal.Decimal  `json:"cogs"`
	CashEntry   *treasury.Entry  `json:"cash_entry,omitempty"`
	NewBalance  *decimal.Decimal `json:"customer_balance,omitempty"`
	LedgerEntry ledger.Entry     `json:"ledger_entry"`
}

// OrderLine requests a quantity of a product. A nil UnitCost snapshots the current WAC.
type OrderLine struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

// PurchaseOrderCommand places an order with a supplier.
type PurchaseOrderCommand struct {
	BusinessUnitID int64       `json:"business_unit_id" validate:"required,gt=0"`
	SupplierID     int64       `json:"supplier_id" validate:"required,gt=0"`
	Lines          []OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// PurchaseOrderResult is an order with its lines.
type PurchaseOrderResult struct {
	Order PurchaseOrder `json:"purchase_order"`
	Lines []POLine      `json:"lines"`
}

// ReceiveLine receives a quantity against an order line.
type ReceiveLine struct {
	POLineID int64           `json:"po_line_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReceiveCommand records goods received against a purchase order.
type ReceiveCommand struct {
	PurchaseOrderID int64         `json:"purchase_order_id" validate:"required,gt=0"`
	Lines           []ReceiveLine `json:"lines" validate:"required,min=1,dive"`
}

// ReceiveResult reports the receipt and its financial effect.
type ReceiveResult struct {
	Receipt         Receipt         `json:"receipt"`
	Lines           []ReceiptLine   `json:"lines"`
	Status          POStatus        `json:"status"`
	SupplierBalance decimal.Decimal `json:"supplier_balance"`
	LedgerEntries   []ledger.Entry  `json:"ledger_entries"`
}

// CashTransferCommand moves cash between safes.
type CashTransferCommand struct {
	FromSafeID  int64           `json:"from_safe_id" validate:"required,gt=0"`
	ToSafeID    int64           `json:"to_safe_id" validate:"required,gt=0,nefield=FromSafeID"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// CashTransferResult reports both safes after the transfer.
type CashTransferResult struct {
	Transfer    CashTransfer     `json:"transfer"`
	From        treasury.Safe    `json:"from"`
	To          treasury.Safe    `json:"to"`
	CashEntries []treasury.Entry `json:"cash_entries"`
	LedgerEntry ledger.Entry     `json:"ledger_entry"`
}

// ScrapBuyLine is a weighed scrap line bought at the current WAC.
type ScrapBuyLine struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Weight    decimal.Decimal `json:"weight"`
}

// ScrapBuyCommand pays a seller out of a safe for scrap.
type ScrapBuyCommand struct {
	BusinessUnitID int64          `json:"business_unit_id" validate:"required,gt=0"`
	SafeID         int64          `json:"safe_id" validate:"required,gt=0"`
	SellerName     string         `json:"seller_name" validate:"max=120"`
	Lines          []ScrapBuyLine `json:"lines" validate:"required,min=1,dive"`
}

// ScrapBuyResult is the recorded purchase.
type ScrapBuyResult struct {
	Purchase    ScrapPurchase       `json:"purchase"`
	Lines       []ScrapPurchaseLine `json:"lines"`
	CashEntry   treasury.Entry      `json:"cash_entry"`
	LedgerEntry ledger.Entry        `json:"ledger_entry"`
}

// ScrapSellLine is a weighed line sold at a negotiated price.
type ScrapSellLine struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Weight    decimal.Decimal `json:"weight"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ScrapSellCommand sells scrap stock. SafeID is optional.
type ScrapSellCommand struct {
	BusinessUnitID int64           `json:"business_unit_id" validate:"required,gt=0"`
	SafeID         int64           `json:"safe_id" validate:"gte=0"`
	BuyerName      string          `json:"buyer_name" validate:"max=120"`
	Lines          []ScrapSellLine `json:"lines" validate:"required,min=1,dive"`
}

// ScrapSellResult is the recorded sale.
type ScrapSellResult struct {
	Sale        ScrapSale       `json:"sale"`
	Lines       []ScrapSaleLine `json:"lines"`
	CashEntry   *treasury.Entry `json:"cash_entry,omitempty"`
	LedgerEntry ledger.Entry    `json:"ledger_entry"`
}

// MixCommand produces a finished good from its recipe.
type MixCommand struct {
	BusinessUnitID    int64           `json:"business_unit_id" validate:"required,gt=0"`
	FinishedProductID int64           `json:"finished_product_id" validate:"required,gt=0"`
	Quantity          decimal.Decimal `json:"quantity"`
}

// MixResult is the recorded batch.
type MixResult struct {
	Batch       MixBatch      `json:"batch"`
	LedgerEntry *ledger.Entry `json:"ledger_entry,omitempty"`
}

// CustomerPaymentCommand applies money received to sales on account.
type CustomerPaymentCommand struct {
	CustomerID  int64                     `json:"customer_id" validate:"required,gt=0"`
	SafeID      int64                     `json:"safe_id" validate:"required,gt=0"`
	Reference   string                    `json:"reference" validate:"max=120"`
	Allocations []counterparty.Allocation `json:"allocations" validate:"required,min=1,dive"`
}

// CustomerPaymentResult reports the payment and the customer's new balance.
type CustomerPaymentResult struct {
	Payment     CustomerPayment            `json:"payment"`
	Applied     counterparty.PaymentResult `json:"applied"`
	CashEntry   treasury.Entry             `json:"cash_entry"`
	LedgerEntry ledger.Entry               `json:"ledger_entry"`
}

// SupplierPaymentCommand pays a supplier against purchase orders.
type SupplierPaymentCommand struct {
	SupplierID  int64                     `json:"supplier_id" validate:"required,gt=0"`
	SafeID      int64                     `json:"safe_id" validate:"required,gt=0"`
	Reference   string                    `json:"reference" validate:"max=120"`
	Allocations []counterparty.Allocation `json:"allocations" validate:"required,min=1,dive"`
}

// SupplierPaymentResult reports the payment and the supplier's new balance.
type SupplierPaymentResult struct {
	Payment     SupplierPayment            `json:"payment"`
	Applied     counterparty.PaymentResult `json:"applied"`
	CashEntry   treasury.Entry             `json:"cash_entry"`
	LedgerEntry ledger.Entry               `json:"ledger_entry"`
}

// CountLine is a counted quantity for one product.
type CountLine struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	CountedQty decimal.Decimal `json:"counted_qty"`
}

// StockTakeCommand records a physical count.
type StockTakeCommand struct {
	BusinessUnitID int64       `json:"business_unit_id" validate:"required,gt=0"`
	Notes          string      `json:"notes" validate:"max=500"`
	Lines          []CountLine `json:"lines" validate:"required,min=1,dive"`
}

// StockTakeResult is the recorded count and its single ledger entry, if any.
type StockTakeResult struct {
	StockTake   StockTake       `json:"stock_take"`
	Lines       []StockTakeLine `json:"lines"`
	LedgerEntry *ledger.Entry   `json:"ledger_entry,omitempty"`
}

// PayrollLine is one employee's hours and requested loan deduction.
type PayrollLine struct {
	EmployeeID    int64           `json:"employee_id" validate:"required,gt=0"`
	Hours         decimal.Decimal `json:"hours"`
	LoanDeduction decimal.Decimal `json:"loan_deduction"`
}

// PayrollCommand runs payroll for a period. SafeID is optional.
type PayrollCommand struct {
	BusinessUnitID int64         `json:"business_unit_id" validate:"required,gt=0"`
	PeriodStart    time.Time     `json:"period_start" validate:"required"`
	PeriodEnd      time.Time     `json:"period_end" validate:"required,gtefield=PeriodStart"`
	SafeID         int64         `json:"safe_id" validate:"gte=0"`
	Lines          []PayrollLine `json:"lines" validate:"required,min=1,dive"`
}

// PayrollResult is the recorded run.
type PayrollResult struct {
	Run           PayrollRun      `json:"run"`
	Payslips      []Payslip       `json:"payslips"`
	CashEntry     *treasury.Entry `json:"cash_entry,omitempty"`
	LedgerEntries []ledger.Entry  `json:"ledger_entries"`
}

// InternalLine moves a quantity of a providing unit's product. When
// DestinationProductID is set the stock is received there at the moved cost.
type InternalLine struct {
	ProductID            int64           `json:"product_id" validate:"required,gt=0"`
	Quantity             decimal.Decimal `json:"quantity"`
	DestinationProductID int64           `json:"destination_product_id" validate:"gte=0"`
}

// InternalTransferCommand moves stock between business units.
type InternalTransferCommand struct {
	RequestingUnitID int64          `json:"requesting_unit_id" validate:"required,gt=0"`
	ProvidingUnitID  int64          `json:"providing_unit_id" validate:"required,gt=0,nefield=RequestingUnitID"`
	Notes            string         `json:"notes" validate:"max=500"`
	Lines            []InternalLine `json:"lines" validate:"required,min=1,dive"`
}

// InternalTransferResult is the recorded transfer.
type InternalTransferResult struct {
	Transfer      InternalTransfer       `json:"transfer"`
	Lines         []InternalTransferLine `json:"lines"`
	LedgerEntries []ledger.Entry         `json:"ledger_entries"`
}

// ExpenseCommand pays a petty cash expense.
type ExpenseCommand struct {
	BusinessUnitID int64           `json:"business_unit_id" validate:"required,gt=0"`
	SafeID         int64           `json:"safe_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category" validate:"required,max=60"`
	Description    string          `json:"description" validate:"max=255"`
}

// ExpenseResult is the recorded expense.
type ExpenseResult struct {
	Expense     Expense        `json:"expense"`
	CashEntry   treasury.Entry `json:"cash_entry"`
	LedgerEntry ledger.Entry   `json:"ledger_entry"`
}

// StaffLoanCommand advances cash to an employee.
type StaffLoanCommand struct {
	EmployeeID int64           `json:"employee_id" validate:"required,gt=0"`
	SafeID     int64           `json:"safe_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

// StaffLoanResult is the issued loan.
type StaffLoanResult struct {
	Loan        StaffLoan      `json:"loan"`
	CashEntry   treasury.Entry `json:"cash_entry"`
	LedgerEntry ledger.Entry   `json:"ledger_entry"`
}
