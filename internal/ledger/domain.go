// Package ledger is the master transaction log: an append-only sequence of
// typed entries plus the read-side projections computed from it.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a master ledger entry. Amounts are positive magnitudes
// and the type carries the direction.
type EntryType string

const (
	TypeIncome            EntryType = "INCOME"
	TypeExpense           EntryType = "EXPENSE"
	TypeTransfer          EntryType = "TRANSFER"
	TypeInternalIncome    EntryType = "INTERNAL_INCOME"
	TypeInternalExpense   EntryType = "INTERNAL_EXPENSE"
	TypeCOGSAdjustment    EntryType = "COGS_ADJUSTMENT"
	TypeStockGain         EntryType = "STOCK_GAIN"
	TypeInventoryAcquired EntryType = "INVENTORY_ACQUIRED"
	TypeVATClaimable      EntryType = "VAT_CLAIMABLE"
)

// Valid reports whether the entry type is known.
func (t EntryType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer, TypeInternalIncome, TypeInternalExpense,
		TypeCOGSAdjustment, TypeStockGain, TypeInventoryAcquired, TypeVATClaimable:
		return true
	}
	return false
}

// Source kinds used in source references.
const (
	SourceSale             = "sale"
	SourcePurchaseReceipt  = "purchase_receipt"
	SourceCashTransfer     = "cash_transfer"
	SourceScrapPurchase    = "scrap_purchase"
	SourceScrapSale        = "scrap_sale"
	SourceMixBatch         = "mix_batch"
	SourceCustomerPayment  = "customer_payment"
	SourceSupplierPayment  = "supplier_payment"
	SourceStockTake        = "stock_take"
	SourcePayslip          = "payslip"
	SourceInternalTransfer = "internal_transfer"
	SourceExpense          = "expense"
	SourceStaffLoan        = "staff_loan"
)

// Source formats a source reference pointing back at the originating entity.
func Source(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// SourceKind returns the kind part of a source reference.
func SourceKind(ref string) string {
	kind, _, _ := strings.Cut(ref, ":")
	return kind
}

// Entry is one immutable row of the master ledger.
type Entry struct {
	ID              int64           `json:"id"`
	BusinessUnitID  int64           `json:"business_unit_id"`
	Type            EntryType       `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	SourceReference string          `json:"source_reference"`
	ActorID         int64           `json:"actor_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Filter selects ledger entries.
type Filter struct {
	BusinessUnitID int64
	From           time.Time
	To             time.Time
	Types          []EntryType
	Limit          int
}

// TypeTotal is a summed group of entries of one type and source kind.
type TypeTotal struct {
	Type       EntryType
	SourceKind string
	Amount     decimal.Decimal
}
