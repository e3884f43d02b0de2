package treasury

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a cash ledger entry.
type MovementType string

const (
	MovementTransferIn     MovementType = "TRANSFER_IN"
	MovementTransferOut    MovementType = "TRANSFER_OUT"
	MovementSaleCash       MovementType = "SALE_CASH"
	MovementSaleCard       MovementType = "SALE_CARD"
	MovementSaleEFT        MovementType = "SALE_EFT"
	MovementPayout         MovementType = "PAYOUT"
	MovementCashOut        MovementType = "CASH_OUT"
	MovementAccountPayment MovementType = "ACCOUNT_PAYMENT"
)

// Valid reports whether the movement type is known.
func (m MovementType) Valid() bool {
	switch m {
	case MovementTransferIn, MovementTransferOut, MovementSaleCash, MovementSaleCard,
		MovementSaleEFT, MovementPayout, MovementCashOut, MovementAccountPayment:
		return true
	}
	return false
}

// Safe is a cash location: a physical till or safe, or a bank/card clearing account.
type Safe struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	IsPhysicalCash bool            `json:"is_physical_cash"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Entry is an immutable cash ledger row. Amount is signed: credits positive,
// debits negative.
type Entry struct {
	ID           int64           `json:"id"`
	SafeID       int64           `json:"safe_id"`
	Type         MovementType    `json:"movement_type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	ActorID      int64           `json:"actor_id"`
	SaleID       *int64          `json:"sale_id,omitempty"`
	PaymentID    *int64          `json:"payment_id,omitempty"`
	ExpenseRef   string          `json:"expense_reference,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Posting describes one credit or debit against a safe.
type Posting struct {
	SafeID      int64
	Amount      decimal.Decimal
	Type        MovementType
	Description string
	ActorID     int64
	SaleID      *int64
	PaymentID   *int64
	ExpenseRef  string
}

// TransferResult reports both legs of a safe to safe transfer.
type TransferResult struct {
	From    Safe
	To      Safe
	Amount  decimal.Decimal
	Entries []Entry
}

// EntryFilter filters cash ledger listings.
type EntryFilter struct {
	SafeID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// Discrepancy flags a safe whose balance no longer reconciles with its ledger.
type Discrepancy struct {
	SafeID         int64           `json:"safe_id"`
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	LedgerSum      decimal.Decimal `json:"ledger_sum"`
	Difference     decimal.Decimal `json:"difference"`
}
