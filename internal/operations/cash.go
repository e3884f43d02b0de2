package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// TransferCash moves cash between two safes and records one TRANSFER entry
// against the source safe's business unit.
func (s *Service) TransferCash(ctx context.Context, cmd CashTransferCommand) (CashTransferResult, error) {
	if cmd.FromSafeID <= 0 || cmd.ToSafeID <= 0 {
		return CashTransferResult{}, shared.Invalid("source and destination safe required")
	}
	if err := positiveMoney("transfer amount", cmd.Amount); err != nil {
		return CashTransferResult{}, err
	}
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		description = fmt.Sprintf("Transfer from safe %d to safe %d", cmd.FromSafeID, cmd.ToSafeID)
	}
	var res CashTransferResult
	err := s.run(ctx, "transfer_cash", func(ctx context.Context, u *unit) error {
		moved, err := u.cash.Transfer(ctx, cmd.FromSafeID, cmd.ToSafeID, cmd.Amount, description, u.actorID)
		if err != nil {
			return err
		}
		transfer := CashTransfer{
			BusinessUnitID: moved.From.BusinessUnitID,
			FromSafeID:     cmd.FromSafeID,
			ToSafeID:       cmd.ToSafeID,
			Amount:         moved.Amount,
			Description:    description,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		id, err := u.tx.InsertCashTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		entry, err := u.requireEntry(ctx, transfer.BusinessUnitID, ledger.TypeTransfer, moved.Amount,
			description, ledger.Source(ledger.SourceCashTransfer, id))
		if err != nil {
			return err
		}
		res = CashTransferResult{Transfer: transfer, From: moved.From, To: moved.To, CashEntries: moved.Entries, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return CashTransferResult{}, err
	}
	s.recordAudit(ctx, "CASH_TRANSFER", "cash_transfer", res.Transfer.ID, map[string]any{
		"from_safe_id": cmd.FromSafeID,
		"to_safe_id":   cmd.ToSafeID,
		"amount":       res.Transfer.Amount.String(),
	})
	return res, nil
}

// RecordExpense pays a petty cash expense out of a safe and books it as EXPENSE.
func (s *Service) RecordExpense(ctx context.Context, cmd ExpenseCommand) (ExpenseResult, error) {
	if cmd.BusinessUnitID <= 0 || cmd.SafeID <= 0 {
		return ExpenseResult{}, shared.Invalid("business unit and safe required")
	}
	if err := positiveMoney("expense amount", cmd.Amount); err != nil {
		return ExpenseResult{}, err
	}
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		return ExpenseResult{}, shared.Invalid("expense category required")
	}
	var res ExpenseResult
	err := s.run(ctx, "record_expense", func(ctx context.Context, u *unit) error {
		if err := u.cash.Lock(ctx, cmd.SafeID); err != nil {
			return err
		}
		expense := Expense{
			BusinessUnitID: cmd.BusinessUnitID,
			SafeID:         cmd.SafeID,
			Amount:         shared.Money(cmd.Amount),
			Category:       category,
			Description:    strings.TrimSpace(cmd.Description),
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		id, err := u.tx.InsertExpense(ctx, expense)
		if err != nil {
			return err
		}
		expense.ID = id
		source := ledger.Source(ledger.SourceExpense, id)
		description := category
		if expense.Description != "" {
			description = category + ": " + expense.Description
		}
		cashEntry, err := u.cash.Debit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      expense.Amount,
			Type:        treasury.MovementCashOut,
			Description: description,
			ActorID:     u.actorID,
			ExpenseRef:  source,
		})
		if err != nil {
			return err
		}
		entry, err := u.requireEntry(ctx, cmd.BusinessUnitID, ledger.TypeExpense, expense.Amount, description, source)
		if err != nil {
			return err
		}
		res = ExpenseResult{Expense: expense, CashEntry: cashEntry, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return ExpenseResult{}, err
	}
	s.recordAudit(ctx, "EXPENSE_RECORD", "expense", res.Expense.ID, map[string]any{
		"category": res.Expense.Category,
		"amount":   res.Expense.Amount.String(),
	})
	return res, nil
}
