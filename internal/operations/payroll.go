package operations

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// RunPayroll pays every listed employee for their hours. An active staff loan
// is repaid by min(remaining, requested, gross) and deactivated once cleared.
// Each payslip books its gross pay as one EXPENSE entry; the loan deduction
// settles cash already advanced. When a safe is given the net run total is
// paid out of it.
func (s *Service) RunPayroll(ctx context.Context, cmd PayrollCommand) (PayrollResult, error) {
	if cmd.BusinessUnitID <= 0 {
		return PayrollResult{}, shared.Invalid("business unit required")
	}
	if cmd.PeriodStart.IsZero() || cmd.PeriodEnd.Before(cmd.PeriodStart) {
		return PayrollResult{}, shared.Invalid("payroll period is invalid")
	}
	if len(cmd.Lines) == 0 {
		return PayrollResult{}, shared.Invalid("payroll requires at least one employee")
	}
	seen := make(map[int64]struct{}, len(cmd.Lines))
	ids := make([]int64, 0, len(cmd.Lines))
	for i, line := range cmd.Lines {
		if line.EmployeeID <= 0 {
			return PayrollResult{}, shared.Invalid("line %d: employee required", i+1)
		}
		if line.Hours.IsNegative() || line.LoanDeduction.IsNegative() {
			return PayrollResult{}, shared.Invalid("line %d: hours and deduction must be >= 0", i+1)
		}
		if _, dup := seen[line.EmployeeID]; dup {
			return PayrollResult{}, shared.Invalid("employee %d listed twice", line.EmployeeID)
		}
		seen[line.EmployeeID] = struct{}{}
		ids = append(ids, line.EmployeeID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var res PayrollResult
	err := s.run(ctx, "run_payroll", func(ctx context.Context, u *unit) error {
		employees, err := u.tx.LockEmployees(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			e, ok := employees[id]
			if !ok {
				return shared.NotFound("employee", id)
			}
			if e.BusinessUnitID != cmd.BusinessUnitID {
				return shared.Invalid("employee %d does not belong to business unit %d", id, cmd.BusinessUnitID)
			}
			if !e.IsActive {
				return shared.Invalid("employee %d is not active", id)
			}
		}
		loans, err := u.tx.LockActiveLoans(ctx, ids)
		if err != nil {
			return err
		}
		if cmd.SafeID > 0 {
			if err := u.cash.Lock(ctx, cmd.SafeID); err != nil {
				return err
			}
		}

		run := PayrollRun{
			BusinessUnitID: cmd.BusinessUnitID,
			PeriodStart:    cmd.PeriodStart,
			PeriodEnd:      cmd.PeriodEnd,
			SafeID:         optionalID(cmd.SafeID),
			TotalPaid:      decimal.Zero,
			ActorID:        u.actorID,
			CreatedAt:      u.now,
		}
		runID, err := u.tx.InsertPayrollRun(ctx, run)
		if err != nil {
			return err
		}
		run.ID = runID
		period := fmt.Sprintf("%s to %s", cmd.PeriodStart.Format("2006-01-02"), cmd.PeriodEnd.Format("2006-01-02"))

		for _, line := range cmd.Lines {
			e := employees[line.EmployeeID]
			slip := Payslip{
				PayrollRunID:  runID,
				EmployeeID:    e.ID,
				Hours:         line.Hours,
				HourlyRate:    e.HourlyRate,
				Gross:         shared.Extend(line.Hours, e.HourlyRate),
				LoanDeduction: decimal.Zero,
			}
			if loan, ok := loans[e.ID]; ok {
				deduction := decimal.Min(loan.Remaining(), shared.Money(line.LoanDeduction), slip.Gross)
				if deduction.IsPositive() {
					loan.AmountRepaid = loan.AmountRepaid.Add(deduction)
					loan.IsActive = loan.Remaining().IsPositive()
					if err := u.tx.UpdateStaffLoan(ctx, loan); err != nil {
						return err
					}
					loans[e.ID] = loan
					slip.LoanDeduction = deduction
					slip.LoanID = &loan.ID
				}
			}
			slip.Net = slip.Gross.Sub(slip.LoanDeduction)
			slipID, err := u.tx.InsertPayslip(ctx, slip)
			if err != nil {
				return err
			}
			slip.ID = slipID
			entry, err := u.appendEntry(ctx, cmd.BusinessUnitID, ledger.TypeExpense, slip.Gross,
				fmt.Sprintf("Wages %s, %s", e.Name, period), ledger.Source(ledger.SourcePayslip, slipID))
			if err != nil {
				return err
			}
			if entry != nil {
				res.LedgerEntries = append(res.LedgerEntries, *entry)
			}
			run.TotalPaid = run.TotalPaid.Add(slip.Net)
			res.Payslips = append(res.Payslips, slip)
		}
		if err := u.tx.UpdatePayrollRunTotal(ctx, runID, run.TotalPaid); err != nil {
			return err
		}
		res.Run = run
		if cmd.SafeID <= 0 || !run.TotalPaid.IsPositive() {
			return nil
		}
		cashEntry, err := u.cash.Debit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      run.TotalPaid,
			Type:        treasury.MovementPayout,
			Description: "Payroll " + period,
			ActorID:     u.actorID,
			ExpenseRef:  fmt.Sprintf("payroll_run:%d", runID),
		})
		if err != nil {
			return err
		}
		res.CashEntry = &cashEntry
		return nil
	})
	if err != nil {
		return PayrollResult{}, err
	}
	s.recordAudit(ctx, "PAYROLL_RUN", "payroll_run", res.Run.ID, map[string]any{
		"payslips":   len(res.Payslips),
		"total_paid": res.Run.TotalPaid.String(),
	})
	return res, nil
}

// IssueStaffLoan advances cash to an employee. An employee holds at most one
// active loan. The cash leaves the safe as CASH_OUT and the ledger records a
// neutral TRANSFER.
func (s *Service) IssueStaffLoan(ctx context.Context, cmd StaffLoanCommand) (StaffLoanResult, error) {
	if cmd.EmployeeID <= 0 || cmd.SafeID <= 0 {
		return StaffLoanResult{}, shared.Invalid("employee and safe required")
	}
	if err := positiveMoney("loan amount", cmd.Amount); err != nil {
		return StaffLoanResult{}, err
	}
	var res StaffLoanResult
	err := s.run(ctx, "issue_staff_loan", func(ctx context.Context, u *unit) error {
		employees, err := u.tx.LockEmployees(ctx, []int64{cmd.EmployeeID})
		if err != nil {
			return err
		}
		employee, ok := employees[cmd.EmployeeID]
		if !ok {
			return shared.NotFound("employee", cmd.EmployeeID)
		}
		active, err := u.tx.LockActiveLoans(ctx, []int64{cmd.EmployeeID})
		if err != nil {
			return err
		}
		if existing, ok := active[cmd.EmployeeID]; ok {
			return fmt.Errorf("employee %d already has active loan %d: %w", cmd.EmployeeID, existing.ID, shared.ErrInvalidState)
		}
		if err := u.cash.Lock(ctx, cmd.SafeID); err != nil {
			return err
		}
		loan := StaffLoan{
			EmployeeID:   cmd.EmployeeID,
			Principal:    shared.Money(cmd.Amount),
			AmountRepaid: decimal.Zero,
			IsActive:     true,
			ActorID:      u.actorID,
			CreatedAt:    u.now,
		}
		id, err := u.tx.InsertStaffLoan(ctx, loan)
		if err != nil {
			return err
		}
		loan.ID = id
		source := ledger.Source(ledger.SourceStaffLoan, id)
		cashEntry, err := u.cash.Debit(ctx, treasury.Posting{
			SafeID:      cmd.SafeID,
			Amount:      loan.Principal,
			Type:        treasury.MovementCashOut,
			Description: fmt.Sprintf("Staff loan to %s", employee.Name),
			ActorID:     u.actorID,
			ExpenseRef:  source,
		})
		if err != nil {
			return err
		}
		entry, err := u.requireEntry(ctx, employee.BusinessUnitID, ledger.TypeTransfer, loan.Principal,
			fmt.Sprintf("Staff loan #%d to %s", id, employee.Name), source)
		if err != nil {
			return err
		}
		res = StaffLoanResult{Loan: loan, CashEntry: cashEntry, LedgerEntry: entry}
		return nil
	})
	if err != nil {
		return StaffLoanResult{}, err
	}
	s.recordAudit(ctx, "STAFF_LOAN", "staff_loan", res.Loan.ID, map[string]any{
		"employee_id": cmd.EmployeeID,
		"principal":   res.Loan.Principal.String(),
	})
	return res, nil
}
