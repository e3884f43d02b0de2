package operations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// Repository opens PostgreSQL units of work and serves document reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction with every store bound to it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("operations: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Inventory() inventory.Store         { return inventory.NewTxStore(t.tx) }
func (t *txRepo) Treasury() treasury.Store           { return treasury.NewTxStore(t.tx) }
func (t *txRepo) Counterparties() counterparty.Store { return counterparty.NewTxStore(t.tx) }
func (t *txRepo) Ledger() ledger.Store               { return ledger.NewTxStore(t.tx) }

// insertID runs an INSERT ... RETURNING id. A foreign key violation is
// reported as the missing parent.
func (t *txRepo) insertID(ctx context.Context, parent string, parentID int64, sql string, args ...any) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if db.IsForeignKeyViolation(err) {
			return 0, shared.NotFound(parent, parentID)
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return err
}

func (t *txRepo) GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error) {
	var bu BusinessUnit
	err := t.tx.QueryRow(ctx, `SELECT id, name, business_type FROM business_units WHERE id=$1`, id).
		Scan(&bu.ID, &bu.Name, &bu.BusinessType)
	if db.IsNoRows(err) {
		return BusinessUnit{}, shared.NotFound("business unit", id)
	}
	return bu, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var customerID int64
	if sale.CustomerID != nil {
		customerID = *sale.CustomerID
	}
	return t.insertID(ctx, "customer", customerID, `INSERT INTO sales
(business_unit_id, customer_id, safe_id, payment_method, payment_status, total_amount, amount_paid, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0),$9) RETURNING id`,
		sale.BusinessUnitID, sale.CustomerID, sale.SafeID, string(sale.PaymentMethod), string(sale.PaymentStatus),
		sale.TotalAmount, sale.AmountPaid, sale.ActorID, sale.CreatedAt)
}

func (t *txRepo) InsertSaleItem(ctx context.Context, item SaleItem) (int64, error) {
	return t.insertID(ctx, "sale", item.SaleID, `INSERT INTO sale_items
(sale_id, product_id, quantity, price_at_sale, cost_at_sale, line_total)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		item.SaleID, item.ProductID, item.Quantity, item.PriceAtSale, item.CostAtSale, item.LineTotal)
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	return t.insertID(ctx, "supplier", po.SupplierID, `INSERT INTO purchase_orders
(business_unit_id, supplier_id, status, amount_due, amount_paid, actor_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7,$8) RETURNING id`,
		po.BusinessUnitID, po.SupplierID, string(po.Status), po.AmountDue, po.AmountPaid, po.ActorID, po.CreatedAt, po.UpdatedAt)
}

func (t *txRepo) InsertPOLine(ctx context.Context, line POLine) (int64, error) {
	return t.insertID(ctx, "purchase order", line.PurchaseOrderID, `INSERT INTO purchase_order_lines
(purchase_order_id, product_id, quantity_ordered, quantity_received, cost_at_order)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		line.PurchaseOrderID, line.ProductID, line.QuantityOrdered, line.QuantityReceived, line.CostAtOrder)
}

const poColumns = `id, business_unit_id, supplier_id, status, amount_due, amount_paid, COALESCE(actor_id, 0), created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.BusinessUnitID, &po.SupplierID, &po.Status, &po.AmountDue, &po.AmountPaid, &po.ActorID, &po.CreatedAt, &po.UpdatedAt)
	return po, err
}

func listPOLines(ctx context.Context, q db.Querier, orderID int64) ([]POLine, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity_ordered, quantity_received, cost_at_order
FROM purchase_order_lines WHERE purchase_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.PurchaseOrderID, &l.ProductID, &l.QuantityOrdered, &l.QuantityReceived, &l.CostAtOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, err := scanPurchaseOrder(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return PurchaseOrder{}, nil, shared.NotFound("purchase order", id)
		}
		return PurchaseOrder{}, nil, err
	}
	lines, err := listPOLines(ctx, t.tx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

func (t *txRepo) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	return t.exec(ctx, `UPDATE purchase_orders SET status=$2, amount_due=$3, amount_paid=$4, updated_at=$5 WHERE id=$1`,
		po.ID, string(po.Status), po.AmountDue, po.AmountPaid, po.UpdatedAt)
}

func (t *txRepo) UpdatePOLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	return t.exec(ctx, `UPDATE purchase_order_lines SET quantity_received=$2 WHERE id=$1`, lineID, received)
}

func (t *txRepo) InsertReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	return t.insertID(ctx, "purchase order", receipt.PurchaseOrderID, `INSERT INTO purchase_receipts
(purchase_order_id, actor_id, received_at) VALUES ($1,NULLIF($2,0),$3) RETURNING id`,
		receipt.PurchaseOrderID, receipt.ActorID, receipt.ReceivedAt)
}

func (t *txRepo) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	return t.exec(ctx, `INSERT INTO purchase_receipt_lines
(receipt_id, po_line_id, product_id, quantity, unit_cost, new_cost_price) VALUES ($1,$2,$3,$4,$5,$6)`,
		line.ReceiptID, line.POLineID, line.ProductID, line.Quantity, line.UnitCost, line.NewCostPrice)
}

func (t *txRepo) InsertCashTransfer(ctx context.Context, transfer CashTransfer) (int64, error) {
	return t.insertID(ctx, "safe", transfer.FromSafeID, `INSERT INTO cash_transfers
(business_unit_id, from_safe_id, to_safe_id, amount, description, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		transfer.BusinessUnitID, transfer.FromSafeID, transfer.ToSafeID, transfer.Amount, transfer.Description, transfer.ActorID, transfer.CreatedAt)
}

func (t *txRepo) InsertExpense(ctx context.Context, expense Expense) (int64, error) {
	return t.insertID(ctx, "business unit", expense.BusinessUnitID, `INSERT INTO expenses
(business_unit_id, safe_id, amount, category, description, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		expense.BusinessUnitID, expense.SafeID, expense.Amount, expense.Category, expense.Description, expense.ActorID, expense.CreatedAt)
}

func (t *txRepo) InsertScrapPurchase(ctx context.Context, purchase ScrapPurchase) (int64, error) {
	return t.insertID(ctx, "business unit", purchase.BusinessUnitID, `INSERT INTO scrap_purchases
(business_unit_id, safe_id, seller_name, total_payout, actor_id, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5,0),$6) RETURNING id`,
		purchase.BusinessUnitID, purchase.SafeID, purchase.SellerName, purchase.TotalPayout, purchase.ActorID, purchase.CreatedAt)
}

func (t *txRepo) InsertScrapPurchaseLine(ctx context.Context, line ScrapPurchaseLine) error {
	return t.exec(ctx, `INSERT INTO scrap_purchase_lines (scrap_purchase_id, product_id, weight, unit_price, line_value)
VALUES ($1,$2,$3,$4,$5)`, line.ScrapPurchaseID, line.ProductID, line.Weight, line.UnitPrice, line.LineValue)
}

func (t *txRepo) InsertScrapSale(ctx context.Context, sale ScrapSale) (int64, error) {
	return t.insertID(ctx, "business unit", sale.BusinessUnitID, `INSERT INTO scrap_sales
(business_unit_id, safe_id, buyer_name, total_amount, total_cost, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		sale.BusinessUnitID, sale.SafeID, sale.BuyerName, sale.TotalAmount, sale.TotalCost, sale.ActorID, sale.CreatedAt)
}

func (t *txRepo) InsertScrapSaleLine(ctx context.Context, line ScrapSaleLine) error {
	return t.exec(ctx, `INSERT INTO scrap_sale_lines (scrap_sale_id, product_id, weight, unit_price, line_value, cost_at_sale)
VALUES ($1,$2,$3,$4,$5,$6)`, line.ScrapSaleID, line.ProductID, line.Weight, line.UnitPrice, line.LineValue, line.CostAtSale)
}

func (t *txRepo) InsertMixBatch(ctx context.Context, batch MixBatch) (int64, error) {
	return t.insertID(ctx, "product", batch.FinishedProductID, `INSERT INTO mix_batches
(business_unit_id, finished_product_id, quantity, absorbed_cost, unit_cost, new_cost_price, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,0),$8) RETURNING id`,
		batch.BusinessUnitID, batch.FinishedProductID, batch.Quantity, batch.AbsorbedCost, batch.UnitCost, batch.NewCostPrice, batch.ActorID, batch.CreatedAt)
}

func (t *txRepo) UpdateMixBatch(ctx context.Context, batch MixBatch) error {
	return t.exec(ctx, `UPDATE mix_batches SET absorbed_cost=$2, unit_cost=$3, new_cost_price=$4 WHERE id=$1`,
		batch.ID, batch.AbsorbedCost, batch.UnitCost, batch.NewCostPrice)
}

func (t *txRepo) InsertCustomerPayment(ctx context.Context, payment CustomerPayment) (int64, error) {
	return t.insertID(ctx, "customer", payment.CustomerID, `INSERT INTO customer_payments
(customer_id, safe_id, amount, reference, actor_id, created_at) VALUES ($1,$2,$3,$4,NULLIF($5,0),$6) RETURNING id`,
		payment.CustomerID, payment.SafeID, payment.Amount, payment.Reference, payment.ActorID, payment.CreatedAt)
}

func (t *txRepo) InsertCustomerAllocation(ctx context.Context, paymentID, saleID int64, amount decimal.Decimal) error {
	return t.exec(ctx, `INSERT INTO customer_payment_allocations (payment_id, sale_id, amount) VALUES ($1,$2,$3)`, paymentID, saleID, amount)
}

func (t *txRepo) InsertSupplierPayment(ctx context.Context, payment SupplierPayment) (int64, error) {
	return t.insertID(ctx, "supplier", payment.SupplierID, `INSERT INTO supplier_payments
(supplier_id, safe_id, amount, reference, actor_id, created_at) VALUES ($1,$2,$3,$4,NULLIF($5,0),$6) RETURNING id`,
		payment.SupplierID, payment.SafeID, payment.Amount, payment.Reference, payment.ActorID, payment.CreatedAt)
}

func (t *txRepo) InsertSupplierAllocation(ctx context.Context, paymentID, orderID int64, amount decimal.Decimal) error {
	return t.exec(ctx, `INSERT INTO supplier_payment_allocations (payment_id, purchase_order_id, amount) VALUES ($1,$2,$3)`, paymentID, orderID, amount)
}

func (t *txRepo) InsertStockTake(ctx context.Context, take StockTake) (int64, error) {
	return t.insertID(ctx, "business unit", take.BusinessUnitID, `INSERT INTO stock_takes
(business_unit_id, notes, total_variance, actor_id, created_at) VALUES ($1,$2,$3,NULLIF($4,0),$5) RETURNING id`,
		take.BusinessUnitID, take.Notes, take.TotalVariance, take.ActorID, take.CreatedAt)
}

func (t *txRepo) InsertStockTakeLine(ctx context.Context, line StockTakeLine) error {
	return t.exec(ctx, `INSERT INTO stock_take_lines
(stock_take_id, product_id, system_qty, counted_qty, variance_qty, cost_at_time, variance_value)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.StockTakeID, line.ProductID, line.SystemQty, line.CountedQty, line.VarianceQty, line.CostAtTime, line.VarianceValue)
}

func (t *txRepo) UpdateStockTakeTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return t.exec(ctx, `UPDATE stock_takes SET total_variance=$2 WHERE id=$1`, id, total)
}

func (t *txRepo) LockEmployees(ctx context.Context, ids []int64) (map[int64]Employee, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, business_unit_id, name, hourly_rate, is_active
FROM employees WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Employee, len(ids))
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.BusinessUnitID, &e.Name, &e.HourlyRate, &e.IsActive); err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (t *txRepo) LockActiveLoans(ctx context.Context, employeeIDs []int64) (map[int64]StaffLoan, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, employee_id, principal, amount_repaid, is_active, COALESCE(actor_id, 0), created_at
FROM staff_loans WHERE employee_id = ANY($1) AND is_active ORDER BY id FOR UPDATE`, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]StaffLoan, len(employeeIDs))
	for rows.Next() {
		var l StaffLoan
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.Principal, &l.AmountRepaid, &l.IsActive, &l.ActorID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out[l.EmployeeID] = l
	}
	return out, rows.Err()
}

func (t *txRepo) InsertStaffLoan(ctx context.Context, loan StaffLoan) (int64, error) {
	return t.insertID(ctx, "employee", loan.EmployeeID, `INSERT INTO staff_loans
(employee_id, principal, amount_repaid, is_active, actor_id, created_at) VALUES ($1,$2,$3,$4,NULLIF($5,0),$6) RETURNING id`,
		loan.EmployeeID, loan.Principal, loan.AmountRepaid, loan.IsActive, loan.ActorID, loan.CreatedAt)
}

func (t *txRepo) UpdateStaffLoan(ctx context.Context, loan StaffLoan) error {
	return t.exec(ctx, `UPDATE staff_loans SET amount_repaid=$2, is_active=$3 WHERE id=$1`, loan.ID, loan.AmountRepaid, loan.IsActive)
}

func (t *txRepo) InsertPayrollRun(ctx context.Context, run PayrollRun) (int64, error) {
	return t.insertID(ctx, "business unit", run.BusinessUnitID, `INSERT INTO payroll_runs
(business_unit_id, period_start, period_end, safe_id, total_paid, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		run.BusinessUnitID, run.PeriodStart, run.PeriodEnd, run.SafeID, run.TotalPaid, run.ActorID, run.CreatedAt)
}

func (t *txRepo) InsertPayslip(ctx context.Context, slip Payslip) (int64, error) {
	return t.insertID(ctx, "payroll run", slip.PayrollRunID, `INSERT INTO payslips
(payroll_run_id, employee_id, hours, hourly_rate, gross, loan_deduction, net, loan_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		slip.PayrollRunID, slip.EmployeeID, slip.Hours, slip.HourlyRate, slip.Gross, slip.LoanDeduction, slip.Net, slip.LoanID)
}

func (t *txRepo) UpdatePayrollRunTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return t.exec(ctx, `UPDATE payroll_runs SET total_paid=$2 WHERE id=$1`, id, total)
}

func (t *txRepo) InsertInternalTransfer(ctx context.Context, transfer InternalTransfer) (int64, error) {
	return t.insertID(ctx, "business unit", transfer.RequestingUnitID, `INSERT INTO internal_transfers
(requesting_unit_id, providing_unit_id, total_value, financial, notes, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		transfer.RequestingUnitID, transfer.ProvidingUnitID, transfer.TotalValue, transfer.Financial, transfer.Notes, transfer.ActorID, transfer.CreatedAt)
}

func (t *txRepo) InsertInternalTransferLine(ctx context.Context, line InternalTransferLine) error {
	return t.exec(ctx, `INSERT INTO internal_transfer_lines
(internal_transfer_id, product_id, destination_product_id, quantity, unit_cost, value) VALUES ($1,$2,$3,$4,$5,$6)`,
		line.InternalTransferID, line.ProductID, line.DestinationProductID, line.Quantity, line.UnitCost, line.Value)
}

func (t *txRepo) UpdateInternalTransfer(ctx context.Context, transfer InternalTransfer) error {
	return t.exec(ctx, `UPDATE internal_transfers SET total_value=$2 WHERE id=$1`, transfer.ID, transfer.TotalValue)
}

// GetPurchaseOrder returns the committed state of an order and its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderResult, error) {
	po, err := scanPurchaseOrder(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return PurchaseOrderResult{}, shared.NotFound("purchase order", id)
		}
		return PurchaseOrderResult{}, err
	}
	lines, err := listPOLines(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrderResult{}, err
	}
	return PurchaseOrderResult{Order: po, Lines: lines}, nil
}

// GetSale returns a sale header and its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, []SaleItem, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, business_unit_id, customer_id, safe_id, payment_method, payment_status,
total_amount, amount_paid, COALESCE(actor_id, 0), created_at FROM sales WHERE id=$1`, id).
		Scan(&sale.ID, &sale.BusinessUnitID, &sale.CustomerID, &sale.SafeID, &sale.PaymentMethod, &sale.PaymentStatus,
			&sale.TotalAmount, &sale.AmountPaid, &sale.ActorID, &sale.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Sale{}, nil, shared.NotFound("sale", id)
		}
		return Sale{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity, price_at_sale, cost_at_sale, line_total
FROM sale_items WHERE sale_id=$1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	defer rows.Close()
	var items []SaleItem
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.PriceAtSale, &it.CostAtSale, &it.LineTotal); err != nil {
			return Sale{}, nil, err
		}
		items = append(items, it)
	}
	return sale, items, rows.Err()
}
