package counterparty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository serves counterparty reads from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txStore struct {
	q db.Querier
}

// NewTxStore binds the tracker store to an open transaction.
func NewTxStore(q db.Querier) Store {
	return &txStore{q: q}
}

func (s *txStore) LockCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := s.q.QueryRow(ctx, `SELECT id, name, COALESCE(phone, ''), account_balance FROM customers WHERE id=$1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.AccountBalance)
	if db.IsNoRows(err) {
		return Customer{}, shared.NotFound("customer", id)
	}
	return c, err
}

func (s *txStore) LockReceivables(ctx context.Context, customerID int64, saleIDs []int64) (map[int64]Receivable, error) {
	rows, err := s.q.Query(ctx, `SELECT id, customer_id, total_amount, amount_paid, payment_status, created_at
FROM sales WHERE customer_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, customerID, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Receivable, len(saleIDs))
	for rows.Next() {
		var r Receivable
		if err := rows.Scan(&r.SaleID, &r.CustomerID, &r.Total, &r.Paid, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out[r.SaleID] = r
	}
	return out, rows.Err()
}

func (s *txStore) SaveReceivable(ctx context.Context, r Receivable) error {
	_, err := s.q.Exec(ctx, `UPDATE sales SET amount_paid=$2, payment_status=$3 WHERE id=$1`, r.SaleID, r.Paid, string(r.Status))
	return err
}

func (s *txStore) OutstandingReceivables(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount - amount_paid), 0) FROM sales
WHERE customer_id=$1 AND payment_status <> 'PAID'`, customerID).Scan(&sum)
	return sum, err
}

func (s *txStore) SaveCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error {
	_, err := s.q.Exec(ctx, `UPDATE customers SET account_balance=$2, updated_at=NOW() WHERE id=$1`, customerID, balance)
	return err
}

func (s *txStore) LockSupplier(ctx context.Context, id int64) (Supplier, error) {
	var sup Supplier
	err := s.q.QueryRow(ctx, `SELECT id, name, account_balance FROM suppliers WHERE id=$1 FOR UPDATE`, id).
		Scan(&sup.ID, &sup.Name, &sup.AccountBalance)
	if db.IsNoRows(err) {
		return Supplier{}, shared.NotFound("supplier", id)
	}
	return sup, err
}

func (s *txStore) LockPayables(ctx context.Context, supplierID int64, orderIDs []int64) (map[int64]Payable, error) {
	rows, err := s.q.Query(ctx, `SELECT id, supplier_id, amount_due, amount_paid, created_at
FROM purchase_orders WHERE supplier_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, supplierID, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Payable, len(orderIDs))
	for rows.Next() {
		var p Payable
		if err := rows.Scan(&p.OrderID, &p.SupplierID, &p.AmountDue, &p.AmountPaid, &p.CreatedAt); err != nil {
			return nil, err
		}
		out[p.OrderID] = p
	}
	return out, rows.Err()
}

func (s *txStore) SavePayable(ctx context.Context, p Payable) error {
	_, err := s.q.Exec(ctx, `UPDATE purchase_orders SET amount_paid=$2, updated_at=NOW() WHERE id=$1`, p.OrderID, p.AmountPaid)
	return err
}

func (s *txStore) OutstandingPayables(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount_due - amount_paid), 0) FROM purchase_orders
WHERE supplier_id=$1 AND status <> 'CANCELLED'`, supplierID).Scan(&sum)
	return sum, err
}

func (s *txStore) SaveSupplierBalance(ctx context.Context, supplierID int64, balance decimal.Decimal) error {
	_, err := s.q.Exec(ctx, `UPDATE suppliers SET account_balance=$2, updated_at=NOW() WHERE id=$1`, supplierID, balance)
	return err
}

// GetCustomer returns a customer and their receivable.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if r == nil {
		return Customer{}, errors.New("counterparty repository not initialised")
	}
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(phone, ''), account_balance FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.AccountBalance)
	if db.IsNoRows(err) {
		return Customer{}, shared.NotFound("customer", id)
	}
	return c, err
}

// GetSupplier returns a supplier and the payable owed to them.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if r == nil {
		return Supplier{}, errors.New("counterparty repository not initialised")
	}
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, account_balance FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.AccountBalance)
	if db.IsNoRows(err) {
		return Supplier{}, shared.NotFound("supplier", id)
	}
	return s, err
}

// ListOutstandingReceivables returns unpaid sales, for one customer or all when zero.
func (r *Repository) ListOutstandingReceivables(ctx context.Context, customerID int64) ([]Receivable, error) {
	if r == nil {
		return nil, errors.New("counterparty repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, total_amount, amount_paid, payment_status, created_at
FROM sales WHERE customer_id IS NOT NULL AND ($1 = 0 OR customer_id = $1) AND payment_status <> 'PAID'
ORDER BY created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Receivable{}
	for rows.Next() {
		var rec Receivable
		if err := rows.Scan(&rec.SaleID, &rec.CustomerID, &rec.Total, &rec.Paid, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListOutstandingPayables returns purchase orders with an unpaid amount.
func (r *Repository) ListOutstandingPayables(ctx context.Context, supplierID int64) ([]Payable, error) {
	if r == nil {
		return nil, errors.New("counterparty repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, supplier_id, amount_due, amount_paid, created_at
FROM purchase_orders WHERE ($1 = 0 OR supplier_id = $1) AND status <> 'CANCELLED' AND amount_due > amount_paid
ORDER BY created_at, id`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Payable{}
	for rows.Next() {
		var p Payable
		if err := rows.Scan(&p.OrderID, &p.SupplierID, &p.AmountDue, &p.AmountPaid, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

