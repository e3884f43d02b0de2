package treasury

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository serves treasury reads from PostgreSQL.
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

// NewTxStore binds the manager store to an open transaction.
func NewTxStore(q db.Querier) Store {
	return &txStore{q: q}
}

const safeColumns = `id, business_unit_id, name, current_balance, initial_balance, is_physical_cash, updated_at`

func scanSafe(row interface{ Scan(...any) error }) (Safe, error) {
	var s Safe
	err := row.Scan(&s.ID, &s.BusinessUnitID, &s.Name, &s.CurrentBalance, &s.InitialBalance, &s.IsPhysicalCash, &s.UpdatedAt)
	return s, err
}

func (s *txStore) LockSafes(ctx context.Context, ids []int64) (map[int64]Safe, error) {
	rows, err := s.q.Query(ctx, `SELECT `+safeColumns+` FROM cash_safes WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Safe, len(ids))
	for rows.Next() {
		safe, err := scanSafe(rows)
		if err != nil {
			return nil, err
		}
		out[safe.ID] = safe
	}
	return out, rows.Err()
}

func (s *txStore) SaveBalance(ctx context.Context, safe Safe) error {
	tag, err := s.q.Exec(ctx, `UPDATE cash_safes SET current_balance=$2, updated_at=$3 WHERE id=$1`, safe.ID, safe.CurrentBalance, safe.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("safe", safe.ID)
	}
	return nil
}

func (s *txStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO cash_ledger (safe_id, movement_type, amount, description, actor_id, sale_id, payment_id, expense_reference, balance_after, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5,0),$6,$7,NULLIF($8,''),$9,$10) RETURNING id`,
		e.SafeID, string(e.Type), e.Amount, e.Description, e.ActorID, e.SaleID, e.PaymentID, e.ExpenseRef, e.BalanceAfter, e.CreatedAt).Scan(&id)
	return id, err
}

// GetSafe returns the committed state of a safe.
func (r *Repository) GetSafe(ctx context.Context, id int64) (Safe, error) {
	if r == nil {
		return Safe{}, errors.New("treasury repository not initialised")
	}
	safe, err := scanSafe(r.pool.QueryRow(ctx, `SELECT `+safeColumns+` FROM cash_safes WHERE id=$1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Safe{}, shared.NotFound("safe", id)
		}
		return Safe{}, err
	}
	return safe, nil
}

// ListSafes returns the safes of a business unit, all units when zero.
func (r *Repository) ListSafes(ctx context.Context, businessUnitID int64) ([]Safe, error) {
	if r == nil {
		return nil, errors.New("treasury repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+safeColumns+` FROM cash_safes WHERE ($1 = 0 OR business_unit_id = $1) ORDER BY id`, businessUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	safes := []Safe{}
	for rows.Next() {
		safe, err := scanSafe(rows)
		if err != nil {
			return nil, err
		}
		safes = append(safes, safe)
	}
	return safes, rows.Err()
}

// ListEntries returns cash ledger rows for a safe in posting order.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("treasury repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, safe_id, movement_type, amount, description, COALESCE(actor_id, 0), sale_id, payment_id,
       COALESCE(expense_reference, ''), balance_after, created_at
FROM cash_ledger
WHERE safe_id=$1 AND created_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY id ASC
LIMIT $4`, filter.SafeID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SafeID, &e.Type, &e.Amount, &e.Description, &e.ActorID, &e.SaleID, &e.PaymentID, &e.ExpenseRef, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerSum returns the sum of signed cash ledger amounts of one safe.
func (r *Repository) LedgerSum(ctx context.Context, safeID int64) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, errors.New("treasury repository not initialised")
	}
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM cash_ledger WHERE safe_id=$1`, safeID).Scan(&sum)
	return sum, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
