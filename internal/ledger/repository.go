package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository serves ledger reads from PostgreSQL.
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

// NewTxStore binds the ledger writer to an open transaction.
func NewTxStore(q db.Querier) Store {
	return &txStore{q: q}
}

func (s *txStore) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO ledger_entries (business_unit_id, type, amount, description, source_reference, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),$7) RETURNING id`,
		e.BusinessUnitID, string(e.Type), e.Amount, e.Description, e.SourceReference, e.ActorID, e.CreatedAt).Scan(&id)
	return id, err
}

func typeStrings(types []EntryType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// ListEntries returns entries matching the filter in posting order.
func (r *Repository) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id, business_unit_id, type, amount, description, source_reference, COALESCE(actor_id, 0), created_at
FROM ledger_entries
WHERE ($1 = 0 OR business_unit_id = $1)
  AND created_at >= COALESCE($2, '-infinity'::timestamptz)
  AND created_at < COALESCE($3, 'infinity'::timestamptz)
  AND ($4::text[] IS NULL OR type = ANY($4))
ORDER BY created_at, id
LIMIT $5`, filter.BusinessUnitID, nullTime(filter.From), nullTime(filter.To), typeStrings(filter.Types), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BusinessUnitID, &e.Type, &e.Amount, &e.Description, &e.SourceReference, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Totals sums entries per type and source kind within a period.
func (r *Repository) Totals(ctx context.Context, businessUnitID int64, from, to time.Time) ([]TypeTotal, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT type, split_part(source_reference, ':', 1) AS kind, SUM(amount)
FROM ledger_entries
WHERE ($1 = 0 OR business_unit_id = $1) AND created_at >= $2 AND created_at < $3
GROUP BY type, kind
ORDER BY type, kind`, businessUnitID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []TypeTotal
	for rows.Next() {
		var t TypeTotal
		if err := rows.Scan(&t.Type, &t.SourceKind, &t.Amount); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// SaleCOGS sums frozen cost_at_sale over sale items in a period.
func (r *Repository) SaleCOGS(ctx context.Context, businessUnitID int64, from, to time.Time) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, errors.New("ledger repository not initialised")
	}
	var cogs decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(si.quantity * si.cost_at_sale), 0)
FROM sale_items si JOIN sales s ON s.id = si.sale_id
WHERE ($1 = 0 OR s.business_unit_id = $1) AND s.created_at >= $2 AND s.created_at < $3`, businessUnitID, from, to).Scan(&cogs)
	return cogs, err
}

// BusinessUnitIDs lists every business unit id.
func (r *Repository) BusinessUnitIDs(ctx context.Context) ([]int64, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM business_units ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
