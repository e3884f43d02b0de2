package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository serves inventory reads from PostgreSQL.
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

// NewTxStore binds the engine store to an open transaction.
func NewTxStore(q db.Querier) Store {
	return &txStore{q: q}
}

const productColumns = `id, business_unit_id, name, unit, quantity_on_hand, cost_price, selling_price, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.BusinessUnitID, &p.Name, &p.Unit, &p.QuantityOnHand, &p.CostPrice, &p.SellingPrice, &p.UpdatedAt)
	return p, err
}

// LockProducts selects the rows FOR UPDATE ordered by id so concurrent
// multi-item units of work acquire locks in the same order.
func (s *txStore) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	rows, err := s.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *txStore) GetRecipe(ctx context.Context, finishedProductID int64) ([]RecipeLine, error) {
	rows, err := s.q.Query(ctx, `SELECT finished_product_id, ingredient_product_id, qty_per_unit
FROM bom_lines WHERE finished_product_id=$1 ORDER BY ingredient_product_id`, finishedProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []RecipeLine
	for rows.Next() {
		var line RecipeLine
		if err := rows.Scan(&line.FinishedProductID, &line.IngredientProductID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *txStore) SaveProduct(ctx context.Context, p Product) error {
	tag, err := s.q.Exec(ctx, `UPDATE products SET quantity_on_hand=$2, cost_price=$3, updated_at=$4 WHERE id=$1`,
		p.ID, p.QuantityOnHand, p.CostPrice, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", p.ID)
	}
	return nil
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) error {
	_, err := s.q.Exec(ctx, `INSERT INTO inventory_movements (product_id, movement_type, qty_change, unit_cost, balance_qty, balance_cost, source_reference, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, m.ProductID, string(m.Type), m.QtyChange, m.UnitCost, m.BalanceQty, m.BalanceCost, m.Source, m.PostedAt)
	return err
}

// GetProduct returns the committed state of a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	if r == nil {
		return Product{}, errors.New("inventory repository not initialised")
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, shared.NotFound("product", id)
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns the products of a business unit, all units when zero.
func (r *Repository) ListProducts(ctx context.Context, businessUnitID int64) ([]Product, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = 0 OR business_unit_id = $1) ORDER BY id`, businessUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetStockCard lists movements of one product.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, movement_type, qty_change, unit_cost, balance_qty, balance_cost, source_reference, posted_at
FROM inventory_movements
WHERE product_id=$1 AND posted_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.QtyChange, &m.UnitCost, &m.BalanceQty, &m.BalanceCost, &m.Source, &m.PostedAt); err != nil {
			return nil, err
		}
		cards = append(cards, m)
	}
	return cards, rows.Err()
}

// CountNegative returns products whose quantity on hand is below zero,
// restricted to one business unit unless businessUnitID is zero.
func (r *Repository) CountNegative(ctx context.Context, businessUnitID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products
WHERE quantity_on_hand < 0 AND ($1 = 0 OR business_unit_id = $1) ORDER BY id`, businessUnitID)
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
