package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the transactional persistence used by Engine. Implementations must
// hold an exclusive row lock on every product returned by LockProducts until the
// surrounding transaction ends.
type Store interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	GetRecipe(ctx context.Context, finishedProductID int64) ([]RecipeLine, error)
	SaveProduct(ctx context.Context, product Product) error
	InsertMovement(ctx context.Context, movement Movement) error
}

// Engine applies valuation rules to products locked within one unit of work.
// It is not safe for concurrent use; create one per transaction.
type Engine struct {
	store  Store
	now    func() time.Time
	locked map[int64]Product
}

// NewEngine binds an engine to a transactional store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now, locked: make(map[int64]Product)}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Lock acquires row locks for the given products in ascending id order.
// Products already locked in this unit of work are skipped.
func (e *Engine) Lock(ctx context.Context, ids ...int64) error {
	var missing []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return shared.Invalid("product id required")
		}
		if _, ok := e.locked[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	rows, err := e.store.LockProducts(ctx, missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		p, ok := rows[id]
		if !ok {
			return shared.NotFound("product", id)
		}
		e.locked[id] = p
	}
	return nil
}

// Product returns the locked snapshot of a product, locking it when needed.
func (e *Engine) Product(ctx context.Context, id int64) (Product, error) {
	if err := e.Lock(ctx, id); err != nil {
		return Product{}, err
	}
	return e.locked[id], nil
}

// Receive blends qty units at unitCost into the product's WAC and returns the new WAC.
func (e *Engine) Receive(ctx context.Context, id int64, qty, unitCost decimal.Decimal, source string) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, shared.Invalid("receipt quantity must be positive")
	}
	if unitCost.IsNegative() {
		return decimal.Zero, shared.Invalid("unit cost must be >= 0")
	}
	return e.receiveValue(ctx, id, qty, qty.Mul(unitCost), unitCost, source)
}

func (e *Engine) receiveValue(ctx context.Context, id int64, qty, value, unitCost decimal.Decimal, source string) (decimal.Decimal, error) {
	p, err := e.Product(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	newWAC := blendValue(p.QuantityOnHand, p.CostPrice, qty, value)
	p.QuantityOnHand = shared.Qty(p.QuantityOnHand.Add(qty))
	p.CostPrice = newWAC
	if err := e.save(ctx, p, Movement{
		ProductID: id,
		Type:      MovementReceipt,
		QtyChange: qty,
		UnitCost:  shared.Cost(unitCost),
		Source:    source,
	}); err != nil {
		return decimal.Zero, err
	}
	return newWAC, nil
}

// Consume draws qty units at the current WAC and returns the cost consumed.
// It fails with an InsufficientError when fewer than qty units are on hand.
func (e *Engine) Consume(ctx context.Context, id int64, qty decimal.Decimal, source string) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, shared.Invalid("consume quantity must be positive")
	}
	p, err := e.Product(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if p.QuantityOnHand.LessThan(qty) {
		return decimal.Zero, shared.InsufficientStock(p.Name, qty, p.QuantityOnHand)
	}
	cost := shared.Extend(qty, p.CostPrice)
	p.QuantityOnHand = shared.Qty(p.QuantityOnHand.Sub(qty))
	if err := e.save(ctx, p, Movement{
		ProductID: id,
		Type:      MovementConsume,
		QtyChange: qty.Neg(),
		UnitCost:  p.CostPrice,
		Source:    source,
	}); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// SetCounted replaces quantity on hand with a counted value. The variance is
// valued at the pre-take WAC and the WAC itself is left untouched.
func (e *Engine) SetCounted(ctx context.Context, id int64, counted decimal.Decimal, source string) (Variance, error) {
	if counted.IsNegative() {
		return Variance{}, shared.Invalid("counted quantity must be >= 0")
	}
	p, err := e.Product(ctx, id)
	if err != nil {
		return Variance{}, err
	}
	variance := Variance{
		ProductID:   id,
		SystemQty:   p.QuantityOnHand,
		CountedQty:  shared.Qty(counted),
		VarianceQty: shared.Qty(counted.Sub(p.QuantityOnHand)),
		CostAtTime:  p.CostPrice,
	}
	variance.Value = shared.Extend(variance.VarianceQty, p.CostPrice)
	p.QuantityOnHand = variance.CountedQty
	if err := e.save(ctx, p, Movement{
		ProductID: id,
		Type:      MovementCount,
		QtyChange: variance.VarianceQty,
		UnitCost:  p.CostPrice,
		Source:    source,
	}); err != nil {
		return Variance{}, err
	}
	return variance, nil
}

// ConsumeRecipe mixes targetQty units of a finished good from its bill of
// materials. Every ingredient is checked before any is decremented; the summed
// ingredient cost is received into the finished good for targetQty units.
func (e *Engine) ConsumeRecipe(ctx context.Context, finishedID int64, targetQty decimal.Decimal, source string) (MixResult, error) {
	if !targetQty.IsPositive() {
		return MixResult{}, shared.Invalid("mix quantity must be positive")
	}
	recipe, err := e.store.GetRecipe(ctx, finishedID)
	if err != nil {
		return MixResult{}, err
	}
	if len(recipe) == 0 {
		return MixResult{}, fmt.Errorf("recipe for product %d: %w", finishedID, shared.ErrNotFound)
	}
	required := make(map[int64]decimal.Decimal, len(recipe))
	ids := []int64{finishedID}
	for _, line := range recipe {
		if line.IngredientProductID == finishedID {
			return MixResult{}, shared.Invalid("product %d lists itself as an ingredient", finishedID)
		}
		if _, ok := required[line.IngredientProductID]; !ok {
			ids = append(ids, line.IngredientProductID)
		}
		required[line.IngredientProductID] = required[line.IngredientProductID].Add(shared.Qty(line.QtyPerUnit.Mul(targetQty)))
	}
	if err := e.Lock(ctx, ids...); err != nil {
		return MixResult{}, err
	}
	ingredients := ids[1:]
	sort.Slice(ingredients, func(i, j int) bool { return ingredients[i] < ingredients[j] })
	for _, id := range ingredients {
		p := e.locked[id]
		if p.QuantityOnHand.LessThan(required[id]) {
			return MixResult{}, shared.InsufficientStock(p.Name, required[id], p.QuantityOnHand)
		}
	}
	result := MixResult{FinishedProductID: finishedID, TargetQty: targetQty, AbsorbedCost: decimal.Zero}
	for _, id := range ingredients {
		qty := required[id]
		if qty.IsZero() {
			continue
		}
		unitCost := e.locked[id].CostPrice
		cost, err := e.Consume(ctx, id, qty, source)
		if err != nil {
			return MixResult{}, err
		}
		result.AbsorbedCost = result.AbsorbedCost.Add(cost)
		result.Consumed = append(result.Consumed, ConsumedLine{ProductID: id, Qty: qty, UnitCost: unitCost, Cost: cost})
	}
	result.UnitCost = shared.Cost(result.AbsorbedCost.Div(targetQty))
	newWAC, err := e.receiveValue(ctx, finishedID, targetQty, result.AbsorbedCost, result.UnitCost, source)
	if err != nil {
		return MixResult{}, err
	}
	result.NewCostPrice = newWAC
	return result, nil
}

func (e *Engine) save(ctx context.Context, p Product, movement Movement) error {
	now := e.now().UTC()
	p.UpdatedAt = now
	if err := e.store.SaveProduct(ctx, p); err != nil {
		return err
	}
	movement.BalanceQty = p.QuantityOnHand
	movement.BalanceCost = p.CostPrice
	movement.PostedAt = now
	if err := e.store.InsertMovement(ctx, movement); err != nil {
		return err
	}
	e.locked[p.ID] = p
	return nil
}
