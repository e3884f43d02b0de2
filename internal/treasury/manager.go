package treasury

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the transactional persistence used by Manager. LockSafes must hold
// exclusive row locks until the surrounding transaction ends.
type Store interface {
	LockSafes(ctx context.Context, ids []int64) (map[int64]Safe, error)
	SaveBalance(ctx context.Context, safe Safe) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Manager moves cash between safes within one unit of work. Create one per
// transaction.
type Manager struct {
	store  Store
	now    func() time.Time
	locked map[int64]Safe
}

// NewManager binds a manager to a transactional store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now, locked: make(map[int64]Safe)}
}

// WithNow overrides the clock for testing.
func (m *Manager) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Lock acquires row locks on the given safes in ascending id order.
func (m *Manager) Lock(ctx context.Context, ids ...int64) error {
	var missing []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return shared.Invalid("safe id required")
		}
		if _, ok := m.locked[id]; ok {
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
	rows, err := m.store.LockSafes(ctx, missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		safe, ok := rows[id]
		if !ok {
			return shared.NotFound("safe", id)
		}
		m.locked[id] = safe
	}
	return nil
}

// Safe returns the locked snapshot of a safe.
func (m *Manager) Safe(ctx context.Context, id int64) (Safe, error) {
	if err := m.Lock(ctx, id); err != nil {
		return Safe{}, err
	}
	return m.locked[id], nil
}

// Credit adds a positive amount to a safe.
func (m *Manager) Credit(ctx context.Context, p Posting) (Entry, error) {
	if err := validatePosting(p); err != nil {
		return Entry{}, err
	}
	safe, err := m.Safe(ctx, p.SafeID)
	if err != nil {
		return Entry{}, err
	}
	return m.post(ctx, safe, p, shared.Money(p.Amount))
}

// Debit withdraws a positive amount from a safe. It fails with an
// InsufficientError when the balance would go negative.
func (m *Manager) Debit(ctx context.Context, p Posting) (Entry, error) {
	if err := validatePosting(p); err != nil {
		return Entry{}, err
	}
	safe, err := m.Safe(ctx, p.SafeID)
	if err != nil {
		return Entry{}, err
	}
	amount := shared.Money(p.Amount)
	if safe.CurrentBalance.LessThan(amount) {
		return Entry{}, shared.InsufficientFunds(safe.Name, amount, safe.CurrentBalance)
	}
	return m.post(ctx, safe, p, amount.Neg())
}

// Transfer moves amount from one safe to another, writing a TRANSFER_OUT and a
// TRANSFER_IN entry.
func (m *Manager) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal, description string, actorID int64) (TransferResult, error) {
	if fromID == toID {
		return TransferResult{}, shared.Invalid("source and destination safe must differ")
	}
	if !shared.Money(amount).IsPositive() {
		return TransferResult{}, shared.Invalid("transfer amount must be at least 0.01")
	}
	if err := m.Lock(ctx, fromID, toID); err != nil {
		return TransferResult{}, err
	}
	out, err := m.Debit(ctx, Posting{SafeID: fromID, Amount: amount, Type: MovementTransferOut, Description: description, ActorID: actorID})
	if err != nil {
		return TransferResult{}, err
	}
	in, err := m.Credit(ctx, Posting{SafeID: toID, Amount: amount, Type: MovementTransferIn, Description: description, ActorID: actorID})
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		From:    m.locked[fromID],
		To:      m.locked[toID],
		Amount:  shared.Money(amount),
		Entries: []Entry{out, in},
	}, nil
}

func (m *Manager) post(ctx context.Context, safe Safe, p Posting, signed decimal.Decimal) (Entry, error) {
	now := m.now().UTC()
	safe.CurrentBalance = safe.CurrentBalance.Add(signed)
	safe.UpdatedAt = now
	if err := m.store.SaveBalance(ctx, safe); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		SafeID:       safe.ID,
		Type:         p.Type,
		Amount:       signed,
		Description:  p.Description,
		ActorID:      p.ActorID,
		SaleID:       p.SaleID,
		PaymentID:    p.PaymentID,
		ExpenseRef:   p.ExpenseRef,
		BalanceAfter: safe.CurrentBalance,
		CreatedAt:    now,
	}
	id, err := m.store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	m.locked[safe.ID] = safe
	return entry, nil
}

func validatePosting(p Posting) error {
	if !shared.Money(p.Amount).IsPositive() {
		return shared.Invalid("amount must be at least 0.01")
	}
	if !p.Type.Valid() {
		return shared.Invalid("unknown cash movement type %q", p.Type)
	}
	return nil
}
