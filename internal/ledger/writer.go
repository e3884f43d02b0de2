package ledger

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store persists ledger entries. Entries are append-only.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Writer appends entries inside one unit of work.
type Writer struct {
	store Store
	now   func() time.Time
}

// NewWriter binds a writer to a transactional store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// WithNow overrides the clock for testing.
func (w *Writer) WithNow(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// Append validates and writes one entry, returning it with its id.
func (w *Writer) Append(ctx context.Context, e Entry) (Entry, error) {
	if !e.Type.Valid() {
		return Entry{}, shared.Invalid("unknown ledger entry type %q", e.Type)
	}
	if e.BusinessUnitID <= 0 {
		return Entry{}, shared.Invalid("ledger entry requires a business unit")
	}
	if !e.Amount.IsPositive() {
		return Entry{}, shared.Invalid("ledger amount must be positive, got %s", e.Amount.String())
	}
	if e.SourceReference == "" {
		return Entry{}, shared.Invalid("ledger entry requires a source reference")
	}
	e.Amount = shared.Money(e.Amount)
	if e.ActorID == 0 {
		e.ActorID = shared.ActorFromContext(ctx)
	}
	e.CreatedAt = w.now().UTC()
	id, err := w.store.InsertEntry(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id
	return e, nil
}
