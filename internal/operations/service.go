package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

// RepositoryPort opens units of work.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes every store bound to one open transaction.
type TxRepository interface {
	Inventory() inventory.Store
	Treasury() treasury.Store
	Counterparties() counterparty.Store
	Ledger() ledger.Store
	DocumentStore
}

// DocumentStore persists operation documents.
type DocumentStore interface {
	GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error)

	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleItem(ctx context.Context, item SaleItem) (int64, error)

	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) (int64, error)
	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	UpdatePOLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error
	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line ReceiptLine) error

	InsertCashTransfer(ctx context.Context, transfer CashTransfer) (int64, error)
	InsertExpense(ctx context.Context, expense Expense) (int64, error)

	InsertScrapPurchase(ctx context.Context, purchase ScrapPurchase) (int64, error)
	InsertScrapPurchaseLine(ctx context.Context, line ScrapPurchaseLine) error
	InsertScrapSale(ctx context.Context, sale ScrapSale) (int64, error)
	InsertScrapSaleLine(ctx context.Context, line ScrapSaleLine) error

	InsertMixBatch(ctx context.Context, batch MixBatch) (int64, error)
	UpdateMixBatch(ctx context.Context, batch MixBatch) error

	InsertCustomerPayment(ctx context.Context, payment CustomerPayment) (int64, error)
	InsertCustomerAllocation(ctx context.Context, paymentID, saleID int64, amount decimal.Decimal) error
	InsertSupplierPayment(ctx context.Context, payment SupplierPayment) (int64, error)
	InsertSupplierAllocation(ctx context.Context, paymentID, orderID int64, amount decimal.Decimal) error

	InsertStockTake(ctx context.Context, take StockTake) (int64, error)
	InsertStockTakeLine(ctx context.Context, line StockTakeLine) error
	UpdateStockTakeTotal(ctx context.Context, id int64, total decimal.Decimal) error

	LockEmployees(ctx context.Context, ids []int64) (map[int64]Employee, error)
	LockActiveLoans(ctx context.Context, employeeIDs []int64) (map[int64]StaffLoan, error)
	InsertStaffLoan(ctx context.Context, loan StaffLoan) (int64, error)
	UpdateStaffLoan(ctx context.Context, loan StaffLoan) error
	InsertPayrollRun(ctx context.Context, run PayrollRun) (int64, error)
	InsertPayslip(ctx context.Context, slip Payslip) (int64, error)
	UpdatePayrollRunTotal(ctx context.Context, id int64, total decimal.Decimal) error

	InsertInternalTransfer(ctx context.Context, transfer InternalTransfer) (int64, error)
	InsertInternalTransferLine(ctx context.Context, line InternalTransferLine) error
	UpdateInternalTransfer(ctx context.Context, transfer InternalTransfer) error
}

// AuditPort records committed operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached read projections after a commit.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	ObserveOperation(operation string, err error, duration time.Duration)
}

// Service runs the operation catalogue. Every exported operation is one
// transaction: on any error nothing it did is visible.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	reports ReportInvalidator
	metrics MetricsRecorder
	logger  *slog.Logger
	vatRate decimal.Decimal
	now     func() time.Time
}

// NewService constructs the coordinator. audit, reports and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, reports ReportInvalidator, metrics MetricsRecorder, logger *slog.Logger, vatRate decimal.Decimal) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, reports: reports, metrics: metrics, logger: logger, vatRate: vatRate, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// unit is the per-transaction toolset handed to each operation.
type unit struct {
	tx      TxRepository
	stock   *inventory.Engine
	cash    *treasury.Manager
	parties *counterparty.Tracker
	ledger  *ledger.Writer
	actorID int64
	now     time.Time
}

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context, *unit) error) error {
	start := time.Now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u := &unit{
			tx:      tx,
			stock:   inventory.NewEngine(tx.Inventory()),
			cash:    treasury.NewManager(tx.Treasury()),
			parties: counterparty.NewTracker(tx.Counterparties()),
			ledger:  ledger.NewWriter(tx.Ledger()),
			actorID: shared.ActorFromContext(ctx),
			now:     s.now().UTC(),
		}
		u.stock.WithNow(s.now)
		u.cash.WithNow(s.now)
		u.ledger.WithNow(s.now)
		return fn(ctx, u)
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("report cache invalidation failed", slog.String("operation", operation), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// appendEntry writes a ledger entry only when amount is positive.
func (u *unit) appendEntry(ctx context.Context, unitID int64, typ ledger.EntryType, amount decimal.Decimal, description, source string) (*ledger.Entry, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	e, err := u.ledger.Append(ctx, ledger.Entry{
		BusinessUnitID:  unitID,
		Type:            typ,
		Amount:          amount,
		Description:     description,
		SourceReference: source,
		ActorID:         u.actorID,
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// requireEntry is appendEntry for operations that must always leave a ledger entry.
func (u *unit) requireEntry(ctx context.Context, unitID int64, typ ledger.EntryType, amount decimal.Decimal, description, source string) (ledger.Entry, error) {
	e, err := u.appendEntry(ctx, unitID, typ, amount, description, source)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e == nil {
		return ledger.Entry{}, shared.Invalid("%s amount rounds to zero", typ)
	}
	return *e, nil
}

// ownedProduct returns the locked product and checks it belongs to the business unit.
func (u *unit) ownedProduct(ctx context.Context, productID, businessUnitID int64) (inventory.Product, error) {
	p, err := u.stock.Product(ctx, productID)
	if err != nil {
		return inventory.Product{}, err
	}
	if p.BusinessUnitID != businessUnitID {
		return inventory.Product{}, shared.Invalid("product %d does not belong to business unit %d", productID, businessUnitID)
	}
	return p, nil
}

func positive(name string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return shared.Invalid("%s must be positive", name)
	}
	return nil
}

// positiveMoney rejects amounts that vanish once rounded to cents.
func positiveMoney(name string, v decimal.Decimal) error {
	if !shared.Money(v).IsPositive() {
		return shared.Invalid("%s must be at least 0.01", name)
	}
	return nil
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
