package operations

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/counterparty"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/treasury"
)

var errInjected = errors.New("injected failure")

// memState is the whole database. A unit of work runs against a clone that
// replaces the committed state only on success.
type memState struct {
	nextID int64

	units     map[int64]BusinessUnit
	products  map[int64]inventory.Product
	recipes   map[int64][]inventory.RecipeLine
	movements []inventory.Movement

	safes map[int64]treasury.Safe
	cash  []treasury.Entry

	customers map[int64]counterparty.Customer
	suppliers map[int64]counterparty.Supplier

	sales     map[int64]Sale
	saleItems []SaleItem

	orders       map[int64]PurchaseOrder
	orderLines   map[int64]POLine
	receipts     []Receipt
	receiptLines []ReceiptLine

	transfers      []CashTransfer
	expenses       []Expense
	scrapBuys      []ScrapPurchase
	scrapBuyLines  []ScrapPurchaseLine
	scrapSales     []ScrapSale
	scrapSaleLines []ScrapSaleLine
	mixes          map[int64]MixBatch

	customerPayments []CustomerPayment
	supplierPayments []SupplierPayment
	allocations      int

	stockTakes     map[int64]StockTake
	stockTakeLines []StockTakeLine

	employees map[int64]Employee
	loans     map[int64]StaffLoan
	runs      map[int64]PayrollRun
	payslips  []Payslip

	internal      map[int64]InternalTransfer
	internalLines []InternalTransferLine

	entries []ledger.Entry
}

func newMemState() *memState {
	return &memState{
		nextID:     100,
		units:      map[int64]BusinessUnit{},
		products:   map[int64]inventory.Product{},
		recipes:    map[int64][]inventory.RecipeLine{},
		safes:      map[int64]treasury.Safe{},
		customers:  map[int64]counterparty.Customer{},
		suppliers:  map[int64]counterparty.Supplier{},
		sales:      map[int64]Sale{},
		orders:     map[int64]PurchaseOrder{},
		orderLines: map[int64]POLine{},
		mixes:      map[int64]MixBatch{},
		stockTakes: map[int64]StockTake{},
		employees:  map[int64]Employee{},
		loans:      map[int64]StaffLoan{},
		runs:       map[int64]PayrollRun{},
		internal:   map[int64]InternalTransfer{},
	}
}

func (s *memState) clone() *memState {
	c := *s
	c.units = maps.Clone(s.units)
	c.products = maps.Clone(s.products)
	c.recipes = maps.Clone(s.recipes)
	c.movements = slices.Clone(s.movements)
	c.safes = maps.Clone(s.safes)
	c.cash = slices.Clone(s.cash)
	c.customers = maps.Clone(s.customers)
	c.suppliers = maps.Clone(s.suppliers)
	c.sales = maps.Clone(s.sales)
	c.saleItems = slices.Clone(s.saleItems)
	c.orders = maps.Clone(s.orders)
	c.orderLines = maps.Clone(s.orderLines)
	c.receipts = slices.Clone(s.receipts)
	c.receiptLines = slices.Clone(s.receiptLines)
	c.transfers = slices.Clone(s.transfers)
	c.expenses = slices.Clone(s.expenses)
	c.scrapBuys = slices.Clone(s.scrapBuys)
	c.scrapBuyLines = slices.Clone(s.scrapBuyLines)
	c.scrapSales = slices.Clone(s.scrapSales)
	c.scrapSaleLines = slices.Clone(s.scrapSaleLines)
	c.mixes = maps.Clone(s.mixes)
	c.customerPayments = slices.Clone(s.customerPayments)
	c.supplierPayments = slices.Clone(s.supplierPayments)
	c.stockTakes = maps.Clone(s.stockTakes)
	c.stockTakeLines = slices.Clone(s.stockTakeLines)
	c.employees = maps.Clone(s.employees)
	c.loans = maps.Clone(s.loans)
	c.runs = maps.Clone(s.runs)
	c.payslips = slices.Clone(s.payslips)
	c.internal = maps.Clone(s.internal)
	c.internalLines = slices.Clone(s.internalLines)
	c.entries = slices.Clone(s.entries)
	return &c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memDB implements RepositoryPort. failOn names a store method that fails
// with errInjected.
type memDB struct {
	mu      sync.Mutex
	state   *memState
	failOn  string
	commits int
}

func newMemDB() *memDB {
	return &memDB{state: newMemState()}
}

func (db *memDB) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	work := db.state.clone()
	if err := fn(ctx, &memTx{st: work, db: db}); err != nil {
		return err
	}
	db.state = work
	db.commits++
	return nil
}

// snapshot returns the committed state.
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

type memTx struct {
	st *memState
	db *memDB
}

func (t *memTx) fail(method string) error {
	if t.db.failOn == method {
		return errInjected
	}
	return nil
}

func (t *memTx) Inventory() inventory.Store         { return memInventory{t} }
func (t *memTx) Treasury() treasury.Store           { return memTreasury{t} }
func (t *memTx) Counterparties() counterparty.Store { return memParties{t} }
func (t *memTx) Ledger() ledger.Store               { return memLedger{t} }

type memInventory struct{ t *memTx }

func (m memInventory) LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error) {
	out := make(map[int64]inventory.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m memInventory) GetRecipe(ctx context.Context, finishedProductID int64) ([]inventory.RecipeLine, error) {
	return m.t.st.recipes[finishedProductID], nil
}

func (m memInventory) SaveProduct(ctx context.Context, p inventory.Product) error {
	if err := m.t.fail("SaveProduct"); err != nil {
		return err
	}
	if _, ok := m.t.st.products[p.ID]; !ok {
		return shared.NotFound("product", p.ID)
	}
	m.t.st.products[p.ID] = p
	return nil
}

func (m memInventory) InsertMovement(ctx context.Context, mv inventory.Movement) error {
	mv.ID = m.t.st.id()
	m.t.st.movements = append(m.t.st.movements, mv)
	return nil
}

type memTreasury struct{ t *memTx }

func (m memTreasury) LockSafes(ctx context.Context, ids []int64) (map[int64]treasury.Safe, error) {
	out := make(map[int64]treasury.Safe, len(ids))
	for _, id := range ids {
		if s, ok := m.t.st.safes[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m memTreasury) SaveBalance(ctx context.Context, safe treasury.Safe) error {
	m.t.st.safes[safe.ID] = safe
	return nil
}

func (m memTreasury) InsertEntry(ctx context.Context, e treasury.Entry) (int64, error) {
	if err := m.t.fail("InsertCashEntry"); err != nil {
		return 0, err
	}
	e.ID = m.t.st.id()
	m.t.st.cash = append(m.t.st.cash, e)
	return e.ID, nil
}

type memParties struct{ t *memTx }

func (m memParties) LockCustomer(ctx context.Context, id int64) (counterparty.Customer, error) {
	c, ok := m.t.st.customers[id]
	if !ok {
		return counterparty.Customer{}, shared.NotFound("customer", id)
	}
	return c, nil
}

func (m memParties) LockReceivables(ctx context.Context, customerID int64, saleIDs []int64) (map[int64]counterparty.Receivable, error) {
	out := map[int64]counterparty.Receivable{}
	for _, id := range saleIDs {
		s, ok := m.t.st.sales[id]
		if !ok || s.CustomerID == nil || *s.CustomerID != customerID {
			continue
		}
		out[id] = counterparty.Receivable{SaleID: s.ID, CustomerID: customerID, Total: s.TotalAmount, Paid: s.AmountPaid, Status: s.PaymentStatus, CreatedAt: s.CreatedAt}
	}
	return out, nil
}

func (m memParties) SaveReceivable(ctx context.Context, r counterparty.Receivable) error {
	s := m.t.st.sales[r.SaleID]
	s.AmountPaid = r.Paid
	s.PaymentStatus = r.Status
	m.t.st.sales[r.SaleID] = s
	return nil
}

func (m memParties) OutstandingReceivables(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, s := range m.t.st.sales {
		if s.CustomerID != nil && *s.CustomerID == customerID && s.PaymentStatus != counterparty.StatusPaid {
			total = total.Add(s.TotalAmount.Sub(s.AmountPaid))
		}
	}
	return total, nil
}

func (m memParties) SaveCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error {
	c := m.t.st.customers[customerID]
	c.AccountBalance = balance
	m.t.st.customers[customerID] = c
	return nil
}

func (m memParties) LockSupplier(ctx context.Context, id int64) (counterparty.Supplier, error) {
	s, ok := m.t.st.suppliers[id]
	if !ok {
		return counterparty.Supplier{}, shared.NotFound("supplier", id)
	}
	return s, nil
}

func (m memParties) LockPayables(ctx context.Context, supplierID int64, orderIDs []int64) (map[int64]counterparty.Payable, error) {
	out := map[int64]counterparty.Payable{}
	for _, id := range orderIDs {
		po, ok := m.t.st.orders[id]
		if !ok || po.SupplierID != supplierID || po.Status == POStatusCancelled {
			continue
		}
		out[id] = counterparty.Payable{OrderID: po.ID, SupplierID: supplierID, AmountDue: po.AmountDue, AmountPaid: po.AmountPaid, CreatedAt: po.CreatedAt}
	}
	return out, nil
}

func (m memParties) SavePayable(ctx context.Context, p counterparty.Payable) error {
	po := m.t.st.orders[p.OrderID]
	po.AmountPaid = p.AmountPaid
	m.t.st.orders[p.OrderID] = po
	return nil
}

func (m memParties) OutstandingPayables(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, po := range m.t.st.orders {
		if po.SupplierID == supplierID && po.Status != POStatusCancelled {
			total = total.Add(po.AmountDue.Sub(po.AmountPaid))
		}
	}
	return total, nil
}

func (m memParties) SaveSupplierBalance(ctx context.Context, supplierID int64, balance decimal.Decimal) error {
	s := m.t.st.suppliers[supplierID]
	s.AccountBalance = balance
	m.t.st.suppliers[supplierID] = s
	return nil
}

type memLedger struct{ t *memTx }

func (m memLedger) InsertEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	if err := m.t.fail("InsertLedgerEntry"); err != nil {
		return 0, err
	}
	e.ID = m.t.st.id()
	m.t.st.entries = append(m.t.st.entries, e)
	return e.ID, nil
}

func (t *memTx) GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error) {
	bu, ok := t.st.units[id]
	if !ok {
		return BusinessUnit{}, shared.NotFound("business unit", id)
	}
	return bu, nil
}

func (t *memTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	if sale.CustomerID != nil {
		if _, ok := t.st.customers[*sale.CustomerID]; !ok {
			return 0, shared.NotFound("customer", *sale.CustomerID)
		}
	}
	sale.ID = t.st.id()
	t.st.sales[sale.ID] = sale
	return sale.ID, nil
}

func (t *memTx) InsertSaleItem(ctx context.Context, item SaleItem) (int64, error) {
	item.ID = t.st.id()
	t.st.saleItems = append(t.st.saleItems, item)
	return item.ID, nil
}

func (t *memTx) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	po.ID = t.st.id()
	t.st.orders[po.ID] = po
	return po.ID, nil
}

func (t *memTx) InsertPOLine(ctx context.Context, line POLine) (int64, error) {
	line.ID = t.st.id()
	t.st.orderLines[line.ID] = line
	return line.ID, nil
}

func (t *memTx) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, ok := t.st.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, shared.NotFound("purchase order", id)
	}
	var lines []POLine
	for _, l := range t.st.orderLines {
		if l.PurchaseOrderID == id {
			lines = append(lines, l)
		}
	}
	slices.SortFunc(lines, func(a, b POLine) int { return int(a.ID - b.ID) })
	return po, lines, nil
}

func (t *memTx) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	t.st.orders[po.ID] = po
	return nil
}

func (t *memTx) UpdatePOLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	l := t.st.orderLines[lineID]
	l.QuantityReceived = received
	t.st.orderLines[lineID] = l
	return nil
}

func (t *memTx) InsertReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	receipt.ID = t.st.id()
	t.st.receipts = append(t.st.receipts, receipt)
	return receipt.ID, nil
}

func (t *memTx) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	t.st.receiptLines = append(t.st.receiptLines, line)
	return nil
}

func (t *memTx) InsertCashTransfer(ctx context.Context, transfer CashTransfer) (int64, error) {
	transfer.ID = t.st.id()
	t.st.transfers = append(t.st.transfers, transfer)
	return transfer.ID, nil
}

func (t *memTx) InsertExpense(ctx context.Context, expense Expense) (int64, error) {
	expense.ID = t.st.id()
	t.st.expenses = append(t.st.expenses, expense)
	return expense.ID, nil
}

func (t *memTx) InsertScrapPurchase(ctx context.Context, purchase ScrapPurchase) (int64, error) {
	purchase.ID = t.st.id()
	t.st.scrapBuys = append(t.st.scrapBuys, purchase)
	return purchase.ID, nil
}

func (t *memTx) InsertScrapPurchaseLine(ctx context.Context, line ScrapPurchaseLine) error {
	t.st.scrapBuyLines = append(t.st.scrapBuyLines, line)
	return nil
}

func (t *memTx) InsertScrapSale(ctx context.Context, sale ScrapSale) (int64, error) {
	sale.ID = t.st.id()
	t.st.scrapSales = append(t.st.scrapSales, sale)
	return sale.ID, nil
}

func (t *memTx) InsertScrapSaleLine(ctx context.Context, line ScrapSaleLine) error {
	t.st.scrapSaleLines = append(t.st.scrapSaleLines, line)
	return nil
}

func (t *memTx) InsertMixBatch(ctx context.Context, batch MixBatch) (int64, error) {
	batch.ID = t.st.id()
	t.st.mixes[batch.ID] = batch
	return batch.ID, nil
}

func (t *memTx) UpdateMixBatch(ctx context.Context, batch MixBatch) error {
	t.st.mixes[batch.ID] = batch
	return nil
}

func (t *memTx) InsertCustomerPayment(ctx context.Context, payment CustomerPayment) (int64, error) {
	payment.ID = t.st.id()
	t.st.customerPayments = append(t.st.customerPayments, payment)
	return payment.ID, nil
}

func (t *memTx) InsertCustomerAllocation(ctx context.Context, paymentID, saleID int64, amount decimal.Decimal) error {
	t.st.allocations++
	return nil
}

func (t *memTx) InsertSupplierPayment(ctx context.Context, payment SupplierPayment) (int64, error) {
	payment.ID = t.st.id()
	t.st.supplierPayments = append(t.st.supplierPayments, payment)
	return payment.ID, nil
}

func (t *memTx) InsertSupplierAllocation(ctx context.Context, paymentID, orderID int64, amount decimal.Decimal) error {
	t.st.allocations++
	return nil
}

func (t *memTx) InsertStockTake(ctx context.Context, take StockTake) (int64, error) {
	take.ID = t.st.id()
	t.st.stockTakes[take.ID] = take
	return take.ID, nil
}

func (t *memTx) InsertStockTakeLine(ctx context.Context, line StockTakeLine) error {
	t.st.stockTakeLines = append(t.st.stockTakeLines, line)
	return nil
}

func (t *memTx) UpdateStockTakeTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	take := t.st.stockTakes[id]
	take.TotalVariance = total
	t.st.stockTakes[id] = take
	return nil
}

func (t *memTx) LockEmployees(ctx context.Context, ids []int64) (map[int64]Employee, error) {
	out := map[int64]Employee{}
	for _, id := range ids {
		if e, ok := t.st.employees[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (t *memTx) LockActiveLoans(ctx context.Context, employeeIDs []int64) (map[int64]StaffLoan, error) {
	out := map[int64]StaffLoan{}
	for _, l := range t.st.loans {
		if l.IsActive && slices.Contains(employeeIDs, l.EmployeeID) {
			out[l.EmployeeID] = l
		}
	}
	return out, nil
}

func (t *memTx) InsertStaffLoan(ctx context.Context, loan StaffLoan) (int64, error) {
	loan.ID = t.st.id()
	t.st.loans[loan.ID] = loan
	return loan.ID, nil
}

func (t *memTx) UpdateStaffLoan(ctx context.Context, loan StaffLoan) error {
	t.st.loans[loan.ID] = loan
	return nil
}

func (t *memTx) InsertPayrollRun(ctx context.Context, run PayrollRun) (int64, error) {
	run.ID = t.st.id()
	t.st.runs[run.ID] = run
	return run.ID, nil
}

func (t *memTx) InsertPayslip(ctx context.Context, slip Payslip) (int64, error) {
	if err := t.fail("InsertPayslip"); err != nil {
		return 0, err
	}
	slip.ID = t.st.id()
	t.st.payslips = append(t.st.payslips, slip)
	return slip.ID, nil
}

func (t *memTx) UpdatePayrollRunTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	run := t.st.runs[id]
	run.TotalPaid = total
	t.st.runs[id] = run
	return nil
}

func (t *memTx) InsertInternalTransfer(ctx context.Context, transfer InternalTransfer) (int64, error) {
	transfer.ID = t.st.id()
	t.st.internal[transfer.ID] = transfer
	return transfer.ID, nil
}

func (t *memTx) InsertInternalTransferLine(ctx context.Context, line InternalTransferLine) error {
	t.st.internalLines = append(t.st.internalLines, line)
	return nil
}

func (t *memTx) UpdateInternalTransfer(ctx context.Context, transfer InternalTransfer) error {
	t.st.internal[transfer.ID] = transfer
	return nil
}

// seeding helpers operate on the committed state directly.

func (db *memDB) addUnit(id int64, name, businessType string) {
	db.state.units[id] = BusinessUnit{ID: id, Name: name, BusinessType: businessType}
}

func (db *memDB) addProduct(id, unitID int64, name, qty, cost, price string) {
	db.state.products[id] = inventory.Product{
		ID: id, BusinessUnitID: unitID, Name: name,
		QuantityOnHand: d(qty), CostPrice: d(cost), SellingPrice: d(price),
	}
}

func (db *memDB) addSafe(id, unitID int64, name, balance string) {
	db.state.safes[id] = treasury.Safe{ID: id, BusinessUnitID: unitID, Name: name, CurrentBalance: d(balance), InitialBalance: d(balance), IsPhysicalCash: true}
}

func (db *memDB) addCustomer(id int64, name string) {
	db.state.customers[id] = counterparty.Customer{ID: id, Name: name, AccountBalance: decimal.Zero}
}

func (db *memDB) addSupplier(id int64, name string) {
	db.state.suppliers[id] = counterparty.Supplier{ID: id, Name: name, AccountBalance: decimal.Zero}
}

func (db *memDB) addEmployee(id, unitID int64, name, rate string) {
	db.state.employees[id] = Employee{ID: id, BusinessUnitID: unitID, Name: name, HourlyRate: d(rate), IsActive: true}
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string][]error
}

func (m *recordingMetrics) ObserveOperation(operation string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string][]error{}
	}
	m.outcomes[operation] = append(m.outcomes[operation], err)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}
