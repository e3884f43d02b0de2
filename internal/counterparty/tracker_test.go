package counterparty

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryStore struct {
	customers map[int64]Customer
	suppliers map[int64]Supplier
	sales     map[int64]Receivable
	orders    map[int64]Payable
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		customers: map[int64]Customer{},
		suppliers: map[int64]Supplier{},
		sales:     map[int64]Receivable{},
		orders:    map[int64]Payable{},
	}
}

func (s *memoryStore) LockCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, shared.NotFound("customer", id)
	}
	return c, nil
}

func (s *memoryStore) LockReceivables(ctx context.Context, customerID int64, ids []int64) (map[int64]Receivable, error) {
	out := map[int64]Receivable{}
	for _, id := range ids {
		if r, ok := s.sales[id]; ok && r.CustomerID == customerID {
			out[id] = r
		}
	}
	return out, nil
}

func (s *memoryStore) SaveReceivable(ctx context.Context, r Receivable) error {
	s.sales[r.SaleID] = r
	return nil
}

func (s *memoryStore) OutstandingReceivables(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, r := range s.sales {
		if r.CustomerID == customerID && r.Status != StatusPaid {
			sum = sum.Add(r.Outstanding())
		}
	}
	return sum, nil
}

func (s *memoryStore) SaveCustomerBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	c := s.customers[id]
	c.AccountBalance = balance
	s.customers[id] = c
	return nil
}

func (s *memoryStore) LockSupplier(ctx context.Context, id int64) (Supplier, error) {
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, shared.NotFound("supplier", id)
	}
	return sup, nil
}

func (s *memoryStore) LockPayables(ctx context.Context, supplierID int64, ids []int64) (map[int64]Payable, error) {
	out := map[int64]Payable{}
	for _, id := range ids {
		if p, ok := s.orders[id]; ok && p.SupplierID == supplierID {
			out[id] = p
		}
	}
	return out, nil
}

func (s *memoryStore) SavePayable(ctx context.Context, p Payable) error {
	s.orders[p.OrderID] = p
	return nil
}

func (s *memoryStore) OutstandingPayables(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range s.orders {
		if p.SupplierID == supplierID {
			sum = sum.Add(p.Outstanding())
		}
	}
	return sum, nil
}

func (s *memoryStore) SaveSupplierBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	sup := s.suppliers[id]
	sup.AccountBalance = balance
	s.suppliers[id] = sup
	return nil
}

func (s *memoryStore) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.LockCustomer(ctx, id)
}

func (s *memoryStore) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.LockSupplier(ctx, id)
}

func (s *memoryStore) ListOutstandingReceivables(ctx context.Context, customerID int64) ([]Receivable, error) {
	var out []Receivable
	for _, r := range s.sales {
		if (customerID == 0 || r.CustomerID == customerID) && r.Status != StatusPaid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) ListOutstandingPayables(ctx context.Context, supplierID int64) ([]Payable, error) {
	var out []Payable
	for _, p := range s.orders {
		if (supplierID == 0 || p.SupplierID == supplierID) && p.Outstanding().IsPositive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func onAccount(id, customerID int64, total string) Receivable {
	return Receivable{SaleID: id, CustomerID: customerID, Total: d(total), Paid: decimal.Zero, Status: StatusOnAccount}
}

func TestPartialAllocationRecomputesBalance(t *testing.T) {
	store := newMemoryStore()
	store.customers[1] = Customer{ID: 1, Name: "Acme"}
	store.sales[10] = onAccount(10, 1, "100")
	store.sales[11] = onAccount(11, 1, "30")
	tracker := NewTracker(store)
	ctx := context.Background()

	bal, err := tracker.IncreaseReceivable(ctx, 1, d("130"))
	require.NoError(t, err)
	require.True(t, bal.Equal(d("130")))

	res, err := tracker.ApplyPayment(ctx, 1, []Allocation{{DocumentID: 10, Amount: d("50")}})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, store.sales[10].Status)
	require.True(t, store.sales[10].Paid.Equal(d("50")))
	require.True(t, res.NewBalance.Equal(d("80")))
	require.True(t, store.customers[1].AccountBalance.Equal(d("80")))
}

func TestSettlingAllocationMarksPaid(t *testing.T) {
	store := newMemoryStore()
	store.customers[1] = Customer{ID: 1, Name: "Acme"}
	store.sales[10] = Receivable{SaleID: 10, CustomerID: 1, Total: d("100"), Paid: d("60"), Status: StatusPartiallyPaid}
	tracker := NewTracker(store)

	res, err := tracker.ApplyPayment(context.Background(), 1, []Allocation{{DocumentID: 10, Amount: d("40")}})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Allocations[0].Status)
	require.True(t, res.NewBalance.IsZero())

	_, err = tracker.ApplyPayment(context.Background(), 1, []Allocation{{DocumentID: 10, Amount: d("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAllocationToOtherCustomersSale(t *testing.T) {
	store := newMemoryStore()
	store.customers[1] = Customer{ID: 1, Name: "Acme"}
	store.customers[2] = Customer{ID: 2, Name: "Other"}
	store.sales[10] = onAccount(10, 2, "100")

	_, err := NewTracker(store).ApplyPayment(context.Background(), 1, []Allocation{{DocumentID: 10, Amount: d("10")}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, store.sales[10].Paid.IsZero())
}

func TestAllocationValidation(t *testing.T) {
	store := newMemoryStore()
	store.customers[1] = Customer{ID: 1}
	tracker := NewTracker(store)
	ctx := context.Background()

	_, err := tracker.ApplyPayment(ctx, 1, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = tracker.ApplyPayment(ctx, 1, []Allocation{{DocumentID: 1, Amount: d("-1")}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = tracker.ApplyPayment(ctx, 1, []Allocation{{DocumentID: 1, Amount: d("1")}, {DocumentID: 1, Amount: d("2")}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = tracker.ApplyPayment(ctx, 9, []Allocation{{DocumentID: 1, Amount: d("1")}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaleStatusMachineRejectsPaid(t *testing.T) {
	_, err := SaleStatusMachine.Fire(StatusPaid, TriggerPartPay)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSupplierPaymentMirrorsReceivables(t *testing.T) {
	store := newMemoryStore()
	store.suppliers[5] = Supplier{ID: 5, Name: "Metals Ltd"}
	store.orders[20] = Payable{OrderID: 20, SupplierID: 5, AmountDue: d("115"), AmountPaid: decimal.Zero}
	store.orders[21] = Payable{OrderID: 21, SupplierID: 5, AmountDue: d("57.50"), AmountPaid: decimal.Zero}
	tracker := NewTracker(store)
	ctx := context.Background()

	bal, err := tracker.IncreasePayable(ctx, 5, d("172.50"))
	require.NoError(t, err)
	require.True(t, bal.Equal(d("172.5")))

	res, err := tracker.ApplySupplierPayment(ctx, 5, []Allocation{{DocumentID: 20, Amount: d("100")}, {DocumentID: 21, Amount: d("57.50")}})
	require.NoError(t, err)
	require.True(t, res.Total.Equal(d("157.5")))
	require.True(t, store.suppliers[5].AccountBalance.Equal(d("15")))

	_, err = tracker.ApplySupplierPayment(ctx, 5, []Allocation{{DocumentID: 20, Amount: d("15.01")}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceivableAging(t *testing.T) {
	store := newMemoryStore()
	asOf := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	a := onAccount(1, 1, "100")
	a.CreatedAt = asOf
	b := onAccount(2, 1, "40")
	b.CreatedAt = asOf.AddDate(0, 0, -45)
	c := onAccount(3, 1, "25")
	c.Paid = d("5")
	c.Status = StatusPartiallyPaid
	c.CreatedAt = asOf.AddDate(0, 0, -200)
	store.sales[1], store.sales[2], store.sales[3] = a, b, c

	bucket, err := NewService(store).ReceivableAging(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.True(t, bucket.Current.Equal(d("100")))
	require.True(t, bucket.Bucket60.Equal(d("40")))
	require.True(t, bucket.Bucket120.Equal(d("20")))
	require.True(t, bucket.Total().Equal(d("160")))
}
