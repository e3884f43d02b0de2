package operations

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func (g *memGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = map[string]string{}
	}
	if _, ok := g.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	g.keys[key] = module
	return nil
}

func (g *memGuard) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

type noDocs struct{}

func (noDocs) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderResult, error) {
	return PurchaseOrderResult{}, shared.NotFound("purchase order", id)
}

func (noDocs) GetSale(ctx context.Context, id int64) (Sale, []SaleItem, error) {
	return Sale{}, nil, shared.NotFound("sale", id)
}

func newTestRouter(t *testing.T) (*fixture, *memGuard, http.Handler) {
	t.Helper()
	f := newFixture(t)
	guard := &memGuard{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, noDocs{}, guard, 0)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return f, guard, r
}

func post(router http.Handler, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerTransferIsIdempotent(t *testing.T) {
	f, _, router := newTestRouter(t)
	body := `{"from_safe_id":1,"to_safe_id":2,"amount":"300"}`

	rec := post(router, "/cash-transfers", body, "till-close-42")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Transfer struct {
			ID     int64  `json:"id"`
			Amount string `json:"amount"`
		} `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Positive(t, res.Transfer.ID)

	rec = post(router, "/cash-transfers", body, "till-close-42")
	require.Equal(t, http.StatusConflict, rec.Code)

	st := f.db.snapshot()
	requireDec(t, "700", st.safes[1].CurrentBalance)
	require.Len(t, st.transfers, 1)
}

func TestHandlerReleasesKeyOnFailure(t *testing.T) {
	f, guard, router := newTestRouter(t)
	body := `{"from_safe_id":2,"to_safe_id":1,"amount":"250"}`

	rec := post(router, "/cash-transfers", body, "retry-me")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Safe B")
	require.Empty(t, guard.keys)

	f.db.addSafe(2, 1, "Safe B", "400")
	rec = post(router, "/cash-transfers", body, "retry-me")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerRejectsInvalidCommands(t *testing.T) {
	f, guard, router := newTestRouter(t)

	rec := post(router, "/cash-transfers", `{"from_safe_id":1,"to_safe_id":1,"amount":"10"}`, "k1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, guard.keys)

	rec = post(router, "/sales", `{"business_unit_id":1,"payment_method":"CHEQUE","lines":[{"product_id":10,"quantity":"1"}]}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(router, "/cash-transfers", `{"from_safe_id":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Empty(t, f.db.snapshot().transfers)
}

func TestHandlerReceiptTakesOrderFromPath(t *testing.T) {
	f, _, router := newTestRouter(t)
	po := createOrder(t, f, "10", "7")

	body := `{"lines":[{"po_line_id":` + jsonInt(po.Lines[0].ID) + `,"quantity":"10"}]}`
	rec := post(router, "/purchase-orders/"+jsonInt(po.Order.ID)+"/receipts", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, POStatusReceived, f.db.snapshot().orders[po.Order.ID].Status)

	rec = post(router, "/purchase-orders/"+jsonInt(po.Order.ID)+"/cancel", "", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerGetUnknownSale(t *testing.T) {
	_, _, router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
