package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Jobs().Track("ledger:integrity").End(nil))

	require.Contains(t, scrape(t, metrics), `backoffice_jobs_total{job="ledger:integrity",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `backoffice_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `backoffice_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveOperationLabelsOutcome(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveOperation("transfer_cash", nil, 3*time.Millisecond)
	metrics.ObserveOperation("transfer_cash", shared.InsufficientFunds("Till A", decimal.NewFromInt(10), decimal.Zero), time.Millisecond)
	metrics.ObserveOperation("process_sale", shared.Invalid("sale requires at least one line"), time.Millisecond)

	body := scrape(t, metrics)
	require.Contains(t, body, `backoffice_operations_total{operation="transfer_cash",status="committed"} 1`)
	require.Contains(t, body, `backoffice_operations_total{operation="transfer_cash",status="insufficient"} 1`)
	require.Contains(t, body, `backoffice_operations_total{operation="process_sale",status="invalid"} 1`)
	require.Contains(t, body, `backoffice_operation_duration_seconds_count{operation="transfer_cash"} 2`)
}

func TestOperationStatus(t *testing.T) {
	require.Equal(t, "not_found", OperationStatus(shared.NotFound("safe", 9)))
	require.Equal(t, "invalid_state", OperationStatus(shared.ErrInvalidState))
	require.Equal(t, "insufficient", OperationStatus(shared.InsufficientStock("Hammer", decimal.NewFromInt(2), decimal.NewFromInt(1))))
	require.Equal(t, "error", OperationStatus(errors.New("connection reset")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveOperation("noop", nil, 0)
	require.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
