package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouterHealthz(t *testing.T) {
	router := NewRouter(RouterParams{Logger: testLogger(), Config: &Config{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRouterCORSPreflight(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: []string{"https://till.example"}}
	router := NewRouter(RouterParams{Logger: testLogger(), Config: cfg})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/operations/transfers", nil)
	req.Header.Set("Origin", "https://till.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "https://till.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestContext(t *testing.T) {
	var actor int64
	var requestID string
	handler := middleware.RequestID(RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = shared.ActorFromContext(r.Context())
		requestID = shared.RequestIDFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(ActorHeader, "42")
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, int64(42), actor)
	require.Equal(t, "req-1", requestID)
	require.Equal(t, "req-1", rec.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(ActorHeader, "not-a-number")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Zero(t, actor)
}
