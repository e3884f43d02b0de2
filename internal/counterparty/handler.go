package counterparty

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes counterparty balance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs counterparty handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers counterparty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{id}", h.handleCustomer)
	r.Get("/customers/{id}/outstanding", h.handleCustomerOutstanding)
	r.Get("/suppliers/{id}", h.handleSupplier)
	r.Get("/suppliers/{id}/outstanding", h.handleSupplierOutstanding)
	r.Get("/receivables/aging", h.handleAging)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid("id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) handleCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	c, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) handleCustomerOutstanding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sales, err := h.service.OutstandingSales(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": id, "sales": sales})
}

func (h *Handler) handleSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	s, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) handleSupplierOutstanding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	orders, err := h.service.OutstandingOrders(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"supplier_id": id, "purchase_orders": orders})
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	var asOf time.Time
	if v := q.Get("as_of"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = t
	}
	bucket, err := h.service.ReceivableAging(r.Context(), customerID, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"aging": bucket, "total": bucket.Total()})
}
