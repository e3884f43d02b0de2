package treasury

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes safe balance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs treasury handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers treasury routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/safes", h.handleList)
	r.Get("/safes/{id}", h.handleSafe)
	r.Get("/safes/{id}/ledger", h.handleLedger)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	unitID, _ := strconv.ParseInt(r.URL.Query().Get("business_unit_id"), 10, 64)
	safes, err := h.service.ListSafes(r.Context(), unitID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"safes": safes})
}

func (h *Handler) handleSafe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Invalid("safe id"))
		return
	}
	safe, err := h.service.GetSafe(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, safe)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Invalid("safe id"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.CashLedger(r.Context(), EntryFilter{SafeID: id, Limit: limit})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"safe_id": id, "entries": entries})
}
