package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes read-only inventory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}", h.handleProduct)
	r.Get("/products/{id}/stock-card", h.handleStockCard)
	r.Get("/valuation", h.handleValuation)
}

type productResponse struct {
	ID             int64           `json:"id"`
	BusinessUnitID int64           `json:"business_unit_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	StockValue     decimal.Decimal `json:"stock_value"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:             p.ID,
		BusinessUnitID: p.BusinessUnitID,
		Name:           p.Name,
		Unit:           p.Unit,
		QuantityOnHand: p.QuantityOnHand,
		CostPrice:      p.CostPrice,
		SellingPrice:   p.SellingPrice,
		StockValue:     p.StockValue(),
	}
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Invalid("product id"))
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Invalid("product id"))
		return
	}
	filter := StockCardFilter{ProductID: id, Limit: 500}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse(time.DateOnly, v); err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("from must be YYYY-MM-DD"))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("to must be YYYY-MM-DD"))
			return
		}
		// Set to end of day
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Debug("stock card", slog.Int64("product_id", id), slog.Int("count", len(entries)))
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "entries": entries})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	var unitID int64
	if v := r.URL.Query().Get("business_unit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("business_unit_id"))
			return
		}
		unitID = id
	}
	val, err := h.service.Valuate(r.Context(), unitID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	products := make([]productResponse, 0, len(val.Products))
	for _, p := range val.Products {
		products = append(products, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"business_unit_id": val.BusinessUnitID,
		"total_value":      val.TotalValue,
		"products":         products,
	})
}
