package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes ledger queries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.handleEntries)
	r.Get("/pl", h.handlePL)
}

type rangeQuery struct {
	businessUnitID int64
	from           time.Time
	to             time.Time
}

// parseRange reads business_unit_id, from and to (inclusive dates).
func parseRange(r *http.Request) (rangeQuery, error) {
	q := r.URL.Query()
	var out rangeQuery
	if v := q.Get("business_unit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return out, shared.Invalid("business_unit_id must be an integer")
		}
		out.businessUnitID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return out, shared.Invalid("from must be YYYY-MM-DD")
		}
		out.from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return out, shared.Invalid("to must be YYYY-MM-DD")
		}
		out.to = t.AddDate(0, 0, 1)
	}
	return out, nil
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	rq, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := Filter{BusinessUnitID: rq.businessUnitID, From: rq.from, To: rq.to}
	if v := r.URL.Query().Get("type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			filter.Types = append(filter.Types, EntryType(strings.ToUpper(strings.TrimSpace(t))))
		}
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handlePL(w http.ResponseWriter, r *http.Request) {
	rq, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if rq.from.IsZero() && rq.to.IsZero() {
		rq.from, rq.to = MonthBounds(time.Now())
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), rq.businessUnitID, rq.from, rq.to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}
