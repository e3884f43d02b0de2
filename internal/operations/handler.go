package operations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// IdempotencyGuard records processed Idempotency-Key headers.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DocumentReader serves committed documents.
type DocumentReader interface {
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderResult, error)
	GetSale(ctx context.Context, id int64) (Sale, []SaleItem, error)
}

// Handler exposes the operation catalogue as JSON commands.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	docs        DocumentReader
	idempotency IdempotencyGuard
	validator   *validator.Validate
	rateLimit   int
}

// NewHandler constructs the operations handler. idempotency may be nil; a
// non-positive rateLimit disables command rate limiting.
func NewHandler(logger *slog.Logger, service *Service, docs DocumentReader, idempotency IdempotencyGuard, rateLimit int) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		docs:        docs,
		idempotency: idempotency,
		validator:   validator.New(),
		rateLimit:   rateLimit,
	}
}

// MountRoutes registers operation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales/{id}", h.handleGetSale)
	r.Get("/purchase-orders/{id}", h.handleGetPurchaseOrder)
	r.Group(func(cr chi.Router) {
		if h.rateLimit > 0 {
			cr.Use(httprate.Limit(h.rateLimit, time.Minute,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "command rate limit exceeded")
				}),
			))
		}
		cr.Post("/sales", command(h, "process_sale", nil, h.service.ProcessSale))
		cr.Post("/purchase-orders", command(h, "create_purchase_order", nil, h.service.CreatePurchaseOrder))
		cr.Post("/purchase-orders/{id}/cancel", h.handleCancelPurchaseOrder)
		cr.Post("/purchase-orders/{id}/receipts", command(h, "receive_purchase_order", func(r *http.Request, cmd *ReceiveCommand) error {
			id, err := pathID(r)
			cmd.PurchaseOrderID = id
			return err
		}, h.service.ReceivePurchaseOrder))
		cr.Post("/cash-transfers", command(h, "transfer_cash", nil, h.service.TransferCash))
		cr.Post("/expenses", command(h, "record_expense", nil, h.service.RecordExpense))
		cr.Post("/scrap/purchases", command(h, "buy_scrap", nil, h.service.BuyScrap))
		cr.Post("/scrap/sales", command(h, "sell_scrap", nil, h.service.SellScrap))
		cr.Post("/mixes", command(h, "mix_product", nil, h.service.MixProduct))
		cr.Post("/customer-payments", command(h, "receive_customer_payment", nil, h.service.ReceiveCustomerPayment))
		cr.Post("/supplier-payments", command(h, "pay_supplier", nil, h.service.PaySupplier))
		cr.Post("/stock-takes", command(h, "record_stock_take", nil, h.service.RecordStockTake))
		cr.Post("/payroll-runs", command(h, "run_payroll", nil, h.service.RunPayroll))
		cr.Post("/staff-loans", command(h, "issue_staff_loan", nil, h.service.IssueStaffLoan))
		cr.Post("/internal-transfers", command(h, "transfer_internal", nil, h.service.TransferInternal))
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor > 0 {
		return "actor:" + strconv.FormatInt(actor, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// command decodes and validates a JSON command, guards it with the optional
// Idempotency-Key header and answers 201 with the operation result.
func command[C any, R any](h *Handler, operation string, prepare func(*http.Request, *C) error, exec func(context.Context, C) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd C
		if err := httpx.DecodeJSON(r, &cmd); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		if prepare != nil {
			if err := prepare(r, &cmd); err != nil {
				httpx.RespondError(w, h.logger, err)
				return
			}
		}
		if err := h.validate(cmd); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		key, err := h.claim(r, operation)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		res, err := exec(r.Context(), cmd)
		if err != nil {
			h.release(r.Context(), key)
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, res)
	}
}

func (h *Handler) validate(cmd any) error {
	if err := h.validator.Struct(cmd); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Namespace()+" failed "+fe.Tag())
			}
			return shared.Invalid("%s", strings.Join(fields, "; "))
		}
		return shared.Invalid("%s", err.Error())
	}
	return nil
}

// claim records the request's Idempotency-Key, returning the scoped key or ""
// when the header is absent.
func (h *Handler) claim(r *http.Request, operation string) (string, error) {
	clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if clientKey == "" || h.idempotency == nil {
		return "", nil
	}
	key := shared.IdempotencyKey(operation, clientKey)
	if err := h.idempotency.CheckAndInsert(r.Context(), key, operation); err != nil {
		return "", err
	}
	return key, nil
}

func (h *Handler) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.idempotency.Delete(ctx, key); err != nil {
		h.logger.Warn("idempotency key release failed", slog.Any("error", err))
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid("id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) handleCancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	key, err := h.claim(r, "cancel_purchase_order")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	po, err := h.service.CancelPurchaseOrder(r.Context(), id)
	if err != nil {
		h.release(r.Context(), key)
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sale, items, err := h.docs.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sale": sale, "items": items})
}

func (h *Handler) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	po, err := h.docs.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}
