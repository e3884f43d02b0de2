// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ErrMalformedBody indicates an undecodable request body.
var ErrMalformedBody = errors.New("malformed request body")

// insufficientProblem extends ProblemDetail with the shortfall.
type insufficientProblem struct {
	ProblemDetail
	Resource  string `json:"resource"`
	Required  string `json:"required"`
	Available string `json:"available"`
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unexpected errors are logged and answered with a generic body.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var insufficient *shared.InsufficientError
	switch {
	case errors.As(err, &insufficient):
		JSON(w, http.StatusConflict, insufficientProblem{
			ProblemDetail: ProblemDetail{Type: "about:blank", Title: "Insufficient", Status: http.StatusConflict, Detail: err.Error()},
			Resource:      insufficient.Resource,
			Required:      insufficient.Required.String(),
			Available:     insufficient.Available.String(),
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrMalformedBody):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
