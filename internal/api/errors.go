package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/trade-credit/internal/database"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func badRequest(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: message, Field: field})
}

// writeError maps a service error onto a status and a stable error code.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	var (
		verr     *database.ValidationError
		notFound *database.NotFoundError
		stock    *database.InsufficientStockError
		credit   *database.CreditLimitExceededError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: verr.Error(), Field: verr.Field})
	case errors.Is(err, database.ErrNoFieldsToUpdate):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "no_fields_to_update", Message: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: notFound.Kind + "_not_found", Message: err.Error(), Details: notFound})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "insufficient_stock", Message: err.Error(), Details: stock})
	case errors.As(err, &credit):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "credit_limit_exceeded", Message: err.Error(), Details: credit})
	case errors.Is(err, database.ErrDuplicateSKU):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "duplicate_sku", Message: err.Error()})
	case errors.Is(err, database.ErrOrderNotOpen):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "order_not_open", Message: err.Error()})
	case errors.Is(err, database.ErrTransient), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily_unavailable", Message: "the request may be retried"})
	default:
		log.WithError(err).Error("unhandled error")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
	}
}
