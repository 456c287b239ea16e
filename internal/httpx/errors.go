package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/observability"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

// Error is the JSON error envelope returned by the API.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: code, Message: sanitize(message, 512), Status: status}
}

func (e Error) WithDetails(details map[string]any) Error {
	e.Details = details
	return e
}

func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	for k, v := range e.Details {
		payload[k] = v
	}
	writeJSON(w, e.Status, payload)
}

// writeDomainError maps engine errors onto HTTP statuses. Anything it does
// not recognise is a store failure: the cause is logged, the client gets a
// generic message.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		short    *orders.InsufficientStockError
		notFound *orders.ProductNotFoundError
		final    *orders.NoFurtherStatusError
	)
	switch {
	case errors.As(err, &short):
		WriteError(ctx, w, NewError("insufficient_stock", err.Error(), http.StatusConflict).WithDetails(map[string]any{
			"productId": orders.FormatID(short.ProductID),
			"available": short.Available,
			"requested": short.Requested,
		}))
	case errors.As(err, &notFound):
		WriteError(ctx, w, NewError("product_not_found", err.Error(), http.StatusNotFound).WithDetails(map[string]any{
			"productId": orders.FormatID(notFound.ProductID),
		}))
	case errors.As(err, &final):
		WriteError(ctx, w, NewError("no_further_status", err.Error(), http.StatusConflict))
	case errors.Is(err, orders.ErrInvalidInput):
		WriteError(ctx, w, NewError("invalid_input", err.Error(), http.StatusBadRequest))
	case errors.Is(err, orders.ErrInvalidStatusGraph):
		WriteError(ctx, w, NewError("invalid_status_graph", err.Error(), http.StatusBadRequest))
	case errors.Is(err, orders.ErrOrderNotFound):
		WriteError(ctx, w, NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, orders.ErrStatusNotFound):
		WriteError(ctx, w, NewError("status_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, orders.ErrInsufficientStock):
		WriteError(ctx, w, NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, orders.ErrNotCancellable):
		WriteError(ctx, w, NewError("not_cancellable", err.Error(), http.StatusConflict))
	case errors.Is(err, orders.ErrForbidden):
		WriteError(ctx, w, NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, redisx.ErrIdempotencyInFlight):
		WriteError(ctx, w, NewError("idempotency_in_progress", err.Error(), http.StatusConflict))
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(ctx, w, NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		observability.FromContext(ctx).Error("request failed", zap.Error(err))
		WriteError(ctx, w, NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
