package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/auth"
	"github.com/ariefcatur/go-order-lifecycle/internal/observability"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

const maxIdempotencyKeyLen = 128

// IdempotencyStore is satisfied by redisx.Idempotency.
type IdempotencyStore interface {
	Claim(ctx context.Context, userID int64, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, userID int64, key string, orderID int64) error
	Release(ctx context.Context, userID int64, key string) error
}

type OrdersHandler struct {
	Service     *orders.Service
	Idempotency IdempotencyStore // optional
	Timeout     time.Duration
}

type CreateOrderReq struct {
	OrderProducts []orders.LineRequest `json:"orderProducts"`
}

type CreateOrderResp struct {
	orders.View
	Idempotent bool `json:"idempotent"`
}

// Register mounts the order routes behind authn.
func (h *OrdersHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/advance-status", h.advanceOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	var body CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(r.Context(), w, NewError("invalid_json", "invalid json", http.StatusBadRequest))
		return
	}
	if len(body.OrderProducts) == 0 {
		WriteError(r.Context(), w, NewError("invalid_input", "orderProducts must contain at least one product", http.StatusBadRequest))
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		WriteError(r.Context(), w, NewError("invalid_input", "Idempotency-Key is too long", http.StatusBadRequest))
		return
	}

	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()
	logger := observability.FromContext(ctx)

	claimed := false
	if key != "" && h.Idempotency != nil {
		orderID, ok, err := h.Idempotency.Claim(ctx, req.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrIdempotencyInFlight):
			writeDomainError(ctx, w, err)
			return
		case err != nil:
			// Proceed without replay protection.
			logger.Warn("idempotency claim failed", zap.Error(err))
		case !ok:
			v, err := h.Service.GetOrder(ctx, req, orderID)
			if err != nil {
				writeDomainError(ctx, w, err)
				return
			}
			writeJSON(w, http.StatusOK, CreateOrderResp{View: v, Idempotent: true})
			return
		default:
			claimed = true
		}
	}

	v, err := h.Service.CreateOrder(ctx, req, body.OrderProducts)
	if err != nil {
		if claimed {
			if rerr := h.Idempotency.Release(context.WithoutCancel(ctx), req.UserID, key); rerr != nil {
				logger.Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		writeDomainError(ctx, w, err)
		return
	}
	if claimed {
		id, _ := orders.ParseID(v.ID)
		if err := h.Idempotency.Complete(context.WithoutCancel(ctx), req.UserID, key, id); err != nil {
			logger.Warn("idempotency complete failed", zap.String("order_id", v.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{View: v})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()

	list, err := h.Service.ListOrders(ctx, req)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.Service.GetOrder)
}

func (h *OrdersHandler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.Service.AdvanceOrder)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.Service.CancelOrder)
}

type orderOp func(ctx context.Context, req orders.Requester, id int64) (orders.View, error)

func (h *OrdersHandler) withOrder(w http.ResponseWriter, r *http.Request, op orderOp) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id, err := orders.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()

	v, err := op(ctx, req, id)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// requester converts the authenticated identity. The auth middleware runs
// first, so a missing identity is a wiring bug and reported as 401.
func requester(w http.ResponseWriter, r *http.Request) (orders.Requester, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(r.Context(), w, NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return orders.Requester{}, false
	}
	return orders.Requester{UserID: identity.UserID, IsAdmin: identity.IsAdmin}, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
