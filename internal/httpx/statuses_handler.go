package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type StatusesHandler struct {
	Service *orders.Service
	Timeout time.Duration
}

// Register mounts the status routes. Reads are public; patches need authn
// and an administrator.
func (h *StatusesHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/statuses", h.listStatuses)
	r.Get("/statuses/flow", h.statusFlow)
	r.Get("/statuses/{id}", h.getStatus)
	r.With(authn).Patch("/statuses/{id}", h.updateStatus)
}

func (h *StatusesHandler) listStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.ListStatuses())
}

func (h *StatusesHandler) statusFlow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.StatusFlow())
}

func (h *StatusesHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := statusID(w, r)
	if !ok {
		return
	}
	v, err := h.Service.GetStatus(id)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *StatusesHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := statusID(w, r)
	if !ok {
		return
	}
	var patch orders.StatusPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(r.Context(), w, NewError("invalid_json", "invalid json", http.StatusBadRequest))
		return
	}

	ctx, cancel := withTimeout(r.Context(), h.Timeout)
	defer cancel()

	v, err := h.Service.UpdateStatus(ctx, req, id, patch)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		WriteError(r.Context(), w, NewError("invalid_input", "invalid status id", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}
