package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

// InternalHandlers serve scheduler-triggered maintenance endpoints. The /internal group is
// protected by OIDC middleware configured on the router.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:cancel-stale", h.cancelStale)
}

func (h *InternalHandlers) cancelStale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	result, err := h.orders.CancelStale(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	cancelled := result.Cancelled
	if cancelled == nil {
		cancelled = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"failed":    result.Failed,
	})
}
