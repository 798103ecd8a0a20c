package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/money"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

// CheckoutHandlers turn the signed-in shopper's cart into an order.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
	keyHeader   string
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency wraps POST /checkout with mw; header names the key header that is
// also forwarded to the payment provider.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler, header string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
		if header = strings.TrimSpace(header); header != "" {
			h.keyHeader = header
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:     authn,
		checkout:  checkout,
		keyHeader: "Idempotency-Key",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers POST / on the /checkout group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.Use(h.idempotency)
	}
	r.Post("/", h.placeOrder)
}

type checkoutResponse struct {
	Success        bool         `json:"success"`
	OrderID        string       `json:"orderId"`
	Status         string       `json:"status"`
	Total          int64        `json:"total"`
	TotalFormatted string       `json:"totalFormatted"`
	CheckoutURL    string       `json:"checkoutUrl,omitempty"`
	Order          orderPayload `json:"order"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeServiceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:         identity.UID,
		Email:          identity.Email,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(h.keyHeader)),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Success:        result.Success,
		OrderID:        result.OrderID,
		Status:         string(result.Status),
		Total:          result.TotalCents,
		TotalFormatted: money.BRL.Format(result.TotalCents),
		CheckoutURL:    result.CheckoutURL,
		Order:          buildOrderPayload(result.Order),
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Faça login para finalizar a compra.", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "Seu carrinho está vazio.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "Um dos produtos do carrinho não está mais disponível.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "Estoque insuficiente para um dos produtos do carrinho.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "O pedido não pôde ser concluído. Tente novamente.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		writeServiceUnavailable(ctx, w, "checkout")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "Erro ao finalizar pedido.", http.StatusInternalServerError))
	}
}
