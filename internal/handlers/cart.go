package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/PauloRGNDev/lovableshop-starter/internal/money"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/requestctx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const (
	// CartSessionHeader carries the guest cart session id in both directions.
	CartSessionHeader = "X-Cart-Session"

	maxCartBodySize     = 4 * 1024
	maxCartSessionIDLen = 64
)

// CartHandlers expose the working cart to guests and signed-in shoppers alike.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
	newID func() string
}

// NewCartHandlers constructs cart handlers. Authentication is optional on every route.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
		newID: func() string { return strings.ToLower(ulid.Make().String()) },
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productId}", h.updateItem)
	r.Delete("/items/{productId}", h.removeItem)
}

type cartItemPayload struct {
	ProductID         string `json:"productId"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	PriceFormatted    string `json:"priceFormatted"`
	ImageURL          string `json:"imageUrl,omitempty"`
	Category          string `json:"category"`
	Quantity          int    `json:"quantity"`
	Subtotal          int64  `json:"subtotal"`
	SubtotalFormatted string `json:"subtotalFormatted"`
}

type cartPayload struct {
	SessionID      string            `json:"sessionId,omitempty"`
	Items          []cartItemPayload `json:"items"`
	ItemCount      int               `json:"itemCount"`
	Total          int64             `json:"total"`
	TotalFormatted string            `json:"totalFormatted"`
	Warnings       []string          `json:"warnings,omitempty"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func buildCartPayload(view services.CartView, sessionID string) cartPayload {
	items := make([]cartItemPayload, 0, len(view.State.Items))
	for _, item := range view.State.Items {
		items = append(items, cartItemPayload{
			ProductID:         item.Product.ID,
			Name:              item.Product.Name,
			Price:             item.Product.PriceCents,
			PriceFormatted:    money.BRL.Format(item.Product.PriceCents),
			ImageURL:          item.Product.ImageURL,
			Category:          string(item.Product.Category),
			Quantity:          item.Quantity,
			Subtotal:          item.Subtotal(),
			SubtotalFormatted: money.BRL.Format(item.Subtotal()),
		})
	}
	return cartPayload{
		SessionID:      sessionID,
		Items:          items,
		ItemCount:      view.State.ItemCount,
		Total:          view.State.Total,
		TotalFormatted: money.BRL.Format(view.State.Total),
		Warnings:       view.Warnings,
	}
}

// resolveRef picks the cart key for the request. Signed-in shoppers use their user cart;
// guests use the session header, and a fresh session id is minted when none was sent.
func (h *CartHandlers) resolveRef(w http.ResponseWriter, r *http.Request) (services.CartRef, *http.Request) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return services.CartRef{UserID: identity.UID}, r
	}
	sessionID := strings.TrimSpace(r.Header.Get(CartSessionHeader))
	if sessionID == "" || len(sessionID) > maxCartSessionIDLen {
		sessionID = h.newID()
	}
	w.Header().Set(CartSessionHeader, sessionID)
	return services.CartRef{SessionID: sessionID}, r.WithContext(requestctx.WithCartSession(r.Context(), sessionID))
}

func (h *CartHandlers) respond(w http.ResponseWriter, ref services.CartRef, view services.CartView) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view, ref.SessionID))
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeServiceUnavailable(r.Context(), w, "cart")
		return
	}
	ref, r := h.resolveRef(w, r)
	view, err := h.carts.GetCart(r.Context(), ref)
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	h.respond(w, ref, view)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeServiceUnavailable(r.Context(), w, "cart")
		return
	}
	ref, r := h.resolveRef(w, r)
	view, err := h.carts.ClearCart(r.Context(), ref)
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	h.respond(w, ref, view)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeServiceUnavailable(r.Context(), w, "cart")
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	ref, r := h.resolveRef(w, r)
	view, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		Ref:       ref,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	h.respond(w, ref, view)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeServiceUnavailable(r.Context(), w, "cart")
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	ref, r := h.resolveRef(w, r)
	view, err := h.carts.UpdateQuantity(r.Context(), services.UpdateCartItemCommand{
		Ref:       ref,
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	h.respond(w, ref, view)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeServiceUnavailable(r.Context(), w, "cart")
		return
	}
	ref, r := h.resolveRef(w, r)
	view, err := h.carts.RemoveItem(r.Context(), ref, chi.URLParam(r, "productId"))
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	h.respond(w, ref, view)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "Produto indisponível no momento.", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		writeServiceUnavailable(ctx, w, "cart")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}
