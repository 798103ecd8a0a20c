package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const (
	maxAdminProductBody = 32 * 1024
	maxAdminStatusBody  = 1024
)

// AdminHandlers expose catalogue maintenance and order status changes to administrators.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	orders  services.OrderService
}

// NewAdminHandlers constructs admin handlers. Every route requires the admin role, taken
// from the token claim or the profile flag.
func NewAdminHandlers(authn *auth.Authenticator, catalogService services.CatalogService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		catalog: catalogService,
		orders:  orders,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productId}", h.updateProduct)
	r.Delete("/products/{productId}", h.deleteProduct)
	r.Post("/products/{productId}/image-upload-url", h.imageUploadURL)
	r.Put("/orders/{orderId}/status", h.updateOrderStatus)
}

// adminProductRequest accepts price either as integer cents or as a pt-BR decimal string
// such as "3.500,00".
type adminProductRequest struct {
	Name          *string         `json:"name"`
	Description   *string         `json:"description"`
	Price         json.RawMessage `json:"price"`
	ImageURL      *string         `json:"imageUrl"`
	Category      *string         `json:"category"`
	InStock       *bool           `json:"inStock"`
	StockQuantity *int            `json:"stockQuantity"`
	Featured      *bool           `json:"featured"`
}

func (req adminProductRequest) toCommand() (services.UpsertProductCommand, error) {
	cmd := services.UpsertProductCommand{
		Name:          req.Name,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		Category:      req.Category,
		InStock:       req.InStock,
		StockQuantity: req.StockQuantity,
		Featured:      req.Featured,
	}
	raw := strings.TrimSpace(string(req.Price))
	switch {
	case raw == "" || raw == "null":
	case strings.HasPrefix(raw, `"`):
		var text string
		if err := json.Unmarshal(req.Price, &text); err != nil {
			return cmd, errors.New("price must be a number of cents or a decimal string")
		}
		cmd.Price = &text
	default:
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cmd, errors.New("price must be a number of cents or a decimal string")
		}
		cmd.PriceCents = &cents
	}
	return cmd, nil
}

func (h *AdminHandlers) decodeProduct(w http.ResponseWriter, r *http.Request) (services.UpsertProductCommand, bool) {
	var req adminProductRequest
	if !decodeJSONBody(w, r, maxAdminProductBody, &req) {
		return services.UpsertProductCommand{}, false
	}
	cmd, err := req.toCommand()
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest).WithField("field", "price"))
		return services.UpsertProductCommand{}, false
	}
	return cmd, true
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	cmd, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/public/products/"+product.ID)
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product, true))
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	cmd, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, chi.URLParam(r, "productId"), cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, true))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageUploadRequest struct {
	ContentType string `json:"contentType"`
}

type imageUploadResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectKey string            `json:"objectKey"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

func (h *AdminHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(w, r, maxAdminStatusBody, &req) {
		return
	}
	ticket, err := h.catalog.ProductImageUploadURL(ctx, chi.URLParam(r, "productId"), req.ContentType)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		UploadURL: ticket.UploadURL,
		Method:    ticket.Method,
		Headers:   ticket.Headers,
		ObjectKey: ticket.ObjectKey,
		PublicURL: ticket.PublicURL,
		ExpiresAt: ticket.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	var req orderStatusRequest
	if !decodeJSONBody(w, r, maxAdminStatusBody, &req) {
		return
	}
	actorID := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actorID = identity.UID
	}
	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  req.Status,
		ActorID: actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
