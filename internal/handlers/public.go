package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/catalog"
	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/money"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const (
	maxContactBodySize = 16 * 1024
	maxFeaturedLimit   = 24
)

// PublicHandlers serve the anonymous storefront endpoints.
type PublicHandlers struct {
	catalog services.CatalogService
	contact services.ContactService
	limiter rateLimiter
}

// PublicOption customises PublicHandlers.
type PublicOption func(*PublicHandlers)

// WithContactService enables POST /public/contact.
func WithContactService(svc services.ContactService) PublicOption {
	return func(h *PublicHandlers) { h.contact = svc }
}

// WithContactRateLimit caps contact submissions per client IP and minute.
func WithContactRateLimit(perMinute int) PublicOption {
	return func(h *PublicHandlers) { h.limiter = newRateLimiter(perMinute, nil) }
}

// NewPublicHandlers constructs the public handlers.
func NewPublicHandlers(catalogService services.CatalogService, opts ...PublicOption) *PublicHandlers {
	h := &PublicHandlers{catalog: catalogService}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/featured", h.featuredProducts)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Post("/contact", rateLimited(h.limiter, h.submitContact))
}

type productPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	Price           int64  `json:"price"`
	PriceFormatted  string `json:"priceFormatted"`
	ImageURL        string `json:"imageUrl,omitempty"`
	Category        string `json:"category"`
	CategoryLabel   string `json:"categoryLabel"`
	InStock         bool   `json:"inStock"`
	StockQuantity   int    `json:"stockQuantity"`
	Featured        bool   `json:"featured"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

type productListResponse struct {
	Items []productPayload `json:"items"`
	Total int              `json:"total"`
}

type categoryPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func buildProductPayload(product services.Product, withHTML bool) productPayload {
	payload := productPayload{
		ID:             product.ID,
		Name:           product.Name,
		Description:    product.Description,
		Price:          product.PriceCents,
		PriceFormatted: money.BRL.Format(product.PriceCents),
		ImageURL:       product.ImageURL,
		Category:       string(product.Category),
		CategoryLabel:  product.Category.Label(),
		InStock:        product.Purchasable(),
		StockQuantity:  product.StockQuantity,
		Featured:       product.Featured,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
	if withHTML {
		payload.DescriptionHTML = services.RenderDescriptionHTML(product.Description)
	}
	return payload
}

func buildProductList(products []services.Product) productListResponse {
	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product, false))
	}
	return productListResponse{Items: items, Total: len(items)}
}

func (h *PublicHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	query, err := parseCatalogQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	products, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductList(products))
}

func (h *PublicHandlers) featuredProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	limit := services.DefaultFeaturedLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(n, maxFeaturedLimit)
	}
	products, err := h.catalog.FeaturedProducts(ctx, limit)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductList(products))
}

func (h *PublicHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, true))
}

func (h *PublicHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	var categories []services.Category
	if h.catalog != nil {
		categories = h.catalog.Categories()
	} else {
		categories = domain.Categories()
	}
	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, categoryPayload{ID: string(category), Label: category.Label()})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *PublicHandlers) submitContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contact == nil {
		writeServiceUnavailable(ctx, w, "contact")
		return
	}
	var req contactRequest
	if !decodeJSONBody(w, r, maxContactBodySize, &req) {
		return
	}
	msg, err := h.contact.Submit(ctx, services.ContactCommand{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		if writePublicError(ctx, w, err, "invalid_request", http.StatusBadRequest) {
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("contact_unavailable", "Não foi possível enviar sua mensagem. Tente novamente.", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"id":        msg.ID,
		"createdAt": formatTime(msg.CreatedAt),
	})
}

// parseCatalogQuery reads search, category, minPrice, maxPrice and sort. Prices are in
// cents; an unknown category yields an empty listing rather than an error.
func parseCatalogQuery(r *http.Request) (catalog.Query, error) {
	values := r.URL.Query()
	query := catalog.Query{
		Search: strings.TrimSpace(values.Get("search")),
		Sort:   catalog.NormaliseSort(values.Get("sort")),
	}
	if raw := strings.TrimSpace(values.Get("category")); raw != "" && !strings.EqualFold(raw, "all") {
		query.Category = domain.Category(strings.ToLower(raw))
	}
	for _, bound := range []struct {
		name string
		dst  **int64
	}{
		{"minPrice", &query.MinPrice},
		{"maxPrice", &query.MaxPrice},
	} {
		raw := strings.TrimSpace(values.Get(bound.name))
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return catalog.Query{}, errors.New(bound.name + " must be a non-negative integer amount in cents")
		}
		*bound.dst = &n
	}
	return query, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if writePublicError(ctx, w, err, "invalid_request", http.StatusBadRequest) {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "Produto não encontrado.", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", "product already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", err.Error(), http.StatusNotImplemented))
	case errors.Is(err, services.ErrCatalogUnavailable):
		writeServiceUnavailable(ctx, w, "catalog")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalogue", http.StatusInternalServerError))
	}
}
