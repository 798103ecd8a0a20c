package handlers

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/catalog"
	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/pagination"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/storage"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

// tokenVerifier accepts "customer-token" and "admin-token".
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	switch idToken {
	case "customer-token":
		return &firebaseauth.Token{UID: "user-1", Claims: map[string]interface{}{"email": "ana@example.com", "name": "Ana"}}, nil
	case "admin-token":
		return &firebaseauth.Token{UID: "admin-1", Claims: map[string]interface{}{"email": "loja@deleza.com.br", "admin": true}}, nil
	}
	return nil, errors.New("token rejected")
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenVerifier{})
}

// serve mounts routes under prefix and runs one request against them.
func serve(t *testing.T, prefix string, routes func(chi.Router), method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, routes)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type stubCatalogService struct {
	products   []services.Product
	lastQuery  catalog.Query
	lastLimit  int
	created    services.UpsertProductCommand
	createFunc func(cmd services.UpsertProductCommand) (services.Product, error)
	ticket     storage.UploadTicket
	err        error
}

func (s *stubCatalogService) ListProducts(_ context.Context, query catalog.Query) ([]services.Product, error) {
	s.lastQuery = query
	return s.products, s.err
}

func (s *stubCatalogService) GetProduct(_ context.Context, productID string) (services.Product, error) {
	for _, p := range s.products {
		if p.ID == productID {
			return p, nil
		}
	}
	return services.Product{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) FeaturedProducts(_ context.Context, limit int) ([]services.Product, error) {
	s.lastLimit = limit
	return s.products, s.err
}

func (s *stubCatalogService) SearchProducts(_ context.Context, term string) ([]services.Product, error) {
	return s.products, s.err
}

func (s *stubCatalogService) Categories() []services.Category {
	return domain.Categories()
}

func (s *stubCatalogService) CreateProduct(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	s.created = cmd
	if s.createFunc != nil {
		return s.createFunc(cmd)
	}
	return services.Product{}, s.err
}

func (s *stubCatalogService) UpdateProduct(_ context.Context, productID string, cmd services.UpsertProductCommand) (services.Product, error) {
	s.created = cmd
	return services.Product{ID: productID}, s.err
}

func (s *stubCatalogService) DeleteProduct(context.Context, string) error {
	return s.err
}

func (s *stubCatalogService) ProductImageUploadURL(context.Context, string, string) (storage.UploadTicket, error) {
	return s.ticket, s.err
}

type stubCartService struct {
	refs    []services.CartRef
	added   services.AddCartItemCommand
	view    services.CartView
	err     error
	updated services.UpdateCartItemCommand
}

func (s *stubCartService) record(ref services.CartRef) (services.CartView, error) {
	s.refs = append(s.refs, ref)
	return s.view, s.err
}

func (s *stubCartService) GetCart(_ context.Context, ref services.CartRef) (services.CartView, error) {
	return s.record(ref)
}

func (s *stubCartService) AddItem(_ context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	s.added = cmd
	return s.record(cmd.Ref)
}

func (s *stubCartService) RemoveItem(_ context.Context, ref services.CartRef, _ string) (services.CartView, error) {
	return s.record(ref)
}

func (s *stubCartService) UpdateQuantity(_ context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	s.updated = cmd
	return s.record(cmd.Ref)
}

func (s *stubCartService) ClearCart(_ context.Context, ref services.CartRef) (services.CartView, error) {
	return s.record(ref)
}

func (s *stubCartService) DiscardLocal(context.Context, services.CartRef) error { return nil }

func (s *stubCartService) AttachIdentity(context.Context, string, string) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) DetachIdentity(context.Context, string) error { return nil }

func (s *stubCartService) FlushUser(context.Context, string) error { return nil }

func (s *stubCartService) Flush(context.Context) error { return nil }

type stubOrderService struct {
	page       domain.CursorPage[services.Order]
	lastParams pagination.Params
	order      services.Order
	read       services.OrderReadCommand
	status     services.OrderStatusCommand
	event      payments.WebhookEvent
	stale      services.CancelStaleResult
	err        error
}

func (s *stubOrderService) ListOrders(_ context.Context, _ string, page pagination.Params) (domain.CursorPage[services.Order], error) {
	s.lastParams = page
	return s.page, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, cmd services.OrderReadCommand) (services.Order, error) {
	s.read = cmd
	return s.order, s.err
}

func (s *stubOrderService) UpdateStatus(_ context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	s.status = cmd
	return s.order, s.err
}

func (s *stubOrderService) HandlePaymentEvent(_ context.Context, event payments.WebhookEvent) error {
	s.event = event
	return s.err
}

func (s *stubOrderService) CancelStale(context.Context) (services.CancelStaleResult, error) {
	return s.stale, s.err
}

var (
	_ services.CatalogService = (*stubCatalogService)(nil)
	_ services.CartService    = (*stubCartService)(nil)
	_ services.OrderService   = (*stubOrderService)(nil)
)
