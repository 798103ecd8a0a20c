package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

type stubCheckoutSessions struct {
	req     payments.CheckoutSessionRequest
	session payments.CheckoutSession
	err     error
	calls   int
}

func (s *stubCheckoutSessions) CreateCheckoutSession(_ context.Context, _ payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.calls++
	s.req = req
	return s.session, s.err
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func placeEcho(now time.Time) func(context.Context, repositories.PlaceOrderRequest) (domain.Order, error) {
	return func(_ context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
		order := domain.Order{
			ID:            req.OrderID,
			UserID:        req.UserID,
			Status:        domain.OrderStatusPending,
			CustomerEmail: req.CustomerEmail,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for i, line := range req.Lines {
			order.Items = append(order.Items, domain.OrderItem{
				ID:             req.ItemIDs[i],
				OrderID:        req.OrderID,
				ProductID:      line.Product.ID,
				ProductName:    line.Product.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: line.Product.PriceCents,
			})
			order.TotalCents += line.Product.PriceCents * int64(line.Quantity)
		}
		return order, nil
	}
}

func seededUserCart(t *testing.T) CartService {
	t.Helper()
	carts, _ := newTestCartService(t, nil, nil, 0)
	ctx := context.Background()
	ref := CartRef{UserID: "u1"}
	if _, err := carts.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring", Quantity: 1}); err != nil {
		t.Fatalf("seed ring: %v", err)
	}
	if _, err := carts.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "pearls", Quantity: 2}); err != nil {
		t.Fatalf("seed pearls: %v", err)
	}
	return carts
}

func TestCheckoutPlacesOrderAndStartsPayment(t *testing.T) {
	now := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	carts := seededUserCart(t)
	var placed repositories.PlaceOrderRequest
	orders := &stubOrderRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
			placed = req
			return placeEcho(now)(ctx, req)
		},
	}
	psp := &stubCheckoutSessions{session: payments.CheckoutSession{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"}}
	events := &stubPublisher{}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:       carts,
		Orders:      orders,
		Payments:    psp,
		Events:      events,
		Clock:       func() time.Time { return now },
		IDGenerator: sequentialIDs("id-"),
		SuccessURL:  "https://loja.example/pedidos/{ORDER_ID}?pago=1",
		CancelURL:   "https://loja.example/carrinho",
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	result, err := svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !result.Success || result.OrderID != "id-1" || result.TotalCents != 710000 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.CheckoutURL != "https://pay.example/cs_1" {
		t.Fatalf("unexpected checkout url %q", result.CheckoutURL)
	}
	if len(placed.Lines) != 2 || len(placed.ItemIDs) != 2 || placed.ItemIDs[0] != "id-2" {
		t.Fatalf("unexpected place request %+v", placed)
	}
	if !placed.PlacedAt.Equal(now) {
		t.Fatalf("expected placedAt %v, got %v", now, placed.PlacedAt)
	}

	if psp.req.SuccessURL != "https://loja.example/pedidos/id-1?pago=1" {
		t.Fatalf("order id placeholder not substituted: %q", psp.req.SuccessURL)
	}
	if psp.req.Currency != "BRL" || psp.req.Locale != "pt-BR" || len(psp.req.Items) != 2 {
		t.Fatalf("unexpected psp request %+v", psp.req)
	}
	if psp.req.Items[1].Quantity != 2 || psp.req.Items[1].Amount != 180000 {
		t.Fatalf("unexpected line item %+v", psp.req.Items[1])
	}
	if orders.paymentSessions["id-1"] != "cs_1" || result.Order.PaymentSessionID != "cs_1" {
		t.Fatalf("expected payment session to be recorded, got %v", orders.paymentSessions)
	}

	view, err := carts.GetCart(context.Background(), CartRef{UserID: "u1"})
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !view.State.IsEmpty() {
		t.Fatalf("expected cart to be cleared, got %+v", view.State)
	}

	if len(events.events) != 1 || events.events[0].eventType != EventOrderCreated || events.events[0].key != "id-1" {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestCheckoutChargesCommittedPrices(t *testing.T) {
	now := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	carts := seededUserCart(t)
	// The catalogue raised the pearls between add-to-cart and checkout.
	orders := &stubOrderRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
			order, err := placeEcho(now)(ctx, req)
			if err != nil {
				return order, err
			}
			order.TotalCents = 0
			for i := range order.Items {
				if order.Items[i].ProductID == "pearls" {
					order.Items[i].UnitPriceCents = 200000
				}
				order.TotalCents += order.Items[i].UnitPriceCents * int64(order.Items[i].Quantity)
			}
			return order, nil
		},
	}
	psp := &stubCheckoutSessions{session: payments.CheckoutSession{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"}}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:       carts,
		Orders:      orders,
		Payments:    psp,
		Clock:       func() time.Time { return now },
		IDGenerator: sequentialIDs("id-"),
		SuccessURL:  "https://loja.example/ok",
		CancelURL:   "https://loja.example/cancel",
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	result, err := svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.TotalCents != 750000 {
		t.Fatalf("expected committed total 750000, got %d", result.TotalCents)
	}
	if psp.req.Amount != 750000 || len(psp.req.Items) != 2 {
		t.Fatalf("unexpected psp request %+v", psp.req)
	}
	if psp.req.Items[1].ProductID != "pearls" || psp.req.Items[1].Amount != 200000 {
		t.Fatalf("expected pearls at the committed price, got %+v", psp.req.Items[1])
	}
}

func TestCheckoutPreconditions(t *testing.T) {
	carts, _ := newTestCartService(t, nil, nil, 0)
	svc, err := NewCheckoutService(CheckoutServiceDeps{Carts: carts, Orders: &stubOrderRepository{}})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	if _, err := svc.Checkout(context.Background(), CheckoutCommand{}); !errors.Is(err, ErrCheckoutUnauthenticated) {
		t.Fatalf("expected ErrCheckoutUnauthenticated, got %v", err)
	}
	if _, err := svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"}); !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestCheckoutFailureLeavesCartUntouched(t *testing.T) {
	carts := seededUserCart(t)
	orders := &stubOrderRepository{
		placeFunc: func(context.Context, repositories.PlaceOrderRequest) (domain.Order, error) {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInsufficientStock, "ring", "ring has 0 in stock")
		},
	}
	psp := &stubCheckoutSessions{}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:      carts,
		Orders:     orders,
		Payments:   psp,
		SuccessURL: "https://loja.example/ok",
		CancelURL:  "https://loja.example/cancel",
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	_, err = svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"})
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected ErrCheckoutInsufficientStock, got %v", err)
	}
	if psp.calls != 0 {
		t.Fatal("payment must not start when placement fails")
	}

	view, err := carts.GetCart(context.Background(), CartRef{UserID: "u1"})
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if view.State.ItemCount != 3 || view.State.Total != 710000 {
		t.Fatalf("cart must be unmodified, got %+v", view.State)
	}
}

func TestCheckoutRefusesUnreadableSavedCart(t *testing.T) {
	rows := &stubCartRowRepository{
		listFunc: func(context.Context, string) ([]domain.CartRow, error) {
			return nil, stubRepoError{unavailable: true}
		},
	}
	carts, _ := newTestCartService(t, rows, nil, 0)
	orders := &stubOrderRepository{}
	svc, err := NewCheckoutService(CheckoutServiceDeps{Carts: carts, Orders: orders})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	_, err = svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"})
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
}

func TestCheckoutPaymentFailureKeepsOrder(t *testing.T) {
	now := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	carts := seededUserCart(t)
	orders := &stubOrderRepository{placeFunc: placeEcho(now)}
	logger := &recordingLogger{}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:      carts,
		Orders:     orders,
		Payments:   &stubCheckoutSessions{err: errors.New("stripe down")},
		Logger:     logger.log,
		Clock:      func() time.Time { return now },
		SuccessURL: "https://loja.example/ok",
		CancelURL:  "https://loja.example/cancel",
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	result, err := svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !result.Success || result.CheckoutURL != "" || result.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected result %+v", result)
	}
	if !logger.has("checkout.payment_session_failed") {
		t.Fatal("expected payment failure to be logged")
	}
}

func TestCheckoutTranslatesConflicts(t *testing.T) {
	carts := seededUserCart(t)
	svc, _ := NewCheckoutService(CheckoutServiceDeps{
		Carts: carts,
		Orders: &stubOrderRepository{
			placeFunc: func(context.Context, repositories.PlaceOrderRequest) (domain.Order, error) {
				return domain.Order{}, stubRepoError{conflict: true}
			},
		},
	})
	if _, err := svc.Checkout(context.Background(), CheckoutCommand{UserID: "u1"}); !errors.Is(err, ErrCheckoutConflict) {
		t.Fatalf("expected ErrCheckoutConflict, got %v", err)
	}
}

func TestNewCheckoutServiceRequiresRedirectURLsWithPayments(t *testing.T) {
	carts, _ := newTestCartService(t, nil, nil, 0)
	_, err := NewCheckoutService(CheckoutServiceDeps{Carts: carts, Orders: &stubOrderRepository{}, Payments: &stubCheckoutSessions{}})
	if err == nil {
		t.Fatal("expected error without redirect urls")
	}
}
