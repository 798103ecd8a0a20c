package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const (
	// EventOrderCreated is published after an order commits.
	EventOrderCreated = "order.created"

	orderIDPlaceholder = "{ORDER_ID}"
	defaultCurrency    = "BRL"
	defaultLocale      = "pt-BR"
)

var (
	// ErrCheckoutUnauthenticated indicates checkout was attempted without an identity.
	ErrCheckoutUnauthenticated = errors.New("checkout: authentication required")
	// ErrCheckoutEmptyCart indicates the cart has no lines.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutProductUnavailable indicates a product vanished or went out of stock.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutInsufficientStock indicates a line asks for more than the stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutConflict indicates a concurrent modification aborted the transaction.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutCommand carries the authenticated shopper placing the order.
type CheckoutCommand struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

// CheckoutResult is returned on success. CheckoutURL is empty when no PSP is configured
// or session creation failed.
type CheckoutResult struct {
	Success     bool
	OrderID     string
	TotalCents  int64
	Status      OrderStatus
	CheckoutURL string
	Order       Order
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       CartService
	Orders      repositories.OrderRepository
	Payments    checkoutSessionManager
	Events      EventPublisher
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string

	Currency   string
	Locale     string
	SuccessURL string
	CancelURL  string
}

type checkoutService struct {
	carts    CartService
	orders   repositories.OrderRepository
	payments checkoutSessionManager
	events   EventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	newID    func() string

	currency   string
	locale     string
	successURL string
	cancelURL  string
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments != nil && (strings.TrimSpace(deps.SuccessURL) == "" || strings.TrimSpace(deps.CancelURL) == "") {
		return nil, errors.New("checkout service: success and cancel urls are required with a payment provider")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	locale := strings.TrimSpace(deps.Locale)
	if locale == "" {
		locale = defaultLocale
	}

	return &checkoutService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:     logger,
		newID:      idGen,
		currency:   currency,
		locale:     locale,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
	}, nil
}

// Checkout places the user's cart as one pending order. The order, its items, the stock
// decrements and the removal of the mirrored cart rows commit together or not at all.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, ErrCheckoutUnauthenticated
	}
	ref := CartRef{UserID: userID}

	if err := s.carts.FlushUser(ctx, userID); err != nil {
		s.logger(ctx, "checkout.mirror_flush_incomplete", map[string]any{"userId": userID, "error": err.Error()})
	}

	view, err := s.carts.GetCart(ctx, ref)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if view.Unsynced {
		return CheckoutResult{}, fmt.Errorf("%w: saved cart could not be read", ErrCheckoutUnavailable)
	}
	if view.State.IsEmpty() {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	orderID := s.newID()
	itemIDs := make([]string, len(view.State.Items))
	for i := range itemIDs {
		itemIDs[i] = s.newID()
	}

	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		OrderID:       orderID,
		ItemIDs:       itemIDs,
		UserID:        userID,
		CustomerEmail: cmd.Email,
		Lines:         view.State.Items,
		PlacedAt:      s.now(),
	})
	if err != nil {
		return CheckoutResult{}, s.translatePlaceError(err)
	}

	if err := s.carts.DiscardLocal(ctx, ref); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"userId": userID, "orderId": order.ID, "error": err.Error()})
	}

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"userId":     userID,
		"orderId":    order.ID,
		"totalCents": order.TotalCents,
		"items":      len(order.Items),
	})
	s.publishOrderCreated(ctx, order)

	result := CheckoutResult{
		Success:    true,
		OrderID:    order.ID,
		TotalCents: order.TotalCents,
		Status:     order.Status,
		Order:      order,
	}
	if s.payments != nil {
		result.CheckoutURL = s.startPayment(ctx, &result.Order, view.State.Items, cmd)
	}
	return result, nil
}

// startPayment opens a hosted checkout session for the committed order items. Cart lines
// only contribute images. Failures leave the order pending and are only logged.
func (s *checkoutService) startPayment(ctx context.Context, order *Order, lines []domain.CartItem, cmd CheckoutCommand) string {
	images := make(map[string]string, len(lines))
	for _, line := range lines {
		images[line.Product.ID] = line.Product.ImageURL
	}
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			ImageURL:  images[item.ProductID],
			Quantity:  int64(item.Quantity),
			Amount:    item.UnitPriceCents,
			Currency:  s.currency,
		})
	}

	idempotencyKey := "checkout:" + order.ID
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		idempotencyKey = "checkout:" + key
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: s.currency}, payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		Amount:         order.TotalCents,
		Currency:       s.currency,
		CustomerEmail:  order.CustomerEmail,
		SuccessURL:     strings.ReplaceAll(s.successURL, orderIDPlaceholder, order.ID),
		CancelURL:      strings.ReplaceAll(s.cancelURL, orderIDPlaceholder, order.ID),
		Locale:         s.locale,
		Metadata:       map[string]string{"userId": order.UserID},
		IdempotencyKey: idempotencyKey,
		Items:          items,
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return ""
	}

	if err := s.orders.SetPaymentSession(ctx, order.ID, session.ID, s.now()); err != nil {
		s.logger(ctx, "checkout.payment_session_unrecorded", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	} else {
		order.PaymentSessionID = session.ID
	}
	return session.RedirectURL
}

func (s *checkoutService) publishOrderCreated(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	lines := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, map[string]any{
			"productId":      item.ProductID,
			"productName":    item.ProductName,
			"quantity":       item.Quantity,
			"unitPriceCents": item.UnitPriceCents,
		})
	}
	payload := map[string]any{
		"orderId":       order.ID,
		"userId":        order.UserID,
		"customerEmail": order.CustomerEmail,
		"totalCents":    order.TotalCents,
		"status":        string(order.Status),
		"items":         lines,
	}
	if _, err := s.events.Publish(ctx, EventOrderCreated, order.ID, payload); err != nil {
		s.logger(ctx, "checkout.order_event_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

func (s *checkoutService) translatePlaceError(err error) error {
	if orderErr, ok := repositories.AsOrderError(err); ok {
		switch orderErr.Code {
		case repositories.OrderErrorProductUnavailable:
			return fmt.Errorf("%w: %s", ErrCheckoutProductUnavailable, orderErr.ProductID)
		case repositories.OrderErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, orderErr.ProductID)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}
