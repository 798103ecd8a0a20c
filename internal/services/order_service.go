package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/pagination"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const (
	// EventOrderStatusChanged is published after every committed status transition.
	EventOrderStatusChanged = "order.status_changed"

	defaultStalePendingAfter = 24 * time.Hour
	staleSweepLimit          = 100
)

var (
	// ErrOrderInvalidInput indicates the request failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist or belongs to someone else.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the lifecycle forbids the requested status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent update aborted the transition.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store is unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

type checkoutSessionExpirer interface {
	ExpireCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, sessionID string) error
}

// OrderReadCommand identifies an order read. Non-admin readers only see their own orders.
type OrderReadCommand struct {
	UserID  string
	OrderID string
	IsAdmin bool
}

// OrderStatusCommand is an admin status change.
type OrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// CancelStaleResult summarises one stale pending sweep.
type CancelStaleResult struct {
	Cancelled []string
	Failed    int
}

// OrderServiceDeps wires the order service.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	Payments          checkoutSessionExpirer
	Events            EventPublisher
	Clock             func() time.Time
	Logger            func(context.Context, string, map[string]any)
	Currency          string
	StalePendingAfter time.Duration
}

type orderService struct {
	orders     repositories.OrderRepository
	payments   checkoutSessionExpirer
	events     EventPublisher
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	currency   string
	staleAfter time.Duration
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	staleAfter := deps.StalePendingAfter
	if staleAfter <= 0 {
		staleAfter = defaultStalePendingAfter
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &orderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:     logger,
		currency:   currency,
		staleAfter: staleAfter,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, page pagination.Params) (domain.CursorPage[Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	result, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID:   uid,
		PageSize: page.PageSize,
		After:    page.Cursor,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateError(err)
	}
	return result, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateError(err)
	}
	if !cmd.IsAdmin && order.UserID != strings.TrimSpace(cmd.UserID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus applies an admin transition. Cancelling a pending order also expires its
// hosted checkout session so the shopper cannot pay for it afterwards.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	next, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.TransitionStatus(ctx, repositories.StatusTransition{OrderID: orderID, To: next, At: s.now()})
	if err != nil {
		return Order{}, s.translateError(err)
	}
	if next == domain.OrderStatusCancelled {
		s.expireSession(ctx, order)
	}
	s.logger(ctx, "order.status_updated", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"actorId": cmd.ActorID,
	})
	s.publishStatusChanged(ctx, order, "admin")
	return order, nil
}

// HandlePaymentEvent reconciles a verified PSP webhook. Events that cannot apply, such as an
// unknown order or a transition the lifecycle forbids, are logged and acknowledged so the
// PSP stops retrying. Only storage failures are returned.
func (s *orderService) HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error {
	// Both events only apply to orders still awaiting payment.
	change := repositories.StatusTransition{From: domain.OrderStatusPending}
	switch event.Type {
	case payments.EventCheckoutCompleted:
		change.To = domain.OrderStatusConfirmed
	case payments.EventCheckoutExpired:
		change.To = domain.OrderStatusCancelled
	default:
		return nil
	}
	orderID := strings.TrimSpace(event.OrderID)
	fields := map[string]any{
		"eventId":   event.ID,
		"eventType": string(event.Type),
		"orderId":   orderID,
		"sessionId": event.SessionID,
	}
	if orderID == "" {
		s.logger(ctx, "order.payment_event_unmatched", fields)
		return nil
	}

	change.OrderID, change.At = orderID, s.now()
	order, err := s.orders.TransitionStatus(ctx, change)
	if err != nil {
		translated := s.translateError(err)
		switch {
		case errors.Is(translated, ErrOrderNotFound), errors.Is(translated, ErrOrderInvalidTransition):
			fields["error"] = err.Error()
			s.logger(ctx, "order.payment_event_skipped", fields)
			return nil
		}
		return translated
	}
	s.logger(ctx, "order.payment_event_applied", fields)
	s.publishStatusChanged(ctx, order, "payment")
	return nil
}

// CancelStale cancels pending orders older than the configured window. Each order is
// handled independently; failures are counted and the sweep continues.
func (s *orderService) CancelStale(ctx context.Context) (CancelStaleResult, error) {
	now := s.now()
	stale, err := s.orders.ListPendingBefore(ctx, now.Add(-s.staleAfter), staleSweepLimit)
	if err != nil {
		return CancelStaleResult{}, s.translateError(err)
	}

	result := CancelStaleResult{Cancelled: make([]string, 0, len(stale))}
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		order, err := s.orders.TransitionStatus(ctx, repositories.StatusTransition{
			OrderID: candidate.ID,
			From:    domain.OrderStatusPending,
			To:      domain.OrderStatusCancelled,
			At:      now,
		})
		if err != nil {
			if errors.Is(s.translateError(err), ErrOrderInvalidTransition) {
				continue
			}
			result.Failed++
			s.logger(ctx, "order.stale_cancel_failed", map[string]any{"orderId": candidate.ID, "error": err.Error()})
			continue
		}
		s.expireSession(ctx, order)
		s.publishStatusChanged(ctx, order, "stale")
		result.Cancelled = append(result.Cancelled, order.ID)
	}
	s.logger(ctx, "order.stale_sweep_completed", map[string]any{
		"cancelled": len(result.Cancelled),
		"failed":    result.Failed,
	})
	return result, nil
}

func (s *orderService) expireSession(ctx context.Context, order Order) {
	if s.payments == nil || strings.TrimSpace(order.PaymentSessionID) == "" {
		return
	}
	if err := s.payments.ExpireCheckoutSession(ctx, payments.PaymentContext{Currency: s.currency}, order.PaymentSessionID); err != nil {
		s.logger(ctx, "order.payment_session_expire_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": order.PaymentSessionID,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) publishStatusChanged(ctx context.Context, order Order, source string) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"status":  string(order.Status),
		"source":  source,
	}
	if _, err := s.events.Publish(ctx, EventOrderStatusChanged, order.ID, payload); err != nil {
		s.logger(ctx, "order.status_event_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

func (s *orderService) translateError(err error) error {
	if err == nil {
		return nil
	}
	if orderErr, ok := repositories.AsOrderError(err); ok && orderErr.Code == repositories.OrderErrorInvalidTransition {
		return fmt.Errorf("%w: %s", ErrOrderInvalidTransition, orderErr.Message)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}
