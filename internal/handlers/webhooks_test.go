package handlers

import (
	"net/http"
	"testing"

	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

type stubWebhookParser struct {
	provider  string
	signature string
	event     payments.WebhookEvent
	err       error
}

func (s *stubWebhookParser) ParseWebhook(providerName string, _ []byte, signature string) (payments.WebhookEvent, error) {
	s.provider = providerName
	s.signature = signature
	return s.event, s.err
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	orders := &stubOrderService{}
	h := NewWebhookHandlers(&stubWebhookParser{err: payments.ErrInvalidSignature}, orders)

	rr := serve(t, "/webhooks", h.Routes, http.MethodPost, "/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeMap(t, rr.Body.Bytes()); body["error"] != "invalid_signature" {
		t.Fatalf("unexpected body %v", body)
	}
	if orders.event.ID != "" {
		t.Fatal("unverified events must not reach the order service")
	}
}

func TestStripeWebhookAppliesEvent(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{
		ID:        "evt_1",
		Type:      payments.EventCheckoutCompleted,
		SessionID: "cs_test_1",
		OrderID:   "ord-1",
	}}
	orders := &stubOrderService{}
	h := NewWebhookHandlers(parser, orders)

	rr := serve(t, "/webhooks", h.Routes, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "t=1,v1=ok"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if parser.provider != "stripe" || parser.signature != "t=1,v1=ok" {
		t.Fatalf("unexpected parser call %+v", parser)
	}
	if orders.event.OrderID != "ord-1" {
		t.Fatalf("expected event forwarded, got %+v", orders.event)
	}
	if body := decodeMap(t, rr.Body.Bytes()); body["type"] != "checkout.completed" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStripeWebhookStorageFailureRequestsRetry(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{ID: "evt_2", Type: payments.EventCheckoutExpired, OrderID: "ord-2"}}
	h := NewWebhookHandlers(parser, &stubOrderService{err: services.ErrOrderUnavailable})

	rr := serve(t, "/webhooks", h.Routes, http.MethodPost, "/webhooks/stripe", `{}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestInternalCancelStale(t *testing.T) {
	orders := &stubOrderService{stale: services.CancelStaleResult{Cancelled: []string{"ord-1", "ord-2"}, Failed: 1}}
	h := NewInternalHandlers(orders)

	rr := serve(t, "/internal", h.Routes, http.MethodPost, "/internal/orders:cancel-stale", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeMap(t, rr.Body.Bytes())
	if cancelled, _ := body["cancelled"].([]any); len(cancelled) != 2 || body["failed"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}

	empty := NewInternalHandlers(&stubOrderService{})
	rr = serve(t, "/internal", empty.Routes, http.MethodPost, "/internal/orders:cancel-stale", "", nil)
	if body := decodeMap(t, rr.Body.Bytes()); body["cancelled"] == nil {
		t.Fatalf("expected empty list, got %v", body)
	}

	failing := NewInternalHandlers(&stubOrderService{err: services.ErrOrderUnavailable})
	rr = serve(t, "/internal", failing.Routes, http.MethodPost, "/internal/orders:cancel-stale", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
