package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	event   WebhookEvent
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	f.lastOp = "expire:" + sessionID
	return f.err
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	f.lastOp = "webhook"
	return f.event, f.err
}

func TestManagerCreateCheckoutSessionUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}
	pix := &fakeProvider{session: CheckoutSession{ID: "cs_pix"}}

	mgr, err := NewManager(map[string]Provider{
		"stripe": stripe,
		"pix":    pix,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "PIX"}, CheckoutSessionRequest{Currency: "BRL"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "pix" || session.ID != "cs_pix" {
		t.Fatalf("unexpected session %+v", session)
	}
	if stripe.lastOp != "" {
		t.Fatalf("expected stripe provider to remain unused")
	}
}

func TestManagerRoutesByCurrencyAndDefaultsToStripe(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{session: CheckoutSession{ID: "cs_stripe"}}
	pix := &fakeProvider{session: CheckoutSession{ID: "cs_pix"}}

	mgr, err := NewManager(
		map[string]Provider{"stripe": stripe, "pix": pix},
		WithCurrencyRoutes(map[string]string{" brl ": "pix"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "BRL"}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "pix" {
		t.Fatalf("expected currency route to pix, got %q", session.Provider)
	}

	session, err = mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "USD"}, CheckoutSessionRequest{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "stripe" {
		t.Fatalf("expected default stripe, got %q", session.Provider)
	}
}

func TestManagerUnknownPreferredProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.ParseWebhook("paypal", []byte("{}"), "sig"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerDelegatesExpireAndWebhook(t *testing.T) {
	stripe := &fakeProvider{event: WebhookEvent{Type: EventCheckoutCompleted, OrderID: "ord_1"}}
	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := mgr.ExpireCheckoutSession(context.Background(), PaymentContext{}, "cs_1"); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if stripe.lastOp != "expire:cs_1" {
		t.Fatalf("unexpected op %q", stripe.lastOp)
	}

	event, err := mgr.ParseWebhook("stripe", []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if event.OrderID != "ord_1" || event.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestNewManagerRejectsInvalidRegistration(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty providers")
	}
	if _, err := NewManager(map[string]Provider{"stripe": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
