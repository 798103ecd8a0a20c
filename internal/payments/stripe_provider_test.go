package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessions struct {
	newParams *stripe.CheckoutSessionParams
	expired   string
	session   *stripe.CheckoutSession
	err       error
}

func (s *stubSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.newParams = params
	return s.session, s.err
}

func (s *stubSessions) Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	s.expired = id
	return &stripe.CheckoutSession{ID: id}, s.err
}

const testWebhookSecret = "whsec_test"

func signPayload(t *testing.T, payload []byte, ts time.Time) string {
	t.Helper()
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(stamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", stamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeCreateCheckoutSessionBuildsLineItems(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	sessions := &stubSessions{session: &stripe.CheckoutSession{
		ID:        "cs_test_1",
		URL:       "https://checkout.stripe.com/c/pay/cs_test_1",
		ExpiresAt: now.Add(time.Hour).Unix(),
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: sessions,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:        "ord_1",
		Currency:       "BRL",
		CustomerEmail:  "ana@example.com",
		SuccessURL:     "https://loja.example/checkout/sucesso",
		CancelURL:      "https://loja.example/carrinho",
		Locale:         "pt_BR",
		IdempotencyKey: "checkout:ord_1",
		Items: []CheckoutLineItem{
			{ProductID: "p1", Name: "Anel Solitário", Quantity: 2, Amount: 35000, ImageURL: "https://img/p1.jpg"},
			{ProductID: "p2", Name: "Colar", Quantity: 0, Amount: 1000},
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "cs_test_1" || session.RedirectURL == "" || session.Provider != "stripe" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	params := sessions.newParams
	if params == nil {
		t.Fatal("expected params to be sent")
	}
	if got := stripe.StringValue(params.Mode); got != "payment" {
		t.Fatalf("unexpected mode %q", got)
	}
	if got := stripe.StringValue(params.Locale); got != "pt-BR" {
		t.Fatalf("unexpected locale %q", got)
	}
	if params.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected orderId metadata, got %v", params.Metadata)
	}
	if got := stripe.StringValue(params.IdempotencyKey); got != "checkout:ord_1" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if len(params.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(params.LineItems))
	}
	first := params.LineItems[0]
	if stripe.Int64Value(first.Quantity) != 2 || stripe.Int64Value(first.PriceData.UnitAmount) != 35000 {
		t.Fatalf("unexpected first line %+v", first)
	}
	if stripe.StringValue(first.PriceData.Currency) != "brl" {
		t.Fatalf("expected lower-case currency, got %q", stripe.StringValue(first.PriceData.Currency))
	}
	if len(first.PriceData.ProductData.Images) != 1 {
		t.Fatalf("expected product image")
	}
	if stripe.Int64Value(params.LineItems[1].Quantity) != 1 {
		t.Fatalf("expected zero quantity to be raised to 1")
	}
}

func TestStripeCreateCheckoutSessionWrapsErrors(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessions{err: errors.New("boom")}})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{OrderID: "ord_1", Amount: 100, Currency: "BRL"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStripeProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestStripeExpireCheckoutSession(t *testing.T) {
	sessions := &stubSessions{}
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if err := provider.ExpireCheckoutSession(context.Background(), " cs_1 "); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if sessions.expired != "cs_1" {
		t.Fatalf("unexpected expired id %q", sessions.expired)
	}

	sessions.err = &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "already completed"}
	if err := provider.ExpireCheckoutSession(context.Background(), "cs_2"); err != nil {
		t.Fatalf("expected invalid request to be tolerated, got %v", err)
	}
}

func TestStripeParseWebhookCompleted(t *testing.T) {
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessions{}, WebhookSecret: testWebhookSecret})
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": "paid",
			"metadata": {"orderId": "ord_1"}
		}}
	}`)

	event, err := provider.ParseWebhook(payload, signPayload(t, payload, time.Now()))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.Type != EventCheckoutCompleted || event.OrderID != "ord_1" || event.SessionID != "cs_test_1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment status %q", event.PaymentStatus)
	}
}

func TestStripeParseWebhookFallsBackToClientReference(t *testing.T) {
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessions{}, WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_2","object":"checkout.session","client_reference_id":"ord_2"}}}`)

	event, err := provider.ParseWebhook(payload, signPayload(t, payload, time.Now()))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.Type != EventCheckoutExpired || event.OrderID != "ord_2" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestStripeParseWebhookIgnoresOtherEvents(t *testing.T) {
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessions{}, WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)

	event, err := provider.ParseWebhook(payload, signPayload(t, payload, time.Now()))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.Type != EventIgnored || event.ProviderType != "charge.refunded" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessions{}, WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := provider.ParseWebhook(payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
