package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

type stubCheckoutService struct {
	cmd    services.CheckoutCommand
	result services.CheckoutResult
	err    error
}

func (s *stubCheckoutService) Checkout(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	s.cmd = cmd
	return s.result, s.err
}

func TestCheckoutRequiresAuthentication(t *testing.T) {
	svc := &stubCheckoutService{}
	h := NewCheckoutHandlers(testAuthenticator(), svc)

	rr := serve(t, "/checkout", h.Routes, http.MethodPost, "/checkout", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if svc.cmd.UserID != "" {
		t.Fatal("service must not be called without identity")
	}
}

func TestCheckoutPlacesOrder(t *testing.T) {
	svc := &stubCheckoutService{result: services.CheckoutResult{
		Success:     true,
		OrderID:     "ord-1",
		TotalCents:  700000,
		Status:      domain.OrderStatusPending,
		CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_1",
		Order: services.Order{
			ID:         "ord-1",
			UserID:     "user-1",
			TotalCents: 700000,
			Status:     domain.OrderStatusPending,
			Items: []services.OrderItem{{
				ID: "item-1", ProductID: "anel-solitario", ProductName: "Anel Solitário Ouro 18k", Quantity: 2, UnitPriceCents: 350000,
			}},
		},
	}}
	var keyed bool
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyed = r.Header.Get("Idempotency-Key") != ""
			next.ServeHTTP(w, r)
		})
	}
	h := NewCheckoutHandlers(testAuthenticator(), svc, WithCheckoutIdempotency(mw, ""))
	headers := bearer("customer-token")
	headers["Idempotency-Key"] = "key-123"

	rr := serve(t, "/checkout", h.Routes, http.MethodPost, "/checkout", "", headers)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !keyed {
		t.Fatal("expected idempotency middleware to run")
	}
	if svc.cmd.UserID != "user-1" || svc.cmd.Email != "ana@example.com" || svc.cmd.IdempotencyKey != "key-123" {
		t.Fatalf("unexpected command %+v", svc.cmd)
	}

	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.OrderID != "ord-1" || body.Status != "pending" || body.Total != 700000 {
		t.Fatalf("unexpected response %+v", body)
	}
	if body.CheckoutURL == "" || len(body.Order.Items) != 1 || body.Order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected order payload %+v", body.Order)
	}
}

func TestCheckoutErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{services.ErrCheckoutEmptyCart, http.StatusBadRequest, "cart_empty"},
		{services.ErrCheckoutInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{services.ErrCheckoutProductUnavailable, http.StatusConflict, "product_unavailable"},
		{services.ErrCheckoutUnavailable, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		h := NewCheckoutHandlers(testAuthenticator(), &stubCheckoutService{err: tc.err})
		rr := serve(t, "/checkout", h.Routes, http.MethodPost, "/checkout", "", bearer("customer-token"))
		if rr.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rr.Code)
		}
		if tc.code == "" {
			continue
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != tc.code {
			t.Fatalf("expected code %s, got %v", tc.code, body["error"])
		}
	}
}
