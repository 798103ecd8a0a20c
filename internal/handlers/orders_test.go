package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

func TestOrdersListPassesPagination(t *testing.T) {
	placed := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	orders := &stubOrderService{page: domain.CursorPage[services.Order]{
		Items: []services.Order{{
			ID: "ord-1", UserID: "user-1", TotalCents: 350000, Status: domain.OrderStatusConfirmed, CreatedAt: placed,
		}},
		NextPageToken: "next",
	}}
	h := NewOrderHandlers(testAuthenticator(), orders)

	rr := serve(t, "/orders", h.Routes, http.MethodGet, "/orders?pageSize=5", "", bearer("customer-token"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastParams.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", orders.lastParams.PageSize)
	}
	var body orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.NextPageToken != "next" || body.Items[0].Status != "confirmed" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Items[0].CreatedAt != "2025-02-03T10:00:00Z" {
		t.Fatalf("unexpected timestamp %q", body.Items[0].CreatedAt)
	}

	rr = serve(t, "/orders", h.Routes, http.MethodGet, "/orders?pageSize=-1", "", bearer("customer-token"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrdersGetScopesToCaller(t *testing.T) {
	orders := &stubOrderService{order: services.Order{ID: "ord-1", UserID: "user-1"}}
	h := NewOrderHandlers(testAuthenticator(), orders)

	rr := serve(t, "/orders", h.Routes, http.MethodGet, "/orders/ord-1", "", bearer("customer-token"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if orders.read.UserID != "user-1" || orders.read.OrderID != "ord-1" || orders.read.IsAdmin {
		t.Fatalf("unexpected read %+v", orders.read)
	}

	serve(t, "/orders", h.Routes, http.MethodGet, "/orders/ord-1", "", bearer("admin-token"))
	if !orders.read.IsAdmin {
		t.Fatal("expected admin reads to bypass ownership")
	}

	orders.err = services.ErrOrderNotFound
	rr = serve(t, "/orders", h.Routes, http.MethodGet, "/orders/ord-2", "", bearer("customer-token"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
