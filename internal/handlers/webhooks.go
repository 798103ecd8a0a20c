package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/httpx"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const (
	maxWebhookBodySize    = 256 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

type webhookParser interface {
	ParseWebhook(providerName string, payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers receive PSP notifications. Authenticity comes from the payload signature,
// not from a bearer token.
type WebhookHandlers struct {
	parser webhookParser
	orders services.OrderService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(parser webhookParser, orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.orders == nil {
		writeServiceUnavailable(ctx, w, "webhook")
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	event, err := h.parser.ParseWebhook("stripe", payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to parse webhook", http.StatusBadRequest))
		return
	}

	if err := h.orders.HandlePaymentEvent(ctx, event); err != nil {
		// A 5xx makes Stripe redeliver the event later.
		httpx.WriteError(ctx, w, httpx.NewError("webhook_processing_failed", "failed to apply payment event", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "type": string(event.Type)})
}
