package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/platform/httpx"
	"github.com/mercantia/api/internal/services"
)

// WebhookHandlers receives verified gateway notifications. Signature checks
// run in the group middleware, not here.
type WebhookHandlers struct {
	payments services.PaymentService
	logger   func(ctx context.Context, msg string, fields map[string]any)
}

const maxWebhookBodySize = 64 * 1024

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithWebhookLogger attaches a structured logger for notification outcomes.
func WithWebhookLogger(logger func(ctx context.Context, msg string, fields map[string]any)) WebhookOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs the gateway notification endpoint.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		payments: payments,
		logger:   func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/gateway", h.gatewayNotification)
}

type gatewayNotificationRequest struct {
	ExternalReference string `json:"externalReference"`
	Status            string `json:"status"`
	PaidAmount        int64  `json:"paidAmount"`
}

func (h *WebhookHandlers) gatewayNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req gatewayNotificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.HandleGatewayNotification(ctx, services.GatewayNotificationCommand{
		ExternalReference: strings.TrimSpace(req.ExternalReference),
		Status:            strings.TrimSpace(req.Status),
		PaidAmount:        req.PaidAmount,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentIntentNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", err.Error(), http.StatusNotFound))
		case errors.Is(err, services.ErrPaymentUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment processing is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected notification failure", http.StatusInternalServerError))
		}
		return
	}

	h.logger(ctx, "webhook.gateway.processed", map[string]any{
		"externalReference": req.ExternalReference,
		"intentId":          intent.ID,
		"status":            string(intent.Status),
	})

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"intentId": intent.ID,
		"status":   string(intent.Status),
	})
}
