package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/platform/auth"
	"github.com/mercantia/api/internal/platform/httpx"
	"github.com/mercantia/api/internal/services"
)

// CheckoutHandlers drives the payment and order finalization endpoints.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	orders   services.OrderService
}

const maxCheckoutBodySize = 16 * 1024

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(authn *auth.Authenticator, payments services.PaymentService, orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		payments: payments,
		orders:   orders,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireBuyer())
	}
	r.Post("/payment", h.startPayment)
	r.Get("/payment/{intentID}", h.getPayment)
	r.Post("/payment/{intentID}/wait", h.awaitPayment)
	r.Post("/finalize", h.finalizeOrder)
}

type startPaymentRequest struct {
	Method    string `json:"method"`
	CardToken string `json:"cardToken"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

func (h *CheckoutHandlers) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req startPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity.Email
	}

	intent, err := h.payments.StartPayment(ctx, services.StartPaymentCommand{
		BuyerID:    identity.UID,
		BuyerName:  req.Name,
		BuyerEmail: email,
		Method:     domain.PaymentMethod(strings.TrimSpace(req.Method)),
		CardToken:  req.CardToken,
	})
	if err != nil {
		h.writePaymentError(ctx, w, err, intent)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"intent": buildPaymentIntentPayload(intent)})
}

func (h *CheckoutHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
	if intentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "intent id is required", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.GetPaymentStatus(ctx, identity.UID, intentID)
	if err != nil {
		h.writePaymentError(ctx, w, err, services.PaymentIntent{})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"intent": buildPaymentIntentPayload(intent)})
}

func (h *CheckoutHandlers) awaitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
	if intentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "intent id is required", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.AwaitConfirmation(ctx, identity.UID, intentID)
	if err != nil {
		h.writePaymentError(ctx, w, err, services.PaymentIntent{})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"intent": buildPaymentIntentPayload(intent)})
}

type finalizeOrderRequest struct {
	IntentID string `json:"intentId"`
}

func (h *CheckoutHandlers) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req finalizeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.FinalizeOrder(ctx, services.FinalizeOrderCommand{
		BuyerID:  identity.UID,
		IntentID: req.IntentID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *CheckoutHandlers) requireBuyer(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// writePaymentError translates payment service failures; a declined charge still
// carries the failed intent so the client can inspect the reason.
func (h *CheckoutHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error, intent services.PaymentIntent) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput), errors.Is(err, services.ErrPaymentEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentIntentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotPollable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_pollable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGateway):
		e := httpx.NewError("payment_declined", err.Error(), http.StatusPaymentRequired)
		if intent.ID != "" {
			e = e.WithDetails(map[string]any{"intent": buildPaymentIntentPayload(intent)})
		}
		httpx.WriteError(ctx, w, e)
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment processing is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected payment failure", http.StatusInternalServerError))
	}
}

func (h *CheckoutHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderPaymentNotConfirmed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_confirmed", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("order_duplicate", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected order failure", http.StatusInternalServerError))
	}
}
