package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/services"
)

func newWebhookRouter(payments services.PaymentService) chi.Router {
	handler := NewWebhookHandlers(payments)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func TestWebhookHandlersGatewayNotification(t *testing.T) {
	var captured services.GatewayNotificationCommand
	payments := &stubPaymentService{
		notifyFunc: func(ctx context.Context, cmd services.GatewayNotificationCommand) (services.PaymentIntent, error) {
			captured = cmd
			intent := awaitingIntent()
			intent.Status = domain.PaymentStatusConfirmed
			return intent, nil
		},
	}

	body := `{"externalReference":"or_pix_1","status":"paid","paidAmount":5400}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(payments).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ExternalReference != "or_pix_1" || captured.Status != "paid" || captured.PaidAmount != 5400 {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var resp struct {
		IntentID string `json:"intentId"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.IntentID != "pi_1" || resp.Status != "confirmed" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestWebhookHandlersReplaySafe(t *testing.T) {
	calls := 0
	payments := &stubPaymentService{
		notifyFunc: func(ctx context.Context, cmd services.GatewayNotificationCommand) (services.PaymentIntent, error) {
			calls++
			intent := awaitingIntent()
			intent.Status = domain.PaymentStatusConfirmed
			return intent, nil
		},
	}

	router := newWebhookRouter(payments)
	body := `{"externalReference":"or_pix_1","status":"paid","paidAmount":5400}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected status 200, got %d", i+1, rr.Code)
		}
	}

	if calls != 2 {
		t.Fatalf("expected both deliveries handed to the service, got %d", calls)
	}
}

func TestWebhookHandlersUnknownReference(t *testing.T) {
	payments := &stubPaymentService{
		notifyFunc: func(ctx context.Context, cmd services.GatewayNotificationCommand) (services.PaymentIntent, error) {
			return services.PaymentIntent{}, services.ErrPaymentIntentNotFound
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(`{"externalReference":"or_unknown","status":"paid"}`))
	rr := httptest.NewRecorder()
	newWebhookRouter(payments).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestWebhookHandlersRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	newWebhookRouter(&stubPaymentService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
