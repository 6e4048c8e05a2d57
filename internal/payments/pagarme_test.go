package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mercantia/api/internal/domain"
)

func testClock() func() time.Time {
	// A Wednesday, so three business days land on the following Monday.
	return func() time.Time {
		return time.Date(2025, time.March, 12, 15, 30, 0, 0, time.UTC)
	}
}

func TestPagarmeCreateInstantTransferCharge(t *testing.T) {
	var captured pagarmeOrderRequest
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(pagarmeOrderResponse{
			ID:     "or_abc123",
			Status: "pending",
			Amount: 5400,
			Charges: []pagarmeCharge{{
				ID:     "ch_1",
				Status: "pending",
				LastTransaction: &pagarmeTransaction{
					QRCode: "00020126pix-copy-paste",
				},
			}},
		})
	}))
	defer server.Close()

	gw, err := NewPagarmeGateway(PagarmeGatewayConfig{
		APIKey:                "sk_test_abc",
		BaseURL:               server.URL,
		Clock:                 testClock(),
		InstantTransferExpiry: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	charge, err := gw.CreateCharge(context.Background(), CreateChargeRequest{
		Method:         domain.PaymentMethodInstantTransfer,
		Amount:         5400,
		Currency:       "BRL",
		Buyer:          Buyer{ID: "buyer-1", Name: "Ana Souza", Email: "ana@example.com"},
		IdempotencyKey: "pi_attempt",
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test_abc:"))
	if authHeader != wantAuth {
		t.Fatalf("unexpected auth header: %q", authHeader)
	}
	if len(captured.Payments) != 1 || captured.Payments[0].PaymentMethod != "pix" {
		t.Fatalf("expected a single pix payment, got %+v", captured.Payments)
	}
	if captured.Payments[0].Pix == nil || captured.Payments[0].Pix.ExpiresIn != 1800 {
		t.Fatalf("expected pix expiry of 1800s, got %+v", captured.Payments[0].Pix)
	}
	if captured.Customer.Name != "Ana Souza" {
		t.Fatalf("unexpected customer: %+v", captured.Customer)
	}

	if charge.ExternalReference != "or_abc123" {
		t.Fatalf("unexpected reference: %q", charge.ExternalReference)
	}
	if charge.Status != StatusPending {
		t.Fatalf("unexpected status: %q", charge.Status)
	}
	if charge.QRCode != "00020126pix-copy-paste" {
		t.Fatalf("unexpected qr code: %q", charge.QRCode)
	}
	wantExpiry := time.Date(2025, time.March, 12, 16, 0, 0, 0, time.UTC)
	if charge.ExpiresAt == nil || !charge.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("unexpected expiry: %v", charge.ExpiresAt)
	}
}

func TestPagarmeCreateVoucherChargeSkipsWeekend(t *testing.T) {
	var captured pagarmeOrderRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(pagarmeOrderResponse{
			ID:     "or_boleto1",
			Status: "pending",
			Charges: []pagarmeCharge{{
				LastTransaction: &pagarmeTransaction{
					Line:    "00190.00009 01234.567890 12345.678901 1 99990000005400",
					Barcode: "00199999000000054000000001234567890123456789012",
				},
			}},
		})
	}))
	defer server.Close()

	gw, err := NewPagarmeGateway(PagarmeGatewayConfig{
		APIKey:         "sk_test_abc",
		BaseURL:        server.URL,
		Clock:          testClock(),
		VoucherDueDays: 3,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	charge, err := gw.CreateCharge(context.Background(), CreateChargeRequest{
		Method: domain.PaymentMethodVoucher,
		Amount: 5400,
		Buyer:  Buyer{ID: "buyer-1", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}

	// Wednesday March 12 plus three business days is Monday March 17.
	if captured.Payments[0].Boleto == nil || captured.Payments[0].Boleto.DueAt != "2025-03-17" {
		t.Fatalf("unexpected due date: %+v", captured.Payments[0].Boleto)
	}
	if charge.VoucherLine == "" || charge.VoucherBarcode == "" {
		t.Fatalf("expected voucher artefacts, got %+v", charge)
	}
	wantDue := time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC)
	if charge.VoucherDueDate == nil || !charge.VoucherDueDate.Equal(wantDue) {
		t.Fatalf("unexpected due date: %v", charge.VoucherDueDate)
	}
	if charge.ExpiresAt == nil || !charge.ExpiresAt.Equal(wantDue.Add(24*time.Hour)) {
		t.Fatalf("unexpected confirmation window: %v", charge.ExpiresAt)
	}
}

func TestPagarmeGetChargeStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/orders/or_abc123" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(pagarmeOrderResponse{
			ID:     "or_abc123",
			Status: "paid",
			Charges: []pagarmeCharge{{
				Status:     "paid",
				PaidAmount: 5400,
			}},
		})
	}))
	defer server.Close()

	gw, err := NewPagarmeGateway(PagarmeGatewayConfig{APIKey: "sk_test_abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	status, err := gw.GetChargeStatus(context.Background(), "or_abc123")
	if err != nil {
		t.Fatalf("get charge status: %v", err)
	}
	if status.Status != StatusPaid || status.PaidAmount != 5400 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPagarmeErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The request is invalid."}`))
	}))
	defer server.Close()

	gw, err := NewPagarmeGateway(PagarmeGatewayConfig{APIKey: "sk_test_abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	_, err = gw.CreateCharge(context.Background(), CreateChargeRequest{
		Method: domain.PaymentMethodInstantTransfer,
		Amount: 100,
		Buyer:  Buyer{ID: "buyer-1"},
	})
	if err == nil {
		t.Fatalf("expected error for 422 response")
	}
}

func TestMapPagarmeStatus(t *testing.T) {
	cases := map[string]Status{
		"paid":       StatusPaid,
		"PAID":       StatusPaid,
		"pending":    StatusPending,
		"processing": StatusPending,
		"failed":     StatusFailed,
		"canceled":   StatusFailed,
		"expired":    StatusExpired,
		"":           StatusPending,
	}
	for in, want := range cases {
		if got := mapPagarmeStatus(in); got != want {
			t.Fatalf("mapPagarmeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
