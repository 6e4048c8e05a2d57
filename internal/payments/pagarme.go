package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mercantia/api/internal/domain"
)

// PagarmeLogger defines the logging contract for Pagar.me gateway operations.
type PagarmeLogger func(ctx context.Context, event string, fields map[string]any)

// PagarmeGatewayConfig configures the PagarmeGateway.
type PagarmeGatewayConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PagarmeLogger
	Clock      func() time.Time
	// InstantTransferExpiry bounds how long an instant transfer code stays payable.
	InstantTransferExpiry time.Duration
	// VoucherDueDays is the number of business days until a voucher falls due.
	VoucherDueDays int
}

// PagarmeGateway creates instant transfer and voucher charges through the
// Pagar.me core v5 orders API.
type PagarmeGateway struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	clock     func() time.Time
	logger    PagarmeLogger
	expiry    time.Duration
	dueDays   int
	authValue string
}

// NewPagarmeGateway constructs a Pagar.me gateway from the given configuration.
func NewPagarmeGateway(cfg PagarmeGatewayConfig) (*PagarmeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("pagarme: api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("pagarme: base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	expiry := cfg.InstantTransferExpiry
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}

	dueDays := cfg.VoucherDueDays
	if dueDays <= 0 {
		dueDays = 3
	}

	return &PagarmeGateway{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httpClient,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		expiry:    expiry,
		dueDays:   dueDays,
		authValue: "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
	}, nil
}

type pagarmeOrderRequest struct {
	Code     string            `json:"code,omitempty"`
	Customer pagarmeCustomer   `json:"customer"`
	Items    []pagarmeItem     `json:"items"`
	Payments []pagarmePayment  `json:"payments"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Closed   bool              `json:"closed"`
}

type pagarmeCustomer struct {
	Code  string `json:"code,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type pagarmeItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	Amount      int64  `json:"amount"`
}

type pagarmePayment struct {
	PaymentMethod string          `json:"payment_method"`
	Pix           *pagarmePix     `json:"pix,omitempty"`
	Boleto        *pagarmeBoleto  `json:"boleto,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type pagarmePix struct {
	ExpiresIn int64 `json:"expires_in"`
}

type pagarmeBoleto struct {
	DueAt        string `json:"due_at"`
	Instructions string `json:"instructions,omitempty"`
}

type pagarmeOrderResponse struct {
	ID      string          `json:"id"`
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Amount  int64           `json:"amount"`
	Charges []pagarmeCharge `json:"charges"`
}

type pagarmeCharge struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	Amount          int64               `json:"amount"`
	PaidAmount      int64               `json:"paid_amount"`
	LastTransaction *pagarmeTransaction `json:"last_transaction"`
}

type pagarmeTransaction struct {
	QRCode        string `json:"qr_code"`
	QRCodeURL     string `json:"qr_code_url"`
	ExpiresAt     string `json:"expires_at"`
	Line          string `json:"line"`
	Barcode       string `json:"barcode"`
	DueAt         string `json:"due_at"`
	GatewayStatus string `json:"status"`
	Message       string `json:"gateway_response_message"`
}

type pagarmeErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// CreateCharge opens a Pagar.me order carrying exactly one payment. Instant
// transfers return a copy-paste QR code with an expiry; vouchers return the
// digit line, barcode and a business-day due date.
func (g *PagarmeGateway) CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error) {
	if g == nil {
		return Charge{}, errors.New("pagarme: gateway is nil")
	}

	now := g.clock()
	payment := pagarmePayment{Amount: req.Amount}
	var dueDate time.Time

	switch req.Method {
	case domain.PaymentMethodInstantTransfer:
		payment.PaymentMethod = "pix"
		payment.Pix = &pagarmePix{ExpiresIn: int64(g.expiry / time.Second)}
	case domain.PaymentMethodVoucher:
		dueDate = nextBusinessDay(now, g.dueDays)
		payment.PaymentMethod = "boleto"
		payment.Boleto = &pagarmeBoleto{
			DueAt:        dueDate.Format("2006-01-02"),
			Instructions: "Pagável em qualquer banco até o vencimento",
		}
	default:
		return Charge{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	description := req.Description
	if description == "" {
		description = "Order"
	}

	body := pagarmeOrderRequest{
		Code: req.IdempotencyKey,
		Customer: pagarmeCustomer{
			Code:  req.Buyer.ID,
			Name:  defaultBuyerName(req.Buyer),
			Email: req.Buyer.Email,
		},
		Items: []pagarmeItem{{
			Description: description,
			Quantity:    1,
			Amount:      req.Amount,
		}},
		Payments: []pagarmePayment{payment},
		Metadata: req.Metadata,
		Closed:   true,
	}

	var order pagarmeOrderResponse
	if err := g.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return Charge{}, err
	}

	charge := Charge{
		ExternalReference: order.ID,
		Status:            mapPagarmeStatus(order.Status),
	}
	if tx := firstTransaction(order); tx != nil {
		charge.QRCode = tx.QRCode
		charge.VoucherLine = tx.Line
		charge.VoucherBarcode = tx.Barcode
		if tx.Message != "" && charge.Status == StatusFailed {
			charge.FailureReason = tx.Message
		}
	}

	switch req.Method {
	case domain.PaymentMethodInstantTransfer:
		expiresAt := now.Add(g.expiry)
		charge.ExpiresAt = &expiresAt
	case domain.PaymentMethodVoucher:
		charge.VoucherDueDate = &dueDate
		// Payable through the due date itself; the confirmation window
		// closes at the end of that day.
		expiresAt := dueDate.Add(24 * time.Hour)
		charge.ExpiresAt = &expiresAt
	}

	g.logger(ctx, "payments.pagarme.charge.created", map[string]any{
		"orderId": order.ID,
		"status":  order.Status,
		"method":  string(req.Method),
		"amount":  order.Amount,
	})

	return charge, nil
}

// GetChargeStatus polls a Pagar.me order and normalises its state.
func (g *PagarmeGateway) GetChargeStatus(ctx context.Context, externalReference string) (ChargeStatus, error) {
	if g == nil {
		return ChargeStatus{}, errors.New("pagarme: gateway is nil")
	}
	if strings.TrimSpace(externalReference) == "" {
		return ChargeStatus{}, errors.New("pagarme: external reference is required")
	}

	var order pagarmeOrderResponse
	if err := g.do(ctx, http.MethodGet, "/orders/"+externalReference, nil, &order); err != nil {
		return ChargeStatus{}, err
	}

	status := ChargeStatus{Status: mapPagarmeStatus(order.Status)}
	for _, ch := range order.Charges {
		status.PaidAmount += ch.PaidAmount
	}
	return status, nil
}

func (g *PagarmeGateway) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("pagarme: encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("pagarme: build request: %w", err)
	}
	req.Header.Set("Authorization", g.authValue)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagarme: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("pagarme: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr pagarmeErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("pagarme: %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("pagarme: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("pagarme: decode response: %w", err)
	}
	return nil
}

func firstTransaction(order pagarmeOrderResponse) *pagarmeTransaction {
	for _, charge := range order.Charges {
		if charge.LastTransaction != nil {
			return charge.LastTransaction
		}
	}
	return nil
}

func mapPagarmeStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return StatusPaid
	case "pending", "processing":
		return StatusPending
	case "failed", "canceled", "voided":
		return StatusFailed
	case "expired":
		return StatusExpired
	default:
		return StatusPending
	}
}

func defaultBuyerName(buyer Buyer) string {
	if strings.TrimSpace(buyer.Name) != "" {
		return buyer.Name
	}
	if buyer.Email != "" {
		return buyer.Email
	}
	return buyer.ID
}

// nextBusinessDay advances from the given day by n business days, skipping
// Saturdays and Sundays. The returned time is truncated to midnight UTC.
func nextBusinessDay(from time.Time, n int) time.Time {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for added := 0; added < n; {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return day
}
