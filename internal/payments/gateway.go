package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mercantia/api/internal/domain"
)

// Status enumerates the normalised charge states shared across gateways.
type Status string

const (
	// StatusPending indicates the charge is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the charge as successfully paid.
	StatusPaid Status = "paid"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusExpired indicates the charge lapsed before the customer completed it.
	StatusExpired Status = "expired"
)

// ErrUnsupportedMethod is returned when the manager cannot route a payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// Buyer identifies the paying customer on gateway requests.
type Buyer struct {
	ID    string
	Name  string
	Email string
}

// CreateChargeRequest captures the payload required to open a charge with a gateway.
type CreateChargeRequest struct {
	Method         domain.PaymentMethod
	Amount         int64
	Currency       string
	Buyer          Buyer
	CardToken      string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Charge represents a gateway charge normalised for storage on a payment intent.
type Charge struct {
	ExternalReference string
	Status            Status
	QRCode            string
	VoucherLine       string
	VoucherBarcode    string
	VoucherDueDate    *time.Time
	ExpiresAt         *time.Time
	FailureReason     string
	Raw               map[string]any
}

// ChargeStatus is the result of polling a gateway for an existing charge.
type ChargeStatus struct {
	Status     Status
	PaidAmount int64
}

// Gateway abstracts a payment service provider for a subset of payment methods.
type Gateway interface {
	// CreateCharge opens a charge and returns the method specific artefacts.
	CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error)
	// GetChargeStatus fetches the current state of a previously created charge.
	GetChargeStatus(ctx context.Context, externalReference string) (ChargeStatus, error)
}

// Manager routes charge operations to the gateway registered for each payment method.
type Manager struct {
	gateways map[domain.PaymentMethod]Gateway
}

// NewManager builds a Manager from the provided method to gateway mapping.
func NewManager(gateways map[domain.PaymentMethod]Gateway) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}

	routed := make(map[domain.PaymentMethod]Gateway, len(gateways))
	for method, gateway := range gateways {
		if !method.Valid() {
			return nil, fmt.Errorf("payments: invalid payment method %q", method)
		}
		if gateway == nil {
			return nil, fmt.Errorf("payments: nil gateway for method %q", method)
		}
		routed[method] = gateway
	}

	return &Manager{gateways: routed}, nil
}

// CreateCharge delegates charge creation to the gateway handling the request method.
func (m *Manager) CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error) {
	gateway, err := m.resolveGateway(req.Method)
	if err != nil {
		return Charge{}, err
	}
	return gateway.CreateCharge(ctx, req)
}

// GetChargeStatus delegates a status poll to the gateway handling the method.
func (m *Manager) GetChargeStatus(ctx context.Context, method domain.PaymentMethod, externalReference string) (ChargeStatus, error) {
	gateway, err := m.resolveGateway(method)
	if err != nil {
		return ChargeStatus{}, err
	}
	return gateway.GetChargeStatus(ctx, externalReference)
}

func (m *Manager) resolveGateway(method domain.PaymentMethod) (Gateway, error) {
	if m == nil || len(m.gateways) == 0 {
		return nil, errors.New("payments: manager not configured")
	}
	gateway, ok := m.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return gateway, nil
}
