package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/mercantia/api/internal/domain"
)

type fakeGateway struct {
	lastOp  string
	lastRef string
	charge  Charge
	status  ChargeStatus
	err     error
}

func (f *fakeGateway) CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error) {
	f.lastOp = "create"
	return f.charge, f.err
}

func (f *fakeGateway) GetChargeStatus(ctx context.Context, externalReference string) (ChargeStatus, error) {
	f.lastOp = "status"
	f.lastRef = externalReference
	return f.status, f.err
}

func TestManagerRoutesByMethod(t *testing.T) {
	ctx := context.Background()
	cards := &fakeGateway{charge: Charge{ExternalReference: "pi_123", Status: StatusPaid}}
	transfers := &fakeGateway{charge: Charge{ExternalReference: "or_456", Status: StatusPending}}

	mgr, err := NewManager(map[domain.PaymentMethod]Gateway{
		domain.PaymentMethodCard:            cards,
		domain.PaymentMethodInstantTransfer: transfers,
		domain.PaymentMethodVoucher:         transfers,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	charge, err := mgr.CreateCharge(ctx, CreateChargeRequest{Method: domain.PaymentMethodCard, Amount: 5400})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if charge.ExternalReference != "pi_123" {
		t.Fatalf("expected card gateway result, got %q", charge.ExternalReference)
	}
	if cards.lastOp != "create" {
		t.Fatalf("expected card gateway to handle call")
	}
	if transfers.lastOp != "" {
		t.Fatalf("expected transfer gateway to remain unused")
	}

	if _, err := mgr.CreateCharge(ctx, CreateChargeRequest{Method: domain.PaymentMethodVoucher, Amount: 5400}); err != nil {
		t.Fatalf("create voucher charge: %v", err)
	}
	if transfers.lastOp != "create" {
		t.Fatalf("expected transfer gateway to handle voucher call")
	}
}

func TestManagerGetChargeStatusDelegates(t *testing.T) {
	ctx := context.Background()
	transfers := &fakeGateway{status: ChargeStatus{Status: StatusPaid, PaidAmount: 6600}}

	mgr, err := NewManager(map[domain.PaymentMethod]Gateway{
		domain.PaymentMethodInstantTransfer: transfers,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	status, err := mgr.GetChargeStatus(ctx, domain.PaymentMethodInstantTransfer, "or_789")
	if err != nil {
		t.Fatalf("get charge status: %v", err)
	}
	if status.Status != StatusPaid || status.PaidAmount != 6600 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if transfers.lastRef != "or_789" {
		t.Fatalf("expected reference to be forwarded, got %q", transfers.lastRef)
	}
}

func TestManagerUnsupportedMethod(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[domain.PaymentMethod]Gateway{
		domain.PaymentMethodCard: &fakeGateway{},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := mgr.CreateCharge(ctx, CreateChargeRequest{Method: domain.PaymentMethodVoucher}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if _, err := mgr.GetChargeStatus(ctx, "instant_transfer", "or_1"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty gateway map")
	}
	if _, err := NewManager(map[domain.PaymentMethod]Gateway{"wire": &fakeGateway{}}); err == nil {
		t.Fatalf("expected error for invalid method key")
	}
	if _, err := NewManager(map[domain.PaymentMethod]Gateway{domain.PaymentMethodCard: nil}); err == nil {
		t.Fatalf("expected error for nil gateway")
	}
}
