package domain

import (
	"time"
)

// PaymentMethod enumerates the supported checkout payment methods.
type PaymentMethod string

const (
	// PaymentMethodCard is a synchronous credit/debit card charge.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodInstantTransfer is an asynchronous bank transfer confirmed by polling or webhook.
	PaymentMethodInstantTransfer PaymentMethod = "instant_transfer"
	// PaymentMethodVoucher is a printed payment slip confirmed exclusively by webhook.
	PaymentMethodVoucher PaymentMethod = "voucher"
)

// Valid reports whether the method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodInstantTransfer, PaymentMethodVoucher:
		return true
	default:
		return false
	}
}

// PaymentStatus describes the lifecycle state of a payment intent.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the intent was created but the gateway has not responded yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAwaitingConfirmation indicates the gateway accepted the charge and confirmation is outstanding.
	PaymentStatusAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	// PaymentStatusConfirmed indicates the charge settled successfully.
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	// PaymentStatusFailed indicates the gateway rejected or the charge failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusExpired indicates the confirmation window elapsed before settlement.
	PaymentStatusExpired PaymentStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

// CartItem is a single product line within a buyer's cart.
type CartItem struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// Cart holds the buyer's pending purchase. The cart document ID equals the buyer UID.
type Cart struct {
	ID                string
	BuyerID           string
	Currency          string
	Items             []CartItem
	ShippingAddressID string
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsEmpty reports whether the cart carries no purchasable lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartTotals is the priced breakdown of a cart in minor currency units.
type CartTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Address is a buyer shipping address stored under the user subcollection.
type Address struct {
	ID         string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentPayload carries method-specific artefacts returned by the gateway.
type PaymentPayload struct {
	// QRCode is the copy-paste instant transfer code, when applicable.
	QRCode string
	// VoucherLine is the typeable digit line for voucher payments.
	VoucherLine string
	// VoucherBarcode is the scannable barcode for voucher payments.
	VoucherBarcode string
	// VoucherDueDate is the calendar due date for voucher payments.
	VoucherDueDate *time.Time
}

// PaymentIntent tracks one payment attempt through the orchestration state machine.
type PaymentIntent struct {
	ID                string
	BuyerID           string
	AttemptKey        string
	Method            PaymentMethod
	Status            PaymentStatus
	Amount            int64
	Currency          string
	ExternalReference string
	FailureReason     string
	Payload           PaymentPayload
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         *time.Time
}

// Expired reports whether the confirmation window elapsed at the given instant.
func (p PaymentIntent) Expired(now time.Time) bool {
	if p.ExpiresAt == nil || p.Status.Terminal() {
		return false
	}
	return !now.Before(*p.ExpiresAt)
}

// OrderStatus describes the lifecycle of a placed order.
type OrderStatus string

const (
	// OrderStatusPlaced indicates the order was created from a confirmed payment.
	OrderStatusPlaced OrderStatus = "placed"
)

// OrderItem is a frozen purchase line carrying the price at time of purchase.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

// OrderTotals records the priced breakdown frozen at finalization.
type OrderTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Order is the immutable record produced by a successful checkout.
type Order struct {
	ID                string
	Number            string
	BuyerID           string
	Items             []OrderItem
	ShippingAddressID string
	PaymentReference  string
	PaymentMethod     PaymentMethod
	Currency          string
	Totals            OrderTotals
	Status            OrderStatus
	CreatedAt         time.Time
}

// CheckoutEvent is published to Pub/Sub when checkout milestones occur.
type CheckoutEvent struct {
	Type       string
	BuyerID    string
	IntentID   string
	OrderID    string
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

const (
	// EventPaymentConfirmed is emitted when a payment intent reaches confirmed.
	EventPaymentConfirmed = "payment.confirmed"
	// EventOrderCreated is emitted when an order is finalized.
	EventOrderCreated = "order.created"
)
