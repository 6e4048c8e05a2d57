package services

import (
	"context"

	domain "github.com/mercantia/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart           = domain.Cart
	CartItem       = domain.CartItem
	CartTotals     = domain.CartTotals
	Address        = domain.Address
	PaymentMethod  = domain.PaymentMethod
	PaymentStatus  = domain.PaymentStatus
	PaymentPayload = domain.PaymentPayload
	PaymentIntent  = domain.PaymentIntent
	Order          = domain.Order
	OrderItem      = domain.OrderItem
	OrderTotals    = domain.OrderTotals
	CheckoutEvent  = domain.CheckoutEvent
)

// EventPublisher delivers checkout milestone events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event CheckoutEvent) error
}

// CartView pairs the stored cart with its freshly computed totals.
type CartView struct {
	Cart   Cart
	Totals CartTotals
}

// UpsertCartItemCommand adds a product line or replaces the quantity of an existing one.
type UpsertCartItemCommand struct {
	BuyerID   string
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
}

// CartService manages mutable cart state and keeps totals consistent with every read.
type CartService interface {
	GetCart(ctx context.Context, buyerID string) (CartView, error)
	AddItem(ctx context.Context, cmd UpsertCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, buyerID, productID string, quantity int) (CartView, error)
	RemoveItem(ctx context.Context, buyerID, productID string) (CartView, error)
	SetShippingAddress(ctx context.Context, buyerID, addressID string) (CartView, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// CreateAddressCommand carries the fields of a new shipping address.
type CreateAddressCommand struct {
	BuyerID    string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	IsDefault  bool
}

// AddressService validates and persists buyer shipping addresses.
type AddressService interface {
	ListAddresses(ctx context.Context, buyerID string) ([]Address, error)
	CreateAddress(ctx context.Context, cmd CreateAddressCommand) (Address, error)
	SetDefaultAddress(ctx context.Context, buyerID, addressID string) (Address, error)
}

// StartPaymentCommand opens a payment attempt against the buyer's current cart.
type StartPaymentCommand struct {
	BuyerID    string
	BuyerName  string
	BuyerEmail string
	Method     PaymentMethod
	// CardToken is the tokenised card reference, required for card payments only.
	CardToken string
}

// GatewayNotificationCommand is the normalised body of a verified gateway webhook.
type GatewayNotificationCommand struct {
	ExternalReference string
	Status            string
	PaidAmount        int64
}

// PaymentService drives the payment intent state machine from creation to a terminal state.
type PaymentService interface {
	StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentIntent, error)
	GetPaymentStatus(ctx context.Context, buyerID, intentID string) (PaymentIntent, error)
	// AwaitConfirmation polls the gateway until the intent reaches a terminal
	// state, the polling ceiling elapses, or the context is cancelled.
	AwaitConfirmation(ctx context.Context, buyerID, intentID string) (PaymentIntent, error)
	HandleGatewayNotification(ctx context.Context, cmd GatewayNotificationCommand) (PaymentIntent, error)
}

// FinalizeOrderCommand turns a confirmed payment intent into an immutable order.
type FinalizeOrderCommand struct {
	BuyerID  string
	IntentID string
}

// OrderService finalizes checkouts and exposes order reads.
type OrderService interface {
	FinalizeOrder(ctx context.Context, cmd FinalizeOrderCommand) (Order, error)
	GetOrder(ctx context.Context, buyerID, orderID string) (Order, error)
	ListOrders(ctx context.Context, buyerID string, limit int) ([]Order, error)
}
