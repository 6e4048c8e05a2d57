package repositories

import (
	"context"
	"time"

	domain "github.com/mercantia/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Addresses() AddressRepository
	PaymentIntents() PaymentIntentRepository
	Orders() OrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists cart documents keyed by buyer UID.
type CartRepository interface {
	GetCart(ctx context.Context, buyerID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// AddressRepository manages buyer shipping addresses under the user subcollection.
type AddressRepository interface {
	ListAddresses(ctx context.Context, buyerID string) ([]domain.Address, error)
	FindAddress(ctx context.Context, buyerID, addressID string) (domain.Address, error)
	// CreateAddress persists the address. When address.IsDefault is set the
	// default flag is cleared on every other address in the same transaction.
	CreateAddress(ctx context.Context, buyerID string, address domain.Address) (domain.Address, error)
	// SetDefaultAddress atomically moves the default flag to the given address.
	SetDefaultAddress(ctx context.Context, buyerID, addressID string) error
}

// PaymentIntentRepository persists payment intents keyed by attempt-derived document IDs.
type PaymentIntentRepository interface {
	// CreateIntent writes a new intent; the conflict error category signals
	// that an intent for the same attempt key already exists.
	CreateIntent(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentIntent, error)
	FindIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error)
	FindIntentByExternalReference(ctx context.Context, externalRef string) (domain.PaymentIntent, error)
	// UpdateStatus transitions the intent status inside a transaction. The
	// update is skipped (applied=false) when the stored status is already terminal.
	UpdateStatus(ctx context.Context, intentID string, update IntentStatusUpdate) (domain.PaymentIntent, bool, error)
}

// IntentStatusUpdate captures the fields mutated during a status transition.
type IntentStatusUpdate struct {
	Status            domain.PaymentStatus
	FailureReason     string
	ExternalReference string
	Payload           *domain.PaymentPayload
	// ExpiresAt, when set, establishes the confirmation window of the intent.
	ExpiresAt *time.Time
}

// OrderRepository persists immutable orders and enforces one order per payment reference.
type OrderRepository interface {
	// CreateFromCheckout atomically writes the order, claims the payment
	// reference lock, and clears the buyer's cart. The conflict error category
	// signals that the payment reference was already consumed.
	CreateFromCheckout(ctx context.Context, order domain.Order) (domain.Order, error)
	FindOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error)
}

// HealthRepository performs cheap backend liveness checks.
type HealthRepository interface {
	CheckReadiness(ctx context.Context) error
}
