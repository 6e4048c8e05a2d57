package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"

	pfirestore "github.com/mercantia/api/internal/platform/firestore"
	"github.com/mercantia/api/internal/repositories"
)

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}

// Registry bundles the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	carts     *CartRepository
	addresses *AddressRepository
	intents   *PaymentIntentRepository
	orders    *OrderRepository
	health    *HealthRepository
}

// NewRegistry wires all repositories against a shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	intents, err := NewPaymentIntentRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		carts:     carts,
		addresses: addresses,
		intents:   intents,
		orders:    orders,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Addresses returns the address repository.
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }

// PaymentIntents returns the payment intent repository.
func (r *Registry) PaymentIntents() repositories.PaymentIntentRepository { return r.intents }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Health returns the readiness check repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// HealthRepository verifies the Firestore backend answers reads.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs the readiness check repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// CheckReadiness performs a cheap read against the backend.
func (r *HealthRepository) CheckReadiness(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("health repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	iter := client.Collections(ctx)
	if _, err := iter.Next(); err != nil && !isIteratorDone(err) {
		return pfirestore.WrapError("health.readiness", err)
	}
	return nil
}
