package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/repositories"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the referenced product line is not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartAddressNotFound indicates the shipping address does not belong to the buyer.
var ErrCartAddressNotFound = errors.New("cart service: address not found")

const maxCartItemQuantity = 99

// CartPricer computes totals for a cart snapshot.
type CartPricer interface {
	Compute(ctx context.Context, cart Cart) (CartTotals, error)
}

type cartAddressFinder interface {
	FindAddress(ctx context.Context, buyerID, addressID string) (domain.Address, error)
}

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Addresses       cartAddressFinder
	Pricer          CartPricer
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo      repositories.CartRepository
	addresses cartAddressFinder
	pricer    CartPricer
	newID     func() string
	now       func() time.Time
	currency  string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errors.New("cart service: repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("cart service: pricer is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("cart service: clock is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "BRL"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:      deps.Repository,
		addresses: deps.Addresses,
		pricer:    deps.Pricer,
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		currency:  currency,
		logger:    logger,
	}, nil
}

// GetCart loads the buyer's cart, returning an empty cart when none exists yet.
func (s *cartService) GetCart(ctx context.Context, buyerID string) (CartView, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return CartView{}, fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadOrInitCart(ctx, buyerID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

// AddItem appends a product line or bumps the quantity of an existing line.
func (s *cartService) AddItem(ctx context.Context, cmd UpsertCartItemCommand) (CartView, error) {
	cmd.BuyerID = strings.TrimSpace(cmd.BuyerID)
	cmd.ProductID = strings.TrimSpace(cmd.ProductID)
	cmd.Name = strings.TrimSpace(cmd.Name)

	switch {
	case cmd.BuyerID == "":
		return CartView{}, fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	case cmd.ProductID == "":
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	case cmd.Name == "":
		return CartView{}, fmt.Errorf("%w: product name is required", ErrCartInvalidInput)
	case cmd.UnitPrice < 0:
		return CartView{}, fmt.Errorf("%w: unit price must not be negative", ErrCartInvalidInput)
	case cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity:
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	cart, err := s.loadOrInitCart(ctx, cmd.BuyerID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	merged := false
	for i, item := range cart.Items {
		if item.ProductID != cmd.ProductID {
			continue
		}
		quantity := item.Quantity + cmd.Quantity
		if quantity > maxCartItemQuantity {
			return CartView{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartItemQuantity)
		}
		cart.Items[i].Quantity = quantity
		cart.Items[i].Name = cmd.Name
		cart.Items[i].UnitPrice = cmd.UnitPrice
		merged = true
		break
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			ProductID: cmd.ProductID,
			Name:      cmd.Name,
			Quantity:  cmd.Quantity,
			UnitPrice: cmd.UnitPrice,
			AddedAt:   now,
		})
	}
	cart.UpdatedAt = now

	return s.save(ctx, cart, "cart.item.added", map[string]any{
		"productId": cmd.ProductID,
		"quantity":  cmd.Quantity,
	})
}

// UpdateItemQuantity replaces the quantity of an existing product line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, buyerID, productID string, quantity int) (CartView, error) {
	buyerID = strings.TrimSpace(buyerID)
	productID = strings.TrimSpace(productID)
	if buyerID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: buyer id and product id are required", ErrCartInvalidInput)
	}
	if quantity <= 0 || quantity > maxCartItemQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	cart, err := s.loadCart(ctx, buyerID)
	if err != nil {
		return CartView{}, err
	}

	found := false
	for i, item := range cart.Items {
		if item.ProductID == productID {
			cart.Items[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}
	cart.UpdatedAt = s.now()

	return s.save(ctx, cart, "cart.item.updated", map[string]any{
		"productId": productID,
		"quantity":  quantity,
	})
}

// RemoveItem drops a product line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, buyerID, productID string) (CartView, error) {
	buyerID = strings.TrimSpace(buyerID)
	productID = strings.TrimSpace(productID)
	if buyerID == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: buyer id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, buyerID)
	if err != nil {
		return CartView{}, err
	}

	items := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}
	cart.Items = items
	cart.UpdatedAt = s.now()

	return s.save(ctx, cart, "cart.item.removed", map[string]any{
		"productId": productID,
	})
}

// SetShippingAddress attaches one of the buyer's addresses to the cart.
func (s *cartService) SetShippingAddress(ctx context.Context, buyerID, addressID string) (CartView, error) {
	buyerID = strings.TrimSpace(buyerID)
	addressID = strings.TrimSpace(addressID)
	if buyerID == "" || addressID == "" {
		return CartView{}, fmt.Errorf("%w: buyer id and address id are required", ErrCartInvalidInput)
	}
	if s.addresses == nil {
		return CartView{}, ErrCartUnavailable
	}

	if _, err := s.addresses.FindAddress(ctx, buyerID, addressID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CartView{}, fmt.Errorf("%w: %s", ErrCartAddressNotFound, addressID)
		}
		return CartView{}, fmt.Errorf("%w: find address: %v", ErrCartUnavailable, err)
	}

	cart, err := s.loadOrInitCart(ctx, buyerID)
	if err != nil {
		return CartView{}, err
	}
	cart.ShippingAddressID = addressID
	cart.UpdatedAt = s.now()

	return s.save(ctx, cart, "cart.shipping_address.set", map[string]any{
		"addressId": addressID,
	})
}

// ClearCart removes the buyer's cart document. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, buyerID string) error {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}

	if err := s.repo.ClearCart(ctx, buyerID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return fmt.Errorf("%w: clear cart: %v", ErrCartUnavailable, err)
	}

	s.logger(ctx, "cart.cleared", map[string]any{"buyerId": buyerID})
	return nil
}

func (s *cartService) loadOrInitCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, buyerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			now := s.now()
			return domain.Cart{
				ID:        buyerID,
				BuyerID:   buyerID,
				Currency:  s.currency,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		return domain.Cart{}, fmt.Errorf("%w: get cart: %v", ErrCartUnavailable, err)
	}
	return cart, nil
}

func (s *cartService) loadCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, buyerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{}, fmt.Errorf("%w: cart is empty", ErrCartItemNotFound)
		}
		return domain.Cart{}, fmt.Errorf("%w: get cart: %v", ErrCartUnavailable, err)
	}
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart domain.Cart, event string, fields map[string]any) (CartView, error) {
	saved, err := s.repo.SaveCart(ctx, cart)
	if err != nil {
		return CartView{}, fmt.Errorf("%w: save cart: %v", ErrCartUnavailable, err)
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["buyerId"] = cart.BuyerID
	s.logger(ctx, event, fields)

	return s.view(ctx, saved)
}

// view attaches fresh totals to the cart. An empty cart is a valid view
// with zero totals, not a pricing failure.
func (s *cartService) view(ctx context.Context, cart domain.Cart) (CartView, error) {
	if cart.IsEmpty() {
		return CartView{Cart: cart}, nil
	}
	totals, err := s.pricer.Compute(ctx, cart)
	if err != nil {
		return CartView{}, fmt.Errorf("%w: price cart: %v", ErrCartInvalidInput, err)
	}
	return CartView{Cart: cart, Totals: totals}, nil
}
