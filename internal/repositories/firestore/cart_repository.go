package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/mercantia/api/internal/domain"
	pfirestore "github.com/mercantia/api/internal/platform/firestore"
)

const cartCollection = "carts"

// CartRepository persists cart documents within Firestore, keyed by buyer UID.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given buyer UID.
func (r *CartRepository) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// SaveCart upserts the cart document using the buyer UID as document identifier.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	uid := strings.TrimSpace(cart.BuyerID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocumentFromDomain(cart, createdAt, now)

	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(uid)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ClearCart deletes the cart document. Clearing a missing cart is not an error.
func (r *CartRepository) ClearCart(ctx context.Context, buyerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return errors.New("cart repository: buyer id is required")
	}
	return r.base.Delete(ctx, uid)
}

type cartDocument struct {
	Currency          string             `firestore:"currency"`
	Items             []cartItemDocument `firestore:"items"`
	ShippingAddressID string             `firestore:"shippingAddressId,omitempty"`
	Metadata          map[string]string  `firestore:"metadata,omitempty"`
	CreatedAt         time.Time          `firestore:"createdAt"`
	UpdatedAt         time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name,omitempty"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func cartDocumentFromDomain(cart domain.Cart, createdAt, updatedAt time.Time) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ID:        strings.TrimSpace(item.ID),
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cartDocument{
		Currency:          strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:             items,
		ShippingAddressID: strings.TrimSpace(cart.ShippingAddressID),
		Metadata:          cloneStringMap(cart.Metadata),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
		})
	}
	return domain.Cart{
		ID:                id,
		BuyerID:           id,
		Currency:          strings.ToUpper(strings.TrimSpace(d.Currency)),
		Items:             items,
		ShippingAddressID: strings.TrimSpace(d.ShippingAddressID),
		Metadata:          cloneStringMap(d.Metadata),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func cloneStringMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
