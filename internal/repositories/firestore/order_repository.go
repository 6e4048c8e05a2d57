package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/mercantia/api/internal/domain"
	pfirestore "github.com/mercantia/api/internal/platform/firestore"
)

const (
	orderCollection       = "orders"
	paymentLockCollection = "payment_references"
)

// OrderRepository persists immutable orders and enforces one order per payment reference.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// CreateFromCheckout runs the finalization transaction: write the order, claim
// the payment-reference lock, and delete the buyer's cart. The lock is claimed
// with Create so a consumed reference surfaces as a conflict and nothing is
// written.
func (r *OrderRepository) CreateFromCheckout(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	buyerID := strings.TrimSpace(order.BuyerID)
	if buyerID == "" {
		return domain.Order{}, errors.New("order repository: buyer id is required")
	}
	paymentRef := strings.TrimSpace(order.PaymentReference)
	if paymentRef == "" {
		return domain.Order{}, errors.New("order repository: payment reference is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := orderDocumentFromDomain(order, createdAt)

	orderRef := client.Collection(orderCollection).Doc(orderID)
	lockRef := client.Collection(paymentLockCollection).Doc(lockDocID(paymentRef))
	cartRef := client.Collection(cartCollection).Doc(buyerID)

	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(lockRef, paymentLockDocument{
			OrderID:          orderID,
			BuyerID:          buyerID,
			PaymentReference: paymentRef,
			CreatedAt:        createdAt,
		}); err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		return tx.Delete(cartRef)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.createFromCheckout", err)
	}

	return doc.toDomain(orderID), nil
}

// FindOrder loads the order by its ID.
func (r *OrderRepository) FindOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListOrdersByBuyer returns the buyer's most recent orders.
func (r *OrderRepository) ListOrdersByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return nil, errors.New("order repository: buyer id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("buyerId", "==", uid).OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// lockDocID normalises payment references into valid Firestore document IDs.
func lockDocID(paymentRef string) string {
	return strings.ReplaceAll(strings.TrimSpace(paymentRef), "/", "_")
}

type paymentLockDocument struct {
	OrderID          string    `firestore:"orderId"`
	BuyerID          string    `firestore:"buyerId"`
	PaymentReference string    `firestore:"paymentReference"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	Number            string              `firestore:"number"`
	BuyerID           string              `firestore:"buyerId"`
	Items             []orderItemDocument `firestore:"items"`
	ShippingAddressID string              `firestore:"shippingAddressId,omitempty"`
	PaymentReference  string              `firestore:"paymentReference"`
	PaymentMethod     string              `firestore:"paymentMethod"`
	Currency          string              `firestore:"currency"`
	Subtotal          int64               `firestore:"subtotal"`
	Tax               int64               `firestore:"tax"`
	Shipping          int64               `firestore:"shipping"`
	Total             int64               `firestore:"total"`
	Status            string              `firestore:"status"`
	CreatedAt         time.Time           `firestore:"createdAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func orderDocumentFromDomain(order domain.Order, createdAt time.Time) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderDocument{
		Number:            strings.TrimSpace(order.Number),
		BuyerID:           strings.TrimSpace(order.BuyerID),
		Items:             items,
		ShippingAddressID: strings.TrimSpace(order.ShippingAddressID),
		PaymentReference:  strings.TrimSpace(order.PaymentReference),
		PaymentMethod:     string(order.PaymentMethod),
		Currency:          strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:          order.Totals.Subtotal,
		Tax:               order.Totals.Tax,
		Shipping:          order.Totals.Shipping,
		Total:             order.Totals.Total,
		Status:            string(order.Status),
		CreatedAt:         createdAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return domain.Order{
		ID:                id,
		Number:            d.Number,
		BuyerID:           d.BuyerID,
		Items:             items,
		ShippingAddressID: d.ShippingAddressID,
		PaymentReference:  d.PaymentReference,
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		Currency:          d.Currency,
		Totals: domain.OrderTotals{
			Subtotal: d.Subtotal,
			Tax:      d.Tax,
			Shipping: d.Shipping,
			Total:    d.Total,
		},
		Status:    domain.OrderStatus(d.Status),
		CreatedAt: d.CreatedAt,
	}
}
