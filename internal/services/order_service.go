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

// ErrOrderInvalidInput indicates the finalize request failed validation.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist for the buyer.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderPaymentNotConfirmed indicates the referenced intent has not settled.
var ErrOrderPaymentNotConfirmed = errors.New("order service: payment not confirmed")

// ErrOrderAmountMismatch indicates the cart no longer prices to the paid amount.
var ErrOrderAmountMismatch = errors.New("order service: amount mismatch")

// ErrOrderDuplicate indicates an order was already created for the payment reference.
var ErrOrderDuplicate = errors.New("order service: duplicate order")

// ErrOrderEmptyCart indicates the buyer's cart vanished before finalization.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderUnavailable indicates a backend failure while finalizing or reading orders.
var ErrOrderUnavailable = errors.New("order service: unavailable")

const defaultOrderListLimit = 20

// OrderServiceDeps wires the repositories and pricing dependencies for order operations.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Intents   repositories.PaymentIntentRepository
	Carts     repositories.CartRepository
	Pricer    CartPricer
	Publisher EventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
	// IDGenerator produces order document IDs and order numbers.
	IDGenerator func() string
}

type orderService struct {
	orders    repositories.OrderRepository
	intents   repositories.PaymentIntentRepository
	carts     repositories.CartRepository
	pricer    CartPricer
	publisher EventPublisher
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Intents == nil {
		return nil, errors.New("order service: intent repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("order service: pricer is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("order service: clock is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &orderService{
		orders:    deps.Orders,
		intents:   deps.Intents,
		carts:     deps.Carts,
		pricer:    deps.Pricer,
		publisher: deps.Publisher,
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}, nil
}

// FinalizeOrder converts a confirmed payment intent into an immutable order.
// The order write, the payment reference claim and the cart removal happen in
// one transaction, so a duplicate finalize attempt either replays as a
// conflict or leaves no partial state behind.
func (s *orderService) FinalizeOrder(ctx context.Context, cmd FinalizeOrderCommand) (Order, error) {
	cmd.BuyerID = strings.TrimSpace(cmd.BuyerID)
	cmd.IntentID = strings.TrimSpace(cmd.IntentID)
	if cmd.BuyerID == "" || cmd.IntentID == "" {
		return Order{}, fmt.Errorf("%w: buyer id and intent id are required", ErrOrderInvalidInput)
	}

	intent, err := s.intents.FindIntent(ctx, cmd.IntentID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: intent %s", ErrOrderNotFound, cmd.IntentID)
		}
		return Order{}, fmt.Errorf("%w: find intent: %v", ErrOrderUnavailable, err)
	}
	if intent.BuyerID != cmd.BuyerID {
		return Order{}, fmt.Errorf("%w: intent %s", ErrOrderNotFound, cmd.IntentID)
	}
	if intent.Status != domain.PaymentStatusConfirmed {
		return Order{}, fmt.Errorf("%w: intent is %s", ErrOrderPaymentNotConfirmed, intent.Status)
	}

	cart, err := s.carts.GetCart(ctx, cmd.BuyerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, ErrOrderEmptyCart
		}
		return Order{}, fmt.Errorf("%w: load cart: %v", ErrOrderUnavailable, err)
	}
	if cart.IsEmpty() {
		return Order{}, ErrOrderEmptyCart
	}

	totals, err := s.pricer.Compute(ctx, cart)
	if err != nil {
		return Order{}, fmt.Errorf("%w: price cart: %v", ErrOrderInvalidInput, err)
	}
	if totals.Total != intent.Amount {
		return Order{}, fmt.Errorf("%w: cart totals %d, paid %d", ErrOrderAmountMismatch, totals.Total, intent.Amount)
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	orderID := s.newID()
	order := domain.Order{
		ID:                orderID,
		Number:            "MR-" + orderID,
		BuyerID:           cmd.BuyerID,
		Items:             items,
		ShippingAddressID: cart.ShippingAddressID,
		PaymentReference:  intent.ID,
		PaymentMethod:     intent.Method,
		Currency:          intent.Currency,
		Totals: domain.OrderTotals{
			Subtotal: totals.Subtotal,
			Tax:      totals.Tax,
			Shipping: totals.Shipping,
			Total:    totals.Total,
		},
		Status:    domain.OrderStatusPlaced,
		CreatedAt: s.now(),
	}

	created, err := s.orders.CreateFromCheckout(ctx, order)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Order{}, fmt.Errorf("%w: payment %s", ErrOrderDuplicate, intent.ID)
		}
		return Order{}, fmt.Errorf("%w: create order: %v", ErrOrderUnavailable, err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":  created.ID,
		"number":   created.Number,
		"buyerId":  cmd.BuyerID,
		"intentId": intent.ID,
		"total":    created.Totals.Total,
	})

	if s.publisher != nil {
		event := domain.CheckoutEvent{
			Type:       domain.EventOrderCreated,
			BuyerID:    cmd.BuyerID,
			IntentID:   intent.ID,
			OrderID:    created.ID,
			Amount:     created.Totals.Total,
			Currency:   created.Currency,
			OccurredAt: s.now(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger(ctx, "order.event.publish_failed", map[string]any{
				"orderId": created.ID,
				"error":   err.Error(),
			})
		}
	}

	return created, nil
}

// GetOrder loads one of the buyer's orders.
func (s *orderService) GetOrder(ctx context.Context, buyerID, orderID string) (Order, error) {
	buyerID = strings.TrimSpace(buyerID)
	orderID = strings.TrimSpace(orderID)
	if buyerID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: buyer id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, fmt.Errorf("%w: find order: %v", ErrOrderUnavailable, err)
	}
	if order.BuyerID != buyerID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// ListOrders returns the buyer's most recent orders.
func (s *orderService) ListOrders(ctx context.Context, buyerID string, limit int) ([]Order, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = defaultOrderListLimit
	}

	orders, err := s.orders.ListOrdersByBuyer(ctx, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", ErrOrderUnavailable, err)
	}
	return orders, nil
}
