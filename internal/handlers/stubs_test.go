package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/mercantia/api/internal/platform/auth"
	"github.com/mercantia/api/internal/services"
)

type stubCartService struct {
	getCartFunc            func(ctx context.Context, buyerID string) (services.CartView, error)
	addItemFunc            func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.CartView, error)
	updateItemQuantityFunc func(ctx context.Context, buyerID, productID string, quantity int) (services.CartView, error)
	removeItemFunc         func(ctx context.Context, buyerID, productID string) (services.CartView, error)
	setShippingFunc        func(ctx context.Context, buyerID, addressID string) (services.CartView, error)
	clearCartFunc          func(ctx context.Context, buyerID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, buyerID string) (services.CartView, error) {
	if s.getCartFunc == nil {
		return services.CartView{}, nil
	}
	return s.getCartFunc(ctx, buyerID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.CartView, error) {
	if s.addItemFunc == nil {
		return services.CartView{}, nil
	}
	return s.addItemFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, buyerID, productID string, quantity int) (services.CartView, error) {
	if s.updateItemQuantityFunc == nil {
		return services.CartView{}, nil
	}
	return s.updateItemQuantityFunc(ctx, buyerID, productID, quantity)
}

func (s *stubCartService) RemoveItem(ctx context.Context, buyerID, productID string) (services.CartView, error) {
	if s.removeItemFunc == nil {
		return services.CartView{}, nil
	}
	return s.removeItemFunc(ctx, buyerID, productID)
}

func (s *stubCartService) SetShippingAddress(ctx context.Context, buyerID, addressID string) (services.CartView, error) {
	if s.setShippingFunc == nil {
		return services.CartView{}, nil
	}
	return s.setShippingFunc(ctx, buyerID, addressID)
}

func (s *stubCartService) ClearCart(ctx context.Context, buyerID string) error {
	if s.clearCartFunc == nil {
		return nil
	}
	return s.clearCartFunc(ctx, buyerID)
}

type stubAddressService struct {
	listFunc       func(ctx context.Context, buyerID string) ([]services.Address, error)
	createFunc     func(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error)
	setDefaultFunc func(ctx context.Context, buyerID, addressID string) (services.Address, error)
}

func (s *stubAddressService) ListAddresses(ctx context.Context, buyerID string) ([]services.Address, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx, buyerID)
}

func (s *stubAddressService) CreateAddress(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
	if s.createFunc == nil {
		return services.Address{}, nil
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubAddressService) SetDefaultAddress(ctx context.Context, buyerID, addressID string) (services.Address, error) {
	if s.setDefaultFunc == nil {
		return services.Address{}, nil
	}
	return s.setDefaultFunc(ctx, buyerID, addressID)
}

type stubPaymentService struct {
	startFunc  func(ctx context.Context, cmd services.StartPaymentCommand) (services.PaymentIntent, error)
	statusFunc func(ctx context.Context, buyerID, intentID string) (services.PaymentIntent, error)
	awaitFunc  func(ctx context.Context, buyerID, intentID string) (services.PaymentIntent, error)
	notifyFunc func(ctx context.Context, cmd services.GatewayNotificationCommand) (services.PaymentIntent, error)
}

func (s *stubPaymentService) StartPayment(ctx context.Context, cmd services.StartPaymentCommand) (services.PaymentIntent, error) {
	if s.startFunc == nil {
		return services.PaymentIntent{}, nil
	}
	return s.startFunc(ctx, cmd)
}

func (s *stubPaymentService) GetPaymentStatus(ctx context.Context, buyerID, intentID string) (services.PaymentIntent, error) {
	if s.statusFunc == nil {
		return services.PaymentIntent{}, nil
	}
	return s.statusFunc(ctx, buyerID, intentID)
}

func (s *stubPaymentService) AwaitConfirmation(ctx context.Context, buyerID, intentID string) (services.PaymentIntent, error) {
	if s.awaitFunc == nil {
		return services.PaymentIntent{}, nil
	}
	return s.awaitFunc(ctx, buyerID, intentID)
}

func (s *stubPaymentService) HandleGatewayNotification(ctx context.Context, cmd services.GatewayNotificationCommand) (services.PaymentIntent, error) {
	if s.notifyFunc == nil {
		return services.PaymentIntent{}, nil
	}
	return s.notifyFunc(ctx, cmd)
}

type stubOrderService struct {
	finalizeFunc func(ctx context.Context, cmd services.FinalizeOrderCommand) (services.Order, error)
	getFunc      func(ctx context.Context, buyerID, orderID string) (services.Order, error)
	listFunc     func(ctx context.Context, buyerID string, limit int) ([]services.Order, error)
}

func (s *stubOrderService) FinalizeOrder(ctx context.Context, cmd services.FinalizeOrderCommand) (services.Order, error) {
	if s.finalizeFunc == nil {
		return services.Order{}, nil
	}
	return s.finalizeFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, buyerID, orderID string) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, nil
	}
	return s.getFunc(ctx, buyerID, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, buyerID string, limit int) ([]services.Order, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx, buyerID, limit)
}

func authedRequest(method, target, body string, uid string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Email: uid + "@example.com"}))
	return req
}
