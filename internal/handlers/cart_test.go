package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/services"
)

func cartTestView() services.CartView {
	added := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	return services.CartView{
		Cart: services.Cart{
			ID:       "cart_buyer-1",
			BuyerID:  "buyer-1",
			Currency: "BRL",
			Items: []services.CartItem{
				{ID: "item-1", ProductID: "prod-1", Name: "Mug", Quantity: 2, UnitPrice: 1500, AddedAt: added},
			},
			ShippingAddressID: "addr-1",
			UpdatedAt:         added,
		},
		Totals: services.CartTotals{Subtotal: 3000, Tax: 300, Shipping: 1000, Total: 4300},
	}
}

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	service := &stubCartService{
		getCartFunc: func(ctx context.Context, buyerID string) (services.CartView, error) {
			if buyerID != "buyer-1" {
				t.Fatalf("unexpected buyer id %q", buyerID)
			}
			return cartTestView(), nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodGet, "/cart", "", "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ID != "cart_buyer-1" {
		t.Fatalf("expected cart id cart_buyer-1, got %q", resp.Cart.ID)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].ProductID != "prod-1" {
		t.Fatalf("unexpected items payload: %+v", resp.Cart.Items)
	}
	if resp.Totals.Total != 4300 {
		t.Fatalf("expected total 4300, got %d", resp.Totals.Total)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	var captured services.UpsertCartItemCommand
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.CartView, error) {
			captured = cmd
			return cartTestView(), nil
		},
	}

	body := `{"productId":"prod-1","name":"Mug","unitPrice":1500,"quantity":2}`
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", body, "buyer-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BuyerID != "buyer-1" || captured.ProductID != "prod-1" || captured.Quantity != 2 || captured.UnitPrice != 1500 {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestCartHandlersAddItemInvalidInput(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartInvalidInput
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{"quantity":0}`, "buyer-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemNotFound(t *testing.T) {
	service := &stubCartService{
		updateItemQuantityFunc: func(ctx context.Context, buyerID, productID string, quantity int) (services.CartView, error) {
			if productID != "prod-9" || quantity != 3 {
				t.Fatalf("unexpected args %q %d", productID, quantity)
			}
			return services.CartView{}, services.ErrCartItemNotFound
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodPut, "/cart/items/prod-9", `{"quantity":3}`, "buyer-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItem(t *testing.T) {
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, buyerID, productID string) (services.CartView, error) {
			if productID != "prod-1" {
				t.Fatalf("unexpected product id %q", productID)
			}
			view := cartTestView()
			view.Cart.Items = nil
			view.Totals = services.CartTotals{}
			return view, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart/items/prod-1", "", "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Cart.Items) != 0 || resp.Totals.Total != 0 {
		t.Fatalf("expected emptied cart, got %+v", resp)
	}
}

func TestCartHandlersGetTotals(t *testing.T) {
	service := &stubCartService{
		getCartFunc: func(ctx context.Context, buyerID string) (services.CartView, error) {
			return cartTestView(), nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodGet, "/cart/totals", "", "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp totalsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Subtotal != 3000 || resp.Tax != 300 || resp.Shipping != 1000 || resp.Total != 4300 {
		t.Fatalf("unexpected totals %+v", resp)
	}
}

func TestCartHandlersGetTotalsEmptyCart(t *testing.T) {
	service := &stubCartService{
		getCartFunc: func(ctx context.Context, buyerID string) (services.CartView, error) {
			return services.CartView{Cart: services.Cart{BuyerID: buyerID, Currency: "BRL"}}, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodGet, "/cart/totals", "", "buyer-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCartHandlersSetShippingAddress(t *testing.T) {
	service := &stubCartService{
		setShippingFunc: func(ctx context.Context, buyerID, addressID string) (services.CartView, error) {
			if addressID != "addr-2" {
				t.Fatalf("unexpected address id %q", addressID)
			}
			view := cartTestView()
			view.Cart.ShippingAddressID = "addr-2"
			return view, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodPut, "/cart/shipping-address", `{"addressId":"addr-2"}`, "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ShippingAddressID != "addr-2" {
		t.Fatalf("expected shipping address addr-2, got %q", resp.Cart.ShippingAddressID)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearCartFunc: func(ctx context.Context, buyerID string) error {
			cleared = true
			return nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart", "", "buyer-1"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}
