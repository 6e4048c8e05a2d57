package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/services"
)

func newAddressRouter(service services.AddressService) chi.Router {
	handler := NewAddressHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)
	return router
}

func TestAddressHandlersList(t *testing.T) {
	service := &stubAddressService{
		listFunc: func(ctx context.Context, buyerID string) ([]services.Address, error) {
			if buyerID != "buyer-1" {
				t.Fatalf("unexpected buyer id %q", buyerID)
			}
			return []services.Address{
				{ID: "addr-1", Recipient: "Ana", PostalCode: "01310-100", Country: "BR", IsDefault: true},
				{ID: "addr-2", Recipient: "Ana", PostalCode: "04538-133", Country: "BR"},
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newAddressRouter(service).ServeHTTP(rr, authedRequest(http.MethodGet, "/me/addresses", "", "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Addresses []addressPayload `json:"addresses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Addresses) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(resp.Addresses))
	}
	if !resp.Addresses[0].IsDefault || resp.Addresses[1].IsDefault {
		t.Fatalf("unexpected default flags: %+v", resp.Addresses)
	}
}

func TestAddressHandlersCreate(t *testing.T) {
	var captured services.CreateAddressCommand
	service := &stubAddressService{
		createFunc: func(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
			captured = cmd
			return services.Address{ID: "addr-3", Recipient: cmd.Recipient, PostalCode: "01310-100", Country: "BR", IsDefault: true}, nil
		},
	}

	body := `{"recipient":"Ana","line1":"Av. Paulista 1000","city":"Sao Paulo","state":"SP","postalCode":"01310100","country":"br","setDefault":true}`
	rr := httptest.NewRecorder()
	newAddressRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/me/addresses", body, "buyer-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BuyerID != "buyer-1" || captured.Recipient != "Ana" || !captured.IsDefault {
		t.Fatalf("unexpected command: %+v", captured)
	}

	var resp struct {
		Address addressPayload `json:"address"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Address.ID != "addr-3" || !resp.Address.IsDefault {
		t.Fatalf("unexpected address payload: %+v", resp.Address)
	}
}

func TestAddressHandlersSelectExisting(t *testing.T) {
	service := &stubAddressService{
		createFunc: func(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
			t.Fatalf("create should not be called when selecting an existing address")
			return services.Address{}, nil
		},
		setDefaultFunc: func(ctx context.Context, buyerID, addressID string) (services.Address, error) {
			if addressID != "addr-2" {
				t.Fatalf("unexpected address id %q", addressID)
			}
			return services.Address{ID: "addr-2", IsDefault: true}, nil
		},
	}

	rr := httptest.NewRecorder()
	newAddressRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/me/addresses", `{"addressId":"addr-2"}`, "buyer-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAddressHandlersCreateInvalid(t *testing.T) {
	service := &stubAddressService{
		createFunc: func(ctx context.Context, cmd services.CreateAddressCommand) (services.Address, error) {
			return services.Address{}, services.ErrAddressInvalidInput
		},
	}

	rr := httptest.NewRecorder()
	newAddressRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/me/addresses", `{"recipient":""}`, "buyer-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAddressHandlersSelectUnknown(t *testing.T) {
	service := &stubAddressService{
		setDefaultFunc: func(ctx context.Context, buyerID, addressID string) (services.Address, error) {
			return services.Address{}, services.ErrAddressNotFound
		},
	}

	rr := httptest.NewRecorder()
	newAddressRouter(service).ServeHTTP(rr, authedRequest(http.MethodPost, "/me/addresses", `{"addressId":"missing"}`, "buyer-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
