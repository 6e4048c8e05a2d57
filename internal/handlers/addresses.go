package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercantia/api/internal/platform/auth"
	"github.com/mercantia/api/internal/platform/httpx"
	"github.com/mercantia/api/internal/services"
)

// AddressHandlers exposes the buyer address book under /me/addresses.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

const maxAddressBodySize = 16 * 1024

// NewAddressHandlers constructs handlers for buyer shipping addresses.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{
		authn:     authn,
		addresses: addresses,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireBuyer())
	}
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.createAddress)
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	addrs, err := h.addresses.ListAddresses(ctx, buyerID)
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addrs))
	for _, addr := range addrs {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": payload})
}

type createAddressRequest struct {
	// AddressID, when set alone, promotes an existing address to default
	// instead of creating a new one.
	AddressID string `json:"addressId"`

	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	SetDefault bool   `json:"setDefault"`
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req createAddressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	if strings.TrimSpace(req.AddressID) != "" {
		addr, err := h.addresses.SetDefaultAddress(ctx, buyerID, req.AddressID)
		if err != nil {
			h.writeAddressError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{"address": buildAddressPayload(addr)})
		return
	}

	addr, err := h.addresses.CreateAddress(ctx, services.CreateAddressCommand{
		BuyerID:    buyerID,
		Recipient:  req.Recipient,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
		IsDefault:  req.SetDefault,
	})
	if err != nil {
		h.writeAddressError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"address": buildAddressPayload(addr)})
}

func (h *AddressHandlers) requireBuyer(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.addresses == nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_service_unavailable", "address service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *AddressHandlers) writeAddressError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAddressInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrAddressUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("address_unavailable", "address storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected address failure", http.StatusInternalServerError))
	}
}
