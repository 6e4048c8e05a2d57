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

// CartHandlers exposes authenticated cart endpoints for the current buyer.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers enforcing buyer authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireBuyer())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/totals", h.getTotals)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Put("/shipping-address", h.setShippingAddress)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, buyerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, buyerID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	if len(view.Cart.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items to total", http.StatusConflict))
		return
	}

	writeJSONResponse(w, http.StatusOK, totalsPayload{
		Subtotal: view.Totals.Subtotal,
		Tax:      view.Totals.Tax,
		Shipping: view.Totals.Shipping,
		Total:    view.Totals.Total,
	})
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	view, err := h.carts.AddItem(ctx, services.UpsertCartItemCommand{
		BuyerID:   buyerID,
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCartResponse(view))
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req updateCartItemRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	view, err := h.carts.UpdateItemQuantity(ctx, buyerID, productID, req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	view, err := h.carts.RemoveItem(ctx, buyerID, productID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

type setShippingAddressRequest struct {
	AddressID string `json:"addressId"`
}

func (h *CartHandlers) setShippingAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	var req setShippingAddressRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	view, err := h.carts.SetShippingAddress(ctx, buyerID, req.AddressID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyerID, ok := h.requireBuyer(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, buyerID); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) requireBuyer(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected cart failure", http.StatusInternalServerError))
	}
}
