package handlers

import (
	"github.com/mercantia/api/internal/services"
)

type cartItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	AddedAt   string `json:"addedAt,omitempty"`
}

type totalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type cartPayload struct {
	ID                string            `json:"id,omitempty"`
	Currency          string            `json:"currency"`
	Items             []cartItemPayload `json:"items"`
	ShippingAddressID string            `json:"shippingAddressId,omitempty"`
	UpdatedAt         string            `json:"updatedAt,omitempty"`
}

type cartResponse struct {
	Cart   cartPayload   `json:"cart"`
	Totals totalsPayload `json:"totals"`
}

func buildCartResponse(view services.CartView) cartResponse {
	items := make([]cartItemPayload, 0, len(view.Cart.Items))
	for _, item := range view.Cart.Items {
		items = append(items, cartItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	return cartResponse{
		Cart: cartPayload{
			ID:                view.Cart.ID,
			Currency:          view.Cart.Currency,
			Items:             items,
			ShippingAddressID: view.Cart.ShippingAddressID,
			UpdatedAt:         formatTime(view.Cart.UpdatedAt),
		},
		Totals: totalsPayload{
			Subtotal: view.Totals.Subtotal,
			Tax:      view.Totals.Tax,
			Shipping: view.Totals.Shipping,
			Total:    view.Totals.Total,
		},
	}
}

type addressPayload struct {
	ID         string `json:"id"`
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
		IsDefault:  addr.IsDefault,
		CreatedAt:  formatTime(addr.CreatedAt),
	}
}

type paymentPayloadBody struct {
	QRCode         string `json:"qrCode,omitempty"`
	VoucherLine    string `json:"voucherLine,omitempty"`
	VoucherBarcode string `json:"voucherBarcode,omitempty"`
	VoucherDueDate string `json:"voucherDueDate,omitempty"`
}

type paymentIntentPayload struct {
	ID                string             `json:"id"`
	Method            string             `json:"method"`
	Status            string             `json:"status"`
	Amount            int64              `json:"amount"`
	Currency          string             `json:"currency"`
	ExternalReference string             `json:"externalReference,omitempty"`
	FailureReason     string             `json:"failureReason,omitempty"`
	Payload           paymentPayloadBody `json:"payload"`
	CreatedAt         string             `json:"createdAt,omitempty"`
	UpdatedAt         string             `json:"updatedAt,omitempty"`
	ExpiresAt         string             `json:"expiresAt,omitempty"`
}

func buildPaymentIntentPayload(intent services.PaymentIntent) paymentIntentPayload {
	return paymentIntentPayload{
		ID:                intent.ID,
		Method:            string(intent.Method),
		Status:            string(intent.Status),
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		ExternalReference: intent.ExternalReference,
		FailureReason:     intent.FailureReason,
		Payload: paymentPayloadBody{
			QRCode:         intent.Payload.QRCode,
			VoucherLine:    intent.Payload.VoucherLine,
			VoucherBarcode: intent.Payload.VoucherBarcode,
			VoucherDueDate: formatTimePtr(intent.Payload.VoucherDueDate),
		},
		CreatedAt: formatTime(intent.CreatedAt),
		UpdatedAt: formatTime(intent.UpdatedAt),
		ExpiresAt: formatTimePtr(intent.ExpiresAt),
	}
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	Number            string             `json:"number"`
	Items             []orderItemPayload `json:"items"`
	ShippingAddressID string             `json:"shippingAddressId"`
	PaymentReference  string             `json:"paymentReference"`
	PaymentMethod     string             `json:"paymentMethod"`
	Currency          string             `json:"currency"`
	Totals            totalsPayload      `json:"totals"`
	Status            string             `json:"status"`
	CreatedAt         string             `json:"createdAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderPayload{
		ID:                order.ID,
		Number:            order.Number,
		Items:             items,
		ShippingAddressID: order.ShippingAddressID,
		PaymentReference:  order.PaymentReference,
		PaymentMethod:     string(order.PaymentMethod),
		Currency:          order.Currency,
		Totals: totalsPayload{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Status:    string(order.Status),
		CreatedAt: formatTime(order.CreatedAt),
	}
}
