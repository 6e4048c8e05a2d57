package services

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPricingInvalidInput signals bad cart data such as non-positive quantities or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingOverflow is returned when a cart total would exceed the representable range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
	// ErrPricingEmptyCart rejects pricing a cart with no lines; checkout must not proceed on one.
	ErrPricingEmptyCart = errors.New("pricing: cart is empty")
)

// PricingEngine computes cart totals in minor currency units using integer
// arithmetic only. The tax is applied once on the aggregate subtotal, not per
// line, so line-level rounding drift cannot accumulate.
type PricingEngine struct {
	taxBasisPoints        int64
	flatShippingFee       int64
	freeShippingThreshold int64
	logger                func(context.Context, string, map[string]any)
}

// PricingEngineDeps configures the tax and shipping rules of the engine.
type PricingEngineDeps struct {
	// TaxRateBasisPoints is the aggregate tax rate in basis points (1000 = 10%).
	TaxRateBasisPoints int
	// FlatShippingFee is charged whenever the subtotal sits below the threshold.
	FlatShippingFee int64
	// FreeShippingThreshold is the inclusive subtotal at which shipping becomes free.
	FreeShippingThreshold int64
	Logger                func(context.Context, string, map[string]any)
}

// NewPricingEngine validates the rate configuration and builds the engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.TaxRateBasisPoints < 0 || deps.TaxRateBasisPoints > 10000 {
		return nil, fmt.Errorf("pricing engine: tax rate %d out of range", deps.TaxRateBasisPoints)
	}
	if deps.FlatShippingFee < 0 {
		return nil, errors.New("pricing engine: shipping fee must not be negative")
	}
	if deps.FreeShippingThreshold < 0 {
		return nil, errors.New("pricing engine: free shipping threshold must not be negative")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		taxBasisPoints:        int64(deps.TaxRateBasisPoints),
		flatShippingFee:       deps.FlatShippingFee,
		freeShippingThreshold: deps.FreeShippingThreshold,
		logger:                logger,
	}, nil
}

// Compute prices the cart: subtotal over all lines, half-up tax on the
// aggregate, and flat or free shipping depending on the threshold.
func (e *PricingEngine) Compute(ctx context.Context, cart Cart) (CartTotals, error) {
	if e == nil {
		return CartTotals{}, errors.New("pricing engine: not configured")
	}
	if cart.IsEmpty() {
		return CartTotals{}, ErrPricingEmptyCart
	}

	var subtotal int64
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return CartTotals{}, fmt.Errorf("%w: item %q has quantity %d", ErrPricingInvalidInput, item.ProductID, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return CartTotals{}, fmt.Errorf("%w: item %q has negative unit price", ErrPricingInvalidInput, item.ProductID)
		}
		line, err := mulInt64(item.UnitPrice, int64(item.Quantity))
		if err != nil {
			return CartTotals{}, fmt.Errorf("%w: item %q", ErrPricingOverflow, item.ProductID)
		}
		subtotal, err = addInt64(subtotal, line)
		if err != nil {
			return CartTotals{}, fmt.Errorf("%w: subtotal", ErrPricingOverflow)
		}
	}

	tax, err := halfUpBasisPoints(subtotal, e.taxBasisPoints)
	if err != nil {
		return CartTotals{}, fmt.Errorf("%w: tax", ErrPricingOverflow)
	}

	shipping := e.flatShippingFee
	if subtotal >= e.freeShippingThreshold {
		shipping = 0
	}

	total, err := addInt64(subtotal, tax)
	if err == nil {
		total, err = addInt64(total, shipping)
	}
	if err != nil {
		return CartTotals{}, fmt.Errorf("%w: total", ErrPricingOverflow)
	}

	totals := CartTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}

	e.logger(ctx, "pricing.computed", map[string]any{
		"buyerId":  cart.BuyerID,
		"subtotal": totals.Subtotal,
		"tax":      totals.Tax,
		"shipping": totals.Shipping,
		"total":    totals.Total,
	})

	return totals, nil
}

// halfUpBasisPoints computes amount*bps/10000 rounded half away from zero,
// staying in integer arithmetic throughout.
func halfUpBasisPoints(amount, bps int64) (int64, error) {
	if amount == 0 || bps == 0 {
		return 0, nil
	}
	product, err := mulInt64(amount, bps)
	if err != nil {
		return 0, err
	}
	return (product + 5000) / 10000, nil
}

func mulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	result := a * b
	if result/b != a {
		return 0, errors.New("int64 overflow")
	}
	return result, nil
}

func addInt64(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, errors.New("int64 overflow")
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, errors.New("int64 overflow")
	}
	return a + b, nil
}
