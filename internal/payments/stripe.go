package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeGateway charges cards synchronously through the Stripe Payment Intents API.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeGateway constructs a Stripe card gateway from the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCharge creates and confirms a Stripe Payment Intent in a single call.
// Card charges resolve synchronously: the returned status is already terminal
// unless the intent is stuck in an asynchronous processing state.
func (g *StripeGateway) CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error) {
	if g == nil {
		return Charge{}, errors.New("stripe: gateway is nil")
	}
	if strings.TrimSpace(req.CardToken) == "" {
		return Charge{}, errors.New("stripe: card token is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.CardToken),
		Confirm:       stripe.Bool(true),
		PaymentMethodTypes: []*string{
			stripe.String("card"),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Buyer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Buyer.Email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	status, reason := stripeChargeState(intent)

	g.logger(ctx, "payments.stripe.charge.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
		"amount":        intent.Amount,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return Charge{
		ExternalReference: intent.ID,
		Status:            status,
		FailureReason:     reason,
		Raw:               raw,
	}, nil
}

// GetChargeStatus retrieves a Stripe Payment Intent and normalises its state.
func (g *StripeGateway) GetChargeStatus(ctx context.Context, externalReference string) (ChargeStatus, error) {
	if g == nil {
		return ChargeStatus{}, errors.New("stripe: gateway is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	intent, err := g.intents.Get(externalReference, params)
	if err != nil {
		return ChargeStatus{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}

	status, _ := stripeChargeState(intent)
	return ChargeStatus{
		Status:     status,
		PaidAmount: intent.AmountReceived,
	}, nil
}

func stripeChargeState(intent *stripe.PaymentIntent) (Status, string) {
	if intent == nil {
		return StatusPending, ""
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusPaid, ""
	case stripe.PaymentIntentStatusCanceled:
		reason := string(intent.CancellationReason)
		if reason == "" {
			reason = "canceled"
		}
		return StatusFailed, reason
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		reason := "card declined"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		return StatusFailed, reason
	default:
		return StatusPending, ""
	}
}
