package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/payments"
	"github.com/mercantia/api/internal/repositories"
)

// ErrPaymentInvalidInput indicates the payment request failed validation.
var ErrPaymentInvalidInput = errors.New("payment service: invalid input")

// ErrPaymentEmptyCart indicates the buyer attempted to pay for an empty cart.
var ErrPaymentEmptyCart = errors.New("payment service: cart is empty")

// ErrPaymentIntentNotFound indicates the intent does not exist for the buyer.
var ErrPaymentIntentNotFound = errors.New("payment service: intent not found")

// ErrPaymentGateway indicates the gateway rejected or failed to process the charge.
var ErrPaymentGateway = errors.New("payment service: gateway failure")

// ErrPaymentNotPollable indicates the intent's method does not support polling.
var ErrPaymentNotPollable = errors.New("payment service: method is not pollable")

// ErrPaymentUnavailable indicates a backend failure while orchestrating payments.
var ErrPaymentUnavailable = errors.New("payment service: unavailable")

// ChargeGateway routes charge operations by payment method.
type ChargeGateway interface {
	CreateCharge(ctx context.Context, req payments.CreateChargeRequest) (payments.Charge, error)
	GetChargeStatus(ctx context.Context, method domain.PaymentMethod, externalReference string) (payments.ChargeStatus, error)
}

// PaymentServiceDeps wires the repositories, gateway and polling configuration.
type PaymentServiceDeps struct {
	Intents   repositories.PaymentIntentRepository
	Carts     repositories.CartRepository
	Pricer    CartPricer
	Gateway   ChargeGateway
	Publisher EventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
	// PollInterval is the delay between confirmation checks.
	PollInterval time.Duration
	// PollCheckTimeout bounds each individual gateway status call.
	PollCheckTimeout time.Duration
	// PollCeiling bounds the total time a single AwaitConfirmation call may block.
	PollCeiling time.Duration
}

type paymentService struct {
	intents      repositories.PaymentIntentRepository
	carts        repositories.CartRepository
	pricer       CartPricer
	gateway      ChargeGateway
	publisher    EventPublisher
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
	pollInterval time.Duration
	checkTimeout time.Duration
	pollCeiling  time.Duration
}

// NewPaymentService constructs a PaymentService enforcing dependency validation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Intents == nil {
		return nil, errors.New("payment service: intent repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("payment service: pricer is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("payment service: clock is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	pollInterval := deps.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	checkTimeout := deps.PollCheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	pollCeiling := deps.PollCeiling
	if pollCeiling < pollInterval {
		pollCeiling = 2 * time.Minute
	}

	return &paymentService{
		intents:      deps.Intents,
		carts:        deps.Carts,
		pricer:       deps.Pricer,
		gateway:      deps.Gateway,
		publisher:    deps.Publisher,
		now:          func() time.Time { return deps.Clock().UTC() },
		logger:       logger,
		pollInterval: pollInterval,
		checkTimeout: checkTimeout,
		pollCeiling:  pollCeiling,
	}, nil
}

// StartPayment opens a payment attempt for the buyer's current cart. The
// intent document ID is derived from the buyer, method and cart content, so
// repeating the same request returns the already opened intent instead of
// charging twice. A prior attempt that ended failed or expired does not hold
// the slot: it is superseded by a fresh intent chained off its key.
func (s *paymentService) StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentIntent, error) {
	cmd.BuyerID = strings.TrimSpace(cmd.BuyerID)
	if cmd.BuyerID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: buyer id is required", ErrPaymentInvalidInput)
	}
	if !cmd.Method.Valid() {
		return PaymentIntent{}, fmt.Errorf("%w: unknown payment method %q", ErrPaymentInvalidInput, cmd.Method)
	}
	if cmd.Method == domain.PaymentMethodCard && strings.TrimSpace(cmd.CardToken) == "" {
		return PaymentIntent{}, fmt.Errorf("%w: card token is required", ErrPaymentInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, cmd.BuyerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PaymentIntent{}, ErrPaymentEmptyCart
		}
		return PaymentIntent{}, fmt.Errorf("%w: load cart: %v", ErrPaymentUnavailable, err)
	}
	if cart.IsEmpty() {
		return PaymentIntent{}, ErrPaymentEmptyCart
	}
	if strings.TrimSpace(cart.ShippingAddressID) == "" {
		return PaymentIntent{}, fmt.Errorf("%w: shipping address is required", ErrPaymentInvalidInput)
	}

	totals, err := s.pricer.Compute(ctx, cart)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: price cart: %v", ErrPaymentInvalidInput, err)
	}
	if totals.Total <= 0 {
		return PaymentIntent{}, fmt.Errorf("%w: total must be positive", ErrPaymentInvalidInput)
	}

	attemptKey := paymentAttemptKey(cmd, cart, totals)
	for {
		intentID := "pi_" + attemptKey
		now := s.now()

		intent := domain.PaymentIntent{
			ID:         intentID,
			BuyerID:    cmd.BuyerID,
			AttemptKey: attemptKey,
			Method:     cmd.Method,
			Status:     domain.PaymentStatusPending,
			Amount:     totals.Total,
			Currency:   cart.Currency,
			CreatedAt:  now,
		}

		created, err := s.intents.CreateIntent(ctx, intent)
		if err != nil {
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
				return PaymentIntent{}, fmt.Errorf("%w: create intent: %v", ErrPaymentUnavailable, err)
			}

			existing, replayErr := s.replayIntent(ctx, cmd.BuyerID, intentID)
			if replayErr != nil {
				return PaymentIntent{}, replayErr
			}
			if existing.Status != domain.PaymentStatusFailed && existing.Status != domain.PaymentStatusExpired {
				s.logger(ctx, "payment.intent.replayed", map[string]any{
					"intentId": existing.ID,
					"buyerId":  cmd.BuyerID,
					"status":   string(existing.Status),
				})
				return existing, nil
			}

			// The prior attempt is dead. Chain a fresh key off it so the
			// buyer can retry the unchanged cart with the same method; a
			// double submit of the retry still collides with it.
			s.logger(ctx, "payment.intent.superseded", map[string]any{
				"intentId": existing.ID,
				"buyerId":  cmd.BuyerID,
				"status":   string(existing.Status),
			})
			attemptKey = retryAttemptKey(attemptKey, existing.ID)
			continue
		}

		s.logger(ctx, "payment.intent.created", map[string]any{
			"intentId": intentID,
			"buyerId":  cmd.BuyerID,
			"method":   string(cmd.Method),
			"amount":   totals.Total,
		})

		return s.charge(ctx, created, cmd)
	}
}

// replayIntent loads the intent behind a colliding attempt key, applying lazy
// expiry so a lapsed attempt is classified as dead before the caller decides
// between replaying and superseding it.
func (s *paymentService) replayIntent(ctx context.Context, buyerID, intentID string) (PaymentIntent, error) {
	existing, err := s.intents.FindIntent(ctx, intentID)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: load existing intent: %v", ErrPaymentUnavailable, err)
	}
	if existing.BuyerID != buyerID {
		return PaymentIntent{}, ErrPaymentIntentNotFound
	}
	return s.expireIfLapsed(ctx, existing)
}

// charge runs the gateway call for a freshly created intent and records the outcome.
func (s *paymentService) charge(ctx context.Context, intent domain.PaymentIntent, cmd StartPaymentCommand) (PaymentIntent, error) {
	charge, err := s.gateway.CreateCharge(ctx, payments.CreateChargeRequest{
		Method:   intent.Method,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Buyer: payments.Buyer{
			ID:    intent.BuyerID,
			Name:  cmd.BuyerName,
			Email: cmd.BuyerEmail,
		},
		CardToken:      cmd.CardToken,
		Description:    "Mercantia order",
		IdempotencyKey: intent.ID,
	})
	if err != nil {
		failed, _, updateErr := s.intents.UpdateStatus(ctx, intent.ID, repositories.IntentStatusUpdate{
			Status:        domain.PaymentStatusFailed,
			FailureReason: "gateway error",
		})
		if updateErr != nil {
			s.logger(ctx, "payment.intent.update_failed", map[string]any{
				"intentId": intent.ID,
				"error":    updateErr.Error(),
			})
		} else {
			intent = failed
		}
		return intent, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	status := chargeStatusToIntent(charge.Status)
	if intent.Method == domain.PaymentMethodCard && status == domain.PaymentStatusAwaitingConfirmation {
		// Card charges settle in the gateway response; one still open after
		// it is a decline, never something to poll on.
		status = domain.PaymentStatusFailed
		charge.FailureReason = "card charge did not settle"
	}

	update := repositories.IntentStatusUpdate{
		Status:            status,
		ExternalReference: charge.ExternalReference,
		ExpiresAt:         charge.ExpiresAt,
	}
	if update.Status == domain.PaymentStatusFailed {
		update.FailureReason = charge.FailureReason
	}
	if payload := chargePayload(charge); payload != nil {
		update.Payload = payload
	}

	updated, applied, err := s.intents.UpdateStatus(ctx, intent.ID, update)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: record charge: %v", ErrPaymentUnavailable, err)
	}

	s.logger(ctx, "payment.charge.recorded", map[string]any{
		"intentId":          intent.ID,
		"externalReference": charge.ExternalReference,
		"status":            string(updated.Status),
	})

	if applied && updated.Status == domain.PaymentStatusConfirmed {
		s.publish(ctx, domain.CheckoutEvent{
			Type:       domain.EventPaymentConfirmed,
			BuyerID:    updated.BuyerID,
			IntentID:   updated.ID,
			Amount:     updated.Amount,
			Currency:   updated.Currency,
			OccurredAt: s.now(),
		})
	}

	return updated, nil
}

// GetPaymentStatus returns the buyer's intent, marking it expired when the
// confirmation window has lapsed.
func (s *paymentService) GetPaymentStatus(ctx context.Context, buyerID, intentID string) (PaymentIntent, error) {
	intent, err := s.findOwnedIntent(ctx, buyerID, intentID)
	if err != nil {
		return PaymentIntent{}, err
	}
	return s.expireIfLapsed(ctx, intent)
}

// AwaitConfirmation blocks until an instant transfer intent reaches a terminal
// state, the polling ceiling elapses, or the context is cancelled. Transient
// gateway failures are tolerated; the poll simply continues on the next tick.
func (s *paymentService) AwaitConfirmation(ctx context.Context, buyerID, intentID string) (PaymentIntent, error) {
	intent, err := s.findOwnedIntent(ctx, buyerID, intentID)
	if err != nil {
		return PaymentIntent{}, err
	}
	if intent.Status.Terminal() {
		return intent, nil
	}
	if intent.Method != domain.PaymentMethodInstantTransfer {
		return PaymentIntent{}, fmt.Errorf("%w: %s", ErrPaymentNotPollable, intent.Method)
	}
	if strings.TrimSpace(intent.ExternalReference) == "" {
		return PaymentIntent{}, fmt.Errorf("%w: intent has no gateway reference", ErrPaymentInvalidInput)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(s.pollCeiling)
	defer ceiling.Stop()

	for {
		select {
		case <-ctx.Done():
			return intent, fmt.Errorf("%w: %v", ErrPaymentUnavailable, ctx.Err())
		case <-ceiling.C:
			// Connection budget spent; the client re-enters the wait or falls
			// back to status polling.
			return intent, nil
		case <-ticker.C:
		}

		if current, err := s.expireIfLapsed(ctx, intent); err == nil && current.Status.Terminal() {
			return current, nil
		}

		checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
		status, err := s.gateway.GetChargeStatus(checkCtx, intent.Method, intent.ExternalReference)
		cancel()
		if err != nil {
			s.logger(ctx, "payment.poll.check_failed", map[string]any{
				"intentId": intent.ID,
				"error":    err.Error(),
			})
			continue
		}

		update, terminal := statusUpdateFromCharge(status, intent.Amount)
		if !terminal {
			continue
		}

		updated, applied, err := s.intents.UpdateStatus(ctx, intent.ID, update)
		if err != nil {
			s.logger(ctx, "payment.poll.update_failed", map[string]any{
				"intentId": intent.ID,
				"error":    err.Error(),
			})
			continue
		}

		if applied && updated.Status == domain.PaymentStatusConfirmed {
			s.publish(ctx, domain.CheckoutEvent{
				Type:       domain.EventPaymentConfirmed,
				BuyerID:    updated.BuyerID,
				IntentID:   updated.ID,
				Amount:     updated.Amount,
				Currency:   updated.Currency,
				OccurredAt: s.now(),
			})
		}
		return updated, nil
	}
}

// HandleGatewayNotification applies a verified webhook to the matching intent.
// Replayed notifications for intents already in a terminal state are
// acknowledged without side effects.
func (s *paymentService) HandleGatewayNotification(ctx context.Context, cmd GatewayNotificationCommand) (PaymentIntent, error) {
	ref := strings.TrimSpace(cmd.ExternalReference)
	if ref == "" {
		return PaymentIntent{}, fmt.Errorf("%w: external reference is required", ErrPaymentInvalidInput)
	}

	intent, err := s.intents.FindIntentByExternalReference(ctx, ref)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PaymentIntent{}, fmt.Errorf("%w: %s", ErrPaymentIntentNotFound, ref)
		}
		return PaymentIntent{}, fmt.Errorf("%w: find intent: %v", ErrPaymentUnavailable, err)
	}

	status := payments.Status(strings.ToLower(strings.TrimSpace(cmd.Status)))
	update, terminal := statusUpdateFromCharge(payments.ChargeStatus{
		Status:     status,
		PaidAmount: cmd.PaidAmount,
	}, intent.Amount)
	if !terminal {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"intentId": intent.ID,
			"status":   string(status),
		})
		return intent, nil
	}

	updated, applied, err := s.intents.UpdateStatus(ctx, intent.ID, update)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: apply notification: %v", ErrPaymentUnavailable, err)
	}

	s.logger(ctx, "payment.webhook.applied", map[string]any{
		"intentId": intent.ID,
		"status":   string(updated.Status),
		"applied":  applied,
	})

	if applied && updated.Status == domain.PaymentStatusConfirmed {
		s.publish(ctx, domain.CheckoutEvent{
			Type:       domain.EventPaymentConfirmed,
			BuyerID:    updated.BuyerID,
			IntentID:   updated.ID,
			Amount:     updated.Amount,
			Currency:   updated.Currency,
			OccurredAt: s.now(),
		})
	}
	return updated, nil
}

func (s *paymentService) findOwnedIntent(ctx context.Context, buyerID, intentID string) (domain.PaymentIntent, error) {
	buyerID = strings.TrimSpace(buyerID)
	intentID = strings.TrimSpace(intentID)
	if buyerID == "" || intentID == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: buyer id and intent id are required", ErrPaymentInvalidInput)
	}

	intent, err := s.intents.FindIntent(ctx, intentID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.PaymentIntent{}, fmt.Errorf("%w: %s", ErrPaymentIntentNotFound, intentID)
		}
		return domain.PaymentIntent{}, fmt.Errorf("%w: find intent: %v", ErrPaymentUnavailable, err)
	}
	if intent.BuyerID != buyerID {
		return domain.PaymentIntent{}, fmt.Errorf("%w: %s", ErrPaymentIntentNotFound, intentID)
	}
	return intent, nil
}

// expireIfLapsed transitions a lapsed intent to expired before returning it.
func (s *paymentService) expireIfLapsed(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentIntent, error) {
	if !intent.Expired(s.now()) {
		return intent, nil
	}

	updated, _, err := s.intents.UpdateStatus(ctx, intent.ID, repositories.IntentStatusUpdate{
		Status:        domain.PaymentStatusExpired,
		FailureReason: "confirmation window elapsed",
	})
	if err != nil {
		return intent, fmt.Errorf("%w: expire intent: %v", ErrPaymentUnavailable, err)
	}

	s.logger(ctx, "payment.intent.expired", map[string]any{
		"intentId": intent.ID,
		"buyerId":  intent.BuyerID,
	})
	return updated, nil
}

func (s *paymentService) publish(ctx context.Context, event domain.CheckoutEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish_failed", map[string]any{
			"type":     event.Type,
			"intentId": event.IntentID,
			"error":    err.Error(),
		})
	}
}

// paymentAttemptKey derives a deterministic fingerprint of one payment attempt.
// The cart's update timestamp participates so a retried attempt after any cart
// mutation opens a fresh intent, while a double submit of an unchanged cart
// collides with the first one.
func paymentAttemptKey(cmd StartPaymentCommand, cart domain.Cart, totals CartTotals) string {
	lines := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, item.ProductID+":"+strconv.Itoa(item.Quantity)+":"+strconv.FormatInt(item.UnitPrice, 10))
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(cmd.BuyerID))
	h.Write([]byte{'|'})
	h.Write([]byte(cmd.Method))
	h.Write([]byte{'|'})
	h.Write([]byte(cmd.CardToken))
	h.Write([]byte{'|'})
	h.Write([]byte(cart.ShippingAddressID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(totals.Total, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(cart.UpdatedAt.UTC().UnixNano(), 10)))
	for _, line := range lines {
		h.Write([]byte{'|'})
		h.Write([]byte(line))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// retryAttemptKey chains a fresh attempt key off a dead intent. Each failed
// or expired attempt yields exactly one successor key, so retries stay
// deterministic without the dead attempt blocking them.
func retryAttemptKey(attemptKey, deadIntentID string) string {
	h := sha256.New()
	h.Write([]byte(attemptKey))
	h.Write([]byte{'|'})
	h.Write([]byte(deadIntentID))
	return hex.EncodeToString(h.Sum(nil))
}

func chargeStatusToIntent(status payments.Status) domain.PaymentStatus {
	switch status {
	case payments.StatusPaid:
		return domain.PaymentStatusConfirmed
	case payments.StatusFailed:
		return domain.PaymentStatusFailed
	case payments.StatusExpired:
		return domain.PaymentStatusExpired
	default:
		return domain.PaymentStatusAwaitingConfirmation
	}
}

// statusUpdateFromCharge translates a gateway status into an intent transition.
// A paid report with a short amount is treated as a failure so underpaid
// transfers never confirm.
func statusUpdateFromCharge(status payments.ChargeStatus, expectedAmount int64) (repositories.IntentStatusUpdate, bool) {
	switch status.Status {
	case payments.StatusPaid:
		if status.PaidAmount > 0 && status.PaidAmount < expectedAmount {
			return repositories.IntentStatusUpdate{
				Status:        domain.PaymentStatusFailed,
				FailureReason: fmt.Sprintf("paid amount %d below expected %d", status.PaidAmount, expectedAmount),
			}, true
		}
		return repositories.IntentStatusUpdate{Status: domain.PaymentStatusConfirmed}, true
	case payments.StatusFailed:
		return repositories.IntentStatusUpdate{
			Status:        domain.PaymentStatusFailed,
			FailureReason: "gateway reported failure",
		}, true
	case payments.StatusExpired:
		return repositories.IntentStatusUpdate{
			Status:        domain.PaymentStatusExpired,
			FailureReason: "gateway reported expiry",
		}, true
	default:
		return repositories.IntentStatusUpdate{}, false
	}
}

func chargePayload(charge payments.Charge) *domain.PaymentPayload {
	if charge.QRCode == "" && charge.VoucherLine == "" && charge.VoucherBarcode == "" && charge.VoucherDueDate == nil {
		return nil
	}
	return &domain.PaymentPayload{
		QRCode:         charge.QRCode,
		VoucherLine:    charge.VoucherLine,
		VoucherBarcode: charge.VoucherBarcode,
		VoucherDueDate: charge.VoucherDueDate,
	}
}
