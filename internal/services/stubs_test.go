package services

import (
	"context"
	"sync"
	"time"

	domain "github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/payments"
	"github.com/mercantia/api/internal/repositories"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	}
}

type stubRepoError struct {
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.message }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(message string) error {
	return stubRepoError{message: message, notFound: true}
}

func conflictErr(message string) error {
	return stubRepoError{message: message, conflict: true}
}

type stubCartRepo struct {
	mu     sync.Mutex
	carts  map[string]domain.Cart
	getErr error
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{carts: map[string]domain.Cart{}}
}

func (r *stubCartRepo) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Cart{}, r.getErr
	}
	cart, ok := r.carts[buyerID]
	if !ok {
		return domain.Cart{}, notFoundErr("cart not found")
	}
	return cart, nil
}

func (r *stubCartRepo) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[cart.BuyerID] = cart
	return cart, nil
}

func (r *stubCartRepo) ClearCart(ctx context.Context, buyerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[buyerID]; !ok {
		return notFoundErr("cart not found")
	}
	delete(r.carts, buyerID)
	return nil
}

type stubAddressRepo struct {
	mu        sync.Mutex
	addresses map[string][]domain.Address
}

func newStubAddressRepo() *stubAddressRepo {
	return &stubAddressRepo{addresses: map[string][]domain.Address{}}
}

func (r *stubAddressRepo) ListAddresses(ctx context.Context, buyerID string) ([]domain.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Address(nil), r.addresses[buyerID]...), nil
}

func (r *stubAddressRepo) FindAddress(ctx context.Context, buyerID, addressID string) (domain.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, addr := range r.addresses[buyerID] {
		if addr.ID == addressID {
			return addr, nil
		}
	}
	return domain.Address{}, notFoundErr("address not found")
}

func (r *stubAddressRepo) CreateAddress(ctx context.Context, buyerID string, address domain.Address) (domain.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if address.IsDefault {
		for i := range r.addresses[buyerID] {
			r.addresses[buyerID][i].IsDefault = false
		}
	}
	r.addresses[buyerID] = append(r.addresses[buyerID], address)
	return address, nil
}

func (r *stubAddressRepo) SetDefaultAddress(ctx context.Context, buyerID, addressID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, addr := range r.addresses[buyerID] {
		if addr.ID == addressID {
			found = true
			break
		}
	}
	if !found {
		return notFoundErr("address not found")
	}
	for i, addr := range r.addresses[buyerID] {
		r.addresses[buyerID][i].IsDefault = addr.ID == addressID
	}
	return nil
}

type stubIntentRepo struct {
	mu        sync.Mutex
	intents   map[string]domain.PaymentIntent
	updateErr error
}

func newStubIntentRepo() *stubIntentRepo {
	return &stubIntentRepo{intents: map[string]domain.PaymentIntent{}}
}

func (r *stubIntentRepo) CreateIntent(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[intent.ID]; ok {
		return domain.PaymentIntent{}, conflictErr("intent already exists")
	}
	intent.UpdatedAt = intent.CreatedAt
	r.intents[intent.ID] = intent
	return intent, nil
}

func (r *stubIntentRepo) FindIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, notFoundErr("intent not found")
	}
	return intent, nil
}

func (r *stubIntentRepo) FindIntentByExternalReference(ctx context.Context, externalRef string) (domain.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, intent := range r.intents {
		if intent.ExternalReference == externalRef {
			return intent, nil
		}
	}
	return domain.PaymentIntent{}, notFoundErr("intent not found")
}

func (r *stubIntentRepo) UpdateStatus(ctx context.Context, intentID string, update repositories.IntentStatusUpdate) (domain.PaymentIntent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return domain.PaymentIntent{}, false, r.updateErr
	}
	intent, ok := r.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, false, notFoundErr("intent not found")
	}
	if intent.Status.Terminal() {
		return intent, false, nil
	}
	intent.Status = update.Status
	if update.FailureReason != "" {
		intent.FailureReason = update.FailureReason
	}
	if update.ExternalReference != "" {
		intent.ExternalReference = update.ExternalReference
	}
	if update.Payload != nil {
		intent.Payload = *update.Payload
	}
	if update.ExpiresAt != nil {
		expires := update.ExpiresAt.UTC()
		intent.ExpiresAt = &expires
	}
	r.intents[intentID] = intent
	return intent, true, nil
}

type stubOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	claimed   map[string]bool
	cartRepo  *stubCartRepo
	createErr error
}

func newStubOrderRepo(carts *stubCartRepo) *stubOrderRepo {
	return &stubOrderRepo{
		orders:   map[string]domain.Order{},
		claimed:  map[string]bool{},
		cartRepo: carts,
	}
}

func (r *stubOrderRepo) CreateFromCheckout(ctx context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return domain.Order{}, r.createErr
	}
	if r.claimed[order.PaymentReference] {
		return domain.Order{}, conflictErr("payment reference already consumed")
	}
	r.claimed[order.PaymentReference] = true
	r.orders[order.ID] = order
	if r.cartRepo != nil {
		delete(r.cartRepo.carts, order.BuyerID)
	}
	return order, nil
}

func (r *stubOrderRepo) FindOrder(ctx context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order not found")
	}
	return order, nil
}

func (r *stubOrderRepo) ListOrdersByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.BuyerID == buyerID {
			out = append(out, order)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubChargeGateway struct {
	mu         sync.Mutex
	charge     payments.Charge
	chargeErr  error
	statuses   []payments.ChargeStatus
	statusErrs []error
	calls      int
	lastReq    payments.CreateChargeRequest
}

func (g *stubChargeGateway) CreateCharge(ctx context.Context, req payments.CreateChargeRequest) (payments.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastReq = req
	return g.charge, g.chargeErr
}

func (g *stubChargeGateway) GetChargeStatus(ctx context.Context, method domain.PaymentMethod, externalReference string) (payments.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	if idx < len(g.statusErrs) && g.statusErrs[idx] != nil {
		return payments.ChargeStatus{}, g.statusErrs[idx]
	}
	if len(g.statuses) == 0 {
		return payments.ChargeStatus{Status: payments.StatusPending}, nil
	}
	if idx >= len(g.statuses) {
		idx = len(g.statuses) - 1
	}
	return g.statuses[idx], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CheckoutEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}
