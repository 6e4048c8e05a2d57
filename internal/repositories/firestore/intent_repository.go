package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/mercantia/api/internal/domain"
	pfirestore "github.com/mercantia/api/internal/platform/firestore"
	"github.com/mercantia/api/internal/repositories"
)

const intentCollection = "payment_intents"

// PaymentIntentRepository persists payment intents keyed by attempt-derived document IDs.
type PaymentIntentRepository struct {
	base     *pfirestore.BaseRepository[intentDocument]
	provider *pfirestore.Provider
}

// NewPaymentIntentRepository constructs a Firestore-backed payment intent repository.
func NewPaymentIntentRepository(provider *pfirestore.Provider) (*PaymentIntentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment intent repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[intentDocument](provider, intentCollection, nil, nil)
	return &PaymentIntentRepository{
		base:     base,
		provider: provider,
	}, nil
}

// CreateIntent writes a new intent document. A conflict error is surfaced when
// an intent already exists under the same attempt-derived ID.
func (r *PaymentIntentRepository) CreateIntent(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository not initialised")
	}
	id := strings.TrimSpace(intent.ID)
	if id == "" {
		return domain.PaymentIntent{}, errors.New("payment intent repository: intent id is required")
	}

	now := time.Now().UTC()
	createdAt := intent.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := intentDocumentFromDomain(intent, createdAt, now)

	result, err := r.base.Create(ctx, id, doc)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	saved := doc.toDomain(id)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindIntent loads the intent by its ID.
func (r *PaymentIntentRepository) FindIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository not initialised")
	}

	doc, err := r.base.Get(ctx, strings.TrimSpace(intentID))
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindIntentByExternalReference looks up the intent carrying the gateway reference.
func (r *PaymentIntentRepository) FindIntentByExternalReference(ctx context.Context, externalRef string) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository not initialised")
	}
	ref := strings.TrimSpace(externalRef)
	if ref == "" {
		return domain.PaymentIntent{}, errors.New("payment intent repository: external reference is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("externalReference", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if len(docs) == 0 {
		return domain.PaymentIntent{}, pfirestore.WrapError("payment_intents.findByExternalReference", notFoundErr(ref))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// UpdateStatus transitions the intent inside a transaction. The boolean result
// reports whether the update was applied; intents already in a terminal state
// are left untouched.
func (r *PaymentIntentRepository) UpdateStatus(ctx context.Context, intentID string, update repositories.IntentStatusUpdate) (domain.PaymentIntent, bool, error) {
	if r == nil || r.provider == nil {
		return domain.PaymentIntent{}, false, errors.New("payment intent repository not initialised")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return domain.PaymentIntent{}, false, errors.New("payment intent repository: intent id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.PaymentIntent{}, false, err
	}

	var result domain.PaymentIntent
	applied := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc intentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode intent %s: %w", snap.Ref.ID, err)
		}

		current := doc.toDomain(snap.Ref.ID)
		if current.Status.Terminal() {
			result = current
			return nil
		}

		now := time.Now().UTC()
		updates := []firestore.Update{
			{Path: "status", Value: string(update.Status)},
			{Path: "updatedAt", Value: now},
		}
		if reason := strings.TrimSpace(update.FailureReason); reason != "" {
			updates = append(updates, firestore.Update{Path: "failureReason", Value: reason})
			current.FailureReason = reason
		}
		if ref := strings.TrimSpace(update.ExternalReference); ref != "" {
			updates = append(updates, firestore.Update{Path: "externalReference", Value: ref})
			current.ExternalReference = ref
		}
		if update.Payload != nil {
			payloadDoc := payloadDocumentFromDomain(*update.Payload)
			updates = append(updates, firestore.Update{Path: "payload", Value: payloadDoc})
			current.Payload = *update.Payload
		}
		if update.ExpiresAt != nil {
			expires := update.ExpiresAt.UTC()
			updates = append(updates, firestore.Update{Path: "expiresAt", Value: expires})
			current.ExpiresAt = &expires
		}

		if err := tx.Update(docRef, updates); err != nil {
			return err
		}

		current.Status = update.Status
		current.UpdatedAt = now
		result = current
		applied = true
		return nil
	})
	if err != nil {
		return domain.PaymentIntent{}, false, pfirestore.WrapError("payment_intents.updateStatus", err)
	}
	return result, applied, nil
}

func notFoundErr(ref string) error {
	return status.Error(codes.NotFound, fmt.Sprintf("no intent for external reference %s", ref))
}

type intentDocument struct {
	BuyerID           string           `firestore:"buyerId"`
	AttemptKey        string           `firestore:"attemptKey"`
	Method            string           `firestore:"method"`
	Status            string           `firestore:"status"`
	Amount            int64            `firestore:"amount"`
	Currency          string           `firestore:"currency"`
	ExternalReference string           `firestore:"externalReference,omitempty"`
	FailureReason     string           `firestore:"failureReason,omitempty"`
	Payload           *payloadDocument `firestore:"payload,omitempty"`
	CreatedAt         time.Time        `firestore:"createdAt"`
	UpdatedAt         time.Time        `firestore:"updatedAt"`
	ExpiresAt         *time.Time       `firestore:"expiresAt,omitempty"`
}

type payloadDocument struct {
	QRCode         string     `firestore:"qrCode,omitempty"`
	VoucherLine    string     `firestore:"voucherLine,omitempty"`
	VoucherBarcode string     `firestore:"voucherBarcode,omitempty"`
	VoucherDueDate *time.Time `firestore:"voucherDueDate,omitempty"`
}

func intentDocumentFromDomain(intent domain.PaymentIntent, createdAt, updatedAt time.Time) intentDocument {
	doc := intentDocument{
		BuyerID:           strings.TrimSpace(intent.BuyerID),
		AttemptKey:        strings.TrimSpace(intent.AttemptKey),
		Method:            string(intent.Method),
		Status:            string(intent.Status),
		Amount:            intent.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		ExternalReference: strings.TrimSpace(intent.ExternalReference),
		FailureReason:     strings.TrimSpace(intent.FailureReason),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
	if intent.ExpiresAt != nil {
		expires := intent.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	if payload := payloadDocumentFromDomain(intent.Payload); payload != nil {
		doc.Payload = payload
	}
	return doc
}

func payloadDocumentFromDomain(payload domain.PaymentPayload) *payloadDocument {
	if payload.QRCode == "" && payload.VoucherLine == "" && payload.VoucherBarcode == "" && payload.VoucherDueDate == nil {
		return nil
	}
	doc := &payloadDocument{
		QRCode:         payload.QRCode,
		VoucherLine:    payload.VoucherLine,
		VoucherBarcode: payload.VoucherBarcode,
	}
	if payload.VoucherDueDate != nil {
		due := payload.VoucherDueDate.UTC()
		doc.VoucherDueDate = &due
	}
	return doc
}

func (d intentDocument) toDomain(id string) domain.PaymentIntent {
	intent := domain.PaymentIntent{
		ID:                id,
		BuyerID:           d.BuyerID,
		AttemptKey:        d.AttemptKey,
		Method:            domain.PaymentMethod(d.Method),
		Status:            domain.PaymentStatus(d.Status),
		Amount:            d.Amount,
		Currency:          d.Currency,
		ExternalReference: d.ExternalReference,
		FailureReason:     d.FailureReason,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		ExpiresAt:         d.ExpiresAt,
	}
	if d.Payload != nil {
		intent.Payload = domain.PaymentPayload{
			QRCode:         d.Payload.QRCode,
			VoucherLine:    d.Payload.VoucherLine,
			VoucherBarcode: d.Payload.VoucherBarcode,
			VoucherDueDate: d.Payload.VoucherDueDate,
		}
	}
	return intent
}
