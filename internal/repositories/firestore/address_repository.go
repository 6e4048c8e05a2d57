package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/mercantia/api/internal/domain"
	pfirestore "github.com/mercantia/api/internal/platform/firestore"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository manages shipping addresses stored under each buyer's subcollection.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// ListAddresses returns every address stored for the buyer, default first.
func (r *AddressRepository) ListAddresses(ctx context.Context, buyerID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var defaults, rest []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap)
		if err != nil {
			return nil, err
		}
		if addr.IsDefault {
			defaults = append(defaults, addr)
		} else {
			rest = append(rest, addr)
		}
	}
	return append(defaults, rest...), nil
}

// FindAddress loads a single address belonging to the buyer.
func (r *AddressRepository) FindAddress(ctx context.Context, buyerID, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, buyerID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap)
}

// CreateAddress persists a new address. When the address is flagged default the
// flag is cleared on every other address inside the same transaction.
func (r *AddressRepository) CreateAddress(ctx context.Context, buyerID string, address domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, buyerID)
	if err != nil {
		return domain.Address{}, err
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.NewDoc()
		if id := strings.TrimSpace(address.ID); id != "" {
			docRef = coll.Doc(id)
		}

		if address.IsDefault {
			if err := r.clearDefault(tx, coll, docRef.ID); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		createdAt := address.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}

		doc := addressDocument{
			Recipient:  strings.TrimSpace(address.Recipient),
			Line1:      strings.TrimSpace(address.Line1),
			Line2:      strings.TrimSpace(address.Line2),
			City:       strings.TrimSpace(address.City),
			State:      strings.ToUpper(strings.TrimSpace(address.State)),
			PostalCode: strings.TrimSpace(address.PostalCode),
			Country:    strings.ToUpper(strings.TrimSpace(address.Country)),
			Phone:      strings.TrimSpace(address.Phone),
			IsDefault:  address.IsDefault,
			CreatedAt:  createdAt,
			UpdatedAt:  now,
		}

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.create", err)
	}
	return saved, nil
}

// SetDefaultAddress atomically moves the default flag to the given address.
func (r *AddressRepository) SetDefaultAddress(ctx context.Context, buyerID, addressID string) error {
	coll, err := r.collection(ctx, buyerID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		if _, err := tx.Get(docRef); err != nil {
			return err
		}

		if err := r.clearDefault(tx, coll, id); err != nil {
			return err
		}

		return tx.Update(docRef, []firestore.Update{
			{Path: "isDefault", Value: true},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	return pfirestore.WrapError("addresses.setDefault", err)
}

func (r *AddressRepository) collection(ctx context.Context, buyerID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(buyerID)
	if uid == "" {
		return nil, errors.New("address repository: buyer id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

func (r *AddressRepository) clearDefault(tx *firestore.Transaction, coll *firestore.CollectionRef, currentID string) error {
	query := coll.Where("isDefault", "==", true).Limit(10)
	snaps, err := tx.Documents(query).GetAll()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	for _, snap := range snaps {
		if snap.Ref.ID == currentID {
			continue
		}
		if err := tx.Update(snap.Ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
			return err
		}
	}
	return nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

type addressDocument struct {
	Recipient  string    `firestore:"recipient"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	Phone      string    `firestore:"phone,omitempty"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
