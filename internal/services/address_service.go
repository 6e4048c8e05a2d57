package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/repositories"
)

// ErrAddressInvalidInput indicates the address payload failed validation.
var ErrAddressInvalidInput = errors.New("address service: invalid input")

// ErrAddressNotFound indicates the address does not exist for the buyer.
var ErrAddressNotFound = errors.New("address service: not found")

// ErrAddressUnavailable indicates a backend failure while accessing addresses.
var ErrAddressUnavailable = errors.New("address service: unavailable")

var (
	brPostalCodePattern = regexp.MustCompile(`^\d{5}-?\d{3}$`)
	usPostalCodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// AddressServiceDeps wires the repository dependencies for address operations.
type AddressServiceDeps struct {
	Repository  repositories.AddressRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type addressService struct {
	repo   repositories.AddressRepository
	newID  func() string
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewAddressService constructs an AddressService enforcing dependency validation.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Repository == nil {
		return nil, errors.New("address service: repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("address service: clock is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &addressService{
		repo:   deps.Repository,
		newID:  idGen,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// ListAddresses returns the buyer's addresses, default first.
func (s *addressService) ListAddresses(ctx context.Context, buyerID string) ([]Address, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrAddressInvalidInput)
	}

	addresses, err := s.repo.ListAddresses(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list addresses: %v", ErrAddressUnavailable, err)
	}
	return addresses, nil
}

// CreateAddress validates and stores a new shipping address. The first address
// of a buyer always becomes the default; an explicit default request moves the
// flag off every other address atomically.
func (s *addressService) CreateAddress(ctx context.Context, cmd CreateAddressCommand) (Address, error) {
	address, err := s.buildAddress(cmd)
	if err != nil {
		return Address{}, err
	}

	existing, err := s.repo.ListAddresses(ctx, cmd.BuyerID)
	if err != nil {
		return Address{}, fmt.Errorf("%w: list addresses: %v", ErrAddressUnavailable, err)
	}
	if len(existing) == 0 {
		address.IsDefault = true
	}

	created, err := s.repo.CreateAddress(ctx, cmd.BuyerID, address)
	if err != nil {
		return Address{}, fmt.Errorf("%w: create address: %v", ErrAddressUnavailable, err)
	}

	s.logger(ctx, "address.created", map[string]any{
		"buyerId":   cmd.BuyerID,
		"addressId": created.ID,
		"isDefault": created.IsDefault,
	})
	return created, nil
}

// SetDefaultAddress atomically moves the default flag to the given address.
func (s *addressService) SetDefaultAddress(ctx context.Context, buyerID, addressID string) (Address, error) {
	buyerID = strings.TrimSpace(buyerID)
	addressID = strings.TrimSpace(addressID)
	if buyerID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: buyer id and address id are required", ErrAddressInvalidInput)
	}

	if err := s.repo.SetDefaultAddress(ctx, buyerID, addressID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Address{}, fmt.Errorf("%w: %s", ErrAddressNotFound, addressID)
		}
		return Address{}, fmt.Errorf("%w: set default: %v", ErrAddressUnavailable, err)
	}

	address, err := s.repo.FindAddress(ctx, buyerID, addressID)
	if err != nil {
		return Address{}, fmt.Errorf("%w: find address: %v", ErrAddressUnavailable, err)
	}

	s.logger(ctx, "address.default.changed", map[string]any{
		"buyerId":   buyerID,
		"addressId": addressID,
	})
	return address, nil
}

func (s *addressService) buildAddress(cmd CreateAddressCommand) (domain.Address, error) {
	cmd.BuyerID = strings.TrimSpace(cmd.BuyerID)
	if cmd.BuyerID == "" {
		return domain.Address{}, fmt.Errorf("%w: buyer id is required", ErrAddressInvalidInput)
	}

	recipient := strings.TrimSpace(cmd.Recipient)
	line1 := strings.TrimSpace(cmd.Line1)
	city := strings.TrimSpace(cmd.City)
	state := strings.TrimSpace(cmd.State)
	country := strings.ToUpper(strings.TrimSpace(cmd.Country))

	missing := []string{}
	if recipient == "" {
		missing = append(missing, "recipient")
	}
	if line1 == "" {
		missing = append(missing, "line1")
	}
	if city == "" {
		missing = append(missing, "city")
	}
	if state == "" {
		missing = append(missing, "state")
	}
	if country == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return domain.Address{}, fmt.Errorf("%w: missing fields: %s", ErrAddressInvalidInput, strings.Join(missing, ", "))
	}
	if len(country) != 2 {
		return domain.Address{}, fmt.Errorf("%w: country must be a two-letter code", ErrAddressInvalidInput)
	}

	postalCode, err := normalizePostalCode(country, cmd.PostalCode)
	if err != nil {
		return domain.Address{}, err
	}

	now := s.now()
	return domain.Address{
		ID:         s.newID(),
		Recipient:  recipient,
		Line1:      line1,
		Line2:      strings.TrimSpace(cmd.Line2),
		City:       city,
		State:      state,
		PostalCode: postalCode,
		Country:    country,
		Phone:      strings.TrimSpace(cmd.Phone),
		IsDefault:  cmd.IsDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// normalizePostalCode validates the postal code for the given country.
// Brazilian CEPs are normalised to the #####-### form; US ZIPs keep their
// original shape; other countries only require a non-empty value.
func normalizePostalCode(country, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: postal code is required", ErrAddressInvalidInput)
	}

	switch country {
	case "BR":
		if !brPostalCodePattern.MatchString(code) {
			return "", fmt.Errorf("%w: invalid CEP %q", ErrAddressInvalidInput, code)
		}
		digits := strings.ReplaceAll(code, "-", "")
		return digits[:5] + "-" + digits[5:], nil
	case "US":
		if !usPostalCodePattern.MatchString(code) {
			return "", fmt.Errorf("%w: invalid ZIP code %q", ErrAddressInvalidInput, code)
		}
		return code, nil
	default:
		return code, nil
	}
}
