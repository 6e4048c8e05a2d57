package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestAddressService(t *testing.T, repo *stubAddressRepo) AddressService {
	t.Helper()
	ids := 0
	svc, err := NewAddressService(AddressServiceDeps{
		Repository: repo,
		Clock:      fixedClock(),
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("addr-%d", ids)
		},
	})
	if err != nil {
		t.Fatalf("new address service: %v", err)
	}
	return svc
}

func validAddressCommand() CreateAddressCommand {
	return CreateAddressCommand{
		BuyerID:    "buyer-1",
		Recipient:  "Ana Souza",
		Line1:      "Rua das Flores 123",
		City:       "São Paulo",
		State:      "SP",
		PostalCode: "01310100",
		Country:    "br",
	}
}

func TestAddressServiceCreateFirstAddressBecomesDefault(t *testing.T) {
	repo := newStubAddressRepo()
	svc := newTestAddressService(t, repo)
	ctx := context.Background()

	created, err := svc.CreateAddress(ctx, validAddressCommand())
	if err != nil {
		t.Fatalf("create address: %v", err)
	}
	if !created.IsDefault {
		t.Fatalf("expected first address to be default")
	}
	if created.PostalCode != "01310-100" {
		t.Fatalf("expected normalised CEP, got %q", created.PostalCode)
	}
	if created.Country != "BR" {
		t.Fatalf("expected upper-cased country, got %q", created.Country)
	}
}

func TestAddressServiceSecondAddressKeepsExistingDefault(t *testing.T) {
	repo := newStubAddressRepo()
	svc := newTestAddressService(t, repo)
	ctx := context.Background()

	if _, err := svc.CreateAddress(ctx, validAddressCommand()); err != nil {
		t.Fatalf("create first address: %v", err)
	}

	cmd := validAddressCommand()
	cmd.Line1 = "Avenida Paulista 1000"
	second, err := svc.CreateAddress(ctx, cmd)
	if err != nil {
		t.Fatalf("create second address: %v", err)
	}
	if second.IsDefault {
		t.Fatalf("expected second address not to be default")
	}
}

func TestAddressServiceCreateWithExplicitDefaultMovesFlag(t *testing.T) {
	repo := newStubAddressRepo()
	svc := newTestAddressService(t, repo)
	ctx := context.Background()

	if _, err := svc.CreateAddress(ctx, validAddressCommand()); err != nil {
		t.Fatalf("create first address: %v", err)
	}

	cmd := validAddressCommand()
	cmd.IsDefault = true
	second, err := svc.CreateAddress(ctx, cmd)
	if err != nil {
		t.Fatalf("create second address: %v", err)
	}
	if !second.IsDefault {
		t.Fatalf("expected second address to take default flag")
	}

	addresses, err := svc.ListAddresses(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	defaults := 0
	for _, addr := range addresses {
		if addr.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default address, got %d", defaults)
	}
}

func TestAddressServiceValidation(t *testing.T) {
	svc := newTestAddressService(t, newStubAddressRepo())
	ctx := context.Background()

	mutations := []func(*CreateAddressCommand){
		func(c *CreateAddressCommand) { c.BuyerID = "" },
		func(c *CreateAddressCommand) { c.Recipient = " " },
		func(c *CreateAddressCommand) { c.Line1 = "" },
		func(c *CreateAddressCommand) { c.City = "" },
		func(c *CreateAddressCommand) { c.State = "" },
		func(c *CreateAddressCommand) { c.Country = "" },
		func(c *CreateAddressCommand) { c.Country = "BRA" },
		func(c *CreateAddressCommand) { c.PostalCode = "" },
		func(c *CreateAddressCommand) { c.PostalCode = "1234" },
		func(c *CreateAddressCommand) { c.Country = "US"; c.PostalCode = "0131-0100" },
	}
	for i, mutate := range mutations {
		cmd := validAddressCommand()
		mutate(&cmd)
		if _, err := svc.CreateAddress(ctx, cmd); !errors.Is(err, ErrAddressInvalidInput) {
			t.Fatalf("case %d: expected ErrAddressInvalidInput, got %v", i, err)
		}
	}
}

func TestAddressServiceAcceptsUSZip(t *testing.T) {
	svc := newTestAddressService(t, newStubAddressRepo())

	cmd := validAddressCommand()
	cmd.Country = "US"
	cmd.PostalCode = "94103-1234"
	created, err := svc.CreateAddress(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create address: %v", err)
	}
	if created.PostalCode != "94103-1234" {
		t.Fatalf("expected ZIP preserved, got %q", created.PostalCode)
	}
}

func TestAddressServiceSetDefaultAddress(t *testing.T) {
	repo := newStubAddressRepo()
	svc := newTestAddressService(t, repo)
	ctx := context.Background()

	first, err := svc.CreateAddress(ctx, validAddressCommand())
	if err != nil {
		t.Fatalf("create first address: %v", err)
	}
	second, err := svc.CreateAddress(ctx, validAddressCommand())
	if err != nil {
		t.Fatalf("create second address: %v", err)
	}

	updated, err := svc.SetDefaultAddress(ctx, "buyer-1", second.ID)
	if err != nil {
		t.Fatalf("set default: %v", err)
	}
	if !updated.IsDefault {
		t.Fatalf("expected address to become default")
	}

	remaining, err := svc.ListAddresses(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	for _, addr := range remaining {
		if addr.ID == first.ID && addr.IsDefault {
			t.Fatalf("expected previous default to be cleared")
		}
	}

	if _, err := svc.SetDefaultAddress(ctx, "buyer-1", "missing"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
}
