package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mercantia-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "mercantia-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "mercantia-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Checkout.Currency != "BRL" {
		t.Errorf("expected default currency BRL, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.TaxRateBasisPoints != 1000 {
		t.Errorf("unexpected default tax rate: %d", cfg.Checkout.TaxRateBasisPoints)
	}
	if cfg.Checkout.FlatShippingFee != 1000 {
		t.Errorf("unexpected default shipping fee: %d", cfg.Checkout.FlatShippingFee)
	}
	if cfg.Checkout.FreeShippingThreshold != 5000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.InstantTransferExpiry != 30*time.Minute {
		t.Errorf("unexpected instant transfer expiry: %s", cfg.Checkout.InstantTransferExpiry)
	}
	if cfg.Checkout.VoucherDueDays != 3 {
		t.Errorf("unexpected voucher due days: %d", cfg.Checkout.VoucherDueDays)
	}
	if cfg.Checkout.PollInterval != 3*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.Checkout.PollInterval)
	}
	if cfg.Gateway.PagarmeBaseURL != defaultPagarmeBaseURL {
		t.Errorf("unexpected pagarme base url: %s", cfg.Gateway.PagarmeBaseURL)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_READ_TIMEOUT":        "20s",
		"API_FIREBASE_PROJECT_ID":        "mercantia-prod",
		"API_FIRESTORE_PROJECT_ID":       "mercantia-fire",
		"API_GATEWAY_STRIPE_API_KEY":     "secret://stripe/api",
		"API_GATEWAY_PAGARME_API_KEY":    "secret://pagarme/api",
		"API_GATEWAY_WEBHOOK_SECRET":     "secret://gateway/webhook",
		"API_CHECKOUT_TAX_RATE_BPS":      "1500",
		"API_CHECKOUT_FLAT_SHIPPING_FEE": "1500",
		"API_CHECKOUT_FREE_SHIPPING_MIN": "10000",
		"API_CHECKOUT_PIX_EXPIRY":        "45m",
		"API_CHECKOUT_POLL_INTERVAL":     "5s",
		"API_CHECKOUT_POLL_CEILING":      "3m",
		"API_EVENTS_TOPIC":               "checkout-events",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "mercantia-fire" {
		t.Errorf("expected firestore project override, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "mercantia-fire" {
		t.Errorf("expected events project to follow firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Gateway.StripeAPIKey != "resolved:stripe/api" {
		t.Errorf("expected resolved stripe key, got %s", cfg.Gateway.StripeAPIKey)
	}
	if cfg.Gateway.PagarmeAPIKey != "resolved:pagarme/api" {
		t.Errorf("expected resolved pagarme key, got %s", cfg.Gateway.PagarmeAPIKey)
	}
	if cfg.Gateway.WebhookSecret != "resolved:gateway/webhook" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.Gateway.WebhookSecret)
	}
	if cfg.Checkout.TaxRateBasisPoints != 1500 {
		t.Errorf("expected tax rate override, got %d", cfg.Checkout.TaxRateBasisPoints)
	}
	if cfg.Checkout.FreeShippingThreshold != 10000 {
		t.Errorf("expected free shipping override, got %d", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.InstantTransferExpiry != 45*time.Minute {
		t.Errorf("expected pix expiry override, got %s", cfg.Checkout.InstantTransferExpiry)
	}
	if cfg.Events.Topic != "checkout-events" {
		t.Errorf("unexpected events topic: %s", cfg.Events.Topic)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_GATEWAY_PAGARME_API_KEY": "secret://pagarme/api",
	}

	resolver := SecretResolverFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("backend down")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err == nil {
		t.Fatal("expected error from secret resolution")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://pagarme/api" {
		t.Errorf("unexpected secret ref: %s", secretErr.Ref)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	env := map[string]string{
		"API_CHECKOUT_TAX_RATE_BPS":     "20000",
		"API_CHECKOUT_VOUCHER_DUE_DAYS": "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Fields()) != 2 {
		t.Errorf("unexpected invalid fields: %v", validationErr.Fields())
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "API_SERVER_PORT=7001\n# comment\nAPI_CHECKOUT_CURRENCY=\"usd\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7001" {
		t.Errorf("expected port from env file, got %s", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected currency upper-cased from env file, got %s", cfg.Checkout.Currency)
	}
}
