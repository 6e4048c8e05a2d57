package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultCurrency            = "BRL"
	defaultTaxRateBasisPoints  = 1000
	defaultFlatShippingFee     = 1000
	defaultFreeShippingMinimum = 5000

	defaultInstantTransferExpiry = 30 * time.Minute
	defaultVoucherDueDays        = 3
	defaultPollInterval          = 3 * time.Second
	defaultPollCheckTimeout      = 5 * time.Second
	defaultPollCeiling           = 2 * time.Minute

	defaultPagarmeBaseURL = "https://api.pagar.me/core/v5"

	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
)

var errSecretResolverNotConfigured = errors.New("config: secret resolver not configured")

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Gateway     GatewayConfig
	Checkout    CheckoutConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for buyer authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// GatewayConfig collects payment gateway credentials and webhook security parameters.
type GatewayConfig struct {
	StripeAPIKey     string
	StripeAccountID  string
	PagarmeAPIKey    string
	PagarmeBaseURL   string
	WebhookSecret    string
	RequestTimeout   time.Duration
	SignatureHeader  string
}

// CheckoutConfig captures pricing policy and payment-method windows.
type CheckoutConfig struct {
	Currency              string
	TaxRateBasisPoints    int
	FlatShippingFee       int64
	FreeShippingThreshold int64

	InstantTransferExpiry time.Duration
	VoucherDueDays        int
	PollInterval          time.Duration
	PollCheckTimeout      time.Duration
	PollCeiling           time.Duration
}

// EventsConfig configures Pub/Sub publication of checkout domain events.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// Option customises configuration loading.
type Option func(*loaderOptions)

// WithEnvFile overrides the dotenv file consulted during loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies explicit values taking precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables fallbacks to the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		if resolver != nil {
			o.secret = resolver
		}
	}
}

// Load reads configuration from the environment, dotenv file, and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Gateway: GatewayConfig{
			StripeAPIKey:    stringWithDefault(lookup, "API_GATEWAY_STRIPE_API_KEY", ""),
			StripeAccountID: stringWithDefault(lookup, "API_GATEWAY_STRIPE_ACCOUNT_ID", ""),
			PagarmeAPIKey:   stringWithDefault(lookup, "API_GATEWAY_PAGARME_API_KEY", ""),
			PagarmeBaseURL:  stringWithDefault(lookup, "API_GATEWAY_PAGARME_BASE_URL", defaultPagarmeBaseURL),
			WebhookSecret:   stringWithDefault(lookup, "API_GATEWAY_WEBHOOK_SECRET", ""),
			RequestTimeout:  durationWithDefault(lookup, "API_GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
			SignatureHeader: stringWithDefault(lookup, "API_GATEWAY_SIGNATURE_HEADER", "X-Hub-Signature"),
		},
		Checkout: CheckoutConfig{
			Currency:              strings.ToUpper(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
			TaxRateBasisPoints:    intWithDefault(lookup, "API_CHECKOUT_TAX_RATE_BPS", defaultTaxRateBasisPoints),
			FlatShippingFee:       int64WithDefault(lookup, "API_CHECKOUT_FLAT_SHIPPING_FEE", defaultFlatShippingFee),
			FreeShippingThreshold: int64WithDefault(lookup, "API_CHECKOUT_FREE_SHIPPING_MIN", defaultFreeShippingMinimum),
			InstantTransferExpiry: durationWithDefault(lookup, "API_CHECKOUT_PIX_EXPIRY", defaultInstantTransferExpiry),
			VoucherDueDays:        intWithDefault(lookup, "API_CHECKOUT_VOUCHER_DUE_DAYS", defaultVoucherDueDays),
			PollInterval:          durationWithDefault(lookup, "API_CHECKOUT_POLL_INTERVAL", defaultPollInterval),
			PollCheckTimeout:      durationWithDefault(lookup, "API_CHECKOUT_POLL_CHECK_TIMEOUT", defaultPollCheckTimeout),
			PollCeiling:           durationWithDefault(lookup, "API_CHECKOUT_POLL_CEILING", defaultPollCeiling),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_EVENTS_TOPIC", ""),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Firestore project defaults to Firebase project when unspecified,
	// as does the events project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Gateway.StripeAPIKey,
		&cfg.Gateway.PagarmeAPIKey,
		&cfg.Gateway.WebhookSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return strings.TrimSpace(value), nil
	}
	resolved, err := resolver.ResolveSecret(ctx, normalizeSecretReference(value))
	if err != nil {
		return "", &SecretError{Ref: value, Err: err}
	}
	return strings.TrimSpace(resolved), nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Checkout.TaxRateBasisPoints < 0 || cfg.Checkout.TaxRateBasisPoints > 10000 {
		missing = append(missing, "Checkout.TaxRateBasisPoints")
	}
	if cfg.Checkout.FlatShippingFee < 0 {
		missing = append(missing, "Checkout.FlatShippingFee")
	}
	if cfg.Checkout.FreeShippingThreshold < 0 {
		missing = append(missing, "Checkout.FreeShippingThreshold")
	}
	if cfg.Checkout.VoucherDueDays <= 0 {
		missing = append(missing, "Checkout.VoucherDueDays")
	}
	if cfg.Checkout.PollInterval <= 0 || cfg.Checkout.PollCeiling < cfg.Checkout.PollInterval {
		missing = append(missing, "Checkout.PollInterval")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

func normalizeSecretReference(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "secret://")
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
