package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/mercantia/api/internal/domain"
	"github.com/mercantia/api/internal/handlers"
	"github.com/mercantia/api/internal/payments"
	"github.com/mercantia/api/internal/platform/auth"
	"github.com/mercantia/api/internal/platform/config"
	pfirestore "github.com/mercantia/api/internal/platform/firestore"
	"github.com/mercantia/api/internal/platform/idempotency"
	"github.com/mercantia/api/internal/platform/jobs"
	"github.com/mercantia/api/internal/platform/observability"
	"github.com/mercantia/api/internal/platform/secrets"
	firestoreRepo "github.com/mercantia/api/internal/repositories/firestore"
	"github.com/mercantia/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return fetcher.Resolve(ctx, "secret://"+ref)
		})),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var publisher services.EventPublisher
	if strings.TrimSpace(cfg.Events.ProjectID) != "" && strings.TrimSpace(cfg.Events.Topic) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()

		publisher, err = jobs.NewPubSubCheckoutPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise checkout publisher", zap.Error(err))
		}
	} else {
		logger.Warn("checkout events disabled; no pubsub topic configured")
	}

	stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:    cfg.Gateway.StripeAPIKey,
		AccountID: cfg.Gateway.StripeAccountID,
		Logger:    observability.ServiceLogger(logger.Named("stripe")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise card gateway", zap.Error(err))
	}

	pagarmeGateway, err := payments.NewPagarmeGateway(payments.PagarmeGatewayConfig{
		APIKey:                cfg.Gateway.PagarmeAPIKey,
		BaseURL:               cfg.Gateway.PagarmeBaseURL,
		HTTPClient:            &http.Client{Timeout: cfg.Gateway.RequestTimeout},
		Logger:                observability.ServiceLogger(logger.Named("pagarme")),
		Clock:                 time.Now,
		InstantTransferExpiry: cfg.Checkout.InstantTransferExpiry,
		VoucherDueDays:        cfg.Checkout.VoucherDueDays,
	})
	if err != nil {
		logger.Fatal("failed to initialise transfer gateway", zap.Error(err))
	}

	gatewayManager, err := payments.NewManager(map[domain.PaymentMethod]payments.Gateway{
		domain.PaymentMethodCard:            stripeGateway,
		domain.PaymentMethodInstantTransfer: pagarmeGateway,
		domain.PaymentMethodVoucher:         pagarmeGateway,
	})
	if err != nil {
		logger.Fatal("failed to initialise gateway manager", zap.Error(err))
	}

	pricer, err := services.NewPricingEngine(services.PricingEngineDeps{
		TaxRateBasisPoints:    cfg.Checkout.TaxRateBasisPoints,
		FlatShippingFee:       cfg.Checkout.FlatShippingFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		Logger:                observability.ServiceLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository:      registry.Carts(),
		Addresses:       registry.Addresses(),
		Pricer:          pricer,
		Clock:           time.Now,
		DefaultCurrency: cfg.Checkout.Currency,
		Logger:          observability.ServiceLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	addressService, err := services.NewAddressService(services.AddressServiceDeps{
		Repository: registry.Addresses(),
		Clock:      time.Now,
		Logger:     observability.ServiceLogger(logger.Named("addresses")),
	})
	if err != nil {
		logger.Fatal("failed to initialise address service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Intents:          registry.PaymentIntents(),
		Carts:            registry.Carts(),
		Pricer:           pricer,
		Gateway:          gatewayManager,
		Publisher:        publisher,
		Clock:            time.Now,
		Logger:           observability.ServiceLogger(logger.Named("payments")),
		PollInterval:     cfg.Checkout.PollInterval,
		PollCheckTimeout: cfg.Checkout.PollCheckTimeout,
		PollCeiling:      cfg.Checkout.PollCeiling,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    registry.Orders(),
		Intents:   registry.PaymentIntents(),
		Carts:     registry.Carts(),
		Pricer:    pricer,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	webhookVerifier := auth.NewWebhookVerifier(cfg.Gateway.WebhookSecret, auth.WithSignatureHeader(cfg.Gateway.SignatureHeader))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	addressHandlers := handlers.NewAddressHandlers(authenticator, addressService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, paymentService, orderService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	webhookHandlers := handlers.NewWebhookHandlers(paymentService,
		handlers.WithWebhookLogger(observability.ServiceLogger(logger.Named("webhooks"))))

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheckers(registry.Health()),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithMeRoutes(addressHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(webhookVerifier.Middleware()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("mercantia api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
