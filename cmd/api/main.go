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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/devki-mart/api/internal/di"
	"github.com/devki-mart/api/internal/handlers"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/payments"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/config"
	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/platform/idempotency"
	"github.com/devki-mart/api/internal/platform/observability"
	"github.com/devki-mart/api/internal/platform/secrets"
	"github.com/devki-mart/api/internal/repositories"
	firestoreRepo "github.com/devki-mart/api/internal/repositories/firestore"
	"github.com/devki-mart/api/internal/repositories/memory"
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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	if fetcher != nil {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
	}

	loadOpts := []config.Option{}
	if fetcher != nil {
		loadOpts = append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, firestoreProvider, firestoreClient := newRegistry(ctx, logger, cfg)
	if firestoreProvider != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	notifier, pubsubClient := newNotifier(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	var authenticator *auth.Authenticator
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(verifier)
	} else {
		logger.Warn("firebase project not configured; authenticated routes will reject requests")
	}

	paymentManager := newPaymentManager(logger, cfg)
	if paymentManager == nil {
		logger.Warn("no payment providers configured; online payment routes will reject requests")
	}

	healthRepo, err := newHealthRepository(firestoreClient, pubsubClient, cfg)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	container, err := di.NewContainer(di.Deps{
		Config:   cfg,
		Registry: registry,
		Gateway:  paymentManager,
		Notifier: notifier,
		Health:   healthRepo,
		Logger: func(component string) func(ctx context.Context, event string, fields map[string]any) {
			return serviceLogger(logger.Named(component))
		},
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, container.Services.Checkout, container.Services.Payments)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	deliveryHandlers := handlers.NewDeliveryHandlers(authenticator, container.Services.Orders)
	adminHandlers := handlers.NewAdminCatalogHandlers(authenticator, container.Services.Catalog)
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(traceProjectID(cfg)),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		newIdempotencyMiddleware(logger, firestoreClient),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithDeliveryRoutes(deliveryHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
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
		serverLogger.Info("devki-mart api listening")
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

// serviceLogger adapts a zap logger to the event/field callback services accept.
func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

// newRegistry selects the Firestore-backed registry when a project is
// configured, falling back to the in-memory registry for local development.
func newRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config) (repositories.Registry, *pfirestore.Provider, *firestore.Client) {
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" && strings.TrimSpace(cfg.Firestore.EmulatorHost) == "" {
		logger.Warn("firestore not configured; using in-memory repositories")
		return memory.NewRegistry(), nil, nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	client, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		logger.Fatal("failed to initialise firestore registry", zap.Error(err))
	}
	return registry, provider, client
}

// newNotifier publishes to Pub/Sub when a topic is configured, otherwise
// downgrades notifications to structured log entries.
func newNotifier(ctx context.Context, logger *zap.Logger, cfg config.Config) (notifications.Notifier, *pubsub.Client) {
	projectID := strings.TrimSpace(cfg.Notifications.ProjectID)
	topicID := strings.TrimSpace(cfg.Notifications.Topic)
	if projectID == "" || topicID == "" {
		logger.Info("notifications topic not configured; using log notifier")
		return notifications.NewLogNotifier(logger.Named("notifications")), nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	notifier, err := notifications.NewPubSubNotifier(client.Topic(topicID))
	if err != nil {
		logger.Fatal("failed to initialise pubsub notifier", zap.Error(err))
	}
	return notifier, client
}

// newPaymentManager registers every provider with credentials present in the
// configuration. A nil manager disables online payments and refunds.
func newPaymentManager(logger *zap.Logger, cfg config.Config) *payments.Manager {
	providers := make(map[string]payments.Provider)

	if cfg.PSP.RazorpayKeyID != "" && cfg.PSP.RazorpayKeySecret != "" {
		provider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.PSP.RazorpayKeyID,
			KeySecret: cfg.PSP.RazorpayKeySecret,
			Timeout:   cfg.PSP.RequestTimeout,
			Logger:    serviceLogger(logger.Named("razorpay")),
			Clock:     time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise razorpay provider", zap.Error(err))
		}
		providers["razorpay"] = provider
	}

	if cfg.PSP.StripeAPIKey != "" && cfg.PSP.StripeSigningSecret != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.PSP.StripeAPIKey,
			SigningSecret: cfg.PSP.StripeSigningSecret,
			Logger:        serviceLogger(logger.Named("stripe")),
			Clock:         time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		providers["stripe"] = provider
	}

	if len(providers) == 0 {
		return nil
	}

	manager, err := payments.NewManager(providers, payments.WithDefaultProvider(cfg.PSP.DefaultProvider))
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}
	return manager
}

// newIdempotencyMiddleware deduplicates retried mutating requests keyed by
// the Idempotency-Key header. Records persist in Firestore when available and
// in process memory otherwise.
func newIdempotencyMiddleware(logger *zap.Logger, client *firestore.Client) func(http.Handler) http.Handler {
	var store idempotency.Store
	if client != nil {
		store = idempotency.NewFirestoreStore(client)
	} else {
		store = idempotency.NewMemoryStore()
	}
	return idempotency.Middleware(store,
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)
}

func newHealthRepository(client *firestore.Client, pubsubClient *pubsub.Client, cfg config.Config) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if pubsubClient != nil {
		topic := pubsubClient.Topic(strings.TrimSpace(cfg.Notifications.Topic))
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := topic.Exists(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "memory",
			Timeout: time.Second,
			Check:   func(context.Context) error { return nil },
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// newSecretFetcher builds a Secret Manager resolver when a project is known.
// Without one, secret:// references in the environment fail at config load.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	if defaultProject == "" {
		return nil, nil
	}

	opts := []secrets.Option{
		secrets.WithDefaultProject(defaultProject),
		secrets.WithLogger(logger.Named("secrets")),
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
