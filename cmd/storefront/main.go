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
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/PauloRGNDev/lovableshop-starter/internal/di"
	"github.com/PauloRGNDev/lovableshop-starter/internal/handlers"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/idempotency"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/jobs"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/observability"
	platformstorage "github.com/PauloRGNDev/lovableshop-starter/internal/platform/storage"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
	firestoreRepo "github.com/PauloRGNDev/lovableshop-starter/internal/repositories/firestore"
	redisstore "github.com/PauloRGNDev/lovableshop-starter/internal/repositories/redis"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

const (
	meterName          = "github.com/PauloRGNDev/lovableshop-starter"
	cartSessionPrefix  = "deleza:cart:"
	idempotencyRecords = "idempotency_keys"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	meter := otel.Meter(meterName)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	clientOpts := credentialOptions(cfg)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))

	var (
		sessions    repositories.CartSessionStore
		redisPinger func(context.Context) error
		closers     []func() error
	)
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		store, err := redisstore.NewSessionStore(redisClient, cartSessionPrefix)
		if err != nil {
			logger.Fatal("failed to initialise redis session store", zap.Error(err))
		}
		sessions = store
		redisPinger = store.Ping
		closers = append(closers, redisClient.Close)
	} else {
		logger.Warn("redis not configured; cart sessions are kept in process memory")
		sessions = repositories.NewMemorySessionStore(time.Now)
	}

	healthRepo, err := newHealthRepository(firestoreProvider, fetcher, redisPinger)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, sessions, healthRepo, closers...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	firebaseClient, err := auth.NewFirebaseClient(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase client", zap.Error(err))
	}

	clients := di.Clients{
		Logger:   logger,
		Meter:    meter,
		Firebase: firebaseClient,
		Build:    buildInfo,
		Clock:    time.Now,
	}

	if key := strings.TrimSpace(cfg.Firebase.WebAPIKey); key != "" {
		passwords, err := auth.NewPasswordClient(ctx, key)
		if err != nil {
			logger.Fatal("failed to initialise password sign-in client", zap.Error(err))
		}
		clients.Passwords = passwords
	} else {
		logger.Warn("firebase web api key not configured; /auth endpoints are disabled")
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		paymentManager, err := newPaymentManager(logger.Named("payments"), cfg)
		if err != nil {
			logger.Fatal("failed to initialise payment manager", zap.Error(err))
		}
		clients.Payments = paymentManager
	} else {
		logger.Warn("stripe not configured; orders stay pending without a checkout url")
	}

	if bucket := strings.TrimSpace(cfg.Storage.ProductImagesBucket); bucket != "" {
		images, err := newProductImages(cfg)
		if err != nil {
			logger.Fatal("failed to initialise product image uploads", zap.Error(err))
		}
		clients.ProductImages = images
	}

	var topics []*pubsub.Topic
	if cfg.PubSub.ContactTopic != "" || cfg.PubSub.OrderEventsTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		if name := strings.TrimSpace(cfg.PubSub.ContactTopic); name != "" {
			topic := pubsubClient.Topic(name)
			publisher, err := jobs.NewTopicPublisher(topic)
			if err != nil {
				logger.Fatal("failed to initialise contact publisher", zap.Error(err))
			}
			clients.ContactEvents = publisher
			topics = append(topics, topic)
		}
		if name := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); name != "" {
			topic := pubsubClient.Topic(name)
			topic.EnableMessageOrdering = true
			publisher, err := jobs.NewTopicPublisher(topic)
			if err != nil {
				logger.Fatal("failed to initialise order event publisher", zap.Error(err))
			}
			clients.OrderEvents = publisher
			topics = append(topics, topic)
		}
	}

	container, err := di.NewContainer(ctx, cfg, registry, clients)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	svc := container.Services

	authOpts := []auth.Option{auth.WithUserGetter(firebaseClient)}
	if svc.Accounts != nil {
		authOpts = append(authOpts, auth.WithAdminLookup(svc.Accounts.IsAdmin))
	}
	authenticator := auth.NewAuthenticator(firebaseClient, authOpts...)

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreProvider, idempotencyRecords),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)
	publicHandlers := handlers.NewPublicHandlers(svc.Catalog,
		handlers.WithContactService(svc.Contact),
		handlers.WithContactRateLimit(cfg.RateLimits.ContactPerMinute),
	)
	authHandlers := handlers.NewAuthHandlers(authenticator, svc.Accounts, cfg.RateLimits.AuthPerMinute)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware, cfg.Idempotency.Header),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Catalog, svc.Orders)
	internalHandlers := handlers.NewInternalHandlers(svc.Orders)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRoutes(handlers.GroupPublic, publicHandlers.Routes),
		handlers.WithRoutes(handlers.GroupAuth, authHandlers.Routes),
		handlers.WithRoutes(handlers.GroupMe, authHandlers.MeRoutes),
		handlers.WithRoutes(handlers.GroupCart, cartHandlers.Routes),
		handlers.WithRoutes(handlers.GroupCheckout, checkoutHandlers.Routes),
		handlers.WithRoutes(handlers.GroupOrders, orderHandlers.Routes),
		handlers.WithRoutes(handlers.GroupAdmin, adminHandlers.Routes),
	}
	if clients.Payments != nil {
		webhookHandlers := handlers.NewWebhookHandlers(clients.Payments, svc.Orders)
		opts = append(opts, handlers.WithRoutes(handlers.GroupWebhooks, webhookHandlers.Routes))
	}
	switch oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); {
	case oidc != nil:
		opts = append(opts,
			handlers.WithRoutes(handlers.GroupInternal, internalHandlers.Routes),
			handlers.WithGroupMiddlewares(handlers.GroupInternal, oidc),
		)
	case isLocalEnvironment(cfg.Security.Environment):
		logger.Warn("internal routes mounted without OIDC verification")
		opts = append(opts, handlers.WithRoutes(handlers.GroupInternal, internalHandlers.Routes))
	default:
		logger.Warn("OIDC not configured; internal routes disabled")
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("deleza storefront listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	for _, topic := range topics {
		topic.Stop()
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func newPaymentManager(logger *zap.Logger, cfg config.Config) (*payments.Manager, error) {
	eventLogger := observability.NewEventLogger(logger)
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        payments.StripeLogger(eventLogger),
		Clock:         time.Now,
	})
	if err != nil {
		return nil, err
	}
	return payments.NewManager(
		map[string]payments.Provider{"stripe": stripeProvider},
		payments.WithCurrencyRoutes(map[string]string{cfg.Locale.Currency: "stripe"}),
	)
}

func newProductImages(cfg config.Config) (*platformstorage.ProductImages, error) {
	path := strings.TrimSpace(cfg.Storage.SignerAccountFile)
	if path == "" {
		path = strings.TrimSpace(cfg.Firebase.CredentialsFile)
	}
	if path == "" {
		return nil, errors.New("storage signer account file is required for image uploads")
	}
	signer, err := platformstorage.LoadKeySigner(path)
	if err != nil {
		return nil, fmt.Errorf("load storage signer: %w", err)
	}
	return platformstorage.NewProductImages(cfg.Storage.ProductImagesBucket, signer,
		platformstorage.WithUploadExpiry(cfg.Storage.UploadURLTTL),
	)
}

func credentialOptions(cfg config.Config) []option.ClientOption {
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
