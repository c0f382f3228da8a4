package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/apps/kyc"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/apps/support"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/notify"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/scheduler"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/storage"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Market registry
	registry, err := tenant.LoadFromFile(cfg.MarketsConfigPath, cfg.DefaultCurrency)
	if err != nil {
		slog.Error("failed to load market registry", "path", cfg.MarketsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("market registry loaded", "markets", len(registry.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.MigrateCore(); err != nil {
		slog.Error("core migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(logging.StdoutHandler(), pgLogHandler)))
	logger := slog.Default()

	// Stores
	packageStore := store.NewPackageStore(database.DB)
	promoStore := store.NewPromoStore(database.DB)
	subscriptionStore := store.NewSubscriptionStore(database.DB)
	submissionStore := store.NewSubmissionStore(database.DB)
	paymentStore := store.NewPaymentStore(database.DB)

	// Event broker
	broker, eventsMode := newBroker(cfg, logger)

	// Services
	authService := services.NewAuthService(database.DB, cfg)
	catalogService := services.NewCatalogService(packageStore)
	promoService := services.NewPromoService(promoStore)
	subscriptionService := services.NewSubscriptionService(subscriptionStore)
	moderationService := services.NewModerationService(database.DB, submissionStore)
	rules := services.ListingRules{
		FreeWindowDays: cfg.FreeAdWindowDays,
		AdLifetimeDays: cfg.AdLifetimeDays,
	}
	entitlementService := services.NewEntitlementService(submissionStore, subscriptionService, rules)
	publishService := services.NewPublishService(submissionStore, subscriptionStore, promoService, moderationService, broker, rules)

	var gateway services.PaymentVerifier
	if cfg.PaystackEnabled() {
		gateway = payment.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackTimeout)
	} else {
		slog.Warn("PAYSTACK_SECRET_KEY not set, paid checkout disabled")
	}

	var sender notify.Sender
	if cfg.SMTPEnabled() {
		sender = notify.NewSMTPSender(cfg)
	} else {
		sender = notify.NewLogSender(logger)
	}
	notifier := notify.NewSupportNotifier(sender, cfg.SupportEmail, registry.SupportEmail)

	// Review queue mail. The polling broker only replays support messages.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	if eventsMode != "poll" {
		if err := notifier.WatchReviewQueue(watchCtx, broker, logger); err != nil {
			slog.Error("review queue notifications disabled", "error", err)
		}
	}

	checkoutService := services.NewCheckoutService(services.CheckoutDeps{
		Packages:     packageStore,
		Submissions:  submissionStore,
		Payments:     paymentStore,
		Entitlements: entitlementService,
		Promos:       promoService,
		Plans:        subscriptionService,
		Publisher:    publishService,
		Gateway:      gateway,
		Notifier:     notifier,
		Reporter:     services.SentryReporter{},
		Markets:      registry,
		Popup: services.GatewayConfig{
			PublicKey: cfg.PaystackPublicKey,
			ScriptURL: cfg.PaystackScriptURL,
		},
	})

	// Default packages per market
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := catalogService.SeedDefaults(seedCtx, registry.IDs()); err != nil {
		slog.Error("package seeding failed", "error", err)
	}
	cancelSeed()

	// KYC document storage
	var documents kyc.DocumentStore
	if cfg.MinioEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		minioStore, err := storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		cancel()
		if err != nil {
			slog.Error("object storage unavailable, KYC uploads disabled", "error", err)
		} else {
			documents = minioStore
		}
	}

	plugins := []apps.Plugin{
		support.New(broker, moderationService, registry),
		kyc.New(documents, authService),
	}

	// Migrate plugin models
	for _, p := range plugins {
		if models := p.Models(); len(models) > 0 {
			if err := database.MigrateModels(models); err != nil {
				slog.Error("plugin migration failed", "plugin", p.ID(), "error", err)
				os.Exit(1)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(models))
		}
	}

	// Scheduled jobs
	jobs := scheduler.NewJobs(subscriptionStore, submissionStore, logging.NewRetention(database.DB, cfg.LogRetentionDays), logger)
	sched := scheduler.New(jobs, logger)
	if err := sched.Start(scheduler.Schedules{
		SubscriptionExpiry: cfg.SubscriptionExpirySchedule,
		SubmissionExpiry:   cfg.SubmissionExpirySchedule,
		LogCleanup:         cfg.LogCleanupSchedule,
	}); err != nil {
		slog.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	// Handlers
	h := routes.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Health:     handlers.NewHealthHandler(registry, eventsMode),
		Webhook:    handlers.NewWebhookHandler(checkoutService, registry, cfg.PaystackSecretKey),
		Moderation: handlers.NewModerationHandler(moderationService),
		Catalog:    handlers.NewCatalogHandler(catalogService),
		Promo:      handlers.NewPromoHandler(promoService, catalogService),
		Checkout:   handlers.NewCheckoutHandler(checkoutService, entitlementService, subscriptionService, authService, registry),
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    8 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})
	app.Use(middleware.MarketMiddleware(registry))

	// Routes
	routes.Setup(app, cfg, database.DB, h, plugins)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "events", eventsMode)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	<-sched.Stop().Done()
	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	stopWatch()
	if err := broker.Close(); err != nil {
		slog.Error("event broker close error", "error", err)
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

// newBroker picks the chat event transport. "poll" reads new support
// messages from the database; otherwise AMQP is used when configured, with
// an in-process broker as fallback.
func newBroker(cfg *config.Config, logger *slog.Logger) (events.Broker, string) {
	if cfg.ChatTransport == "poll" {
		source := support.NewMessageSource(support.NewRepository(database.DB))
		return events.NewPollingBroker(source, cfg.ChatPollInterval, logger), "poll"
	}
	if cfg.AMQPURL != "" {
		broker, err := events.NewAMQPBroker(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err == nil {
			return broker, "amqp"
		}
		slog.Warn("amqp unavailable, using in-process events", "error", err)
	}
	return events.NewMemoryBroker(logger), "memory"
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
