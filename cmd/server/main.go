/**
 * @description
 * This is the main entry point for the billing webhook service.
 * It initializes and wires together all the components of the application:
 * configuration, the product catalog, the ledger and payment processor
 * clients, the retry log store, the billing service, the usage billing
 * scheduler, and the HTTP router. Finally, it starts the HTTP server.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/juliebasler-source/basler-webhooks/internal/api"
	"github.com/juliebasler-source/basler-webhooks/internal/app"
	"github.com/juliebasler-source/basler-webhooks/internal/billing"
	"github.com/juliebasler-source/basler-webhooks/internal/catalog"
	"github.com/juliebasler-source/basler-webhooks/internal/config"
	"github.com/juliebasler-source/basler-webhooks/internal/normalize"
	"github.com/juliebasler-source/basler-webhooks/internal/paymatch"
	"github.com/juliebasler-source/basler-webhooks/internal/store"
	"github.com/juliebasler-source/basler-webhooks/internal/usagebilling"
	"github.com/juliebasler-source/basler-webhooks/pkg/ledgerclient"
	"github.com/juliebasler-source/basler-webhooks/pkg/rabbitmq"
	"github.com/juliebasler-source/basler-webhooks/pkg/stripeclient"
	"github.com/juliebasler-source/basler-webhooks/pkg/usageclient"
)

func main() {
	// Load .env file if present; real deployments set env vars directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Load the product catalog and billing rules
	catalogCfg, rules, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("failed to load catalog", "file", cfg.CatalogFile, "error", err)
		os.Exit(1)
	}
	cat := catalog.New(catalogCfg)
	for _, problem := range cat.Validate() {
		logger.Warn("catalog configuration issue", "problem", problem)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The retry log is optional: without a database the service still bills,
	// it just cannot persist failed deliveries for replay.
	var failureLog api.FailureLog
	if cfg.DatabaseURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		logger.Info("database connection established")
		failureLog = store.NewRetryLog(dbpool)
	} else {
		logger.Warn("DATABASE_URL not set, failed-webhook retry log disabled")
	}

	// Event publisher with a no-op fallback when RabbitMQ is unreachable.
	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, billing events disabled", "error", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		publisher = producer
	}

	// Collaborator clients
	ledger := ledgerclient.NewClient(cfg.LedgerBaseURL, cfg.LedgerAPIKey)

	var txSource paymatch.TransactionSource
	if cfg.StripeSecretKey != "" {
		txSource = stripeclient.New(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payment matching disabled")
	}
	lookback := time.Duration(cfg.PaymentLookbackHours) * time.Hour
	matcher := paymatch.NewMatcher(txSource, lookback, logger)

	// Initialize application layers
	engine := billing.NewEngine(cat, cfg.NetTermsDays)
	normalizer := normalize.NewOrderNormalizer(rules.PaylaterCouponCodes)
	service := app.NewService(ledger, matcher, engine, normalizer, publisher, logger)

	activity := usageclient.NewClient(cfg.UsageBaseURL, cfg.UsageAPIKey)
	aggregator := usagebilling.NewAggregator(activity, rules.UsageExcludeKeywords, rules.UsageAdminAddresses, logger)
	usageBiller := app.NewUsageBiller(aggregator, ledger, catalogCfg, cfg.UsageAccountID, publisher, logger)

	scheduler := app.NewScheduler(usageBiller, logger, cfg.UsageBillingSchedule, cfg.Timezone)
	scheduler.Start()

	handler := api.NewHandler(service, usageBiller, failureLog, cfg.OrderWebhookSecret, cfg.BookingWebhookSecret, logger)
	router := api.NewRouter(handler, cfg.InternalAPIKey)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Stop the cron scheduler and let a running billing job finish.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
