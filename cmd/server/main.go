package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/skatt/internal"
	"github.com/dukerupert/skatt/internal/billing"
	"github.com/dukerupert/skatt/internal/handler/api"
	"github.com/dukerupert/skatt/internal/jobs"
	"github.com/dukerupert/skatt/internal/middleware"
	"github.com/dukerupert/skatt/internal/oss"
	"github.com/dukerupert/skatt/internal/postgres"
	"github.com/dukerupert/skatt/internal/router"
	"github.com/dukerupert/skatt/internal/service"
	"github.com/dukerupert/skatt/internal/tax"
	"github.com/dukerupert/skatt/internal/telemetry"
	"github.com/dukerupert/skatt/internal/vat"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize stores
	zoneStore := postgres.NewZoneStore(pool)
	rateStore := postgres.NewRateStore(pool)
	categoryStore := postgres.NewCategoryStore(pool)
	vatCache := postgres.NewVatCache(pool)
	transactionStore := postgres.NewTransactionStore(pool)

	// Initialize telemetry
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize VAT validator
	logger.Info("Initializing VAT validator...")
	viesClient := vat.NewViesClient(vat.ViesConfig{
		URL:     cfg.Vat.ViesURL,
		Timeout: time.Duration(cfg.Vat.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	validator := vat.NewValidator(vat.ValidatorConfig{
		Verifier:  viesClient,
		Cache:     vatCache,
		CacheDays: cfg.Vat.CacheDays,
		Metrics:   metrics,
		Logger:    logger,
	})
	logger.Info("VAT validator initialized", "cache_ttl", validator.CacheTTL())

	// Initialize tax calculator per configured provider
	logger.Info("Initializing tax calculator...", "provider", cfg.Tax.Provider)
	var calculator tax.Calculator
	switch cfg.Tax.Provider {
	case "stripe":
		stripe.Key = cfg.Stripe.SecretKey
		calculator = billing.NewStripeTaxCalculator()
	case "none":
		calculator = tax.NewNoTaxCalculator()
	default:
		registry := tax.NewRegistry(zoneStore, logger)
		table := tax.NewTable(rateStore, cfg.Tax.CompoundStacking)
		classifier := tax.NewClassifier(categoryStore, logger)
		calculator = tax.NewEngine(registry, table, classifier, validator, tax.Config{
			HomeCountry:      cfg.Tax.HomeCountry,
			DefaultZoneCode:  cfg.Tax.DefaultZone,
			FailOpen:         cfg.Tax.FailOpen,
			OriginBased:      cfg.Tax.OriginBased,
			CompoundStacking: cfg.Tax.CompoundStacking,
			InclusivePricing: cfg.Tax.InclusivePricing,
		}, logger).WithMetrics(metrics)
	}
	logger.Info("Tax calculator initialized")

	// Initialize OSS report generator
	generator := oss.NewGenerator(oss.GeneratorConfig{
		Store:                transactionStore,
		IncludeReverseCharge: cfg.Oss.IncludeReverseCharge,
		Logger:               logger,
	})

	// Start VAT cache maintenance
	cleanup := jobs.NewCleanup(vatCache, jobs.CleanupConfig{
		MaxAge: validator.CacheTTL(),
		Logger: logger,
	})
	go cleanup.Run(ctx)

	// Initialize tax service
	taxService := service.NewTaxService(service.TaxServiceConfig{
		Calculator: calculator,
		Validator:  validator,
		Generator:  generator,
		Recorder:   transactionStore,
		Metrics:    metrics,
		Logger:     logger,
		OssEnabled: cfg.Oss.Enabled,
	})

	// Initialize handlers
	taxHandler := api.NewTaxHandler(taxService, logger)
	vatHandler := api.NewVatHandler(taxService, logger)
	ossHandler := api.NewOssHandler(taxService, cfg.Oss.HomeCountry, logger)

	// Initialize middleware
	httpMetrics := middleware.NewMetrics("skatt")
	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	// VIES is itself rate-limited; keep callers from burning its quota.
	vatRateLimiter := middleware.NewRateLimiter(middleware.StrictRateLimiterConfig())

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.SmallMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		middleware.WithRequestLogger(logger),
		defaultRateLimiter.Middleware,
		router.Logger(logger),
	)

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		httpMetrics.Handler().ServeHTTP(w, req)
	})
	r.Get("/health", api.Health(pool))

	r.Post("/api/tax/calculate", taxHandler.Calculate)
	r.Post("/api/tax/shipping", taxHandler.Shipping)
	r.Post("/api/vat/validate", vatHandler.Validate, vatRateLimiter.Middleware)
	r.Get("/api/oss/report", ossHandler.Report)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting tax engine server", "address", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
