package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payments/internal/app"
	"payments/internal/config"
	"payments/internal/handler"
	internalRedis "payments/internal/redis"
	"payments/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	storage, err := app.NewStorage(ctx, cfg, nrApp, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() { _ = storage.Close() }()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Wire dependencies.
	server := wireServer(storage, redisClient, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Saga.CompensationTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	storage *app.Storage,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *zap.Logger,
) *http.Server {
	// Redis stores are optional; PaymentService falls back to process-local locking.
	var lockStore internalRedis.LockStoreInterface
	var cacheStore internalRedis.CacheStoreInterface
	if redisClient != nil {
		lockStore = internalRedis.NewLockStore(redisClient)
		cacheStore = internalRedis.NewCacheStore(redisClient)
	}

	// Providers.
	providers := service.NewProviderRegistry(service.BreakerConfig{
		Enabled:             cfg.Breaker.Enabled,
		ConsecutiveFailures: uint32(cfg.Breaker.ConsecutiveFailures),
		Timeout:             cfg.Breaker.Timeout,
	}, logger)
	providers.Register(service.MockProviderID, service.NewMockProvider())

	// Initialize services.
	saga := service.NewSagaCoordinator(storage.Instruments, storage.Events, providers, service.SagaConfig{
		ProviderTimeout:         cfg.Saga.ProviderTimeout,
		CompensationTimeout:     cfg.Saga.CompensationTimeout,
		CompensationConcurrency: cfg.Saga.CompensationConcurrency,
		VoidAttempts:            cfg.Saga.VoidAttempts,
		VoidBackoff:             cfg.Saga.VoidBackoff,
	}, logger)
	notificationService := service.NewNotificationService(nil, logger)
	paymentService := service.NewPaymentService(
		storage.Events, storage.Instruments, saga, providers,
		lockStore, cacheStore, notificationService, logger,
	)
	instrumentService := service.NewInstrumentService(storage.Instruments, providers)

	// Initialize handlers.
	paymentHandler := handler.NewPaymentHandler(paymentService)
	instrumentHandler := handler.NewInstrumentHandler(instrumentService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		PaymentHandler:    paymentHandler,
		InstrumentHandler: instrumentHandler,
		RedisClient:       redisClient,
		NewRelicApp:       nrApp,
		Logger:            logger,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
