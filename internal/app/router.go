package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payments/internal/handler"
	"payments/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler    *handler.PaymentHandler
	InstrumentHandler *handler.InstrumentHandler
	RedisClient       *redis.Client // Optional: enables Idempotency-Key replay
	NewRelicApp       *newrelic.Application
	Logger            *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.TransactionAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient, logger))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		instruments := v1.Group("/instruments")
		{
			instruments.POST("", deps.InstrumentHandler.Register)
			instruments.GET("", deps.InstrumentHandler.GetAll)
			instruments.GET("/:id", deps.InstrumentHandler.GetInstrument)
		}

		reservations := v1.Group("/reservations")
		{
			reservations.POST("", deps.PaymentHandler.Reserve)
			reservations.GET("/:referenceId/events", deps.PaymentHandler.GetLedger)
			reservations.GET("/:referenceId/summary", deps.PaymentHandler.GetSummary)
			reservations.GET("/:referenceId/statement", deps.PaymentHandler.GetStatement)
		}

		events := v1.Group("/events")
		{
			events.GET("/:id", deps.PaymentHandler.GetEvent)
			events.POST("/:id/charge", deps.PaymentHandler.Charge)
			events.POST("/:id/credit", deps.PaymentHandler.Credit)
		}
	}

	return router
}
