// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	Engine  *posting.Engine
	Ledger  *ledger.Service
	Levels  *stocklevel.Service
	Batches *batch.Service

	// ExpiryWarningDays is the default window of GET /batches/expiring.
	ExpiryWarningDays int

	// HealthChecks are probed by /health/ready, keyed by dependency name.
	HealthChecks map[string]handlers.CheckFunc

	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.Trace())
	router.Use(middleware.Actor())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	base := handlers.NewBaseHandler()
	registerMovementRoutes(v1, base, cfg)
	registerStockRoutes(v1, base, cfg)
	registerLedgerRoutes(v1, base, cfg)
	registerBatchRoutes(v1, base, cfg)

	return router
}
