package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/handlers"
)

func registerMovementRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewMovementHandler(base, cfg.Engine)
	rg.POST("/movements", h.Post)
}

func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Levels, cfg.Engine)

	levels := rg.Group("/stock-levels")
	{
		levels.GET("", h.List)
		levels.GET("/available", h.Available)
		levels.POST("/reserve", h.Reserve)
		levels.POST("/release", h.Release)
	}
	rg.POST("/stocktakes", h.Stocktake)
	rg.GET("/reconcile", h.Reconcile)
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewLedgerHandler(base, cfg.Ledger, cfg.Engine)

	entries := rg.Group("/ledger")
	{
		entries.GET("", h.List)
		entries.GET("/export", h.Export)
		entries.PATCH("/:id", h.UpdateMetadata)
		entries.POST("/:id/cancel", h.Cancel)
	}
}

func registerBatchRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewBatchHandler(base, cfg.Batches, cfg.ExpiryWarningDays)

	batches := rg.Group("/batches")
	{
		batches.GET("/expiring", h.Expiring)
		batches.GET("/:id", h.Get)
		batches.POST("/:id/disable", h.Disable)
		batches.POST("/:id/enable", h.Enable)
	}
}
