package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves balances, reservations and stocktakes.
type StockHandler struct {
	*BaseHandler
	levels *stocklevel.Service
	engine *posting.Engine
}

// NewStockHandler creates a new stock level handler.
func NewStockHandler(base *BaseHandler, levels *stocklevel.Service, engine *posting.Engine) *StockHandler {
	return &StockHandler{BaseHandler: base, levels: levels, engine: engine}
}

// List handles GET /stock-levels
//
// With itemCode and warehouseCode it returns that single key (binCode optional),
// with only itemCode every balance of the item, and with lowStockAt the balances
// at or below that available quantity.
func (h *StockHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	item := c.Query("itemCode")
	wh := c.Query("warehouseCode")

	if raw := c.Query("lowStockAt"); raw != "" {
		threshold, err := types.ParseQuantity(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid lowStockAt").WithDetail("lowStockAt", raw))
			return
		}
		list, err := h.levels.ListLowStock(ctx, wh, threshold)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.ItemsResponse[stocklevel.View]{Items: list})
		return
	}

	switch {
	case item != "" && wh != "":
		v, err := h.levels.GetStockLevel(ctx, stocklevel.NewKey(item, wh, c.Query("binCode")))
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, v)
	case item != "":
		list, err := h.levels.ListByItem(ctx, item)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.ItemsResponse[stocklevel.View]{Items: list})
	default:
		h.Error(c, apperror.NewValidation("itemCode is required"))
	}
}

// Available handles GET /stock-levels/available
func (h *StockHandler) Available(c *gin.Context) {
	var q dto.KeyRequest
	if !h.BindQuery(c, &q) {
		return
	}
	qty, err := h.levels.GetAvailableQuantity(c.Request.Context(), q.ItemCode, q.WarehouseCode)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AvailableResponse{
		ItemCode:          q.ItemCode,
		WarehouseCode:     q.WarehouseCode,
		AvailableQuantity: qty.String(),
	})
}

// Reserve handles POST /stock-levels/reserve
func (h *StockHandler) Reserve(c *gin.Context) {
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	v, err := h.engine.Reserve(c.Request.Context(), req.Key(), req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Release handles POST /stock-levels/release
func (h *StockHandler) Release(c *gin.Context) {
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	v, err := h.engine.Release(c.Request.Context(), req.Key(), req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Stocktake handles POST /stocktakes
func (h *StockHandler) Stocktake(c *gin.Context) {
	var req dto.StocktakeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.engine.Stocktake(c.Request.Context(), req.ToDomain(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Reconcile handles GET /reconcile
func (h *StockHandler) Reconcile(c *gin.Context) {
	report, err := h.engine.Reconcile(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
