package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/events"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// BatchHandler serves batch status.
type BatchHandler struct {
	*BaseHandler
	batches     *batch.Service
	warningDays int
}

// NewBatchHandler creates a batch handler. warningDays is the default window of /batches/expiring.
func NewBatchHandler(base *BaseHandler, batches *batch.Service, warningDays int) *BatchHandler {
	return &BatchHandler{BaseHandler: base, batches: batches, warningDays: warningDays}
}

// Get handles GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.PathID(c)
	if !ok {
		return
	}
	v, err := h.batches.GetBatchStatus(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Disable handles POST /batches/:id/disable
func (h *BatchHandler) Disable(c *gin.Context) {
	batchID, ok := h.PathID(c)
	if !ok {
		return
	}
	v, err := h.batches.Disable(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Enable handles POST /batches/:id/enable
func (h *BatchHandler) Enable(c *gin.Context) {
	batchID, ok := h.PathID(c)
	if !ok {
		return
	}
	v, err := h.batches.Enable(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Expiring handles GET /batches/expiring?days=N
func (h *BatchHandler) Expiring(c *gin.Context) {
	days := h.ParseIntQuery(c, "days", h.warningDays)
	if days < 0 {
		h.Error(c, apperror.NewValidation("days must not be negative"))
		return
	}
	list, err := h.batches.ScanExpiringSoon(c.Request.Context(), days)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemsResponse[events.BatchExpiringSoon]{Items: list})
}
