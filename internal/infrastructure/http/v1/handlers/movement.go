package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/posting"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// MovementHandler posts stock movements.
type MovementHandler struct {
	*BaseHandler
	engine *posting.Engine
}

func NewMovementHandler(base *BaseHandler, engine *posting.Engine) *MovementHandler {
	return &MovementHandler{BaseHandler: base, engine: engine}
}

// Post handles POST /movements
func (h *MovementHandler) Post(c *gin.Context) {
	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := req.ToMovement(h.ActorID(c), h.Tenant(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	c.Set(middleware.MovementIDKey, m.ID.String())

	res, err := h.engine.PostMovement(c.Request.Context(), m)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
