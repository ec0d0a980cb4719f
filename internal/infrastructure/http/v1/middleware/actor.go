package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

const (
	HeaderActorID = "X-Actor-ID"
	HeaderTenant  = "X-Tenant"
)

// Actor copies the caller identity forwarded by the gateway into the request
// context. Authentication happens upstream; requests without the header run anonymously.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		tenant := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if actorID != "" || tenant != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.ActorContext{ActorID: actorID, Tenant: tenant})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
