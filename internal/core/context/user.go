// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// ActorContext identifies who is acting on the ledger.
// Authentication lives outside this service; the HTTP layer only forwards the header.
type ActorContext struct {
	ActorID string
	Tenant  string
}

type actorContextKey struct{}

// WithActor adds ActorContext to context.
func WithActor(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns ActorContext from context.
func GetActor(ctx context.Context) *ActorContext {
	if v, ok := ctx.Value(actorContextKey{}).(*ActorContext); ok {
		return v
	}
	return nil
}

// GetActorID returns actor ID from context or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.ActorID
	}
	return ""
}

// GetTenant returns tenant reference from context or empty string.
func GetTenant(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.Tenant
	}
	return ""
}
