package middleware

import (
	"context"

	"github.com/example/ewaste-exchange/internal/auth"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Actor is the authenticated caller of a request.
type Actor struct {
	ID    string
	Email string
	Role  string
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok && actor.ID != ""
}

// ActorID returns the caller's account ID, or "" for anonymous requests.
func ActorID(ctx context.Context) string {
	actor, _ := ActorFrom(ctx)
	return actor.ID
}

func actorFromClaims(c *auth.Claims) Actor {
	return Actor{ID: c.AccountID, Email: c.Email, Role: c.Role}
}
