package shared

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated user making the request. Authentication
// itself happens in the outer HTTP layer; the core only consumes the result.
type Actor struct {
	UserID   uuid.UUID
	RoleID   uuid.UUID
	Username string
}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor, reporting whether one is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
