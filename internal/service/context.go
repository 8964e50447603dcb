package service

import (
	"context"

	"retail-core/internal/models"
)

type actorKey struct{}

// WithActor attaches the authenticated user to ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the user attached by WithActor
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

func requireActor(ctx context.Context) (models.Actor, error) {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.UserID == 0 {
		return models.Actor{}, unauthorizedError("authentication required")
	}
	return actor, nil
}
