package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor id in context.
// Authentication itself happens upstream; the core only stamps the id
// onto completed_by / posted_by fields.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor id from context, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
