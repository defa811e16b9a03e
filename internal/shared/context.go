package shared

import "context"

type orgContextKey struct{}

type actorContextKey struct{}

// ContextWithOrg stores the tenant organization code in context.
func ContextWithOrg(ctx context.Context, orgCode string) context.Context {
	return context.WithValue(ctx, orgContextKey{}, orgCode)
}

// OrgFromContext extracts the tenant organization code from context.
func OrgFromContext(ctx context.Context) string {
	code, _ := ctx.Value(orgContextKey{}).(string)
	return code
}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id from context.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
