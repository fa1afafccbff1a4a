// Package auth carries the authenticated actor through the request path and
// issues the bearer tokens the HTTP layer accepts. The posting engine never
// reads ambient state: the actor is always passed explicitly.
package auth

import "context"

// Actor is the authenticated identity a posting is executed on behalf of.
type Actor struct {
	UserID string
	Admin  bool
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil {
		return Actor{}, false
	}
	return *v, true
}
