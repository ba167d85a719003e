package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithActorContext sets the acting Identity in the given context
func WithActorContext(r context.Context, actor Identity) context.Context {
	return context.WithValue(r, actorCtxKey, actor)
}

// ActorFromContext finds the acting Identity from the context.
func ActorFromContext(ctx context.Context) (Identity, bool) {
	raw, ok := ctx.Value(actorCtxKey).(Identity)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// IdentityFromClaims projects validated session claims onto the Identity
// shape the command handlers and the authorization gate expect. The email
// is not carried in session claims so it reads empty.
func IdentityFromClaims(claims AuthClaims) Identity {
	if claims == nil {
		return nil
	}
	return claimsIdentity{claims: claims}
}

// Allowed is a convenience check against the default authorization gate
// using the actor stored in the standard context.
func Allowed(ctx context.Context, op Operation, targetUsername string) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	gate := NewAuthorizationGate()
	return gate.Allow(actor, op, targetUsername) == nil
}

// AllowedFromRouter is a convenience check against the default authorization
// gate using the claims attached by the session middleware.
func AllowedFromRouter(ctx router.Context, op Operation, targetUsername string) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}
	gate := NewAuthorizationGate()
	return gate.Allow(IdentityFromClaims(claims), op, targetUsername) == nil
}

type claimsIdentity struct {
	claims AuthClaims
}

func (c claimsIdentity) ID() string       { return c.claims.UserID() }
func (c claimsIdentity) Username() string { return c.claims.Username() }
func (c claimsIdentity) Email() string    { return "" }
func (c claimsIdentity) Role() string     { return c.claims.Role() }
