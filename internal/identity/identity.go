// Package identity carries the acting user resolved by the HTTP layer
// through a request context.  The request pipeline resolves the user once
// and every lower layer reads it from here instead of from global state.
package identity

import "context"

type ctxKey struct{}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID uint64
	Role   string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok || p.UserID == 0 {
		return Principal{}, false
	}
	return p, true
}

// UserID returns the acting user id or 0 for anonymous requests.
func UserID(ctx context.Context) uint64 {
	p, _ := FromContext(ctx)
	return p.UserID
}
