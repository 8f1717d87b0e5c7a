package authn

import "context"

// User is the verified principal attached to a request context after
// bearer-token verification. Downstream handlers (C2-C4) never see a raw
// token — only this normalized shape.
type User struct {
	ID          string
	DisplayName string
}

type contextKey int

const userContextKey contextKey = 0

// WithUser returns a new context carrying the verified user.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the verified user attached by the auth
// middleware. The second return value is false if no user is present,
// which should never happen for a request that reached a handler behind
// the middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok
}
