package common

import "context"

type userIDKey struct{}

// WithUserID attaches the authenticated user id to the request context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID reports the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	if id == "" {
		return "", false
	}
	return id, ok
}
