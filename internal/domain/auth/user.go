package auth

import "context"

type userKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user ID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the authenticated user ID stored in ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

type apiKeyKey struct{}

// WithAPIKey returns a copy of ctx carrying the validated API key.
func WithAPIKey(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, apiKeyKey{}, info)
}

// APIKeyFrom returns the validated API key stored in ctx.
func APIKeyFrom(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}
