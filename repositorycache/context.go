package repositorycache

import "context"

type bypassContextKey struct{}

// WithoutCache marks ctx so reads through a CachedRepository go straight to the base
// repository and leave cached results untouched.
func WithoutCache(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func bypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(bypassContextKey{}).(bool)
	return skip
}
