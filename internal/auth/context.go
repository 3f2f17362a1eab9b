package auth

import "context"

type ctxKey string

const adminContextKey ctxKey = "bossspawner.auth.admin"

// Admin describes the caller of an authorized request.
type Admin struct {
	Addr string
}

func withAdmin(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, adminContextKey, Admin{Addr: addr})
}

func AdminFromContext(ctx context.Context) (Admin, bool) {
	v := ctx.Value(adminContextKey)
	a, ok := v.(Admin)
	return a, ok
}
