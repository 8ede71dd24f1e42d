package clientip

import (
	"context"
	"net/http"
)

type clientIPContextKey struct{}

// SetIPToContext stores client IP in context.
func SetIPToContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// GetIPFromContext retrieves client IP from context.
func GetIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// Middleware resolves the client IP once per request and stores it in the
// request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := SetIPToContext(req.Context(), r.IP(req))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
