// Package clientip resolves the client address of an HTTP request.
//
// Forwarding headers (CF-Connecting-IP, X-Forwarded-For, X-Real-IP) are
// only believed when the direct peer belongs to a configured trusted proxy
// network. X-Forwarded-For is read right to left, skipping trusted hops.
// The resolved address feeds per-IP rate limiting, so it must not be
// spoofable by the client.
//
//	ips := clientip.New(clientip.WithTrustedProxies("10.0.0.0/8"))
//	router.Use(ips.Middleware)
//
//	ip := clientip.GetIPFromContext(r.Context())
package clientip
