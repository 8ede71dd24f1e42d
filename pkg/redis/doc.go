// Package redis connects to Redis with github.com/redis/go-redis/v9.
//
// Connect retries the initial ping with exponential backoff so a process can
// start alongside its Redis container. Healthcheck returns a readiness probe.
// The connection URL is optional; Config.Enabled lets callers fall back to
// in-memory stores for single-instance deployments.
package redis
