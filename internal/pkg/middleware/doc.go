// Package middleware provides HTTP middleware for the evaluation API.
//
// Available middleware:
//   - RateLimiter: per-client token bucket limiting of scoring requests
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{RequestsPerSecond: 5})
//	defer rl.Close()
//	handler = rl.Middleware(handler)
package middleware
