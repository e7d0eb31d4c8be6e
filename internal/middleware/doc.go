// Package middleware provides the HTTP middleware chain for the playlist
// resolver API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics keyed by route template
//   - Gzip compression for JSON responses
package middleware
