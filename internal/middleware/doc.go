// Package middleware provides HTTP middleware for the media library server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics
//   - Configurable filtering for health checks
package middleware
