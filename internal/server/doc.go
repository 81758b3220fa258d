// Package server provides the ops HTTP server used by watch mode.
//
// Routes:
//
//   - GET /: Embedded dashboard listing the latest digest of every resource
//   - GET /api/digests: JSON snapshot of all digest records
//   - GET /api/sse: Server-Sent Events stream of record updates
//   - GET /metrics: Prometheus metrics, when a handler is configured
//   - GET /-/healthy: Liveness probe
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
