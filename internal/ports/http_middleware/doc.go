// Package http_middleware provides HTTP middleware for instrumenting route
// handlers. It wraps handlers to measure end-to-end latency, count
// throughput, refresh host gauges and emit one structured log line per
// request.
//
// The middleware is designed to be used with the standard library's
// net/http package and integrates with the application's metric registry.
package http_middleware
