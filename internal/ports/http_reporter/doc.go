// Package http_reporter provides HTTP handlers exposing the metric registry.
// NewHandler serves the pull format scraped by monitoring systems;
// NewDebugHandler serves a JSON snapshot for humans.
//
// The package implements the standard http.Handler interface and can be
// mounted on any HTTP router or used with the standard library's http package.
package http_reporter
