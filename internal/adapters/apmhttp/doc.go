// Package apmhttp provides adapters for instrumenting HTTP clients with APM
// capabilities. Its transport wrapper records request counts, failures and
// latency into the metric registry and emits client spans.
//
// The package is designed to work with the standard library's net/http
// package and follows Go's idiomatic patterns for round trippers.
package apmhttp
