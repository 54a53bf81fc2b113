// Package http_routes holds the route table of the service: the greeting
// endpoints, the pull endpoint, the collaborator relay and the debug views.
// Business routes are wrapped in the instrumentation middleware; the pull
// and debug endpoints are not, so scraping never moves the counters it reads.
package http_routes
