// Package api exposes the process's HTTP surface: a liveness probe for the
// container platform and the Prometheus metrics endpoint.
package api
