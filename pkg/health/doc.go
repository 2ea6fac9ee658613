// Package health serves the liveness endpoint and the Prometheus
// metrics for the bridge.
package health
