// Package metrics defines the Prometheus instrumentation of the call bridge.
package metrics
