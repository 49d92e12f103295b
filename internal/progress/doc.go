// Package progress contains ProgressSink implementations that render or
// forward the events a compute.Job publishes: structured log lines,
// Prometheus metrics, webhook notifications and in-memory recording.
package progress
