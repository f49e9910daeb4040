// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Transport state, reconnects and outbound subscription traffic
//   - Snapshot intake and malformed payloads per event
//   - Scheduler flushes and skipped flushes
//   - Reconciler patches, lookups and render misses
//
// All methods are safe on a nil *Metrics so components can run without a registry.
package metrics
