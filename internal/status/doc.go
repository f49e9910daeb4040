// Package status implements the per-view status store.
//
// The Store:
//   - Holds the last telemetry snapshot seen for every entity
//   - Applies snapshots synchronously, independent of rendering state
//   - Survives filter, page and view changes
//   - Is the only source counters may be derived from
package status
