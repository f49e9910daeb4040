// Package scheduler implements the Update Scheduler.
//
// The Scheduler:
//   - Coalesces incoming snapshots into a pending batch (last write wins per entity)
//   - Flushes at most once per minimum interval, aligned to frame callbacks
//   - Skips flushes while its view is not visible, keeping the batch for later
//   - Carries the transport status on every batch so views can show staleness
package scheduler
