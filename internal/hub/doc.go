// Package hub connects the shared transport channel to view consumers.
//
// The Hub:
//   - Owns the subscription registry and the inbound event router
//   - Routes each decoded snapshot to the consumers interested in it
//   - Applies snapshots to each consumer's status store immediately
//   - Hands them to the consumer's scheduler for throttled rendering
//   - Forwards transport status to the registry and every scheduler
//
// View modules only talk to a Consumer; they never touch the transport.
package hub
