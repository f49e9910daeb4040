// Package router decodes inbound telemetry events into snapshots.
//
// entity_telemetry carries a map of entity id to status and speeds, with an
// aggregate entry that is stripped. interface_telemetry carries per-interface
// tx/rx counters for one router scope. Malformed entries are skipped and
// counted; the rest of the payload is still delivered.
package router
