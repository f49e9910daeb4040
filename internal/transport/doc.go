// Package transport implements the shared telemetry channel.
//
// The Channel:
//   - Holds one WebSocket connection to the telemetry server for all consumers
//   - Exchanges named events in {"event", "data"} envelopes
//   - Reconnects with jittered exponential backoff
//   - Reports Connected / Reconnecting / Disconnected to status handlers
//   - Fires the local "connected" event after every (re)connect
package transport
