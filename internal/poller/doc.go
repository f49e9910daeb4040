// Package poller refreshes entity statuses over REST or Postgres while the
// telemetry transport is not connected, so views degrade to last-known state
// instead of freezing.
package poller
