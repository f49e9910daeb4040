// Package subscription implements the Subscription Registry.
//
// The Registry:
//   - Tracks which entity IDs and scopes each consumer is interested in
//   - Reference-counts interest across consumers so shared entities are
//     subscribed once and unsubscribed only when nobody needs them
//   - Is the only component that emits join/leave/subscribe/unsubscribe
//   - Replays the full interest set after every (re)connect
package subscription
