// Package subscription keeps at most one live broker subscription per destination.
//
// The package includes:
//
//   - Registry: idempotent subscribe/release, deferred subscribe while the
//     transport is not connected, and automatic re-subscription in registration
//     order after every reconnect
//
// A destination passed to EnsureSubscribed is never silently dropped. If the
// transport is not ready, the registry waits on the transport's readiness
// channel with a short retry timer, bounded by MaxAttempts. Close cancels every
// pending wait so no subscription is created after teardown.
package subscription
