// Package transport maintains the broker connection used for live notifications.
//
// Client wraps a single NATS connection with a bounded reconnect policy:
//
//	DISCONNECTED → CONNECTING → CONNECTED → (ERROR | DISCONNECTED)
//
// ERROR moves back to CONNECTING after a fixed delay, up to MaxReconnectAttempts
// consecutive failures. After that the client reports Lost and stays in ERROR
// until Reconnect is called. A successful connect resets the attempt counter.
//
// The client dials with the NATS library's own reconnect disabled, so every
// reconnect is a fresh connection and subscriptions do not survive it. Owners
// re-establish them from an OnConnected callback (see the subscription package).
//
// Inbound messages are delivered as Frames. Each payload is parsed as JSON; if
// parsing fails the raw bytes are delivered with Structured set to false.
package transport
