package subscription

import "time"

// Default configuration values for Registry.
const (
	// DefaultRetryInterval is the wait between deferred subscribe attempts.
	DefaultRetryInterval = 250 * time.Millisecond

	// DefaultMaxAttempts caps deferred subscribe attempts per destination.
	DefaultMaxAttempts = 20

	// DefaultBackoffMultiplier is used when RetryJitter is enabled.
	DefaultBackoffMultiplier = 2.0

	// maxBackoffFactor bounds jittered waits to this multiple of RetryInterval.
	maxBackoffFactor = 8
)

// Subscribe outcomes reported to metrics.
const (
	resultSuccess      = "success"
	resultDeferred     = "deferred"
	resultGaveUp       = "gave_up"
	resultResubscribed = "resubscribed"
)
