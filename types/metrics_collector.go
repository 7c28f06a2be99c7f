package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, component-focused interfaces so that each
// package only depends on the slice it records.
type MetricsCollector interface {
	TransportMetrics
	SubscriptionMetrics
	SyncMetrics
}

// TransportMetrics defines metrics for the broker transport client.
type TransportMetrics interface {
	// RecordConnectionState records a connection state transition.
	RecordConnectionState(from, to ConnState)

	// IncrementReconnectAttempt counts a scheduled automatic reconnect attempt.
	IncrementReconnectAttempt()

	// RecordFrame counts an inbound frame by kind ("structured" or "raw").
	RecordFrame(kind string)

	// RecordSend records the outcome of an outbound send.
	RecordSend(success bool)
}

// SubscriptionMetrics defines metrics for the subscription registry.
type SubscriptionMetrics interface {
	// RecordSubscribe records a subscribe outcome ("success", "deferred", "gave_up", "resubscribed").
	RecordSubscribe(result string)

	// SetTrackedSubscriptions sets the number of destinations tracked by the registry.
	SetTrackedSubscriptions(count int)
}

// SyncMetrics defines metrics for the merge engine and unread detector.
type SyncMetrics interface {
	// RecordPoll records a snapshot poll outcome and its latency in seconds.
	RecordPoll(success bool, seconds float64)

	// SetMergedSize sets the number of entries in the merged view.
	SetMergedSize(count int)

	// SetUnreadCount sets the number of unread entries in the merged view.
	SetUnreadCount(count int)

	// IncrementAlert counts a fired new-arrival alert.
	IncrementAlert()
}
