// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/notisync/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	eng, _ := notisync.NewEngine(cfg, api, creds, notisync.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// TransportMetrics implementation

// RecordConnectionState discards the state transition metric.
func (n *NopMetrics) RecordConnectionState(_ /* from */, _ /* to */ types.ConnState) {}

// IncrementReconnectAttempt discards the reconnect counter.
func (n *NopMetrics) IncrementReconnectAttempt() {}

// RecordFrame discards the frame counter.
func (n *NopMetrics) RecordFrame(_ /* kind */ string) {}

// RecordSend discards the send outcome.
func (n *NopMetrics) RecordSend(_ /* success */ bool) {}

// SubscriptionMetrics implementation

// RecordSubscribe discards the subscribe outcome.
func (n *NopMetrics) RecordSubscribe(_ /* result */ string) {}

// SetTrackedSubscriptions discards the tracked subscription gauge.
func (n *NopMetrics) SetTrackedSubscriptions(_ /* count */ int) {}

// SyncMetrics implementation

// RecordPoll discards the poll outcome.
func (n *NopMetrics) RecordPoll(_ /* success */ bool, _ /* seconds */ float64) {}

// SetMergedSize discards the merged size gauge.
func (n *NopMetrics) SetMergedSize(_ /* count */ int) {}

// SetUnreadCount discards the unread gauge.
func (n *NopMetrics) SetUnreadCount(_ /* count */ int) {}

// IncrementAlert discards the alert counter.
func (n *NopMetrics) IncrementAlert() {}
