package subscription

import "github.com/arloliu/notisync/types"

// emitSubscribe delegates a subscribe outcome to the metrics collector if provided.
func emitSubscribe(mc types.SubscriptionMetrics, result string) {
	if mc == nil {
		return
	}
	mc.RecordSubscribe(result)
}

// emitTracked publishes the tracked destination count.
func emitTracked(mc types.SubscriptionMetrics, n int) {
	if mc == nil {
		return
	}
	mc.SetTrackedSubscriptions(n)
}
