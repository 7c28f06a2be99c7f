package metrics

import (
	"sync"

	"github.com/arloliu/notisync/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that constructing
// an unused collector never touches the registry.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	connState       *prometheus.GaugeVec
	connTransitions *prometheus.CounterVec
	reconnects      prometheus.Counter
	frames          *prometheus.CounterVec
	sends           *prometheus.CounterVec
	subscribes      *prometheus.CounterVec
	trackedSubs     prometheus.Gauge
	polls           *prometheus.CounterVec
	pollLatency     prometheus.Histogram
	mergedSize      prometheus.Gauge
	unreadCount     prometheus.Gauge
	alerts          prometheus.Counter
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "notisync" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "notisync"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.connState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "connection_state",
			Help:      "Current connection state (1 for the active state label, 0 otherwise).",
		}, []string{"state"})

		p.connTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "state_transitions_total",
			Help:      "Total connection state transitions by target state.",
		}, []string{"to"})

		p.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Total automatic reconnect attempts scheduled.",
		})

		p.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Total inbound frames by kind (structured, raw).",
		}, []string{"kind"})

		p.sends = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Total outbound sends by result (success, failure).",
		}, []string{"result"})

		p.subscribes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "subscribe_results_total",
			Help:      "Total subscribe outcomes (success, deferred, gave_up, resubscribed).",
		}, []string{"result"})

		p.trackedSubs = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "tracked_destinations",
			Help:      "Current number of destinations tracked by the registry.",
		})

		p.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sync",
			Name:      "polls_total",
			Help:      "Total snapshot polls by result (success, failure).",
		}, []string{"result"})

		p.pollLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "sync",
			Name:      "poll_latency_seconds",
			Help:      "Latency of snapshot polls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 1.8, 10), // 10ms .. ~2s
		})

		p.mergedSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "sync",
			Name:      "merged_entries",
			Help:      "Current number of entries in the merged view.",
		})

		p.unreadCount = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "sync",
			Name:      "unread_entries",
			Help:      "Current number of unread entries in the merged view.",
		})

		p.alerts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sync",
			Name:      "alerts_total",
			Help:      "Total new-arrival alerts fired.",
		})

		p.reg.MustRegister(p.connState)
		p.reg.MustRegister(p.connTransitions)
		p.reg.MustRegister(p.reconnects)
		p.reg.MustRegister(p.frames)
		p.reg.MustRegister(p.sends)
		p.reg.MustRegister(p.subscribes)
		p.reg.MustRegister(p.trackedSubs)
		p.reg.MustRegister(p.polls)
		p.reg.MustRegister(p.pollLatency)
		p.reg.MustRegister(p.mergedSize)
		p.reg.MustRegister(p.unreadCount)
		p.reg.MustRegister(p.alerts)
	})
}

// TransportMetrics implementation

// RecordConnectionState records a transition and flips the state gauge.
func (p *PrometheusCollector) RecordConnectionState(from, to types.ConnState) {
	p.ensureRegistered()
	p.connState.WithLabelValues(from.String()).Set(0)
	p.connState.WithLabelValues(to.String()).Set(1)
	p.connTransitions.WithLabelValues(to.String()).Inc()
}

// IncrementReconnectAttempt counts a scheduled reconnect attempt.
func (p *PrometheusCollector) IncrementReconnectAttempt() {
	p.ensureRegistered()
	p.reconnects.Inc()
}

// RecordFrame counts an inbound frame by kind.
func (p *PrometheusCollector) RecordFrame(kind string) {
	p.ensureRegistered()
	p.frames.WithLabelValues(kind).Inc()
}

// RecordSend counts an outbound send by result.
func (p *PrometheusCollector) RecordSend(success bool) {
	p.ensureRegistered()
	p.sends.WithLabelValues(resultLabel(success)).Inc()
}

// SubscriptionMetrics implementation

// RecordSubscribe counts a subscribe outcome.
func (p *PrometheusCollector) RecordSubscribe(result string) {
	p.ensureRegistered()
	p.subscribes.WithLabelValues(result).Inc()
}

// SetTrackedSubscriptions sets the tracked destination gauge.
func (p *PrometheusCollector) SetTrackedSubscriptions(count int) {
	p.ensureRegistered()
	p.trackedSubs.Set(float64(count))
}

// SyncMetrics implementation

// RecordPoll counts a poll outcome and observes its latency.
func (p *PrometheusCollector) RecordPoll(success bool, seconds float64) {
	p.ensureRegistered()
	p.polls.WithLabelValues(resultLabel(success)).Inc()
	p.pollLatency.Observe(seconds)
}

// SetMergedSize sets the merged view size gauge.
func (p *PrometheusCollector) SetMergedSize(count int) {
	p.ensureRegistered()
	p.mergedSize.Set(float64(count))
}

// SetUnreadCount sets the unread gauge.
func (p *PrometheusCollector) SetUnreadCount(count int) {
	p.ensureRegistered()
	p.unreadCount.Set(float64(count))
}

// IncrementAlert counts a fired alert.
func (p *PrometheusCollector) IncrementAlert() {
	p.ensureRegistered()
	p.alerts.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
