package notisync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/notisync/internal/metrics"
)

// Option configures an Engine with optional dependencies.
type Option func(*engineOptions)

// engineOptions holds optional Engine configuration.
type engineOptions struct {
	logger  Logger
	metrics MetricsCollector
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	engine, err := notisync.NewEngine(cfg, api, creds, notisync.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	collector := notisync.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//	engine, err := notisync.NewEngine(cfg, api, creds, notisync.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *engineOptions) {
		o.metrics = metrics
	}
}

// NewPrometheusMetrics returns a MetricsCollector that registers its series
// under the "notisync" namespace on reg the first time a value is recorded.
func NewPrometheusMetrics(reg prometheus.Registerer) MetricsCollector {
	return metrics.NewPrometheus(reg, "notisync")
}
