package subscription

import (
	"time"

	"github.com/arloliu/notisync/internal/logging"
	"github.com/arloliu/notisync/internal/metrics"
	"github.com/arloliu/notisync/types"
)

// Config configures the registry.
//
// Optional fields are documented inline below. Zero values are replaced by
// defaults via applyDefaults().
type Config struct {
	// RetryInterval is the wait between deferred subscribe attempts.
	RetryInterval time.Duration

	// MaxAttempts caps deferred attempts per destination before giving up.
	MaxAttempts int

	// RetryJitter spreads deferred attempts with decorrelated jitter instead of
	// a fixed interval.
	RetryJitter bool

	// RetrySeed makes jitter deterministic when non-zero.
	RetrySeed int64

	Logger  types.Logger
	Metrics types.SubscriptionMetrics
}

// applyDefaults fills unset optional fields with project defaults.
func (cfg *Config) applyDefaults() {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
}
