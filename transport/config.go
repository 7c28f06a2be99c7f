package transport

import (
	"fmt"
	"time"

	"github.com/arloliu/notisync/internal/logging"
	"github.com/arloliu/notisync/internal/metrics"
	"github.com/arloliu/notisync/types"
)

// Default configuration values for Client.
const (
	DefaultConnectTimeout       = 5 * time.Second
	DefaultReconnectDelay       = 2 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultAppNamespace         = "app"
	DefaultName                 = "notisync"

	// CorrelationHeader is set on every outbound message that lacks one.
	CorrelationHeader = "Notisync-Correlation-Id"

	// QueueHeader selects a queue-group subscription when passed to Subscribe.
	QueueHeader = "queue"
)

// Config configures the transport client.
type Config struct {
	// URL is the broker URL, e.g. "nats://127.0.0.1:4222". Required.
	URL string

	ConnectTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// AppNamespace is prefixed to outbound destinations that lack it.
	AppNamespace string

	// Name is the connection name prefix shown in broker monitoring.
	Name string

	Logger  types.Logger
	Metrics types.TransportMetrics
}

// applyDefaults fills unset optional fields.
func (cfg *Config) applyDefaults() {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.AppNamespace == "" {
		cfg.AppNamespace = DefaultAppNamespace
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
}

func (cfg *Config) validate() error {
	if cfg.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}

	return nil
}
