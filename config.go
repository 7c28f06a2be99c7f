package notisync

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "NOTISYNC_"

// ============================================================================
// Timing Overview
// ============================================================================
//
// ┌─────────────────────────────────────────────────────────────────────────┐
// │ Connection: how hard we try to stay connected                          │
// ├─────────────────────────────────────────────────────────────────────────┤
// │ • ReconnectDelay: 2s fixed delay between attempts                      │
// │ • MaxReconnectAttempts: 5 consecutive failures, then connectivity lost │
// │   - Only Engine.Reconnect (or Close + Open) starts a fresh budget      │
// └─────────────────────────────────────────────────────────────────────────┘
//
// ┌─────────────────────────────────────────────────────────────────────────┐
// │ Subscriptions: deferred subscribe while disconnected                   │
// ├─────────────────────────────────────────────────────────────────────────┤
// │ • SubscribeRetryInterval: 250ms                                        │
// │ • MaxSubscribeAttempts: 20, the intent is kept and re-applied on the   │
// │   next successful connect                                              │
// └─────────────────────────────────────────────────────────────────────────┘
//
// ┌─────────────────────────────────────────────────────────────────────────┐
// │ Snapshot + alerts                                                      │
// ├─────────────────────────────────────────────────────────────────────────┤
// │ • PollInterval: 30s, first poll runs right after Open                  │
// │ • SettleDelay: 1.5s after the first successful poll, alerts arm        │
// │ • ShakeDuration: 600ms shaking flag per alert                          │
// └─────────────────────────────────────────────────────────────────────────┘
//
// Execution Flow Example:
//
//	T+0s:    Open: connect, subscribe, first poll
//	T+0.2s:  Poll returns 10 unread items (baseline recorded, no alert)
//	T+1.7s:  Settle delay expires, detector armed
//	T+5s:    Push for a new id arrives, push and unread counts grow: alert
//	T+5.6s:  Shaking flag clears
//
// ============================================================================

// DestinationConfig names the broker destinations.
type DestinationConfig struct {
	// PersonalPrefix is joined with the subject ID to form the private topic,
	// e.g. "user.noti" + "42" gives "user.noti.42".
	PersonalPrefix string `yaml:"personalPrefix" env:"PERSONAL_PREFIX"`

	// Broadcast is the shared topic for global updates.
	Broadcast string `yaml:"broadcast" env:"BROADCAST"`

	// AppNamespace is prefixed to outbound sends that lack it.
	AppNamespace string `yaml:"appNamespace" env:"APP_NAMESPACE"`
}

// Config is the configuration for the Engine.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// BrokerURL is the NATS URL of the message broker. Required.
	BrokerURL string `yaml:"brokerUrl" env:"BROKER_URL"`

	// ConnectionName prefixes the NATS connection name shown in broker monitoring.
	ConnectionName string `yaml:"connectionName" env:"CONNECTION_NAME"`

	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"CONNECT_TIMEOUT"`

	// ReconnectDelay is the fixed delay between automatic reconnect attempts.
	ReconnectDelay time.Duration `yaml:"reconnectDelay" env:"RECONNECT_DELAY"`

	// MaxReconnectAttempts is the number of consecutive failed attempts after
	// which the engine reports connectivity lost and stops retrying.
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts" env:"MAX_RECONNECT_ATTEMPTS"`

	// SubscribeRetryInterval is the delay between deferred subscribe attempts.
	SubscribeRetryInterval time.Duration `yaml:"subscribeRetryInterval" env:"SUBSCRIBE_RETRY_INTERVAL"`

	// MaxSubscribeAttempts caps deferred subscribe attempts per destination.
	MaxSubscribeAttempts int `yaml:"maxSubscribeAttempts" env:"MAX_SUBSCRIBE_ATTEMPTS"`

	// SubscribeRetryJitter switches deferred subscribes from a fixed interval to
	// decorrelated jitter capped at 8x the interval.
	SubscribeRetryJitter bool `yaml:"subscribeRetryJitter" env:"SUBSCRIBE_RETRY_JITTER"`

	// PollInterval is the time between snapshot fetches.
	PollInterval time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`

	// PollLimit is the number of recent notifications requested per fetch.
	PollLimit int `yaml:"pollLimit" env:"POLL_LIMIT"`

	// PollTimeout bounds a single snapshot fetch.
	PollTimeout time.Duration `yaml:"pollTimeout" env:"POLL_TIMEOUT"`

	// PushBufferSize is the capacity of the pushed-notification ring buffer.
	PushBufferSize int `yaml:"pushBufferSize" env:"PUSH_BUFFER_SIZE"`

	// SettleDelay is the grace period after the first successful poll during
	// which unread changes never alert.
	SettleDelay time.Duration `yaml:"settleDelay" env:"SETTLE_DELAY"`

	// ShakeDuration is how long the shaking flag stays set after an alert.
	ShakeDuration time.Duration `yaml:"shakeDuration" env:"SHAKE_DURATION"`

	// IdentityBucket is the width of the time bucket folded into the identity
	// key of notifications that carry neither an id nor a timestamp.
	IdentityBucket time.Duration `yaml:"identityBucket" env:"IDENTITY_BUCKET"`

	// DefaultTimezone is the IANA zone applied to timestamps without an offset.
	DefaultTimezone string `yaml:"defaultTimezone" env:"DEFAULT_TIMEZONE"`

	// Destinations names the broker destinations.
	Destinations DestinationConfig `yaml:"destinations" envPrefix:"DEST_"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values (BrokerURL still empty)
func DefaultConfig() Config {
	return Config{
		ConnectionName:         "notisync",
		ConnectTimeout:         5 * time.Second,
		ReconnectDelay:         2 * time.Second,
		MaxReconnectAttempts:   5,
		SubscribeRetryInterval: 250 * time.Millisecond,
		MaxSubscribeAttempts:   20,
		PollInterval:           30 * time.Second,
		PollLimit:              50,
		PollTimeout:            10 * time.Second,
		PushBufferSize:         50,
		SettleDelay:            1500 * time.Millisecond,
		ShakeDuration:          600 * time.Millisecond,
		IdentityBucket:         time.Minute,
		DefaultTimezone:        "UTC",
		Destinations: DestinationConfig{
			PersonalPrefix: "user.noti",
			Broadcast:      "topic.noti",
			AppNamespace:   "app",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// SettleDelay and IdentityBucket of 0 are valid (arm immediately, no time
// component), so they are left alone.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.ConnectionName == "" {
		cfg.ConnectionName = defaults.ConnectionName
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if cfg.SubscribeRetryInterval == 0 {
		cfg.SubscribeRetryInterval = defaults.SubscribeRetryInterval
	}
	if cfg.MaxSubscribeAttempts == 0 {
		cfg.MaxSubscribeAttempts = defaults.MaxSubscribeAttempts
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollLimit == 0 {
		cfg.PollLimit = defaults.PollLimit
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if cfg.PushBufferSize == 0 {
		cfg.PushBufferSize = defaults.PushBufferSize
	}
	if cfg.ShakeDuration == 0 {
		cfg.ShakeDuration = defaults.ShakeDuration
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = defaults.DefaultTimezone
	}
	if cfg.Destinations.PersonalPrefix == "" {
		cfg.Destinations.PersonalPrefix = defaults.Destinations.PersonalPrefix
	}
	if cfg.Destinations.Broadcast == "" {
		cfg.Destinations.Broadcast = defaults.Destinations.Broadcast
	}
	if cfg.Destinations.AppNamespace == "" {
		cfg.Destinations.AppNamespace = defaults.Destinations.AppNamespace
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - BrokerURL is set
//   - MaxReconnectAttempts >= 1, MaxSubscribeAttempts >= 1
//   - PollInterval > 0, PollLimit > 0, PushBufferSize > 0
//   - SettleDelay >= 0, ShakeDuration > 0
//   - DefaultTimezone is a loadable IANA zone
//   - Destinations contain no wildcard or whitespace
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.BrokerURL == "" {
		errs = append(errs, errors.New("BrokerURL is required"))
	}
	if cfg.MaxReconnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("MaxReconnectAttempts must be >= 1, got %d", cfg.MaxReconnectAttempts))
	}
	if cfg.MaxSubscribeAttempts < 1 {
		errs = append(errs, fmt.Errorf("MaxSubscribeAttempts must be >= 1, got %d", cfg.MaxSubscribeAttempts))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("PollInterval must be > 0, got %v", cfg.PollInterval))
	}
	if cfg.PollLimit <= 0 {
		errs = append(errs, fmt.Errorf("PollLimit must be > 0, got %d", cfg.PollLimit))
	}
	if cfg.PushBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("PushBufferSize must be > 0, got %d", cfg.PushBufferSize))
	}
	if cfg.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("SettleDelay must be >= 0, got %v", cfg.SettleDelay))
	}
	if cfg.ShakeDuration <= 0 {
		errs = append(errs, fmt.Errorf("ShakeDuration must be > 0, got %v", cfg.ShakeDuration))
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DefaultTimezone %q: %w", cfg.DefaultTimezone, err))
	}

	for name, dest := range map[string]string{
		"PersonalPrefix": cfg.Destinations.PersonalPrefix,
		"Broadcast":      cfg.Destinations.Broadcast,
		"AppNamespace":   cfg.Destinations.AppNamespace,
	} {
		if dest == "" || strings.ContainsAny(dest, "*> \t\r\n") {
			errs = append(errs, fmt.Errorf("Destinations.%s %q is not a literal subject", name, dest))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are valid but unusual.
//
// This is called after Validate() in NewEngine() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.SettleDelay < 500*time.Millisecond {
		logger.Warn(
			"SettleDelay is very short, the initial load may trigger alerts",
			"settle_delay", cfg.SettleDelay,
			"recommended", "1.5s",
		)
	}

	if cfg.PollTimeout > cfg.PollInterval {
		logger.Warn(
			"PollTimeout exceeds PollInterval, polls may queue up",
			"poll_timeout", cfg.PollTimeout,
			"poll_interval", cfg.PollInterval,
		)
	}

	if cfg.PushBufferSize < cfg.PollLimit {
		logger.Warn(
			"PushBufferSize is smaller than PollLimit",
			"push_buffer_size", cfg.PushBufferSize,
			"poll_limit", cfg.PollLimit,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests (BrokerURL still empty)
//
// Example:
//
//	cfg := notisync.TestConfig()
//	cfg.BrokerURL = srv.ClientURL()
//	engine, err := notisync.NewEngine(cfg, api, creds)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.ConnectTimeout = time.Second
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.SubscribeRetryInterval = 10 * time.Millisecond
	cfg.MaxSubscribeAttempts = 200
	cfg.PollInterval = time.Minute // tests drive polls through Refresh
	cfg.PollTimeout = time.Second
	cfg.SettleDelay = 100 * time.Millisecond
	cfg.ShakeDuration = 50 * time.Millisecond

	return cfg
}

// LoadConfig builds a Config from defaults, an optional YAML file and
// NOTISYNC_-prefixed environment variables, in that order of precedence
// (environment wins), then validates it.
//
// Parameters:
//   - path: YAML file path; empty skips the file
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
