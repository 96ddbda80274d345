package natsjs

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default configuration values for the NATS JetStream transport.
const (
	// DefaultAckWait is the default lock duration for peek-lock deliveries.
	DefaultAckWait = 30 * time.Second

	// DefaultFetchMaxWait is the default maximum duration a Receive call
	// waits for messages from the broker.
	DefaultFetchMaxWait = 1 * time.Second

	// DefaultMaxDeliver is the default maximum delivery attempts per message.
	DefaultMaxDeliver = 10

	// DefaultCreateRetries is the default number of attempts for stream and
	// consumer creation races.
	DefaultCreateRetries = 3

	// DefaultRetryBackoff is the default base delay between creation retries.
	DefaultRetryBackoff = 100 * time.Millisecond

	// DefaultSessionInactiveThreshold is how long an idle session consumer
	// survives before the broker reclaims it (releasing the session lock of
	// a crashed holder).
	DefaultSessionInactiveThreshold = 1 * time.Minute

	// DefaultConnectTimeout is the default dial timeout for Connect.
	DefaultConnectTimeout = 5 * time.Second
)

// Config is the configuration for the NATS JetStream transport.
//
// All duration fields accept standard Go duration strings like "30s", "5m"
// in YAML, and the same syntax through environment variables (ConfigFromEnv).
type Config struct {
	// AckWait is the message lock duration in peek-lock mode. A message not
	// settled within AckWait is redelivered; RenewLock extends the deadline
	// by another AckWait.
	AckWait time.Duration `yaml:"ackWait" env:"SUBLEASE_ACK_WAIT"`

	// FetchMaxWait bounds how long a Receive call waits for the broker to
	// produce messages before returning what it has (possibly none).
	FetchMaxWait time.Duration `yaml:"fetchMaxWait" env:"SUBLEASE_FETCH_MAX_WAIT"`

	// MaxDeliver caps delivery attempts per message in peek-lock mode.
	MaxDeliver int `yaml:"maxDeliver" env:"SUBLEASE_MAX_DELIVER"`

	// Prefetch is the initial prefetch window of receivers created by this
	// connection. Receivers fetch up to this many messages beyond the
	// caller's demand and serve them from a local buffer first.
	Prefetch int `yaml:"prefetch" env:"SUBLEASE_PREFETCH"`

	// StreamReplicas is the replication factor of streams created on demand.
	StreamReplicas int `yaml:"streamReplicas" env:"SUBLEASE_STREAM_REPLICAS"`

	// StreamMaxAge is the retention age of stream messages (0 = unlimited).
	StreamMaxAge time.Duration `yaml:"streamMaxAge" env:"SUBLEASE_STREAM_MAX_AGE"`

	// CreateRetries is how many times stream/consumer creation is retried on
	// transient failures and concurrent-creation races.
	CreateRetries int `yaml:"createRetries" env:"SUBLEASE_CREATE_RETRIES"`

	// RetryBackoff is the base delay of the jittered backoff between
	// creation retries.
	RetryBackoff time.Duration `yaml:"retryBackoff" env:"SUBLEASE_RETRY_BACKOFF"`

	// SessionInactiveThreshold is how long an idle session consumer is kept
	// before the broker removes it and the session lock is released.
	SessionInactiveThreshold time.Duration `yaml:"sessionInactiveThreshold" env:"SUBLEASE_SESSION_INACTIVE_THRESHOLD"`

	// ConnectTimeout is the dial timeout used by Connect.
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"SUBLEASE_CONNECT_TIMEOUT"`
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() Config {
	return Config{
		AckWait:                  DefaultAckWait,
		FetchMaxWait:             DefaultFetchMaxWait,
		MaxDeliver:               DefaultMaxDeliver,
		Prefetch:                 0,
		StreamReplicas:           1,
		StreamMaxAge:             0,
		CreateRetries:            DefaultCreateRetries,
		RetryBackoff:             DefaultRetryBackoff,
		SessionInactiveThreshold: DefaultSessionInactiveThreshold,
		ConnectTimeout:           DefaultConnectTimeout,
	}
}

// TestConfig returns a configuration with fast timings for tests.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.AckWait = 2 * time.Second
	cfg.FetchMaxWait = 250 * time.Millisecond
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.SessionInactiveThreshold = 5 * time.Second
	cfg.ConnectTimeout = 2 * time.Second

	return cfg
}

// ConfigFromEnv returns the default configuration overridden by SUBLEASE_*
// environment variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// LoadConfigFile loads a configuration from a YAML file.
//
// Unset fields fall back to defaults and the result is validated before it
// is returned.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - Config: The loaded configuration
//   - error: Read, parse, or validation error
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyDefaults fills unset fields with project defaults.
//
// Prefetch and StreamMaxAge deliberately keep their zero values (no prefetch,
// unlimited retention).
func ApplyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.AckWait == 0 {
		cfg.AckWait = defaults.AckWait
	}
	if cfg.FetchMaxWait == 0 {
		cfg.FetchMaxWait = defaults.FetchMaxWait
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = defaults.MaxDeliver
	}
	if cfg.StreamReplicas == 0 {
		cfg.StreamReplicas = defaults.StreamReplicas
	}
	if cfg.CreateRetries == 0 {
		cfg.CreateRetries = defaults.CreateRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.SessionInactiveThreshold == 0 {
		cfg.SessionInactiveThreshold = defaults.SessionInactiveThreshold
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
}

// Validate checks configuration constraints and returns an error for invalid values.
//
// Hard Validation Rules:
//   - AckWait > 0 (a lock must have a deadline)
//   - FetchMaxWait > 0 and FetchMaxWait < AckWait (a fetch must not outlive its locks)
//   - MaxDeliver >= 1
//   - Prefetch >= 0
//   - StreamReplicas in 1..5 (JetStream replica bounds)
//   - CreateRetries >= 1 and RetryBackoff > 0
func (cfg *Config) Validate() error {
	if cfg.AckWait <= 0 {
		return fmt.Errorf("ackWait must be positive, got %v", cfg.AckWait)
	}
	if cfg.FetchMaxWait <= 0 {
		return fmt.Errorf("fetchMaxWait must be positive, got %v", cfg.FetchMaxWait)
	}
	if cfg.FetchMaxWait >= cfg.AckWait {
		return fmt.Errorf("fetchMaxWait (%v) must be less than ackWait (%v)", cfg.FetchMaxWait, cfg.AckWait)
	}
	if cfg.MaxDeliver < 1 {
		return fmt.Errorf("maxDeliver must be at least 1, got %d", cfg.MaxDeliver)
	}
	if cfg.Prefetch < 0 {
		return fmt.Errorf("prefetch must not be negative, got %d", cfg.Prefetch)
	}
	if cfg.StreamReplicas < 1 || cfg.StreamReplicas > 5 {
		return fmt.Errorf("streamReplicas must be between 1 and 5, got %d", cfg.StreamReplicas)
	}
	if cfg.CreateRetries < 1 {
		return fmt.Errorf("createRetries must be at least 1, got %d", cfg.CreateRetries)
	}
	if cfg.RetryBackoff <= 0 {
		return fmt.Errorf("retryBackoff must be positive, got %v", cfg.RetryBackoff)
	}

	return nil
}
