package proxmox

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/openconverge/converge/pkg/telemetry"
)

// Config holds the caller-supplied engine configuration.
type Config struct {
	// Endpoint is the provider API base URL (e.g., "https://pve:8006").
	Endpoint string `validate:"required,url"`

	// Username is the API username (e.g., "root@pam").
	Username string `validate:"required"`

	// Password is the API password.
	Password string `validate:"required"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Node is the default logical partition (Proxmox node) all guests
	// live on. Defaults to "pve".
	Node string

	// FailureThreshold is the breaker's consecutive failure limit.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration

	// RetryAttempts bounds retries of read-only provider calls.
	RetryAttempts int

	// RetryBaseDelay is the first backoff delay.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration

	// RetryJitter enables backoff jitter.
	RetryJitter bool

	// TaskPollInterval is the fixed interval between task status polls.
	TaskPollInterval time.Duration

	// TaskTimeout bounds how long a polled task may run before the engine
	// gives up and surfaces a task-timeout error.
	TaskTimeout time.Duration

	// RequestTimeout bounds a single HTTP request to the provider.
	RequestTimeout time.Duration

	// Logger receives engine logs. Defaults to a no-op logger.
	Logger zerolog.Logger

	// Metrics receives engine metrics. Optional.
	Metrics *telemetry.Metrics
}

func (c *Config) applyDefaults() {
	if c.Node == "" {
		c.Node = "pve"
	}
	if c.TaskPollInterval <= 0 {
		c.TaskPollInterval = 2 * time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}
