package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openconverge/converge/pkg/providers/proxmox"
	"github.com/openconverge/converge/pkg/telemetry"
)

// duration wraps time.Duration so config files can say "30s" or "5m".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }

// providerSettings configures the compute provider connection and its
// resilience policy.
type providerSettings struct {
	Endpoint           string   `yaml:"endpoint" validate:"required,url"`
	Username           string   `yaml:"username" validate:"required"`
	Password           string   `yaml:"password"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	Node               string   `yaml:"node"`
	FailureThreshold   int      `yaml:"failure_threshold"`
	RecoveryTimeout    duration `yaml:"recovery_timeout"`
	RetryAttempts      int      `yaml:"retry_attempts"`
	RetryBaseDelay     duration `yaml:"retry_base_delay"`
	RetryMaxDelay      duration `yaml:"retry_max_delay"`
	RetryJitter        bool     `yaml:"retry_jitter"`
	TaskPollInterval   duration `yaml:"task_poll_interval"`
	TaskTimeout        duration `yaml:"task_timeout"`
	RequestTimeout     duration `yaml:"request_timeout"`
}

type storeSettings struct {
	Path string `yaml:"path"`
}

type metricsSettings struct {
	Namespace     string `yaml:"namespace"`
	ListenAddress string `yaml:"listen_address"`
}

// appConfig is the on-disk configuration file schema.
type appConfig struct {
	Provider providerSettings        `yaml:"provider"`
	Logging  telemetry.LoggingConfig `yaml:"logging"`
	Store    storeSettings           `yaml:"store"`
	Metrics  metricsSettings         `yaml:"metrics"`
}

// loadConfig reads and validates the configuration file. The provider
// password may be supplied via CONVERGE_PROVIDER_PASSWORD instead of the
// file.
func loadConfig(path string) (*appConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &appConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Provider.Password == "" {
		cfg.Provider.Password = os.Getenv("CONVERGE_PROVIDER_PASSWORD")
	}
	if cfg.Provider.Password == "" {
		return nil, fmt.Errorf("provider password is required (set provider.password or CONVERGE_PROVIDER_PASSWORD)")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "converge"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildEngine constructs the provider engine from the loaded configuration.
func buildEngine(cfg *appConfig, logger zerolog.Logger, metrics *telemetry.Metrics) *proxmox.Engine {
	return proxmox.New(proxmox.Config{
		Endpoint:           cfg.Provider.Endpoint,
		Username:           cfg.Provider.Username,
		Password:           cfg.Provider.Password,
		InsecureSkipVerify: cfg.Provider.InsecureSkipVerify,
		Node:               cfg.Provider.Node,
		FailureThreshold:   cfg.Provider.FailureThreshold,
		RecoveryTimeout:    cfg.Provider.RecoveryTimeout.std(),
		RetryAttempts:      cfg.Provider.RetryAttempts,
		RetryBaseDelay:     cfg.Provider.RetryBaseDelay.std(),
		RetryMaxDelay:      cfg.Provider.RetryMaxDelay.std(),
		RetryJitter:        cfg.Provider.RetryJitter,
		TaskPollInterval:   cfg.Provider.TaskPollInterval.std(),
		TaskTimeout:        cfg.Provider.TaskTimeout.std(),
		RequestTimeout:     cfg.Provider.RequestTimeout.std(),
		Logger:             logger,
		Metrics:            metrics,
	})
}
