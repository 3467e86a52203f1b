// Package config loads the fastex configuration surface (spec.md §6)
// via Viper, layering struct defaults under environment variable
// overrides, the same precedence order the retrieval pack's services
// use for their own config loaders.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hophndev/fastex-go"
)

// RemoteConfig mirrors spec.md §6's remote backend surface.
type RemoteConfig struct {
	URL             string `mapstructure:"redis_url"`
	FallbackMode    string `mapstructure:"fallback_mode"`
	CallTimeoutMS   int64  `mapstructure:"call_timeout_ms"`
}

// LocalConfig mirrors spec.md §6's local backend surface.
type LocalConfig struct {
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	MaxKeys                int `mapstructure:"max_keys"`
}

// CompositeConfig mirrors spec.md §6's composite surface.
type CompositeConfig struct {
	SwitchingStrategy          string `mapstructure:"switching_strategy"`
	FailureThreshold           int64  `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds     int64  `mapstructure:"recovery_timeout_seconds"`
	HealthCheckIntervalSeconds int64  `mapstructure:"health_check_interval_seconds"`
}

// PolicyConfig mirrors spec.md §6's DEFAULT_TIMES/DEFAULT_WINDOW_SECONDS.
type PolicyConfig struct {
	DefaultTimes          int64 `mapstructure:"default_times"`
	DefaultWindowSeconds  int64 `mapstructure:"default_window_seconds"`
}

// Config is the full configuration surface a host application loads
// to wire up fastex.
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Local     LocalConfig     `mapstructure:"local"`
	Composite CompositeConfig `mapstructure:"composite"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.fallback_mode", "ALLOW")
	v.SetDefault("remote.call_timeout_ms", 1000)

	v.SetDefault("local.cleanup_interval_seconds", 30)
	v.SetDefault("local.max_keys", 100_000)

	v.SetDefault("composite.switching_strategy", "circuit_breaker")
	v.SetDefault("composite.failure_threshold", 5)
	v.SetDefault("composite.recovery_timeout_seconds", 60)
	v.SetDefault("composite.health_check_interval_seconds", 10)

	v.SetDefault("policy.default_times", 100)
	v.SetDefault("policy.default_window_seconds", 60)
}

// Load reads configuration from an optional file at path (skipped if
// empty or missing) layered under FASTEX_-prefixed environment
// variables, which take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FASTEX")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration against the constraints
// spec.md implies for each component, returning a *fastex.ConfigError
// on the first violation.
func (c *Config) Validate() error {
	if _, err := fastex.ParseFallbackMode(c.Remote.FallbackMode); err != nil {
		return err
	}
	if c.Local.MaxKeys < 1 {
		return &fastex.ConfigError{Field: "local.max_keys", Value: c.Local.MaxKeys, Reason: "must be >= 1"}
	}
	if c.Local.CleanupIntervalSeconds < 1 {
		return &fastex.ConfigError{Field: "local.cleanup_interval_seconds", Value: c.Local.CleanupIntervalSeconds, Reason: "must be >= 1"}
	}
	if c.Composite.FailureThreshold < 1 {
		return &fastex.ConfigError{Field: "composite.failure_threshold", Value: c.Composite.FailureThreshold, Reason: "must be >= 1"}
	}
	if c.Composite.RecoveryTimeoutSeconds < 1 {
		return &fastex.ConfigError{Field: "composite.recovery_timeout_seconds", Value: c.Composite.RecoveryTimeoutSeconds, Reason: "must be >= 1"}
	}
	switch c.Composite.SwitchingStrategy {
	case "circuit_breaker", "health_check", "fail_fast":
	default:
		return &fastex.ConfigError{Field: "composite.switching_strategy", Value: c.Composite.SwitchingStrategy, Reason: "must be one of circuit_breaker, health_check, fail_fast"}
	}
	if c.Policy.DefaultTimes < 1 {
		return &fastex.ConfigError{Field: "policy.default_times", Value: c.Policy.DefaultTimes, Reason: "must be >= 1"}
	}
	if c.Policy.DefaultWindowSeconds < 1 {
		return &fastex.ConfigError{Field: "policy.default_window_seconds", Value: c.Policy.DefaultWindowSeconds, Reason: "must be >= 1"}
	}
	return nil
}

// RemoteCallTimeout returns Remote.CallTimeoutMS as a time.Duration.
func (c *Config) RemoteCallTimeout() time.Duration {
	return time.Duration(c.Remote.CallTimeoutMS) * time.Millisecond
}

// RemoteFallbackMode parses Remote.FallbackMode.
func (c *Config) RemoteFallbackMode() fastex.FallbackMode {
	mode, _ := fastex.ParseFallbackMode(c.Remote.FallbackMode)
	return mode
}
