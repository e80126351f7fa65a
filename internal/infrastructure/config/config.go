// Package config loads saga runner configuration from a TOML file and
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runner configuration
type Config struct {
	Target TargetConfig
	Runner RunnerConfig
	Log    LogConfig
}

// TargetConfig holds settings for the API deployment under test
type TargetConfig struct {
	BaseURL       string        // API base URL, e.g. http://localhost:8080/api/v1
	TrustedOrigin string        // Origin header value expected by the API's CSRF checks
	Timeout       time.Duration // per-request HTTP timeout
}

// RunnerConfig holds execution policy settings
type RunnerConfig struct {
	Concurrency       int    // bounded worker count
	KeyFilter         string // substring filter on sagaKey (empty = all)
	ResultLimit       int    // cap on catalog entries executed (0 = no cap)
	SessionPassword   string // shared password for actor accounts (empty = generated)
	StrictExit        bool   // non-zero exit when at least one run failed
	StrictExploratory bool   // block instead of skip when the evaluator is unavailable
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load loads configuration from an optional config.toml and environment
// variables. Priority (highest to lowest):
// 1. Environment variables with SAGA_ prefix (e.g. SAGA_TARGET_BASE_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SAGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Target: TargetConfig{
			BaseURL:       v.GetString("target.base_url"),
			TrustedOrigin: v.GetString("target.trusted_origin"),
			Timeout:       v.GetDuration("target.timeout"),
		},
		Runner: RunnerConfig{
			Concurrency:       v.GetInt("runner.concurrency"),
			KeyFilter:         v.GetString("runner.key_filter"),
			ResultLimit:       v.GetInt("runner.result_limit"),
			SessionPassword:   v.GetString("runner.session_password"),
			StrictExit:        v.GetBool("runner.strict_exit"),
			StrictExploratory: v.GetBool("runner.strict_exploratory"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Target.BaseURL == "" {
		cfg.Target.BaseURL = "http://localhost:8080/api/v1"
	}
	if cfg.Target.TrustedOrigin == "" {
		cfg.Target.TrustedOrigin = "http://localhost:3000"
	}
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = 30 * time.Second
	}
	if cfg.Runner.Concurrency == 0 {
		cfg.Runner.Concurrency = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target.base_url %q must be an absolute URL", c.Target.BaseURL)
	}
	if c.Runner.Concurrency < 1 {
		return fmt.Errorf("runner.concurrency must be positive, got %d", c.Runner.Concurrency)
	}
	if c.Runner.ResultLimit < 0 {
		return fmt.Errorf("runner.result_limit cannot be negative, got %d", c.Runner.ResultLimit)
	}
	return nil
}
