package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct for shear.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Fix      bool           `mapstructure:"fix"`
	DryRun   bool           `mapstructure:"dry_run"`
	Format   string         `mapstructure:"format"`
	Color    string         `mapstructure:"color"`
	Packages []string       `mapstructure:"packages"`
	Exclude  []string       `mapstructure:"exclude"`
	Verbose  bool           `mapstructure:"verbose"`
	Quiet    bool           `mapstructure:"quiet"`
	Expand   ExpandConfig   `mapstructure:"expand"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// ExpandConfig holds macro expansion settings.
type ExpandConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Timeout string `mapstructure:"timeout"`
}

// RegistryConfig holds local registry lookup settings.
type RegistryConfig struct {
	CargoHome string `mapstructure:"cargo_home"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidFormat indicates an unrecognized output format.
	ErrInvalidFormat = errors.New("format must be one of auto, json, yaml")
	// ErrInvalidColor indicates an unrecognized color mode.
	ErrInvalidColor = errors.New("color must be one of auto, always, never")
	// ErrInvalidExpandTimeout indicates the expand timeout is not a valid duration.
	ErrInvalidExpandTimeout = errors.New("expand.timeout must be a positive duration")
	// ErrQuietVerbose indicates quiet and verbose are both set.
	ErrQuietVerbose = errors.New("quiet and verbose are mutually exclusive")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	switch c.Format {
	case "auto", "json", "yaml":
	default:
		return ErrInvalidFormat
	}

	switch c.Color {
	case "auto", "always", "never":
	default:
		return ErrInvalidColor
	}

	if c.Quiet && c.Verbose {
		return ErrQuietVerbose
	}

	_, timeoutErr := c.ExpandTimeout()
	if timeoutErr != nil {
		return timeoutErr
	}

	return nil
}

// ExpandTimeout parses the configured expansion timeout.
func (c *Config) ExpandTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Expand.Timeout)
	if err != nil || d <= 0 {
		return 0, ErrInvalidExpandTimeout
	}

	return d, nil
}
