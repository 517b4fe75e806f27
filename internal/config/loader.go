package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".shear"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for shear settings.
const envPrefix = "SHEAR"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// DefaultExpandTimeout bounds one macro expansion invocation.
const DefaultExpandTimeout = "5m"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("fix", false)
	viperCfg.SetDefault("dry_run", false)
	viperCfg.SetDefault("format", "auto")
	viperCfg.SetDefault("color", "auto")
	viperCfg.SetDefault("packages", []string{})
	viperCfg.SetDefault("exclude", []string{})
	viperCfg.SetDefault("verbose", false)
	viperCfg.SetDefault("quiet", false)

	viperCfg.SetDefault("expand.enabled", false)
	viperCfg.SetDefault("expand.timeout", DefaultExpandTimeout)

	viperCfg.SetDefault("registry.cargo_home", "")
}
