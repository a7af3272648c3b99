package main

import (
	"errors"
	"fmt"
	"os"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/spf13/viper"
)

// config holds the CLI settings. Values are populated from
// .bundlestate.yaml, BUNDLESTATE_* env vars and flags.
type config struct {
	Policy   string           `mapstructure:"policy"`
	Strict   bool             `mapstructure:"strict"`
	CacheDir string           `mapstructure:"cache_dir"`
	LogLevel string           `mapstructure:"log_level"`
	Platform []map[string]any `mapstructure:"platform"`
}

// platform returns the configured platform environments.
func (c config) platform() []bundlestate.Properties {
	envs := make([]bundlestate.Properties, 0, len(c.Platform))
	for _, p := range c.Platform {
		envs = append(envs, bundlestate.Properties(p))
	}
	return envs
}

// loadConfig reads configuration into v. A missing default config file is
// not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, file string) (config, error) {
	v.SetDefault("policy", "least-perturbation")
	v.SetDefault("strict", false)
	v.SetDefault("cache_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("platform", []map[string]any{})

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".bundlestate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("BUNDLESTATE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
