package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads config.toml from configDir
// (if non-empty), and binds environment variables with the ZRELAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command)
//  2. Environment variables (ZRELAY_LISTEN, ZRELAY_POOL_TOKENS, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("ZRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load resolves the final Config from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Pool.FailureThreshold < 1 {
		cfg.Pool.FailureThreshold = 1
	}

	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("listen", d.Listen)
	v.SetDefault("debug", d.Debug)

	// Upstream
	v.SetDefault("upstream.base", d.Upstream.Base)
	v.SetDefault("upstream.model", d.Upstream.Model)
	v.SetDefault("upstream.token", d.Upstream.Token)
	v.SetDefault("upstream.anonymous", d.Upstream.Anonymous)

	// Pool
	v.SetDefault("pool.tokens", d.Pool.Tokens)
	v.SetDefault("pool.file", d.Pool.File)
	v.SetDefault("pool.failure_threshold", d.Pool.FailureThreshold)
	v.SetDefault("pool.cooldown_seconds", d.Pool.CooldownSeconds)

	// Think tags
	v.SetDefault("think.tags_mode", d.Think.TagsMode)
}
