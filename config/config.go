// Package config loads sampler settings from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zoobzio/tailz"
)

// EnvPrefix prefixes every environment override, e.g.
// TAILZ_SAMPLER_INACTIVITY_TIMEOUT=10s.
const EnvPrefix = "TAILZ"

// Config is the root configuration of a process embedding the sampler.
type Config struct {
	Sampler tailz.Config       `mapstructure:"sampler"`
	Policy  tailz.PolicyConfig `mapstructure:"policy"`
	Log     LogConfig          `mapstructure:"log"`
	Service ServiceConfig      `mapstructure:"service"`
}

// LogConfig selects the zap logger built by NewLogger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ServiceConfig describes the process in exported traces.
type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

// Load reads path (YAML, JSON or TOML by extension) and applies environment
// overrides. An empty path looks for tailz.yaml in the working directory and
// /etc/tailz, and falls back to defaults when none exists. The sampler
// section is validated; the policy is validated by PolicyFromConfig.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tailz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tailz")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Sampler.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := tailz.DefaultConfig()
	v.SetDefault("sampler.inactivity_timeout", d.InactivityTimeout.String())
	v.SetDefault("sampler.sweep_interval", d.SweepInterval.String())
	v.SetDefault("sampler.shards", d.Shards)
	v.SetDefault("sampler.workers", d.Workers)
	v.SetDefault("sampler.queue_size", d.QueueSize)
	v.SetDefault("sampler.max_buffered_spans", d.MaxBufferedSpans)
	v.SetDefault("sampler.decision_cache_size", d.DecisionCacheSize)
	v.SetDefault("sampler.infer_root", d.InferRoot)
	v.SetDefault("policy.type", tailz.PolicyAlwaysKeep)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("service.name", "unknown_service")
}

// PolicyFromConfig builds the configured policy tree.
func (c *Config) PolicyFromConfig(opts ...tailz.BuildOption) (tailz.Policy, error) {
	return tailz.BuildPolicy(c.Policy, opts...)
}

// NewLogger builds a zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
