package reliability

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration for reliability testing, read from
// TAILZ_RELIABILITY_* environment variables.
type Config struct {
	Level            string        // "basic" or "stress"
	Duration         time.Duration // Test duration for stress tests
	MaxGoroutines    int           // Maximum goroutines for concurrent tests
	MaxMemoryMB      int           // Memory limit for tests
	FailureThreshold float64       // Failure rate threshold (0.0-1.0)
}

func getReliabilityConfig() Config {
	v := viper.New()
	v.SetEnvPrefix("TAILZ_RELIABILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("level", "")
	v.SetDefault("duration", 30*time.Second)
	v.SetDefault("max_goroutines", 100)
	v.SetDefault("max_memory_mb", 512)
	v.SetDefault("failure_threshold", 0.05)

	cfg := Config{
		Level:            strings.ToLower(v.GetString("level")),
		Duration:         v.GetDuration("duration"),
		MaxGoroutines:    v.GetInt("max_goroutines"),
		MaxMemoryMB:      v.GetInt("max_memory_mb"),
		FailureThreshold: v.GetFloat64("failure_threshold"),
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Second
	}
	if cfg.MaxGoroutines <= 0 {
		cfg.MaxGoroutines = 100
	}
	return cfg
}
