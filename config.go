package tailz

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrInvalidConfig is wrapped by every error Config.Validate returns.
var ErrInvalidConfig = errors.New("invalid sampler config")

// Config holds the sampler's construction-time settings.
type Config struct {
	// InactivityTimeout completes a trace that received no span for this long.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	// SweepInterval is the pause between two sweeps.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Shards is the number of registry partitions; 0 picks DefaultShardCount.
	Shards int `mapstructure:"shards"`
	// Workers is the number of goroutines evaluating and dispatching traces.
	Workers int `mapstructure:"workers"`
	// QueueSize bounds the handoff between the sweeper and the workers.
	QueueSize int `mapstructure:"queue_size"`
	// MaxBufferedSpans force-completes the least recently active traces once
	// more spans than this are buffered. 0 disables the ceiling.
	MaxBufferedSpans int `mapstructure:"max_buffered_spans"`
	// DecisionCacheSize is how many recently finalized trace ids are
	// remembered to detect late spans. 0 disables detection.
	DecisionCacheSize int `mapstructure:"decision_cache_size"`
	// InferRoot treats a span without a local parent (no parent, or a remote
	// one) as the trace's closing signal.
	InferRoot bool `mapstructure:"infer_root"`
}

// DefaultConfig returns a Config suitable for a single service process.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 30 * time.Second,
		SweepInterval:     time.Second,
		Shards:            DefaultShardCount(),
		Workers:           runtime.GOMAXPROCS(0),
		QueueSize:         1024,
		DecisionCacheSize: 10000,
		InferRoot:         true,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.InactivityTimeout <= 0:
		return fmt.Errorf("%w: inactivity_timeout must be positive, got %s", ErrInvalidConfig, c.InactivityTimeout)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep_interval must be positive, got %s", ErrInvalidConfig, c.SweepInterval)
	case c.Shards < 0:
		return fmt.Errorf("%w: shards must not be negative, got %d", ErrInvalidConfig, c.Shards)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.QueueSize < 0:
		return fmt.Errorf("%w: queue_size must not be negative, got %d", ErrInvalidConfig, c.QueueSize)
	case c.MaxBufferedSpans < 0:
		return fmt.Errorf("%w: max_buffered_spans must not be negative, got %d", ErrInvalidConfig, c.MaxBufferedSpans)
	case c.DecisionCacheSize < 0:
		return fmt.Errorf("%w: decision_cache_size must not be negative, got %d", ErrInvalidConfig, c.DecisionCacheSize)
	}
	return nil
}
