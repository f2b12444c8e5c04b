package tailz

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrInvalidPolicy is wrapped by every error BuildPolicy returns.
var ErrInvalidPolicy = errors.New("invalid sampling policy")

// Policy types understood by BuildPolicy.
const (
	PolicyAlwaysKeep    = "always_keep"
	PolicyAlwaysDrop    = "always_drop"
	PolicyError         = "error"
	PolicyDuration      = "duration"
	PolicyAttribute     = "attribute"
	PolicyName          = "name"
	PolicySpanCount     = "span_count"
	PolicyProbabilistic = "probabilistic"
	PolicyRateLimited   = "rate_limited"
	PolicyAnd           = "and"
	PolicyOr            = "or"
	PolicyNot           = "not"
)

// PolicyConfig is the declarative form of a policy tree.
// Only the fields relevant to Type are read.
type PolicyConfig struct {
	Value       any            `mapstructure:"value"`
	Type        string         `mapstructure:"type"`
	Key         string         `mapstructure:"key"`
	Pattern     string         `mapstructure:"pattern"`
	Policies    []PolicyConfig `mapstructure:"policies"`
	Probability float64        `mapstructure:"probability"`
	Threshold   time.Duration  `mapstructure:"threshold"`
	Window      time.Duration  `mapstructure:"window"`
	Limit       int            `mapstructure:"limit"`
	MinSpans    int            `mapstructure:"min_spans"`
	MaxSpans    int            `mapstructure:"max_spans"`
}

type buildOptions struct {
	clock clockz.Clock
	draw  func() float64
}

// BuildOption customizes BuildPolicy.
type BuildOption func(*buildOptions)

// WithPolicyClock sets the clock used by rate-limited policies.
func WithPolicyClock(clock clockz.Clock) BuildOption {
	return func(o *buildOptions) { o.clock = clock }
}

// WithRandomSource sets the uniform [0, 1) source used by probabilistic policies.
func WithRandomSource(draw func() float64) BuildOption {
	return func(o *buildOptions) { o.draw = draw }
}

// BuildPolicy turns cfg into a Policy. Every structural problem is reported
// here, wrapped in ErrInvalidPolicy and prefixed with the path of the
// offending node, so evaluation itself can never fail.
func BuildPolicy(cfg PolicyConfig, opts ...BuildOption) (Policy, error) {
	o := buildOptions{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}
	return buildPolicy(cfg, "policy", &o)
}

func buildPolicy(cfg PolicyConfig, path string, o *buildOptions) (Policy, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPolicy, path, fmt.Sprintf(format, args...))
	}

	switch cfg.Type {
	case PolicyAlwaysKeep:
		return AlwaysKeep(), nil
	case PolicyAlwaysDrop:
		return AlwaysDrop(), nil
	case PolicyError:
		return ErrorBiased(), nil
	case PolicyDuration:
		if cfg.Threshold <= 0 {
			return nil, invalid("threshold must be positive, got %s", cfg.Threshold)
		}
		return DurationThreshold(cfg.Threshold), nil
	case PolicyAttribute:
		if cfg.Key == "" {
			return nil, invalid("attribute policy requires a key")
		}
		if _, ok := cfg.Value.([]any); ok {
			return nil, invalid("attribute value must be a scalar")
		}
		return AttributeMatch(cfg.Key, cfg.Value), nil
	case PolicyName:
		if cfg.Pattern == "" {
			return nil, invalid("name policy requires a pattern")
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, invalid("bad pattern: %v", err)
		}
		return NameMatch(re), nil
	case PolicySpanCount:
		if cfg.MinSpans < 0 || cfg.MaxSpans < 0 {
			return nil, invalid("span bounds must not be negative")
		}
		if cfg.MaxSpans > 0 && cfg.MaxSpans < cfg.MinSpans {
			return nil, invalid("max_spans %d is below min_spans %d", cfg.MaxSpans, cfg.MinSpans)
		}
		return SpanCount(cfg.MinSpans, cfg.MaxSpans), nil
	case PolicyProbabilistic:
		if cfg.Probability < 0 || cfg.Probability > 1 {
			return nil, invalid("probability must be within [0, 1], got %v", cfg.Probability)
		}
		return Probabilistic(cfg.Probability, o.draw), nil
	case PolicyRateLimited:
		if cfg.Limit <= 0 {
			return nil, invalid("limit must be positive, got %d", cfg.Limit)
		}
		if cfg.Window <= 0 {
			return nil, invalid("window must be positive, got %s", cfg.Window)
		}
		return RateLimited(NewRateLimiter(cfg.Limit, cfg.Window, o.clock)), nil
	case PolicyAnd, PolicyOr:
		if len(cfg.Policies) == 0 {
			return nil, invalid("%s policy requires at least one sub-policy", cfg.Type)
		}
		subs := make([]Policy, 0, len(cfg.Policies))
		for i, sub := range cfg.Policies {
			p, err := buildPolicy(sub, fmt.Sprintf("%s.policies[%d]", path, i), o)
			if err != nil {
				return nil, err
			}
			subs = append(subs, p)
		}
		if cfg.Type == PolicyAnd {
			return And(subs...), nil
		}
		return Or(subs...), nil
	case PolicyNot:
		if len(cfg.Policies) != 1 {
			return nil, invalid("not policy requires exactly one sub-policy, got %d", len(cfg.Policies))
		}
		p, err := buildPolicy(cfg.Policies[0], path+".policies[0]", o)
		if err != nil {
			return nil, err
		}
		return Not(p), nil
	case "":
		return nil, invalid("missing type")
	default:
		return nil, invalid("unknown type %q", cfg.Type)
	}
}
