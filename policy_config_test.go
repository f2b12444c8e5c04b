package tailz

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestBuildPolicyTree(t *testing.T) {
	clock := clockz.NewFakeClockAt(testEpoch)
	cfg := PolicyConfig{
		Type: PolicyOr,
		Policies: []PolicyConfig{
			{Type: PolicyError},
			{Type: PolicyDuration, Threshold: time.Second},
			{
				Type: PolicyAnd,
				Policies: []PolicyConfig{
					{Type: PolicyAttribute, Key: "tenant", Value: "acme"},
					{Type: PolicyNot, Policies: []PolicyConfig{{Type: PolicyName, Pattern: "^health"}}},
					{Type: PolicyRateLimited, Limit: 1, Window: time.Second},
				},
			},
		},
	}

	p, err := BuildPolicy(cfg, WithPolicyClock(clock))
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}

	acme := testSpan(1, 1, 0, testEpoch, time.Millisecond)
	acme.Attributes = map[string]any{"tenant": "acme"}
	health := acme
	health.Name = "healthz"

	if decide(p, health) != Drop {
		t.Error("Health checks should be dropped")
	}
	if decide(p, acme) != Keep {
		t.Error("First acme trace should be kept")
	}
	if decide(p, acme) != Drop {
		t.Error("Second acme trace should hit the rate limit")
	}

	slow := testSpan(1, 1, 0, testEpoch, 2*time.Second)
	if decide(p, slow) != Keep {
		t.Error("Slow traces should be kept")
	}
}

func TestBuildPolicyProbabilisticSource(t *testing.T) {
	p, err := BuildPolicy(PolicyConfig{Type: PolicyProbabilistic, Probability: 0.3},
		WithRandomSource(func() float64 { return 0.2 }))
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}
	if decide(p) != Keep {
		t.Error("Draw below the probability should keep")
	}
}

func TestBuildPolicyErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  PolicyConfig
		path string
	}{
		{"missing type", PolicyConfig{}, "policy"},
		{"unknown type", PolicyConfig{Type: "sometimes"}, "policy"},
		{"duration", PolicyConfig{Type: PolicyDuration}, "policy"},
		{"attribute key", PolicyConfig{Type: PolicyAttribute}, "policy"},
		{"attribute list", PolicyConfig{Type: PolicyAttribute, Key: "k", Value: []any{"a"}}, "policy"},
		{"name pattern", PolicyConfig{Type: PolicyName, Pattern: "("}, "policy"},
		{"span bounds", PolicyConfig{Type: PolicySpanCount, MinSpans: 5, MaxSpans: 2}, "policy"},
		{"probability", PolicyConfig{Type: PolicyProbabilistic, Probability: 1.5}, "policy"},
		{"rate limit", PolicyConfig{Type: PolicyRateLimited, Window: time.Second}, "policy"},
		{"rate window", PolicyConfig{Type: PolicyRateLimited, Limit: 1}, "policy"},
		{"empty and", PolicyConfig{Type: PolicyAnd}, "policy"},
		{"not arity", PolicyConfig{Type: PolicyNot, Policies: []PolicyConfig{{Type: PolicyError}, {Type: PolicyError}}}, "policy"},
		{
			"nested",
			PolicyConfig{Type: PolicyOr, Policies: []PolicyConfig{
				{Type: PolicyError},
				{Type: PolicyAnd, Policies: []PolicyConfig{{Type: PolicyDuration}}},
			}},
			"policy.policies[1].policies[0]",
		},
		{
			"nested not",
			PolicyConfig{Type: PolicyNot, Policies: []PolicyConfig{{Type: "bogus"}}},
			"policy.policies[0]",
		},
	}

	for _, tc := range cases {
		_, err := BuildPolicy(tc.cfg)
		if err == nil {
			t.Errorf("%s: expected an error", tc.name)
			continue
		}
		if !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("%s: expected ErrInvalidPolicy, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), ": "+tc.path+": ") {
			t.Errorf("%s: expected path %q in %q", tc.name, tc.path, err.Error())
		}
	}
}
