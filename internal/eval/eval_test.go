package eval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/magscore/internal/behavior"
	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pattern"
)

func harness() *EvalHarness {
	return NewEvalHarness(ConfigFrom(behavior.DefaultConfig(), flow.DefaultConfig()), gate.Default())
}

func support(n int) []behavior.SupportingSignal {
	return make([]behavior.SupportingSignal, n)
}

func validBundle() Bundle {
	z := catalog.ZoneLast15Min
	return Bundle{
		Behaviors: []behavior.ActivatedBehavior{
			{Code: "STB_01", Zone: z, WeightedScore: 2.4, Multiplier: 1.5, Supporting: support(3)},
			{Code: "INT_02", Zone: z, WeightedScore: 1.2, Multiplier: 1, Supporting: support(2)},
			{Code: "PSY_01", Zone: z, WeightedScore: 1.2, Multiplier: 1, Supporting: support(2)},
		},
		Patterns: []pattern.DetectedPattern{
			{Code: "PTN_03", Kind: catalog.KindTriple, Zone: z, SupportingBehaviors: []string{"INT_02", "PSY_01", "STB_01"}},
			{Code: "PTN_01", Kind: catalog.KindDouble, Zone: z, SupportingBehaviors: []string{"PSY_01", "STB_01"}},
		},
		Ruptures: []flow.RuptureEvent{{Phase: z, Magnitude: 0.6, FromMinute: 60, ToMinute: 90}},
		History: &memory.HistoricalContext{
			Episodes:    []memory.EpisodicEntry{{Patterns: []string{"PTN_01"}}, {Patterns: []string{"PTN_01", "PTN_03"}}},
			Frequencies: map[string]int{"PTN_01": 2, "PTN_03": 1},
		},
	}
}

func TestEvalPassesOnValidBundle(t *testing.T) {
	result := harness().Run(validBundle())
	require.True(t, result.Passed, result.Reason)
	assert.Len(t, result.Metrics, 8)
	assert.Equal(t, "all checks passed", result.Reason)
}

func TestEvalPassesOnEmptyBundle(t *testing.T) {
	assert.True(t, harness().Run(Bundle{}).Passed)
}

func TestEvalFailures(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Bundle)
		metric string
	}{
		"single signal": {
			mutate: func(b *Bundle) { b.Behaviors[2].Supporting = support(1) },
			metric: "behavior_convergence",
		},
		"missing boost": {
			mutate: func(b *Bundle) { b.Behaviors[0].Multiplier = 1 },
			metric: "behavior_multiplier",
		},
		"unsorted behaviors": {
			mutate: func(b *Bundle) { b.Behaviors[1], b.Behaviors[2] = b.Behaviors[2], b.Behaviors[1] },
			metric: "behavior_order",
		},
		"inactive support": {
			mutate: func(b *Bundle) { b.Patterns[1].SupportingBehaviors = []string{"STB_02"} },
			metric: "pattern_support",
		},
		"double before triple": {
			mutate: func(b *Bundle) { b.Patterns[0], b.Patterns[1] = b.Patterns[1], b.Patterns[0] },
			metric: "pattern_order",
		},
		"weak rupture": {
			mutate: func(b *Bundle) { b.Ruptures[0].Magnitude = 0.1 },
			metric: "rupture_threshold",
		},
		"stale frequency": {
			mutate: func(b *Bundle) { b.History.Frequencies["PTN_01"] = 5 },
			metric: "semantic_consistency",
		},
		"phantom frequency": {
			mutate: func(b *Bundle) { b.History.Frequencies["PTN_09"] = 1 },
			metric: "semantic_consistency",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b := validBundle()
			tc.mutate(&b)
			result := harness().Run(b)
			require.False(t, result.Passed)
			assert.True(t, strings.Contains(result.Reason, tc.metric), result.Reason)
			for _, m := range result.Metrics {
				if m.Name == tc.metric {
					assert.False(t, m.Pass)
				}
			}
		})
	}
}

func TestEvalNeutralityCatchesForbiddenAttribute(t *testing.T) {
	b := validBundle()
	b.History.Episodes[0].Attributes = map[string]string{"final_score": "1-0"}
	result := harness().Run(b)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Reason, "neutrality")
}
